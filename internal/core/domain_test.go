package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateValidate(t *testing.T) {
	assert.NoError(t, NewDate(2025, 1, 1).Validate())
	assert.NoError(t, NewDate(2025, 12, 31).Validate())
	assert.Error(t, Date{Time: time.Time{}}.Validate())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-09 ")
	assert.NoError(t, err)
	assert.Equal(t, NewDate(2025, 3, 9), d)
	assert.Equal(t, "2025-03-09", d.String())

	_, err = ParseDate("09/03/2025")
	assert.Error(t, err)
}

func TestTransactionInputValidate(t *testing.T) {
	good := TransactionInput{
		Date:        NewDate(2025, 1, 1),
		Description: "groceries",
		Amount:      Money{Cents: 100},
		Kind:        KindExpense,
		Category:    "Food",
	}
	assert.NoError(t, good.Validate())

	cases := map[string]func(in *TransactionInput){
		"zero date":        func(in *TransactionInput) { in.Date = Date{} },
		"empty desc":       func(in *TransactionInput) { in.Description = "  " },
		"long desc":        func(in *TransactionInput) { in.Description = strings.Repeat("a", 201) },
		"zero amount":      func(in *TransactionInput) { in.Amount = Money{} },
		"bad kind":         func(in *TransactionInput) { in.Kind = "transfer" },
		"empty category":   func(in *TransactionInput) { in.Category = "" },
		"long category":    func(in *TransactionInput) { in.Category = strings.Repeat("c", 65) },
	}
	for name, mutate := range cases {
		in := good
		mutate(&in)
		assert.Error(t, in.Validate(), name)
	}

	// Limits count characters, so accented text may use the full length.
	accented := good
	accented.Description = strings.Repeat("è", 200)
	accented.Category = strings.Repeat("é", 64)
	assert.NoError(t, accented.Validate())

	textCases := map[string]struct {
		mutate func(in *TransactionInput)
		want   error
	}{
		"accented desc over limit":     {func(in *TransactionInput) { in.Description = strings.Repeat("è", 201) }, ErrLongDescription},
		"accented category over limit": {func(in *TransactionInput) { in.Category = strings.Repeat("é", 65) }, ErrLongCategory},
		"invalid utf8 desc":            {func(in *TransactionInput) { in.Description = "caf\xe9" }, ErrInvalidText},
		"invalid utf8 category":        {func(in *TransactionInput) { in.Category = "\xff\xfe" }, ErrInvalidText},
	}
	for name, tc := range textCases {
		in := good
		tc.mutate(&in)
		assert.ErrorIs(t, in.Validate(), tc.want, name)
	}
}

func TestValidateRegistration(t *testing.T) {
	assert.NoError(t, ValidateRegistration("Ann@Example.com", "Ann", "longenough"))
	assert.ErrorIs(t, ValidateRegistration("nope", "Ann", "longenough"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateRegistration("a@b", "", "longenough"), ErrEmptyName)
	assert.ErrorIs(t, ValidateRegistration("a@b", "Ann", "short"), ErrWeakPassword)
}

func TestUserAccess(t *testing.T) {
	assert.True(t, User{Role: RoleAdmin}.HasAccess())
	assert.True(t, User{Role: RoleMember}.HasAccess())
	assert.False(t, User{Role: RoleNone}.HasAccess())
	assert.True(t, User{Role: RoleAdmin}.IsAdmin())
	assert.False(t, User{Role: RoleMember}.IsAdmin())
}

func TestInviteExpiry(t *testing.T) {
	now := time.Now()
	inv := Invite{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, inv.Expired(now))
	assert.True(t, inv.Expired(now.Add(time.Minute)))
	assert.False(t, inv.Used())
}

func TestInviteErrorLookup(t *testing.T) {
	for _, k := range InviteErrorKinds() {
		assert.NotEqual(t, "Unable to accept invite.", k.Message(), k)
		parsed, ok := ParseInviteErrorKind(string(k))
		assert.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	_, ok := ParseInviteErrorKind("Bogus")
	assert.False(t, ok)

	err := NewInviteError(InviteExpired)
	ie, ok := AsInviteError(err)
	assert.True(t, ok)
	assert.Equal(t, InviteExpired, ie.Kind)
}
