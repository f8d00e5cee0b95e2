package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetshare/internal/core"
)

func TestOkResultVoid(t *testing.T) {
	res, err := OkResult(nil)
	require.NoError(t, err)
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":null}`, string(raw))
}

func TestErrResultOmitsOk(t *testing.T) {
	raw, err := json.Marshal(ErrResult(string(core.InviteExpired), core.InviteExpired.Message()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"err":{"kind":"Expired","message":"This invite link has expired. Ask for a new one."}}`, string(raw))
}

func TestTransactionInputToCore(t *testing.T) {
	in := TransactionInput{Date: "2024-03-01", Description: "Rent", AmountCents: 90000, Kind: "expense", Category: "Home"}
	got, err := in.ToCore()
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 3, 1), got.Date)
	assert.Equal(t, int64(90000), got.Amount.Cents)
	assert.Equal(t, core.KindExpense, got.Kind)

	_, err = TransactionInput{Date: "01/03/2024"}.ToCore()
	assert.True(t, core.IsValidation(err))
}

func TestFromSummary(t *testing.T) {
	s := core.Summarize([]core.Transaction{
		{Date: core.NewDate(2024, 3, 2), Amount: core.Money{Cents: 500}, Kind: core.KindExpense, Category: "Food"},
		{Date: core.NewDate(2024, 3, 3), Amount: core.Money{Cents: 2000}, Kind: core.KindIncome, Category: "Salary"},
	}, 2024, 3)

	got := FromSummary(s)
	assert.Equal(t, int64(2000), got.IncomeCents)
	assert.Equal(t, int64(500), got.ExpensesCents)
	assert.Equal(t, int64(1500), got.NetCents)
	assert.Equal(t, []CategoryAmount{{Name: "Food", AmountCents: 500}}, got.ByCategory)
}

func TestFromUserKeepsRevocation(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	u := FromUser(core.User{ID: 3, Email: "a@b.c", Name: "A", Role: core.RoleNone, RevokedAt: &at, PasswordHash: "secret"})
	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"revokedAt"`)
}
