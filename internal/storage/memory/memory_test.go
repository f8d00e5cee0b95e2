package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetshare/internal/core"
)

func TestTransactionsVersioningAndSync(t *testing.T) {
	ctx := context.Background()
	s := New()

	in := core.TransactionInput{
		Date: core.NewDate(2025, 5, 1), Description: "rent",
		Amount: core.Money{Cents: 90000}, Kind: core.KindExpense, Category: "Home",
	}
	tx, err := s.CreateTransaction(ctx, in, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.Version)

	in.Description = "rent (May)"
	tx, err = s.UpdateTransaction(ctx, tx.ID, in)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tx.Version)

	require.NoError(t, s.MarkSynced(ctx, tx.ID, 1))
	pending, _ := s.PendingSync(ctx, 10)
	assert.Len(t, pending, 1)

	require.NoError(t, s.MarkSynced(ctx, tx.ID, 2))
	pending, _ = s.PendingSync(ctx, 10)
	assert.Empty(t, pending)

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, tx.ID), core.ErrNotFound)
}

func TestCreateTransactionValidates(t *testing.T) {
	_, err := New().CreateTransaction(context.Background(), core.TransactionInput{}, 1)
	assert.Error(t, err)
}

func TestUsersAndSessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, core.User{Email: "a@b.c", Name: "A", Role: core.RoleAdmin})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, core.User{Email: "a@b.c", Name: "dup"})
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, core.Session{Token: "b", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, core.Session{Token: "a", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))
	tokens, err := s.DeleteUserSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)
}

func TestInviteSingleUse(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateInvite(ctx, core.Invite{Token: "n", ExpiresAt: time.Now().Add(time.Hour)}))

	assert.ErrorIs(t, s.RedeemInvite(ctx, "n", 42, time.Now()), core.ErrNotFound)
	inv, err := s.GetInvite(ctx, "n")
	require.NoError(t, err)
	assert.False(t, inv.Used(), "failed redemption leaves the invite open")

	first, err := s.CreateUser(ctx, core.User{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	second, err := s.CreateUser(ctx, core.User{Email: "b@example.com", Name: "B"})
	require.NoError(t, err)

	require.NoError(t, s.RedeemInvite(ctx, "n", first.ID, time.Now()))
	u, err := s.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleMember, u.Role)

	ie, ok := core.AsInviteError(s.RedeemInvite(ctx, "n", second.ID, time.Now()))
	require.True(t, ok)
	assert.Equal(t, core.InviteAlreadyUsed, ie.Kind)
}

func TestNewFromFilesSeedsBudgets(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, mustBudgets(t, NewFromFiles(dir)))

	content := "# monthly limits\nFood=250\n\nbroken line\nCar=abc\nFun = 40,50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_budgets.txt"), []byte(content), 0o644))

	budgets := mustBudgets(t, NewFromFiles(dir))
	require.Len(t, budgets, 2)
	assert.Equal(t, "Food", budgets[0].Category)
	assert.Equal(t, int64(25000), budgets[0].Limit.Cents)
	assert.Equal(t, "Fun", budgets[1].Category)
	assert.Equal(t, int64(4050), budgets[1].Limit.Cents)
}

func mustBudgets(t *testing.T, s *Store) []core.Budget {
	t.Helper()
	b, err := s.ListBudgets(context.Background())
	require.NoError(t, err)
	return b
}
