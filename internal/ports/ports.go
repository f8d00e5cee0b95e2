// Package ports declares the storage interfaces the ledger depends on.
// Both the SQLite repository and the in-memory store implement Store.
package ports

import (
	"context"
	"time"

	"budgetshare/internal/core"
)

type (
	UserStore interface {
		// CreateUser persists u and returns it with its assigned ID.
		// Returns core.ErrEmailTaken when the email already exists.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
		CountUsers(ctx context.Context) (int64, error)
		// SetUserRole changes the role; revokedAt is stored as given (nil clears it).
		SetUserRole(ctx context.Context, id int64, role core.Role, revokedAt *time.Time) error
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		GetSession(ctx context.Context, token string) (core.Session, error)
		DeleteSession(ctx context.Context, token string) error
		// DeleteUserSessions removes every session of a user and returns their tokens.
		DeleteUserSessions(ctx context.Context, userID int64) ([]string, error)
		DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, in core.TransactionInput, createdBy int64) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// ListTransactions returns every transaction, newest date first.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		// UpdateTransaction overwrites the fields and bumps the version.
		UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id int64) error
		// SpentByCategory sums expenses dated in [from, to) per category.
		SpentByCategory(ctx context.Context, from, to time.Time) (map[string]int64, error)
	}

	BudgetStore interface {
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		DeleteBudget(ctx context.Context, category string) error
	}

	InviteStore interface {
		CreateInvite(ctx context.Context, inv core.Invite) error
		GetInvite(ctx context.Context, token string) (core.Invite, error)
		// RedeemInvite consumes the invite and makes userID a member in one
		// write. It fails with an AlreadyUsed invite error when another user
		// consumed it first, and changes nothing on any failure.
		RedeemInvite(ctx context.Context, token string, userID int64, at time.Time) error
	}

	// SyncStore tracks which transactions still need exporting.
	SyncStore interface {
		PendingSync(ctx context.Context, limit int) ([]PendingSync, error)
		MarkSynced(ctx context.Context, id, version int64) error
		MarkSyncError(ctx context.Context, id int64) error
	}

	Store interface {
		UserStore
		SessionStore
		TransactionStore
		BudgetStore
		InviteStore
		SyncStore
		Ping(ctx context.Context) error
		Close() error
	}
)

// PendingSync is the minimal data needed to enqueue a sync message.
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// Sync status values stored alongside each transaction.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)
