package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"budgetshare/internal/core"
	"budgetshare/internal/ports"

	_ "modernc.org/sqlite"
)

var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var (
	userColumns = []string{"id", "email", "name", "password_hash", "role", "created_at", "revoked_at"}
	txColumns   = []string{"id", "date", "description", "amount_cents", "kind", "category",
		"created_by", "created_at", "updated_at", "version"}
	inviteColumns = []string{"token", "created_by", "created_at", "expires_at", "used_by", "used_at"}
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens the file.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// notFound maps sql.ErrNoRows to core.ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

// Users

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u         core.User
		role      string
		createdAt int64
		revokedAt sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &createdAt, &revokedAt); err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	u.RevokedAt = timePtr(revokedAt)
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	res, err := sqlb.Insert("users").
		Columns("email", "name", "password_hash", "role", "created_at").
		Values(u.Email, u.Name, u.PasswordHash, string(u.Role), millis(u.CreatedAt)).
		RunWith(r.db).ExecContext(ctx)
	if isUniqueViolation(err) {
		return core.User{}, core.ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id

	slog.InfoContext(ctx, "User created", "user_id", id, "role", u.Role)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := sqlb.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).
		RunWith(r.db).QueryRowContext(ctx)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, notFound(err, "get user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := sqlb.Select(userColumns...).From("users").Where(sq.Eq{"email": email}).
		RunWith(r.db).QueryRowContext(ctx)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, notFound(err, "get user by email")
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := sqlb.Select(userColumns...).From("users").OrderBy("name", "id").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]core.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := sqlb.Select("COUNT(*)").From("users").RunWith(r.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SetUserRole(ctx context.Context, id int64, role core.Role, revokedAt *time.Time) error {
	res, err := sqlb.Update("users").
		Set("role", string(role)).
		Set("revoked_at", nullableMillis(revokedAt)).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return requireAffected(res, "set user role")
}

// Sessions

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := sqlb.Insert("sessions").
		Columns("token", "user_id", "created_at", "expires_at").
		Values(s.Token, s.UserID, millis(s.CreatedAt), millis(s.ExpiresAt)).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var (
		s                    core.Session
		createdAt, expiresAt int64
	)
	err := sqlb.Select("token", "user_id", "created_at", "expires_at").
		From("sessions").Where(sq.Eq{"token": token}).
		RunWith(r.db).QueryRowContext(ctx).
		Scan(&s.Token, &s.UserID, &createdAt, &expiresAt)
	if err != nil {
		return core.Session{}, notFound(err, "get session")
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := sqlb.Delete("sessions").Where(sq.Eq{"token": token}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteUserSessions(ctx context.Context, userID int64) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := sqlb.Select("token").From("sessions").Where(sq.Eq{"user_id": userID}).
		RunWith(tx).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session token: %w", err)
		}
		tokens = append(tokens, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}

	if _, err := sqlb.Delete("sessions").Where(sq.Eq{"user_id": userID}).RunWith(tx).ExecContext(ctx); err != nil {
		return nil, fmt.Errorf("delete user sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return tokens, nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := sqlb.Delete("sessions").Where(sq.LtOrEq{"expires_at": millis(before)}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// Transactions

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		date, kind           string
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &date, &t.Description, &t.Amount.Cents, &kind, &t.Category,
		&t.CreatedBy, &createdAt, &updatedAt, &t.Version)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	t.Date = d
	t.Kind = core.TransactionKind(kind)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, in core.TransactionInput, createdBy int64) (core.Transaction, error) {
	now := time.Now()
	res, err := sqlb.Insert("transactions").
		Columns("date", "description", "amount_cents", "kind", "category",
			"created_by", "created_at", "updated_at", "version", "sync_status").
		Values(in.Date.String(), in.Description, in.Amount.Cents, string(in.Kind), in.Category,
			createdBy, millis(now), millis(now), 1, ports.SyncPending).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"kind", in.Kind,
		"amount_cents", in.Amount.Cents,
		"date", in.Date.String())

	return r.GetTransaction(ctx, id)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := sqlb.Select(txColumns...).From("transactions").Where(sq.Eq{"id": id}).
		RunWith(r.db).QueryRowContext(ctx)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound(err, "get transaction")
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := sqlb.Select(txColumns...).From("transactions").
		OrderBy("date DESC", "id DESC").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	res, err := sqlb.Update("transactions").
		Set("date", in.Date.String()).
		Set("description", in.Description).
		Set("amount_cents", in.Amount.Cents).
		Set("kind", string(in.Kind)).
		Set("category", in.Category).
		Set("updated_at", millis(time.Now())).
		Set("version", sq.Expr("version + 1")).
		Set("sync_status", ports.SyncPending).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := requireAffected(res, "update transaction"); err != nil {
		return core.Transaction{}, err
	}
	return r.GetTransaction(ctx, id)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := sqlb.Delete("transactions").Where(sq.Eq{"id": id}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := requireAffected(res, "delete transaction"); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) SpentByCategory(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := sqlb.Select("category", "SUM(amount_cents)").From("transactions").
		Where(sq.Eq{"kind": string(core.KindExpense)}).
		Where(sq.GtOrEq{"date": from.Format(time.DateOnly)}).
		Where(sq.Lt{"date": to.Format(time.DateOnly)}).
		GroupBy("category").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum expenses by category: %w", err)
	}
	defer rows.Close()

	spent := make(map[string]int64)
	for rows.Next() {
		var (
			category string
			total    int64
		)
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		spent[category] = total
	}
	return spent, rows.Err()
}

// Budgets

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := sqlb.Select("category", "limit_cents", "updated_by", "updated_at").
		From("budgets").OrderBy("category").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	budgets := make([]core.Budget, 0)
	for rows.Next() {
		var (
			b         core.Budget
			updatedAt int64
		)
		if err := rows.Scan(&b.Category, &b.Limit.Cents, &b.UpdatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.UpdatedAt = fromMillis(updatedAt)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	_, err := sqlb.Insert("budgets").
		Columns("category", "limit_cents", "updated_by", "updated_at").
		Values(b.Category, b.Limit.Cents, b.UpdatedBy, millis(b.UpdatedAt)).
		Suffix("ON CONFLICT(category) DO UPDATE SET limit_cents = excluded.limit_cents, " +
			"updated_by = excluded.updated_by, updated_at = excluded.updated_at").
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	b.UpdatedAt = fromMillis(millis(b.UpdatedAt))
	return b, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, category string) error {
	res, err := sqlb.Delete("budgets").Where(sq.Eq{"category": category}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return requireAffected(res, "delete budget")
}

// Invites

func (r *SQLiteRepository) CreateInvite(ctx context.Context, inv core.Invite) error {
	_, err := sqlb.Insert("invites").
		Columns("token", "created_by", "created_at", "expires_at").
		Values(inv.Token, inv.CreatedBy, millis(inv.CreatedAt), millis(inv.ExpiresAt)).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetInvite(ctx context.Context, token string) (core.Invite, error) {
	var (
		inv                  core.Invite
		createdAt, expiresAt int64
		usedBy, usedAt       sql.NullInt64
	)
	err := sqlb.Select(inviteColumns...).From("invites").Where(sq.Eq{"token": token}).
		RunWith(r.db).QueryRowContext(ctx).
		Scan(&inv.Token, &inv.CreatedBy, &createdAt, &expiresAt, &usedBy, &usedAt)
	if err != nil {
		return core.Invite{}, notFound(err, "get invite")
	}
	inv.CreatedAt = fromMillis(createdAt)
	inv.ExpiresAt = fromMillis(expiresAt)
	if usedBy.Valid {
		id := usedBy.Int64
		inv.UsedBy = &id
	}
	inv.UsedAt = timePtr(usedAt)
	return inv, nil
}

func (r *SQLiteRepository) RedeemInvite(ctx context.Context, token string, userID int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := sqlb.Update("invites").
		Set("used_by", userID).
		Set("used_at", millis(at)).
		Where(sq.Eq{"token": token, "used_by": nil}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	if n == 0 {
		_ = tx.Rollback()
		if _, err := r.GetInvite(ctx, token); err != nil {
			return err
		}
		return core.NewInviteError(core.InviteAlreadyUsed)
	}

	res, err = sqlb.Update("users").
		Set("role", string(core.RoleMember)).
		Set("revoked_at", nil).
		Where(sq.Eq{"id": userID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("grant access: %w", err)
	}
	if err := requireAffected(res, "grant access"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Sync bookkeeping

// PendingSync returns transactions that still need exporting: pending rows
// first, then rows whose last export failed, oldest first within each.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]ports.PendingSync, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := sqlb.Select("id", "version", "created_at").From("transactions").
		Where(sq.Eq{"sync_status": []string{ports.SyncPending, ports.SyncError}}).
		OrderBy("sync_status = '"+ports.SyncError+"'", "created_at", "id").
		Limit(uint64(limit)).
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	pending := make([]ports.PendingSync, 0)
	for rows.Next() {
		var (
			p         ports.PendingSync
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkSynced marks a transaction as exported. An edit that bumped the version
// in the meantime leaves it pending.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, version int64) error {
	_, err := sqlb.Update("transactions").
		Set("sync_status", ports.SyncSynced).
		Where(sq.Eq{"id": id, "version": version}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	_, err := sqlb.Update("transactions").
		Set("sync_status", ports.SyncError).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}
