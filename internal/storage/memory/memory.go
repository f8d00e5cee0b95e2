// Package memory is an in-process ports.Store used for the memory backend and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"budgetshare/internal/core"
	"budgetshare/internal/ports"
)

type txRecord struct {
	tx         core.Transaction
	syncStatus string
}

type Store struct {
	mu       sync.Mutex
	users    map[int64]core.User
	sessions map[string]core.Session
	txs      map[int64]*txRecord
	budgets  map[string]core.Budget
	invites  map[string]core.Invite
	nextUser int64
	nextTx   int64
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    map[int64]core.User{},
		sessions: map[string]core.Session{},
		txs:      map[int64]*txRecord{},
		budgets:  map[string]core.Budget{},
		invites:  map[string]core.Invite{},
	}
}

// NewFromFiles seeds budgets from base/seed_budgets.txt, one "Category=amount"
// per line. A missing file yields an empty store.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_budgets.txt")) {
		cat, amount, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cents, err := core.ParseDecimalToCents(amount)
		if err != nil {
			continue
		}
		b := core.Budget{Category: strings.TrimSpace(cat), Limit: core.Money{Cents: cents}, UpdatedAt: time.Now().UTC()}
		if b.Validate() == nil {
			s.budgets[b.Category] = b
		}
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.User{}, core.ErrEmailTaken
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *Store) SetUserRole(_ context.Context, id int64, role core.Role, revokedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.Role = role
	u.RevokedAt = revokedAt
	s.users[id] = u
	return nil
}

// Sessions

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, core.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			tokens = append(tokens, token)
			delete(s.sessions, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, sess := range s.sessions {
		if sess.Expired(before) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// Transactions

func applyInput(t *core.Transaction, in core.TransactionInput) {
	t.Date = in.Date
	t.Description = in.Description
	t.Amount = in.Amount
	t.Kind = in.Kind
	t.Category = in.Category
}

func (s *Store) CreateTransaction(_ context.Context, in core.TransactionInput, createdBy int64) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTx++
	now := time.Now().UTC()
	t := core.Transaction{ID: s.nextTx, CreatedBy: createdBy, CreatedAt: now, UpdatedAt: now, Version: 1}
	applyInput(&t, in)
	s.txs[t.ID] = &txRecord{tx: t, syncStatus: ports.SyncPending}
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return rec.tx, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, rec := range s.txs {
		out = append(out, rec.tx)
	}
	s.mu.Unlock()
	core.SortTransactions(out)
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	applyInput(&rec.tx, in)
	rec.tx.Version++
	rec.tx.UpdatedAt = time.Now().UTC()
	rec.syncStatus = ports.SyncPending
	return rec.tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) SpentByCategory(_ context.Context, from, to time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spent := map[string]int64{}
	for _, rec := range s.txs {
		t := rec.tx
		if t.Kind != core.KindExpense || t.Date.Before(from) || !t.Date.Before(to) {
			continue
		}
		spent[t.Category] += t.Amount.Cents
	}
	return spent, nil
}

// Budgets

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.Category] = b
	return b, nil
}

func (s *Store) DeleteBudget(_ context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[category]; !ok {
		return core.ErrNotFound
	}
	delete(s.budgets, category)
	return nil
}

// Invites

func (s *Store) CreateInvite(_ context.Context, inv core.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[inv.Token] = inv
	return nil
}

func (s *Store) GetInvite(_ context.Context, token string) (core.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok {
		return core.Invite{}, core.ErrNotFound
	}
	return inv, nil
}

func (s *Store) RedeemInvite(_ context.Context, token string, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok {
		return core.ErrNotFound
	}
	if inv.Used() {
		return core.NewInviteError(core.InviteAlreadyUsed)
	}
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	inv.UsedBy = &userID
	inv.UsedAt = &at
	s.invites[token] = inv
	u.Role = core.RoleMember
	u.RevokedAt = nil
	s.users[userID] = u
	return nil
}

// Sync bookkeeping

func (s *Store) PendingSync(_ context.Context, limit int) ([]ports.PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.PendingSync, 0)
	failed := make(map[int64]bool)
	for _, rec := range s.txs {
		switch rec.syncStatus {
		case ports.SyncError:
			failed[rec.tx.ID] = true
		case ports.SyncPending:
		default:
			continue
		}
		out = append(out, ports.PendingSync{ID: rec.tx.ID, Version: rec.tx.Version, CreatedAt: rec.tx.CreatedAt})
	}
	// Failed exports are retried after the never-tried ones.
	sort.Slice(out, func(i, j int) bool {
		if failed[out[i].ID] != failed[out[j].ID] {
			return !failed[out[i].ID]
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.txs[id]; ok && rec.tx.Version == version {
		rec.syncStatus = ports.SyncSynced
	}
	return nil
}

func (s *Store) MarkSyncError(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.txs[id]; ok {
		rec.syncStatus = ports.SyncError
	}
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
