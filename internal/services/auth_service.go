package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"budgetshare/internal/cache"
	"budgetshare/internal/core"
	"budgetshare/internal/log"
	"budgetshare/internal/ports"
)

// AuthStore is the storage Auth needs.
type AuthStore interface {
	ports.UserStore
	ports.SessionStore
}

type AuthConfig struct {
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Auth owns accounts and sessions. Ledger procedures receive the
// caller it resolves from a session token.
type Auth struct {
	store    AuthStore
	sessions cache.Cache[core.Session]
	ttl      time.Duration
	cost     int
	logger   *log.Logger

	now      func() time.Time
	newToken func() string

	// Serializes the count-then-create of the first admin.
	registerMu sync.Mutex
}

func NewAuth(store AuthStore, sessions cache.Cache[core.Session], cfg AuthConfig, logger *log.Logger) *Auth {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if sessions == nil {
		sessions = cache.NewLRUCache[core.Session](1000, cfg.SessionTTL)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Auth{
		store:    store,
		sessions: sessions,
		ttl:      cfg.SessionTTL,
		cost:     cfg.BcryptCost,
		logger:   logger.WithComponent(log.ComponentAuth),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Register creates an account. The first account ever created is the admin;
// everyone else starts without access until they accept an invite.
func (a *Auth) Register(ctx context.Context, email, name, password string) (core.User, error) {
	if err := core.ValidateRegistration(email, name, password); err != nil {
		return core.User{}, core.Invalid(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	a.registerMu.Lock()
	defer a.registerMu.Unlock()

	n, err := a.store.CountUsers(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("count users: %w", err)
	}
	role := core.RoleNone
	if n == 0 {
		role = core.RoleAdmin
	}

	u, err := a.store.CreateUser(ctx, core.User{
		Email:        core.NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    a.now().UTC(),
	})
	if err != nil {
		return core.User{}, err
	}
	a.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID, "role", u.Role)
	return u, nil
}

// Login checks credentials and opens a session.
func (a *Auth) Login(ctx context.Context, email, password string) (core.Session, core.User, error) {
	u, err := a.store.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if errors.Is(err, core.ErrNotFound) {
		return core.Session{}, core.User{}, core.ErrInvalidLogin
	}
	if err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		a.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return core.Session{}, core.User{}, core.ErrInvalidLogin
	}

	now := a.now().UTC()
	sess := core.Session{
		Token:     a.newToken(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return core.Session{}, core.User{}, fmt.Errorf("create session: %w", err)
	}
	a.sessions.SetWithTTL(sess.Token, sess, a.ttl)
	a.logger.InfoContext(ctx, "User logged in", log.FieldUserID, u.ID)
	return sess, u, nil
}

func (a *Auth) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	a.sessions.Delete(token)
	if err := a.store.DeleteSession(ctx, token); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its user. Any failure to find
// a live session is ErrNotAuthenticated.
func (a *Auth) Authenticate(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, core.ErrNotAuthenticated
	}
	now := a.now()

	sess, ok := a.sessions.Get(token)
	if !ok {
		var err error
		sess, err = a.store.GetSession(ctx, token)
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, core.ErrNotAuthenticated
		}
		if err != nil {
			return core.User{}, fmt.Errorf("get session: %w", err)
		}
		if !sess.Expired(now) {
			a.sessions.SetWithTTL(token, sess, sess.ExpiresAt.Sub(now))
		}
	}
	if sess.Expired(now) {
		a.sessions.Delete(token)
		_ = a.store.DeleteSession(ctx, token)
		return core.User{}, core.ErrNotAuthenticated
	}

	u, err := a.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, core.ErrNotFound) {
		a.sessions.Delete(token)
		return core.User{}, core.ErrNotAuthenticated
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// DropUserSessions signs a user out everywhere.
func (a *Auth) DropUserSessions(ctx context.Context, userID int64) error {
	tokens, err := a.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	for _, t := range tokens {
		a.sessions.Delete(t)
	}
	a.logger.InfoContext(ctx, "Dropped user sessions", log.FieldUserID, userID, "count", len(tokens))
	return nil
}

// PurgeExpired removes sessions that expired before now.
func (a *Auth) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := a.store.DeleteExpiredSessions(ctx, a.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		a.logger.DebugContext(ctx, "Purged expired sessions", "count", n)
	}
	return n, nil
}
