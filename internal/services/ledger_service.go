package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"

	"budgetshare/internal/core"
	"budgetshare/internal/log"
	"budgetshare/internal/metrics"
	"budgetshare/internal/ports"
)

// Procedure names as exposed over RPC.
const (
	ProcGetAllTransactions = "getAllTransactions"
	ProcAddTransaction     = "addTransaction"
	ProcUpdateTransaction  = "updateTransaction"
	ProcDeleteTransaction  = "deleteTransaction"
	ProcGetBudgets         = "getBudgets"
	ProcSetBudget          = "setBudget"
	ProcDeleteBudget       = "deleteBudget"
	ProcGetUsers           = "getUsers"
	ProcRevokeAccess       = "revokeAccess"
	ProcGenerateInviteLink = "generateInviteLink"
	ProcAcceptInvite       = "acceptInvite"
	ProcAssertAdmin        = "assertAdmin"
	ProcGetMonthSummary    = "getMonthSummary"
	ProcWhoami             = "whoami"
)

// EventPublisher announces committed transaction changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
	PublishTransactionDelete(ctx context.Context, id int64) error
}

type LedgerConfig struct {
	InviteTTL time.Duration
	// InviteURL builds the absolute accept link for a signed token.
	InviteURL func(token string) string
}

// Ledger implements the shared budget procedures on behalf of a caller.
type Ledger struct {
	store   ports.Store
	auth    *Auth
	events  EventPublisher
	invites *InviteSigner
	cfg     LedgerConfig
	logger  *log.Logger
	calls   *log.StructuredLogger
	now     func() time.Time
}

func NewLedger(store ports.Store, auth *Auth, events EventPublisher, invites *InviteSigner, cfg LedgerConfig, logger *log.Logger) *Ledger {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 72 * time.Hour
	}
	if cfg.InviteURL == nil {
		cfg.InviteURL = func(token string) string { return "/invite/" + token }
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &Ledger{
		store:   store,
		auth:    auth,
		events:  events,
		invites: invites,
		cfg:     cfg,
		logger:  logger,
		calls:   log.NewStructuredLogger(logger),
		now:     time.Now,
	}
}

// Outcome classifies an error for metrics and logs: nil is ok, errors the
// caller caused are rejected, anything else is an internal error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case IsRejection(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

// IsRejection reports whether err is a refusal rather than a failure.
func IsRejection(err error) bool {
	if core.IsValidation(err) {
		return true
	}
	if _, ok := core.AsInviteError(err); ok {
		return true
	}
	for _, target := range []error{
		core.ErrNotFound, core.ErrNotAuthenticated, core.ErrAccessDenied,
		core.ErrNotAdmin, core.ErrInvalidLogin, core.ErrEmailTaken, core.ErrCannotRevoke,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (l *Ledger) observe(ctx context.Context, procedure string, caller core.Caller, start time.Time, errp *error) {
	elapsed := time.Since(start)
	outcome := Outcome(*errp)
	metrics.ObserveCall(procedure, outcome, elapsed)
	l.calls.LogCall(ctx, procedure, caller.UserID, outcome, elapsed, *errp)
}

// user loads the caller. Unknown or anonymous callers are not authenticated.
func (l *Ledger) user(ctx context.Context, caller core.Caller) (core.User, error) {
	if caller.UserID == 0 {
		return core.User{}, core.ErrNotAuthenticated
	}
	u, err := l.store.GetUser(ctx, caller.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrNotAuthenticated
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load caller: %w", err)
	}
	return u, nil
}

func (l *Ledger) member(ctx context.Context, caller core.Caller) (core.User, error) {
	u, err := l.user(ctx, caller)
	if err != nil {
		return core.User{}, err
	}
	if !u.HasAccess() {
		return core.User{}, core.ErrAccessDenied
	}
	return u, nil
}

func (l *Ledger) admin(ctx context.Context, caller core.Caller) (core.User, error) {
	u, err := l.user(ctx, caller)
	if err != nil {
		return core.User{}, err
	}
	if !u.IsAdmin() {
		return core.User{}, core.ErrNotAdmin
	}
	return u, nil
}

func (l *Ledger) GetAllTransactions(ctx context.Context, caller core.Caller) (txs []core.Transaction, err error) {
	defer l.observe(ctx, ProcGetAllTransactions, caller, time.Now(), &err)
	if _, err = l.member(ctx, caller); err != nil {
		return nil, err
	}
	txs, err = l.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (l *Ledger) AddTransaction(ctx context.Context, caller core.Caller, in core.TransactionInput) (tx core.Transaction, err error) {
	defer l.observe(ctx, ProcAddTransaction, caller, time.Now(), &err)
	u, err := l.member(ctx, caller)
	if err != nil {
		return core.Transaction{}, err
	}
	in = normalizeInput(in)
	if err = in.Validate(); err != nil {
		return core.Transaction{}, core.Invalid(err)
	}
	tx, err = l.store.CreateTransaction(ctx, in, u.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	l.logger.InfoContext(ctx, "Transaction added",
		log.NewFields().WithUser(u.ID).WithTransaction(tx.ID, tx.Version, string(tx.Kind), tx.Category, tx.Amount.Cents).ToSlice()...)
	l.publishSync(ctx, tx)
	return tx, nil
}

func (l *Ledger) UpdateTransaction(ctx context.Context, caller core.Caller, id int64, in core.TransactionInput) (tx core.Transaction, err error) {
	defer l.observe(ctx, ProcUpdateTransaction, caller, time.Now(), &err)
	u, err := l.member(ctx, caller)
	if err != nil {
		return core.Transaction{}, err
	}
	in = normalizeInput(in)
	if err = in.Validate(); err != nil {
		return core.Transaction{}, core.Invalid(err)
	}
	tx, err = l.store.UpdateTransaction(ctx, id, in)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	l.logger.InfoContext(ctx, "Transaction updated",
		log.NewFields().WithUser(u.ID).WithTransaction(tx.ID, tx.Version, string(tx.Kind), tx.Category, tx.Amount.Cents).ToSlice()...)
	l.publishSync(ctx, tx)
	return tx, nil
}

func (l *Ledger) DeleteTransaction(ctx context.Context, caller core.Caller, id int64) (err error) {
	defer l.observe(ctx, ProcDeleteTransaction, caller, time.Now(), &err)
	u, err := l.member(ctx, caller)
	if err != nil {
		return err
	}
	if err = l.store.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete transaction: %w", err)
	}
	l.logger.InfoContext(ctx, "Transaction deleted", log.FieldUserID, u.ID, log.FieldTransactionID, id)
	l.publishDelete(ctx, id)
	return nil
}

// GetBudgets returns every budget with what was spent against it this month.
func (l *Ledger) GetBudgets(ctx context.Context, caller core.Caller) (out []core.BudgetStatus, err error) {
	defer l.observe(ctx, ProcGetBudgets, caller, time.Now(), &err)
	if _, err = l.member(ctx, caller); err != nil {
		return nil, err
	}
	budgets, err := l.store.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	from := now.With(l.now().UTC()).BeginningOfMonth()
	spent, err := l.store.SpentByCategory(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("spent by category: %w", err)
	}
	out = make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, core.ComputeBudgetStatus(b, spent[b.Category]))
	}
	return out, nil
}

func (l *Ledger) SetBudget(ctx context.Context, caller core.Caller, category string, limit core.Money) (b core.Budget, err error) {
	defer l.observe(ctx, ProcSetBudget, caller, time.Now(), &err)
	u, err := l.member(ctx, caller)
	if err != nil {
		return core.Budget{}, err
	}
	b = core.Budget{
		Category:  strings.TrimSpace(category),
		Limit:     limit,
		UpdatedBy: u.ID,
		UpdatedAt: l.now().UTC(),
	}
	if err = b.Validate(); err != nil {
		return core.Budget{}, core.Invalid(err)
	}
	b, err = l.store.UpsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	l.logger.InfoContext(ctx, "Budget set", log.FieldUserID, u.ID, log.FieldCategory, b.Category, log.FieldAmountCents, b.Limit.Cents)
	return b, nil
}

func (l *Ledger) DeleteBudget(ctx context.Context, caller core.Caller, category string) (err error) {
	defer l.observe(ctx, ProcDeleteBudget, caller, time.Now(), &err)
	u, err := l.member(ctx, caller)
	if err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if err = l.store.DeleteBudget(ctx, category); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete budget: %w", err)
	}
	l.logger.InfoContext(ctx, "Budget deleted", log.FieldUserID, u.ID, log.FieldCategory, category)
	return nil
}

// GetUsers lists the admin and members, sorted by name.
func (l *Ledger) GetUsers(ctx context.Context, caller core.Caller) (users []core.User, err error) {
	defer l.observe(ctx, ProcGetUsers, caller, time.Now(), &err)
	if _, err = l.admin(ctx, caller); err != nil {
		return nil, err
	}
	all, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users = make([]core.User, 0, len(all))
	for _, u := range all {
		if u.HasAccess() {
			users = append(users, u)
		}
	}
	return users, nil
}

// RevokeAccess removes a member's access and signs them out.
func (l *Ledger) RevokeAccess(ctx context.Context, caller core.Caller, userID int64) (err error) {
	defer l.observe(ctx, ProcRevokeAccess, caller, time.Now(), &err)
	admin, err := l.admin(ctx, caller)
	if err != nil {
		return err
	}
	if userID == admin.ID {
		return core.ErrCannotRevoke
	}
	target, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("get user: %w", err)
	}
	if target.IsAdmin() {
		return core.ErrCannotRevoke
	}

	at := l.now().UTC()
	if err = l.store.SetUserRole(ctx, userID, core.RoleNone, &at); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if l.auth != nil {
		if err = l.auth.DropUserSessions(ctx, userID); err != nil {
			return err
		}
	}
	l.logger.InfoContext(ctx, "Access revoked", log.FieldUserID, userID, "revoked_by", admin.ID)
	return nil
}

// GenerateInviteLink creates a single-use invite and returns its accept URL.
func (l *Ledger) GenerateInviteLink(ctx context.Context, caller core.Caller) (link string, err error) {
	defer l.observe(ctx, ProcGenerateInviteLink, caller, time.Now(), &err)
	admin, err := l.admin(ctx, caller)
	if err != nil {
		return "", err
	}
	created := l.now().UTC().Truncate(time.Second)
	inv := core.Invite{
		Token:     uuid.NewString(),
		CreatedBy: admin.ID,
		CreatedAt: created,
		ExpiresAt: created.Add(l.cfg.InviteTTL),
	}
	if err = l.store.CreateInvite(ctx, inv); err != nil {
		return "", fmt.Errorf("save invite: %w", err)
	}
	signed, err := l.invites.Sign(inv)
	if err != nil {
		return "", err
	}
	l.logger.InfoContext(ctx, "Invite created", log.FieldUserID, admin.ID, "expires_at", inv.ExpiresAt)
	return l.cfg.InviteURL(signed), nil
}

// AcceptInvite grants the caller member access. Rejections are checked in
// order: invalid token, expired, already a member, already used.
func (l *Ledger) AcceptInvite(ctx context.Context, caller core.Caller, token string) (err error) {
	defer l.observe(ctx, ProcAcceptInvite, caller, time.Now(), &err)
	u, err := l.user(ctx, caller)
	if err != nil {
		return err
	}
	nonce, err := l.invites.Parse(strings.TrimSpace(token))
	if err != nil {
		return err
	}
	inv, err := l.store.GetInvite(ctx, nonce)
	if errors.Is(err, core.ErrNotFound) {
		return core.NewInviteError(core.InviteInvalidToken)
	}
	if err != nil {
		return fmt.Errorf("get invite: %w", err)
	}
	at := l.now().UTC()
	if inv.Expired(at) {
		return core.NewInviteError(core.InviteExpired)
	}
	if u.HasAccess() {
		return core.NewInviteError(core.InviteAlreadyMember)
	}
	if inv.Used() {
		return core.NewInviteError(core.InviteAlreadyUsed)
	}
	if err = l.store.RedeemInvite(ctx, nonce, u.ID, at); err != nil {
		if _, ok := core.AsInviteError(err); ok {
			return err
		}
		return fmt.Errorf("redeem invite: %w", err)
	}
	l.logger.InfoContext(ctx, "Invite accepted", log.FieldUserID, u.ID, "invited_by", inv.CreatedBy)
	return nil
}

// AssertAdmin succeeds only for the admin.
func (l *Ledger) AssertAdmin(ctx context.Context, caller core.Caller) (err error) {
	defer l.observe(ctx, ProcAssertAdmin, caller, time.Now(), &err)
	_, err = l.admin(ctx, caller)
	return err
}

// Whoami returns the caller's account, whatever its role.
func (l *Ledger) Whoami(ctx context.Context, caller core.Caller) (u core.User, err error) {
	defer l.observe(ctx, ProcWhoami, caller, time.Now(), &err)
	return l.user(ctx, caller)
}

// GetMonthSummary totals income and expenses for year/month.
func (l *Ledger) GetMonthSummary(ctx context.Context, caller core.Caller, year, month int) (s core.MonthSummary, err error) {
	defer l.observe(ctx, ProcGetMonthSummary, caller, time.Now(), &err)
	if _, err = l.member(ctx, caller); err != nil {
		return core.MonthSummary{}, err
	}
	if month < 1 || month > 12 || year < 1 {
		return core.MonthSummary{}, core.Invalid(fmt.Errorf("invalid month %d-%02d", year, month))
	}
	txs, err := l.store.ListTransactions(ctx)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("list transactions: %w", err)
	}
	return core.Summarize(txs, year, month), nil
}

// CurrentMonth returns the ledger clock's year and month.
func (l *Ledger) CurrentMonth() (int, int) {
	return core.MonthOf(l.now())
}

func (l *Ledger) publishSync(ctx context.Context, tx core.Transaction) {
	if l.events == nil {
		l.logger.DebugContext(ctx, "No event publisher, skipping sync message", log.FieldTransactionID, tx.ID)
		return
	}
	if err := l.events.PublishTransactionSync(ctx, tx.ID, tx.Version); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldTransactionID, tx.ID, log.FieldVersion, tx.Version, log.FieldError, err)
	}
}

func (l *Ledger) publishDelete(ctx context.Context, id int64) {
	if l.events == nil {
		l.logger.DebugContext(ctx, "No event publisher, skipping delete message", log.FieldTransactionID, id)
		return
	}
	if err := l.events.PublishTransactionDelete(ctx, id); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish delete message", log.FieldTransactionID, id, log.FieldError, err)
	}
}

func normalizeInput(in core.TransactionInput) core.TransactionInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	return in
}
