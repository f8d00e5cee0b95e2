// Package client calls a budgetshare server over its JSON RPC endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
	"budgetshare/internal/services"
)

const maxResponseBytes = 4 << 20

// RejectError is a rejection returned by the server.
type RejectError struct {
	Status  int
	Kind    string
	Message string
}

func (e *RejectError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Message
}

var kindSentinels = map[string]error{
	api.KindNotAuthenticated: core.ErrNotAuthenticated,
	api.KindAccessDenied:     core.ErrAccessDenied,
	api.KindNotAdmin:         core.ErrNotAdmin,
	api.KindNotFound:         core.ErrNotFound,
	api.KindInvalidLogin:     core.ErrInvalidLogin,
	api.KindEmailTaken:       core.ErrEmailTaken,
	api.KindCannotRevoke:     core.ErrCannotRevoke,
}

// Is lets callers match rejections against the core sentinel errors.
func (e *RejectError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// InviteKind reports the invite rejection kind, if this is one.
func (e *RejectError) InviteKind() (core.InviteErrorKind, bool) {
	return core.ParseInviteErrorKind(e.Kind)
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default traced client.
	HTTPClient *http.Client
}

// Actor performs ledger procedures as the holder of a session token.
type Actor struct {
	base  string
	token string
	http  *http.Client
}

func New(cfg Config) *Actor {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Actor{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  hc,
	}
}

// Token returns the session token the actor sends, if any.
func (a *Actor) Token() string { return a.token }

// post sends args to path and decodes the ok value into out (which may be nil).
func (a *Actor) post(ctx context.Context, path string, args, out any) error {
	var body io.Reader = http.NoBody
	if args != nil {
		buf, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode arguments: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var res api.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("unexpected response from %s (status %d): %w", path, resp.StatusCode, err)
	}
	if res.Err != nil {
		return &RejectError{Status: resp.StatusCode, Kind: res.Err.Kind, Message: res.Err.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if out == nil || len(res.Ok) == 0 || bytes.Equal(res.Ok, api.Null) {
		return nil
	}
	if err := json.Unmarshal(res.Ok, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (a *Actor) call(ctx context.Context, method string, args, out any) error {
	return a.post(ctx, api.PathCall+method, args, out)
}

// Login opens a session; the actor uses its token from then on.
func (a *Actor) Login(ctx context.Context, email, password string) (api.Session, error) {
	var sess api.Session
	if err := a.post(ctx, api.PathLogin, api.LoginArgs{Email: email, Password: password}, &sess); err != nil {
		return api.Session{}, err
	}
	a.token = sess.Token
	return sess, nil
}

func (a *Actor) Register(ctx context.Context, email, name, password string) (api.User, error) {
	var u api.User
	err := a.post(ctx, api.PathRegister, api.RegisterArgs{Email: email, Name: name, Password: password}, &u)
	return u, err
}

// Logout ends the session and forgets the token.
func (a *Actor) Logout(ctx context.Context) error {
	if a.token == "" {
		return nil
	}
	err := a.post(ctx, api.PathLogout, nil, nil)
	if err == nil || errors.Is(err, core.ErrNotAuthenticated) {
		a.token = ""
		return nil
	}
	return err
}

func (a *Actor) GetAllTransactions(ctx context.Context) ([]api.Transaction, error) {
	var out []api.Transaction
	err := a.call(ctx, services.ProcGetAllTransactions, nil, &out)
	return out, err
}

func (a *Actor) AddTransaction(ctx context.Context, in api.TransactionInput) (api.Transaction, error) {
	var out api.Transaction
	err := a.call(ctx, services.ProcAddTransaction, in, &out)
	return out, err
}

func (a *Actor) UpdateTransaction(ctx context.Context, id int64, in api.TransactionInput) (api.Transaction, error) {
	var out api.Transaction
	err := a.call(ctx, services.ProcUpdateTransaction, api.UpdateTransactionArgs{ID: id, Input: in}, &out)
	return out, err
}

func (a *Actor) DeleteTransaction(ctx context.Context, id int64) error {
	return a.call(ctx, services.ProcDeleteTransaction, api.IDArgs{ID: id}, nil)
}

func (a *Actor) GetBudgets(ctx context.Context) ([]api.BudgetStatus, error) {
	var out []api.BudgetStatus
	err := a.call(ctx, services.ProcGetBudgets, nil, &out)
	return out, err
}

func (a *Actor) SetBudget(ctx context.Context, category string, limitCents int64) (api.Budget, error) {
	var out api.Budget
	err := a.call(ctx, services.ProcSetBudget, api.SetBudgetArgs{Category: category, LimitCents: limitCents}, &out)
	return out, err
}

func (a *Actor) DeleteBudget(ctx context.Context, category string) error {
	return a.call(ctx, services.ProcDeleteBudget, api.CategoryArgs{Category: category}, nil)
}

func (a *Actor) GetUsers(ctx context.Context) ([]api.User, error) {
	var out []api.User
	err := a.call(ctx, services.ProcGetUsers, nil, &out)
	return out, err
}

func (a *Actor) RevokeAccess(ctx context.Context, userID int64) error {
	return a.call(ctx, services.ProcRevokeAccess, api.UserArgs{UserID: userID}, nil)
}

func (a *Actor) GenerateInviteLink(ctx context.Context) (string, error) {
	var out api.InviteLink
	err := a.call(ctx, services.ProcGenerateInviteLink, nil, &out)
	return out.URL, err
}

// AcceptInvite takes either a bare token or the full invite link.
func (a *Actor) AcceptInvite(ctx context.Context, tokenOrLink string) error {
	token := tokenOrLink
	if i := strings.LastIndex(token, "/invite/"); i >= 0 {
		token = token[i+len("/invite/"):]
	}
	return a.call(ctx, services.ProcAcceptInvite, api.TokenArgs{Token: strings.TrimSpace(token)}, nil)
}

func (a *Actor) AssertAdmin(ctx context.Context) error {
	return a.call(ctx, services.ProcAssertAdmin, nil, nil)
}

func (a *Actor) Whoami(ctx context.Context) (api.User, error) {
	var out api.User
	err := a.call(ctx, services.ProcWhoami, nil, &out)
	return out, err
}

// GetMonthSummary totals a month; zero year and month mean the current one.
func (a *Actor) GetMonthSummary(ctx context.Context, year, month int) (api.MonthSummary, error) {
	var out api.MonthSummary
	err := a.call(ctx, services.ProcGetMonthSummary, api.MonthArgs{Year: year, Month: month}, &out)
	return out, err
}
