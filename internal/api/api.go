// Package api holds the JSON contract shared by the RPC endpoint and the Go client.
//
// Every procedure answers with a Result: exactly one of Ok or Err is set.
// Procedures without a return value answer {"ok": null}.
package api

import (
	"encoding/json"
	"time"

	"budgetshare/internal/core"
)

// Rejection kinds carried in Error.Kind. Invite rejections use the
// core.InviteErrorKind values verbatim.
const (
	KindNotAuthenticated = "NotAuthenticated"
	KindAccessDenied     = "AccessDenied"
	KindNotAdmin         = "NotAdmin"
	KindNotFound         = "NotFound"
	KindInvalid          = "Invalid"
	KindInvalidLogin     = "InvalidLogin"
	KindEmailTaken       = "EmailTaken"
	KindCannotRevoke     = "CannotRevoke"
	KindUnknownMethod    = "UnknownMethod"
	KindBadRequest       = "BadRequest"
	KindRateLimited      = "RateLimited"
	KindInternal         = "Internal"
)

// Paths served by the RPC transport.
const (
	PathCall     = "/api/call/"
	PathLogin    = "/api/login"
	PathRegister = "/api/register"
	PathLogout   = "/api/logout"
)

type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Result struct {
	Ok  json.RawMessage `json:"ok,omitempty"`
	Err *Error          `json:"err,omitempty"`
}

// Null is the Ok payload of procedures that return nothing.
var Null = json.RawMessage("null")

// OkResult marshals v into a successful Result.
func OkResult(v any) (Result, error) {
	if v == nil {
		return Result{Ok: Null}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Result{}, err
	}
	return Result{Ok: raw}, nil
}

func ErrResult(kind, message string) Result {
	return Result{Err: &Error{Kind: kind, Message: message}}
}

type (
	Transaction struct {
		ID          int64     `json:"id"`
		Date        string    `json:"date"`
		Description string    `json:"description"`
		AmountCents int64     `json:"amountCents"`
		Kind        string    `json:"kind"`
		Category    string    `json:"category"`
		CreatedBy   int64     `json:"createdBy"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
		Version     int64     `json:"version"`
	}

	// TransactionInput is the argument of addTransaction; Date is YYYY-MM-DD.
	TransactionInput struct {
		Date        string `json:"date"`
		Description string `json:"description"`
		AmountCents int64  `json:"amountCents"`
		Kind        string `json:"kind"`
		Category    string `json:"category"`
	}

	BudgetStatus struct {
		Category       string    `json:"category"`
		LimitCents     int64     `json:"limitCents"`
		SpentCents     int64     `json:"spentCents"`
		RemainingCents int64     `json:"remainingCents"`
		UsedPercent    int       `json:"usedPercent"`
		Over           bool      `json:"over"`
		UpdatedBy      int64     `json:"updatedBy"`
		UpdatedAt      time.Time `json:"updatedAt"`
	}

	Budget struct {
		Category   string    `json:"category"`
		LimitCents int64     `json:"limitCents"`
		UpdatedBy  int64     `json:"updatedBy"`
		UpdatedAt  time.Time `json:"updatedAt"`
	}

	User struct {
		ID        int64      `json:"id"`
		Email     string     `json:"email"`
		Name      string     `json:"name"`
		Role      string     `json:"role"`
		CreatedAt time.Time  `json:"createdAt"`
		RevokedAt *time.Time `json:"revokedAt,omitempty"`
	}

	CategoryAmount struct {
		Name        string `json:"name"`
		AmountCents int64  `json:"amountCents"`
	}

	MonthSummary struct {
		Year          int              `json:"year"`
		Month         int              `json:"month"`
		IncomeCents   int64            `json:"incomeCents"`
		ExpensesCents int64            `json:"expensesCents"`
		NetCents      int64            `json:"netCents"`
		ByCategory    []CategoryAmount `json:"byCategory"`
	}

	Session struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
		User      User      `json:"user"`
	}

	InviteLink struct {
		URL string `json:"url"`
	}
)

// Procedure arguments.
type (
	IDArgs struct {
		ID int64 `json:"id"`
	}

	UpdateTransactionArgs struct {
		ID    int64            `json:"id"`
		Input TransactionInput `json:"input"`
	}

	SetBudgetArgs struct {
		Category   string `json:"category"`
		LimitCents int64  `json:"limitCents"`
	}

	CategoryArgs struct {
		Category string `json:"category"`
	}

	UserArgs struct {
		UserID int64 `json:"userId"`
	}

	TokenArgs struct {
		Token string `json:"token"`
	}

	MonthArgs struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}

	LoginArgs struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	RegisterArgs struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
)

func FromTransaction(t core.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		Date:        t.Date.String(),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Kind:        string(t.Kind),
		Category:    t.Category,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
	}
}

func FromTransactions(txs []core.Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, FromTransaction(t))
	}
	return out
}

// ToCore converts the wire input. A malformed date is a validation error.
func (in TransactionInput) ToCore() (core.TransactionInput, error) {
	d, err := core.ParseDate(in.Date)
	if err != nil {
		return core.TransactionInput{}, core.Invalid(err)
	}
	return core.TransactionInput{
		Date:        d,
		Description: in.Description,
		Amount:      core.Money{Cents: in.AmountCents},
		Kind:        core.TransactionKind(in.Kind),
		Category:    in.Category,
	}, nil
}

func FromBudgetStatuses(in []core.BudgetStatus) []BudgetStatus {
	out := make([]BudgetStatus, 0, len(in))
	for _, b := range in {
		out = append(out, BudgetStatus{
			Category:       b.Category,
			LimitCents:     b.Limit.Cents,
			SpentCents:     b.Spent.Cents,
			RemainingCents: b.Remaining,
			UsedPercent:    b.UsedPercent,
			Over:           b.Over,
			UpdatedBy:      b.UpdatedBy,
			UpdatedAt:      b.UpdatedAt,
		})
	}
	return out
}

func FromBudget(b core.Budget) Budget {
	return Budget{Category: b.Category, LimitCents: b.Limit.Cents, UpdatedBy: b.UpdatedBy, UpdatedAt: b.UpdatedAt}
}

func FromUser(u core.User) User {
	return User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		RevokedAt: u.RevokedAt,
	}
}

func FromUsers(users []core.User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, FromUser(u))
	}
	return out
}

func FromSummary(s core.MonthSummary) MonthSummary {
	out := MonthSummary{
		Year:          s.Year,
		Month:         s.Month,
		IncomeCents:   s.Income.Cents,
		ExpensesCents: s.Expenses.Cents,
		NetCents:      s.Net,
		ByCategory:    make([]CategoryAmount, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, CategoryAmount{Name: c.Name, AmountCents: c.Amount.Cents})
	}
	return out
}
