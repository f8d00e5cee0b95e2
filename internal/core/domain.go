package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleNone   Role = "none"
)

const (
	maxDescriptionLen = 200
	maxCategoryLen    = 64
	maxNameLen        = 80
)

type (
	TransactionKind string

	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Email        string
		Name         string
		PasswordHash string
		Role         Role
		CreatedAt    time.Time
		RevokedAt    *time.Time
	}

	// TransactionInput is what a caller submits when adding or updating a transaction.
	TransactionInput struct {
		Date        Date
		Description string
		Amount      Money
		Kind        TransactionKind
		Category    string
	}

	Transaction struct {
		ID          int64
		Date        Date
		Description string
		Amount      Money
		Kind        TransactionKind
		Category    string
		CreatedBy   int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Version     int64
	}

	// Budget is a monthly spending limit for one category.
	Budget struct {
		Category  string
		Limit     Money
		UpdatedBy int64
		UpdatedAt time.Time
	}

	Invite struct {
		Token     string
		CreatedBy int64
		CreatedAt time.Time
		ExpiresAt time.Time
		UsedBy    *int64
		UsedAt    *time.Time
	}

	Session struct {
		Token     string
		UserID    int64
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// Caller identifies the authenticated user on whose behalf an operation runs.
	Caller struct {
		UserID int64
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrLongDescription  = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory    = errors.New("empty category")
	ErrLongCategory     = errors.New("category too long (max 64 characters)")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrInvalidText      = errors.New("text is not valid UTF-8")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrEmptyName        = errors.New("empty name")
	ErrWeakPassword     = errors.New("password must be at least 8 characters")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k TransactionKind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Signed returns the amount with the sign implied by the kind.
func (t Transaction) Signed() int64 {
	if t.Kind == KindIncome {
		return t.Amount.Cents
	}
	return -t.Amount.Cents
}

func (in TransactionInput) Validate() error {
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	return ValidateCategory(in.Category)
}

func (b Budget) Validate() error {
	if err := ValidateCategory(b.Category); err != nil {
		return err
	}
	return b.Limit.Validate()
}

func validateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	return checkText(s, maxDescriptionLen, ErrLongDescription)
}

// ValidateCategory checks a category name used by transactions and budgets.
func ValidateCategory(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyCategory
	}
	return checkText(s, maxCategoryLen, ErrLongCategory)
}

// checkText limits s to limit characters, not bytes.
func checkText(s string, limit int, tooLong error) error {
	if !utf8.ValidString(s) {
		return ErrInvalidText
	}
	if utf8.RuneCountInString(s) > limit {
		return tooLong
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateRegistration checks the fields required to create an account.
func ValidateRegistration(email, name, password string) error {
	email = NormalizeEmail(email)
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxNameLen {
		return errors.New("name too long (max 80 characters)")
	}
	if len(password) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// HasAccess reports whether the user may read and write the shared ledger.
func (u User) HasAccess() bool {
	return u.Role == RoleAdmin || u.Role == RoleMember
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Expired reports whether the invite is past its expiry at the given instant.
func (i Invite) Expired(at time.Time) bool {
	return !at.Before(i.ExpiresAt)
}

func (i Invite) Used() bool {
	return i.UsedBy != nil
}

func (s Session) Expired(at time.Time) bool {
	return !at.Before(s.ExpiresAt)
}
