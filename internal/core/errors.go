package core

import "errors"

// Errors returned by ledger operations. Transports map them to status codes
// and rejection kinds.
var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotAdmin         = errors.New("admin privileges required")
	ErrInvalidLogin     = errors.New("invalid email or password")
	ErrEmailTaken       = errors.New("email already registered")
	ErrCannotRevoke     = errors.New("cannot revoke access of an admin or yourself")
)

// InviteErrorKind enumerates the ways acceptInvite can reject a token.
type InviteErrorKind string

const (
	InviteInvalidToken  InviteErrorKind = "InvalidToken"
	InviteExpired       InviteErrorKind = "Expired"
	InviteAlreadyUsed   InviteErrorKind = "AlreadyUsed"
	InviteAlreadyMember InviteErrorKind = "AlreadyMember"
)

var inviteMessages = map[InviteErrorKind]string{
	InviteInvalidToken:  "This invite link is not valid.",
	InviteExpired:       "This invite link has expired. Ask for a new one.",
	InviteAlreadyUsed:   "This invite link has already been used.",
	InviteAlreadyMember: "You already have access to this budget.",
}

// Message returns the user-facing text for the kind.
func (k InviteErrorKind) Message() string {
	if m, ok := inviteMessages[k]; ok {
		return m
	}
	return "Unable to accept invite."
}

// InviteErrorKinds lists every known kind.
func InviteErrorKinds() []InviteErrorKind {
	return []InviteErrorKind{InviteInvalidToken, InviteExpired, InviteAlreadyUsed, InviteAlreadyMember}
}

// ParseInviteErrorKind maps a wire value back to a kind.
func ParseInviteErrorKind(s string) (InviteErrorKind, bool) {
	k := InviteErrorKind(s)
	_, ok := inviteMessages[k]
	return k, ok
}

type InviteError struct {
	Kind InviteErrorKind
}

func (e *InviteError) Error() string {
	return "invite rejected: " + string(e.Kind)
}

// NewInviteError builds a rejection of the given kind.
func NewInviteError(kind InviteErrorKind) error {
	return &InviteError{Kind: kind}
}

// AsInviteError extracts an InviteError from err's chain.
func AsInviteError(err error) (*InviteError, bool) {
	var ie *InviteError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// ValidationError wraps a field validation failure.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError; nil stays nil.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
