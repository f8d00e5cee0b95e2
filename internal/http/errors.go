package http

import (
	"errors"
	"net/http"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
)

// genericFailure is shown for anything that is not the caller's fault.
const genericFailure = "Something went wrong. Please try again."

var errBadArguments = errors.New("malformed arguments")

// classify maps a ledger error onto an HTTP status and a wire rejection.
// Internal errors never leak their text.
func classify(err error) (int, api.Error) {
	if ie, ok := core.AsInviteError(err); ok {
		return http.StatusUnprocessableEntity, api.Error{Kind: string(ie.Kind), Message: ie.Kind.Message()}
	}
	if core.IsValidation(err) {
		return http.StatusUnprocessableEntity, api.Error{Kind: api.KindInvalid, Message: err.Error()}
	}

	switch {
	case errors.Is(err, errBadArguments):
		return http.StatusBadRequest, api.Error{Kind: api.KindBadRequest, Message: err.Error()}
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized, api.Error{Kind: api.KindNotAuthenticated, Message: "Please sign in."}
	case errors.Is(err, core.ErrInvalidLogin):
		return http.StatusUnauthorized, api.Error{Kind: api.KindInvalidLogin, Message: "Wrong email or password."}
	case errors.Is(err, core.ErrAccessDenied):
		return http.StatusForbidden, api.Error{Kind: api.KindAccessDenied, Message: "You do not have access to this budget yet."}
	case errors.Is(err, core.ErrNotAdmin):
		return http.StatusForbidden, api.Error{Kind: api.KindNotAdmin, Message: "Only the admin can do that."}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, api.Error{Kind: api.KindNotFound, Message: "Not found."}
	case errors.Is(err, core.ErrEmailTaken):
		return http.StatusConflict, api.Error{Kind: api.KindEmailTaken, Message: "That email is already registered."}
	case errors.Is(err, core.ErrCannotRevoke):
		return http.StatusConflict, api.Error{Kind: api.KindCannotRevoke, Message: "You cannot revoke that user."}
	default:
		return http.StatusInternalServerError, api.Error{Kind: api.KindInternal, Message: genericFailure}
	}
}
