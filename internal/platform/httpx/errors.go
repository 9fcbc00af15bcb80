// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/fieldbill/fieldbill/internal/shared"
)

// RespondError maps core error kinds to HTTP responses using RFC7807.
// Storage errors never leak: anything outside the known kinds becomes a
// bare 500 with the "internal" code.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error(), shared.ErrorCode(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), shared.ErrorCode(err))
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error(), shared.ErrorCode(err))
	case errors.Is(err, shared.ErrAlreadyBilled):
		Problem(w, http.StatusConflict, "Already Billed", err.Error(), shared.ErrorCode(err))
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error(), shared.ErrorCode(err))
	case errors.Is(err, shared.ErrInsufficientLot):
		// Internal invariant violation; surfaced as a server fault on purpose.
		Problem(w, http.StatusInternalServerError, "Internal Error", "", shared.ErrorCode(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "internal")
	}
}
