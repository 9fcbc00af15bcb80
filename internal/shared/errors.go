package shared

import "errors"

var (
	// ErrValidation indicates malformed input such as a non-positive quantity or cost.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates an issue or negative adjustment exceeds on-hand quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientLot indicates a lot decrement exceeded the lot's remaining quantity.
	// Seeing it means the depletion engine was bypassed; callers must treat it as a programming error.
	ErrInsufficientLot = errors.New("insufficient lot quantity")
	// ErrAlreadyBilled indicates a billing source is already referenced by an invoice line.
	ErrAlreadyBilled = errors.New("source already billed")
	// ErrInvalidTransition indicates an illegal invoice state change.
	ErrInvalidTransition = errors.New("invalid invoice transition")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// ErrorCode maps a core error kind to its stable symbolic code. The API layer
// surfaces these codes; raw storage errors collapse to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInsufficientLot):
		return "insufficient_lot"
	case errors.Is(err, ErrAlreadyBilled):
		return "already_billed"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
