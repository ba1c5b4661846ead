package domain

import "errors"

// Validation kinds. Engine functions wrap these with fmt.Errorf("%w: ...") so
// callers can branch with errors.Is and still show the detail to the user.
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNoParties       = errors.New("no parties to prorate across")
	ErrPlanClosed      = errors.New("plan is closed")
	ErrInconsistentTax = errors.New("inconsistent tax")
	ErrInvalidTerm     = errors.New("invalid payment term")
	ErrInvalidInput    = errors.New("invalid input")

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSettlementRequired = errors.New("settlement reference required")
	ErrNotFound           = errors.New("not found")
)

// IsValidation reports whether err is a caller input problem rather than a
// system failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNoParties) ||
		errors.Is(err, ErrPlanClosed) ||
		errors.Is(err, ErrInconsistentTax) ||
		errors.Is(err, ErrInvalidTerm) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSettlementRequired)
}
