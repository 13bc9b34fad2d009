/*
errors.go - Order-level error taxonomy

PURPOSE:
  Sentinels and structured errors surfaced by admission and the state
  machine. Stock-level errors (insufficient stock, contention) come from
  the inventory package and pass through unchanged; the helpers here fold
  both packages into one caller-facing taxonomy.

TAXONOMY (see also inventory/errors.go):
  validation: malformed request, rejected before any mutation
  capacity:   InsufficientStock, DailyCapReached - full rollback first
  state:      InvalidTransition, OrderNotFound - order untouched
  contention: Conflict - retry the whole operation from scratch
*/
package orders

import (
	"errors"
	"fmt"

	"github.com/campo-vida/order-engine/inventory"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOrderNotFound is returned when a referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrCustomerNotFound is returned when a referenced customer doesn't exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrInvalidTransition is returned for a status move not in the table.
	// The order is left unmodified.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDailyCapReached is returned when today's delivery-order budget is
	// exhausted. No side effects were performed.
	ErrDailyCapReached = errors.New("daily delivery cap reached")

	// ErrOutsideBusinessHours is returned by the API boundary when the shop
	// is closed. Admission itself assumes the gate already passed.
	ErrOutsideBusinessHours = errors.New("outside business hours")

	// ErrEmptyOrder is returned for a checkout with no line items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrVersionConflict is returned by OrderStore when an optimistic update
	// lost the race. The state machine retries; callers normally never see it.
	ErrVersionConflict = errors.New("order version conflict")

	// ErrConflict is returned when the transition retry budget is exhausted.
	// The whole operation should be retried from scratch by the caller.
	ErrConflict = errors.New("order contention, retry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports current vs attempted status.
type InvalidTransitionError struct {
	OrderID OrderID
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// DailyCapError reports the configured cap that was hit.
type DailyCapError struct {
	Cap int
	Day string
}

func (e *DailyCapError) Error() string {
	return fmt.Sprintf("daily delivery cap of %d reached for %s", e.Cap, e.Day)
}

func (e *DailyCapError) Unwrap() error {
	return ErrDailyCapReached
}

// ConflictError reports an order whose record stayed contended past the
// transition retry budget.
type ConflictError struct {
	OrderID  OrderID
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("contention on order %s after %d attempts", e.OrderID, e.Attempts)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole operation might succeed if retried
// from scratch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrVersionConflict) ||
		inventory.IsRetryable(err)
}

// IsClientError returns true if the error is due to the request rather than
// the system: the caller should not retry unchanged.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDailyCapReached) ||
		errors.Is(err, ErrOutsideBusinessHours) ||
		errors.Is(err, ErrEmptyOrder) ||
		errors.Is(err, inventory.ErrInsufficientStock) ||
		errors.Is(err, inventory.ErrProductInactive) ||
		errors.Is(err, inventory.ErrInvalidQuantity)
}

// IsNotFound returns true if the error indicates a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		inventory.IsNotFound(err)
}
