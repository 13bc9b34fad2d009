/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All stock-level error types in one place for consistency and
  discoverability. The orders package wraps these with order context.

ERROR CATEGORIES:
  1. Capacity errors - Not enough sellable stock (InsufficientStock)
  2. Lookup errors - Unknown or disabled products
  3. Contention errors - Optimistic update lost too many races (Conflict)

USAGE:
  Callers should branch with errors.Is():

    if errors.Is(err, inventory.ErrInsufficientStock) {
        // reject checkout, reservation rollback already done
    }

SEE ALSO:
  - ledger.go: Produces these errors
  - orders/errors.go: Order-level taxonomy built on top
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a reserve or commit asks for more
	// than the product can sell right now.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrProductNotFound is returned when a referenced product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductInactive is returned when a product exists but is disabled
	// for sale.
	ErrProductInactive = errors.New("product inactive")

	// ErrVersionConflict is returned by StockStore when an optimistic update
	// lost the race. The ledger retries; callers normally never see it.
	ErrVersionConflict = errors.New("stock version conflict")

	// ErrConflict is returned when the contention retry budget is exhausted.
	// The whole operation should be retried from scratch by the caller.
	ErrConflict = errors.New("stock contention, retry")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports exactly how short the product is, so the
// caller can render an actionable message without re-querying state.
type InsufficientStockError struct {
	ProductID ProductID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ConflictError reports a product whose ledger stayed contended past the
// retry budget.
type ConflictError struct {
	ProductID ProductID
	Attempts  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stock contention on %s after %d attempts", e.ProductID, e.Attempts)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrVersionConflict)
}

// IsNotFound returns true if the error indicates a missing product.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}
