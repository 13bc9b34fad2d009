/*
Package inventory provides the per-product stock ledger.

PURPOSE:
  This package owns the quantity/reserved/buffer fields of every product.
  Nothing else in the system mutates stock. Checkout reserves, confirmation
  commits, cancellation releases, and a forced return restocks - all through
  the Ledger in this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: The stored record, ledger fields embedded
  - StockStatus: Tri-state derived status (out_of_stock/low_stock/in_stock)
  - Availability: What a read surface may show (available + status)

DESIGN PRINCIPLES:
  1. Derived, never stored: available and status are recomputed on every
     read. The persisted record holds only quantity/reserved/buffer.
  2. Single writer path: all mutations go through Ledger commands.
  3. Versioned records: optimistic concurrency via Product.Version.

SEE ALSO:
  - ledger.go: Reserve/Release/Commit/Restock commands
  - errors.go: Stock error taxonomy
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductID identifies a product and its stock ledger.
type ProductID string

// =============================================================================
// PRODUCT - Stored record with embedded ledger fields
// =============================================================================

type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       decimal.Decimal
	Active      bool

	// Flags read by the order approval policy.
	Sensitive             bool
	Fragile               bool
	RequiresRefrigeration bool

	// Ledger fields. Invariant: 0 <= Reserved <= Quantity.
	Quantity          int
	Reserved          int
	SafetyBuffer      int
	LowStockThreshold int

	// Purchase analytics, updated by Commit.
	PurchaseCount  int
	LastPurchaseAt *time.Time

	// Version for optimistic concurrency. Incremented by the store on
	// every successful stock update.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// AVAILABILITY POLICY - Pure derivation, recomputed on every read
// =============================================================================

type StockStatus string

const (
	StatusOutOfStock StockStatus = "out_of_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusInStock    StockStatus = "in_stock"
)

// Availability is the read-side view of a product's sellable stock.
type Availability struct {
	Available int
	Status    StockStatus
}

// Available computes sellable stock: quantity minus reservations minus the
// safety buffer, clamped at zero.
func Available(p Product) int {
	a := p.Quantity - p.Reserved - p.SafetyBuffer
	if a < 0 {
		return 0
	}
	return a
}

// StatusOf derives the tri-state stock status from the record.
func StatusOf(p Product) StockStatus {
	a := Available(p)
	switch {
	case a == 0:
		return StatusOutOfStock
	case a <= p.LowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// AvailabilityOf bundles both derived values for read surfaces.
func AvailabilityOf(p Product) Availability {
	return Availability{Available: Available(p), Status: StatusOf(p)}
}
