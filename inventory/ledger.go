/*
ledger.go - Atomic stock commands over versioned product records

PURPOSE:
  The Ledger is the only mutator of a product's stock fields. Each command
  is a single atomic read-modify-write against one product record, enforced
  with optimistic versioning and a bounded retry loop.

COMMANDS:
  Reserve: hold stock for an in-flight checkout
  Release: give a hold back (saturates at zero, safe to call twice)
  Commit:  convert a hold into a permanent deduction (order confirmed)
  Restock: undo a prior commit (forced return after failed deliveries)
  Deduct:  undo a prior restock (compensation only)

CONCURRENCY CONTRACT:
  Two concurrent reserves on the same product must never jointly exceed
  quantity - safetyBuffer. A losing writer re-reads fresh state and
  re-checks availability before retrying. Lock scope is always exactly one
  product record, so multi-item checkouts cannot deadlock across products.
  When the retry budget is exhausted the command fails with ErrConflict
  rather than stalling; the caller retries the whole operation.

WHY OPTIMISTIC?
  The hot path is short (integer arithmetic between one read and one
  write), so conflicts are cheap to retry. A pessimistic per-row lock
  would be equally correct; the Store interface permits either.

SEE ALSO:
  - types.go: Product record and availability derivation
  - store/memory.go, store/sqlite: StockStore implementations
*/
package inventory

import (
	"context"
	"errors"
	"log"
	"time"
)

// =============================================================================
// STOCK STORE - Persistence interface (one record at a time)
// =============================================================================

// StockStore persists product records with compare-and-swap semantics.
type StockStore interface {
	// GetProduct returns the product or ErrProductNotFound.
	GetProduct(ctx context.Context, id ProductID) (Product, error)

	// PutProduct creates or replaces a product record unconditionally.
	// Used for catalog management, never for stock mutation.
	PutProduct(ctx context.Context, p Product) error

	// UpdateStock writes the record iff the stored version still equals
	// p.Version, then increments the version. Returns ErrVersionConflict
	// when another writer got there first.
	UpdateStock(ctx context.Context, p Product) error
}

// =============================================================================
// LEDGER - The single stock mutation path
// =============================================================================

const defaultMaxRetries = 5

type Ledger struct {
	store      StockStore
	maxRetries int
}

func NewLedger(store StockStore) *Ledger {
	return &Ledger{store: store, maxRetries: defaultMaxRetries}
}

// Availability returns the derived availability for a product.
func (l *Ledger) Availability(ctx context.Context, id ProductID) (Availability, error) {
	p, err := l.store.GetProduct(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	return AvailabilityOf(p), nil
}

// Reserve holds qty units against in-flight checkout. Fails with
// InsufficientStockError when sellable stock is short.
func (l *Ledger) Reserve(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.update(ctx, id, func(p *Product) error {
		if avail := Available(*p); avail < qty {
			return &InsufficientStockError{ProductID: id, Requested: qty, Available: avail}
		}
		p.Reserved += qty
		return nil
	})
}

// Release gives a reservation back. Saturates at zero: releasing more than
// is currently reserved is not an error, because compensation paths and a
// later explicit cancellation may both release the same hold.
func (l *Ledger) Release(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.update(ctx, id, func(p *Product) error {
		if p.Reserved < qty {
			// Saturation is deliberate, but worth operational visibility.
			log.Printf("[Ledger] over-release on %s: reserved %d, releasing %d (clamped)",
				id, p.Reserved, qty)
			p.Reserved = 0
			return nil
		}
		p.Reserved -= qty
		return nil
	})
}

// Commit converts a reservation into a permanent deduction and records the
// purchase for analytics. Fails with InsufficientStockError if physical
// quantity is short (which indicates a bookkeeping bug upstream).
func (l *Ledger) Commit(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.update(ctx, id, func(p *Product) error {
		if p.Quantity < qty {
			return &InsufficientStockError{ProductID: id, Requested: qty, Available: p.Quantity}
		}
		p.Quantity -= qty
		p.Reserved -= qty
		if p.Reserved < 0 {
			p.Reserved = 0
		}
		p.PurchaseCount += qty
		now := time.Now().UTC()
		p.LastPurchaseAt = &now
		return nil
	})
}

// Restock returns previously committed units to physical stock. Used when
// a confirmed order comes back after repeated failed delivery attempts.
func (l *Ledger) Restock(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.update(ctx, id, func(p *Product) error {
		p.Quantity += qty
		return nil
	})
}

// Deduct removes units from physical stock without touching holds or
// purchase analytics. The inverse of Restock, used only to compensate a
// partial restock.
func (l *Ledger) Deduct(ctx context.Context, id ProductID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.update(ctx, id, func(p *Product) error {
		if p.Quantity < qty {
			return &InsufficientStockError{ProductID: id, Requested: qty, Available: p.Quantity}
		}
		p.Quantity -= qty
		return nil
	})
}

// update runs the read-check-write loop with bounded retries. mutate sees a
// fresh snapshot on every attempt; returning an error aborts without write.
func (l *Ledger) update(ctx context.Context, id ProductID, mutate func(*Product) error) error {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		p, err := l.store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		err = l.store.UpdateStock(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return &ConflictError{ProductID: id, Attempts: l.maxRetries}
}
