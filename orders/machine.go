/*
machine.go - The order state machine

PURPOSE:
  Owns every status change. Validates the move against the transition
  table, appends exactly one history entry per executed transition (two for
  the forced return below), and runs the side effects coupled to specific
  destinations. All stock movement and customer counter updates that used
  to be scattered across call sites live here.

TRANSITION-COUPLED SIDE EFFECTS:
  -> confirmed:  commit every item's reservation; a GCash payment grows the
                 customer's success counter and rederives COD eligibility
  -> cancelled:  release every item still holding a reservation
  -> failed:     count the delivery attempt; the second failure forces the
                 order to returned and restocks every item
  -> delivered:  a COD order is marked settled with the collected amount

CONCURRENCY:
  Orders are versioned like products. A transition first claims the move
  by writing the transitioned record through the store's version check;
  only the claim winner runs stock side effects, so two writers racing
  from the same status can never double-commit or double-release. The
  loser re-reads and re-validates against whatever the winner wrote.
  When the retry budget is exhausted the transition fails with
  ErrConflict instead of stalling.

COMPENSATION:
  A side effect that fails after the claim restores the pre-transition
  record, and a partial ledger walk is rolled back item by item first.
  Either way the error surfaces only after the ledgers are consistent
  again.

NOTIFICATIONS:
  Dispatched after a committed transition, fire-and-forget. A notify
  failure is logged and never rolls back the transition.

SEE ALSO:
  - status.go: The transition table
  - admission.go: Creates orders; shares the confirm side effects for
    pickup orders that start life confirmed
*/
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/campo-vida/order-engine/inventory"
)

// maxDeliveryAttempts: the failure count at which an order is forced to
// returned and its stock put back on the shelf.
const maxDeliveryAttempts = 2

// transitionMaxRetries bounds re-reads after a lost claim race.
const transitionMaxRetries = 5

// StateMachine drives all order status changes.
type StateMachine struct {
	orders    OrderStore
	ledger    *inventory.Ledger
	customers CustomerDirectory
	notifier  Notifier
	approval  ApprovalConfig
}

func NewStateMachine(orders OrderStore, ledger *inventory.Ledger, customers CustomerDirectory, notifier Notifier, approval ApprovalConfig) *StateMachine {
	return &StateMachine{
		orders:    orders,
		ledger:    ledger,
		customers: customers,
		notifier:  notifier,
		approval:  approval,
	}
}

// Transition moves an order to target, or fails leaving it unmodified.
// An empty actor marks the transition as automatic.
func (m *StateMachine) Transition(ctx context.Context, id OrderID, target Status, actor, note string) (Order, error) {
	for attempt := 0; attempt < transitionMaxRetries; attempt++ {
		o, err := m.orders.GetOrder(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if !IsValid(target) || !CanTransition(o.Status, target) {
			return Order{}, &InvalidTransitionError{OrderID: id, From: o.Status, To: target}
		}

		done, err := m.claimAndApply(ctx, o, target, actor, note)
		if err == nil {
			return done, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Order{}, err
		}
		// Lost the claim race: re-read and re-validate against whatever
		// the winner wrote.
	}
	return Order{}, &ConflictError{OrderID: id, Attempts: transitionMaxRetries}
}

// claimAndApply writes the transitioned record through the version check,
// then runs the stock and counter side effects the move is coupled to.
// Only the claim winner reaches the side effects. A side effect that
// fails hands the pre-transition record back before the error surfaces.
func (m *StateMachine) claimAndApply(ctx context.Context, prior Order, target Status, actor, note string) (Order, error) {
	o := prior
	now := time.Now().UTC()

	releaseHolds := false
	restock := false

	switch target {
	case StatusConfirmed:
		o.StockPhase = StockCommitted
		if actor != "" {
			o.Processing.ApprovedBy = actor
		}

	case StatusCancelled:
		// Orders past the reserved phase have nothing to give back.
		if o.StockPhase == StockReserved {
			o.StockPhase = StockReleased
			releaseHolds = true
		}
		o.Cancellation = &Cancellation{At: now, By: actor, Reason: note}

	case StatusFailed:
		o.DeliveryAttempts++

	case StatusDelivered:
		if o.PaymentMethod == PaymentCOD {
			o.PaymentStatus = PaymentPaidStatus
			o.CollectedAmount = o.Summary.Total
		}
	}

	o.appendHistory(target, now, actor, note)
	o.Status = target
	o.UpdatedAt = now

	// Second failed delivery attempt: force the return and restock. The
	// forced move appends its own (automatic) history entry.
	if target == StatusFailed && o.DeliveryAttempts >= maxDeliveryAttempts {
		o.appendHistory(StatusReturned, now, "", "auto-returned after repeated failed delivery")
		o.Status = StatusReturned
		if o.StockPhase == StockCommitted {
			o.StockPhase = StockRestocked
			restock = true
		}
	}

	if err := m.orders.UpdateOrder(ctx, o); err != nil {
		return Order{}, err
	}
	o.Version++ // the store bumped it on the claim

	switch {
	case target == StatusConfirmed:
		if err := m.commitItems(ctx, o.Items); err != nil {
			m.revertClaim(ctx, prior, o.Version)
			return Order{}, err
		}
		if o.PaymentMethod == PaymentGCash {
			if err := m.recordGCashSuccess(ctx, o.CustomerID); err != nil {
				// Counter maintenance must not lose the confirm.
				log.Printf("[StateMachine] gcash counter update for %s failed: %v", o.CustomerID, err)
			}
		}

	case releaseHolds:
		m.releaseItems(ctx, o.Items)

	case restock:
		if err := m.restockItems(ctx, o.Items); err != nil {
			m.revertClaim(ctx, prior, o.Version)
			return Order{}, err
		}
	}

	m.notify(ctx, o, o.Status)
	return o, nil
}

// AssignDriver records a driver reference on the order. The driver
// directory itself is an external collaborator.
func (m *StateMachine) AssignDriver(ctx context.Context, id OrderID, driver string) (Order, error) {
	for attempt := 0; attempt < transitionMaxRetries; attempt++ {
		o, err := m.orders.GetOrder(ctx, id)
		if err != nil {
			return Order{}, err
		}
		o.Driver = driver
		o.UpdatedAt = time.Now().UTC()

		err = m.orders.UpdateOrder(ctx, o)
		if err == nil {
			o.Version++
			return o, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Order{}, err
		}
	}
	return Order{}, &ConflictError{OrderID: id, Attempts: transitionMaxRetries}
}

// =============================================================================
// SIDE EFFECTS
// =============================================================================

// commitItems converts every item's hold into a permanent deduction. A
// partial commit is rolled back item by item (restock + re-reserve)
// before the error surfaces, leaving every hold in place.
func (m *StateMachine) commitItems(ctx context.Context, items []OrderItem) error {
	committed := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if err := m.ledger.Commit(ctx, it.ProductID, it.Quantity); err != nil {
			for _, done := range committed {
				m.rollbackCommit(ctx, done)
			}
			return fmt.Errorf("commit stock for %s: %w", it.ProductID, err)
		}
		committed = append(committed, it)
	}
	return nil
}

// releaseItems gives every item's hold back. Release saturates and only
// fails on store trouble; the cancellation that triggered it stands
// either way.
func (m *StateMachine) releaseItems(ctx context.Context, items []OrderItem) {
	for _, it := range items {
		if err := m.ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
			log.Printf("[StateMachine] release %dx %s on cancel failed: %v", it.Quantity, it.ProductID, err)
		}
	}
}

// restockItems puts committed units back on the shelf for a forced
// return. A partial restock is deducted again before the error surfaces,
// leaving every unit deducted as it was.
func (m *StateMachine) restockItems(ctx context.Context, items []OrderItem) error {
	restocked := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if err := m.ledger.Restock(ctx, it.ProductID, it.Quantity); err != nil {
			for _, done := range restocked {
				if derr := m.ledger.Deduct(ctx, done.ProductID, done.Quantity); derr != nil {
					log.Printf("[StateMachine] compensating deduct %dx %s failed: %v", done.Quantity, done.ProductID, derr)
				}
			}
			return fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
		restocked = append(restocked, it)
	}
	return nil
}

// applyConfirm runs the confirm side effects on an order that has not
// been persisted yet: the pickup fast path in admission. Persisted
// orders go through Transition instead.
func (m *StateMachine) applyConfirm(ctx context.Context, o *Order, actor string) error {
	if err := m.commitItems(ctx, o.Items); err != nil {
		return err
	}
	o.StockPhase = StockCommitted
	if actor != "" {
		o.Processing.ApprovedBy = actor
	}

	if o.PaymentMethod == PaymentGCash {
		if err := m.recordGCashSuccess(ctx, o.CustomerID); err != nil {
			// Counter maintenance must not lose the confirm.
			log.Printf("[StateMachine] gcash counter update for %s failed: %v", o.CustomerID, err)
		}
	}
	return nil
}

func (m *StateMachine) recordGCashSuccess(ctx context.Context, id CustomerID) error {
	c, err := m.customers.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	c.SuccessfulGCashOrders++
	c.CODEligible = c.SuccessfulGCashOrders >= m.approval.CODEligibleAfter
	return m.customers.PutCustomer(ctx, c)
}

// =============================================================================
// COMPENSATION
// =============================================================================

// rollbackCommit restores one item's pre-commit ledger state: the unit goes
// back into quantity and the hold is re-acquired.
func (m *StateMachine) rollbackCommit(ctx context.Context, it OrderItem) {
	if err := m.ledger.Restock(ctx, it.ProductID, it.Quantity); err != nil {
		log.Printf("[StateMachine] rollback restock %s failed: %v", it.ProductID, err)
		return
	}
	if err := m.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
		log.Printf("[StateMachine] rollback re-reserve %s failed: %v", it.ProductID, err)
	}
}

func (m *StateMachine) uncommitAll(ctx context.Context, o *Order) {
	for _, it := range o.Items {
		m.rollbackCommit(ctx, it)
	}
	o.StockPhase = StockReserved
}

// revertClaim restores the pre-transition record after a side effect
// failed. It carries the version the claim bumped to, so it can only
// lose to a writer that acted on the transient claimed state; that loss
// leaves the record to the later writer and is logged.
func (m *StateMachine) revertClaim(ctx context.Context, prior Order, version int) {
	prior.Version = version
	prior.UpdatedAt = time.Now().UTC()
	if err := m.orders.UpdateOrder(ctx, prior); err != nil {
		log.Printf("[StateMachine] revert of %s after failed side effects: %v", prior.ID, err)
	}
}

// =============================================================================
// HISTORY & NOTIFICATION
// =============================================================================

// appendHistory appends one entry with a monotonic timestamp.
func (o *Order) appendHistory(s Status, at time.Time, actor, note string) {
	if n := len(o.StatusHistory); n > 0 && at.Before(o.StatusHistory[n-1].At) {
		at = o.StatusHistory[n-1].At
	}
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:    s,
		At:        at,
		Actor:     actor,
		Note:      note,
		Automatic: actor == "",
	})
}

func (m *StateMachine) notify(ctx context.Context, o Order, s Status) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyStatus(ctx, o, s); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[StateMachine] notify %s -> %s failed: %v", o.Number, s, err)
	}
}
