package orders_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

// racingOrders wraps an order store and runs a competing write right
// before the wrapped UpdateOrder, so two writers deterministically act on
// the same snapshot.
type racingOrders struct {
	orders.OrderStore
	beforeUpdate func()
	every        bool // fire on every update, not just the first
}

func (r *racingOrders) UpdateOrder(ctx context.Context, o orders.Order) error {
	if r.beforeUpdate != nil {
		f := r.beforeUpdate
		if !r.every {
			r.beforeUpdate = nil
		}
		f()
	}
	return r.OrderStore.UpdateOrder(ctx, o)
}

// faultyStock wraps a stock store and rejects writes for one product,
// simulating store trouble partway through a multi-item ledger walk.
type faultyStock struct {
	inventory.StockStore
	failID inventory.ProductID
}

var errStockStoreDown = errors.New("stock store down")

func (f *faultyStock) UpdateStock(ctx context.Context, p inventory.Product) error {
	if p.ID == f.failID {
		return errStockStoreDown
	}
	return f.StockStore.UpdateStock(ctx, p)
}

// placeDelivery admits a pending, unheld GCash delivery order for qty units
// of mango (seeded at 10 on hand, price 100).
func placeDelivery(t *testing.T, e *engine, qty int) orders.Order {
	t.Helper()
	e.seedStock(t, "mango", 100, 10)
	e.seedCustomer(t, "ana", true, 5)

	o, err := e.adm.Admit(context.Background(), deliveryReq("ana", item("mango", qty)))
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, o.Status)
	return o
}

// walkTo advances an order through the given statuses in sequence.
func walkTo(t *testing.T, e *engine, id orders.OrderID, path ...orders.Status) orders.Order {
	t.Helper()
	var o orders.Order
	var err error
	for _, s := range path {
		o, err = e.machine.Transition(context.Background(), id, s, "staff", "")
		require.NoError(t, err, "transition to %s", s)
	}
	return o
}

// =============================================================================
// TRANSITION VALIDATION
// =============================================================================

func TestTransition_InvalidMove_OrderUntouched(t *testing.T) {
	// GIVEN: A pending order
	// WHEN: Trying to jump straight to preparing
	// THEN: Rejected with InvalidTransitionError, stored order unchanged

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 2)
	ctx := context.Background()

	_, err := e.machine.Transition(ctx, o.ID, orders.StatusPreparing, "staff", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	var invErr *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, orders.StatusPending, invErr.From)
	assert.Equal(t, orders.StatusPreparing, invErr.To)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Len(t, stored.StatusHistory, 1, "a rejected transition leaves no trace")
}

func TestTransition_UnknownTarget_Rejected(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 1)

	_, err := e.machine.Transition(context.Background(), o.ID, orders.Status("shipped"), "staff", "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestTransition_UnknownOrder(t *testing.T) {
	e := newEngine(t, 50)

	_, err := e.machine.Transition(context.Background(), "ghost", orders.StatusConfirmed, "staff", "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

// =============================================================================
// CONFIRM SIDE EFFECTS
// =============================================================================

func TestTransition_Confirm_CommitsStockAndRecordsApprover(t *testing.T) {
	// GIVEN: A pending order holding 2 units
	// WHEN: Staff confirms it
	// THEN: Holds become deductions, the approver is recorded, and the
	//       GCash success counter grows

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 2)
	ctx := context.Background()

	confirmed, err := e.machine.Transition(ctx, o.ID, orders.StatusConfirmed, "maria", "looks good")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusConfirmed, confirmed.Status)
	assert.Equal(t, orders.StockCommitted, confirmed.StockPhase)
	assert.Equal(t, "maria", confirmed.Processing.ApprovedBy)

	require.Len(t, confirmed.StatusHistory, 2)
	last := confirmed.StatusHistory[1]
	assert.Equal(t, orders.StatusConfirmed, last.Status)
	assert.Equal(t, "maria", last.Actor)
	assert.False(t, last.Automatic)

	p := e.stock(t, "mango")
	assert.Equal(t, 8, p.Quantity)
	assert.Equal(t, 0, p.Reserved)
	assert.Equal(t, 2, p.PurchaseCount)

	c, err := e.mem.GetCustomer(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 6, c.SuccessfulGCashOrders)
}

func TestTransition_Confirm_GCashBuildsCODEligibility(t *testing.T) {
	// GIVEN: A customer two successful GCash orders short of the threshold
	// WHEN: Their third GCash order is confirmed
	// THEN: They become COD eligible

	e := newEngine(t, 50)
	e.seedStock(t, "mango", 100, 10)
	e.seedCustomer(t, "rey", false, 2)
	ctx := context.Background()

	o, err := e.adm.Admit(ctx, deliveryReq("rey", item("mango", 1)))
	require.NoError(t, err)

	_, err = e.machine.Transition(ctx, o.ID, orders.StatusConfirmed, "maria", "")
	require.NoError(t, err)

	c, err := e.mem.GetCustomer(ctx, "rey")
	require.NoError(t, err)
	assert.Equal(t, 3, c.SuccessfulGCashOrders)
	assert.True(t, c.CODEligible)
}

// =============================================================================
// CANCEL SIDE EFFECTS
// =============================================================================

func TestTransition_CancelPending_ReleasesHolds(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 3)
	ctx := context.Background()

	cancelled, err := e.machine.Transition(ctx, o.ID, orders.StatusCancelled, "ana", "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, orders.StockReleased, cancelled.StockPhase)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, "ana", cancelled.Cancellation.By)
	assert.Equal(t, "changed my mind", cancelled.Cancellation.Reason)

	p := e.stock(t, "mango")
	assert.Equal(t, 10, p.Quantity)
	assert.Equal(t, 0, p.Reserved)
}

func TestTransition_CancelAfterConfirm_LeavesOtherHoldsAlone(t *testing.T) {
	// GIVEN: A confirmed order (stock committed) and an unrelated hold of
	//        2 units on the same product
	// WHEN: The confirmed order is cancelled
	// THEN: The unrelated hold is untouched; no blind release happens

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 3)
	ctx := context.Background()

	walkTo(t, e, o.ID, orders.StatusConfirmed)
	require.NoError(t, e.ledger.Reserve(ctx, "mango", 2)) // someone else's checkout

	cancelled, err := e.machine.Transition(ctx, o.ID, orders.StatusCancelled, "staff", "kitchen issue")
	require.NoError(t, err)
	assert.Equal(t, orders.StockCommitted, cancelled.StockPhase, "committed stock stays deducted")

	p := e.stock(t, "mango")
	assert.Equal(t, 7, p.Quantity, "cancel after commit does not restock")
	assert.Equal(t, 2, p.Reserved, "the other order's hold survives")
}

// =============================================================================
// CONCURRENT TRANSITIONS
// =============================================================================

func TestTransition_ConcurrentCancel_ConfirmLosesCleanly(t *testing.T) {
	// GIVEN: A pending order, and a confirm whose claim write is preempted
	//        by a fully completed cancel
	// WHEN: The confirm loses the version check and re-reads
	// THEN: It is rejected as an invalid move and commits nothing; the
	//       cancel's released stock is neither deducted nor re-held

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 3)
	ctx := context.Background()

	raced := &racingOrders{OrderStore: e.mem}
	machine := orders.NewStateMachine(raced, e.ledger, e.mem, nil, approvalConfig())
	raced.beforeUpdate = func() {
		_, err := e.machine.Transition(ctx, o.ID, orders.StatusCancelled, "ana", "changed my mind")
		require.NoError(t, err)
	}

	_, err := machine.Transition(ctx, o.ID, orders.StatusConfirmed, "maria", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, stored.Status)
	assert.Equal(t, orders.StockReleased, stored.StockPhase)

	p := e.stock(t, "mango")
	assert.Equal(t, 10, p.Quantity, "a cancelled order must not keep a deduction")
	assert.Equal(t, 0, p.Reserved, "no hold may survive the race")
}

func TestTransition_ConcurrentConfirm_CancelRevalidates(t *testing.T) {
	// GIVEN: A pending order, and a cancel whose claim write is preempted
	//        by a fully completed confirm
	// WHEN: The cancel loses the version check and re-reads
	// THEN: It lands as a cancel-after-commit: the deduction stands and the
	//       stale snapshot's release never runs

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 3)
	ctx := context.Background()

	raced := &racingOrders{OrderStore: e.mem}
	machine := orders.NewStateMachine(raced, e.ledger, e.mem, nil, approvalConfig())
	raced.beforeUpdate = func() {
		_, err := e.machine.Transition(ctx, o.ID, orders.StatusConfirmed, "maria", "")
		require.NoError(t, err)
	}

	cancelled, err := machine.Transition(ctx, o.ID, orders.StatusCancelled, "ana", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, orders.StockCommitted, cancelled.StockPhase, "committed stock stays deducted")

	p := e.stock(t, "mango")
	assert.Equal(t, 7, p.Quantity)
	assert.Equal(t, 0, p.Reserved, "the stale snapshot must not leak a hold")
}

func TestTransition_ContentionBudgetExhausted(t *testing.T) {
	// GIVEN: A writer that loses every claim race
	// WHEN: The retry budget runs out
	// THEN: The transition fails retryable with ErrConflict, the order and
	//       its stock untouched

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 2)
	ctx := context.Background()

	raced := &racingOrders{OrderStore: e.mem, every: true}
	machine := orders.NewStateMachine(raced, e.ledger, e.mem, nil, approvalConfig())
	raced.beforeUpdate = func() {
		_, err := e.machine.AssignDriver(ctx, o.ID, "driver-07")
		require.NoError(t, err)
	}

	_, err := machine.Transition(ctx, o.ID, orders.StatusConfirmed, "maria", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrConflict)
	assert.True(t, orders.IsRetryable(err))

	var confErr *orders.ConflictError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, o.ID, confErr.OrderID)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status, "a lost claim changes nothing")

	p := e.stock(t, "mango")
	assert.Equal(t, 10, p.Quantity, "a failed claim commits nothing")
	assert.Equal(t, 2, p.Reserved, "the hold stays for a later retry")
}

func TestUpdateOrder_StaleVersionRejected(t *testing.T) {
	// The store-level guard the state machine builds on.
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 1)
	ctx := context.Background()

	first, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	second := first

	first.Driver = "driver-01"
	require.NoError(t, e.mem.UpdateOrder(ctx, first))

	second.Driver = "driver-02"
	err = e.mem.UpdateOrder(ctx, second)
	assert.ErrorIs(t, err, orders.ErrVersionConflict)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "driver-01", stored.Driver, "the stale writer must not clobber the winner")
}

// =============================================================================
// DELIVERY FAILURES & FORCED RETURN
// =============================================================================

func TestTransition_FirstFailedDelivery_StaysRetryable(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 2)

	failed := walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusFailed)

	assert.Equal(t, orders.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.DeliveryAttempts)
	assert.Equal(t, orders.StockCommitted, failed.StockPhase, "one failure does not restock")

	// The driver can go back out.
	retried, err := e.machine.Transition(context.Background(), o.ID, orders.StatusOutForDelivery, "staff", "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusOutForDelivery, retried.Status)
}

func TestTransition_SecondFailedDelivery_ForcesReturnAndRestock(t *testing.T) {
	// GIVEN: An order already failed once and back out for delivery
	// WHEN: The delivery fails again
	// THEN: The order lands in returned, stock goes back on the shelf, and
	//       the forced move appends its own automatic history entry

	e := newEngine(t, 50)
	o := placeDelivery(t, e, 2)

	walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusFailed,
		orders.StatusOutForDelivery)

	returned, err := e.machine.Transition(context.Background(), o.ID, orders.StatusFailed, "driver", "no one home")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusReturned, returned.Status)
	assert.Equal(t, 2, returned.DeliveryAttempts)
	assert.Equal(t, orders.StockRestocked, returned.StockPhase)

	n := len(returned.StatusHistory)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, orders.StatusFailed, returned.StatusHistory[n-2].Status)
	assert.Equal(t, "driver", returned.StatusHistory[n-2].Actor)
	assert.Equal(t, orders.StatusReturned, returned.StatusHistory[n-1].Status)
	assert.True(t, returned.StatusHistory[n-1].Automatic, "the forced return is automatic")

	p := e.stock(t, "mango")
	assert.Equal(t, 10, p.Quantity, "committed units are back on the shelf")

	// Returned is resolved only by completing the paperwork.
	_, err = e.machine.Transition(context.Background(), o.ID, orders.StatusOutForDelivery, "staff", "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestTransition_ForcedReturnRestockFailure_FullyCompensated(t *testing.T) {
	// GIVEN: An out-for-delivery order of two products with one failed
	//        attempt on record, and a stock store that rejects writes for
	//        the second product
	// WHEN: The next failure forces the return but the restock walk dies
	//       halfway
	// THEN: The first product's restock is deducted again and the stored
	//       order still says out_for_delivery with committed stock

	e := newEngine(t, 50)
	e.seedStock(t, "mango", 100, 10)
	e.seedStock(t, "eggs", 80, 10)
	e.seedCustomer(t, "ana", true, 5)
	ctx := context.Background()

	o, err := e.adm.Admit(ctx, deliveryReq("ana", item("mango", 2), item("eggs", 3)))
	require.NoError(t, err)
	walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusFailed,
		orders.StatusOutForDelivery)

	faulty := &faultyStock{StockStore: e.mem, failID: "eggs"}
	machine := orders.NewStateMachine(e.mem, inventory.NewLedger(faulty), e.mem, nil, approvalConfig())

	_, err = machine.Transition(ctx, o.ID, orders.StatusFailed, "driver", "no one home")
	require.Error(t, err)
	assert.ErrorIs(t, err, errStockStoreDown)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusOutForDelivery, stored.Status, "a failed restock must not strand the order in returned")
	assert.Equal(t, orders.StockCommitted, stored.StockPhase)
	assert.Equal(t, 1, stored.DeliveryAttempts, "the compensated attempt does not count")

	mango := e.stock(t, "mango")
	assert.Equal(t, 8, mango.Quantity, "the partial restock is deducted again")
	eggs := e.stock(t, "eggs")
	assert.Equal(t, 7, eggs.Quantity, "the failing product never moved")
}

// =============================================================================
// DELIVERED & COD SETTLEMENT
// =============================================================================

func TestTransition_DeliveredCOD_SettlesPayment(t *testing.T) {
	// GIVEN: A COD delivery order from a trusted customer
	// WHEN: The driver marks it delivered
	// THEN: Payment flips to paid with the collected amount recorded

	e := newEngine(t, 50)
	e.seedStock(t, "mango", 100, 10)
	e.seedCustomer(t, "ana", true, 5)
	ctx := context.Background()

	req := deliveryReq("ana", item("mango", 2))
	req.Payment = orders.PaymentCOD
	o, err := e.adm.Admit(ctx, req)
	require.NoError(t, err)

	delivered := walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusDelivered)

	assert.Equal(t, orders.PaymentPaidStatus, delivered.PaymentStatus)
	// 200 subtotal + 50 delivery + 20 COD surcharge
	assert.True(t, delivered.CollectedAmount.Equal(decimal.NewFromInt(270)),
		"collected %s", delivered.CollectedAmount)

	c, err := e.mem.GetCustomer(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 5, c.SuccessfulGCashOrders, "a COD confirm must not grow the GCash counter")
}

func TestTransition_DeliveredGCash_AlreadySettled(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 1)

	delivered := walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusDelivered)

	assert.True(t, delivered.CollectedAmount.IsZero(), "GCash collects nothing at the door")
}

// =============================================================================
// HISTORY & DRIVER
// =============================================================================

func TestTransition_HistoryIsAppendOnlyAndOrdered(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 1)

	final := walkTo(t, e, o.ID,
		orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusDelivered, orders.StatusCompleted)

	want := []orders.Status{
		orders.StatusPending, orders.StatusConfirmed, orders.StatusPreparing,
		orders.StatusOutForDelivery, orders.StatusDelivered, orders.StatusCompleted,
	}
	require.Len(t, final.StatusHistory, len(want))
	for i, s := range want {
		assert.Equal(t, s, final.StatusHistory[i].Status)
		if i > 0 {
			assert.False(t, final.StatusHistory[i].At.Before(final.StatusHistory[i-1].At),
				"history timestamps must be monotonic")
		}
	}
}

func TestAssignDriver(t *testing.T) {
	e := newEngine(t, 50)
	o := placeDelivery(t, e, 1)
	ctx := context.Background()

	updated, err := e.machine.AssignDriver(ctx, o.ID, "driver-07")
	require.NoError(t, err)
	assert.Equal(t, "driver-07", updated.Driver)

	stored, err := e.mem.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "driver-07", stored.Driver)

	_, err = e.machine.AssignDriver(ctx, "ghost", "driver-07")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
