/*
admission.go - Checkout orchestration

PURPOSE:
  Turns a checkout request into a persisted Order, or into an error with
  zero net side effects. The procedure:

    1. (accepting-orders gate already evaluated by the caller)
    2. charge the daily delivery cap
    3. per item: resolve product, validate, reserve stock
    4. totals: subtotal + flat delivery fee + flat COD surcharge
    5. approval policy over the resolved snapshots
    6. unheld orders get an auto-confirm timestamp; unheld pickups start
       life confirmed (stock committed immediately)
    7. persist, bump the customer's lifetime order counter

COMPENSATION:
  Any failure after a reservation was acquired releases every reservation
  taken in the same call - no partial reservation outlives a failed
  checkout. The daily-cap charge is refunded on any later failure.

SEE ALSO:
  - approval.go: The gating predicates
  - machine.go: Confirm side effects reused for the pickup fast path
*/
package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/inventory"
)

// FeeConfig carries the flat checkout fees.
type FeeConfig struct {
	DeliveryFee  decimal.Decimal // charged when method is delivery
	CODSurcharge decimal.Decimal // charged when payment is deferred cash
}

// AdmitRequest is one customer checkout.
type AdmitRequest struct {
	CustomerID CustomerID
	Items      []RequestedItem
	Delivery   DeliveryInfo
	Payment    PaymentMethod
}

type RequestedItem struct {
	ProductID inventory.ProductID
	Quantity  int
	Modifiers string
}

// Admission orchestrates checkout.
type Admission struct {
	ledger    *inventory.Ledger
	products  inventory.StockStore
	orders    OrderStore
	customers CustomerDirectory
	counter   DailyCounter
	machine   *StateMachine

	fees     FeeConfig
	approval ApprovalConfig
	hours    BusinessHours
	dailyCap int
}

func NewAdmission(
	ledger *inventory.Ledger,
	products inventory.StockStore,
	orders OrderStore,
	customers CustomerDirectory,
	counter DailyCounter,
	machine *StateMachine,
	fees FeeConfig,
	approval ApprovalConfig,
	hours BusinessHours,
	dailyCap int,
) *Admission {
	return &Admission{
		ledger:    ledger,
		products:  products,
		orders:    orders,
		customers: customers,
		counter:   counter,
		machine:   machine,
		fees:      fees,
		approval:  approval,
		hours:     hours,
		dailyCap:  dailyCap,
	}
}

// Hours exposes the accepting window so the API boundary can gate requests
// before invoking Admit.
func (a *Admission) Hours() BusinessHours { return a.hours }

// Admit runs the checkout procedure. On error, every reservation and the
// daily-cap charge taken in this call have been rolled back.
func (a *Admission) Admit(ctx context.Context, req AdmitRequest) (Order, error) {
	if len(req.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return Order{}, inventory.ErrInvalidQuantity
		}
	}

	customer, err := a.customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()

	// Hard reject before any stock movement: today's delivery budget.
	chargedDay := ""
	if req.Delivery.Method == DeliveryDelivery {
		day := DayKey(now)
		n, err := a.counter.Increment(ctx, day)
		if err != nil {
			return Order{}, err
		}
		if n > a.dailyCap {
			a.refundCap(ctx, day)
			return Order{}, &DailyCapError{Cap: a.dailyCap, Day: day}
		}
		chargedDay = day
	}

	o, err := a.admitReserved(ctx, req, customer, now)
	if err != nil {
		if chargedDay != "" {
			a.refundCap(ctx, chargedDay)
		}
		return Order{}, err
	}
	return o, nil
}

// admitReserved performs steps 3-7. Reservations acquired here never leak:
// any failure releases them all before returning.
func (a *Admission) admitReserved(ctx context.Context, req AdmitRequest, customer Customer, now time.Time) (Order, error) {
	var (
		items     []OrderItem
		snapshots []inventory.Product
		reserved  []RequestedItem
	)
	rollback := func() {
		for _, r := range reserved {
			if err := a.ledger.Release(ctx, r.ProductID, r.Quantity); err != nil {
				log.Printf("[Admission] compensating release %dx %s failed: %v", r.Quantity, r.ProductID, err)
			}
		}
	}

	subtotal := decimal.Zero
	itemCount := 0
	for _, r := range req.Items {
		p, err := a.products.GetProduct(ctx, r.ProductID)
		if err != nil {
			rollback()
			return Order{}, err
		}
		if !p.Active {
			rollback()
			return Order{}, fmt.Errorf("product %s: %w", p.ID, inventory.ErrProductInactive)
		}
		// Reserve is the atomic availability check; a stale snapshot here
		// cannot oversell.
		if err := a.ledger.Reserve(ctx, r.ProductID, r.Quantity); err != nil {
			rollback()
			return Order{}, err
		}
		reserved = append(reserved, r)

		line := p.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))
		items = append(items, OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  r.Quantity,
			Subtotal:  line,
			Modifiers: r.Modifiers,
		})
		snapshots = append(snapshots, p)
		subtotal = subtotal.Add(line)
		itemCount += r.Quantity
	}

	summary := a.summarize(subtotal, itemCount, req)

	result := EvaluateApproval(a.approval, ApprovalInput{
		Products: snapshots,
		Customer: customer,
		Payment:  req.Payment,
		Total:    summary.Total,
	})

	o := Order{
		ID:            OrderID(uuid.NewString()),
		Number:        newOrderNumber(now),
		CustomerID:    customer.ID,
		Items:         items,
		Summary:       summary,
		Delivery:      req.Delivery,
		PaymentMethod: req.Payment,
		PaymentStatus: PaymentPendingStatus,
		Status:        StatusPending,
		StockPhase:    StockReserved,
		Processing: Processing{
			RequiresApproval: result.RequiresApproval,
			ApprovalReasons:  result.Reasons,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if !result.RequiresApproval {
		at := a.hours.NextAutoConfirm(now)
		o.Processing.AutoConfirmAt = &at

		// Unheld pickup orders skip straight to confirmed: stock is
		// committed now, not merely reserved.
		if req.Delivery.Method == DeliveryPickup {
			if err := a.machine.applyConfirm(ctx, &o, ""); err != nil {
				rollback()
				return Order{}, err
			}
			o.Status = StatusConfirmed
			o.Processing.AutoConfirmAt = nil
		}
	}

	o.appendHistory(o.Status, now, "", "order placed")

	if err := a.orders.CreateOrder(ctx, o); err != nil {
		if o.StockPhase == StockCommitted {
			a.machine.uncommitAll(ctx, &o)
		}
		rollback()
		return Order{}, err
	}

	// Re-read: the confirm side effects above may have already updated the
	// customer's payment counters, which the earlier snapshot predates.
	fresh, err := a.customers.GetCustomer(ctx, customer.ID)
	if err != nil {
		fresh = customer
	}
	fresh.LifetimeOrders++
	if err := a.customers.PutCustomer(ctx, fresh); err != nil {
		// The order stands; the lifetime counter is advisory.
		log.Printf("[Admission] lifetime counter update for %s failed: %v", customer.ID, err)
	}

	return o, nil
}

func (a *Admission) summarize(subtotal decimal.Decimal, itemCount int, req AdmitRequest) Summary {
	fee := decimal.Zero
	if req.Delivery.Method == DeliveryDelivery {
		fee = a.fees.DeliveryFee
	}
	surcharge := decimal.Zero
	if req.Payment == PaymentCOD {
		surcharge = a.fees.CODSurcharge
	}
	return Summary{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Surcharge:   surcharge,
		Total:       subtotal.Add(fee).Add(surcharge),
		ItemCount:   itemCount,
	}
}

func (a *Admission) refundCap(ctx context.Context, day string) {
	if err := a.counter.Decrement(ctx, day); err != nil {
		log.Printf("[Admission] daily counter refund for %s failed: %v", day, err)
	}
}

// newOrderNumber generates a unique, human-readable order number.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("CV-%s-%s", now.Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
}
