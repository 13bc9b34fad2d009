/*
Package orders implements order admission, approval gating, and the order
state machine of the delivery platform.

PURPOSE:
  An Order is created exactly once by Admission (which owns checkout
  orchestration and reservation compensation) and afterwards mutated only
  by the StateMachine. Stock moves through the inventory.Ledger as a side
  effect of specific transitions; this package never touches stock fields
  directly.

KEY CONCEPTS IN THIS FILE (types.go):
  - Order: The aggregate - items, money summary, processing metadata,
    append-only status history
  - OrderItem: Price/name snapshot taken at checkout; catalog changes
    never retroactively alter placed orders
  - StockPhase: Where this order's stock currently sits (reserved,
    committed, released, restocked) - guards cancel/return side effects
  - Customer: The referenced aggregate whose COD-eligibility counters the
    state machine updates on confirm

DESIGN PRINCIPLES:
  1. Immutability of history: StatusHistory is append-only, timestamps
     monotonic, never rewritten.
  2. Snapshot pricing: items copy name and unit price at creation.
  3. Precision: decimal.Decimal for all money.

SEE ALSO:
  - status.go: Lifecycle states and the transition table
  - admission.go: Checkout orchestration
  - machine.go: Transitions and their side effects
*/
package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/inventory"
)

type OrderID string
type CustomerID string

// =============================================================================
// ENUMS
// =============================================================================

// DeliveryMethod is how the customer receives the order.
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	// PaymentGCash is settled up front; successful GCash orders build the
	// customer's COD eligibility.
	PaymentGCash PaymentMethod = "gcash"

	// PaymentCOD is deferred cash, collected by the driver on delivery.
	PaymentCOD PaymentMethod = "cod"
)

type PaymentStatus string

const (
	PaymentPendingStatus PaymentStatus = "pending"
	PaymentPaidStatus    PaymentStatus = "paid"
)

// StockPhase tracks where this order's stock sits in the ledger, so
// cancellation and return side effects act exactly once and never touch
// holds belonging to other orders.
type StockPhase string

const (
	StockReserved  StockPhase = "reserved"  // holds live in Reserved
	StockCommitted StockPhase = "committed" // deducted from Quantity
	StockReleased  StockPhase = "released"  // holds given back
	StockRestocked StockPhase = "restocked" // committed units returned
)

// ApprovalReason is one concern flagged by the approval policy. The full
// set is stored so operators see every concern, not just the first.
type ApprovalReason string

const (
	ReasonLowStock         ApprovalReason = "low_stock"
	ReasonSensitiveProduct ApprovalReason = "sensitive_product"
	ReasonFirstTimeCOD     ApprovalReason = "first_time_cod"
	ReasonHighValue        ApprovalReason = "high_value"
)

// =============================================================================
// ORDER AGGREGATE
// =============================================================================

// OrderItem is a snapshot taken at order-creation time. Immutable.
type OrderItem struct {
	ProductID inventory.ProductID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
	Modifiers string // optional free-text, e.g. "no ice"
}

// Summary is the monetary breakdown. Invariant: Total = Subtotal +
// DeliveryFee + Surcharge.
type Summary struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Surcharge   decimal.Decimal
	Total       decimal.Decimal
	ItemCount   int
}

// HistoryEntry records one executed transition. Automatic is set when no
// acting identity was supplied.
type HistoryEntry struct {
	Status    Status
	At        time.Time
	Actor     string
	Note      string
	Automatic bool
}

// Processing holds the approval-gating metadata set at admission.
type Processing struct {
	RequiresApproval bool
	ApprovalReasons  []ApprovalReason
	AutoConfirmAt    *time.Time
	ApprovedBy       string
}

// Cancellation records who cancelled and why.
type Cancellation struct {
	At     time.Time
	By     string
	Reason string
}

type DeliveryInfo struct {
	Method       DeliveryMethod
	Address      string
	ContactPhone string
	Notes        string
}

type Order struct {
	ID         OrderID
	Number     string // unique, generated at creation
	CustomerID CustomerID

	Items   []OrderItem // insertion order = checkout order
	Summary Summary

	Delivery        DeliveryInfo
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	CollectedAmount decimal.Decimal // set when COD is settled on delivery

	Status        Status
	StatusHistory []HistoryEntry

	Processing Processing
	StockPhase StockPhase

	DeliveryAttempts int
	Driver           string // reference only; driver directory is external
	Cancellation     *Cancellation

	// Version guards optimistic concurrency on UpdateOrder, the same way
	// Product.Version guards stock writes. Zero at creation; the store
	// increments it on every successful update.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CUSTOMER - Referenced aggregate (counters updated by the state machine)
// =============================================================================

type Customer struct {
	ID                    CustomerID
	Name                  string
	Phone                 string
	CODEligible           bool
	SuccessfulGCashOrders int
	LifetimeOrders        int
	CreatedAt             time.Time
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// OrderStore persists order aggregates.
type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id OrderID) (Order, error)
	GetOrderByNumber(ctx context.Context, number string) (Order, error)

	// UpdateOrder writes the record iff the stored version still equals
	// o.Version, then increments the version. Returns ErrVersionConflict
	// when another writer got there first.
	UpdateOrder(ctx context.Context, o Order) error

	ListOrders(ctx context.Context, status Status) ([]Order, error)

	// ListAutoConfirmDue returns pending, non-held orders whose
	// AutoConfirmAt is at or before now.
	ListAutoConfirmDue(ctx context.Context, now time.Time) ([]Order, error)
}

// CustomerDirectory is the external customer aggregate the core reads and
// conditionally writes.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id CustomerID) (Customer, error)
	PutCustomer(ctx context.Context, c Customer) error
}

// DailyCounter tracks how many delivery-type orders were admitted today.
// Increment returns the count after incrementing; Decrement compensates a
// rejected or failed admission.
type DailyCounter interface {
	Increment(ctx context.Context, day string) (int, error)
	Decrement(ctx context.Context, day string) error
}

// Notifier dispatches a status notification. Best-effort: implementations
// must not block transitions, and callers never propagate its errors.
type Notifier interface {
	NotifyStatus(ctx context.Context, o Order, newStatus Status) error
}

// DayKey formats the key DailyCounter implementations bucket by.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
