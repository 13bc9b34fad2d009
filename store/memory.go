// Package store provides the in-memory implementation of the storage
// interfaces. Used for testing and development; production runs on
// store/sqlite.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements inventory.StockStore, orders.OrderStore and
// orders.CustomerDirectory. Stock and order updates honor the same
// compare-and-swap contract as the SQLite store, so the retry behavior of
// the ledger and the state machine is exercised identically in tests.
type Memory struct {
	mu        sync.RWMutex
	products  map[inventory.ProductID]inventory.Product
	orders    map[orders.OrderID]orders.Order
	byNumber  map[string]orders.OrderID
	customers map[orders.CustomerID]orders.Customer
}

func NewMemory() *Memory {
	return &Memory{
		products:  make(map[inventory.ProductID]inventory.Product),
		orders:    make(map[orders.OrderID]orders.Order),
		byNumber:  make(map[string]orders.OrderID),
		customers: make(map[orders.CustomerID]orders.Customer),
	}
}

// =============================================================================
// inventory.StockStore
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id inventory.ProductID) (inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (m *Memory) PutProduct(_ context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.products[p.ID]; ok {
		p.Version = existing.Version
	}
	m.products[p.ID] = p
	return nil
}

// UpdateStock writes iff the stored version still matches, then bumps it.
func (m *Memory) UpdateStock(_ context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.products[p.ID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if existing.Version != p.Version {
		return inventory.ErrVersionConflict
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	m.products[p.ID] = p
	return nil
}

// =============================================================================
// orders.OrderStore
// =============================================================================

func (m *Memory) CreateOrder(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[o.ID] = cloneOrder(o)
	m.byNumber[o.Number] = o.ID
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id orders.OrderID) (orders.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) GetOrderByNumber(_ context.Context, number string) (orders.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byNumber[number]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return cloneOrder(m.orders[id]), nil
}

// UpdateOrder writes iff the stored version still matches, then bumps it.
func (m *Memory) UpdateOrder(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if existing.Version != o.Version {
		return orders.ErrVersionConflict
	}
	o.Version++
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *Memory) ListOrders(_ context.Context, status orders.Status) ([]orders.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []orders.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *Memory) ListAutoConfirmDue(_ context.Context, now time.Time) ([]orders.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []orders.Order
	for _, o := range m.orders {
		if o.Status != orders.StatusPending || o.Processing.RequiresApproval {
			continue
		}
		at := o.Processing.AutoConfirmAt
		if at != nil && !at.After(now) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// =============================================================================
// orders.CustomerDirectory
// =============================================================================

func (m *Memory) GetCustomer(_ context.Context, id orders.CustomerID) (orders.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return orders.Customer{}, orders.ErrCustomerNotFound
	}
	return c, nil
}

func (m *Memory) PutCustomer(_ context.Context, c orders.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers[c.ID] = c
	return nil
}

// cloneOrder deep-copies the slices so callers can't mutate stored state.
func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	o.StatusHistory = append([]orders.HistoryEntry(nil), o.StatusHistory...)
	o.Processing.ApprovalReasons = append([]orders.ApprovalReason(nil), o.Processing.ApprovalReasons...)
	if o.Processing.AutoConfirmAt != nil {
		at := *o.Processing.AutoConfirmAt
		o.Processing.AutoConfirmAt = &at
	}
	if o.Cancellation != nil {
		c := *o.Cancellation
		o.Cancellation = &c
	}
	return o
}

// =============================================================================
// MEMORY DAILY COUNTER - orders.DailyCounter
// =============================================================================

// Counter is the in-memory daily delivery counter. Production uses the
// redis-backed implementation in redisx.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

func (c *Counter) Increment(_ context.Context, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[day]++
	return c.counts[day], nil
}

func (c *Counter) Decrement(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[day] > 0 {
		c.counts[day]--
	}
	return nil
}
