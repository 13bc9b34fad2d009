/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements inventory.StockStore, orders.OrderStore and
  orders.CustomerDirectory on SQLite. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  products:  catalog plus the embedded stock ledger fields, versioned
  orders:    order aggregates; items/summary/history/processing as JSON,
             with the queryable fields (status, auto-confirm due time,
             approval hold) extracted into columns
  customers: referenced aggregate with the COD-eligibility counters

OPTIMISTIC LOCKING:
  UpdateStock is the one stock write path:

    UPDATE products SET ..., version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means another writer won the race; the ledger
  re-reads and retries. This is what makes reserve/release/commit each a
  single atomic read-modify-write scoped to one product record.
  UpdateOrder follows the same pattern over the orders version column, so
  the state machine serializes concurrent transitions the same way.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - inventory/ledger.go: The retry loop over UpdateStock
  - store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent ledger updates.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Products with embedded stock ledger fields
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		sensitive BOOLEAN NOT NULL DEFAULT FALSE,
		fragile BOOLEAN NOT NULL DEFAULT FALSE,
		refrigerated BOOLEAN NOT NULL DEFAULT FALSE,
		quantity INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		safety_buffer INTEGER NOT NULL DEFAULT 0,
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		purchase_count INTEGER NOT NULL DEFAULT 0,
		last_purchase_at TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (quantity >= 0),
		CHECK (reserved >= 0)
	);

	-- Orders: aggregate body as JSON, hot query fields as columns
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		stock_phase TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		collected_amount TEXT NOT NULL DEFAULT '0',
		delivery_method TEXT NOT NULL,
		requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
		auto_confirm_at TEXT,
		delivery_attempts INTEGER NOT NULL DEFAULT 0,
		driver TEXT,
		delivery_json TEXT NOT NULL,
		items_json TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		processing_json TEXT NOT NULL,
		cancellation_json TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
	-- Hot path for the auto-confirm scheduler
	CREATE INDEX IF NOT EXISTS idx_orders_auto_confirm
		ON orders(status, requires_approval, auto_confirm_at)
		WHERE auto_confirm_at IS NOT NULL;

	-- Customers (referenced aggregate)
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		cod_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		successful_gcash_orders INTEGER NOT NULL DEFAULT 0,
		lifetime_orders INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PRODUCTS (inventory.StockStore)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, active, sensitive, fragile, refrigerated,
		       quantity, reserved, safety_buffer, low_stock_threshold,
		       purchase_count, last_purchase_at, version, created_at, updated_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (s *Store) PutProduct(ctx context.Context, p inventory.Product) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products
			(id, name, description, price, active, sensitive, fragile, refrigerated,
			 quantity, reserved, safety_buffer, low_stock_threshold,
			 purchase_count, last_purchase_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			active = excluded.active,
			sensitive = excluded.sensitive,
			fragile = excluded.fragile,
			refrigerated = excluded.refrigerated,
			quantity = excluded.quantity,
			reserved = excluded.reserved,
			safety_buffer = excluded.safety_buffer,
			low_stock_threshold = excluded.low_stock_threshold,
			purchase_count = excluded.purchase_count,
			last_purchase_at = excluded.last_purchase_at,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Active,
		p.Sensitive, p.Fragile, p.RequiresRefrigeration,
		p.Quantity, p.Reserved, p.SafetyBuffer, p.LowStockThreshold,
		p.PurchaseCount, nullTime(p.LastPurchaseAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to put product: %w", err)
	}
	return nil
}

// UpdateStock is the compare-and-swap write the ledger retries on.
func (s *Store) UpdateStock(ctx context.Context, p inventory.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			quantity = ?, reserved = ?, safety_buffer = ?,
			purchase_count = ?, last_purchase_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Quantity, p.Reserved, p.SafetyBuffer,
		p.PurchaseCount, nullTime(p.LastPurchaseAt),
		time.Now().UTC().Format(time.RFC3339),
		p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Row missing or version moved on; tell the ledger which.
		if _, err := s.GetProduct(ctx, p.ID); err != nil {
			return err
		}
		return inventory.ErrVersionConflict
	}
	return nil
}

func scanProduct(row *sql.Row) (inventory.Product, error) {
	var (
		p              inventory.Product
		price          string
		lastPurchaseAt sql.NullString
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Active,
		&p.Sensitive, &p.Fragile, &p.RequiresRefrigeration,
		&p.Quantity, &p.Reserved, &p.SafetyBuffer, &p.LowStockThreshold,
		&p.PurchaseCount, &lastPurchaseAt, &p.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	if err != nil {
		return inventory.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Price = mustDecimal(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	if lastPurchaseAt.Valid {
		t := parseTime(lastPurchaseAt.String)
		p.LastPurchaseAt = &t
	}
	return p, nil
}

// =============================================================================
// ORDERS (orders.OrderStore)
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, o orders.Order) error {
	deliveryJSON, _ := json.Marshal(o.Delivery)
	itemsJSON, _ := json.Marshal(o.Items)
	summaryJSON, _ := json.Marshal(o.Summary)
	historyJSON, _ := json.Marshal(o.StatusHistory)
	processingJSON, _ := json.Marshal(o.Processing)

	var cancellationJSON any
	if o.Cancellation != nil {
		b, _ := json.Marshal(o.Cancellation)
		cancellationJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, number, customer_id, status, stock_phase, payment_method,
			 payment_status, collected_amount, delivery_method,
			 requires_approval, auto_confirm_at, delivery_attempts, driver,
			 delivery_json, items_json, summary_json, history_json,
			 processing_json, cancellation_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		o.ID, o.Number, o.CustomerID, o.Status, o.StockPhase, o.PaymentMethod,
		o.PaymentStatus, o.CollectedAmount.String(), o.Delivery.Method,
		o.Processing.RequiresApproval, nullTime(o.Processing.AutoConfirmAt),
		o.DeliveryAttempts, o.Driver,
		string(deliveryJSON), string(itemsJSON), string(summaryJSON),
		string(historyJSON), string(processingJSON), cancellationJSON,
		o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// UpdateOrder is the compare-and-swap write the state machine retries on.
func (s *Store) UpdateOrder(ctx context.Context, o orders.Order) error {
	itemsJSON, _ := json.Marshal(o.Items)
	historyJSON, _ := json.Marshal(o.StatusHistory)
	processingJSON, _ := json.Marshal(o.Processing)

	var cancellationJSON any
	if o.Cancellation != nil {
		b, _ := json.Marshal(o.Cancellation)
		cancellationJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			status = ?, stock_phase = ?, payment_status = ?,
			collected_amount = ?, requires_approval = ?, auto_confirm_at = ?,
			delivery_attempts = ?, driver = ?, items_json = ?,
			history_json = ?, processing_json = ?, cancellation_json = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		o.Status, o.StockPhase, o.PaymentStatus,
		o.CollectedAmount.String(), o.Processing.RequiresApproval,
		nullTime(o.Processing.AutoConfirmAt),
		o.DeliveryAttempts, o.Driver, string(itemsJSON),
		string(historyJSON), string(processingJSON), cancellationJSON,
		o.UpdatedAt.Format(time.RFC3339), o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Row missing or version moved on; tell the state machine which.
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return orders.ErrVersionConflict
	}
	return nil
}

const orderColumns = `
	id, number, customer_id, status, stock_phase, payment_method,
	payment_status, collected_amount, delivery_attempts, driver,
	delivery_json, items_json, summary_json, history_json,
	processing_json, cancellation_json, version, created_at, updated_at`

func (s *Store) GetOrder(ctx context.Context, id orders.OrderID) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrder(row.Scan)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE number = ?`, number)
	return scanOrder(row.Scan)
}

func (s *Store) ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return s.queryOrders(ctx, query, args...)
}

func (s *Store) ListAutoConfirmDue(ctx context.Context, now time.Time) ([]orders.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND requires_approval = FALSE
		  AND auto_confirm_at IS NOT NULL AND auto_confirm_at <= ?
		ORDER BY auto_confirm_at`,
		orders.StatusPending, now.UTC().Format(time.RFC3339))
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(scan func(...any) error) (orders.Order, error) {
	var (
		o                orders.Order
		collectedAmount  string
		driver           sql.NullString
		deliveryJSON     string
		itemsJSON        string
		summaryJSON      string
		historyJSON      string
		processingJSON   string
		cancellationJSON sql.NullString
		createdAt        string
		updatedAt        string
	)
	err := scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.StockPhase,
		&o.PaymentMethod, &o.PaymentStatus, &collectedAmount,
		&o.DeliveryAttempts, &driver, &deliveryJSON, &itemsJSON,
		&summaryJSON, &historyJSON, &processingJSON, &cancellationJSON,
		&o.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	o.CollectedAmount = mustDecimal(collectedAmount)
	o.Driver = driver.String
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)

	// A row that no longer decodes must surface, not come back as a
	// zero-valued aggregate for side effects to act on.
	for _, col := range []struct {
		raw  string
		dest any
	}{
		{deliveryJSON, &o.Delivery},
		{itemsJSON, &o.Items},
		{summaryJSON, &o.Summary},
		{historyJSON, &o.StatusHistory},
		{processingJSON, &o.Processing},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return orders.Order{}, fmt.Errorf("failed to decode order %s: %w", o.ID, err)
		}
	}
	if cancellationJSON.Valid {
		var c orders.Cancellation
		if err := json.Unmarshal([]byte(cancellationJSON.String), &c); err != nil {
			return orders.Order{}, fmt.Errorf("failed to decode order %s: %w", o.ID, err)
		}
		o.Cancellation = &c
	}
	return o, nil
}

// =============================================================================
// CUSTOMERS (orders.CustomerDirectory)
// =============================================================================

func (s *Store) GetCustomer(ctx context.Context, id orders.CustomerID) (orders.Customer, error) {
	var (
		c         orders.Customer
		phone     sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, cod_eligible, successful_gcash_orders,
		       lifetime_orders, created_at
		FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &phone, &c.CODEligible, &c.SuccessfulGCashOrders,
			&c.LifetimeOrders, &createdAt)
	if err == sql.ErrNoRows {
		return orders.Customer{}, orders.ErrCustomerNotFound
	}
	if err != nil {
		return orders.Customer{}, fmt.Errorf("failed to scan customer: %w", err)
	}
	c.Phone = phone.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (s *Store) PutCustomer(ctx context.Context, c orders.Customer) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers
			(id, name, phone, cod_eligible, successful_gcash_orders,
			 lifetime_orders, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			cod_eligible = excluded.cod_eligible,
			successful_gcash_orders = excluded.successful_gcash_orders,
			lifetime_orders = excluded.lifetime_orders`,
		c.ID, c.Name, c.Phone, c.CODEligible, c.SuccessfulGCashOrders,
		c.LifetimeOrders, c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to put customer: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
