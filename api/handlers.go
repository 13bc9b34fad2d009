/*
handlers.go - HTTP API handlers for the order engine

PURPOSE:
  Exposes order admission, status transitions, and availability reads via
  REST. Handles HTTP request/response and JSON serialization, delegates
  everything else to the orders and inventory packages.

ENDPOINTS:
  Orders:
    POST   /api/orders                     Admit a checkout
    GET    /api/orders                     List orders (?status= filter)
    GET    /api/orders/{id}                Get order (id or order number)
    POST   /api/orders/{id}/transition     Move to a target status
    PUT    /api/orders/{id}/driver         Record a driver reference

  Products:
    POST   /api/products                   Create/update a product
    GET    /api/products/{id}              Get product with derived stock
    GET    /api/products/{id}/availability Availability only

  Customers:
    POST   /api/customers                  Create a customer
    GET    /api/customers/{id}             Get a customer

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Outside business hours
  - 404: Order/product/customer not found
  - 409: Capacity or state conflicts (insufficient stock, daily cap,
         invalid transition)
  - 503: Contention retry budget exhausted; retry the whole call

SECURITY NOTE:
  No authentication middleware. Identity and authz are owned by an outer
  layer; handlers take the actor from the request body at face value.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Admission *orders.Admission
	Machine   *orders.StateMachine
	Ledger    *inventory.Ledger
	Products  inventory.StockStore
	Orders    orders.OrderStore
	Customers orders.CustomerDirectory

	// Now is the clock used by the accepting-orders gate. Overridable in
	// tests.
	Now func() time.Time
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(
	admission *orders.Admission,
	machine *orders.StateMachine,
	ledger *inventory.Ledger,
	products inventory.StockStore,
	orderStore orders.OrderStore,
	customers orders.CustomerDirectory,
) *Handler {
	return &Handler{
		Admission: admission,
		Machine:   machine,
		Ledger:    ledger,
		Products:  products,
		Orders:    orderStore,
		Customers: customers,
		Now:       time.Now,
	}
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// AdmitOrder handles POST /api/orders. The accepting-orders gate runs
// here, before admission is invoked.
func (h *Handler) AdmitOrder(w http.ResponseWriter, r *http.Request) {
	var req AdmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required", nil)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "At least one item is required", nil)
		return
	}

	if !h.Admission.Hours().IsOpen(h.Now()) {
		writeError(w, http.StatusForbidden, "Not accepting orders right now", orders.ErrOutsideBusinessHours)
		return
	}

	items := make([]orders.RequestedItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.RequestedItem{
			ProductID: inventory.ProductID(it.ProductID),
			Quantity:  it.Quantity,
			Modifiers: it.Modifiers,
		})
	}

	o, err := h.Admission.Admit(r.Context(), orders.AdmitRequest{
		CustomerID: orders.CustomerID(req.CustomerID),
		Items:      items,
		Delivery: orders.DeliveryInfo{
			Method:       orders.DeliveryMethod(req.Delivery.Method),
			Address:      req.Delivery.Address,
			ContactPhone: req.Delivery.ContactPhone,
			Notes:        req.Delivery.Notes,
		},
		Payment: orders.PaymentMethod(req.Payment),
	})
	if err != nil {
		writeDomainError(w, "Checkout rejected", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

// GetOrder handles GET /api/orders/{id}. Accepts either the opaque id or
// the human-readable order number.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.Orders.GetOrder(r.Context(), orders.OrderID(id))
	if orders.IsNotFound(err) {
		o, err = h.Orders.GetOrderByNumber(r.Context(), id)
	}
	if err != nil {
		writeDomainError(w, "Failed to get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// ListOrders handles GET /api/orders with an optional ?status= filter.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status != "" && !orders.IsValid(status) {
		writeError(w, http.StatusBadRequest, "Unknown status filter", nil)
		return
	}

	list, err := h.Orders.ListOrders(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TransitionOrder handles POST /api/orders/{id}/transition.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	target := orders.Status(req.Target)
	if !orders.IsValid(target) {
		writeError(w, http.StatusBadRequest, "Unknown target status", nil)
		return
	}

	o, err := h.Machine.Transition(r.Context(), orders.OrderID(id), target, req.Actor, req.Note)
	if err != nil {
		writeDomainError(w, "Transition rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// AssignDriver handles PUT /api/orders/{id}/driver.
func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AssignDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Driver == "" {
		writeError(w, http.StatusBadRequest, "driver is required", nil)
		return
	}

	o, err := h.Machine.AssignDriver(r.Context(), orders.OrderID(id), req.Driver)
	if err != nil {
		writeDomainError(w, "Failed to assign driver", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	if req.Quantity < 0 || req.SafetyBuffer < 0 {
		writeError(w, http.StatusBadRequest, "Stock fields must be non-negative", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	p := inventory.Product{
		ID:                    inventory.ProductID(req.ID),
		Name:                  req.Name,
		Description:           req.Description,
		Price:                 price,
		Active:                active,
		Sensitive:             req.Sensitive,
		Fragile:               req.Fragile,
		RequiresRefrigeration: req.RequiresRefrigeration,
		Quantity:              req.Quantity,
		SafetyBuffer:          req.SafetyBuffer,
		LowStockThreshold:     req.LowStockThreshold,
	}
	if err := h.Products.PutProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}

	stored, err := h.Products.GetProduct(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(stored))
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))

	p, err := h.Products.GetProduct(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// GetAvailability handles GET /api/products/{id}/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))

	av, err := h.Ledger.Availability(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		ProductID: string(id),
		Available: av.Available,
		Status:    string(av.Status),
	})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// CreateCustomer handles POST /api/customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	c := orders.Customer{
		ID:        orders.CustomerID(req.ID),
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Customers.PutCustomer(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// GetCustomer handles GET /api/customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := orders.CustomerID(chi.URLParam(r, "id"))

	c, err := h.Customers.GetCustomer(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Structured
// errors keep their detail in the response body.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case orders.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case orders.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	case orders.IsClientError(err):
		writeError(w, conflictOrBadRequest(err), message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func conflictOrBadRequest(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrDailyCapReached),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, orders.ErrOutsideBusinessHours):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
