/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Monetary
  amounts cross the wire as strings to keep decimal precision out of
  float-typed JSON.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

// =============================================================================
// ORDER TYPES
// =============================================================================

type OrderItemDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
	Modifiers string `json:"modifiers,omitempty"`
}

type SummaryDTO struct {
	Subtotal    string `json:"subtotal"`
	DeliveryFee string `json:"delivery_fee"`
	Surcharge   string `json:"surcharge"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
}

type HistoryEntryDTO struct {
	Status    string `json:"status"`
	At        string `json:"at"`
	Actor     string `json:"actor,omitempty"`
	Note      string `json:"note,omitempty"`
	Automatic bool   `json:"automatic"`
}

type ProcessingDTO struct {
	RequiresApproval bool     `json:"requires_manual_approval"`
	ApprovalReasons  []string `json:"approval_reasons,omitempty"`
	AutoConfirmAt    *string  `json:"auto_confirm_at,omitempty"`
	ApprovedBy       string   `json:"approved_by,omitempty"`
}

type CancellationDTO struct {
	At     string `json:"at"`
	By     string `json:"by,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type OrderDTO struct {
	ID               string            `json:"id"`
	Number           string            `json:"number"`
	CustomerID       string            `json:"customer_id"`
	Status           string            `json:"status"`
	Items            []OrderItemDTO    `json:"items"`
	Summary          SummaryDTO        `json:"summary"`
	DeliveryMethod   string            `json:"delivery_method"`
	Address          string            `json:"address,omitempty"`
	ContactPhone     string            `json:"contact_phone,omitempty"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentStatus    string            `json:"payment_status"`
	CollectedAmount  string            `json:"collected_amount,omitempty"`
	Processing       ProcessingDTO     `json:"processing"`
	StatusHistory    []HistoryEntryDTO `json:"status_history"`
	DeliveryAttempts int               `json:"delivery_attempts,omitempty"`
	Driver           string            `json:"driver,omitempty"`
	Cancellation     *CancellationDTO  `json:"cancellation,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// AdmitOrderRequest is one checkout submission.
type AdmitOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Items      []AdmitItemRequest `json:"items"`
	Delivery   DeliveryRequest    `json:"delivery"`
	Payment    string             `json:"payment_method"`
}

type AdmitItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Modifiers string `json:"modifiers,omitempty"`
}

type DeliveryRequest struct {
	Method       string `json:"method"`
	Address      string `json:"address,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// TransitionRequest moves an order to a target status.
type TransitionRequest struct {
	Target string `json:"target"`
	Actor  string `json:"actor,omitempty"`
	Note   string `json:"note,omitempty"`
}

type AssignDriverRequest struct {
	Driver string `json:"driver"`
}

// =============================================================================
// PRODUCT TYPES
// =============================================================================

type ProductDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	Price                 string `json:"price"`
	Active                bool   `json:"active"`
	Sensitive             bool   `json:"sensitive"`
	Fragile               bool   `json:"fragile"`
	RequiresRefrigeration bool   `json:"requires_refrigeration"`
	Quantity              int    `json:"quantity"`
	Reserved              int    `json:"reserved"`
	SafetyBuffer          int    `json:"safety_buffer"`
	LowStockThreshold     int    `json:"low_stock_threshold"`
	Available             int    `json:"available"`
	Status                string `json:"status"`
	PurchaseCount         int    `json:"purchase_count"`
}

type CreateProductRequest struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	Price                 string `json:"price"`
	Active                *bool  `json:"active,omitempty"`
	Sensitive             bool   `json:"sensitive"`
	Fragile               bool   `json:"fragile"`
	RequiresRefrigeration bool   `json:"requires_refrigeration"`
	Quantity              int    `json:"quantity"`
	SafetyBuffer          int    `json:"safety_buffer"`
	LowStockThreshold     int    `json:"low_stock_threshold"`
}

type AvailabilityDTO struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Status    string `json:"status"`
}

// =============================================================================
// CUSTOMER TYPES
// =============================================================================

type CustomerDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Phone                 string `json:"phone,omitempty"`
	CODEligible           bool   `json:"cod_eligible"`
	SuccessfulGCashOrders int    `json:"successful_gcash_orders"`
	LifetimeOrders        int    `json:"lifetime_orders"`
}

type CreateCustomerRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toOrderDTO(o orders.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID: string(it.ProductID),
			Name:      it.Name,
			UnitPrice: it.UnitPrice.String(),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal.String(),
			Modifiers: it.Modifiers,
		})
	}

	history := make([]HistoryEntryDTO, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		history = append(history, HistoryEntryDTO{
			Status:    string(h.Status),
			At:        h.At.Format(time.RFC3339),
			Actor:     h.Actor,
			Note:      h.Note,
			Automatic: h.Automatic,
		})
	}

	reasons := make([]string, 0, len(o.Processing.ApprovalReasons))
	for _, r := range o.Processing.ApprovalReasons {
		reasons = append(reasons, string(r))
	}

	dto := OrderDTO{
		ID:             string(o.ID),
		Number:         o.Number,
		CustomerID:     string(o.CustomerID),
		Status:         string(o.Status),
		Items:          items,
		DeliveryMethod: string(o.Delivery.Method),
		Address:        o.Delivery.Address,
		ContactPhone:   o.Delivery.ContactPhone,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		Summary: SummaryDTO{
			Subtotal:    o.Summary.Subtotal.String(),
			DeliveryFee: o.Summary.DeliveryFee.String(),
			Surcharge:   o.Summary.Surcharge.String(),
			Total:       o.Summary.Total.String(),
			ItemCount:   o.Summary.ItemCount,
		},
		Processing: ProcessingDTO{
			RequiresApproval: o.Processing.RequiresApproval,
			ApprovalReasons:  reasons,
			ApprovedBy:       o.Processing.ApprovedBy,
		},
		StatusHistory:    history,
		DeliveryAttempts: o.DeliveryAttempts,
		Driver:           o.Driver,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
	}
	if !o.CollectedAmount.IsZero() {
		dto.CollectedAmount = o.CollectedAmount.String()
	}
	if o.Processing.AutoConfirmAt != nil {
		s := o.Processing.AutoConfirmAt.Format(time.RFC3339)
		dto.Processing.AutoConfirmAt = &s
	}
	if o.Cancellation != nil {
		dto.Cancellation = &CancellationDTO{
			At:     o.Cancellation.At.Format(time.RFC3339),
			By:     o.Cancellation.By,
			Reason: o.Cancellation.Reason,
		}
	}
	return dto
}

func toProductDTO(p inventory.Product) ProductDTO {
	av := inventory.AvailabilityOf(p)
	return ProductDTO{
		ID:                    string(p.ID),
		Name:                  p.Name,
		Description:           p.Description,
		Price:                 p.Price.String(),
		Active:                p.Active,
		Sensitive:             p.Sensitive,
		Fragile:               p.Fragile,
		RequiresRefrigeration: p.RequiresRefrigeration,
		Quantity:              p.Quantity,
		Reserved:              p.Reserved,
		SafetyBuffer:          p.SafetyBuffer,
		LowStockThreshold:     p.LowStockThreshold,
		Available:             av.Available,
		Status:                string(av.Status),
		PurchaseCount:         p.PurchaseCount,
	}
}

func toCustomerDTO(c orders.Customer) CustomerDTO {
	return CustomerDTO{
		ID:                    string(c.ID),
		Name:                  c.Name,
		Phone:                 c.Phone,
		CODEligible:           c.CODEligible,
		SuccessfulGCashOrders: c.SuccessfulGCashOrders,
		LifetimeOrders:        c.LifetimeOrders,
	}
}
