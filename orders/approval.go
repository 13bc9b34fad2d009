/*
approval.go - Manual-approval gating policy

PURPOSE:
  Decides whether a checkout may auto-proceed or must be held in pending
  for human review. Pure function over resolved snapshots - no store
  access, fully testable in isolation.

PREDICATES (evaluated in fixed order, all accumulated - no short circuit):
  1. Any line item's product is currently low on stock     -> low_stock
  2. Any line item's product is sensitive                  -> sensitive_product
     (price at/above threshold, or flagged, fragile, or refrigerated)
  3. Deferred cash payment by a not-yet-eligible customer  -> first_time_cod
  4. Order total at/above the high-value threshold         -> high_value

  requiresManualApproval = reasons nonempty. The complete reason set is
  stored on the order so operators see every concern.

SEE ALSO:
  - admission.go: Calls this with snapshots resolved during reservation
  - machine.go: GCash confirms grow the eligibility counter
*/
package orders

import (
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/inventory"
)

// ApprovalConfig carries the policy thresholds.
type ApprovalConfig struct {
	// SensitivePrice: a unit price at or above this marks a product sensitive.
	SensitivePrice decimal.Decimal

	// HighValue: an order total at or above this needs review.
	HighValue decimal.Decimal

	// CODEligibleAfter: successful GCash orders needed before COD is trusted.
	CODEligibleAfter int
}

// ApprovalInput is everything the policy looks at, resolved by the caller.
type ApprovalInput struct {
	Products []inventory.Product // one per line item, checkout order
	Customer Customer
	Payment  PaymentMethod
	Total    decimal.Decimal
}

// ApprovalResult is the decision plus the full reason set.
type ApprovalResult struct {
	RequiresApproval bool
	Reasons          []ApprovalReason
}

// EvaluateApproval runs every predicate and unions the reasons. Each reason
// appears at most once regardless of how many items trip it.
func EvaluateApproval(cfg ApprovalConfig, in ApprovalInput) ApprovalResult {
	var reasons []ApprovalReason

	for _, p := range in.Products {
		if inventory.StatusOf(p) == inventory.StatusLowStock {
			reasons = append(reasons, ReasonLowStock)
			break
		}
	}

	for _, p := range in.Products {
		if isSensitive(cfg, p) {
			reasons = append(reasons, ReasonSensitiveProduct)
			break
		}
	}

	if in.Payment == PaymentCOD && !in.Customer.CODEligible {
		reasons = append(reasons, ReasonFirstTimeCOD)
	}

	if in.Total.GreaterThanOrEqual(cfg.HighValue) {
		reasons = append(reasons, ReasonHighValue)
	}

	return ApprovalResult{RequiresApproval: len(reasons) > 0, Reasons: reasons}
}

func isSensitive(cfg ApprovalConfig, p inventory.Product) bool {
	return p.Price.GreaterThanOrEqual(cfg.SensitivePrice) ||
		p.Sensitive || p.Fragile || p.RequiresRefrigeration
}
