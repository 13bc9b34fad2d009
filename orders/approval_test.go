package orders_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/campo-vida/order-engine/inventory"
	"github.com/campo-vida/order-engine/orders"
)

func approvalConfig() orders.ApprovalConfig {
	return orders.ApprovalConfig{
		SensitivePrice:   decimal.NewFromInt(1000),
		HighValue:        decimal.NewFromInt(3000),
		CODEligibleAfter: 3,
	}
}

func plainProduct(price int64, available int) inventory.Product {
	return inventory.Product{
		ID:                "p",
		Price:             decimal.NewFromInt(price),
		Active:            true,
		Quantity:          available,
		LowStockThreshold: 5,
	}
}

func eligibleCustomer() orders.Customer {
	return orders.Customer{ID: "c", CODEligible: true, SuccessfulGCashOrders: 3}
}

func TestApproval_NoConcerns_AutoProceeds(t *testing.T) {
	// GIVEN: Well-stocked cheap product, GCash, modest total
	// THEN: No hold, empty reason set

	result := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{plainProduct(100, 50)},
		Customer: eligibleCustomer(),
		Payment:  orders.PaymentGCash,
		Total:    decimal.NewFromInt(200),
	})

	assert.False(t, result.RequiresApproval)
	assert.Empty(t, result.Reasons)
}

func TestApproval_LowStockItem_Held(t *testing.T) {
	low := plainProduct(100, 3) // available 3 <= threshold 5

	result := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{low},
		Customer: eligibleCustomer(),
		Payment:  orders.PaymentGCash,
		Total:    decimal.NewFromInt(100),
	})

	assert.True(t, result.RequiresApproval)
	assert.Equal(t, []orders.ApprovalReason{orders.ReasonLowStock}, result.Reasons)
}

func TestApproval_SensitiveProduct_ByPriceOrFlag(t *testing.T) {
	cfg := approvalConfig()
	base := orders.ApprovalInput{
		Customer: eligibleCustomer(),
		Payment:  orders.PaymentGCash,
		Total:    decimal.NewFromInt(100),
	}

	pricey := plainProduct(1000, 50) // at the threshold counts
	base.Products = []inventory.Product{pricey}
	assert.Contains(t, orders.EvaluateApproval(cfg, base).Reasons, orders.ReasonSensitiveProduct)

	flagged := plainProduct(100, 50)
	flagged.Fragile = true
	base.Products = []inventory.Product{flagged}
	assert.Contains(t, orders.EvaluateApproval(cfg, base).Reasons, orders.ReasonSensitiveProduct)

	chilled := plainProduct(100, 50)
	chilled.RequiresRefrigeration = true
	base.Products = []inventory.Product{chilled}
	assert.Contains(t, orders.EvaluateApproval(cfg, base).Reasons, orders.ReasonSensitiveProduct)
}

func TestApproval_FirstTimeCOD_Held(t *testing.T) {
	// GIVEN: Customer without COD eligibility paying deferred cash
	// THEN: Held; the same customer on GCash is not

	newcomer := orders.Customer{ID: "c", CODEligible: false}

	held := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{plainProduct(100, 50)},
		Customer: newcomer,
		Payment:  orders.PaymentCOD,
		Total:    decimal.NewFromInt(100),
	})
	assert.Equal(t, []orders.ApprovalReason{orders.ReasonFirstTimeCOD}, held.Reasons)

	trusted := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{plainProduct(100, 50)},
		Customer: newcomer,
		Payment:  orders.PaymentGCash,
		Total:    decimal.NewFromInt(100),
	})
	assert.False(t, trusted.RequiresApproval)
}

func TestApproval_HighValueTotal_Held(t *testing.T) {
	result := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{plainProduct(100, 50)},
		Customer: eligibleCustomer(),
		Payment:  orders.PaymentGCash,
		Total:    decimal.NewFromInt(3000), // at the threshold counts
	})

	assert.Equal(t, []orders.ApprovalReason{orders.ReasonHighValue}, result.Reasons)
}

func TestApproval_AccumulatesAllReasons_EachOnce(t *testing.T) {
	// GIVEN: Two low-stock sensitive products, COD newcomer, huge total
	// THEN: Every predicate fires, each reason exactly once, fixed order

	a := plainProduct(2000, 2)
	b := plainProduct(5000, 1)
	b.Sensitive = true

	result := orders.EvaluateApproval(approvalConfig(), orders.ApprovalInput{
		Products: []inventory.Product{a, b},
		Customer: orders.Customer{ID: "c", CODEligible: false},
		Payment:  orders.PaymentCOD,
		Total:    decimal.NewFromInt(7000),
	})

	assert.True(t, result.RequiresApproval)
	assert.Equal(t, []orders.ApprovalReason{
		orders.ReasonLowStock,
		orders.ReasonSensitiveProduct,
		orders.ReasonFirstTimeCOD,
		orders.ReasonHighValue,
	}, result.Reasons)
}
