package pricing

import "github.com/shopspring/decimal"

// Billing policy constants. The tax rate and delivery fee are platform
// policy, not cache-derived.
var (
	hundred = decimal.NewFromInt(100)

	taxPercent            = decimal.NewFromInt(18)
	deliveryCharge        = decimal.NewFromInt(20)
	freeDeliveryThreshold = decimal.NewFromInt(500)
)

// Bill is the breakdown of the amount the customer pays. All fields are
// integer currency units.
type Bill struct {
	Total           decimal.Decimal
	Discount        decimal.Decimal
	Taxes           decimal.Decimal
	DeliveryCharges decimal.Decimal
	FinalAmount     decimal.Decimal
}

// ComputeBill derives the payable amount from the cart total and a discount
// percentage. The order of operations is part of the pricing contract:
// discount first, then 18% tax on the discounted amount, then the delivery
// fee. Each step rounds half-up to the nearest integer currency unit.
func ComputeBill(cartTotal, discountPercent decimal.Decimal) Bill {
	discount := cartTotal.Mul(discountPercent).Div(hundred).Round(0)
	afterDiscount := cartTotal.Sub(discount)
	taxes := afterDiscount.Mul(taxPercent).Div(hundred).Round(0)

	delivery := deliveryCharge
	if cartTotal.GreaterThanOrEqual(freeDeliveryThreshold) {
		delivery = decimal.Zero
	}

	return Bill{
		Total:           cartTotal,
		Discount:        discount,
		Taxes:           taxes,
		DeliveryCharges: delivery,
		FinalAmount:     afterDiscount.Add(taxes).Add(delivery),
	}
}
