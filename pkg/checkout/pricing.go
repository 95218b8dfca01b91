package checkout

import "github.com/shopspring/decimal"

// FunnelShipping is free from freeQty units upward and fee below that.
func FunnelShipping(quantity, freeQty int, fee decimal.Decimal) decimal.Decimal {
	if quantity >= freeQty {
		return decimal.Zero
	}
	return fee
}

// FunnelTotal is the draft total plus shipping, rounded to cents.
func FunnelTotal(draftTotal decimal.Decimal, quantity, freeQty int, fee decimal.Decimal) decimal.Decimal {
	return draftTotal.Add(FunnelShipping(quantity, freeQty, fee)).Round(2)
}
