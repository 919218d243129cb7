package domain

import "github.com/shopspring/decimal"

type Discount struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// AppliedPromotion is a server-computed annotation copied verbatim onto a
// cart line. The client never derives these locally.
type AppliedPromotion struct {
	PromotionID string          `json:"promotion_id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Discount    decimal.Decimal `json:"discount"`
}

// CartItem snapshots name, code and unit price at add-time; later catalog
// changes do not retroactively alter an open cart. Discount holds the
// operator-applied discount; PromoDiscount and Promotions hold the
// server-reconciled promotional component. Both reduce the line total.
type CartItem struct {
	LineID        string             `json:"line_id"`
	ProductID     string             `json:"product_id"`
	Code          string             `json:"code"`
	Name          string             `json:"name"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	Quantity      int                `json:"quantity"`
	Discount      *Discount          `json:"discount,omitempty"`
	PromoDiscount decimal.Decimal    `json:"promo_discount"`
	Promotions    []AppliedPromotion `json:"promotions,omitempty"`
}

// Subtotal is unit price times quantity, rounded half-up to 2 decimals.
func (i CartItem) Subtotal() decimal.Decimal {
	return RoundMoney(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// DiscountAmount is the operator discount plus the promotional discount,
// capped at the line subtotal so a line can never go negative.
func (i CartItem) DiscountAmount() decimal.Decimal {
	subtotal := i.Subtotal()
	amount := i.PromoDiscount
	if i.Discount != nil {
		switch i.Discount.Kind {
		case DiscountPercent:
			amount = amount.Add(subtotal.Mul(i.Discount.Value).Div(decimal.NewFromInt(100)))
		case DiscountFixed:
			amount = amount.Add(i.Discount.Value)
		}
	}
	amount = RoundMoney(amount)
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

func (i CartItem) Total() decimal.Decimal {
	return i.Subtotal().Sub(i.DiscountAmount())
}

// CartTotals is the derived money view of a cart. GlobalDiscount is computed
// against the subtotal after item discounts; discounts compose sequentially.
type CartTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ItemsDiscount  decimal.Decimal `json:"items_discount"`
	GlobalDiscount decimal.Decimal `json:"global_discount"`
	Total          decimal.Decimal `json:"total"`
	ItemCount      int             `json:"item_count"`
	TotalQuantity  int             `json:"total_quantity"`
}

type CartSnapshot struct {
	// Reference is a globally unique id minted when the snapshot is taken.
	// It travels with the sale as its idempotency key, so a replayed
	// submission can be deduplicated by the remote system.
	Reference  string     `json:"reference"`
	Items      []CartItem `json:"items"`
	CustomerID string     `json:"customer_id,omitempty"`
	Note       string     `json:"note,omitempty"`
	Global     *Discount  `json:"global_discount,omitempty"`
	Totals     CartTotals `json:"totals"`
}

// DiscountItem is one (product, quantity, unit price) tuple submitted to the
// remote pricing authority.
type DiscountItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineDiscountResult is the authoritative per-line outcome of a discount
// calculation, applied verbatim to the matching cart line.
type LineDiscountResult struct {
	ProductID  string             `json:"product_id"`
	Discount   decimal.Decimal    `json:"discount"`
	Promotions []AppliedPromotion `json:"promotions,omitempty"`
}

const (
	DiscountPercent = "percentage"
	DiscountFixed   = "amount"
)
