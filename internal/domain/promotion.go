package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promotion definitions are server-computed and cached only in memory. The
// whole list is replaced on every successful fetch; it is never persisted
// and never partially updated. Definitions serve display and browsing; cart
// discounts always come from the remote calculation endpoint.
type Promotion struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Scope       string          `json:"scope"`
	ProductIDs  []string        `json:"product_ids,omitempty"`
	CategoryIDs []string        `json:"category_ids,omitempty"`
	BrandIDs    []string        `json:"brand_ids,omitempty"`
	Value       decimal.Decimal `json:"value"`
	BuyQty      int             `json:"buy_qty,omitempty"`
	GetQty      int             `json:"get_qty,omitempty"`
	StartsAt    time.Time       `json:"starts_at"`
	EndsAt      time.Time       `json:"ends_at"`
}

func (p Promotion) ActiveAt(t time.Time) bool {
	if !p.StartsAt.IsZero() && t.Before(p.StartsAt) {
		return false
	}
	if !p.EndsAt.IsZero() && t.After(p.EndsAt) {
		return false
	}
	return true
}

const (
	PromoTypePercentage = "percentage"
	PromoTypeAmount     = "amount"
	PromoTypeBuyXGetY   = "buy_x_get_y"
	PromoTypeSecondUnit = "second_unit"
	PromoTypeFlash      = "flash"
)

const (
	PromoScopeAll        = "all"
	PromoScopeProducts   = "products"
	PromoScopeCategories = "categories"
	PromoScopeBrands     = "brands"
)
