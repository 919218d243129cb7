package remote

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire types for the remote catalog API. Payloads are decoded into these
// structs at the client boundary and mapped to domain entities by callers;
// untyped maps never leave this package.

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HasMore reports whether pages remain after the current one.
func (p Pagination) HasMore() bool {
	return p.Page < p.TotalPages
}

type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}

type Brand struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}

type PriceEntry struct {
	PriceListID string          `json:"priceListId"`
	Price       decimal.Decimal `json:"price"`
}

type Product struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	CategoryID      *string         `json:"categoryId"`
	BrandID         *string         `json:"brandId"`
	Price           decimal.Decimal `json:"price"`
	Cost            decimal.Decimal `json:"cost"`
	Stock           decimal.Decimal `json:"stock"`
	IsParent        bool            `json:"isParent"`
	ParentProductID *string         `json:"parentProductId"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	Active          bool            `json:"active"`
	PriceEntries    []PriceEntry    `json:"priceListEntries"`
}

type Customer struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DocNumber   string  `json:"docNumber"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	PriceListID *string `json:"priceListId"`
	Active      bool    `json:"active"`
}

type Promotion struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Scope       string          `json:"scope"`
	ProductIDs  []string        `json:"productIds"`
	CategoryIDs []string        `json:"categoryIds"`
	BrandIDs    []string        `json:"brandIds"`
	Value       decimal.Decimal `json:"value"`
	BuyQty      int             `json:"buyQty"`
	GetQty      int             `json:"getQty"`
	StartsAt    time.Time       `json:"startsAt"`
	EndsAt      time.Time       `json:"endsAt"`
}

type DiscountRequestItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type DiscountResultPromotion struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Discount decimal.Decimal `json:"discount"`
}

type DiscountResultItem struct {
	ProductID  string                    `json:"productId"`
	Discount   decimal.Decimal           `json:"discount"`
	Promotions []DiscountResultPromotion `json:"promotions"`
}

type DiscountResult struct {
	Items         []DiscountResultItem `json:"items"`
	TotalDiscount decimal.Decimal      `json:"totalDiscount"`
}

type CashSession struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	PosID          string          `json:"posId"`
	OperatorID     string          `json:"operatorId"`
	OperatorName   string          `json:"operatorName"`
	OpeningAmount  decimal.Decimal `json:"openingAmount"`
	ClosingAmount  decimal.Decimal `json:"closingAmount"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
	SalesCount     int             `json:"salesCount"`
	MovementsCount int             `json:"movementsCount"`
	OpenedAt       time.Time       `json:"openedAt"`
	ClosedAt       *time.Time      `json:"closedAt"`
}
