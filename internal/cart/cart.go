package cart

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/localid"
)

// Limits bound cart growth and operator discounts.
type Limits struct {
	MaxItems           int
	MaxItemQty         int
	MaxDiscountPercent int
}

// Engine is the single-session cart aggregate. All mutations validate
// before touching state: a rejected call leaves the cart untouched. Reads
// and writes are guarded by one mutex because the promotion reconciler
// applies results from its own goroutine.
type Engine struct {
	mu     sync.Mutex
	limits Limits
	log    *zap.Logger

	items      []domain.CartItem
	customerID string
	note       string
	global     *domain.Discount
}

func NewEngine(limits Limits, log *zap.Logger) *Engine {
	if limits.MaxItems <= 0 {
		limits.MaxItems = 100
	}
	if limits.MaxItemQty <= 0 {
		limits.MaxItemQty = 999
	}
	if limits.MaxDiscountPercent <= 0 {
		limits.MaxDiscountPercent = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{limits: limits, log: log}
}

// AddItem appends a line for the product, snapshotting name, code and unit
// price at add-time. A line already holding the product has its quantity
// summed instead. unitPrice overrides the product's own price when the
// active price list resolves a different one.
func (e *Engine) AddItem(product domain.Product, qty int, unitPrice *decimal.Decimal) (domain.CartItem, error) {
	if qty <= 0 {
		return domain.CartItem{}, fmt.Errorf("%w: quantity must be greater than zero", domain.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, item := range e.items {
		if item.ProductID != product.ID {
			continue
		}
		merged := item.Quantity + qty
		if merged > e.limits.MaxItemQty {
			return domain.CartItem{}, fmt.Errorf("%w: quantity %d exceeds the maximum of %d per item", domain.ErrValidation, merged, e.limits.MaxItemQty)
		}
		e.items[i].Quantity = merged
		return e.items[i], nil
	}

	if len(e.items) >= e.limits.MaxItems {
		return domain.CartItem{}, fmt.Errorf("%w: cart is full (%d items)", domain.ErrValidation, e.limits.MaxItems)
	}
	if qty > e.limits.MaxItemQty {
		return domain.CartItem{}, fmt.Errorf("%w: quantity %d exceeds the maximum of %d per item", domain.ErrValidation, qty, e.limits.MaxItemQty)
	}

	price := product.Price
	if unitPrice != nil {
		price = *unitPrice
	}
	line := domain.CartItem{
		LineID:    localid.New("ln"),
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		UnitPrice: price,
		Quantity:  qty,
	}
	e.items = append(e.items, line)
	return line, nil
}

func (e *Engine) RemoveItem(lineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, item := range e.items {
		if item.LineID == lineID {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// UpdateQuantity sets a line's quantity. Zero or negative is a validation
// error; callers remove the line instead.
func (e *Engine) UpdateQuantity(lineID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero, remove the item instead", domain.ErrValidation)
	}
	if qty > e.limits.MaxItemQty {
		return fmt.Errorf("%w: quantity %d exceeds the maximum of %d per item", domain.ErrValidation, qty, e.limits.MaxItemQty)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, item := range e.items {
		if item.LineID == lineID {
			e.items[i].Quantity = qty
			return nil
		}
	}
	return domain.ErrNotFound
}

// ApplyItemDiscount sets the operator discount on a line. The promotional
// component applied by the reconciler is held separately and unaffected.
func (e *Engine) ApplyItemDiscount(lineID string, kind string, value decimal.Decimal) error {
	if err := e.validateDiscount(kind, value); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, item := range e.items {
		if item.LineID == lineID {
			e.items[i].Discount = &domain.Discount{Kind: kind, Value: value}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (e *Engine) ApplyGlobalDiscount(kind string, value decimal.Decimal) error {
	if err := e.validateDiscount(kind, value); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.global = &domain.Discount{Kind: kind, Value: value}
	return nil
}

func (e *Engine) validateDiscount(kind string, value decimal.Decimal) error {
	if value.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", domain.ErrValidation)
	}
	switch kind {
	case domain.DiscountPercent:
		if value.GreaterThan(decimal.NewFromInt(int64(e.limits.MaxDiscountPercent))) {
			return fmt.Errorf("%w: discount exceeds the maximum of %d%%", domain.ErrValidation, e.limits.MaxDiscountPercent)
		}
	case domain.DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown discount type %q", domain.ErrValidation, kind)
	}
	return nil
}

func (e *Engine) SetCustomer(customerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customerID = customerID
}

func (e *Engine) SetNote(note string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.note = note
}

// Clear empties the cart and resets customer, note and global discount
// together. Partial clears are not supported.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = nil
	e.customerID = ""
	e.note = ""
	e.global = nil
}

func (e *Engine) Items() []domain.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneItems(e.items)
}

func (e *Engine) CustomerID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.customerID
}

// Totals computes the derived money view. Line subtotals are each rounded
// half-up to 2 decimals; the global discount applies to the subtotal after
// item discounts, and the grand total is rounded once at the end.
func (e *Engine) Totals() domain.CartTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalsLocked()
}

func (e *Engine) totalsLocked() domain.CartTotals {
	subtotal := decimal.Zero
	itemsDiscount := decimal.Zero
	totalQty := 0
	for _, item := range e.items {
		subtotal = subtotal.Add(item.Subtotal())
		itemsDiscount = itemsDiscount.Add(item.DiscountAmount())
		totalQty += item.Quantity
	}

	afterItems := subtotal.Sub(itemsDiscount)
	globalDiscount := decimal.Zero
	if e.global != nil {
		switch e.global.Kind {
		case domain.DiscountPercent:
			globalDiscount = afterItems.Mul(e.global.Value).Div(decimal.NewFromInt(100))
		case domain.DiscountFixed:
			globalDiscount = e.global.Value
		}
		if globalDiscount.GreaterThan(afterItems) {
			globalDiscount = afterItems
		}
		globalDiscount = domain.RoundMoney(globalDiscount)
	}

	return domain.CartTotals{
		Subtotal:       domain.RoundMoney(subtotal),
		ItemsDiscount:  domain.RoundMoney(itemsDiscount),
		GlobalDiscount: globalDiscount,
		Total:          domain.RoundMoney(afterItems.Sub(globalDiscount)),
		ItemCount:      len(e.items),
		TotalQuantity:  totalQty,
	}
}

// Snapshot returns the full cart view handed to the presentation layer.
func (e *Engine) Snapshot() domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var global *domain.Discount
	if e.global != nil {
		g := *e.global
		global = &g
	}
	return domain.CartSnapshot{
		Reference:  uuid.NewString(),
		Items:      cloneItems(e.items),
		CustomerID: e.customerID,
		Note:       e.note,
		Global:     global,
		Totals:     e.totalsLocked(),
	}
}

// ContentKey derives a stable key from the multiset of (product, quantity)
// pairs. The reconciler skips recalculation while the key is unchanged and
// drops results whose captured key no longer matches.
func (e *Engine) ContentKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contentKeyLocked()
}

func (e *Engine) contentKeyLocked() string {
	if len(e.items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.items))
	for _, item := range e.items {
		parts = append(parts, fmt.Sprintf("%s:%d", item.ProductID, item.Quantity))
	}
	sort.Strings(parts)
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// DiscountItems returns the tuples submitted to the pricing authority.
func (e *Engine) DiscountItems() []domain.DiscountItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]domain.DiscountItem, 0, len(e.items))
	for _, item := range e.items {
		items = append(items, domain.DiscountItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return items
}

// ApplyPromotionsIfCurrent overwrites every line's promotional discount and
// annotations from a server result, but only when the cart content still
// matches the key the calculation was made for. A stale result is dropped
// and false returned. Lines absent from the result are reset to zero; the
// client never keeps a discount the server did not confirm.
func (e *Engine) ApplyPromotionsIfCurrent(key string, results []domain.LineDiscountResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.contentKeyLocked() != key {
		return false
	}

	byProduct := make(map[string]domain.LineDiscountResult, len(results))
	for _, result := range results {
		byProduct[result.ProductID] = result
	}
	for i, item := range e.items {
		if result, ok := byProduct[item.ProductID]; ok {
			e.items[i].PromoDiscount = result.Discount
			e.items[i].Promotions = result.Promotions
		} else {
			e.items[i].PromoDiscount = decimal.Zero
			e.items[i].Promotions = nil
		}
	}
	return true
}

// ResetPromotionsIfCurrent zeroes the promotional components when no
// confirmed calculation exists for the current content.
func (e *Engine) ResetPromotionsIfCurrent(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.contentKeyLocked() != key {
		return false
	}
	for i := range e.items {
		e.items[i].PromoDiscount = decimal.Zero
		e.items[i].Promotions = nil
	}
	return true
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	for i, item := range items {
		if item.Discount != nil {
			d := *item.Discount
			out[i].Discount = &d
		}
		if item.Promotions != nil {
			out[i].Promotions = append([]domain.AppliedPromotion(nil), item.Promotions...)
		}
	}
	return out
}
