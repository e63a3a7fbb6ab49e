// Package pricing resolves cart prices and computes tax totals.
package pricing

import (
	"math"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/catalog"
)

// CartLine is one requested item in a cart.
type CartLine struct {
	MenuItemID    uint  `json:"menu_item_id"`
	MenuVariantID *uint `json:"menu_variant_id,omitempty"`
	Quantity      int   `json:"quantity"`
}

// QuoteLine is a priced cart line.
type QuoteLine struct {
	MenuItemID    uint    `json:"menu_item_id"`
	MenuVariantID *uint   `json:"menu_variant_id,omitempty"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
}

// Quote is the priced cart: subtotal + tax == total always holds.
type Quote struct {
	Lines    []QuoteLine `json:"lines"`
	Subtotal float64     `json:"subtotal"`
	Tax      float64     `json:"tax"`
	Total    float64     `json:"total"`
}

// Calculator prices carts against the catalog.
type Calculator struct {
	catalog *catalog.Service
}

// New creates a Calculator.
func New(catalogService *catalog.Service) *Calculator {
	return &Calculator{catalog: catalogService}
}

// QuoteCart resolves every line's unit price and computes subtotal, tax and
// total. Any unresolvable line aborts the whole cart: partial orders are
// never priced.
func (c *Calculator) QuoteCart(cart []CartLine, taxRate float64) (*Quote, error) {
	if len(cart) == 0 {
		return nil, apperr.New(apperr.KindValidation, "cart must not be empty")
	}

	quote := &Quote{Lines: make([]QuoteLine, 0, len(cart))}
	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, apperr.Newf(apperr.KindValidation,
				"quantity for menu item %d must be greater than zero", line.MenuItemID)
		}

		resolved, err := c.catalog.ResolveVariant(line.MenuItemID, line.MenuVariantID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Newf(apperr.KindInvalidItem,
					"cart references unresolvable menu item %d", line.MenuItemID).
					WithField("menu_item_id", line.MenuItemID)
			}
			return nil, err
		}

		lineTotal := RoundCurrency(resolved.UnitPrice * float64(line.Quantity))
		quote.Lines = append(quote.Lines, QuoteLine{
			MenuItemID:    resolved.MenuItemID,
			MenuVariantID: resolved.MenuVariantID,
			Quantity:      line.Quantity,
			UnitPrice:     resolved.UnitPrice,
			LineTotal:     lineTotal,
		})
		quote.Subtotal += lineTotal
	}

	quote.Subtotal = RoundCurrency(quote.Subtotal)
	quote.Tax = RoundCurrency(quote.Subtotal * taxRate)
	quote.Total = RoundCurrency(quote.Subtotal + quote.Tax)
	return quote, nil
}

// RoundCurrency rounds half-up at currency minor-unit precision.
func RoundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
