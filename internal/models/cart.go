package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus tracks where a cart line sits in the three-status workflow:
// a sample the client wants to see, a maybe, or a committed purchase.
type ItemStatus string

const (
	ItemSampleRequest ItemStatus = "SAMPLE_REQUEST"
	ItemInterested    ItemStatus = "INTERESTED"
	ItemToPurchase    ItemStatus = "TO_PURCHASE"
)

// IsValid returns true if the status is a known item status
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemSampleRequest, ItemInterested, ItemToPurchase:
		return true
	default:
		return false
	}
}

// CartItem represents one product batch line in a session cart.
// A session holds at most one line per batch; adding the same batch
// again merges quantities instead of duplicating the line.
type CartItem struct {
	ID              int64           `json:"id" db:"id"`
	SessionID       int64           `json:"session_id" db:"session_id"`
	BatchID         int64           `json:"batch_id" db:"batch_id"`
	ProductID       int64           `json:"product_id" db:"product_id"`
	ProductName     string          `json:"product_name" db:"product_name"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	PriceOverridden bool            `json:"price_overridden" db:"price_overridden"`
	IsHighlighted   bool            `json:"is_highlighted" db:"is_highlighted"`
	Status          ItemStatus      `json:"item_status" db:"item_status"`
	IsSample        bool            `json:"is_sample" db:"is_sample"`
	AddedAt         time.Time       `json:"added_at" db:"added_at"`
}

// Subtotal returns quantity x unit price for this line
func (i *CartItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// CartState is the derived view of a session cart. It is recomputed from
// the item rows after every committed mutation and never mutated directly.
type CartState struct {
	SessionID  int64           `json:"session_id"`
	Items      []CartItem      `json:"items"`
	TotalValue decimal.Decimal `json:"total_value"`
	ItemCount  int             `json:"item_count"`
}

// ComputeCartState derives the cart aggregates from the current item rows
func ComputeCartState(sessionID int64, items []CartItem) *CartState {
	if items == nil {
		items = []CartItem{}
	}
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Subtotal())
	}
	return &CartState{
		SessionID:  sessionID,
		Items:      items,
		TotalValue: total,
		ItemCount:  len(items),
	}
}

// CartStatusGroups is the cart split by item status, with the value of the
// committed lines totalled separately.
type CartStatusGroups struct {
	SampleRequests  []CartItem      `json:"sample_requests"`
	Interested      []CartItem      `json:"interested"`
	ToPurchase      []CartItem      `json:"to_purchase"`
	ToPurchaseValue decimal.Decimal `json:"to_purchase_value"`
}

// GroupByStatus splits the cart lines by their item status
func (c *CartState) GroupByStatus() *CartStatusGroups {
	groups := &CartStatusGroups{
		SampleRequests:  []CartItem{},
		Interested:      []CartItem{},
		ToPurchase:      []CartItem{},
		ToPurchaseValue: decimal.Zero,
	}
	for i := range c.Items {
		switch c.Items[i].Status {
		case ItemSampleRequest:
			groups.SampleRequests = append(groups.SampleRequests, c.Items[i])
		case ItemInterested:
			groups.Interested = append(groups.Interested, c.Items[i])
		default:
			groups.ToPurchase = append(groups.ToPurchase, c.Items[i])
			groups.ToPurchaseValue = groups.ToPurchaseValue.Add(c.Items[i].Subtotal())
		}
	}
	return groups
}

// HighlightedItem returns the currently highlighted line, if any
func (c *CartState) HighlightedItem() *CartItem {
	for i := range c.Items {
		if c.Items[i].IsHighlighted {
			return &c.Items[i]
		}
	}
	return nil
}
