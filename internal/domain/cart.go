package domain

import "time"

// CartLine is one product row of a cart. Prices are in minor currency units.
type CartLine struct {
	ID        string `json:"id" bson:"id"`
	ProductID int64  `json:"product_id" bson:"product_id"`
	UnitPrice int64  `json:"unit_price" bson:"unit_price"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

// Subtotal is UnitPrice x Quantity.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartSnapshot is the server-confirmed state of a (customer, store) cart.
type CartSnapshot struct {
	CustomerID string     `json:"customer_id" bson:"customer_id"`
	StoreID    string     `json:"store_id" bson:"store_id"`
	StoreName  string     `json:"store_name,omitempty" bson:"store_name,omitempty"`
	Lines      []CartLine `json:"lines" bson:"lines"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// CartKey scopes a cart to one customer and one store.
type CartKey struct {
	CustomerID string
	StoreID    string
}

// ReorderItem is one product re-added to a cart from a past order.
type ReorderItem struct {
	CustomerID string `json:"customer_id"`
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	StoreID    string `json:"store_id"`
}
