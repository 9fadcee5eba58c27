package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
)

// The backend is inconsistent about numbers: ids, prices and coordinates
// arrive either as JSON numbers or as strings ("33.5138", "1500.00").

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", raw, err)
	}
	*f = flexFloat{Value: v, Set: true}
	return nil
}

// minorUnits converts a decoded price to integer minor units.
func (f flexFloat) minorUnits() int64 {
	return int64(math.Round(f.Value))
}

type cartResponse struct {
	Cart      []cartItemDTO `json:"cart"`
	StoreName string        `json:"store_name"`
}

type cartItemDTO struct {
	ID       flexString `json:"id"`
	Quantity int        `json:"quantity"`
	Product  struct {
		ID    flexString `json:"id"`
		Price flexFloat  `json:"price"`
	} `json:"product"`
}

func (c cartItemDTO) toLine() (domain.CartLine, error) {
	productID, err := strconv.ParseInt(string(c.Product.ID), 10, 64)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("product id %q: %w", c.Product.ID, err)
	}
	return domain.CartLine{
		ID:        string(c.ID),
		ProductID: productID,
		UnitPrice: c.Product.Price.minorUnits(),
		Quantity:  c.Quantity,
	}, nil
}

type addItemRequest struct {
	CustomerID string `json:"customer_id"`
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type reorderRequest struct {
	Items []domain.ReorderItem `json:"items"`
}

type locationDTO struct {
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
}

func (l locationDTO) coordinate() (*domain.Coordinate, bool) {
	if !l.Latitude.Set || !l.Longitude.Set {
		return nil, false
	}
	c := domain.Coordinate{Latitude: l.Latitude.Value, Longitude: l.Longitude.Value}
	if !c.Valid() {
		return nil, false
	}
	return &c, true
}

type storeAddressResponse struct {
	Store locationDTO `json:"store"`
}

type storeDTO struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
	locationDTO
}

type orderDetailsResponse struct {
	OrderStatus string `json:"order_status"`
}
