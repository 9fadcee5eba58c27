// Package cart holds the in-memory cart aggregate for one (customer, store)
// pair. Totals are always derived from the lines; there is no other way to
// change them.
package cart

import (
	"errors"
	"slices"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/google/uuid"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Event is a side effect of a mutation the UI may want to react to.
type Event int

const (
	EventNone Event = iota
	EventLineRemoved
)

type Cart struct {
	key   domain.CartKey
	lines []domain.CartLine
	newID func() string
}

func New(key domain.CartKey) *Cart {
	return &Cart{
		key:   key,
		newID: uuid.NewString,
	}
}

func (c *Cart) Key() domain.CartKey {
	return c.key
}

// AddOrIncrement bumps the line for productID by delta, or appends a new line.
// The unit price of an existing line is left as is.
func (c *Cart) AddOrIncrement(productID, unitPrice int64, delta int) (domain.CartLine, error) {
	if delta <= 0 {
		return domain.CartLine{}, ErrInvalidQuantity
	}

	if i := c.indexOfProduct(productID); i >= 0 {
		c.lines[i].Quantity += delta
		return c.lines[i], nil
	}

	line := domain.CartLine{
		ID:        c.newID(),
		ProductID: productID,
		UnitPrice: unitPrice,
		Quantity:  delta,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Decrement lowers a line's quantity by one. A line at quantity 1 is removed
// and EventLineRemoved is returned. Unknown lines are ignored.
func (c *Cart) Decrement(lineID string) Event {
	i := c.indexOfLine(lineID)
	if i < 0 {
		return EventNone
	}
	if c.lines[i].Quantity <= 1 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return EventLineRemoved
	}
	c.lines[i].Quantity--
	return EventNone
}

// SetQuantity overwrites a line's quantity. Unknown lines report false.
func (c *Cart) SetQuantity(lineID string, quantity int) (bool, error) {
	if quantity < 1 {
		return false, ErrInvalidQuantity
	}
	i := c.indexOfLine(lineID)
	if i < 0 {
		return false, nil
	}
	c.lines[i].Quantity = quantity
	return true, nil
}

// Remove drops a line regardless of its quantity.
func (c *Cart) Remove(lineID string) bool {
	i := c.indexOfLine(lineID)
	if i < 0 {
		return false
	}
	c.lines = slices.Delete(c.lines, i, i+1)
	return true
}

// Reconcile replaces every local line with the server's set (last writer wins).
// Server lines with quantity below 1 are dropped.
func (c *Cart) Reconcile(serverLines []domain.CartLine) {
	lines := make([]domain.CartLine, 0, len(serverLines))
	for _, l := range serverLines {
		if l.Quantity < 1 {
			continue
		}
		lines = append(lines, l)
	}
	c.lines = lines
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Snapshot captures the current lines for a later Restore.
func (c *Cart) Snapshot() []domain.CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Restore(lines []domain.CartLine) {
	c.lines = slices.Clone(lines)
}

// Lines returns a copy in display order.
func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Line(lineID string) (domain.CartLine, bool) {
	i := c.indexOfLine(lineID)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return c.lines[i], true
}

func (c *Cart) LineForProduct(productID int64) (domain.CartLine, bool) {
	i := c.indexOfProduct(productID)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return c.lines[i], true
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.lines {
		total += l.Quantity
	}
	return total
}

func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) indexOfLine(lineID string) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.ID == lineID })
}

func (c *Cart) indexOfProduct(productID int64) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.ProductID == productID })
}
