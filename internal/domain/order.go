package domain

import "strings"

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "PLACED"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusUnknown        OrderStatus = "UNKNOWN"
)

// legacyStatusLabels maps the free-text labels the backend returns to statuses.
var legacyStatusLabels = map[string]OrderStatus{
	"تم تسليم الطلب": OrderStatusDelivered,
	"pending":        OrderStatusPlaced,
	"accepted":       OrderStatusPlaced,
	"placed":         OrderStatusPlaced,
	"preparing":      OrderStatusPreparing,
	"ready":          OrderStatusPreparing,
	"delivering":     OrderStatusOutForDelivery,
	"delivered":      OrderStatusDelivered,
}

// ParseOrderStatus never fails; unrecognised values map to OrderStatusUnknown.
func ParseOrderStatus(raw string) OrderStatus {
	v := strings.TrimSpace(raw)
	if s, ok := legacyStatusLabels[strings.ToLower(v)]; ok {
		return s
	}
	switch s := OrderStatus(strings.ToUpper(v)); s {
	case OrderStatusPlaced, OrderStatusPreparing, OrderStatusOutForDelivery, OrderStatusDelivered:
		return s
	}
	return OrderStatusUnknown
}

// Rank orders statuses along the delivery lifecycle. Unknown ranks lowest.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPlaced:
		return 1
	case OrderStatusPreparing:
		return 2
	case OrderStatusOutForDelivery:
		return 3
	case OrderStatusDelivered:
		return 4
	default:
		return 0
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
