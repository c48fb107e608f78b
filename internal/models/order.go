package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of a persisted sales order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order represents a sales order created from a live shopping session
type Order struct {
	ID          int64           `json:"id" db:"id"`
	OrderNumber string          `json:"order_number" db:"order_number"`
	SessionID   int64           `json:"session_id" db:"session_id"`
	ClientID    int64           `json:"client_id" db:"client_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status      OrderStatus     `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// OrderItem mirrors one cart line at conversion time, including any
// staff price override in effect when the session ended.
type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	BatchID     int64           `json:"batch_id" db:"batch_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Order number format: ORD-YYYYMMDD-XXXXXX (e.g., ORD-20240101-123456)
var orderNumberRegex = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)

// Validate validates the order data
func (o *Order) Validate() error {
	if o.OrderNumber == "" {
		return NewValidationError("order_number", "order number is required")
	}
	if !orderNumberRegex.MatchString(o.OrderNumber) {
		return NewValidationError("order_number", "order number format is invalid")
	}
	if o.TotalAmount.IsNegative() {
		return NewValidationError("total_amount", "total amount cannot be negative")
	}
	switch o.Status {
	case OrderPending, OrderCompleted, OrderCancelled:
	default:
		return NewValidationError("status", "invalid order status")
	}
	return nil
}

// GenerateOrderNumber generates a unique order number
func GenerateOrderNumber() string {
	now := time.Now()
	dateStr := now.Format("20060102")

	// Generate a 6-digit random number using crypto/rand for better uniqueness
	max := big.NewInt(1000000)
	randomNum, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback to timestamp-based generation if crypto/rand fails
		timestamp := now.UnixNano()
		return fmt.Sprintf("ORD-%s-%06d", dateStr, timestamp%1000000)
	}

	return fmt.Sprintf("ORD-%s-%06d", dateStr, randomNum.Int64())
}
