package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// Actor identifies who is performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// OrderItemInput is one requested product/quantity pair.
type OrderItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput carries everything the aggregate builder needs.
type CreateOrderInput struct {
	CustomerID    uuid.UUID
	ShopID        uuid.UUID
	AddressID     uuid.UUID
	PaymentMethod enums.PaymentMethod
	VoucherID     *uuid.UUID
	Items         []OrderItemInput
}

// CreateOrderResult reports the committed order plus the gateway handoff
// when the payment method requires one.
type CreateOrderResult struct {
	OrderID        uuid.UUID          `json:"order_id"`
	TotalAmount    int64              `json:"total_amount"`
	DiscountAmount int64              `json:"discount_amount"`
	FinalAmount    int64              `json:"final_amount"`
	Status         enums.OrderStatus  `json:"status"`
	Payment        *payments.Redirect `json:"payment,omitempty"`
}

// UpdateStatusInput carries a seller-driven status move.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Target  enums.OrderStatus
	Note    string
}

// StatusEventView is one history entry, newest first in listings.
type StatusEventView struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// OrderLineView snapshots one purchased product.
type OrderLineView struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	UnitPrice   int64     `json:"unit_price"`
	Quantity    int       `json:"quantity"`
	Subtotal    int64     `json:"subtotal"`
}

// OrderDetail is the full aggregate view returned by Get.
type OrderDetail struct {
	OrderID        uuid.UUID           `json:"order_id"`
	ShopID         uuid.UUID           `json:"shop_id"`
	AddressID      uuid.UUID           `json:"address_id"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	TotalAmount    int64               `json:"total_amount"`
	DiscountAmount int64               `json:"discount_amount"`
	FinalAmount    int64               `json:"final_amount"`
	Lines          []OrderLineView     `json:"lines"`
	CreatedAt      time.Time           `json:"created_at"`
}

// OrderSummary is the customer listing row.
type OrderSummary struct {
	OrderID       uuid.UUID           `json:"order_id"`
	ShopID        uuid.UUID           `json:"shop_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	FinalAmount   int64               `json:"final_amount"`
	TotalItems    int                 `json:"total_items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
