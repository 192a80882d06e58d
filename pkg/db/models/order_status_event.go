package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// OrderStatusEvent is append-only. The newest event for an order is its
// current status; rows are never updated or deleted.
type OrderStatusEvent struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:idx_order_status_events_order"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      string            `gorm:"column:note"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
