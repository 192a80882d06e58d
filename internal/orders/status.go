package orders

import (
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// transitions is the closed table of legal status moves. Anything absent
// here is rejected; terminal states have no outgoing edges.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusPaid, enums.OrderStatusShipping, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusShipping, enums.OrderStatusCancelled},
	enums.OrderStatusShipping:  {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// CanTransition reports whether the move from current to target is legal.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CurrentStatus derives an order's status from its append-only event log:
// the newest event wins. An order with no events yet is pending.
func CurrentStatus(events []models.OrderStatusEvent) enums.OrderStatus {
	if len(events) == 0 {
		return enums.OrderStatusPending
	}
	latest := events[0]
	for _, event := range events[1:] {
		if event.CreatedAt.After(latest.CreatedAt) {
			latest = event
		}
	}
	return latest.Status
}
