package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) AppendStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("StatusEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListStatusEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error) {
	var events []models.OrderStatusEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Lines").
		Preload("StatusEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Where("customer_id = ? AND deleted = ?", customerID, false).
		Order("created_at DESC, id DESC").
		Limit(limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	pageSize := pagination.NormalizeLimit(params.Limit)
	var nextCursor string
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	summaries := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		totalItems := 0
		for _, line := range row.Lines {
			totalItems += line.Quantity
		}
		summaries = append(summaries, OrderSummary{
			OrderID:       row.ID,
			ShopID:        row.ShopID,
			Status:        CurrentStatus(row.StatusEvents),
			PaymentMethod: row.PaymentMethod,
			FinalAmount:   row.FinalAmount,
			TotalItems:    totalItems,
			CreatedAt:     row.CreatedAt,
		})
	}
	return &OrderList{Orders: summaries, NextCursor: nextCursor}, nil
}

// MarkDeleted soft-deletes the order exactly once. False means another
// cancellation already claimed it.
func (r *repository) MarkDeleted(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET deleted = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted = ?
	`, true, orderID, false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
