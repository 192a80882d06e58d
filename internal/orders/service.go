package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	CreatePaymentIntent(ctx context.Context, orderID, userID uuid.UUID) (*payments.Redirect, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusEventView, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) error
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	History(ctx context.Context, orderID uuid.UUID, actor Actor) ([]StatusEventView, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory InventoryLedger
	discounts DiscountEvaluator
	shops     ShopFinder
	products  ProductFinder
	addresses AddressFinder
	cart      CartCleaner
	intents   IntentCreator
}

// NewService builds the order service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	inventory InventoryLedger,
	discounts DiscountEvaluator,
	shops ShopFinder,
	products ProductFinder,
	addresses AddressFinder,
	cart CartCleaner,
	intents IntentCreator,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if discounts == nil {
		return nil, fmt.Errorf("discount evaluator required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop finder required")
	}
	if products == nil {
		return nil, fmt.Errorf("product finder required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address finder required")
	}
	if cart == nil {
		return nil, fmt.Errorf("cart cleaner required")
	}
	if intents == nil {
		return nil, fmt.Errorf("intent creator required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inventory,
		discounts: discounts,
		shops:     shops,
		products:  products,
		addresses: addresses,
		cart:      cart,
		intents:   intents,
	}, nil
}

// Create builds the order aggregate in one transaction: order row, price
// snapshots, stock reservations, the opening pending event, the voucher
// consumption, and the cart cleanup. The gateway intent is opened only after
// the transaction commits; an intent failure leaves the committed order in
// place and the caller retries via CreatePaymentIntent.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be cod or gateway")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	seen := make(map[uuid.UUID]bool, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if seen[item.ProductID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in order items")
		}
		seen[item.ProductID] = true
	}

	shop, err := s.shops.FindByID(ctx, input.ShopID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	if shop.Status != enums.ShopStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shop is not accepting orders")
	}

	address, err := s.addresses.FindByID(ctx, input.AddressID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	if address.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if address.UserID != input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "address does not belong to user")
	}

	// Snapshot product names and prices before amounts are committed.
	lines := make([]models.OrderLine, 0, len(input.Items))
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	var subtotal int64
	for _, item := range input.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if product.Deleted {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if product.ShopID != input.ShopID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not belong to shop").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if product.Status != enums.ProductStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product is not available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}

		lineSubtotal := product.Price * int64(item.Qty)
		lines = append(lines, models.OrderLine{
			ID:          uuid.New(),
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Qty,
			Subtotal:    lineSubtotal,
		})
		productIDs = append(productIDs, product.ID)
		subtotal += lineSubtotal
	}

	orderID := uuid.New()
	var discount int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var claimID uuid.UUID
		if input.VoucherID != nil {
			var derr error
			discount, claimID, derr = s.discounts.Evaluate(ctx, tx, DiscountInput{
				UserID:    input.CustomerID,
				VoucherID: *input.VoucherID,
				ShopID:    input.ShopID,
				Subtotal:  subtotal,
			})
			if derr != nil {
				return derr
			}
		}

		order := &models.Order{
			ID:             orderID,
			CustomerID:     input.CustomerID,
			ShopID:         input.ShopID,
			AddressID:      input.AddressID,
			TotalAmount:    subtotal,
			DiscountAmount: discount,
			FinalAmount:    subtotal - discount,
			PaymentMethod:  input.PaymentMethod,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		for i := range lines {
			lines[i].OrderID = orderID
		}
		if err := repo.CreateOrderLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}

		for _, line := range lines {
			if err := s.inventory.Reserve(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		if err := repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
			ID:      uuid.New(),
			OrderID: orderID,
			Status:  enums.OrderStatusPending,
			ActorID: &input.CustomerID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status event")
		}

		if input.VoucherID != nil {
			if err := s.discounts.ConsumeRedemption(ctx, tx, claimID, orderID); err != nil {
				return err
			}
		}

		return s.cart.ClearItems(ctx, tx, input.CustomerID, productIDs)
	})
	if err != nil {
		return nil, err
	}

	result := &CreateOrderResult{
		OrderID:        orderID,
		TotalAmount:    subtotal,
		DiscountAmount: discount,
		FinalAmount:    subtotal - discount,
		Status:         enums.OrderStatusPending,
	}

	if input.PaymentMethod == enums.PaymentMethodGateway {
		redirect, err := s.intents.CreateOrderIntent(ctx, orderID, result.FinalAmount)
		if err != nil {
			// The order stands; the client retries the intent with the
			// returned order id.
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent").
				WithDetails(map[string]any{"order_id": orderID.String()})
		}
		result.Payment = redirect
	}
	return result, nil
}

// CreatePaymentIntent opens a fresh gateway intent for an unpaid gateway
// order, the recovery path after an intent failure during Create.
func (s *service) CreatePaymentIntent(ctx context.Context, orderID, userID uuid.UUID) (*payments.Redirect, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.PaymentMethod != enums.PaymentMethodGateway {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order does not use gateway payment")
	}
	if order.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	if current := CurrentStatus(order.StatusEvents); current != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"current_status": string(current)})
	}

	redirect, err := s.intents.CreateOrderIntent(ctx, orderID, order.FinalAmount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return redirect, nil
}

// UpdateStatus is the seller-driven move: shipping and delivered only, by
// the owner of the order's shop, along a legal edge of the transition table.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusEventView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Target != enums.OrderStatusShipping && input.Target != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target status must be shipping or delivered")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireShopOwner(ctx, order, input.Actor); err != nil {
		return nil, err
	}
	if order.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}

	event := models.OrderStatusEvent{
		ID:      uuid.New(),
		OrderID: input.OrderID,
		Status:  input.Target,
		Note:    input.Note,
		ActorID: &input.Actor.UserID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		events, err := repo.ListStatusEvents(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status events")
		}
		current := CurrentStatus(events)
		if !CanTransition(current, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
				WithDetails(map[string]any{
					"current_status":   string(current),
					"requested_status": string(input.Target),
				})
		}
		return repo.AppendStatusEvent(ctx, &event)
	})
	if err != nil {
		return nil, err
	}
	return &StatusEventView{Status: event.Status, Note: event.Note, CreatedAt: event.CreatedAt}, nil
}

// Cancel soft-deletes the order, returns every reserved line to stock, and
// appends the terminal cancelled event. Either side of the trade may cancel
// while the order has not shipped.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, order, actor); err != nil {
		return err
	}
	if order.Deleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		events, err := repo.ListStatusEvents(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status events")
		}
		current := CurrentStatus(events)
		if !CanTransition(current, enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"current_status": string(current)})
		}

		ok, err := repo.MarkDeleted(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
		}

		for _, line := range order.Lines {
			if err := s.inventory.Release(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		return repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
			ID:      uuid.New(),
			OrderID: orderID,
			Status:  enums.OrderStatusCancelled,
			ActorID: &actor.UserID,
		})
	})
}

// MarkPaid appends the paid event inside the settlement transaction. A
// repeat call on an already-paid order is a no-op so settlement retries stay
// idempotent.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	events, err := repo.ListStatusEvents(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status events")
	}
	current := CurrentStatus(events)
	if current == enums.OrderStatusPaid {
		return nil
	}
	if !CanTransition(current, enums.OrderStatusPaid) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked paid").
			WithDetails(map[string]any{"current_status": string(current)})
	}
	return repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.OrderStatusPaid,
	})
}

func (s *service) History(ctx context.Context, orderID uuid.UUID, actor Actor) ([]StatusEventView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, order, actor); err != nil {
		return nil, err
	}

	events, err := s.repo.ListStatusEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status events")
	}
	views := make([]StatusEventView, 0, len(events))
	for _, event := range events {
		views = append(views, StatusEventView{
			Status:    event.Status,
			Note:      event.Note,
			CreatedAt: event.CreatedAt,
		})
	}
	return views, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*OrderDetail, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, order, actor); err != nil {
		return nil, err
	}

	lines := make([]OrderLineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineView{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal,
		})
	}
	return &OrderDetail{
		OrderID:        order.ID,
		ShopID:         order.ShopID,
		AddressID:      order.AddressID,
		Status:         CurrentStatus(order.StatusEvents),
		PaymentMethod:  order.PaymentMethod,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
		Lines:          lines,
		CreatedAt:      order.CreatedAt,
	}, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListCustomerOrders(ctx, customerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// requireShopOwner admits only the owner of the order's shop.
func (s *service) requireShopOwner(ctx context.Context, order *models.Order, actor Actor) error {
	shop, err := s.shops.FindByID(ctx, order.ShopID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop.OwnerID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to shop")
	}
	return nil
}

// requireParticipant admits the customer or the owning seller.
func (s *service) requireParticipant(ctx context.Context, order *models.Order, actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if order.CustomerID == actor.UserID {
		return nil
	}
	return s.requireShopOwner(ctx, order, actor)
}
