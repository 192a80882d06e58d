package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/api/middleware"
	"github.com/dhanwira/lokapasar-backend/api/responses"
	"github.com/dhanwira/lokapasar-backend/api/validators"
	"github.com/dhanwira/lokapasar-backend/internal/orders"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
	"github.com/dhanwira/lokapasar-backend/pkg/pagination"
)

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	ShopID        string             `json:"shop_id" validate:"required,uuid4"`
	AddressID     string             `json:"address_id" validate:"required,uuid4"`
	PaymentMethod string             `json:"payment_method" validate:"required,oneof=cod gateway"`
	VoucherID     *string            `json:"voucher_id,omitempty" validate:"omitempty,uuid4"`
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=shipping delivered"`
	Note   string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// CreateOrder builds an order for the authenticated customer.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.CreateOrderInput{
			CustomerID:    userID,
			PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
		}
		if input.ShopID, err = uuid.Parse(req.ShopID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shop id"))
			return
		}
		if input.AddressID, err = uuid.Parse(req.AddressID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address id"))
			return
		}
		if req.VoucherID != nil {
			voucherID, err := uuid.Parse(*req.VoucherID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid voucher id"))
				return
			}
			input.VoucherID = &voucherID
		}
		for _, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.Items = append(input.Items, orders.OrderItemInput{ProductID: productID, Qty: item.Qty})
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// RetryOrderPayment opens a fresh gateway intent for a pending gateway order.
func RetryOrderPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redirect, err := svc.CreatePaymentIntent(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redirect)
	}
}

// UpdateOrderStatus drives the shipping and delivered transitions.
func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderID: orderID,
			Actor:   actor,
			Target:  enums.OrderStatus(req.Status),
			Note:    validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// CancelOrder cancels an order for the customer or the shop owner.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), orderID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCancelled)})
	}
}

// OrderDetail returns the full order view for a participant.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// OrderHistory returns the append-only status trail, newest first.
func OrderHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.History(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": events})
	}
}

// ListOrders returns the authenticated customer's orders, cursor paginated.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListForCustomer(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return userID, nil
}

func actorFromContext(r *http.Request) (orders.Actor, error) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		return orders.Actor{}, err
	}
	return orders.Actor{
		UserID: userID,
		Role:   enums.UserRole(middleware.RoleFromContext(r.Context())),
	}, nil
}
