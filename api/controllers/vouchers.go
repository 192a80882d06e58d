package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/api/middleware"
	"github.com/dhanwira/lokapasar-backend/api/responses"
	"github.com/dhanwira/lokapasar-backend/api/validators"
	"github.com/dhanwira/lokapasar-backend/internal/vouchers"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
)

type createVoucherRequest struct {
	ShopID    *string `json:"shop_id,omitempty" validate:"omitempty,uuid4"`
	Code      string  `json:"code" validate:"required,min=3,max=32"`
	Type      string  `json:"type" validate:"required,oneof=percent fixed"`
	Value     int64   `json:"value" validate:"required,gt=0"`
	MinSpend  int64   `json:"min_spend" validate:"gte=0"`
	MaxAmount int64   `json:"max_amount" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	StartsAt  string  `json:"starts_at" validate:"required"`
	ExpiresAt string  `json:"expires_at" validate:"required"`
}

type voucherResponse struct {
	VoucherID uuid.UUID  `json:"voucher_id"`
	ShopID    *uuid.UUID `json:"shop_id,omitempty"`
	Code      string     `json:"code"`
	Type      string     `json:"type"`
	Value     int64      `json:"value"`
	Quantity  int        `json:"quantity"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// CreateVoucher registers a voucher definition. Sellers scope vouchers to
// their shop; admins may create platform-wide ones.
func CreateVoucher(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := enums.UserRole(middleware.RoleFromContext(r.Context()))
		if role != enums.UserRoleSeller && role != enums.UserRoleAdmin {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller or admin role required"))
			return
		}

		var req createVoucherRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := vouchers.CreateInput{
			Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
			Type:      enums.VoucherType(req.Type),
			Value:     req.Value,
			MinSpend:  req.MinSpend,
			MaxAmount: req.MaxAmount,
			Quantity:  req.Quantity,
		}
		if req.ShopID != nil {
			shopID, err := uuid.Parse(*req.ShopID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shop id"))
				return
			}
			input.ShopID = &shopID
		} else if role != enums.UserRoleAdmin {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "platform-wide vouchers require admin role"))
			return
		}

		var err error
		if input.StartsAt, err = time.Parse(time.RFC3339, req.StartsAt); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid starts_at"))
			return
		}
		if input.ExpiresAt, err = time.Parse(time.RFC3339, req.ExpiresAt); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expires_at"))
			return
		}

		voucher, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, voucherResponse{
			VoucherID: voucher.ID,
			ShopID:    voucher.ShopID,
			Code:      voucher.Code,
			Type:      string(voucher.Type),
			Value:     voucher.Value,
			Quantity:  voucher.Quantity,
			ExpiresAt: voucher.ExpiresAt,
		})
	}
}

// ClaimVoucher claims a voucher for the authenticated customer.
func ClaimVoucher(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "voucherId"))
		voucherID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid voucher id"))
			return
		}

		claim, err := svc.Claim(r.Context(), userID, voucherID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"claim_id":   claim.ID,
			"voucher_id": claim.VoucherID,
		})
	}
}

// MyVouchers lists the authenticated customer's claimed vouchers.
func MyVouchers(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claims, err := svc.ListMine(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"vouchers": claims})
	}
}
