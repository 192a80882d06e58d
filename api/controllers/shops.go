package controllers

import (
	"net/http"

	"github.com/dhanwira/lokapasar-backend/api/responses"
	"github.com/dhanwira/lokapasar-backend/api/validators"
	"github.com/dhanwira/lokapasar-backend/internal/shops"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
)

type registerShopRequest struct {
	Name string `json:"name" validate:"required,min=3,max=120"`
}

// RegisterShop creates a pending shop and the registration fee intent. The
// shop only becomes visible to customers once the fee settles.
func RegisterShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req registerShopRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), shops.RegisterInput{
			OwnerID: userID,
			Name:    validators.SanitizeString(req.Name, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
