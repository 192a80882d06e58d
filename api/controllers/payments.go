package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dhanwira/lokapasar-backend/api/responses"
	"github.com/dhanwira/lokapasar-backend/internal/payments"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
)

const (
	webhookEventOrderApproved = "CHECKOUT.ORDER.APPROVED"
	maxWebhookBody            = 1 << 20
)

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

// PaymentCapture handles the interactive redirect callback. The gateway sends
// the payer back with the intent id in the query string.
func PaymentCapture(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intentID := strings.TrimSpace(r.URL.Query().Get("intent_id"))
		if intentID == "" {
			// PayPal names the query parameter "token" on return.
			intentID = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if intentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required"))
			return
		}

		result, err := svc.Settle(r.Context(), intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PaymentWebhook handles gateway webhook deliveries. Unrecognized event types
// are acknowledged and ignored; only structural failures earn a 400 so the
// gateway retries nothing it cannot fix.
func PaymentWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		var event webhookEnvelope
		if err := json.Unmarshal(body, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		}
		if event.EventType == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event_type is required"))
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"webhook_event_id": event.ID,
			"event_type":       event.EventType,
		})

		if event.EventType != webhookEventOrderApproved {
			logg.Info(ctx, "ignoring webhook event type")
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}
		if event.Resource.ID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required"))
			return
		}

		result, err := svc.SettleWebhookEvent(r.Context(), event.ID, event.Resource.ID)
		if err != nil {
			// The payload was structurally fine; acknowledge it so the
			// gateway stops retrying, and rely on the capture callback or a
			// later event for this intent to settle.
			logg.Error(ctx, "webhook settlement failed", err)
			responses.WriteSuccess(w, map[string]string{"status": "accepted"})
			return
		}
		responses.WriteSuccess(w, result)
	}
}
