package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dhanwira/lokapasar-backend/api/responses"
	"github.com/dhanwira/lokapasar-backend/pkg/config"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
)

// Pinger exposes the health check surface of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Lokapasar-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores. A nil dependency is skipped so the
// probe works in partial configurations such as dev without redis.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Lokapasar-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness probe failed").
						WithDetails(map[string]any{"dependency": name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
