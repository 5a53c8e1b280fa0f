package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"authd/cmd/internal/auth/api"
)

// readinessProbe reports whether the backing store can serve traffic.
type readinessProbe func(ctx context.Context) error

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbEnabled bool,
	ready readinessProbe,
	metrics *Metrics,
	auth *api.Handler,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			writeStatus(w, http.StatusServiceUnavailable, "db not configured")
			return
		}

		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				log.Info("readyz.db.not_ready", "err", err)
				writeStatus(w, http.StatusServiceUnavailable, "db not ready")
				return
			}
		}

		writeStatus(w, http.StatusOK, "ready")
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	if auth != nil {
		auth.Register(mux)
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
