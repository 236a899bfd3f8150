package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/osce-practice-platform/internal/audit"
	"github.com/wolfman30/osce-practice-platform/internal/encounter"
	"github.com/wolfman30/osce-practice-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/osce-practice-platform/internal/http/middleware"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// ReadinessCheck reports whether one dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	EncounterHandler   *handlers.EncounterHandler
	LiveHandler        *encounter.LiveHandler
	StationHandler     *station.Handler
	AuditHandler       *audit.Handler
	AdminDialogue      *handlers.AdminDialogueHandler
	RateLimiter        *httpmiddleware.RateLimiter
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ReadinessChecks back /ready, keyed by dependency name.
	ReadinessChecks map[string]ReadinessCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		public.Get("/ready", readinessCheck(cfg.ReadinessChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Student-facing encounter API. The WebSocket route sits outside the
	// compressor, which would break the upgrade.
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		if cfg.LiveHandler != nil {
			api.Get("/stations/{stationID}/encounter", cfg.LiveHandler.HandleWebSocket)
		}
		if cfg.EncounterHandler != nil {
			api.Group(func(j chi.Router) {
				j.Use(middleware.Compress(5))
				j.Post("/intent", cfg.EncounterHandler.ClassifyIntent)
				j.Post("/stations/{stationID}/reply", cfg.EncounterHandler.Reply)
				j.Get("/sessions/{sessionID}/transcript", cfg.EncounterHandler.Transcript)
			})
		}
	})

	// Station editing, protected by the admin JWT.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(middleware.Compress(5))
			admin.Route("/stations", func(st chi.Router) {
				if cfg.StationHandler != nil {
					cfg.StationHandler.Register(st)
				}
				if cfg.AuditHandler != nil {
					st.Get("/{stationID}/audit", cfg.AuditHandler.ListEvents)
				}
			})
			if cfg.AdminDialogue != nil {
				admin.Get("/dialogue/metrics", cfg.AdminDialogue.MetricsSnapshot)
			}
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readinessCheck(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		writeStatus(w, status, result)
	}
}

func writeStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
