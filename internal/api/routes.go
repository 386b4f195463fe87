package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/bulkmail/internal/auth"
	"github.com/ignite/bulkmail/internal/tracking"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the public tracking endpoints and the
// authenticated API on one router.
func SetupRoutes(h *Handlers, keys *auth.KeyStore, track *tracking.Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", tracking.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// public: opened from recipients' mail clients
		if track != nil {
			r.Group(track.RegisterRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(keys.RequireAuth)

			r.Post("/email/send", h.HandleSendCampaign)
			r.Get("/email/status/{token}", h.HandleCampaignStatus)
			r.Get("/email/test-connection", h.HandleTestConnection)

			r.Get("/track/analytics/{token}", h.HandleCampaignAnalytics)
			r.Get("/stats/summary", h.HandleStatsSummary)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.HandleListCampaigns)
				r.Post("/", h.HandleCreateCampaign)
				r.Get("/{id}", h.HandleGetCampaign)
				r.Put("/{id}", h.HandleUpdateCampaign)
				r.Delete("/{id}", h.HandleDeleteCampaign)
				r.Post("/{id}/attachments", h.HandleUploadAttachment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return r
}
