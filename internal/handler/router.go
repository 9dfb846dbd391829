package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"orderdesk/internal/mw"
	"orderdesk/internal/service"
)

type RouterConfig struct {
	JWTSecret string
	Auth      Authenticator
	Orders    *Orders
	Notices   NoticeReader
	// Journal is nil when no database is configured.
	Journal JournalLister
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/operator/login", LoginHandler(cfg.Auth))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret, service.OperatorClaim))

		o := cfg.Orders
		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", o.ListOrders)
			r.Get("/counts", o.Counts)
			r.Get("/items", o.Items)
			r.Post("/bulk/status", o.BulkSetStatus)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", o.GetOrder)
				r.Delete("/", o.DeleteOrder)
				r.Put("/note", o.UpdateNote())
				r.Put("/tags", o.ReplaceTags())
				r.Put("/priority", o.SetPriority())
				r.Put("/status", o.SetStatus())
				r.Put("/due-date", o.SetDueDate())
				r.Put("/start-date", o.SetStartDate())
				r.Post("/shipment", o.CreateShipment())
			})
		})

		r.Get("/api/notices", ListNoticesHandler(cfg.Notices))
		if cfg.Journal != nil {
			r.Get("/api/journal", ListJournalHandler(cfg.Journal))
		}
	})

	return r
}
