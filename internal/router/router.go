package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/config"
	"github.com/toastysunday/api/internal/eventlog"
	"github.com/toastysunday/api/internal/handler"
	"github.com/toastysunday/api/internal/menu"
	mw "github.com/toastysunday/api/internal/middleware"
	"github.com/toastysunday/api/internal/ws"
)

// Dependencies are the collaborators the handlers are built from.
type Dependencies struct {
	Catalog   *menu.Catalog
	Accounts  handler.AccountStore
	Orders    handler.OrderServicer
	Payments  handler.PaymentServicer
	Verifier  handler.WebhookVerifier
	Processed eventlog.Log
	Hub       *ws.Hub
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, ownership and admin middleware as needed.
func New(cfg *config.Config, deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/admin/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, cfg.JWTSecret, cfg.Admins, w, r)
	})

	authHandler := handler.NewAuthHandler(deps.Accounts, cfg.JWTSecret, cfg.Admins)
	menuHandler := handler.NewMenuHandler(deps.Catalog)
	orderHandler := handler.NewOrderHandler(deps.Orders)
	paymentHandler := handler.NewPaymentHandler(deps.Payments, deps.Verifier, deps.Processed, cfg.WebhookTimeout)

	r.Route("/api", func(r chi.Router) {
		// Auth and menu (public)
		authHandler.RegisterRoutes(r)
		menuHandler.RegisterRoutes(r)

		// Provider webhook (authenticated by signature)
		r.Post("/payments/webhook", paymentHandler.Webhook)

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/orders/quote", orderHandler.Quote)
			paymentHandler.RegisterRoutes(r)

			// Per-user orders (owner or admin)
			r.Route("/orders/{username}", func(r chi.Router) {
				r.Use(mw.RequireOwnerOrAdmin(cfg.Admins, "username"))
				orderHandler.RegisterRoutes(r)
				r.Post("/payment-intent", paymentHandler.CreateIntent)
			})

			// Admin-only routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(mw.RequireAdmin(cfg.Admins))
				orderHandler.RegisterAdminRoutes(r)
			})
		})
	})

	logrus.Info("router initialized with all handlers")
	return r
}
