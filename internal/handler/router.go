package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/port"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 2 * time.Second

// Services bundles what the router dispatches to.
type Services struct {
	Ledger *service.LedgerService
	Auth   *service.AuthService
	Admin  *service.AdminService
	Store  port.UserStore
}

// Secrets are the shared secrets of the webhook and operator routes.
type Secrets struct {
	Webhook string
	Admin   string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, secrets Secrets, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", productsHandler())

		// =============================================
		// Autenticação
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(svc.Auth, logger))
			r.Post("/login", authLoginHandler(svc.Auth, logger))
		})

		// =============================================
		// Carteira do usuário (JWT)
		// =============================================
		r.Route("/me", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))

			r.Get("/", meHandler(svc.Ledger, logger))
			r.Post("/investments", purchaseHandler(svc.Ledger, logger))
			r.Post("/checkin", checkinHandler(svc.Ledger, logger))
			r.Post("/roulette/spin", spinHandler(svc.Ledger, logger))
			r.Post("/withdrawals", withdrawHandler(svc.Ledger, logger))
			r.Post("/deposits", depositHandler(svc.Ledger, logger))
			r.Get("/referrals", referralsHandler(svc.Ledger, logger))
		})

		// =============================================
		// Webhooks do gateway PIX
		// =============================================
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(SharedSecretMiddleware(WebhookSecretHeader, secrets.Webhook, logger))

			r.Post("/deposits/confirm", confirmDepositHandler(svc.Ledger, logger))
			r.Post("/withdrawals/status", withdrawalStatusHandler(svc.Ledger, logger))
		})

		// =============================================
		// Operador
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			r.Use(SharedSecretMiddleware(AdminTokenHeader, secrets.Admin, logger))

			r.Get("/dashboard", adminDashboardHandler(svc.Admin, logger))
			r.Get("/withdrawals", adminPendingWithdrawalsHandler(svc.Admin, logger))
			r.Post("/users/{userId}/ban", adminToggleBanHandler(svc.Admin, logger))
			r.Post("/users/{userId}/withdrawals/{withdrawalId}/approve", adminApproveWithdrawalHandler(svc.Admin, logger))
		})
	})

	return r
}

// healthzHandler probes the record store. A lookup of a missing user that
// answers NotFound means the store is reachable.
func healthzHandler(store port.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "ledger-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			_, err := store.GetUser(ctx, "health-check")
			status := "healthy"
			if err != nil && !isNotFound(err) {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name:        "store",
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
