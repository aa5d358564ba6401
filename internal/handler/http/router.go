package http

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/middleware"
	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	FrontendURL string
	Env         string
	Version     string
	LogLevel    slog.Level

	// Readiness checks served on /readyz, keyed by dependency name.
	Readiness map[string]HealthCheck
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth         AuthHandler
	Attendance   AttendanceHandler
	Notification NotificationHandler
	Device       DeviceHandler
	Webhook      WebhookHandler
	Evidence     EvidenceHandler
}

func NewRouter(cfg RouterConfig, JWTService jwt.Service, m *metrics.Metrics, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "development")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "biometric-attendance"),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Webhook-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
		// The stream never ends and /metrics is scraped constantly
		Skip: func(req *http.Request, respStatus int) bool {
			return req.URL.Path == "/metrics" || req.URL.Path == "/api/v1/attendance/stream"
		},
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Handle("/metrics", m.Handler())
	r.Get("/readyz", readiness(cfg.Readiness))
	r.Get("/evidence/*", h.Evidence.Get)

	// Terminal push target, no auth beyond the optional shared token
	r.Get("/api/hikvision/webhook", h.Webhook.Probe)
	r.Post("/api/hikvision/webhook", h.Webhook.Receive)

	requireOperator := func(r chi.Router) {
		r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
		r.Use(middleware.AuthRequired)
		r.Use(chiMiddleware.Timeout(2 * time.Minute))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Auth.Login)
		})

		r.Route("/attendance", func(r chi.Router) {
			// SSE authenticates with its own short-lived query token
			r.Get("/stream", h.Notification.Stream)

			// Requires authentication
			r.Group(func(r chi.Router) {
				requireOperator(r)
				r.Get("/records", h.Attendance.List)
				r.Get("/today/{personID}", h.Attendance.Today)
				r.Get("/summary/today", h.Attendance.TodaySummary)
				r.Post("/reconcile", h.Attendance.Reconcile)
				r.Get("/stream-token", h.Notification.GetStreamToken)
				r.Get("/events", h.Notification.Recent)
			})
		})

		r.Route("/hikvision", func(r chi.Router) {
			requireOperator(r)
			r.Get("/status", h.Device.Status)
			r.Post("/register-user", h.Device.RegisterUser)
			r.Post("/sync-users", h.Device.SyncUsers)
			r.Post("/configure", h.Device.Configure)
		})
	})
	return r
}

// readiness runs every check and answers 503 when any fails.
func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			response.ServiceUnavailable(w, failed)
			return
		}
		response.Success(w, map[string]string{"status": "ready"})
	}
}
