package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/intake-pipeline/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Intake *service.IntakeService
	Status *service.StatusService
	// Optional: admin routes are mounted only when both Admin and AdminToken are set.
	Admin      *service.AdminService
	AdminToken string

	Readiness []ReadinessCheck
	// Optional: served at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	Logger             *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	registerPublicRoutes(mux, services, logger)
	if services.Admin != nil && services.AdminToken != "" {
		registerAdminRoutes(mux, &AdminHandlers{Svc: services.Admin}, services.AdminToken)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Readiness, logger))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics)
	}

	return Chain(mux, Recover(logger), Logging(logger))
}

func registerPublicRoutes(mux *http.ServeMux, services RouterServices, logger *slog.Logger) {
	public := func(h http.HandlerFunc) http.Handler {
		return Chain(h, PublicCORS(services.CORSAllowedOrigins), MaxBodyBytes(services.MaxBodyBytes))
	}
	// Browsers preflight the JSON posts.
	preflight := public(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	if services.Intake != nil {
		intake := &IntakeHandlers{Svc: services.Intake, Logger: logger}
		mux.Handle("POST /api/newsletter", public(intake.SubmitNewsletter))
		mux.Handle("OPTIONS /api/newsletter", preflight)
		mux.Handle("POST /api/assessments", public(intake.SubmitAssessment))
		mux.Handle("OPTIONS /api/assessments", preflight)
	}
	if services.Status != nil {
		status := &StatusHandlers{Svc: services.Status, Logger: logger}
		mux.Handle("GET /api/assessments/status", public(status.AssessmentStatus))
		mux.Handle("OPTIONS /api/assessments/status", preflight)
		mux.Handle("GET /api/newsletter/status", public(status.NewsletterStatus))
		mux.Handle("OPTIONS /api/newsletter/status", preflight)
	}
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, token string) {
	auth := RequireBearerToken(token)
	admin := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux.Handle("GET /api/admin/newsletter/stats", admin(h.NewsletterStats))
	mux.Handle("GET /api/admin/newsletter/recent", admin(h.RecentSubscriptions))
	mux.Handle("GET /api/admin/newsletter/{id}", admin(h.GetSubscription))
	mux.Handle("GET /api/admin/assessments/stats", admin(h.AssessmentStats))
	mux.Handle("GET /api/admin/assessments/recent", admin(h.RecentAssessments))
	mux.Handle("GET /api/admin/assessments/{id}", admin(h.GetAssessment))
	mux.Handle("GET /api/admin/jobs/stats", admin(h.JobStats))
	mux.Handle("GET /api/admin/jobs/dead", admin(h.DeadJobs))
	mux.Handle("POST /api/admin/jobs/{id}/retry", admin(h.RetryJob))
}
