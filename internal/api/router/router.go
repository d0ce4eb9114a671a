package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/automation"
	httpmiddleware "github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/internal/leads"
	"github.com/wolfman30/clinicops/internal/opentickets"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	TicketsHandler      *opentickets.Handler
	AutomationHandler   *automation.Handler
	LeadsHandler        *leads.Handler
	MetricsHandler      http.Handler
	AdminJWTSecret      string
	LeadIntakeToken     string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics, web form intake)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.LeadsHandler != nil {
			public.With(requireIntakeToken(cfg.LeadIntakeToken)).Post("/leads/web", cfg.LeadsHandler.CreateWebLead)
		}
	})

	// Staff routes (HMAC JWT carrying the role claim)
	r.Group(func(staff chi.Router) {
		staff.Use(httpmiddleware.StaffJWT(cfg.AdminJWTSecret))
		if cfg.AppointmentsHandler != nil {
			staff.Mount("/appointments", cfg.AppointmentsHandler.Routes())
		}
		if cfg.TicketsHandler != nil {
			staff.Mount("/open-tickets", cfg.TicketsHandler.Routes())
		}
		if cfg.AutomationHandler != nil {
			staff.Mount("/automation", cfg.AutomationHandler.Routes())
		}
		if cfg.LeadsHandler != nil {
			staff.Get("/leads", cfg.LeadsHandler.ListLeads)
			staff.Get("/leads/{id}", cfg.LeadsHandler.GetLead)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
