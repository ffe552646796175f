package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/infra/logging"
	"pix-subscription-billing/internal/usecase"
)

// Server wires the payment API, provider webhooks and the admin surface
// onto one router.
type Server struct {
	chargeUC  usecase.ChargeUseCase
	engine    usecase.ReconciliationEngine
	dedupUC   usecase.DuplicateResolver
	statsUC   usecase.StatsUseCase
	entitleUC usecase.EntitlementActivator
	registry  adapter.Registry
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	chargeUC usecase.ChargeUseCase,
	engine usecase.ReconciliationEngine,
	dedupUC usecase.DuplicateResolver,
	statsUC usecase.StatsUseCase,
	entitleUC usecase.EntitlementActivator,
	registry adapter.Registry,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		chargeUC:  chargeUC,
		engine:    engine,
		dedupUC:   dedupUC,
		statsUC:   statsUC,
		entitleUC: entitleUC,
		registry:  registry,
		auth:      auth,
		apiKey:    apiKey,
		log:       &l,
	}
}

// Router builds the chi mux with all routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/charge", s.handleCharge)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/api/v1/users/{userID}/entitlement", s.handleEntitlement)

	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Post("/admin/login", s.handleLogin)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Post("/logout", s.handleLogout)
		r.Get("/stats", s.handleStats)
		r.Get("/duplicates", s.handleDuplicatesList)
		r.Post("/duplicates/purge", s.handleDuplicatesPurge)
		r.Post("/payments/{sessionID}/process", s.handleForceProcess)
	})

	return r
}

// adminAuth gates the admin routes behind a valid JWT.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLogin exchanges the configured API key for a short-lived admin JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiKey == "" || req.APIKey != s.apiKey {
		s.log.Warn().
			Str("api_key", logging.Redact(req.APIKey)).
			Str("remote", r.RemoteAddr).
			Msg("admin login rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to mint token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleLogout drops the admin session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
