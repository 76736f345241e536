package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/org/dealership/internal/audit"
	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/internal/clock"
	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/internal/validate"
	"github.com/org/dealership/pkg/models"
)

// Config holds server configuration. It is built once at startup.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string

	TokenSecret []byte
	TokenTTL    time.Duration
	CookieName  string
	BcryptCost  int
	AllowList   *auth.AllowList
	HireEpoch   time.Time

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// AuditRejected also persists requests the guard rejected. They are
	// always logged and counted.
	AuditRejected bool

	Clock clock.Clock
}

// AuditLogger is the interface the server needs from an audit logger.
type AuditLogger interface {
	LogRequest(ctx context.Context, entry *models.AuditEntry)
	Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error)
}

// Server is the API server.
type Server struct {
	store   storage.Store
	tokens  *auth.TokenService
	authn   *auth.Authenticator
	guard   *auth.Guard
	rules   *validate.Rules
	auditor AuditLogger
	clock   clock.Clock
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a fully wired Server. It fails when the token signing
// secret is missing.
func NewServer(store storage.Store, cfg Config) (*Server, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = auth.DefaultBcryptCost
	}
	if cfg.AllowList == nil {
		cfg.AllowList = auth.DefaultAllowList()
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 200
	}

	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.Clock)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewAuthenticator(store, tokens, cfg.TokenTTL, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}

	return &Server{
		store:   store,
		tokens:  tokens,
		authn:   authn,
		guard:   auth.NewGuard(cfg.AllowList, tokens, cfg.CookieName),
		rules:   validate.NewRules(validate.RulesConfig{HireEpoch: cfg.HireEpoch}),
		auditor: audit.NewLogger(store, cfg.Clock),
		clock:   cfg.Clock,
		cfg:     cfg,
	}, nil
}

// BuildRouter wires up all routes and returns a chi router. Every route not on
// the allow-list requires a session.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	if s.cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst).middleware)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(auditMiddleware(s.auditor, s.clock.Now, s.cfg.AuditRejected))
	r.Use(guardMiddleware(s.guard))

	// Principals and sessions
	r.Post("/users/login", s.LoginHandler)
	r.Post("/users/logout", s.LogoutHandler)
	r.Get("/users/me", s.MeHandler)
	r.Post("/users", s.RegisterHandler)
	r.Get("/users", s.ListUsersHandler)
	r.Get("/users/{id}", s.GetUserHandler)
	r.Put("/users/{id}", s.UpdateUserHandler)
	r.Delete("/users/{id}", s.DeleteUserHandler)

	// Records
	s.customers().mount(r, "/customers")
	s.salespeople().mount(r, "/salespeople")
	s.cars().mount(r, "/cars")

	r.Get("/audit-log", s.AuditLogHandler)

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
