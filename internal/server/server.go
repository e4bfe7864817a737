package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/admin"
	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/booking"
	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/config"
	"github.com/mohammedemad618/amir-sub000/internal/middleware"
	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
)

// Options carries the server's collaborators
type Options struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       storage.Storage
	Auth        *auth.Service
	Tokens      *auth.TokenManager
	Guard       *booking.Guard
	Admin       *admin.Service
	AuthLimiter *middleware.FixedWindowLimiter
	HTTPLimiter *middleware.RateLimiter
	Clock       clock.Clock
	Version     string
}

// Server is the booking HTTP API
type Server struct {
	httpServer  *http.Server
	config      *config.Config
	logger      *zap.Logger
	auth        *auth.Service
	authn       *auth.Authenticator
	guard       *booking.Guard
	admin       *admin.Service
	authLimiter *middleware.FixedWindowLimiter
	httpLimiter *middleware.RateLimiter
	security    *SecurityLogger
	health      *HealthChecker
	clock       clock.Clock
	handler     http.Handler
}

// New creates the HTTP server
func New(opts Options) *Server {
	log := logger.OrNop(opts.Logger)
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	s := &Server{
		config:      opts.Config,
		logger:      log,
		auth:        opts.Auth,
		guard:       opts.Guard,
		admin:       opts.Admin,
		authLimiter: opts.AuthLimiter,
		httpLimiter: opts.HTTPLimiter,
		security:    NewSecurityLogger(log),
		health:      NewHealthChecker(opts.Store, opts.Version),
		clock:       clk,
	}
	s.authn = auth.NewAuthenticator(opts.Tokens, opts.Store, auth.CookieConfig{
		Name:   opts.Config.Auth.CookieName,
		Secure: opts.Config.Auth.CookieSecure,
	}, s.writeError, log)

	s.handler = s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + opts.Config.Server.Port,
		Handler:        s.handler,
		ReadTimeout:    opts.Config.Server.ReadTimeout,
		WriteTimeout:   opts.Config.Server.WriteTimeout,
		IdleTimeout:    opts.Config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(s.requestID)
	r.Use(s.securityHeadersMiddleware)
	r.Use(middleware.PrometheusMiddleware)
	if len(s.config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if s.httpLimiter != nil {
		r.Use(middleware.HTTPRateLimitMiddleware(s.httpLimiter, s.writeError))
	}
	// the loggers below read the identity
	r.Use(s.authn.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.securityAuditMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"code": "NOT_FOUND", "error": "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"code": "METHOD_NOT_ALLOWED", "error": "method not allowed"})
	})

	r.Get("/health", s.health.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.authLimiter != nil {
				r.Use(s.authLimiter.Middleware(s.writeError))
			}
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})
		r.Post("/logout", s.handleLogout)
		r.With(s.authn.RequireAuth).Get("/me", s.handleMe)
	})

	r.Route("/booking", func(r chi.Router) {
		r.Use(s.authn.RequireAuth)
		r.With(s.authn.RequirePermission(auth.PermSlotRead)).Get("/slots", s.handleSlotsForDate)
		r.With(s.authn.RequirePermission(auth.PermBookingReadOwn)).Get("/mine", s.handleMyBookings)
		r.With(s.authn.RequirePermission(auth.PermBookingCreate)).Post("/", s.handleCreateBooking)
		r.With(s.authn.RequirePermission(auth.PermBookingCancel)).Patch("/{id}", s.handleUpdateOwnBooking)
		r.With(s.authn.RequirePermission(auth.PermBookingReadOwn)).Get("/{id}/receipt", s.handleReceipt)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authn.RequireAuth)

		r.Group(func(r chi.Router) {
			r.Use(s.authn.RequirePermission(auth.PermAdminSlots))
			r.Get("/slots", s.handleAdminListSlots)
			r.Post("/slots", s.handleAdminCreateSlot)
			r.Patch("/slots/{id}", s.handleAdminUpdateSlot)
			r.Delete("/slots/{id}", s.handleAdminDeleteSlot)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authn.RequirePermission(auth.PermAdminSchedule))
			r.Get("/booking-schedule", s.handleGetSchedule)
			r.Put("/booking-schedule", s.handleSaveSchedule)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authn.RequirePermission(auth.PermAdminBookings))
			r.Get("/bookings", s.handleAdminListBookings)
			r.Patch("/bookings/{id}", s.handleAdminSetStatus)
			r.Delete("/bookings/{id}", s.handleAdminDeleteBooking)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authn.RequirePermission(auth.PermAdminUsers))
			r.Get("/users", s.handleAdminListUsers)
			r.Patch("/users/{id}", s.handleAdminSetRole)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
