// Package server exposes the lending service over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sbtlend/services/lending/engine"
	"sbtlend/services/lending/journal"
)

// Config captures the HTTP surface settings.
type Config struct {
	Auth          AuthConfig
	RateLimit     RateLimit
	StreamOrigins []string
	Logger        *slog.Logger
}

// Server routes HTTP requests into the lending service.
type Server struct {
	cfg     Config
	svc     *engine.Service
	journal *journal.Journal
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs a server. The journal and hub are optional; their routes
// answer 503 when absent.
func New(svc *engine.Service, j *journal.Journal, hub *Hub, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: lending service required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		svc:     svc,
		journal: j,
		hub:     hub,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/lending", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware("lending"), instrument("lending", s.logger))
		sr.Get("/profile/{addr}", s.getProfile)
		sr.Get("/loan/{addr}", s.getLoan)
		sr.Get("/stats", s.getStats)
		sr.Get("/health-factor/{addr}", s.getHealthFactor)
		sr.Get("/max-borrowable/{addr}", s.getMaxBorrowable)
		sr.Get("/utilization", s.getUtilization)
		sr.Get("/collateral/{addr}", s.getTotalCollateral)
		sr.Get("/borrowed/{addr}", s.getBorrowedAmount)
		sr.Get("/total-borrowed", s.getTotalBorrowed)
		sr.Group(func(wr chi.Router) {
			wr.Use(s.auth.Middleware)
			wr.Post("/initialize", s.initializePool)
			wr.Post("/deposit", s.deposit)
			wr.Post("/borrow", s.borrow)
			wr.Post("/repay", s.repay)
			wr.Post("/withdraw", s.withdraw)
			wr.Post("/liquidate", s.liquidate)
		})
	})

	r.Route("/v1/reputation", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware("reputation"), instrument("reputation", s.logger))
		sr.Get("/thresholds", s.getThresholds)
		sr.Get("/has/{addr}", s.getHasSBT)
		sr.Get("/multiplier/{addr}", s.getMultiplier)
		sr.Get("/can-perform/{addr}", s.getCanPerform)
		sr.Group(func(wr chi.Router) {
			wr.Use(s.auth.Middleware)
			wr.Post("/initialize", s.initializeRegistry)
			wr.Post("/mint", s.mint)
			wr.Post("/update", s.updateReputation)
			wr.Post("/increase", s.increaseReputation)
			wr.Post("/decrease", s.decreaseReputation)
			wr.Post("/batch", s.batchUpdate)
		})
		sr.Get("/{addr}", s.getReputation)
	})

	r.Route("/v1/bank", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware("bank"), instrument("bank", s.logger))
		sr.Get("/balance/{addr}", s.getBalance)
		sr.With(s.auth.Middleware).Post("/credit", s.credit)
	})

	r.Route("/v1/events", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware("events"))
		sr.With(instrument("events", s.logger)).Get("/", s.listEvents)
		sr.With(instrument("events", s.logger)).Get("/verify", s.verifyEvents)
		sr.Get("/stream", s.handleStream)
	})

	return r
}
