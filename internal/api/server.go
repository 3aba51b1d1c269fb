package api

import (
	"context"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"floranav/internal/auth"
	"floranav/internal/config"
	"floranav/internal/planner"
	"floranav/internal/store"
	"floranav/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Planner *planner.Planner
	Cfg     *config.Config

	computeLimiter *rate.Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses the in-memory
// store; if REDIS_URL is unset, uses the in-process broker.
func NewServer(pl *planner.Planner, cfg *config.Config) (*Server, error) {
	dsn := cfg.DatabaseURL
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.Migrate(context.Background()); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return &Server{
		Store:          s,
		Pub:            webhooks.NewPublisher(s),
		Auth:           auth.NewVerifierFromEnv(),
		Broker:         broker,
		Planner:        pl,
		Cfg:            cfg,
		computeLimiter: rate.NewLimiter(rate.Limit(cfg.ComputeRPS), cfg.ComputeBurst),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
