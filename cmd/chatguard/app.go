package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/creastat/chatguard/chat"
	"github.com/creastat/chatguard/conversation"
	"github.com/creastat/chatguard/guardrail"
	"github.com/creastat/chatguard/internal/config"
	"github.com/creastat/chatguard/internal/logger"
	"github.com/creastat/chatguard/metrics"
	"github.com/creastat/chatguard/reaper"
	"github.com/creastat/chatguard/session"
	"github.com/creastat/chatguard/subject"
	"github.com/creastat/chatguard/supabase"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// nil when store.driver is none
	store     session.Store
	catalog   *subject.Catalog
	evaluator *guardrail.Evaluator
	manager   *conversation.Manager
	chat      *chat.Service
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		Output:     os.Stderr,
		WithCaller: cfg.Log.Caller,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("driver", cfg.Store.Driver).Msg("durable store opened")

	catalog := subject.NewCatalog(cfg.Guardrail.SubjectContexts())
	evaluator := guardrail.New(cfg.Guardrail.Dictionary(),
		append(cfg.Guardrail.Options(), guardrail.WithMetrics(m))...)

	manager := conversation.New(store,
		conversation.WithMaxMessages(cfg.Session.MaxMessages),
		conversation.WithListLimit(cfg.Session.ListLimit),
		conversation.WithStoreTimeout(cfg.Session.StoreTimeout),
		conversation.WithLogger(logger.Component(log, "conversation")),
		conversation.WithMetrics(m),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		metrics:   m,
		store:     store,
		catalog:   catalog,
		evaluator: evaluator,
		manager:   manager,
		chat:      chat.NewService(catalog, evaluator, manager, chat.WithLogger(logger.Component(log, "chat"))),
	}, nil
}

func (a *app) newReaper(opts ...reaper.Option) *reaper.Reaper {
	base := []reaper.Option{
		reaper.WithInterval(a.cfg.Reaper.Interval),
		reaper.WithTimeout(a.cfg.Session.Timeout),
		reaper.WithRetention(a.cfg.Session.MessageRetention),
		reaper.WithLogger(logger.Component(a.log, "reaper")),
		reaper.WithMetrics(a.metrics),
	}
	if a.cfg.Reaper.RunOnStart {
		base = append(base, reaper.WithRunOnStart())
	}
	return reaper.New(a.store, a.manager, append(base, opts...)...)
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func openStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverMemory:
		return session.NewStore(session.StoreTypeMemory)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithRedisTTL(cfg.Redis.TTL),
		)
	case config.DriverSQLite:
		return session.NewStore(session.StoreTypeSQLite, session.WithSQLitePath(cfg.SQLite.Path))
	case config.DriverSupabase:
		client, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.APIKey})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
