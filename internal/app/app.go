// Package app wires one explicitly owned client context: configuration,
// session, cache, HTTP client and services. There is no package-level state;
// every binary builds its own App and closes it on exit.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/repository"
	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/internal/logger"
	logicv1 "github.com/duynhne/codeyard/internal/logic/v1"
)

// App is the client-side application context.
type App struct {
	Config  *config.Config
	Store   domain.KeyValueStore
	Session *session.Store
	Cache   *cache.Cache
	Client  *client.Client

	Auth     *logicv1.AuthService
	Catalog  *logicv1.CatalogService
	Mutator  *logicv1.SolutionMutator
	Notifier logicv1.Notifier
}

type options struct {
	notifier   logicv1.Notifier
	registerer prometheus.Registerer
	store      domain.KeyValueStore
}

// Option customizes New.
type Option func(*options)

// WithNotifier routes mutation notifications to n.
func WithNotifier(n logicv1.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithRegisterer registers metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStore uses kv for the session instead of the configured store.
func WithStore(kv domain.KeyValueStore) Option {
	return func(o *options) { o.store = kv }
}

// New builds an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{notifier: logicv1.LogNotifier{}}
	for _, opt := range opts {
		opt(&o)
	}

	kv := o.store
	if kv == nil {
		var err error
		kv, err = OpenStore(ctx, cfg.Session)
		if err != nil {
			return nil, err
		}
	}

	clientMetrics := client.DefaultMetrics()
	mutationMetrics := logicv1.DefaultMetrics()
	if o.registerer != nil {
		clientMetrics = client.NewMetrics(o.registerer)
		mutationMetrics = logicv1.NewMetrics(o.registerer)
	}

	store := session.NewStore(kv)
	c := cache.New(cfg.GetCacheTTLDuration())
	store.OnUnauthenticated(func(ctx context.Context) {
		c.Clear()
	})

	api, err := client.New(cfg, store, client.WithMetrics(clientMetrics))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	return &App{
		Config:   cfg,
		Store:    kv,
		Session:  store,
		Cache:    c,
		Client:   api,
		Auth:     logicv1.NewAuthService(api, store, c),
		Catalog:  logicv1.NewCatalogService(api, c, store),
		Mutator:  logicv1.NewSolutionMutator(api, c, store, logicv1.WithNotifier(o.notifier), logicv1.WithMutationMetrics(mutationMetrics)),
		Notifier: o.notifier,
	}, nil
}

// OpenStore opens the session store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.SessionConfig) (domain.KeyValueStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return repository.NewMemoryKeyValueStore(), nil
	case config.StorePostgres:
		pool, err := core.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres session store: %w", err)
		}
		kv, err := repository.NewPgxKeyValueStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open postgres session store: %w", err)
		}
		return kv, nil
	case config.StoreSQLite, "":
		kv, err := repository.NewSQLiteKeyValueStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite session store %q: %w", cfg.Path, err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// Close releases the session store.
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close session store: %w", err)
	}
	logger.FromContext(context.Background()).Debug().Msg("Application context closed")
	return nil
}
