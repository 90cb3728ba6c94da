package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/bulk"
	"github.com/longbox-labs/entity-verify/internal/monitoring"
	"github.com/longbox-labs/entity-verify/internal/queue"
	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/source"
	"github.com/longbox-labs/entity-verify/internal/store"
	"github.com/longbox-labs/entity-verify/internal/verify"
	"github.com/longbox-labs/entity-verify/pkg/comicvine"
	"github.com/longbox-labs/entity-verify/pkg/marvel"
	"github.com/longbox-labs/entity-verify/pkg/superhero"
)

// verifyEnv holds the initialized store, queue, source adapters, and
// reconciler shared by the serve/worker/verify/bulk commands.
type verifyEnv struct {
	Store      store.Store
	Queue      queue.Queue
	Registry   *source.Registry
	Fetcher    *resilience.Fetcher
	Metrics    *monitoring.Metrics
	Reconciler *verify.Reconciler
	Scheduler  *bulk.Scheduler
	Collector  *monitoring.Collector

	redisClient *redis.Client
}

// Close releases resources held by the environment.
func (e *verifyEnv) Close() {
	if e.redisClient != nil {
		_ = e.redisClient.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for the given mode and wires the pipeline.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*verifyEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &verifyEnv{Store: st}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "ping redis")
		}
		env.redisClient = client
		env.Queue = queue.NewRedis(client,
			queue.WithNamespace(cfg.Redis.Namespace),
			queue.WithRetention(time.Duration(cfg.Redis.RetentionHours)*time.Hour),
		)
		zap.L().Info("using redis queue", zap.String("addr", cfg.Redis.Addr))
	} else {
		env.Queue = queue.NewMemory()
		zap.L().Info("using in-memory queue")
	}

	env.Registry = initSources()
	env.Fetcher = resilience.NewFetcher(resilience.NewSourceBreakers(cfg.Breaker.CircuitBreaker()))
	env.Metrics = monitoring.New(prometheus.DefaultRegisterer)

	env.Reconciler = verify.NewReconciler(st, env.Registry, env.Fetcher, env.Metrics, verify.Config{
		FreshnessWindow: cfg.Verify.FreshnessWindow(),
		Retry:           cfg.Retry.Retry(),
	})

	env.Scheduler = bulk.NewScheduler(st, env.Queue,
		bulk.WithEnqueueRate(cfg.Bulk.EnqueuePerSecond),
		bulk.WithStagger(time.Duration(cfg.Bulk.StaggerMs)*time.Millisecond),
	)
	env.Collector = monitoring.NewCollector(env.Queue, env.Fetcher.Breakers(), st)

	return env, nil
}

// initSources builds the adapter registry from enabled providers, in
// fixed confidence order.
func initSources() *source.Registry {
	var adapters []source.Adapter

	if cfg.Providers.ComicVine.Enabled {
		opts := []comicvine.Option{}
		if cfg.Providers.ComicVine.BaseURL != "" {
			opts = append(opts, comicvine.WithBaseURL(cfg.Providers.ComicVine.BaseURL))
		}
		adapters = append(adapters, source.NewComicVineAdapter(comicvine.NewClient(cfg.Providers.ComicVine.APIKey, opts...)))
	}
	if cfg.Providers.Marvel.Enabled {
		opts := []marvel.Option{}
		if cfg.Providers.Marvel.BaseURL != "" {
			opts = append(opts, marvel.WithBaseURL(cfg.Providers.Marvel.BaseURL))
		}
		adapters = append(adapters, source.NewMarvelAdapter(marvel.NewClient(cfg.Providers.Marvel.PublicKey, cfg.Providers.Marvel.PrivateKey, opts...)))
	}
	if cfg.Providers.Superhero.Enabled {
		opts := []superhero.Option{}
		if cfg.Providers.Superhero.BaseURL != "" {
			opts = append(opts, superhero.WithBaseURL(cfg.Providers.Superhero.BaseURL))
		}
		adapters = append(adapters, source.NewSuperheroAdapter(superhero.NewClient(cfg.Providers.Superhero.Token, opts...)))
	}

	return source.NewRegistry(adapters...)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "verify.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newWorker builds a worker pool running jobs through the reconciler.
func (e *verifyEnv) newWorker() *queue.Worker {
	return queue.NewWorker(e.Queue, e.Reconciler.VerifyEntity, cfg.Worker.Concurrency,
		queue.WithPollInterval(time.Duration(cfg.Worker.PollIntervalMs)*time.Millisecond),
	)
}
