package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/RouteBox/config"
	"github.com/BearBump/RouteBox/internal/broker/kafka"
	"github.com/BearBump/RouteBox/internal/cache"
	"github.com/BearBump/RouteBox/internal/cache/rediscache"
	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/integrations/directions/fake"
	"github.com/BearBump/RouteBox/internal/integrations/directions/orshttp"
	"github.com/BearBump/RouteBox/internal/services/poller"
	"github.com/BearBump/RouteBox/internal/services/routeplans"
	"github.com/BearBump/RouteBox/internal/storage/pgroute"
)

type workerFactories struct {
	newStorage          func(cfg *config.Config) (repo *pgroute.Storage, closeFn func(), err error)
	newProducer         func(cfg *config.Config) poller.Producer
	newRateLimiter      func(cfg *config.Config) poller.RateLimiter
	newCache            func(cfg *config.Config) cache.BytesCache
	newDirectionsClient func(cfg *config.Config) directions.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (*pgroute.Storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgroute.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newDirectionsClient: func(cfg *config.Config) directions.Client {
			// Без ключа провайдера работаем на локальном fake.
			if cfg.RouteBox.DirectionsAPIKey == "" {
				return fake.New()
			}
			return orshttp.New(
				cfg.RouteBox.DirectionsBaseURL,
				cfg.RouteBox.DirectionsAPIKey,
				cfg.RouteBox.DirectionsProfile,
				time.Duration(cfg.RouteBox.DirectionsTimeoutSeconds)*time.Second,
			)
		},
	}
}

func buildPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.RoutePlanUpdatedTopicName
	if topic == "" {
		topic = "routeplan.updated"
	}

	pollInterval := time.Duration(cfg.RouteBox.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	batchSize := cfg.RouteBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := cfg.RouteBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	lease := time.Duration(cfg.RouteBox.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.RouteBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 40
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	materializedTTL := time.Duration(cfg.RouteBox.MaterializedTTLSeconds) * time.Second
	if materializedTTL <= 0 {
		materializedTTL = 10 * time.Minute
	}

	// Публикацией routeplan.updated занимается сам поллер, поэтому
	// сервису продюсер не передаём, чтобы событие не уходило дважды.
	svc := routeplans.New(
		st, f.newDirectionsClient(cfg), f.newCache(cfg), nil,
		"", materializedTTL,
		cfg.RouteBox.WaypointReachedRadiusMeters,
		time.Duration(cfg.RouteBox.WorkerBackoff1Seconds)*time.Second,
	)

	p := poller.New(st, svc, f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(poller.PlannerConfig{
			Backoff1: time.Duration(cfg.RouteBox.WorkerBackoff1Seconds) * time.Second,
			Backoff2: time.Duration(cfg.RouteBox.WorkerBackoff2Seconds) * time.Second,
			Backoff3: time.Duration(cfg.RouteBox.WorkerBackoff3Seconds) * time.Second,
			Backoff4: time.Duration(cfg.RouteBox.WorkerBackoff4Seconds) * time.Second,
		})

	return p, closeFn, nil
}

func RunRouteWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := buildPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return p.Run(ctx)
}
