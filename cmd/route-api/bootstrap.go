package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/RouteBox/config"
	"github.com/BearBump/RouteBox/internal/broker/kafka"
	"github.com/BearBump/RouteBox/internal/cache/rediscache"
	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/integrations/directions/fake"
	"github.com/BearBump/RouteBox/internal/integrations/directions/orshttp"
	"github.com/BearBump/RouteBox/internal/services/routeplans"
	"github.com/BearBump/RouteBox/internal/storage/pgroute"
)

type routeAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     routeAPIOpts
	svc      *routeplans.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapRouteAPI() *routeAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.RouteBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.RouteBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "route-api"
	}
	locationTopic := cfg.Kafka.DriverLocationTopicName
	if locationTopic == "" {
		locationTopic = "driver.location"
	}
	updatedTopic := cfg.Kafka.RoutePlanUpdatedTopicName
	if updatedTopic == "" {
		updatedTopic = "routeplan.updated"
	}

	materializedTTL := time.Duration(cfg.RouteBox.MaterializedTTLSeconds) * time.Second
	if materializedTTL <= 0 {
		materializedTTL = 10 * time.Minute
	}
	retryAfter := time.Duration(cfg.RouteBox.WorkerBackoff1Seconds) * time.Second

	st := mustOpenPostgresWithRetry(connString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, locationTopic, consumerGroup)

	svc := routeplans.New(
		st, newDirectionsClient(cfg), rc, producer,
		updatedTopic, materializedTTL,
		cfg.RouteBox.WaypointReachedRadiusMeters, retryAfter,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &routeAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: routeAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         locationTopic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func connString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

// Без ключа провайдера работаем на локальном fake: удобно для демо и тестов.
func newDirectionsClient(cfg *config.Config) directions.Client {
	if cfg.RouteBox.DirectionsAPIKey == "" {
		return fake.New()
	}
	return orshttp.New(
		cfg.RouteBox.DirectionsBaseURL,
		cfg.RouteBox.DirectionsAPIKey,
		cfg.RouteBox.DirectionsProfile,
		time.Duration(cfg.RouteBox.DirectionsTimeoutSeconds)*time.Second,
	)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgroute.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgroute.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *routeAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *routeAPIApp) Run() error {
	return runRouteAPI(a.ctx, a.opts, a.svc, a.consumer)
}
