package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/GuideBox/config"
	"github.com/BearBump/GuideBox/internal/broker/kafka"
	"github.com/BearBump/GuideBox/internal/cache/rediscache"
	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/integrations/carrier/emulatorv1"
	"github.com/BearBump/GuideBox/internal/integrations/carrier/fake"
	"github.com/BearBump/GuideBox/internal/services/guides"
	"github.com/BearBump/GuideBox/internal/storage/pgguides"
)

type guideAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     guideAPIOpts
	svc      *guides.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapGuideAPI() *guideAPIApp {
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
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.GuideBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.GuideBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "guide-api"
	}
	topic := cfg.Kafka.GuideSyncedTopicName
	if topic == "" {
		topic = "guide.synced"
	}

	cacheTTL := time.Duration(cfg.GuideBox.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	syncDelay := time.Duration(cfg.GuideBox.BulkSyncDelayMillis) * time.Millisecond

	st := mustOpenPostgresWithRetry(connString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := guides.New(st, rc, newCarrierClient(cfg), cacheTTL, syncDelay)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &guideAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: guideAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
			ready:         st.Ping,
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

func newCarrierClient(cfg *config.Config) carrier.Client {
	if cfg.GuideBox.CarrierEmulatorBaseURL != "" {
		return emulatorv1.New(cfg.GuideBox.CarrierEmulatorBaseURL, cfg.GuideBox.CarrierEmulatorAPIKey)
	}
	return fake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgguides.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgguides.New(context.Background(), connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *guideAPIApp) Close() {
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

func (a *guideAPIApp) Run() error {
	return runGuideAPI(a.ctx, a.opts, a.svc, a.consumer)
}
