package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/GuideBox/config"
	"github.com/BearBump/GuideBox/internal/broker/kafka"
	"github.com/BearBump/GuideBox/internal/cache/rediscache"
	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/integrations/carrier/emulatorv1"
	"github.com/BearBump/GuideBox/internal/integrations/carrier/fake"
	"github.com/BearBump/GuideBox/internal/services/syncer"
	"github.com/BearBump/GuideBox/internal/storage/pgguides"
)

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo syncer.Repository, closeFn func(), err error)
	newProducer      func(cfg *config.Config) syncer.Producer
	newRateLimiter   func(cfg *config.Config) syncer.RateLimiter
	newCarrierClient func(cfg *config.Config) carrier.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (syncer.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgguides.New(context.Background(), connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) syncer.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) syncer.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Carrier emulator when configured, deterministic fake otherwise.
			if cfg.GuideBox.CarrierEmulatorBaseURL != "" {
				return emulatorv1.New(cfg.GuideBox.CarrierEmulatorBaseURL, cfg.GuideBox.CarrierEmulatorAPIKey)
			}
			return fake.New()
		},
	}
}

func newSyncer(cfg *config.Config, f workerFactories) (*syncer.Syncer, func(), error) {
	topic := cfg.Kafka.GuideSyncedTopicName
	if topic == "" {
		topic = "guide.synced"
	}

	pollInterval := time.Duration(cfg.GuideBox.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.GuideBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.GuideBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.GuideBox.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.GuideBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	s := syncer.New(repo, f.newCarrierClient(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(syncer.PlannerConfig{
			InProgressMinDelay: time.Duration(cfg.GuideBox.WorkerNextCheckInProgressMinSeconds) * time.Second,
			InProgressMaxDelay: time.Duration(cfg.GuideBox.WorkerNextCheckInProgressMaxSeconds) * time.Second,
			PendingDelay:       time.Duration(cfg.GuideBox.WorkerNextCheckPendingSeconds) * time.Second,
			RetryDelay:         time.Duration(cfg.GuideBox.WorkerRetrySeconds) * time.Second,
		})
	return s, closeFn, nil
}

func RunGuideWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	s, closeFn, err := newSyncer(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return s.Run(ctx)
}
