package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/broker/messages"
	"github.com/BearBump/GuideBox/internal/integrations/carrier"
	"github.com/BearBump/GuideBox/internal/models"
)

type Repository interface {
	ClaimDueGuides(ctx context.Context, limit int, lease time.Duration) ([]*models.Guide, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Syncer claims due guides in batches, checks them against the carrier and
// publishes the outcome. It never writes guide state itself: the api side
// owns reconciliation.
type Syncer struct {
	repo    Repository
	carrier carrier.Client
	producer Producer
	rl      RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, carrierClient carrier.Client, producer Producer, rl RateLimiter, topic string) *Syncer {
	return &Syncer{
		repo: repo, carrier: carrierClient, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Syncer) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Syncer {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if lease > 0 {
		s.lease = lease
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

func (s *Syncer) WithPlanner(cfg PlannerConfig) *Syncer {
	s.planner = NewPlanner(cfg, nil)
	return s
}

// Trigger forces an immediate sync cycle (best-effort, non-blocking).
func (s *Syncer) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Syncer) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalClaimed:   s.totalClaimed.Load(),
		TotalProcessed: s.totalProcessed.Load(),
		TotalErrors:    s.totalErrors.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Syncer) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	items, err := s.repo.ClaimDueGuides(ctx, s.batchSize, s.lease)
	if err != nil {
		slog.Error("claim due guides", "error", err.Error())
		s.recordError(err)
		return
	}
	s.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, g := range items {
		sem <- struct{}{}
		wg.Add(1)
		gCopy := g
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.processOne(ctx, gCopy); err != nil {
				s.totalErrors.Add(1)
				s.recordError(err)
				slog.Error("process guide", "guide_id", gCopy.ID, "error", err.Error())
			}
			s.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (s *Syncer) recordError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func (s *Syncer) processOne(ctx context.Context, g *models.Guide) error {
	now := time.Now().UTC()

	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:carrier:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Warn("carrier rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	res, err := s.carrier.CheckGuide(ctx, g.TrackingNumber)
	msg := messages.GuideSynced{
		GuideID:   g.ID,
		CheckedAt: now,
	}

	if err != nil {
		e := err.Error()
		msg.Error = &e
		msg.NextCheckAt = now.Add(s.planner.RetryDelay())
	} else {
		msg.Status = res.Status
		msg.StatusRaw = res.StatusRaw
		msg.StatusAt = res.StatusAt
		msg.NextCheckAt = now.Add(s.planner.NextCheckDelay(res.Status))
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", g.ID))
	// Kafka may not be up right after docker compose starts, retry briefly.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := s.producer.Publish(ctx, s.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
