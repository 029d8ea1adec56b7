package syncer

import (
	"math/rand"
	"time"

	"github.com/BearBump/GuideBox/internal/models"
)

type Rand interface {
	Intn(n int) int
}

// PlannerConfig shapes how far out the next carrier check is scheduled per
// canonical status.
type PlannerConfig struct {
	TerminalDelay time.Duration // default: 365 days, terminal guides are effectively parked

	InProgressMinDelay time.Duration // default: 30 minutes
	InProgressMaxDelay time.Duration // default: 120 minutes

	PendingDelay time.Duration // default: 90 minutes

	RetryDelay time.Duration // default: 5 minutes, applied after a failed check
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		TerminalDelay: 365 * 24 * time.Hour,

		InProgressMinDelay: 30 * time.Minute,
		InProgressMaxDelay: 120 * time.Minute,

		PendingDelay: 90 * time.Minute,

		RetryDelay: 5 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.TerminalDelay <= 0 {
		cfg.TerminalDelay = def.TerminalDelay
	}
	if cfg.InProgressMinDelay <= 0 {
		cfg.InProgressMinDelay = def.InProgressMinDelay
	}
	if cfg.InProgressMaxDelay <= 0 {
		cfg.InProgressMaxDelay = def.InProgressMaxDelay
	}
	if cfg.InProgressMaxDelay < cfg.InProgressMinDelay {
		cfg.InProgressMaxDelay = cfg.InProgressMinDelay
	}
	if cfg.PendingDelay <= 0 {
		cfg.PendingDelay = def.PendingDelay
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

// NextCheckDelay spreads in_progress checks across the min..max window so a
// big import does not come due all at once.
func (p *Planner) NextCheckDelay(status string) time.Duration {
	switch {
	case models.IsTerminalStatus(status):
		return p.cfg.TerminalDelay
	case status == models.StatusInProgress:
		min := p.cfg.InProgressMinDelay
		max := p.cfg.InProgressMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	default:
		return p.cfg.PendingDelay
	}
}

func (p *Planner) RetryDelay() time.Duration {
	return p.cfg.RetryDelay
}
