package refresher

import (
	"math/rand"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	DeliveredDelay time.Duration // default: 7 days

	// IN_TRANSIT и READY_FOR_PICKUP: случайная задержка в окне [min, max].
	ActiveMinDelay time.Duration // default: 30 minutes
	ActiveMaxDelay time.Duration // default: 120 minutes

	DefaultDelay    time.Duration // default: 90 minutes
	NoTrackingDelay time.Duration // default: 24 hours

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 7 * 24 * time.Hour,

		ActiveMinDelay: 30 * time.Minute,
		ActiveMaxDelay: 120 * time.Minute,

		DefaultDelay:    90 * time.Minute,
		NoTrackingDelay: 24 * time.Hour,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	orDefault := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	orDefault(&cfg.DeliveredDelay, def.DeliveredDelay)
	orDefault(&cfg.ActiveMinDelay, def.ActiveMinDelay)
	orDefault(&cfg.ActiveMaxDelay, def.ActiveMaxDelay)
	if cfg.ActiveMaxDelay < cfg.ActiveMinDelay {
		cfg.ActiveMaxDelay = cfg.ActiveMinDelay
	}
	orDefault(&cfg.DefaultDelay, def.DefaultDelay)
	orDefault(&cfg.NoTrackingDelay, def.NoTrackingDelay)
	orDefault(&cfg.Backoff1, def.Backoff1)
	orDefault(&cfg.Backoff2, def.Backoff2)
	orDefault(&cfg.Backoff3, def.Backoff3)
	orDefault(&cfg.Backoff4, def.Backoff4)
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCheckDelay planned after a successful reconciliation.
func (p *Planner) NextCheckDelay(category models.StatusCategory) time.Duration {
	switch category {
	case models.StatusDelivered:
		return p.cfg.DeliveredDelay
	case models.StatusInTransit, models.StatusReadyForPickup:
		min := p.cfg.ActiveMinDelay
		max := p.cfg.ActiveMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	default:
		return p.cfg.DefaultDelay
	}
}

func (p *Planner) NoTrackingDelay() time.Duration {
	return p.cfg.NoTrackingDelay
}

// BackoffDelay grows with consecutive courier failures, nextFailCount starts at 1.
func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
