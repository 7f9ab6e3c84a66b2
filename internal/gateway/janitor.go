package gateway

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leaguemind-ai/leaguemind/internal/pool"
	"github.com/leaguemind-ai/leaguemind/pkg/observability"
)

// JanitorConfig sets the sweep cadences. Zero values take the defaults.
type JanitorConfig struct {
	SessionSweepEvery time.Duration // idle session sweep
	LimiterPruneEvery time.Duration // rate-limit bucket prune
	PoolSweepEvery    time.Duration // pool idle sweep
	PoolIdleAfter     time.Duration // pool instance max idle age
}

func (c *JanitorConfig) applyDefaults() {
	if c.SessionSweepEvery <= 0 {
		c.SessionSweepEvery = time.Minute
	}
	if c.LimiterPruneEvery <= 0 {
		c.LimiterPruneEvery = 5 * time.Minute
	}
	if c.PoolSweepEvery <= 0 {
		c.PoolSweepEvery = 10 * time.Minute
	}
	if c.PoolIdleAfter <= 0 {
		c.PoolIdleAfter = 30 * time.Minute
	}
}

// Janitor owns the periodic maintenance schedule: session reaping, limiter
// pruning, and pool idle eviction all run off one cron instance,
// independent of request traffic.
type Janitor struct {
	cron *cron.Cron
}

// NewJanitor schedules the sweeps. Call Start to begin.
func NewJanitor(cfg JanitorConfig, g *Gateway, p *pool.Pool) (*Janitor, error) {
	cfg.applyDefaults()
	c := cron.New()

	if _, err := c.AddFunc("@every "+cfg.SessionSweepEvery.String(), func() {
		g.SweepIdle()
		observability.SetLiveSessions(g.SessionCount())
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every "+cfg.LimiterPruneEvery.String(), func() {
		if n := g.PruneLimiters(); n > 0 {
			log.Printf("[Janitor] pruned %d admission bucket(s)", n)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every "+cfg.PoolSweepEvery.String(), func() {
		p.SweepIdle(cfg.PoolIdleAfter)
		observability.SetPooledAgents(p.Size())
	}); err != nil {
		return nil, err
	}

	return &Janitor{cron: c}, nil
}

// Start begins the schedule in its own goroutines.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for running sweeps to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
