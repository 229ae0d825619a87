// Package oracle drives the automated-metric verification path.
//
// Each sweep:
//  1. Lists automated challenges whose verification window is open
//  2. Asks the challenge metric's Source for every joined, not yet
//     completed member's score over [start, end]
//  3. Submits the score as the registry owner, completed when the score
//     reaches the goal threshold
//
// A failing source or submission is counted and logged; it never aborts
// the rest of the sweep.
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// Engine is the slice of the escrow engine the oracle drives.
type Engine interface {
	Now() int64
	Challenges(ctx context.Context) ([]domain.Challenge, error)
	Members(ctx context.Context, challengeID uint64) ([]domain.Membership, error)
	RecordVerification(ctx context.Context, caller string, challengeID uint64, participant string, v domain.Verification) (*domain.Membership, error)
}

// Query identifies one score lookup. From and To are unix seconds.
type Query struct {
	ChallengeID uint64
	Participant string
	Metric      string
	From        int64
	To          int64
}

// Source reports a participant's score for a metric.
type Source interface {
	Score(ctx context.Context, q Query) (uint64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (uint64, error)

// Score calls f.
func (f SourceFunc) Score(ctx context.Context, q Query) (uint64, error) { return f(ctx, q) }

// Config controls oracle behavior.
type Config struct {
	Operator      string        // identity submitted as caller; must be the registry owner
	Interval      time.Duration // time between sweeps (default: 1m)
	MaxConcurrent int           // concurrent source lookups (default: 4)
	Timeout       time.Duration // per-lookup timeout (default: 10s)
}

// DefaultConfig returns safe oracle defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Minute,
		MaxConcurrent: 4,
		Timeout:       10 * time.Second,
	}
}

// Oracle scores members of automated challenges and submits verifications.
type Oracle struct {
	mu      sync.RWMutex
	config  Config
	engine  Engine
	sources map[string]Source
	logger  *slog.Logger

	sweeps    int64
	submitted int64
	completed int64
	failed    int64
}

// New creates an oracle.
func New(cfg Config, engine Engine, logger *slog.Logger) *Oracle {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		config:  cfg,
		engine:  engine,
		sources: make(map[string]Source),
		logger:  logger.With("component", "oracle"),
	}
}

// RegisterSource registers the score source for a metric name.
func (o *Oracle) RegisterSource(metric string, src Source) {
	o.mu.Lock()
	o.sources[metric] = src
	o.mu.Unlock()
}

func (o *Oracle) source(metric string) (Source, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	src, ok := o.sources[metric]
	return src, ok
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (o *Oracle) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	o.logger.Info("oracle started", "interval", o.config.Interval, "operator", o.config.Operator)
	for {
		if err := o.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			o.logger.Info("oracle stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one scoring pass over every open automated challenge.
func (o *Oracle) Sweep(ctx context.Context) error {
	now := o.engine.Now()
	challenges, err := o.engine.Challenges(ctx)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(o.config.MaxConcurrent)

	for _, c := range challenges {
		if c.Goal.Kind != domain.GoalAutomatedMetric || !c.VerificationOpen(now) {
			continue
		}
		src, ok := o.source(c.Goal.Metric)
		if !ok {
			o.logger.Warn("no source for metric", "challenge_id", c.ID, "metric", c.Goal.Metric)
			continue
		}
		members, err := o.engine.Members(ctx, c.ID)
		if err != nil {
			o.logger.Error("list members", "challenge_id", c.ID, "error", err)
			continue
		}
		for _, m := range members {
			if !m.Joined || m.Completed || m.Claimed() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o.verify(ctx, &c, m.Participant, src)
				return nil
			})
		}
	}
	g.Wait()

	o.mu.Lock()
	o.sweeps++
	o.mu.Unlock()
	observability.OracleSweeps.Inc()
	return ctx.Err()
}

// verify scores one member and submits the result.
func (o *Oracle) verify(ctx context.Context, c *domain.Challenge, participant string, src Source) {
	lookupCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	score, err := src.Score(lookupCtx, Query{
		ChallengeID: c.ID,
		Participant: participant,
		Metric:      c.Goal.Metric,
		From:        c.StartTime,
		To:          c.EndTime,
	})
	if err != nil {
		o.fail(c.ID, participant, "score lookup", err)
		return
	}

	done := score >= c.Goal.Threshold
	if _, err := o.engine.RecordVerification(ctx, o.config.Operator, c.ID, participant, domain.MetricVerification(score, done)); err != nil {
		o.fail(c.ID, participant, "submit verification", err)
		return
	}

	o.mu.Lock()
	o.submitted++
	if done {
		o.completed++
	}
	o.mu.Unlock()

	result := "incomplete"
	if done {
		result = "completed"
	}
	observability.OracleSubmissions.WithLabelValues(result).Inc()
	o.logger.Debug("verification submitted", "challenge_id", c.ID, "participant", participant, "score", score, "completed", done)
}

func (o *Oracle) fail(challengeID uint64, participant, stage string, err error) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
	observability.OracleSubmissions.WithLabelValues("failed").Inc()
	o.logger.Warn(stage+" failed", "challenge_id", challengeID, "participant", participant, "error", err)
}

// Stats holds oracle counters.
type Stats struct {
	Sweeps    int64 `json:"sweeps"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Sources   int   `json:"sources"`
}

// Stats returns current oracle statistics.
func (o *Oracle) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return Stats{
		Sweeps:    o.sweeps,
		Submitted: o.submitted,
		Completed: o.completed,
		Failed:    o.failed,
		Sources:   len(o.sources),
	}
}
