// Package matching runs the tender x client cross product through the scorer
// and escalates promising pairs to the AI augmenter.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/tender-matcher/internal/ai"
	"github.com/spigell/tender-matcher/internal/logger"
	"github.com/spigell/tender-matcher/internal/scoring"
	"github.com/spigell/tender-matcher/internal/tender"
	"github.com/spigell/tender-matcher/internal/utils"
)

// ErrPairPanicked is recorded in Report.Err when a pair evaluation panicked.
var ErrPairPanicked = errors.New("pair evaluation panicked")

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
)

type Scorer interface {
	Score(contract *tender.Contract, client *tender.ClientProfile) scoring.Result
}

type Augmenter interface {
	Augment(ctx context.Context, contract *tender.Contract, client *tender.ClientProfile) (*ai.Assessment, error)
}

type Config struct {
	BatchSize        int           `mapstructure:"batch-size"`
	ProgressInterval time.Duration `mapstructure:"progress-interval"`
	BatchDelay       time.Duration `mapstructure:"batch-delay"`
	// MaxConcurrency limits goroutines per batch. Zero means one per pair.
	MaxConcurrency int `mapstructure:"max-concurrency"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        3,
		ProgressInterval: 50 * time.Millisecond,
		BatchDelay:       10 * time.Millisecond,
	}
}

// Report is what a run returns, whether it completed or was stopped.
type Report struct {
	RunID   string
	Results *tender.MatchResults
	Outcome Outcome
	// Evaluated counts pairs whose evaluation finished.
	Evaluated int
	Total     int
	Progress  float64
	// Err is set only when the run was cut short by a failure.
	Err error
}

// Engine is reusable but runs are expected one at a time.
type Engine struct {
	scorer    Scorer
	augmenter Augmenter
	criteria  scoring.Criteria
	cfg       Config
	logger    *zap.Logger
	metrics   *Metrics
}

// NewEngine creates an engine. A nil augmenter disables escalation; nil metrics record nothing.
func NewEngine(scorer Scorer, augmenter Augmenter, criteria scoring.Criteria, cfg Config, log *zap.Logger, metrics *Metrics) *Engine {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		scorer:    scorer,
		augmenter: augmenter,
		criteria:  criteria,
		cfg:       cfg,
		logger:    log,
		metrics:   metrics,
	}
}

// Run evaluates every tender against every client. Stop is polled before each
// batch, tender, pair and AI escalation; a cancelled ctx counts as a stop.
// Pairs already running when a stop is observed finish and are included.
func (e *Engine) Run(ctx context.Context, contracts *tender.Contracts, clients *tender.ClientProfiles, onProgress ProgressFunc, stop Stopper) *Report {
	if stop == nil {
		stop = neverStop{}
	}

	var tenders []*tender.Contract
	if contracts != nil {
		tenders = contracts.Items
	}
	var profiles []*tender.ClientProfile
	if clients != nil {
		profiles = clients.Items
	}

	total := len(tenders) * len(profiles)
	report := &Report{
		RunID: uuid.NewString(),
		Total: total,
	}

	log := logger.WithFields(e.logger, zap.String(logger.FieldRunID, report.RunID))
	log.Info("starting matching run",
		zap.Int("tenders", len(tenders)),
		zap.Int("clients", len(profiles)),
		zap.Int("pairs", total),
		zap.Int("batch_size", e.cfg.BatchSize),
	)

	shouldStop := func() bool {
		return stop.Stopped() || ctx.Err() != nil
	}

	run := &pairRun{
		engine:     e,
		log:        log,
		tenders:    tenders,
		profiles:   profiles,
		slots:      make([]*tender.MatchResult, total),
		progress:   newProgressAggregator(total, e.cfg.ProgressInterval, onProgress),
		shouldStop: shouldStop,
	}
	run.progress.start()

	for start := 0; start < len(tenders); start += e.cfg.BatchSize {
		if shouldStop() {
			log.Info("stop observed before batch", zap.Int("batch_start", start))
			break
		}

		if start > 0 {
			if err := utils.WaitFor(ctx, e.cfg.BatchDelay); err != nil {
				break
			}
		}

		end := min(start+e.cfg.BatchSize, len(tenders))
		if err := run.batch(ctx, start, end); err != nil {
			log.Error("matching batch failed", zap.Error(err))
			report.Err = err
			break
		}
	}

	report.Evaluated, report.Progress = run.progress.finish()

	report.Results = &tender.MatchResults{}
	for _, r := range run.slots {
		if r != nil {
			report.Results.Items = append(report.Results.Items, r)
		}
	}
	report.Results.SortByScore()

	report.Outcome = OutcomeCompleted
	if report.Evaluated < total {
		report.Outcome = OutcomeStopped
	}
	e.metrics.run(report.Outcome)

	log.Info("matching run finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("matches", report.Results.Len()),
	)

	return report
}

// pairRun is the state a single run owns. Each worker writes only its own slot.
type pairRun struct {
	engine     *Engine
	log        *zap.Logger
	tenders    []*tender.Contract
	profiles   []*tender.ClientProfile
	slots      []*tender.MatchResult
	progress   *progressAggregator
	shouldStop func() bool
}

func (r *pairRun) batch(ctx context.Context, start, end int) error {
	g, gctx := errgroup.WithContext(ctx)
	if n := r.engine.cfg.MaxConcurrency; n > 0 {
		g.SetLimit(n)
	}

	stopped := func() bool {
		return r.shouldStop() || gctx.Err() != nil
	}

schedule:
	for ti := start; ti < end; ti++ {
		if stopped() {
			break
		}

		for ci := range r.profiles {
			if stopped() {
				break schedule
			}

			slot := ti*len(r.profiles) + ci
			contract, client := r.tenders[ti], r.profiles[ci]

			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("%w: tender %q, client %q: %v", ErrPairPanicked, contract.Title, client.ID, p)
					}
				}()

				if stopped() {
					return nil
				}

				r.engine.metrics.pairStarted()
				defer r.engine.metrics.pairFinished()

				r.slots[slot] = r.engine.evaluate(gctx, r.log, contract, client, stopped)
				r.progress.pairDone()
				return nil
			})
		}
	}

	return g.Wait()
}

func (e *Engine) evaluate(ctx context.Context, log *zap.Logger, contract *tender.Contract, client *tender.ClientProfile, stopped func() bool) *tender.MatchResult {
	base := e.scorer.Score(contract, client)
	if base.Score < e.criteria.MinimumScore {
		e.metrics.pairEvaluated("dropped")
		return nil
	}

	result := &tender.MatchResult{
		Tender:  contract,
		Client:  client,
		Score:   base.Score,
		Reasons: append([]string(nil), base.Reasons...),
	}

	if e.augmenter == nil || base.Score < e.criteria.AIThreshold || stopped() {
		e.metrics.pairEvaluated("included")
		return result
	}

	started := time.Now()
	assessment, err := e.augmenter.Augment(ctx, contract, client)
	if err != nil || assessment == nil {
		label := "error"
		if errors.Is(err, ai.ErrCancelled) {
			label = "cancelled"
		}
		e.metrics.aiRequest(label, started)
		e.metrics.pairEvaluated("included")

		log.Debug("keeping base score after failed analysis",
			append(logger.PairFields(contract.Title, client.ID), zap.Error(err))...,
		)
		return result
	}

	label := "success"
	if assessment.Fallback {
		label = "fallback"
	}
	e.metrics.aiRequest(label, started)
	e.metrics.pairEvaluated("augmented")

	result.Score = (base.Score + assessment.Score) / 2
	for _, reason := range assessment.Reasons {
		result.Reasons = append(result.Reasons, tender.AIReasonPrefix+reason)
	}
	result.AIAssisted = true

	return result
}
