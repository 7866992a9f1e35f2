// Package engine runs the scoring pipeline over every customer of the source.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"HealthSentinel/internal/action"
	"HealthSentinel/internal/aggregator"
	"HealthSentinel/internal/collector"
	"HealthSentinel/internal/config"
	"HealthSentinel/internal/dimension"
	"HealthSentinel/internal/history"
	"HealthSentinel/internal/lock"
	"HealthSentinel/internal/model"
	"HealthSentinel/internal/portfolio"
	"HealthSentinel/internal/report"
	"HealthSentinel/internal/risk"
	"HealthSentinel/internal/scoring"
	"HealthSentinel/internal/telemetry"
	"HealthSentinel/internal/trend"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrRunInProgress = errors.New("engine: run already in progress")

// Publisher receives the results of every finished run.
type Publisher interface {
	Publish(ctx context.Context, results []model.CustomerResult) error
}

// Deps are the outside collaborators of the engine. Only Source and Store are required.
type Deps struct {
	Source    collector.Source
	Store     history.Store
	Locker    lock.Locker
	Catalog   *action.Catalog
	Publisher Publisher
	Metrics   *telemetry.Metrics
	Reports   *report.Keeper
}

// Engine wires the scoring stages together. It is safe for concurrent use,
// but only one Run executes at a time.
type Engine struct {
	deps Deps

	agg         *aggregator.Aggregator
	calcs       *dimension.Set
	resolver    *scoring.Resolver
	classifier  *risk.Classifier
	trends      *trend.Analyzer
	alerts      *risk.Generator
	recommender *action.Recommender
	ranker      *portfolio.Ranker

	concurrency int
	timeout     time.Duration
	historySpan time.Duration
	cooldown    time.Duration

	logger  *zap.Logger
	now     func() time.Time
	running atomic.Bool
}

// New builds every stage from typed config. Invalid weights, bands or catalog fail here.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if deps.Source == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine needs a source and a store")
	}
	resolver, err := scoring.NewResolver(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	classifier, err := risk.NewClassifier(cfg.Bands)
	if err != nil {
		return nil, fmt.Errorf("bands: %w", err)
	}
	if deps.Catalog == nil {
		deps.Catalog, err = action.LoadCatalog(cfg.Actions.CatalogPath)
		if err != nil {
			return nil, err
		}
	}
	for _, at := range deps.Catalog.Uncovered() {
		logger.Warn("alert type has no action template", zap.String("type", string(at)))
	}
	concurrency := cfg.Engine.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Reports == nil {
		deps.Reports, _ = report.NewKeeper("")
	}

	return &Engine{
		deps:        deps,
		agg:         aggregator.New(cfg.Engine),
		calcs:       dimension.NewSet(cfg.Dimensions),
		resolver:    resolver,
		classifier:  classifier,
		trends:      trend.NewAnalyzer(cfg.Trend),
		alerts:      risk.NewGenerator(cfg.Alerts, classifier, cfg.Dimensions.Payment),
		recommender: action.NewRecommender(deps.Catalog, cfg.Actions),
		ranker:      portfolio.NewRanker(cfg.Queue),
		concurrency: concurrency,
		timeout:     cfg.Engine.CustomerTimeout,
		historySpan: time.Duration(cfg.Trend.LookbackDays+cfg.Trend.ToleranceDays) * 24 * time.Hour,
		cooldown:    cfg.Alerts.Cooldown,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Last returns the most recent run report, or nil before the first run.
func (e *Engine) Last() *model.RunReport { return e.deps.Reports.Last() }

// Running reports whether a run is executing.
func (e *Engine) Running() bool { return e.running.Load() }

// Run scores every customer the source lists.
func (e *Engine) Run(ctx context.Context) (*model.RunReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer e.running.Store(false)

	started := e.now()
	ids, err := e.deps.Source.ListCustomers(ctx)
	if err != nil {
		e.deps.Metrics.ObserveFailure(e.now().Sub(started))
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return e.run(ctx, ids, started)
}

// RunCustomers scores only the given customers.
func (e *Engine) RunCustomers(ctx context.Context, ids []string) (*model.RunReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer e.running.Store(false)
	return e.run(ctx, ids, e.now())
}

func (e *Engine) run(ctx context.Context, ids []string, started time.Time) (*model.RunReport, error) {
	rep := &model.RunReport{
		ID:        uuid.NewString(),
		StartedAt: started,
		Results:   make([]model.CustomerResult, len(ids)),
	}
	log := e.logger.With(zap.String("run_id", rep.ID))
	log.Info("run started", zap.Int("customers", len(ids)), zap.String("source", e.deps.Source.Name()))

	bundles, fetchErrs := e.fetch(ctx, ids)
	peers := e.populations(bundles)

	// all customers of a run share one timestamp
	now := e.now()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		i, id := i, id
		if ctx.Err() != nil {
			rep.Results[i] = e.stale(context.WithoutCancel(ctx), id, model.CustomerFailed, ctx.Err())
			continue
		}
		g.Go(func() error {
			if fetchErrs[i] != nil {
				rep.Results[i] = e.stale(ctx, id, model.CustomerDegraded, fetchErrs[i])
				log.Warn("fetch failed", zap.String("customer", id), zap.Error(fetchErrs[i]))
				return nil
			}
			b := bundles[i]
			profile, fallback := e.resolver.Resolve(b.Customer.Segment)
			if fallback {
				log.Info("segment fallback", zap.String("customer", id),
					zap.String("segment", string(b.Customer.Segment)), zap.String("profile", string(profile.Segment)))
			}
			env := dimension.Env{Segment: profile.Segment, Peers: peers[profile.Segment]}
			res, err := e.evaluate(ctx, b, profile, env, now)
			if err != nil {
				log.Error("customer failed", zap.String("customer", id), zap.Error(err))
				res = e.stale(ctx, id, model.CustomerFailed, err)
				if res.Segment == "" {
					res.Segment = profile.Segment
				}
			}
			rep.Results[i] = res
			return nil
		})
	}
	g.Wait()

	for _, r := range rep.Results {
		rep.Processed++
		switch r.Status {
		case model.CustomerDegraded:
			rep.Degraded++
		case model.CustomerFailed:
			rep.Failed++
		}
		rep.AlertsEmitted += len(r.Alerts)
		rep.CoverageGaps += len(r.CoverageGaps)
	}

	customers := make(map[string]model.Customer, len(bundles))
	for _, b := range bundles {
		if b != nil {
			customers[b.Customer.ID] = b.Customer
		}
	}
	var queued int
	rep.Queue, queued = e.ranker.Queue(rep.Results, customers, now)
	rep.Portfolio = e.ranker.Summarize(rep.Results, customers, queued)
	rep.FinishedAt = e.now()

	runErr := ctx.Err()
	e.deps.Metrics.ObserveRun(rep, runErr)
	if err := e.deps.Reports.Record(rep); err != nil {
		log.Warn("save run report", zap.Error(err))
	}
	if e.deps.Publisher != nil && runErr == nil {
		if err := e.deps.Publisher.Publish(ctx, fresh(rep.Results)); err != nil {
			log.Warn("publish results", zap.Error(err))
		}
	}

	log.Info("run finished",
		zap.Int("processed", rep.Processed),
		zap.Int("degraded", rep.Degraded),
		zap.Int("failed", rep.Failed),
		zap.Int("alerts", rep.AlertsEmitted),
		zap.Int("queued", queued),
		zap.String("portfolio", string(rep.Portfolio.Status)),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, runErr
}

// fetch loads every bundle with bounded concurrency and a per-customer timeout.
func (e *Engine) fetch(ctx context.Context, ids []string) ([]*model.MetricBundle, []error) {
	bundles := make([]*model.MetricBundle, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			b, err := e.deps.Source.FetchBundle(fctx, id)
			if err == nil && b == nil {
				err = fmt.Errorf("%s: empty bundle", id)
			}
			if err == nil && b.Customer.ID == "" {
				b.Customer.ID = id
			}
			bundles[i], errs[i] = b, err
			return nil
		})
	}
	g.Wait()
	return bundles, errs
}

// populations groups fetched MRR by effective segment. Read-only afterwards.
func (e *Engine) populations(bundles []*model.MetricBundle) map[model.Segment]dimension.Population {
	acc := make(map[model.Segment]*dimension.Population)
	for _, b := range bundles {
		if b == nil {
			continue
		}
		profile, _ := e.resolver.Resolve(b.Customer.Segment)
		p, ok := acc[profile.Segment]
		if !ok {
			p = &dimension.Population{}
			acc[profile.Segment] = p
		}
		p.Add(b.Customer.MRR)
	}
	out := make(map[model.Segment]dimension.Population, len(acc))
	for seg, p := range acc {
		out[seg] = *p
	}
	return out
}

// evaluate is the per-customer pipeline.
func (e *Engine) evaluate(ctx context.Context, b *model.MetricBundle, profile model.WeightProfile, env dimension.Env, now time.Time) (model.CustomerResult, error) {
	id := b.Customer.ID
	res := model.CustomerResult{CustomerID: id, Segment: profile.Segment, Status: model.CustomerOK}

	window := e.agg.Window(b, now)
	scores := e.calcs.ComputeAll(window, env)
	snap, err := scoring.Compose(id, scores, profile, now)
	if err != nil {
		return res, err
	}
	snap.ID = uuid.NewString()
	snap.Label = e.classifier.Classify(snap.Overall)

	unlock, err := e.deps.Locker.Lock(ctx, id)
	if err != nil {
		return res, fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	past, err := e.deps.Store.History(ctx, id, now.Add(-e.historySpan))
	if err != nil {
		return res, fmt.Errorf("load history: %w", err)
	}
	previous, err := e.deps.Store.Latest(ctx, id)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return res, fmt.Errorf("load latest: %w", err)
	}

	tr := e.trends.Analyze(past, snap)

	alerts := e.alerts.Evaluate(risk.Input{
		Customer: b.Customer,
		Snapshot: snap,
		Trend:    tr,
		Window:   window,
		Previous: previous,
	})
	for i := range alerts {
		alerts[i].CreatedAt = now
	}
	if e.cooldown > 0 && len(alerts) > 0 {
		recent, err := e.deps.Store.RecentAlerts(ctx, id, now.Add(-e.cooldown))
		if err != nil {
			return res, fmt.Errorf("load recent alerts: %w", err)
		}
		alerts, res.Suppressed = risk.Suppress(alerts, recent, now, e.cooldown)
	}
	res.CoverageGaps = e.recommender.Recommend(b.Customer, alerts)

	if err := e.deps.Store.Append(ctx, snap); err != nil {
		return res, fmt.Errorf("append snapshot: %w", err)
	}
	if err := e.deps.Store.SaveAlerts(ctx, alerts); err != nil {
		return res, fmt.Errorf("save alerts: %w", err)
	}

	res.Snapshot = snap
	res.Trend = &tr
	res.Alerts = alerts
	return res, nil
}

// stale reports the latest stored snapshot, marked stale, for a customer not scored this run.
func (e *Engine) stale(ctx context.Context, id string, status model.CustomerStatus, cause error) model.CustomerResult {
	res := model.CustomerResult{CustomerID: id, Status: status, Error: cause.Error()}
	latest, err := e.deps.Store.Latest(ctx, id)
	if err == nil {
		res.Snapshot = latest
		res.Segment = latest.Profile
		res.Stale = true
	}
	return res
}

func fresh(results []model.CustomerResult) []model.CustomerResult {
	out := make([]model.CustomerResult, 0, len(results))
	for _, r := range results {
		if r.Status == model.CustomerOK {
			out = append(out, r)
		}
	}
	return out
}
