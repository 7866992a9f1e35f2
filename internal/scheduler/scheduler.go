package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"HealthSentinel/internal/engine"
	"HealthSentinel/internal/history"
	"HealthSentinel/internal/model"
	"HealthSentinel/internal/notifier"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the part of the engine the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*model.RunReport, error)
	RunCustomers(ctx context.Context, ids []string) (*model.RunReport, error)
	Last() *model.RunReport
	Running() bool
}

// Scheduler manages the cron tasks and answers operator commands.
type Scheduler struct {
	Cron          *cron.Cron
	Engine        Runner
	Store         history.Store
	Notifier      notifier.Sender
	RetentionDays int
	Ctx           context.Context

	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a new Scheduler. n may be nil when Telegram is not configured.
func NewScheduler(ctx context.Context, eng Runner, store history.Store, n notifier.Sender, retentionDays int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:          cron.New(cron.WithSeconds()),
		Engine:        eng,
		Store:         store,
		Notifier:      n,
		RetentionDays: retentionDays,
		Ctx:           ctx,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterAll registers the scoring run and the history prune.
func (s *Scheduler) RegisterAll(runCron, pruneCron string) error {
	if _, err := s.Cron.AddFunc(runCron, s.runTask); err != nil {
		return fmt.Errorf("register run task: %w", err)
	}
	if pruneCron != "" {
		if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
			return fmt.Errorf("register prune task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a scoring run immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.runTask()
}

func (s *Scheduler) runTask() {
	s.logger.Info("running scheduled scoring run")
	rep, err := s.Engine.Run(s.Ctx)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		s.logger.Warn("skipping scheduled run, previous run still active")
		return
	case err != nil:
		s.logger.Error("scoring run failed", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Scoring run failed: %v", err))
		return
	}
	s.logger.Info("scoring run finished",
		zap.String("run_id", rep.ID),
		zap.Int("processed", rep.Processed),
		zap.Int("degraded", rep.Degraded),
		zap.Int("failed", rep.Failed),
		zap.Int("alerts", rep.AlertsEmitted))
	if rep.Failed > 0 || rep.Degraded > 0 {
		s.trySend(notifier.FormatStatus(rep, false))
	}
}

func (s *Scheduler) pruneTask() {
	cutoff := history.RetentionCutoff(s.now(), s.RetentionDays)
	n, err := s.Store.Prune(s.Ctx, cutoff)
	if err != nil {
		s.logger.Error("prune history", zap.Error(err))
		return
	}
	s.logger.Info("pruned history", zap.Int("rows", n), zap.Time("before", cutoff))
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/run":
		if s.Engine.Running() {
			return "⏳ A run is already in progress."
		}
		ids := fields[1:]
		go s.manualRun(ids)
		if len(ids) > 0 {
			return fmt.Sprintf("▶️ Scoring %d customer(s)…", len(ids))
		}
		return "▶️ Scoring run started…"
	case "/status":
		return notifier.FormatStatus(s.Engine.Last(), s.Engine.Running())
	case "/queue":
		return notifier.FormatQueue(s.Engine.Last(), queuePreview)
	case "/customer":
		if len(fields) != 2 {
			return "Usage: /customer &lt;id&gt;"
		}
		return s.customer(fields[1])
	case "/prune":
		s.pruneTask()
		return "🧹 History pruned."
	default:
		return helpText
	}
}

const helpText = "Available commands:\n• /run [id…]\n• /status\n• /queue\n• /customer &lt;id&gt;\n• /prune"

// queuePreview is how many queue items /queue shows.
const queuePreview = 10

func (s *Scheduler) manualRun(ids []string) {
	var (
		rep *model.RunReport
		err error
	)
	if len(ids) > 0 {
		rep, err = s.Engine.RunCustomers(s.Ctx, ids)
	} else {
		rep, err = s.Engine.Run(s.Ctx)
	}
	if err != nil {
		s.logger.Error("manual run failed", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Run failed: %v", err))
		return
	}
	s.trySend(notifier.FormatStatus(rep, false))
}

func (s *Scheduler) customer(id string) string {
	snap, err := s.Store.Latest(s.Ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Sprintf("No health snapshot for <b>%s</b> yet.", html.EscapeString(id))
	}
	if err != nil {
		s.logger.Error("load latest snapshot", zap.String("customer", id), zap.Error(err))
		return "❌ Could not load customer health."
	}
	alerts, err := s.Store.RecentAlerts(s.Ctx, id, s.now().AddDate(0, 0, -7))
	if err != nil {
		s.logger.Warn("load recent alerts", zap.String("customer", id), zap.Error(err))
	}
	return notifier.FormatCustomer(snap, alerts)
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}
