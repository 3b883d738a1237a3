// Package maintenance runs the offline housekeeping job on a cron schedule:
// a fresh backup followed by a prune dry-run whose reports an operator can
// review before applying anything.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/backup"
	"glyphos/pkg/consolidate"
)

// cronParser accepts standard 5-field cron expressions.
//
//nolint:gochecknoglobals // stateless parser shared by every runner
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Outcome is the result of one maintenance run.
type Outcome struct {
	StartedAt    time.Time
	BackupPath   string
	DryRunReport string
	ReviewReport string
	Candidates   int
}

// Runner performs maintenance runs. Runs never overlap.
type Runner struct {
	backups *backup.Manager
	pruner  *consolidate.Pruner
	opts    consolidate.Options
	log     *zap.Logger
	now     func() time.Time
	onRun   func(Outcome, error)

	mu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = logging.OrNop(l) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// OnRun registers a callback invoked after every scheduled run.
func OnRun(f func(Outcome, error)) Option {
	return func(r *Runner) { r.onRun = f }
}

// New returns a Runner. opts selects which prune rules the dry-run reports.
func New(backups *backup.Manager, pruner *consolidate.Pruner, prune consolidate.Options, opts ...Option) *Runner {
	r := &Runner{backups: backups, pruner: pruner, opts: prune, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce takes a backup and writes the prune dry-run reports. A failed
// backup stops the run before any planning.
func (r *Runner) RunOnce(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Outcome{StartedAt: r.now()}
	path, err := r.backups.Create(ctx)
	if err != nil {
		return out, fmt.Errorf("maintenance backup: %w", err)
	}
	out.BackupPath = path

	plan, res, err := r.pruner.DryRun(ctx, r.opts)
	if err != nil {
		return out, fmt.Errorf("maintenance dry-run: %w", err)
	}
	out.DryRunReport = res.DryRunReport
	out.ReviewReport = res.ReviewReport
	out.Candidates = plan.RemoveCount()

	r.log.Info("maintenance run complete",
		zap.String("backup", out.BackupPath),
		zap.String("dryrun_report", out.DryRunReport),
		zap.Int("candidates", out.Candidates))
	return out, nil
}

// Run executes RunOnce on sched until ctx is cancelled, then waits for an
// in-flight run to finish.
func (r *Runner) Run(ctx context.Context, sched cron.Schedule) error {
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC))
	c.Schedule(sched, cron.FuncJob(func() {
		out, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error("maintenance run failed", zap.Error(err))
		}
		if r.onRun != nil {
			r.onRun(out, err)
		}
	}))

	r.log.Info("maintenance scheduler started", zap.Time("next", sched.Next(r.now())))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("maintenance scheduler stopped")
	return nil
}
