// Package tasks runs the periodic background work: advisory database sync,
// security rescans, alert recalculation, and statistics rollup. Grounded on
// apps/rag-loader/internal/scheduler/job_processor.go's ticker/error-isolation
// shape and original_source/src/tasks/mod.rs's TaskTrait (init/run/done) and
// composite-tick ordering, per spec §4.9.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/42ByteLabs/konarr-core/internal/alerts"
	"github.com/42ByteLabs/konarr-core/internal/matcher"
	"github.com/42ByteLabs/konarr-core/internal/metrics"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/stats"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
	syncpkg "github.com/42ByteLabs/konarr-core/internal/sync"
)

// Task is the contract every orchestrated unit of work implements, per spec
// §4.9. It has no separate init or done step: ad-hoc invocation (Spawn) and
// the ticker loop both call Run directly.
type Task interface {
	// Name identifies the task for logging.
	Name() string
	// Run executes one tick of work.
	Run(ctx context.Context) error
}

// Orchestrator fires a composite tick on a fixed period: advisory sync,
// security rescan, alert recalculation, statistics rollup — in that order,
// each isolated by its own error boundary so one failing task never blocks
// the others.
type Orchestrator struct {
	period  time.Duration
	tasks   []Task
	log     observability.Logger
	metrics *metrics.Metrics

	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// WithMetrics attaches a Metrics recorder, returning o for chaining.
// Orchestrators built without calling this run with metrics disabled.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// New builds an Orchestrator with the standard four tasks, in spec §4.9
// order: AdvisoriesSyncTask, SecurityRescan, AlertCalculatorTask,
// StatisticsTask.
func New(
	syncer *syncpkg.Syncer,
	rescan *RescanTask,
	calculator *alerts.Calculator,
	rollup *stats.Rollup,
	period time.Duration,
	log observability.Logger,
) *Orchestrator {
	if log == nil {
		log = observability.NewStandardLogger("tasks")
	}
	if period <= 0 {
		period = 60 * time.Minute
	}
	return &Orchestrator{
		period: period,
		tasks: []Task{
			advisoriesSyncTask{syncer: syncer},
			rescan,
			alertCalculatorTask{calculator: calculator},
			statisticsTask{rollup: rollup},
		},
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs the composite tick loop until Stop is called. It blocks the
// calling goroutine; callers that want it in the background run it with
// `go orchestrator.Start(ctx)`.
//
// The next tick is always scheduled as now+period rather than against a
// wall-clock ticker, so a system clock rewind cannot cause a burst of
// missed-tick catch-up runs.
func (o *Orchestrator) Start(ctx context.Context) {
	defer close(o.done)
	timer := time.NewTimer(o.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-timer.C:
			o.tick(ctx)
			timer.Reset(o.period)
		}
	}
}

// Stop signals the orchestrator loop to exit and waits for it to do so.
func (o *Orchestrator) Stop() {
	o.stopped.Do(func() { close(o.stop) })
	<-o.done
}

// tick runs every task in spec §4.9 order, logging and swallowing each
// task's error so the remaining tasks still run this tick.
func (o *Orchestrator) tick(ctx context.Context) {
	for _, t := range o.tasks {
		started := time.Now()
		err := t.Run(ctx)
		if o.metrics != nil {
			o.metrics.ObserveTaskRun(t.Name(), time.Since(started), err)
		}
		if err != nil {
			o.log.Error("task failed", map[string]interface{}{
				"task": t.Name(), "error": err.Error(),
			})
		}
	}
}

// Spawn runs a single named task once, fire-and-forget: the caller gets no
// backpressure and no error, matching spec §4.9's ad-hoc invocation
// contract. Errors are logged, never returned or propagated.
func Spawn(ctx context.Context, t Task, log observability.Logger) {
	if log == nil {
		log = observability.NewStandardLogger("tasks")
	}
	go func() {
		if err := t.Run(ctx); err != nil {
			log.Error("spawned task failed", map[string]interface{}{
				"task": t.Name(), "error": err.Error(),
			})
		}
	}()
}

type advisoriesSyncTask struct {
	syncer *syncpkg.Syncer
}

func (advisoriesSyncTask) Name() string { return "AdvisoriesSyncTask" }

func (t advisoriesSyncTask) Run(ctx context.Context) error {
	_, err := t.syncer.Sync(ctx)
	return err
}

type alertCalculatorTask struct {
	calculator *alerts.Calculator
}

func (alertCalculatorTask) Name() string { return "AlertCalculatorTask" }

func (t alertCalculatorTask) Run(ctx context.Context) error {
	return t.calculator.Run(ctx)
}

type statisticsTask struct {
	rollup *stats.Rollup
}

func (statisticsTask) Name() string { return "StatisticsTask" }

func (t statisticsTask) Run(ctx context.Context) error {
	return t.rollup.Run(ctx)
}

// RescanTask checks the security.rescan toggle; if set, it resets the flag
// to off before re-running the matcher over every container project's
// latest snapshot, per spec §4.9 item 2. The flag is cleared before the
// rescan itself runs (matching original_source/src/tasks/mod.rs's ordering)
// so a rescan that fails doesn't wedge every future tick into retrying it.
type RescanTask struct {
	settings  *settings.Store
	projects  *projects.Store
	snapshots *snapshots.Store
	matcher   *matcher.Matcher
	log       observability.Logger
}

// NewRescanTask builds a RescanTask.
func NewRescanTask(st *settings.Store, p *projects.Store, sn *snapshots.Store, m *matcher.Matcher, log observability.Logger) *RescanTask {
	if log == nil {
		log = observability.NewStandardLogger("rescan")
	}
	return &RescanTask{settings: st, projects: p, snapshots: sn, matcher: m, log: log}
}

func (*RescanTask) Name() string { return "SecurityRescan" }

// Run implements Task.
func (t *RescanTask) Run(ctx context.Context) error {
	set, err := t.settings.GetBool(ctx, settings.KeySecurityRescan)
	if err != nil {
		return err
	}
	if !set {
		return nil
	}
	if err := t.settings.SetToggle(ctx, settings.KeySecurityRescan, false); err != nil {
		return err
	}

	containers, err := t.projects.List(ctx, projects.ListFilter{Type: projects.TypeContainer, Limit: 1000})
	if err != nil {
		return err
	}

	for _, p := range containers {
		snapshotID, err := t.projects.FetchLatestSnapshotID(ctx, p.ID)
		if err != nil {
			t.log.Debug("project has no snapshot to rescan, skipping", map[string]interface{}{"project": p.Name})
			continue
		}
		deps, err := t.snapshots.FetchDependencies(ctx, snapshotID)
		if err != nil {
			t.log.Error("fetch dependencies for rescan", map[string]interface{}{
				"project": p.Name, "snapshot": snapshotID, "error": err.Error(),
			})
			continue
		}
		if err := t.matcher.Run(ctx, snapshotID, deps); err != nil {
			t.log.Error("rescan matcher run failed", map[string]interface{}{
				"project": p.Name, "snapshot": snapshotID, "error": err.Error(),
			})
		}
	}
	return nil
}
