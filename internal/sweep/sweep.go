// Package sweep walks the catalog course by course, scheduling every class of each course under a per-course budget
// that is itself bounded by a budget for the whole run.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/generic"
	"github.com/alanbriolat/lecture-archiver/internal/budget"
	"github.com/alanbriolat/lecture-archiver/internal/catalog"
	"github.com/alanbriolat/lecture-archiver/internal/history"
	"github.com/alanbriolat/lecture-archiver/internal/process"
	"github.com/alanbriolat/lecture-archiver/internal/pubsub"
	"github.com/alanbriolat/lecture-archiver/internal/schedule"
)

type Scheduler interface {
	Run(ctx context.Context, items []la.MediaItem, b *budget.Budget) schedule.Stats
}

type History interface {
	StartRun(*history.SweepRun) error
	FinishRun(*history.SweepRun) error
	AddCourseRun(*history.CourseRun) error
}

type Config struct {
	Layout       la.Layout
	CourseBudget generic.Option[int64]
	TotalBudget  generic.Option[int64]
	// History records runs when not nil.
	History History
	// Events receives progress events when not nil. The driver never closes it.
	Events pubsub.Publisher[Event]
}

var DefaultConfig = Config{
	Layout:       la.NewLayout(),
	CourseBudget: generic.Some[int64](15 << 30),
	TotalBudget:  generic.None[int64](),
}

type CourseReport struct {
	Course  la.CourseID
	Classes int
	Stats   schedule.Stats
	// Skipped is true when the course has no manifest.
	Skipped bool
	Elapsed time.Duration
	Err     error
}

// Failed counts items that ended without passing validation.
func (r CourseReport) Failed() int {
	return r.Stats.Outcomes[process.DownloadFailed] + r.Stats.Outcomes[process.FailedValidation]
}

type Report struct {
	RunID       uuid.UUID
	Courses     []CourseReport
	Transferred int64
	// Stopped is true when the run budget ended the sweep early.
	Stopped bool
	// Err aggregates per-course errors; it does not stop the sweep.
	Err error
}

type Driver struct {
	config    Config
	source    catalog.Source
	scheduler Scheduler
	logger    *zap.Logger
}

func New(config Config, source catalog.Source, scheduler Scheduler, logger *zap.Logger) *Driver {
	return &Driver{
		config:    config,
		source:    source,
		scheduler: scheduler,
		logger:    logger.Named("sweep"),
	}
}

// ObserveItems adapts a publisher to the scheduler's per-item callback.
func ObserveItems(events pubsub.Publisher[Event]) func(process.Outcome, int64) {
	return func(outcome process.Outcome, folderSize int64) {
		events.Send(ItemFinished{courseEvent{outcome.Item.Course}, outcome, folderSize})
	}
}

func (d *Driver) publish(event Event) {
	if d.config.Events != nil {
		d.config.Events.Send(event)
	}
}

// Run sweeps every course listed by the catalog.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	courses, err := d.source.Courses(ctx)
	if err != nil {
		return Report{}, err
	}
	return d.Sweep(ctx, courses), nil
}

// Sweep processes courses in order. Cancelling ctx or exhausting the run budget stops it before the next course.
func (d *Driver) Sweep(ctx context.Context, courses []la.CourseID) Report {
	report := Report{RunID: uuid.New()}
	logger := d.logger.With(zap.Stringer("run", report.RunID))
	runBudget := budget.New("run", d.config.TotalBudget, nil)
	run := &history.SweepRun{ID: report.RunID.String(), StartedAt: time.Now()}
	if d.config.History != nil {
		if err := d.config.History.StartRun(run); err != nil {
			logger.Warn("failed to record sweep start", zap.Error(err))
		}
	}
	logger.Info("starting sweep", zap.Int("courses", len(courses)), zap.Stringer("budget", runBudget))

	var errs *multierror.Error
	for _, course := range courses {
		if ctx.Err() != nil {
			logger.Info("sweep cancelled")
			break
		}
		if runBudget.Exhausted() {
			logger.Info("run budget exhausted, stopping sweep", zap.Stringer("budget", runBudget))
			report.Stopped = true
			break
		}
		cr := d.sweepCourse(ctx, logger, report.RunID, course, runBudget)
		if cr.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", course, cr.Err))
		}
		report.Transferred += cr.Stats.Transferred
		report.Courses = append(report.Courses, cr)
	}
	report.Err = errs.ErrorOrNil()

	if d.config.History != nil {
		finished := time.Now()
		run.FinishedAt = &finished
		run.Courses = len(report.Courses)
		run.Transferred = report.Transferred
		if report.Err != nil {
			run.Error = report.Err.Error()
		}
		if err := d.config.History.FinishRun(run); err != nil {
			logger.Warn("failed to record sweep end", zap.Error(err))
		}
	}
	return report
}

func (d *Driver) sweepCourse(ctx context.Context, logger *zap.Logger, runID uuid.UUID, course la.CourseID, runBudget *budget.Budget) (cr CourseReport) {
	logger = logger.With(zap.Stringer("course", course))
	start := time.Now()
	cr.Course = course
	defer func() {
		cr.Elapsed = time.Since(start)
		d.recordCourse(logger, runID, start, cr)
		d.publish(CourseFinished{courseEvent{course}, cr})
	}()

	classes, err := d.source.Classes(ctx, course)
	if errors.Is(err, catalog.ErrMissingManifest) {
		logger.Info("no class manifest, skipping course")
		cr.Skipped = true
		return cr
	} else if err != nil {
		logger.Error("failed to read class manifest", zap.Error(err))
		cr.Err = err
		return cr
	}
	cr.Classes = len(classes)

	items := make([]la.MediaItem, 0, len(classes))
	for _, class := range classes {
		items = append(items, d.config.Layout.Item(course, class, la.UnknownSize()))
	}
	d.publish(CourseStarted{courseEvent{course}, runID, len(items)})
	logger.Info("processing course", zap.Int("classes", len(items)))

	courseBudget := budget.New(course.String(), d.config.CourseBudget, runBudget)
	cr.Stats = d.scheduler.Run(ctx, items, courseBudget)
	logger.Info("course finished", append(cr.Stats.Summary(), zap.Duration("elapsed", time.Since(start)))...)
	return cr
}

func (d *Driver) recordCourse(logger *zap.Logger, runID uuid.UUID, start time.Time, cr CourseReport) {
	if d.config.History == nil {
		return
	}
	row := &history.CourseRun{
		RunID:           runID.String(),
		Course:          cr.Course.String(),
		StartedAt:       start,
		Duration:        cr.Elapsed,
		Classes:         cr.Classes,
		Submitted:       cr.Stats.Submitted,
		Processed:       cr.Stats.Processed,
		Validated:       cr.Stats.Outcomes[process.Validated],
		FromLog:         cr.Stats.FromLog,
		Failed:          cr.Failed(),
		Transferred:     cr.Stats.Transferred,
		FolderSize:      cr.Stats.FolderSize,
		BudgetExhausted: cr.Stats.Exhausted,
		Skipped:         cr.Skipped,
	}
	if cr.Err != nil {
		row.Error = cr.Err.Error()
	}
	if err := d.config.History.AddCourseRun(row); err != nil {
		logger.Warn("failed to record course run", zap.Error(err))
	}
}
