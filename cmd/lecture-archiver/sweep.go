package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/internal/catalog"
	"github.com/alanbriolat/lecture-archiver/internal/process"
	"github.com/alanbriolat/lecture-archiver/internal/pubsub"
	"github.com/alanbriolat/lecture-archiver/internal/schedule"
	"github.com/alanbriolat/lecture-archiver/internal/sweep"
)

// sweepAction processes the given courses, or the whole catalog when courses is empty.
func sweepAction(ctx context.Context, c *cli.Context, courses []la.CourseID) (err error) {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	comps, err := rt.buildComponents(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := comps.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	rt.logger.Info("Loaded validation log", zap.Int("validated", comps.recorder.Count()))

	events := pubsub.NewPublisher[sweep.Event]()
	var wg sync.WaitGroup
	if err := showProgress(&wg, events); err != nil {
		return err
	}
	failures, err := collectFailures(&wg, events)
	if err != nil {
		return err
	}

	scheduler := schedule.New(rt.fs, comps.processor, comps.recorder, rt.logger,
		schedule.WithWorkers(rt.config.Workers),
		schedule.WithSizeProber(comps.fetcher),
		schedule.WithObserver(sweep.ObserveItems(events)),
	)
	sweepConfig := sweep.Config{
		Layout:       rt.config.Layout(),
		CourseBudget: rt.config.CourseBudget.Option,
		TotalBudget:  rt.config.TotalBudget.Option,
		Events:       events,
	}
	if comps.history != nil {
		sweepConfig.History = comps.history
	}
	source := catalog.NewFileSource(rt.fs, rt.config.Layout(), rt.config.CoursesFile)
	driver := sweep.New(sweepConfig, source, scheduler, rt.logger)

	var report sweep.Report
	if len(courses) == 0 {
		if report, err = driver.Run(ctx); err != nil {
			events.Close()
			wg.Wait()
			return err
		}
	} else {
		report = driver.Sweep(ctx, courses)
	}
	events.Close()
	wg.Wait()

	for _, f := range *failures {
		rt.logger.Warn("Item not validated",
			zap.String("path", f.Item.Path),
			zap.String("terminal", string(f.Terminal)),
			zap.Error(f.Err),
		)
	}
	logReport(rt.logger, report)
	stats := comps.queue.Stats()
	rt.logger.Info("Transcription queue drained", zap.Int("completed", stats.Completed), zap.Int("failed", stats.Failed))
	if report.Err != nil {
		// Per-course failures are reported but do not fail the run
		rt.logger.Warn("Some courses failed", zap.Error(report.Err))
	}
	return nil
}

// showProgress draws one bar per course from the sweep events.
func showProgress(wg *sync.WaitGroup, events pubsub.Publisher[sweep.Event]) error {
	sub, err := events.SubscribeBufSize(16)
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		var bar *progressbar.ProgressBar
		for event := range sub.Receive() {
			switch event := event.(type) {
			case sweep.CourseStarted:
				bar = progressbar.NewOptions(event.Items,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription(event.Course().String()),
					progressbar.OptionShowCount(),
				)
			case sweep.ItemFinished:
				if bar != nil {
					_ = bar.Add(1)
					bar.Describe(fmt.Sprintf("%s (%s)", event.Course(), humanize.IBytes(uint64(event.FolderSize))))
				}
			case sweep.CourseFinished:
				if bar != nil {
					_ = bar.Finish()
					_, _ = fmt.Fprintln(os.Stderr)
					bar = nil
				}
			}
		}
	}()
	return nil
}

// collectFailures gathers outcomes that did not end in a validated file. The slice is complete once wg is done.
func collectFailures(wg *sync.WaitGroup, events pubsub.Publisher[sweep.Event]) (*[]process.Outcome, error) {
	ch := pubsub.NewChannel[sweep.Event](16)
	filtered := pubsub.NewFilteredSender[sweep.Event](ch, func(event sweep.Event) bool {
		finished, ok := event.(sweep.ItemFinished)
		return ok && finished.Outcome.Terminal != process.Validated
	})
	if err := events.AddSubscriber(filtered); err != nil {
		return nil, err
	}
	failures := &[]process.Outcome{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range ch.Receive() {
			*failures = append(*failures, event.(sweep.ItemFinished).Outcome)
		}
	}()
	return failures, nil
}

func logReport(logger *zap.Logger, report sweep.Report) {
	for _, cr := range report.Courses {
		if cr.Skipped {
			logger.Info("Course skipped, no manifest", zap.Stringer("course", cr.Course))
			continue
		}
		fields := append([]zap.Field{
			zap.Stringer("course", cr.Course),
			zap.Int("classes", cr.Classes),
			zap.Int("failed", cr.Failed()),
			zap.Duration("elapsed", cr.Elapsed),
		}, cr.Stats.Summary()...)
		logger.Info("Course finished", fields...)
	}
	logger.Info("Sweep finished",
		zap.Stringer("run", report.RunID),
		zap.Int("courses", len(report.Courses)),
		zap.String("transferred", humanize.IBytes(uint64(report.Transferred))),
		zap.Bool("stopped", report.Stopped),
	)
}
