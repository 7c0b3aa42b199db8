// Package schedule runs the items of one course through a bounded pool of processors, submitting new items only
// while the download budget allows it.
package schedule

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/generic"
	"github.com/alanbriolat/lecture-archiver/internal/budget"
	"github.com/alanbriolat/lecture-archiver/internal/process"
	sync_ "github.com/alanbriolat/lecture-archiver/internal/sync"
)

const DefaultWorkers = 2

type Processor interface {
	Process(ctx context.Context, item la.MediaItem) process.Outcome
}

type SizeProber interface {
	ProbeSize(ctx context.Context, url string) la.ExpectedSize
}

type Recorder interface {
	Contains(path string) bool
}

type Stats struct {
	Submitted int
	Processed int
	// FromLog counts processed items that were already in the validation log.
	FromLog     int
	Outcomes    map[process.Terminal]int
	Transferred int64
	// FolderSize is the total size of the items' directories on disk after the run.
	FolderSize int64
	// Exhausted is true if submission stopped because the budget was reached.
	Exhausted bool
}

func newStats() Stats {
	return Stats{Outcomes: make(map[process.Terminal]int)}
}

type Option func(*Scheduler)

// WithWorkers sets the pool size; values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		s.workers = max(n, 1)
	}
}

// WithSizeProber makes the scheduler ask for the remote size of every item that is not already in the log.
func WithSizeProber(prober SizeProber) Option {
	return func(s *Scheduler) {
		s.prober = prober
	}
}

// WithObserver registers a callback invoked from the worker goroutine after every processed item, along with the
// folder size recomputed at that point.
func WithObserver(f func(outcome process.Outcome, folderSize int64)) Option {
	return func(s *Scheduler) {
		s.observer = f
	}
}

type Scheduler struct {
	fs        afero.Fs
	processor Processor
	recorder  Recorder
	prober    SizeProber
	workers   int
	observer  func(process.Outcome, int64)
	logger    *zap.Logger
}

func New(fs afero.Fs, processor Processor, recorder Recorder, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		fs:        fs,
		processor: processor,
		recorder:  recorder,
		workers:   DefaultWorkers,
		logger:    logger.Named("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes items in order until they run out, the budget refuses a reservation, or ctx is cancelled. Items
// already submitted always run to completion.
//
// The budget's running total is recomputed after every completion as the size of the items' folders on disk plus the
// reservations still in flight, so files already present count against it. Ancestor budgets only see the bytes
// actually transferred. A free worker is awaited before the budget is checked, so with one worker each decision sees
// the previous item's result. Items whose size is not known reserve nothing, so up to one in-flight item per worker
// may overshoot the ceiling.
func (s *Scheduler) Run(ctx context.Context, items []la.MediaItem, b *budget.Budget) Stats {
	stats := sync_.NewMutexed(newStats())
	dirs := generic.NewSet[string]()
	for _, item := range items {
		dirs.Add(filepath.Dir(item.Path))
	}
	workCtx := context.WithoutCancel(ctx)
	// Sum of reservations not yet settled; its lock is held around every change to b
	inFlight := sync_.NewMutexed[int64](0)
	slots := make(chan struct{}, s.workers)

	var g errgroup.Group
	for _, item := range items {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			s.logger.Info("cancelled, not submitting more items")
			break
		}
		if b.Exhausted() {
			s.setExhausted(stats, b, item)
			break
		}

		var reserve int64
		if s.recorder == nil || !s.recorder.Contains(item.Path) {
			if s.prober != nil {
				item.Expected = s.prober.ProbeSize(ctx, item.URL)
			}
			reserve = item.Expected.Remaining(s.fileSize(item.Path))
		}
		granted := false
		_ = inFlight.Locked(func(inFlight *int64) error {
			if granted = b.TryReserve(reserve); granted {
				*inFlight += reserve
			}
			return nil
		})
		if !granted {
			s.setExhausted(stats, b, item)
			break
		}
		s.logger.Debug("submitting item",
			zap.String("item", item.Key()),
			zap.Stringer("expected", item.Expected),
			zap.Int64("reserved", reserve),
		)
		_ = stats.Locked(func(stats *Stats) error {
			stats.Submitted++
			return nil
		})

		item := item
		g.Go(func() error {
			defer func() { <-slots }()
			outcome := s.processor.Process(workCtx, item)
			var folderSize int64
			_ = inFlight.Locked(func(inFlight *int64) error {
				*inFlight -= reserve
				b.Settle(reserve, outcome.Transferred)
				folderSize = s.folderSize(dirs)
				b.Observe(folderSize + *inFlight)
				return nil
			})
			_ = stats.Locked(func(stats *Stats) error {
				stats.Processed++
				stats.Outcomes[outcome.Terminal]++
				stats.Transferred += outcome.Transferred
				if outcome.FromLog {
					stats.FromLog++
				}
				return nil
			})
			if s.observer != nil {
				s.observer(outcome, folderSize)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := stats.Get()
	result.FolderSize = s.folderSize(dirs)
	return result
}

func (s *Scheduler) setExhausted(stats *sync_.Mutexed[Stats], b *budget.Budget, next la.MediaItem) {
	s.logger.Info("download budget exhausted, not submitting more items",
		zap.Stringer("budget", b),
		zap.String("next", next.Key()),
	)
	_ = stats.Locked(func(stats *Stats) error {
		stats.Exhausted = true
		return nil
	})
}

func (s *Scheduler) fileSize(path string) int64 {
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *Scheduler) folderSize(dirs generic.Set[string]) int64 {
	var total int64
	for _, dir := range dirs.ToSlice() {
		_ = afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
	}
	return total
}

// Summary renders stats for logging.
func (st Stats) Summary() []zap.Field {
	return []zap.Field{
		zap.Int("submitted", st.Submitted),
		zap.Int("processed", st.Processed),
		zap.Int("validated", st.Outcomes[process.Validated]),
		zap.Int("from_log", st.FromLog),
		zap.String("transferred", humanize.IBytes(uint64(st.Transferred))),
		zap.String("folder_size", humanize.IBytes(uint64(st.FolderSize))),
		zap.Bool("budget_exhausted", st.Exhausted),
	}
}
