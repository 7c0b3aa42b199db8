package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	assert_ "github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/generic"
	"github.com/alanbriolat/lecture-archiver/internal/budget"
	"github.com/alanbriolat/lecture-archiver/internal/process"
)

// fakeProcessor "downloads" each item by growing its file to the expected size.
type fakeProcessor struct {
	fs      afero.Fs
	logged  generic.Set[string]
	delay   time.Duration
	mu      sync.Mutex
	seen    []la.MediaItem
	current atomic.Int32
	peak    atomic.Int32
}

func (p *fakeProcessor) Contains(path string) bool {
	return p.logged.Contains(path)
}

func (p *fakeProcessor) Process(_ context.Context, item la.MediaItem) process.Outcome {
	n := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer p.current.Add(-1)
	time.Sleep(p.delay)

	p.mu.Lock()
	p.seen = append(p.seen, item)
	p.mu.Unlock()

	if p.logged.Contains(item.Path) {
		return process.Outcome{Item: item, State: process.Done, Terminal: process.Validated, FromLog: true}
	}
	var existing int64
	if info, err := p.fs.Stat(item.Path); err == nil {
		existing = info.Size()
	}
	transferred := item.Expected.Bytes - existing
	_ = afero.WriteFile(p.fs, item.Path, make([]byte, item.Expected.Bytes), 0644)
	return process.Outcome{Item: item, State: process.Done, Terminal: process.Validated, Transferred: transferred}
}

func newFake(logged ...string) *fakeProcessor {
	return &fakeProcessor{fs: afero.NewMemMapFs(), logged: generic.NewSet(logged...)}
}

func makeItems(n int, size int64) []la.MediaItem {
	layout := la.Layout{BaseURL: "http://example.com/{course}/{course}_{nn}.mp4", Root: "opens"}
	items := make([]la.MediaItem, n)
	for i := range items {
		items[i] = layout.Item("c", la.ClassNumber(i+1), la.KnownSize(size))
	}
	return items
}

func TestRun_BudgetStopsSubmission(t *testing.T) {
	assert := assert_.New(t)
	fake := newFake()
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1))
	b := budget.Limited("course", 250)

	stats := s.Run(context.Background(), makeItems(5, 100), b)
	assert.Equal(3, stats.Submitted)
	assert.Equal(3, stats.Processed)
	assert.True(stats.Exhausted)
	assert.Equal(int64(300), stats.Transferred)
	assert.Equal(int64(300), stats.FolderSize)
	assert.Equal(int64(300), b.Used())
	assert.Equal(3, stats.Outcomes[process.Validated])
}

func TestRun_ZeroBudget(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(3, 100)
	fake := newFake(items[0].Path)
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t))

	stats := s.Run(context.Background(), items, budget.Limited("course", 0))
	assert.Equal(0, stats.Submitted)
	assert.True(stats.Exhausted)
	assert.Empty(fake.seen)
}

func TestRun_LoggedItemsReserveNothing(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(5, 100)
	fake := newFake(items[0].Path, items[2].Path)
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1))

	stats := s.Run(context.Background(), items, budget.Limited("course", 150))
	// 0, 100, 0, 100 fit; the fifth item is refused at 200
	assert.Equal(4, stats.Submitted)
	assert.Equal(2, stats.FromLog)
	assert.Equal(int64(200), stats.Transferred)
	assert.True(stats.Exhausted)
}

func TestRun_PartialFileReservesRemainder(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(2, 100)
	fake := newFake()
	assert.NoError(afero.WriteFile(fake.fs, items[0].Path, make([]byte, 40), 0644))
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1))
	run := budget.Unlimited("run")
	b := budget.New("course", generic.Some[int64](60), run)

	stats := s.Run(context.Background(), items, b)
	assert.Equal(1, stats.Submitted)
	assert.Equal(int64(60), stats.Transferred)
	assert.Equal(int64(100), stats.FolderSize)
	// The course total follows the folder, the run total only the new bytes
	assert.Equal(int64(100), b.Used())
	assert.Equal(int64(60), run.Used())
}

func TestRun_FolderAlreadyOverBudget(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(4, 50)
	fake := newFake(items[0].Path)
	assert.NoError(afero.WriteFile(fake.fs, items[0].Path, make([]byte, 200), 0644))
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1))
	run := budget.Unlimited("run")
	b := budget.New("course", generic.Some[int64](100), run)

	stats := s.Run(context.Background(), items, b)
	assert.Equal(1, stats.Submitted)
	assert.Equal(1, stats.FromLog)
	assert.Equal(int64(0), stats.Transferred)
	assert.Equal(int64(200), stats.FolderSize)
	assert.True(stats.Exhausted)
	assert.Equal(int64(200), b.Used())
	assert.Equal(int64(0), run.Used())
	assert.Len(fake.seen, 1)
}

func TestRun_FolderSizeCountsLeftoverFiles(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(5, 100)
	fake := newFake()
	// Not an item of this course, but it lives in the course folder
	assert.NoError(afero.WriteFile(fake.fs, "opens/c/classes.txt", make([]byte, 150), 0644))
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1))
	b := budget.Limited("course", 300)

	stats := s.Run(context.Background(), items, b)
	// 100 reserved, then 250 on disk; 350 after the second item stops the third
	assert.Equal(2, stats.Submitted)
	assert.Equal(int64(200), stats.Transferred)
	assert.Equal(int64(350), b.Used())
	assert.True(stats.Exhausted)
}

func TestRun_PoolBound(t *testing.T) {
	assert := assert_.New(t)
	fake := newFake()
	fake.delay = 5 * time.Millisecond

	var observed atomic.Int32
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t),
		WithWorkers(3),
		WithObserver(func(process.Outcome, int64) { observed.Add(1) }),
	)
	stats := s.Run(context.Background(), makeItems(10, 10), budget.Unlimited("course"))
	assert.Equal(10, stats.Processed)
	assert.False(stats.Exhausted)
	assert.LessOrEqual(fake.peak.Load(), int32(3))
	assert.Equal(int32(10), observed.Load())
}

type fakeSizeProber struct {
	mu   sync.Mutex
	urls []string
}

func (p *fakeSizeProber) ProbeSize(_ context.Context, url string) la.ExpectedSize {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, url)
	return la.KnownSize(50)
}

func TestRun_ProbesSizes(t *testing.T) {
	assert := assert_.New(t)
	items := makeItems(3, 0)
	for i := range items {
		items[i].Expected = la.UnknownSize()
	}
	fake := newFake(items[1].Path)
	prober := &fakeSizeProber{}
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t), WithWorkers(1), WithSizeProber(prober))

	stats := s.Run(context.Background(), items, budget.Unlimited("course"))
	assert.Equal(3, stats.Processed)
	assert.Equal([]string{items[0].URL, items[2].URL}, prober.urls)
	assert.Equal(la.KnownSize(50), fake.seen[0].Expected)
	assert.Equal(la.UnknownSize(), fake.seen[1].Expected)
}

func TestRun_Cancelled(t *testing.T) {
	assert := assert_.New(t)
	fake := newFake()
	s := New(fake.fs, fake, fake, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := s.Run(ctx, makeItems(3, 10), budget.Unlimited("course"))
	assert.Equal(0, stats.Submitted)
	assert.False(stats.Exhausted)
}

func TestWithWorkers(t *testing.T) {
	assert := assert_.New(t)
	for n, expected := range map[int]int{-1: 1, 0: 1, 1: 1, 5: 5} {
		s := New(afero.NewMemMapFs(), nil, nil, zaptest.NewLogger(t), WithWorkers(n))
		assert.Equal(expected, s.workers, fmt.Sprintf("WithWorkers(%d)", n))
	}
}
