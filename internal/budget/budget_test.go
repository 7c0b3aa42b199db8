package budget

import (
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/lecture-archiver/generic"
)

func TestBudget_TryReserve(t *testing.T) {
	assert := assert_.New(t)
	b := Limited("course", 100)

	assert.True(b.TryReserve(60))
	assert.True(b.TryReserve(60))
	// Overshoot is allowed, but nothing more once the ceiling is reached
	assert.Equal(int64(120), b.Used())
	assert.True(b.Exhausted())
	assert.False(b.TryReserve(0))
	assert.False(b.TryReserve(1))
	assert.Equal(int64(120), b.Used())
	assert.Equal(generic.Some[int64](0), b.Remaining())

	// Settling a download that came in smaller frees up room
	b.Settle(60, 10)
	assert.Equal(int64(70), b.Used())
	assert.False(b.Exhausted())
	assert.Equal(generic.Some[int64](30), b.Remaining())
	assert.True(b.TryReserve(5))
}

func TestBudget_Zero(t *testing.T) {
	assert := assert_.New(t)
	b := Limited("zero", 0)
	assert.True(b.Exhausted())
	assert.False(b.TryReserve(0))
	assert.False(b.TryReserve(10))
}

func TestBudget_Unlimited(t *testing.T) {
	assert := assert_.New(t)
	b := Unlimited("run")
	for i := 0; i < 10; i++ {
		assert.True(b.TryReserve(1 << 40))
	}
	assert.False(b.Exhausted())
	assert.True(b.Remaining().IsNone())
	assert.Equal("run: 10 TiB of unlimited", b.String())
}

func TestBudget_Parent(t *testing.T) {
	assert := assert_.New(t)
	run := Limited("run", 100)
	first := New("first", generic.Some[int64](80), run)
	second := New("second", generic.Some[int64](80), run)

	assert.True(first.TryReserve(70))
	assert.True(first.TryReserve(20))
	assert.False(first.TryReserve(1))
	assert.Equal(int64(90), run.Used())

	assert.True(second.TryReserve(30))
	assert.Equal(int64(120), run.Used())
	// The run ceiling refuses even though the course has room
	assert.False(second.TryReserve(1))
	assert.True(second.Exhausted())
	assert.Equal(int64(30), second.Used())

	second.Settle(30, 0)
	assert.Equal(int64(0), second.Used())
	assert.Equal(int64(90), run.Used())
	assert.Same(run, second.Parent())
}

func TestBudget_Observe(t *testing.T) {
	assert := assert_.New(t)
	run := Unlimited("run")
	course := New("course", generic.Some[int64](100), run)

	// Files already on disk put the course over its ceiling before anything is downloaded
	course.Observe(200)
	assert.Equal(int64(200), course.Used())
	assert.True(course.Exhausted())
	assert.False(course.TryReserve(0))
	assert.Equal(int64(0), run.Used())

	// A smaller measurement, e.g. after a corrupt file was deleted, frees room again
	course.Observe(40)
	assert.False(course.Exhausted())
	assert.True(course.TryReserve(50))
	assert.Equal(int64(90), course.Used())
	assert.Equal(int64(50), run.Used())
}

func TestBudget_Concurrent(t *testing.T) {
	assert := assert_.New(t)
	run := Limited("run", 1000)
	course := New("course", generic.None[int64](), run)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if course.TryReserve(10) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	// Every grant is checked and applied under one lock, so exactly 100 reservations of 10 fit
	assert.Equal(100, granted)
	assert.Equal(int64(1000), run.Used())
	assert.Equal(int64(1000), course.Used())
	assert.False(course.TryReserve(10))
}
