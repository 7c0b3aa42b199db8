package sync

import (
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestEvent(t *testing.T) {
	assert := assert_.New(t)
	var e Event
	assert.False(e.IsSet())
	select {
	case <-e.Wait():
		assert.Fail("Wait() should block before Set()")
	default:
	}

	assert.True(e.Set())
	assert.False(e.Set(), "second Set() is a no-op")
	assert.True(e.IsSet())
	select {
	case <-e.Wait():
	default:
		assert.Fail("Wait() should not block after Set()")
	}
}

func TestEventReleasesWaiters(t *testing.T) {
	assert := assert_.New(t)
	e := NewEvent()
	var released sync.WaitGroup
	for i := 0; i < 10; i++ {
		released.Add(1)
		go func() {
			defer released.Done()
			<-e.Wait()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	e.Set()

	done := make(chan struct{})
	go func() {
		released.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail("waiters were not released")
	}
}
