package sync

import (
	"errors"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestMutexed(t *testing.T) {
	assert := assert_.New(t)
	used := NewMutexed[int64](0)
	start := NewEvent()
	var wg sync.WaitGroup

	// 50 workers settling 50 downloads of 1KiB each
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = used.Locked(func(v *int64) error {
					*v += 1024
					return nil
				})
			}
		}()
	}
	start.Set()
	wg.Wait()
	assert.Equal(int64(2500*1024), used.Get())

	err := used.Locked(func(v *int64) error {
		return errors.New("refused")
	})
	assert.EqualError(err, "refused")
}
