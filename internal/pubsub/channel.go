// Package pubsub carries progress events from concurrent workers to any number of consumers.
package pubsub

import (
	"sync"
)

type Sender[T any] interface {
	// Send returns false if the message could not be delivered because the receiving side is closed.
	Send(T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel is a chan that can be closed from either side without a send ever panicking.
type channel[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	done    chan struct{}
	closed  bool
	senders sync.WaitGroup
}

// NewChannel creates a channel buffering up to bufSize messages; Send blocks beyond that.
func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:   make(chan T, bufSize),
		done: make(chan struct{}),
	}
}

func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

func (c *channel[T]) Send(msg T) bool {
	// Register under the read lock, so Close can wait for every sender that got past the closed check
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.senders.Add(1)
	c.mu.RUnlock()
	defer c.senders.Done()

	select {
	case c.ch <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Close is idempotent. Blocked senders are released with false, then receivers see the channel end.
func (c *channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	close(c.done)
	c.senders.Wait()
	close(c.ch)
	c.closed = true
}

// Closed is closed as soon as Close starts.
func (c *channel[T]) Closed() <-chan struct{} {
	return c.done
}
