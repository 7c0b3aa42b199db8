package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/lecture-archiver/generic"
	sync_ "github.com/alanbriolat/lecture-archiver/internal/sync"
)

const (
	DefaultPublisherBufSize  = 1
	DefaultSubscriberBufSize = 1
)

var ErrPublisherClosed = errors.New("publisher closed")

// Publisher fans each message out to every subscriber, in the order sent. A slow subscriber slows the publisher.
type Publisher[T any] interface {
	SenderCloser[T]
	AddSubscriber(SenderCloser[T]) error
	Subscribe() (ReceiverCloser[T], error)
	SubscribeBufSize(int) (ReceiverCloser[T], error)
}

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup
	pending     sync.WaitGroup // messages not yet delivered to every subscriber
	subscribers *sync_.Mutexed[generic.Set[SenderCloser[T]]]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(generic.NewSet[SenderCloser[T]]()),
	}
	p.running.Add(1)
	go p.run()
	return p
}

func (p *publisher[T]) run() {
	defer p.running.Done()
	for msg := range p.ch.Receive() {
		for _, s := range p.snapshot(false) {
			if !s.Send(msg) {
				p.unsubscribe(s)
			}
		}
		p.pending.Done()
	}
}

// snapshot copies the subscriber set so that delivery does not block AddSubscriber.
func (p *publisher[T]) snapshot(clear bool) (subscribers []SenderCloser[T]) {
	_ = p.subscribers.Locked(func(set *generic.Set[SenderCloser[T]]) error {
		subscribers = set.ToSlice()
		if clear {
			set.Clear()
		}
		return nil
	})
	return subscribers
}

func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if !p.ch.Send(msg) {
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *publisher[T]) SubscribeBufSize(bufSize int) (ReceiverCloser[T], error) {
	s := NewChannel[T](bufSize)
	if err := p.AddSubscriber(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(set *generic.Set[SenderCloser[T]]) error {
		set.Add(s)
		return nil
	})
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(set *generic.Set[SenderCloser[T]]) error {
		set.Remove(s)
		return nil
	})
}

// Close is idempotent. Messages already sent are delivered first, then every subscriber is closed.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	for _, s := range p.snapshot(true) {
		s.Close()
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
