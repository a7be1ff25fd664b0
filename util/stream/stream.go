// Package stream connects a producer goroutine to a consumer through a
// buffered channel. The producer stops as soon as the context is done or
// the consumer stops the stream.
package stream

import (
	"context"
	"sync"
)

func New[T any](ctx context.Context, size int) Stream[T] {
	return &stream[T]{
		ctx:  ctx,
		ch:   make(chan T, size),
		stop: make(chan struct{}),
	}
}

type Reader[T any] interface {
	// Pop blocks until a value is available. It returns false once the
	// producer is done and the buffer is drained, or the stream was
	// stopped.
	Pop() (T, bool)
	Slice() ([]T, error)

	// Err is the error the producer finished with, or why the stream was
	// cut short.
	Err() error

	// Stop tells the producer no more values are wanted.
	Stop()
}

type Writer[T any] interface {
	// Push returns false when the consumer is gone; the producer should
	// return then.
	Push(T) bool
	CloseWithError(err error)
	Close()
}

type Stream[T any] interface {
	Reader[T]
	Writer[T]
}

type stream[T any] struct {
	ctx  context.Context
	ch   chan T
	stop chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	err      error
	closed   bool
}

func (s *stream[T]) Pop() (T, bool) {
	select {
	case val, ok := <-s.ch:
		return val, ok
	default:
	}

	var zero T
	select {
	case val, ok := <-s.ch:
		return val, ok
	case <-s.ctx.Done():
		return zero, false
	case <-s.stop:
		return zero, false
	}
}

func (s *stream[T]) Slice() ([]T, error) {
	sl := []T{}
	for {
		itm, ok := s.Pop()
		if !ok {
			return sl, s.Err()
		}
		sl = append(sl, itm)
	}
}

func (s *stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	select {
	case <-s.stop:
		return context.Canceled
	default:
	}
	return s.ctx.Err()
}

func (s *stream[T]) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *stream[T]) Push(val T) bool {
	select {
	case s.ch <- val:
		return true
	case <-s.ctx.Done():
		return false
	case <-s.stop:
		return false
	}
}

func (s *stream[T]) CloseWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

func (s *stream[T]) Close() {
	s.CloseWithError(nil)
}
