package checks

import (
	"context"
	"sync"
)

// Stream delivers the latest snapshots of a device query until cancelled.
type Stream[T any] interface {
	Updates() <-chan T
	Cancel()
}

// GenuineCheckProvider talks to the device to run the genuine check.
type GenuineCheckProvider interface {
	SubscribeGenuineCheck(ctx context.Context, deviceID string) (Stream[GenuineSnapshot], error)
	// ResetGenuineCheck clears the provider's error and result.
	ResetGenuineCheck()
}

// FirmwareProvider looks up the latest firmware available for the device.
type FirmwareProvider interface {
	SubscribeLatestFirmware(ctx context.Context, deviceID string) (Stream[FirmwareSnapshot], error)
}

// Recorder persists check transitions.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// ChanStream is a Stream backed by a buffered channel. Publish keeps only
// the newest value when the reader lags behind.
type ChanStream[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
	onStop func()
}

// NewChanStream returns a stream; onStop, if set, runs once on Cancel.
func NewChanStream[T any](onStop func()) *ChanStream[T] {
	return &ChanStream[T]{ch: make(chan T, 1), onStop: onStop}
}

// Updates returns the receive side of the stream.
func (s *ChanStream[T]) Updates() <-chan T {
	return s.ch
}

// Publish replaces any unread value with v. It returns false once cancelled.
func (s *ChanStream[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
	return true
}

// Cancel stops the stream and closes the channel.
func (s *ChanStream[T]) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop := s.onStop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Done reports whether the stream was cancelled.
func (s *ChanStream[T]) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
