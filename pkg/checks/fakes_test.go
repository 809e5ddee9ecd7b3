package checks

import (
	"context"
	"sync"
)

type recordingHost struct {
	mu     sync.Mutex
	opened []Drawer
	closes int
}

func (h *recordingHost) Open(d Drawer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, d)
}

func (h *recordingHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
}

func (h *recordingHost) Opens() []Drawer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Drawer, len(h.opened))
	copy(out, h.opened)
	return out
}

func (h *recordingHost) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

func (h *recordingHost) Last() Drawer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.opened) == 0 {
		return Drawer{}
	}
	return h.opened[len(h.opened)-1]
}

type fakeGenuineProvider struct {
	mu     sync.Mutex
	resets int
	subs   chan *ChanStream[GenuineSnapshot]
}

func newFakeGenuineProvider() *fakeGenuineProvider {
	return &fakeGenuineProvider{subs: make(chan *ChanStream[GenuineSnapshot], 8)}
}

func (p *fakeGenuineProvider) SubscribeGenuineCheck(ctx context.Context, deviceID string) (Stream[GenuineSnapshot], error) {
	s := NewChanStream[GenuineSnapshot](nil)
	p.subs <- s
	return s, nil
}

func (p *fakeGenuineProvider) ResetGenuineCheck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func (p *fakeGenuineProvider) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

type fakeFirmwareProvider struct {
	subs chan *ChanStream[FirmwareSnapshot]
}

func newFakeFirmwareProvider() *fakeFirmwareProvider {
	return &fakeFirmwareProvider{subs: make(chan *ChanStream[FirmwareSnapshot], 8)}
}

func (p *fakeFirmwareProvider) SubscribeLatestFirmware(ctx context.Context, deviceID string) (Stream[FirmwareSnapshot], error) {
	s := NewChanStream[FirmwareSnapshot](nil)
	p.subs <- s
	return s, nil
}

type fakeUpdateHost struct {
	requests []UpdateRequest
	done     func(UpdateOutcome)
	err      error
}

func (h *fakeUpdateHost) Launch(ctx context.Context, req UpdateRequest, done func(UpdateOutcome)) error {
	if h.err != nil {
		return h.err
	}
	h.requests = append(h.requests, req)
	h.done = done
	return nil
}

type memoryRecorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *memoryRecorder) RecordTransition(ctx context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return nil
}
