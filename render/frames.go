// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"context"
	"sync"
	"time"
)

// FrameFunc is invoked at a frame boundary with the frame timestamp.
type FrameFunc func(now time.Time)

// FrameRequester schedules a callback for the next frame boundary.
// Each request results in exactly one invocation.
type FrameRequester interface {
	RequestFrame(fn FrameFunc)
}

// ManualFrames is a FrameRequester driven by explicit Step calls.
// Tests use it to run frames synchronously with chosen timestamps.
type ManualFrames struct {
	mu    sync.Mutex
	queue []FrameFunc
}

// RequestFrame queues fn for the next Step.
func (m *ManualFrames) RequestFrame(fn FrameFunc) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Step runs every callback queued before the call and returns how many ran.
// Callbacks requested during Step wait for the next Step.
func (m *ManualFrames) Step(now time.Time) int {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, fn := range queue {
		fn(now)
	}
	return len(queue)
}

// Pending returns the number of queued callbacks.
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// TickerFrames is a FrameRequester backed by a time.Ticker.
// Queued callbacks run on the goroutine that called Run.
type TickerFrames struct {
	interval time.Duration
	frames   ManualFrames
}

// NewTickerFrames creates a ticker-driven requester. A non-positive interval
// uses DefaultTargetInterval.
func NewTickerFrames(interval time.Duration) *TickerFrames {
	if interval <= 0 {
		interval = DefaultTargetInterval
	}
	return &TickerFrames{interval: interval}
}

// RequestFrame queues fn for the next tick.
func (t *TickerFrames) RequestFrame(fn FrameFunc) {
	t.frames.RequestFrame(fn)
}

// Run delivers frames until ctx is done.
func (t *TickerFrames) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.frames.Step(now)
		}
	}
}

var (
	_ FrameRequester = (*ManualFrames)(nil)
	_ FrameRequester = (*TickerFrames)(nil)
)
