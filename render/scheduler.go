// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"golang.org/x/image/draw"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/pool"
	"github.com/gogpu/stage/telemetry"
)

// Default configuration constants.
const (
	// DefaultTargetInterval is the frame budget (60 fps).
	DefaultTargetInterval = 16670 * time.Microsecond

	// DefaultMergeThreshold is the pixel gap under which regions merge.
	DefaultMergeThreshold = 10

	// DefaultMaxRegions is the merged region count above which a frame
	// becomes a full redraw.
	DefaultMaxRegions = 16

	// DefaultMinQuality is the quality floor.
	DefaultMinQuality = 0.5

	// DefaultQualityStep is the quality drop per slow frame.
	DefaultQualityStep = 0.1

	// DefaultRecoveryDuration is the time to ease quality back to 1.
	DefaultRecoveryDuration = 500 * time.Millisecond

	skipFactor = 0.8
	slowFactor = 1.5
	fastFactor = 0.9

	// idleFactor bounds the inter-frame delta considered part of a
	// continuous run; longer gaps follow an idle period.
	idleFactor = 10

	// pendingFactor bounds pending regions at MaxRegions*pendingFactor
	// before they collapse into a full redraw.
	pendingFactor = 4
)

// State is the scheduler lifecycle state.
type State int32

// Scheduler states.
const (
	StateIdle State = iota
	StateDirty
	StateRequested
	StateRendering
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirty:
		return "dirty"
	case StateRequested:
		return "requested"
	case StateRendering:
		return "rendering"
	}
	return "unknown"
}

// Config configures a Scheduler.
type Config struct {
	// TargetInterval is the frame budget.
	TargetInterval time.Duration

	// MergeThreshold is the pixel gap under which two regions merge.
	MergeThreshold float64

	// MaxRegions is the merged region count above which the frame becomes
	// a full redraw.
	MaxRegions int

	// DirectPaint paints straight into the target instead of an offscreen
	// buffer that is blitted afterwards.
	DirectPaint bool

	// MinQuality is the quality floor.
	MinQuality float64

	// QualityStep is the quality drop per slow frame.
	QualityStep float64

	// RecoveryDuration is the time to ease quality back up to 1.
	RecoveryDuration time.Duration

	// RecoveryEase shapes the recovery curve. Nil means ease.OutQuad.
	RecoveryEase ease.TweenFunc

	// Background fills repainted regions before painting. Nil means
	// transparent.
	Background color.Color

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	// Hub receives frame and quality events. Nil disables publishing.
	Hub *telemetry.Hub

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TargetInterval:   DefaultTargetInterval,
		MergeThreshold:   DefaultMergeThreshold,
		MaxRegions:       DefaultMaxRegions,
		MinQuality:       DefaultMinQuality,
		QualityStep:      DefaultQualityStep,
		RecoveryDuration: DefaultRecoveryDuration,
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	State          State
	Quality        float64
	Frames         uint64
	Skipped        uint64
	FullRedraws    uint64
	PartialRedraws uint64
	RegionsPainted uint64
	Marks          uint64
	Panics         uint64
	Pending        int
	LastPaint      time.Duration
	LastDelta      time.Duration
	Regions        pool.Stats
}

// batch is the dirt consumed by one render pass.
type batch struct {
	rects     []geom.Rect
	full      bool
	frame     uint64
	now       time.Time
	quality   float64
	transform geom.Matrix
}

type drawResult struct {
	full     bool
	painted  int
	panics   int
	duration time.Duration
}

// Scheduler drives incremental repaints. All methods are safe for
// concurrent use; paint callbacks run without the scheduler lock held.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	log       *slog.Logger
	hub       *telemetry.Hub
	target    Target
	paint     PaintFunc
	requester FrameRequester
	bg        *image.Uniform

	regions     *pool.Pool[*Region]
	pending     []*Region
	full        bool
	state       State
	outstanding bool
	scratch     []geom.Rect
	back        *image.RGBA
	transform   geom.Matrix

	quality   float64
	recovery  *gween.Tween
	lastFrame time.Time
	lastDelta time.Duration
	lastPaint time.Duration
	frame     uint64

	rendered       uint64
	skipped        uint64
	fullRedraws    uint64
	partialRedraws uint64
	regionsPainted uint64
	marks          uint64
	panics         uint64

	outbox []telemetry.Event
}

// NewScheduler creates a Scheduler painting into target.
//
// A nil frames requester puts the scheduler in manual mode: marks leave it
// Dirty until Render is called.
func NewScheduler(target Target, paint PaintFunc, frames FrameRequester, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.TargetInterval <= 0 {
		cfg.TargetInterval = def.TargetInterval
	}
	if cfg.MergeThreshold < 0 {
		cfg.MergeThreshold = 0
	} else if cfg.MergeThreshold == 0 {
		cfg.MergeThreshold = def.MergeThreshold
	}
	if cfg.MaxRegions <= 0 {
		cfg.MaxRegions = def.MaxRegions
	}
	if cfg.MinQuality <= 0 || cfg.MinQuality > 1 {
		cfg.MinQuality = def.MinQuality
	}
	if cfg.QualityStep <= 0 {
		cfg.QualityStep = def.QualityStep
	}
	if cfg.RecoveryDuration <= 0 {
		cfg.RecoveryDuration = def.RecoveryDuration
	}
	if cfg.RecoveryEase == nil {
		cfg.RecoveryEase = ease.OutQuad
	}
	if cfg.Background == nil {
		cfg.Background = color.Transparent
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if paint == nil {
		paint = func(*Context, *geom.Rect) {}
	}

	return &Scheduler{
		cfg:       cfg,
		log:       logging.Component(cfg.Logger, "render"),
		hub:       cfg.Hub,
		target:    target,
		paint:     paint,
		requester: frames,
		bg:        image.NewUniform(cfg.Background),
		regions: pool.New(pool.Config[*Region]{
			Name:    "dirty-region",
			New:     func() *Region { return new(Region) },
			MaxSize: cfg.MaxRegions * pendingFactor,
			Logger:  cfg.Logger,
		}),
		transform: geom.Identity(),
		quality:   1,
	}
}

// MarkDirty invalidates a canvas rectangle in pixels. It never blocks on
// painting. Negative sizes are normalized.
func (s *Scheduler) MarkDirty(x, y, w, h float64) {
	if w < 0 {
		x, w = x+w, -w
	}
	if h < 0 {
		y, h = y+h, -h
	}

	s.mu.Lock()
	if !s.full {
		if len(s.pending) >= s.cfg.MaxRegions*pendingFactor {
			s.releasePendingLocked()
			s.full = true
		} else {
			r := s.regions.Acquire()
			r.Rect = geom.R(x, y, w, h)
			r.Time = s.cfg.Now()
			s.pending = append(s.pending, r)
		}
	}
	s.marks++
	request := s.scheduleLocked()
	s.mu.Unlock()

	if request {
		s.requester.RequestFrame(s.onFrame)
	}
}

// ForceFullRedraw discards pending regions and schedules a full redraw.
func (s *Scheduler) ForceFullRedraw() {
	s.mu.Lock()
	s.releasePendingLocked()
	s.full = true
	request := s.scheduleLocked()
	s.mu.Unlock()

	if request {
		s.requester.RequestFrame(s.onFrame)
	}
}

// Render paints all pending dirt synchronously and reports whether anything
// was painted. It is idempotent: with nothing pending it does nothing.
// Render does not apply frame skip or adaptive quality.
func (s *Scheduler) Render() bool {
	s.mu.Lock()
	if s.state == StateRendering {
		s.mu.Unlock()
		s.log.Warn("render called while a render is in progress")
		return false
	}
	if !s.hasDirtLocked() {
		s.mu.Unlock()
		return false
	}
	b := s.takeLocked(s.cfg.Now())
	s.mu.Unlock()

	s.run(b)
	return true
}

// SetTransform sets the world-to-canvas matrix handed to paint callbacks.
func (s *Scheduler) SetTransform(m geom.Matrix) {
	s.mu.Lock()
	s.transform = m
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Quality returns the current adaptive quality level.
func (s *Scheduler) Quality() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		State:          s.state,
		Quality:        s.quality,
		Frames:         s.rendered,
		Skipped:        s.skipped,
		FullRedraws:    s.fullRedraws,
		PartialRedraws: s.partialRedraws,
		RegionsPainted: s.regionsPainted,
		Marks:          s.marks,
		Panics:         s.panics,
		Pending:        len(s.pending),
		LastPaint:      s.lastPaint,
		LastDelta:      s.lastDelta,
		Regions:        s.regions.Stats(),
	}
}

// onFrame is the frame callback.
func (s *Scheduler) onFrame(now time.Time) {
	s.mu.Lock()
	s.outstanding = false
	if s.state == StateRendering {
		// A synchronous Render owns the frame; it reschedules leftovers.
		s.mu.Unlock()
		return
	}

	delta := s.cfg.TargetInterval
	if !s.lastFrame.IsZero() {
		delta = now.Sub(s.lastFrame)
	}
	s.lastFrame = now
	s.lastDelta = delta
	s.adjustQualityLocked(now, delta)

	switch {
	case !s.hasDirtLocked():
		s.state = StateIdle
		s.mu.Unlock()
		s.flush()
		return

	case delta < time.Duration(skipFactor*float64(s.cfg.TargetInterval)):
		s.releasePendingLocked()
		s.full = false
		s.skipped++
		s.state = StateIdle
		s.outbox = append(s.outbox, telemetry.Event{
			Kind:   telemetry.KindFrameSkipped,
			Time:   now,
			Source: "render",
		})
		s.mu.Unlock()
		s.flush()
		return
	}

	b := s.takeLocked(now)
	s.mu.Unlock()

	s.run(b)
}

// run paints b, records the outcome and requests a follow-up frame when
// dirt arrived meanwhile.
func (s *Scheduler) run(b *batch) {
	res := s.draw(b)

	s.mu.Lock()
	request := s.finishLocked(b, res)
	s.mu.Unlock()

	s.flush()
	if request {
		s.requester.RequestFrame(s.onFrame)
	}
}

// takeLocked consumes all pending dirt and enters Rendering.
func (s *Scheduler) takeLocked(now time.Time) *batch {
	s.scratch = s.scratch[:0]
	for _, r := range s.pending {
		s.scratch = append(s.scratch, r.Rect)
	}
	b := &batch{
		rects:     s.scratch,
		full:      s.full,
		now:       now,
		quality:   s.quality,
		transform: s.transform,
	}
	s.releasePendingLocked()
	s.full = false
	s.frame++
	b.frame = s.frame
	s.state = StateRendering
	return b
}

// finishLocked records a finished pass and reports whether a frame must be
// requested for dirt that arrived while painting.
func (s *Scheduler) finishLocked(b *batch, res drawResult) bool {
	s.rendered++
	if res.full {
		s.fullRedraws++
	} else {
		s.partialRedraws++
	}
	s.regionsPainted += uint64(res.painted)
	s.panics += uint64(res.panics)
	s.lastPaint = res.duration
	s.outbox = append(s.outbox, telemetry.Event{
		Kind:     telemetry.KindFrame,
		Time:     b.now,
		Source:   "render",
		Value:    float64(res.painted),
		Duration: res.duration,
	})

	s.state = StateIdle
	if !s.hasDirtLocked() {
		return false
	}
	return s.scheduleLocked()
}

// scheduleLocked moves the state forward after new dirt and reports whether
// a frame must be requested.
func (s *Scheduler) scheduleLocked() bool {
	switch {
	case s.state == StateRendering:
		return false
	case s.requester == nil:
		s.state = StateDirty
		return false
	}
	s.state = StateRequested
	if s.outstanding {
		return false
	}
	s.outstanding = true
	return true
}

func (s *Scheduler) hasDirtLocked() bool {
	return s.full || len(s.pending) > 0
}

func (s *Scheduler) releasePendingLocked() {
	for i, r := range s.pending {
		s.regions.Release(r)
		s.pending[i] = nil
	}
	s.pending = s.pending[:0]
}

// adjustQualityLocked applies adaptive quality for one inter-frame delta.
func (s *Scheduler) adjustQualityLocked(now time.Time, delta time.Duration) {
	target := float64(s.cfg.TargetInterval)
	d := float64(delta)

	switch {
	case d > idleFactor*target:
		return

	case d > slowFactor*target:
		s.recovery = nil
		s.setQualityLocked(now, math.Max(s.cfg.MinQuality, s.quality-s.cfg.QualityStep))

	case d < fastFactor*target && s.quality < 1:
		if s.recovery == nil {
			s.recovery = gween.New(float32(s.quality), 1,
				float32(s.cfg.RecoveryDuration.Seconds()), s.cfg.RecoveryEase)
		}
		v, done := s.recovery.Update(float32(delta.Seconds()))
		q := math.Min(1, float64(v))
		if done {
			q = 1
			s.recovery = nil
		}
		s.setQualityLocked(now, q)
	}
}

func (s *Scheduler) setQualityLocked(now time.Time, q float64) {
	if q == s.quality {
		return
	}
	s.log.Debug("render quality changed",
		slog.Float64("from", s.quality),
		slog.Float64("to", q))
	s.quality = q
	s.outbox = append(s.outbox, telemetry.Event{
		Kind:   telemetry.KindQuality,
		Time:   now,
		Source: "render",
		Value:  q,
	})
}

// flush publishes queued events outside the lock.
func (s *Scheduler) flush() {
	s.mu.Lock()
	events := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for _, e := range events {
		s.hub.Publish(e)
	}
}

// draw paints one batch. It runs without the lock; the Rendering state
// keeps it exclusive.
func (s *Scheduler) draw(b *batch) drawResult {
	dst := s.target.Image()
	if dst == nil {
		return drawResult{full: b.full}
	}
	bounds := dst.Bounds()
	full := b.full

	buf := dst
	if !s.cfg.DirectPaint {
		if s.back == nil || s.back.Bounds() != bounds {
			s.back = image.NewRGBA(bounds)
			full = true
		}
		buf = s.back
	}

	var rects []geom.Rect
	if !full {
		canvas := geom.FromImageRect(bounds)
		rects = clampRegions(b.rects, canvas)
		for _, r := range rects {
			if r.Contains(canvas) {
				full = true
				break
			}
		}
		if !full {
			rects = MergeRegions(rects, s.cfg.MergeThreshold)
			if len(rects) > s.cfg.MaxRegions {
				s.log.Debug("dirty regions over cap, full redraw",
					slog.Int("regions", len(rects)),
					slog.Int("max", s.cfg.MaxRegions))
				full = true
			}
		}
	}

	res := drawResult{full: full}
	start := s.cfg.Now()

	if full {
		draw.Draw(buf, bounds, s.bg, image.Point{}, draw.Src)
		if s.paintSafe(s.context(b, buf, bounds, true), nil) {
			res.panics++
		}
		if buf != dst {
			draw.Draw(dst, bounds, buf, bounds.Min, draw.Src)
		}
		res.painted = 1
	} else {
		for i := range rects {
			pr := rects[i].ImageRect().Intersect(bounds)
			if pr.Empty() {
				continue
			}
			draw.Draw(buf, pr, s.bg, image.Point{}, draw.Src)
			sub, _ := buf.SubImage(pr).(*image.RGBA)
			region := rects[i]
			if s.paintSafe(s.context(b, sub, pr, false), &region) {
				res.panics++
			}
			if buf != dst {
				draw.Draw(dst, pr, buf, pr.Min, draw.Src)
			}
			res.painted++
		}
	}

	res.duration = s.cfg.Now().Sub(start)
	return res
}

func (s *Scheduler) context(b *batch, dst *image.RGBA, clip image.Rectangle, full bool) *Context {
	ctx := newContext(dst, clip, full, b.quality)
	ctx.Frame = b.frame
	ctx.Time = b.now
	ctx.Transform = b.transform
	return ctx
}

// paintSafe calls the paint callback and recovers a panic so the next frame
// is still scheduled.
func (s *Scheduler) paintSafe(ctx *Context, region *geom.Rect) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.log.Warn("paint callback panicked",
				slog.Uint64("frame", ctx.Frame),
				slog.Any("panic", r))
		}
	}()
	s.paint(ctx, region)
	return false
}
