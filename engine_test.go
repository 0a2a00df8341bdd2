package stage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/assets"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/memory"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/telemetry"
	"github.com/gogpu/stage/worker"
	"github.com/gogpu/stage/worker/geometry"
)

var red = color.RGBA{R: 255, A: 255}

// recorder is a Painter that fills object bounds and logs painted IDs.
type recorder struct {
	mu      sync.Mutex
	painted []scene.ObjectID
	full    int
}

func (r *recorder) Paint(ctx *render.Context, obj *scene.Object, _ scene.LOD) {
	ctx.FillRect(obj.Rect, red)
	r.mu.Lock()
	r.painted = append(r.painted, obj.ID)
	if ctx.Full {
		r.full++
	}
	r.mu.Unlock()
}

func (r *recorder) take() []scene.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.painted
	r.painted = nil
	return out
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(800, 600, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func ptr(v float64) *float64 { return &v }

// =============================================================================
// Construction
// =============================================================================

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, 600)
	assert.Error(t, err)
	_, err = New(800, -1)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	e := newEngine(t)

	assert.Equal(t, scene.Viewport{Width: 800, Height: 600, Scale: 1}, e.Viewport())
	assert.Equal(t, 800, e.Target().Width())
	assert.Equal(t, 600, e.Target().Height())
	assert.Equal(t, render.StateDirty, e.Scheduler().State(), "first frame is a pending full redraw")
	assert.Nil(t, e.Assets())
	assert.Nil(t, e.Workers())
	assert.NotNil(t, e.Logger())
	assert.NotNil(t, e.Pools())
}

func TestNew_SpawnFailure(t *testing.T) {
	_, err := New(800, 600, WithWorkers(worker.Config{
		Spawn: func() (worker.Conn, error) { return nil, errors.New("no fork") },
	}))
	assert.ErrorContains(t, err, "no fork")
}

// =============================================================================
// Objects and Painting
// =============================================================================

func TestEngine_FullRedrawPaintsVisibleObjects(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}

	require.NoError(t, e.AddObjects(
		&scene.Object{ID: 1, Rect: geom.R(10, 10, 20, 20), ZIndex: 2, Painter: rec},
		&scene.Object{ID: 2, Rect: geom.R(500, 400, 20, 20), ZIndex: 1, Painter: rec},
		&scene.Object{ID: 3, Rect: geom.R(5000, 5000, 20, 20), Painter: rec},
		&scene.Object{ID: 4, Rect: geom.R(40, 40, 20, 20), Hidden: true, Painter: rec},
	))
	assert.Equal(t, 4, e.Len())

	require.True(t, e.Render())
	assert.Equal(t, []scene.ObjectID{2, 1}, rec.take(), "paint order follows ZIndex")
	assert.Equal(t, red, e.Target().Image().RGBAAt(15, 15))
	assert.Zero(t, e.Target().Image().RGBAAt(45, 45).A, "hidden object is not painted")

	assert.False(t, e.Render(), "nothing pending")
}

func TestEngine_PartialRedrawSkipsUntouchedObjects(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}
	require.NoError(t, e.AddObjects(
		&scene.Object{ID: 1, Rect: geom.R(10, 10, 20, 20), Painter: rec},
		&scene.Object{ID: 2, Rect: geom.R(500, 400, 20, 20), Painter: rec},
	))
	e.Render()
	rec.take()

	require.NoError(t, e.UpdateObject(1, scene.BoundsPatch{X: ptr(50)}))
	require.True(t, e.Render())

	assert.Equal(t, []scene.ObjectID{1}, rec.take())
	img := e.Target().Image()
	assert.Zero(t, img.RGBAAt(15, 15).A, "old position cleared")
	assert.Equal(t, red, img.RGBAAt(55, 15))
	assert.Equal(t, red, img.RGBAAt(505, 405), "untouched object kept")
}

func TestEngine_OffscreenChangeSchedulesNothing(t *testing.T) {
	e := newEngine(t)
	e.Render()

	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(5000, 5000, 10, 10)}))
	assert.Equal(t, render.StateIdle, e.Scheduler().State())
	assert.False(t, e.Render())
}

func TestEngine_ReplaceObject(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10)}))
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(100, 100, 10, 10)}))

	assert.Equal(t, 1, e.Len())
	assert.Nil(t, e.ObjectAt(5, 5))
	got := e.ObjectAt(105, 105)
	require.NotNil(t, got)
	assert.Equal(t, scene.ObjectID(1), got.ID)
}

func TestEngine_RemoveObject(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObject(&scene.Object{ID: 7, Rect: geom.R(0, 0, 10, 10)}))

	require.NoError(t, e.RemoveObject(7))
	assert.ErrorIs(t, e.RemoveObject(7), ErrObjectNotFound)
	_, ok := e.Object(7)
	assert.False(t, ok)
	assert.Empty(t, e.VisibleObjects())
}

func TestEngine_UpdateObject(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10)}))

	assert.ErrorIs(t, e.UpdateObject(2, scene.BoundsPatch{X: ptr(1)}), ErrObjectNotFound)
	assert.ErrorIs(t, e.UpdateObject(2, scene.BoundsPatch{}), ErrObjectNotFound)
	assert.NoError(t, e.UpdateObject(1, scene.BoundsPatch{}))

	require.NoError(t, e.UpdateObject(1, scene.BoundsPatch{Width: ptr(300), Height: ptr(40)}))
	obj, _ := e.Object(1)
	assert.Equal(t, geom.R(0, 0, 300, 40), obj.Rect)
	assert.Same(t, obj, e.ObjectAt(250, 30), "reindexed with new bounds")
}

func TestEngine_InvertedBoundsAreNormalized(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}
	// A rubber-band drag up and to the left from (100, 100).
	obj := &scene.Object{ID: 1, Rect: geom.R(100, 100, -20, -20), Painter: rec}
	require.NoError(t, e.AddObject(obj))

	assert.Equal(t, geom.R(80, 80, 20, 20), obj.Rect)
	assert.Same(t, obj, e.ObjectAt(90, 90))
	assert.Contains(t, e.ObjectsInRegion(obj.Rect), obj)

	require.NoError(t, e.UpdateObject(1, scene.BoundsPatch{Width: ptr(-50)}))
	assert.Equal(t, geom.R(30, 80, 50, 20), obj.Rect)
	assert.Same(t, obj, e.ObjectAt(40, 90))
	assert.Nil(t, e.ObjectAt(90, 90))

	require.True(t, e.Render())
	assert.Equal(t, red, e.Target().Image().RGBAAt(40, 90))
}

func TestEngine_ModifyObject(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObjects(
		&scene.Object{ID: 1, Rect: geom.R(0, 0, 100, 100), ZIndex: 1},
		&scene.Object{ID: 2, Rect: geom.R(0, 0, 100, 100), ZIndex: 2},
	))
	assert.Equal(t, scene.ObjectID(2), e.ObjectAt(50, 50).ID)

	require.NoError(t, e.ModifyObject(1, func(o *scene.Object) { o.ZIndex = 3 }))
	assert.Equal(t, scene.ObjectID(1), e.ObjectAt(50, 50).ID)

	require.NoError(t, e.ModifyObject(1, func(o *scene.Object) {
		o.Hidden = true
		o.ID = 99
	}))
	obj, ok := e.Object(1)
	require.True(t, ok)
	assert.Equal(t, scene.ObjectID(1), obj.ID, "ID changes are undone")
	assert.Len(t, e.VisibleObjects(), 1)
}

func TestEngine_ObjectsInRegion(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObjects(
		&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10), ZIndex: 5},
		&scene.Object{ID: 2, Rect: geom.R(20, 0, 10, 10)},
		&scene.Object{ID: 3, Rect: geom.R(2000, 0, 10, 10)},
	))

	got := e.ObjectsInRegion(geom.R(0, 0, 40, 40))
	require.Len(t, got, 2)
	assert.Equal(t, scene.ObjectID(2), got[0].ID)
	assert.Equal(t, scene.ObjectID(1), got[1].ID)
}

func TestEngine_Clear(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10)}))
	e.Render()

	e.Clear()
	assert.Zero(t, e.Len())
	assert.Equal(t, render.StateDirty, e.Scheduler().State())
}

// =============================================================================
// Viewport
// =============================================================================

func TestEngine_ViewportTransformsPaintAndHitTest(t *testing.T) {
	e := newEngine(t)
	rec := &recorder{}
	obj := &scene.Object{ID: 1, Rect: geom.R(10, 10, 5, 5), Painter: rec}
	require.NoError(t, e.AddObject(obj))
	e.Render()

	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{Scale: ptr(2)}))
	require.True(t, e.Render())
	assert.Equal(t, 2, rec.full, "viewport change repaints everything")

	img := e.Target().Image()
	assert.Equal(t, red, img.RGBAAt(25, 25))
	assert.Zero(t, img.RGBAAt(12, 12).A)

	assert.Same(t, obj, e.ObjectAt(25, 25))
	assert.Nil(t, e.ObjectAt(12, 12))

	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{X: ptr(10), Y: ptr(10)}))
	assert.Same(t, obj, e.ObjectAt(5, 5))
}

func TestEngine_ViewportResize(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{Width: ptr(400), Height: ptr(300)}))

	assert.Equal(t, 400, e.Target().Width())
	assert.Equal(t, 300, e.Target().Height())
	assert.Equal(t, 400.0, e.Viewport().Width)
}

func TestEngine_ViewportRoundsSize(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{Width: ptr(400.7), Height: ptr(300.2)}))

	assert.Equal(t, 401.0, e.Viewport().Width)
	assert.Equal(t, 300.0, e.Viewport().Height)
	assert.Equal(t, 401, e.Target().Width())
	assert.Equal(t, 300, e.Target().Height())

	assert.Error(t, e.UpdateViewport(scene.ViewportPatch{Width: ptr(0.4)}), "rounds to zero")
	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{Width: ptr(0.5)}))
	assert.Equal(t, 1, e.Target().Width())
}

func TestEngine_ViewportInvalid(t *testing.T) {
	e := newEngine(t)
	assert.Error(t, e.UpdateViewport(scene.ViewportPatch{Scale: ptr(0)}))
	assert.Error(t, e.UpdateViewport(scene.ViewportPatch{Width: ptr(-1)}))
	assert.Equal(t, 1.0, e.Viewport().Scale)
}

func TestEngine_ViewportNoChange(t *testing.T) {
	e := newEngine(t)
	e.Render()
	require.NoError(t, e.UpdateViewport(scene.ViewportPatch{Scale: ptr(1)}))
	assert.False(t, e.Render())
}

// =============================================================================
// Frames
// =============================================================================

func TestEngine_ManualFrames(t *testing.T) {
	frames := &render.ManualFrames{}
	e := newEngine(t, WithFrames(frames))
	rec := &recorder{}

	require.Equal(t, 1, frames.Pending())
	frames.Step(time.Now())
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10), Painter: rec}))
	require.Equal(t, 1, frames.Pending())
	frames.Step(time.Now().Add(time.Second))

	assert.Equal(t, []scene.ObjectID{1}, rec.take())
	assert.Equal(t, uint64(2), e.Stats().Render.Frames)
}

func TestEngine_PublishesFrameEvents(t *testing.T) {
	e := newEngine(t)
	var frames atomic.Int32
	unsubscribe := e.Subscribe(func(ev telemetry.Event) {
		if ev.Kind == telemetry.KindFrame {
			frames.Add(1)
		}
	})
	defer unsubscribe()

	e.Render()
	e.MarkDirty(0, 0, 10, 10)
	e.Render()
	e.ForceFullRedraw()
	e.Render()
	assert.Equal(t, int32(3), frames.Load())
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestEngine_Close(t *testing.T) {
	e, err := New(100, 100)
	require.NoError(t, err)
	require.NoError(t, e.AddObject(&scene.Object{ID: 1}))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.AddObject(&scene.Object{ID: 2}), ErrClosed)
	assert.ErrorIs(t, e.RemoveObject(1), ErrClosed)
	assert.ErrorIs(t, e.UpdateViewport(scene.ViewportPatch{Scale: ptr(2)}), ErrClosed)
	assert.ErrorIs(t, e.Start(context.Background()), ErrClosed)
	assert.Zero(t, e.Len())
}

func TestEngine_ClearAfterClose(t *testing.T) {
	e, err := New(100, 100)
	require.NoError(t, err)
	e.Render()
	require.Equal(t, render.StateIdle, e.Scheduler().State())
	require.NoError(t, e.Close())

	e.Clear()
	assert.Equal(t, render.StateIdle, e.Scheduler().State(), "no redraw is scheduled after Close")
}

func TestEngine_AddNil(t *testing.T) {
	e := newEngine(t)
	assert.Error(t, e.AddObject(nil))
	assert.NoError(t, e.AddObjects(nil, &scene.Object{ID: 1}))
	assert.Equal(t, 1, e.Len())
}

// =============================================================================
// Services
// =============================================================================

func TestEngine_ExecuteWithoutWorkers(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(context.Background(), worker.Message{Type: worker.TypeAnalyze}, 0, 0)
	assert.ErrorIs(t, err, ErrNoWorkers)
}

func TestEngine_ImageWithoutAssets(t *testing.T) {
	e := newEngine(t)
	_, err := e.Image("a.png")
	assert.ErrorIs(t, err, ErrNoAssets)
}

func TestEngine_ExecuteGeometry(t *testing.T) {
	e := newEngine(t, WithWorkers(worker.Config{
		MaxWorkers: 2,
		Spawn:      worker.InProcess(geometry.Handler()),
	}))

	square := geometry.Shape{ID: "sq", Closed: true, Points: []geometry.Point{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
	}}
	resp, err := e.Execute(context.Background(), worker.Message{
		Type: worker.TypeAnalyze,
		Data: geometry.AnalyzeInput{Shapes: []geometry.Shape{square}},
	}, 1, time.Second)
	require.NoError(t, err)

	var res geometry.AnalyzeResult
	require.NoError(t, resp.Decode(&res))
	assert.InDelta(t, 100, res.TotalArea, 1e-9)
	assert.InDelta(t, 40, res.TotalPerimeter, 1e-9)
	assert.Equal(t, 1, resp.Metrics.ObjectsProcessed)

	require.NoError(t, e.Close())
	_, err = e.Execute(context.Background(), worker.Message{Type: worker.TypeAnalyze}, 0, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, worker.ErrTerminated)
}

func TestEngine_CriticalPressureClearsAssets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	fsys := fstest.MapFS{"a.png": {Data: buf.Bytes()}}

	var pct atomic.Int64
	pct.Store(20)
	sampler := memory.SamplerFunc(func() (memory.Sample, error) {
		return memory.Sample{Used: uint64(pct.Load()), Total: 100, Limit: 100}, nil
	})

	var got error
	e := newEngine(t,
		WithAssets(fsys, assets.Config{}),
		WithMemory(sampler, memory.Config{GC: func() {}}),
		WithPressureHandler(func(err error) { got = err }),
	)

	_, err := e.Image("a.png")
	require.NoError(t, err)
	_, ok := e.Assets().Peek("a.png")
	require.True(t, ok)

	pct.Store(96)
	_, err = e.Monitor().SampleNow()
	require.NoError(t, err)

	var pe *memory.PressureError
	require.ErrorAs(t, got, &pe)
	assert.Equal(t, memory.Critical, pe.Pressure)
	_, ok = e.Assets().Peek("a.png")
	assert.False(t, ok, "critical pressure clears the asset tiers")
	assert.Equal(t, 3, e.Stats().Memory.Caches)
}

func TestEngine_RegisterCache(t *testing.T) {
	e := newEngine(t)
	unregister := e.RegisterCache(nopCache{})
	assert.Equal(t, 1, e.Monitor().Stats().Caches)
	unregister()
	assert.Zero(t, e.Monitor().Stats().Caches)
}

type nopCache struct{}

func (nopCache) Name() string              { return "nop" }
func (nopCache) EvictFraction(float64) int { return 0 }
func (nopCache) Clear() int                { return 0 }
func (nopCache) Len() int                  { return 0 }
func (nopCache) Bytes() int64              { return 0 }

func TestEngine_StartStop(t *testing.T) {
	var samples atomic.Int32
	sampler := memory.SamplerFunc(func() (memory.Sample, error) {
		samples.Add(1)
		return memory.Sample{Used: 1, Limit: 100}, nil
	})
	e := newEngine(t, WithMemory(sampler, memory.Config{Interval: time.Millisecond}))

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), memory.ErrRunning)
	assert.Eventually(t, func() bool { return samples.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, e.Close())
}

// =============================================================================
// Metrics
// =============================================================================

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEngine(t, WithRegistry(reg))
	assert.Same(t, reg, e.Registry())

	require.NoError(t, e.AddObjects(
		&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10)},
		&scene.Object{ID: 2, Rect: geom.R(20, 0, 10, 10)},
	))
	e.Render()

	assert.Equal(t, 2.0, gathered(t, reg, "stage_objects"))
	assert.Equal(t, 1.0, gathered(t, reg, "stage_frames_total"))
	assert.Equal(t, 2.0, gathered(t, reg, "stage_visible_objects"))
}

func gathered(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		switch mf.GetType() {
		case dto.MetricType_GAUGE:
			return m.GetGauge().GetValue()
		case dto.MetricType_COUNTER:
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestEngine_Stats(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddObject(&scene.Object{ID: 1, Rect: geom.R(0, 0, 10, 10)}))
	e.Render()

	s := e.Stats()
	assert.Equal(t, 1, s.Objects)
	assert.Equal(t, 1, s.Index.Items)
	assert.Equal(t, 1, s.Cull.Visible)
	assert.Len(t, s.Pools, 5)
	assert.NotZero(t, s.Events)
}
