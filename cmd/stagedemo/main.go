// Command stagedemo drives a stage engine through a scripted pan over a large
// random scene and writes the final canvas to a PNG file.
//
// With -metrics the Prometheus endpoint stays up after the run until the
// process is interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/assets"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/worker"
	"github.com/gogpu/stage/worker/geometry"
)

func main() {
	var (
		width     = flag.Int("width", 1280, "canvas width")
		height    = flag.Int("height", 720, "canvas height")
		objects   = flag.Int("objects", 10_000, "number of random objects")
		world     = flag.Float64("world", 20_000, "world edge length")
		frames    = flag.Int("frames", 120, "number of pan frames")
		output    = flag.String("output", "stage.png", "output file")
		assetDir  = flag.String("assets", "", "directory of images to place in the scene")
		workerBin = flag.String("worker", "", "path to stageworker; empty runs geometry in-process")
		metrics   = flag.String("metrics", "", "serve Prometheus metrics on this address")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := demo{
		width:    *width,
		height:   *height,
		objects:  *objects,
		world:    *world,
		frames:   *frames,
		output:   *output,
		assetDir: *assetDir,
		logger:   logger,
	}
	d.spawn = worker.InProcess(geometry.Handler())
	if *workerBin != "" {
		d.spawn = worker.Exec(*workerBin)
	}

	if err := d.run(ctx, *metrics); err != nil {
		log.Fatalf("stagedemo: %v", err)
	}
}

type demo struct {
	width, height int
	objects       int
	world         float64
	frames        int
	output        string
	assetDir      string
	spawn         worker.Spawner
	logger        *slog.Logger
}

func (d *demo) run(ctx context.Context, metricsAddr string) error {
	clock := &render.ManualFrames{}
	opts := []stage.Option{
		stage.WithLogger(d.logger),
		stage.WithFrames(clock),
		stage.WithWorldBounds(geom.R(0, 0, d.world, d.world)),
		stage.WithRender(render.Config{Background: color.RGBA{R: 24, G: 26, B: 32, A: 255}}),
		stage.WithWorkers(worker.Config{Spawn: d.spawn}),
		stage.WithPressureHandler(func(err error) {
			d.logger.Error("memory pressure", slog.Any("err", err))
		}),
	}
	var images []string
	if d.assetDir != "" {
		fsys := os.DirFS(d.assetDir)
		found, err := fs.Glob(fsys, "*.png")
		if err != nil {
			return err
		}
		images = found
		opts = append(opts, stage.WithAssets(fsys, assets.Config{}))
	}

	e, err := stage.New(d.width, d.height, opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Start(ctx); err != nil {
		return err
	}
	if len(images) > 0 {
		if err := e.Assets().Preload(images...); err != nil {
			d.logger.Warn("preload", slog.Any("err", err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(e.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			d.logger.Info("serving metrics", slog.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}

	g.Go(func() error {
		if err := d.script(gctx, e, clock, images); err != nil {
			return err
		}
		if metricsAddr == "" {
			cancel()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *demo) script(ctx context.Context, e *stage.Engine, clock *render.ManualFrames, images []string) error {
	rng := rand.New(rand.NewPCG(1, 2))
	objs := make([]*scene.Object, d.objects)
	for i := range objs {
		w := 20 + rng.Float64()*180
		h := 20 + rng.Float64()*180
		obj := &scene.Object{
			ID:     scene.ObjectID(i + 1),
			Rect:   geom.R(rng.Float64()*(d.world-w), rng.Float64()*(d.world-h), w, h),
			ZIndex: rng.IntN(8),
			Painter: &box{
				fill: color.RGBA{
					R: uint8(64 + rng.IntN(192)),
					G: uint8(64 + rng.IntN(192)),
					B: uint8(64 + rng.IntN(192)),
					A: 220,
				},
				store: e.Assets(),
			},
		}
		if len(images) > 0 && i%10 == 0 {
			obj.Data = images[i%len(images)]
		}
		objs[i] = obj
	}
	if err := e.AddObjects(objs...); err != nil {
		return err
	}

	start := time.Now()
	now := start
	step := 16 * time.Millisecond
	for i := 0; i < d.frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		vp := e.Viewport()
		x, y := vp.X+6, vp.Y+3
		patch := scene.ViewportPatch{X: &x, Y: &y}
		if i == d.frames/2 {
			s := 0.5
			patch.Scale = &s
		}
		if err := e.UpdateViewport(patch); err != nil {
			return err
		}
		now = now.Add(step)
		clock.Step(now)
	}
	elapsed := time.Since(start)

	if err := d.analyze(ctx, e); err != nil {
		return err
	}
	if err := d.save(e.Target().Image()); err != nil {
		return err
	}
	d.summary(e, elapsed)
	return nil
}

// analyze sends the visible objects to the worker pool as polygons.
func (d *demo) analyze(ctx context.Context, e *stage.Engine) error {
	visible := e.VisibleObjects()
	shapes := make([]geometry.Shape, 0, len(visible))
	for _, obj := range visible {
		r := obj.Rect
		shapes = append(shapes, geometry.Shape{
			ID:     strconv.FormatUint(uint64(obj.ID), 10),
			Closed: true,
			Points: []geometry.Point{
				{X: r.X, Y: r.Y},
				{X: r.Right(), Y: r.Y},
				{X: r.Right(), Y: r.Bottom()},
				{X: r.X, Y: r.Bottom()},
			},
		})
	}

	results := e.Workers().ExecuteBatch(ctx, []worker.BatchItem{
		{Message: worker.Message{Type: worker.TypeAnalyze, Data: geometry.AnalyzeInput{Shapes: shapes}}, Priority: 2},
		{Message: worker.Message{Type: worker.TypeCluster, Data: geometry.ClusterInput{Shapes: shapes, CellSize: 512}}, Priority: 1},
	})
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("geometry: %w", r.Err)
		}
	}

	var analysis geometry.AnalyzeResult
	if err := results[0].Response.Decode(&analysis); err != nil {
		return err
	}
	var clusters geometry.ClusterResult
	if err := results[1].Response.Decode(&clusters); err != nil {
		return err
	}
	d.logger.Info("geometry",
		slog.Int("shapes", len(analysis.Shapes)),
		slog.Float64("area", analysis.TotalArea),
		slog.Int("clusters", len(clusters.Clusters)),
		slog.Float64("ms", results[0].Response.Metrics.Duration))
	return nil
}

func (d *demo) save(img image.Image) error {
	f, err := os.Create(d.output)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (d *demo) summary(e *stage.Engine, elapsed time.Duration) {
	s := e.Stats()
	p := message.NewPrinter(language.English)
	p.Printf("objects:   %d (%d visible, %d quadtree nodes)\n", s.Objects, s.Cull.Visible, s.Index.Nodes)
	p.Printf("frames:    %d painted, %d skipped, %d full, %d partial in %v\n",
		s.Render.Frames, s.Render.Skipped, s.Render.FullRedraws, s.Render.PartialRedraws, elapsed.Round(time.Millisecond))
	p.Printf("quality:   %.2f\n", s.Render.Quality)
	p.Printf("cull:      %d queries, %d reused, %d memo hits\n", s.Cull.Queries, s.Cull.Reused, s.Cull.MemoHits)
	p.Printf("memory:    %d bytes used (%s)\n", s.Memory.Used, s.Memory.Pressure)
	p.Printf("workers:   %d tasks, %d spawned\n", s.Workers.Completed, s.Workers.Spawned)
	p.Printf("events:    %d\n", s.Events)
	p.Printf("output:    %s\n", d.output)
}

// box paints an object as a filled rectangle. Medium detail adds an
// outline and high detail adds the object ID.
type box struct {
	fill  color.RGBA
	store *assets.Store
}

var outline = color.RGBA{R: 240, G: 240, B: 240, A: 255}

func (b *box) Paint(ctx *render.Context, obj *scene.Object, lod scene.LOD) {
	r := ctx.Transform.TransformRect(obj.Rect).ImageRect()

	if name, ok := obj.Data.(string); ok && b.store != nil && lod != scene.LODLow {
		if img, ok := b.store.Peek(name); ok {
			ctx.DrawImage(r, img)
			return
		}
	}

	ctx.Fill(r, b.fill)
	if lod == scene.LODLow {
		return
	}

	ctx.Fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), outline)
	ctx.Fill(image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), outline)
	ctx.Fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), outline)
	ctx.Fill(image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), outline)
	if lod != scene.LODHigh {
		return
	}

	dr := font.Drawer{
		Dst:  ctx.Dst,
		Src:  image.NewUniform(outline),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(r.Min.X+4, r.Min.Y+14),
	}
	dr.DrawString(strconv.FormatUint(uint64(obj.ID), 10))
}
