package assets

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/gogpu/stage/cache"
	"github.com/gogpu/stage/internal/logging"
)

// Default configuration constants.
const (
	// DefaultHotBytes is the hot tier budget (32 MB).
	DefaultHotBytes = 32 << 20

	// DefaultWarmBytes is the warm tier budget (128 MB).
	DefaultWarmBytes = 128 << 20

	// DefaultWarmTTL is the warm tier entry lifetime.
	DefaultWarmTTL = 5 * time.Minute

	// DefaultThumbBytes is the thumbnail tier budget (16 MB).
	DefaultThumbBytes = 16 << 20
)

// Sentinel errors.
var (
	// ErrNotFound is returned when an asset does not exist.
	ErrNotFound = errors.New("assets: not found")

	// ErrDecode is returned when an asset cannot be decoded.
	ErrDecode = errors.New("assets: decode failed")
)

// Config configures a Store.
type Config struct {
	HotBytes   int64
	WarmBytes  int64
	WarmTTL    time.Duration
	ThumbBytes int64

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Stats is a snapshot of store counters.
type Stats struct {
	Decoded    uint64
	Failures   uint64
	Thumbnails uint64
	Tiers      []cache.Stats
}

// Store serves decoded images by name.
type Store struct {
	fsys   fs.FS
	log    *slog.Logger
	images *cache.MultiTier[string, *image.RGBA]
	thumbs *cache.Tier[string, *image.RGBA]

	decoded  atomic.Uint64
	failures atomic.Uint64
	scaled   atomic.Uint64
}

// New creates a Store reading from fsys.
func New(fsys fs.FS, cfg Config) *Store {
	if cfg.HotBytes <= 0 {
		cfg.HotBytes = DefaultHotBytes
	}
	if cfg.WarmBytes <= 0 {
		cfg.WarmBytes = DefaultWarmBytes
	}
	if cfg.WarmTTL <= 0 {
		cfg.WarmTTL = DefaultWarmTTL
	}
	if cfg.ThumbBytes <= 0 {
		cfg.ThumbBytes = DefaultThumbBytes
	}

	hot := cache.New(cache.Config[string, *image.RGBA]{
		Name:     "images-hot",
		MaxBytes: cfg.HotBytes,
		Policy:   cache.LRU,
		SizeOf:   imageBytes,
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	})
	warm := cache.New(cache.Config[string, *image.RGBA]{
		Name:       "images-warm",
		MaxBytes:   cfg.WarmBytes,
		Policy:     cache.TTLFirst,
		DefaultTTL: cfg.WarmTTL,
		SizeOf:     imageBytes,
		Now:        cfg.Now,
		Logger:     cfg.Logger,
	})
	thumbs := cache.New(cache.Config[string, *image.RGBA]{
		Name:     "thumbnails",
		MaxBytes: cfg.ThumbBytes,
		Policy:   cache.LFU,
		SizeOf:   imageBytes,
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	})

	return &Store{
		fsys:   fsys,
		log:    logging.Component(cfg.Logger, "assets"),
		images: cache.NewMultiTier(hot, warm),
		thumbs: thumbs,
	}
}

// Image returns the decoded image for name, loading it on a miss.
func (s *Store) Image(name string) (*image.RGBA, error) {
	return s.images.GetOrLoad(name, s.load)
}

// Peek returns the image for name only if it is cached.
func (s *Store) Peek(name string) (*image.RGBA, bool) {
	return s.images.Get(name)
}

// Preload loads every name and returns the joined errors.
func (s *Store) Preload(names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := s.Image(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Thumbnail returns name scaled to fit within w x h, preserving the aspect
// ratio. Thumbnails are cached separately from the source images.
func (s *Store) Thumbnail(name string, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("assets: invalid thumbnail size %dx%d", w, h)
	}
	key := fmt.Sprintf("%s@%dx%d", name, w, h)
	if img, ok := s.thumbs.Get(key); ok {
		return img, nil
	}

	src, err := s.Image(name)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(fitRect(src.Bounds(), w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	s.scaled.Add(1)
	s.thumbs.Set(key, dst)
	return dst, nil
}

// Evict drops name from every tier.
func (s *Store) Evict(name string) {
	s.images.Delete(name)
}

// Tiers returns every cache tier, for memory monitor registration.
func (s *Store) Tiers() []*cache.Tier[string, *image.RGBA] {
	return append(append([]*cache.Tier[string, *image.RGBA](nil), s.images.Tiers()...), s.thumbs)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Decoded:    s.decoded.Load(),
		Failures:   s.failures.Load(),
		Thumbnails: s.scaled.Load(),
		Tiers:      append(s.images.Stats(), s.thumbs.Stats()),
	}
}

func (s *Store) load(name string) (*image.RGBA, error) {
	f, err := s.fsys.Open(name)
	if err != nil {
		s.failures.Add(1)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("assets: open %s: %w", name, err)
	}
	defer f.Close()

	img, format, err := Decode(f)
	if err != nil {
		s.failures.Add(1)
		s.log.Warn("asset decode failed", slog.String("name", name), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.decoded.Add(1)
	s.log.Debug("asset decoded",
		slog.String("name", name),
		slog.String("format", format),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()))
	return img, nil
}

// Decode decodes any registered format into an *image.RGBA anchored at the
// origin and returns the format name.
func Decode(r io.Reader) (*image.RGBA, string, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, format, nil
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, format, nil
}

// Placeholder returns a w x h checkerboard used when an image is missing.
func Placeholder(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	light := color.RGBA{0xcc, 0xcc, 0xcc, 0xff}
	dark := color.RGBA{0x99, 0x99, 0x99, 0xff}
	const cell = 8
	for y := 0; y < h; y += cell {
		for x := 0; x < w; x += cell {
			c := light
			if (x/cell+y/cell)%2 == 1 {
				c = dark
			}
			draw.Draw(img, image.Rect(x, y, x+cell, y+cell), image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
	return img
}

func imageBytes(img *image.RGBA) int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Pix))
}

// fitRect returns a rectangle at the origin that fits src into w x h.
func fitRect(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return image.Rect(0, 0, 1, 1)
	}
	scale := min(float64(w)/float64(sw), float64(h)/float64(sh))
	tw := max(1, int(float64(sw)*scale))
	th := max(1, int(float64(sh)*scale))
	return image.Rect(0, 0, tw, th)
}
