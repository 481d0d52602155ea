// Package gifgen encodes recorded frames as an animated GIF.
package gifgen

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/sync/errgroup"
)

// Options configures GIF generation
type Options struct {
	FrameDelay time.Duration // How long each frame is shown
	LastDelay  time.Duration // Hold on the final frame; FrameDelay when zero
	MaxWidth   uint          // Frames wider than this are scaled down
}

func (o Options) withDefaults() Options {
	if o.FrameDelay <= 0 {
		o.FrameDelay = time.Second
	}
	if o.LastDelay <= 0 {
		o.LastDelay = o.FrameDelay
	}
	if o.MaxWidth == 0 {
		o.MaxWidth = 800
	}
	return o
}

// Generate writes frames to outputPath and returns the file size
func Generate(ctx context.Context, frames []image.Image, outputPath string, opts Options) (int64, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("no frames to encode")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := Encode(ctx, f, frames, opts); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Encode scales and quantizes frames in parallel and writes the GIF to w.
// All frames share one palette built from the first frame and are scaled to
// its size.
func Encode(ctx context.Context, w io.Writer, frames []image.Image, opts Options) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	opts = opts.withDefaults()

	bounds := frames[0].Bounds()
	width, height := uint(bounds.Dx()), uint(bounds.Dy())
	if width > opts.MaxWidth {
		height = uint(float64(opts.MaxWidth) * float64(height) / float64(width))
		width = opts.MaxWidth
	}

	palette := generatePalette(frames[0])
	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, frame := range frames {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scaled := frame
			if b := frame.Bounds(); uint(b.Dx()) != width || uint(b.Dy()) != height {
				scaled = resize.Resize(width, height, frame, resize.Lanczos3)
			}
			paletted := image.NewPaletted(image.Rect(0, 0, int(width), int(height)), palette)
			draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), scaled, scaled.Bounds().Min)
			g.Image[i] = paletted
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to prepare frames: %w", err)
	}

	for i := range g.Delay {
		g.Delay[i] = centiseconds(opts.FrameDelay)
	}
	g.Delay[len(g.Delay)-1] = centiseconds(opts.LastDelay)

	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return nil
}

func centiseconds(d time.Duration) int {
	cs := int(d / (10 * time.Millisecond))
	if cs < 1 {
		cs = 1
	}
	return cs
}

// generatePalette keeps the 255 most frequent colors of a sampled frame plus
// a transparent entry, padding with grays.
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, colorCount{c, n})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].count != colors[j].count {
			return colors[i].count > colors[j].count
		}
		a, b := colors[i].c, colors[j].c
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		palette = append(palette, colors[i].c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
