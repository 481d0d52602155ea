// Package recorder keeps a visual record of a run: one frame before the
// first action and one after each action, saved as an animated GIF.
package recorder

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/gifgen"
	"github.com/v0xg/deskagent/internal/overlay"
	"go.uber.org/zap"
)

// Recorder is an executor.Observer. Action points arrive in target
// resolution coordinates and are scaled onto captured frames.
type Recorder struct {
	screen desktop.Screen
	target image.Point
	logger *zap.Logger

	mu      sync.Mutex
	frames  []image.Image
	markers []*overlay.Marker
}

// New records from screen. width and height are the resolution element
// boxes are expressed in.
func New(screen desktop.Screen, width, height int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		screen: screen,
		target: image.Pt(width, height),
		logger: logger.Named("recorder"),
	}
}

// Start captures the opening frame
func (r *Recorder) Start(ctx context.Context) error {
	img, err := r.screen.Capture(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture opening frame: %w", err)
	}
	r.add(img, nil)
	return nil
}

// Observe captures a frame after each action. Capture errors are logged and
// the frame skipped; recording never fails the run.
func (r *Recorder) Observe(ctx context.Context, ev executor.Event) {
	img, err := r.screen.Capture(ctx)
	if err != nil {
		r.logger.Warn("frame capture failed", zap.Int("index", ev.Index+1), zap.Error(err))
		return
	}

	var m *overlay.Marker
	if ev.Point != nil {
		m = &overlay.Marker{At: r.toFrame(*ev.Point, img.Bounds()), Click: true, Failed: ev.Err != nil}
	}
	r.add(img, m)
}

// Len returns the number of frames recorded so far
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Save draws markers onto the frames and writes the GIF to path
func (r *Recorder) Save(ctx context.Context, path string, opts gifgen.Options) (int64, error) {
	r.mu.Lock()
	frames := overlay.Apply(r.frames, r.markers)
	r.mu.Unlock()

	if len(frames) == 0 {
		return 0, fmt.Errorf("nothing recorded")
	}
	r.logger.Debug("saving recording", zap.Int("frames", len(frames)), zap.String("path", path))
	return gifgen.Generate(ctx, frames, path, opts)
}

func (r *Recorder) add(img image.Image, m *overlay.Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, img)
	r.markers = append(r.markers, m)
}

func (r *Recorder) toFrame(p image.Point, frame image.Rectangle) image.Point {
	if r.target.X <= 0 || r.target.Y <= 0 {
		return p.Add(frame.Min)
	}
	return image.Pt(
		frame.Min.X+p.X*frame.Dx()/r.target.X,
		frame.Min.Y+p.Y*frame.Dy()/r.target.Y,
	)
}
