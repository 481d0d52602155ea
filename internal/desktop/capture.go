package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/nfnt/resize"
)

// CapturePNG grabs the screen and returns it PNG encoded at width x height,
// resampling with Lanczos when the native size differs.
func CapturePNG(ctx context.Context, s Screen, width, height int) ([]byte, error) {
	img, err := s.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	img = Scale(img, width, height)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Scale resizes img to width x height unless it already has that size.
func Scale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
}
