// Package overlay draws action markers onto recorded frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Marker is what gets drawn on a frame: the pointer position and whether an
// action clicked or failed there.
type Marker struct {
	At     image.Point
	Click  bool
	Failed bool
}

var (
	outline = color.RGBA{0, 0, 0, 255}
	fill    = color.RGBA{255, 255, 255, 255}
	ripple  = color.RGBA{66, 133, 244, 255}
	failed  = color.RGBA{219, 68, 55, 255}
)

// rippleRadius is the click ring radius in frame pixels
const rippleRadius = 15

// Apply returns a copy of each frame with its marker drawn. A nil marker
// leaves the frame untouched. markers may be shorter than frames.
func Apply(frames []image.Image, markers []*Marker) []image.Image {
	out := make([]image.Image, len(frames))
	for i, frame := range frames {
		if i < len(markers) && markers[i] != nil {
			out[i] = Draw(frame, *markers[i])
		} else {
			out[i] = frame
		}
	}
	return out
}

// Draw copies frame and draws m onto the copy
func Draw(frame image.Image, m Marker) *image.RGBA {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	if m.Click || m.Failed {
		c := ripple
		if m.Failed {
			c = failed
		}
		drawRing(dst, m.At, rippleRadius, c)
	}
	drawPointer(dst, m.At)
	return dst
}

// pointerOutline is the arrow polygon relative to its tip
var pointerOutline = []image.Point{
	{0, 0}, {0, 16}, {4, 12}, {7, 18}, {10, 17}, {7, 11}, {12, 11},
}

func drawPointer(img *image.RGBA, tip image.Point) {
	for dy := 0; dy <= 16; dy++ {
		for dx := 0; dx <= 12; dx++ {
			if insidePointer(dx, dy) {
				setPixel(img, tip.X+dx, tip.Y+dy, fill)
			}
		}
	}
	for i, p := range pointerOutline {
		q := pointerOutline[(i+1)%len(pointerOutline)]
		drawLine(img, tip.Add(p), tip.Add(q), outline)
	}
}

// insidePointer approximates the arrow as a triangle over a short shaft.
func insidePointer(dx, dy int) bool {
	switch {
	case dx < 0 || dy < 0 || dy > 16:
		return false
	case dy <= 11:
		return dx <= dy*12/16
	default:
		return dx <= 4
	}
}

// drawLine is Bresenham's algorithm
func drawLine(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx, dy := abs(b.X-a.X), abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx - dy
	for {
		setPixel(img, a.X, a.Y, c)
		if a == b {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			a.X += sx
		}
		if e2 < dx {
			err += dx
			a.Y += sy
		}
	}
}

func drawRing(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	for deg := 0; deg < 360; deg++ {
		rad := float64(deg) * math.Pi / 180
		x := center.X + int(math.Round(float64(radius)*math.Cos(rad)))
		y := center.Y + int(math.Round(float64(radius)*math.Sin(rad)))
		setPixel(img, x, y, c)
		setPixel(img, x+1, y, c)
		setPixel(img, x, y+1, c)
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
