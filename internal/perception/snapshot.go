package perception

import (
	"encoding/json"
	"fmt"
	"image"
)

// Snapshot is one observation of the screen returned by the grounding model
type Snapshot struct {
	Elements   []UIElement `json:"elements"`
	Resolution Resolution  `json:"resolution"`
}

// UIElement represents a detected element on screen
type UIElement struct {
	ID   int    `json:"id"`
	BBox BBox   `json:"bbox"`
	Text string `json:"text"`
	Kind string `json:"type"` // button, text_field, icon, ...
}

// BBox is an axis-aligned box in capture pixels, encoded as [x1, y1, x2, y2]
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Center returns the click target for the box. Integer division floors, so
// (0,0,1,1) maps to (0,0).
func (b BBox) Center() image.Point {
	return image.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Valid reports whether the corners are ordered.
func (b BBox) Valid() bool {
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("bbox needs 4 coordinates, got %d", len(coords))
	}
	*b = BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	return nil
}

// Resolution is the capture size, encoded as [width, height]
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Width, r.Height})
}

func (r *Resolution) UnmarshalJSON(data []byte) error {
	var dims []int
	if err := json.Unmarshal(data, &dims); err != nil {
		return err
	}
	if len(dims) != 2 {
		return fmt.Errorf("resolution needs 2 values, got %d", len(dims))
	}
	*r = Resolution{Width: dims[0], Height: dims[1]}
	return nil
}
