package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// X11Options configures the X11 backend. Width and Height are the capture
// resolution sent to the grounding model; clicks are scaled from that space
// to the native display geometry.
type X11Options struct {
	Width  int
	Height int
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// X11 drives the local X display with xdotool and captures it with
// ImageMagick's import.
type X11 struct {
	opts   X11Options
	run    commandRunner
	logger *zap.Logger
}

// NewX11 returns an X11 backend. Tool availability is checked on first use.
func NewX11(opts X11Options, logger *zap.Logger) *X11 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &X11{opts: opts, run: runCommand, logger: logger.Named("x11")}
}

func (x *X11) Close() error { return nil }

// Capture grabs the root window.
func (x *X11) Capture(ctx context.Context) (image.Image, error) {
	out, err := x.run(ctx, "import", "-window", "root", "png:-")
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Click maps p from capture space to the display and clicks there.
func (x *X11) Click(ctx context.Context, p image.Point) error {
	native, err := x.geometry(ctx)
	if err != nil {
		return err
	}
	target := x.toNative(p, native)
	x.logger.Debug("click", zap.Int("x", target.X), zap.Int("y", target.Y))
	_, err = x.run(ctx, "xdotool", "mousemove", "--sync", strconv.Itoa(target.X), strconv.Itoa(target.Y), "click", "1")
	return err
}

// TypeText types text into the focused window.
func (x *X11) TypeText(ctx context.Context, text string) error {
	_, err := x.run(ctx, "xdotool", "type", "--delay", "12", "--", text)
	return err
}

// PressKey sends a chord through xdotool key.
func (x *X11) PressKey(ctx context.Context, chord Chord) error {
	if len(chord.Modifiers) == 0 && !namedKeys[chord.Key] {
		// Literal characters go through type so punctuation needs no keysym.
		return x.TypeText(ctx, chord.Key)
	}
	parts := make([]string, 0, len(chord.Modifiers)+1)
	for _, m := range chord.Modifiers {
		parts = append(parts, x11Keysyms[m])
	}
	if sym, ok := x11Keysyms[chord.Key]; ok {
		parts = append(parts, sym)
	} else {
		parts = append(parts, chord.Key)
	}
	_, err := x.run(ctx, "xdotool", "key", "--clearmodifiers", strings.Join(parts, "+"))
	return err
}

func (x *X11) geometry(ctx context.Context) (image.Point, error) {
	out, err := x.run(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		return image.Point{}, err
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return image.Point{}, fmt.Errorf("unexpected display geometry %q", strings.TrimSpace(string(out)))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil {
		return image.Point{}, fmt.Errorf("unexpected display geometry %q", strings.TrimSpace(string(out)))
	}
	return image.Point{X: w, Y: h}, nil
}

func (x *X11) toNative(p image.Point, native image.Point) image.Point {
	if x.opts.Width <= 0 || x.opts.Height <= 0 || (native.X == x.opts.Width && native.Y == x.opts.Height) {
		return p
	}
	return image.Point{
		X: p.X * native.X / x.opts.Width,
		Y: p.Y * native.Y / x.opts.Height,
	}
}

var x11Keysyms = map[string]string{
	"enter":       "Return",
	"tab":         "Tab",
	"escape":      "Escape",
	"backspace":   "BackSpace",
	"delete":      "Delete",
	"space":       "space",
	"up":          "Up",
	"down":        "Down",
	"left":        "Left",
	"right":       "Right",
	"home":        "Home",
	"end":         "End",
	"pageup":      "Prior",
	"pagedown":    "Next",
	"insert":      "Insert",
	"capslock":    "Caps_Lock",
	"printscreen": "Print",
	"numlock":     "Num_Lock",
	"scrolllock":  "Scroll_Lock",
	"pause":       "Pause",
	"menu":        "Menu",
	"ctrl":        "ctrl",
	"shift":       "shift",
	"alt":         "alt",
	"meta":        "super",
}

func init() {
	for i := 1; i <= 24; i++ {
		x11Keysyms[fmt.Sprintf("f%d", i)] = fmt.Sprintf("F%d", i)
	}
}
