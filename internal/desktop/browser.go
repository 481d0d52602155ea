package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// BrowserOptions configures the browser backend
type BrowserOptions struct {
	URL        string
	Width      int
	Height     int
	Headless   bool
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
}

// Browser drives a single Chromium page whose viewport is the screen. The
// viewport is sized to the grounding resolution, so capture coordinates and
// input coordinates are the same.
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	logger  *zap.Logger
}

// OpenBrowser launches Chromium and opens opts.URL
func OpenBrowser(ctx context.Context, opts BrowserOptions, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	path, _ := launcher.LookPath()
	l := launcher.New().Context(ctx).Bin(path).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.URL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to open %s: %w", opts.URL, err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		browser.Close()
		return nil, fmt.Errorf("page load failed: %w", err)
	}

	// Don't hang on persistent connections (WebSockets, polling, etc.)
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	logger.Info("browser ready", zap.String("url", opts.URL), zap.Int("width", opts.Width), zap.Int("height", opts.Height))
	return &Browser{browser: browser, page: page, logger: logger}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() error {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// Capture screenshots the viewport
func (b *Browser) Capture(ctx context.Context) (image.Image, error) {
	data, err := b.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Click moves the mouse to p and clicks the left button
func (b *Browser) Click(ctx context.Context, p image.Point) error {
	mouse := b.page.Context(ctx).Mouse
	if err := mouse.MoveTo(proto.Point{X: float64(p.X), Y: float64(p.Y)}); err != nil {
		return fmt.Errorf("mouse move failed: %w", err)
	}
	if err := mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("mouse click failed: %w", err)
	}
	return nil
}

// TypeText inserts text into the focused element
func (b *Browser) TypeText(ctx context.Context, text string) error {
	return b.page.Context(ctx).InsertText(text)
}

// PressKey sends a key chord, holding modifiers around the key
func (b *Browser) PressKey(ctx context.Context, chord Chord) error {
	key, err := rodKey(chord.Key)
	if err != nil {
		return err
	}
	kb := b.page.Context(ctx).Keyboard

	var held []input.Key
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = kb.Release(held[i])
		}
	}()
	for _, m := range chord.Modifiers {
		mk, err := rodKey(m)
		if err != nil {
			return err
		}
		if err := kb.Press(mk); err != nil {
			return fmt.Errorf("key press %s failed: %w", m, err)
		}
		held = append(held, mk)
	}
	return kb.Type(key)
}

var rodKeys = map[string]input.Key{
	"enter":       input.Enter,
	"tab":         input.Tab,
	"escape":      input.Escape,
	"backspace":   input.Backspace,
	"delete":      input.Delete,
	"space":       input.Key(' '),
	"up":          input.ArrowUp,
	"down":        input.ArrowDown,
	"left":        input.ArrowLeft,
	"right":       input.ArrowRight,
	"home":        input.Home,
	"end":         input.End,
	"pageup":      input.PageUp,
	"pagedown":    input.PageDown,
	"insert":      input.Insert,
	"capslock":    input.CapsLock,
	"printscreen": input.PrintScreen,
	"numlock":     input.NumLock,
	"scrolllock":  input.ScrollLock,
	"pause":       input.Pause,
	"menu":        input.ContextMenu,
	"f1":          input.F1,
	"f2":          input.F2,
	"f3":          input.F3,
	"f4":          input.F4,
	"f5":          input.F5,
	"f6":          input.F6,
	"f7":          input.F7,
	"f8":          input.F8,
	"f9":          input.F9,
	"f10":         input.F10,
	"f11":         input.F11,
	"f12":         input.F12,
	"ctrl":        input.ControlLeft,
	"shift":       input.ShiftLeft,
	"alt":         input.AltLeft,
	"meta":        input.MetaLeft,
}

func rodKey(name string) (input.Key, error) {
	if k, ok := rodKeys[name]; ok {
		return k, nil
	}
	r := []rune(name)
	if len(r) == 1 {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("no browser key for %q", name)
}
