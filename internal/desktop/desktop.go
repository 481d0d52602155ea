// Package desktop captures the screen and simulates mouse and keyboard input.
//
// Two backends exist: an X11 desktop driven through xdotool and ImageMagick,
// and a Chromium page driven through rod whose viewport acts as the screen.
package desktop

import (
	"context"
	"fmt"
	"image"

	"github.com/v0xg/deskagent/internal/config"
	"go.uber.org/zap"
)

// Screen produces the current screen image.
type Screen interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Input injects mouse and keyboard events. Coordinates are in capture space,
// i.e. the resolution the grounding model saw.
type Input interface {
	Click(ctx context.Context, p image.Point) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, chord Chord) error
}

// Desktop is a backend that can both capture and inject input.
type Desktop interface {
	Screen
	Input
	Close() error
}

// Open starts the backend named by cfg.Screen.Backend.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Desktop, error) {
	switch cfg.Screen.Backend {
	case config.BackendX11:
		return NewX11(X11Options{Width: cfg.Grounding.Width, Height: cfg.Grounding.Height}, logger), nil
	case config.BackendBrowser:
		return OpenBrowser(ctx, BrowserOptions{
			URL:        cfg.Screen.BrowserURL,
			Width:      cfg.Grounding.Width,
			Height:     cfg.Grounding.Height,
			Headless:   cfg.Screen.Headless,
			ProfileDir: cfg.Screen.ProfileDir,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown screen backend: %s (supported: x11, browser)", cfg.Screen.Backend)
	}
}
