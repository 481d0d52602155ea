package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/failure"
	"go.uber.org/zap"
)

// DefaultInstruction is sent when the caller has no task text.
const DefaultInstruction = "Describe all UI elements with bounding boxes and text."

// Options configures the grounding endpoint
type Options struct {
	URL     string
	Model   string
	APIKey  string
	Width   int
	Height  int
	Timeout time.Duration
}

// Client captures the screen and asks the grounding model for its elements.
// It keeps no state between calls.
type Client struct {
	opts   Options
	screen desktop.Screen
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a grounding client that captures from screen
func NewClient(opts Options, screen desktop.Screen, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Client{
		opts:   opts,
		screen: screen,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.Named("perception"),
	}
}

// Perceive captures the screen and returns the grounded snapshot. Transport
// and status failures are PerceptionUnavailable; an unusable body is
// PerceptionMalformed.
func (c *Client) Perceive(ctx context.Context, instruction string) (Snapshot, error) {
	png, err := desktop.CapturePNG(ctx, c.screen, c.opts.Width, c.opts.Height)
	if err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "capture", err)
	}
	return c.Ground(ctx, png, instruction)
}

// Ground sends an already captured PNG to the grounding endpoint.
func (c *Client) Ground(ctx context.Context, png []byte, instruction string) (Snapshot, error) {
	if instruction == "" {
		instruction = DefaultInstruction
	}

	body, contentType, err := c.buildForm(png, instruction)
	if err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "build request", err)
	}

	endpoint := c.opts.URL + "/ground"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "POST "+endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Snapshot{}, failure.Wrap(failure.PerceptionUnavailable, "POST "+endpoint,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		return Snapshot{}, err
	}

	c.logger.Info("grounding complete",
		zap.Int("elements", len(snap.Elements)),
		zap.Int("width", snap.Resolution.Width),
		zap.Int("height", snap.Resolution.Height),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

func (c *Client) buildForm(png []byte, instruction string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="screen.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(png); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", c.opts.Model},
		{"width", strconv.Itoa(c.opts.Width)},
		{"height", strconv.Itoa(c.opts.Height)},
		{"instruction", instruction},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type wireElement struct {
	ID   *int   `json:"id"`
	BBox *BBox  `json:"bbox"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type wireSnapshot struct {
	Elements   *[]wireElement `json:"elements"`
	Resolution *Resolution    `json:"resolution"`
}

// ParseSnapshot decodes a grounding response. Every element needs an id and a
// well-ordered bbox, ids must be unique, and the resolution must be present.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, failure.Wrap(failure.PerceptionMalformed, "decode response", err)
	}
	if w.Elements == nil {
		return Snapshot{}, failure.New(failure.PerceptionMalformed, "missing elements")
	}
	if w.Resolution == nil {
		return Snapshot{}, failure.New(failure.PerceptionMalformed, "missing resolution")
	}

	snap := Snapshot{
		Elements:   make([]UIElement, 0, len(*w.Elements)),
		Resolution: *w.Resolution,
	}
	for i, el := range *w.Elements {
		if el.ID == nil {
			return Snapshot{}, failure.New(failure.PerceptionMalformed, fmt.Sprintf("element %d has no id", i))
		}
		if el.BBox == nil {
			return Snapshot{}, failure.New(failure.PerceptionMalformed, fmt.Sprintf("element %d has no bbox", *el.ID))
		}
		if !el.BBox.Valid() {
			return Snapshot{}, failure.New(failure.PerceptionMalformed, fmt.Sprintf("element %d has inverted bbox %v", *el.ID, *el.BBox))
		}
		snap.Elements = append(snap.Elements, UIElement{ID: *el.ID, BBox: *el.BBox, Text: el.Text, Kind: el.Type})
	}

	if _, err := BuildElementMap(snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
