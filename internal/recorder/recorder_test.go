package recorder

import (
	"context"
	"errors"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/gifgen"
	"github.com/v0xg/deskagent/internal/perception"
)

type fakeScreen struct {
	size  image.Point
	fail  bool
	shots int
}

func (s *fakeScreen) Capture(context.Context) (image.Image, error) {
	s.shots++
	if s.fail {
		return nil, errors.New("display closed")
	}
	return image.NewRGBA(image.Rectangle{Max: s.size}), nil
}

type nopInput struct{}

func (nopInput) Click(context.Context, image.Point) error      { return nil }
func (nopInput) TypeText(context.Context, string) error        { return nil }
func (nopInput) PressKey(context.Context, desktop.Chord) error { return nil }

func TestRecorderCapturesAfterEachAction(t *testing.T) {
	screen := &fakeScreen{size: image.Pt(200, 100)}
	rec := New(screen, 200, 100, nil)
	require.NoError(t, rec.Start(context.Background()))

	ex := executor.New(nopInput{}, executor.Config{}, executor.WithObserver(rec))
	elements := perception.ElementMap{1: {X1: 10, Y1: 10, X2: 30, Y2: 30}}
	err := ex.Execute(context.Background(), executor.Sequence{executor.Click(1), executor.Press("enter"), executor.Click(9)}, elements)
	require.Error(t, err)

	assert.Equal(t, 4, rec.Len(), "opening frame plus one per dispatched action")
	require.Len(t, rec.markers, 4)
	assert.Nil(t, rec.markers[0])
	require.NotNil(t, rec.markers[1])
	assert.Equal(t, image.Pt(20, 20), rec.markers[1].At)
	assert.False(t, rec.markers[1].Failed)
	assert.Nil(t, rec.markers[2], "press has no point")
	assert.Nil(t, rec.markers[3], "unknown element never resolved a point")
}

func TestRecorderScalesPointsToFrame(t *testing.T) {
	rec := New(&fakeScreen{size: image.Pt(3840, 2160)}, 1920, 1080, nil)
	p := image.Pt(200, 225)
	rec.Observe(context.Background(), executor.Event{Point: &p, Err: errors.New("click failed")})

	require.Len(t, rec.markers, 1)
	assert.Equal(t, image.Pt(400, 450), rec.markers[0].At)
	assert.True(t, rec.markers[0].Failed)
}

func TestRecorderSkipsFailedCaptures(t *testing.T) {
	screen := &fakeScreen{size: image.Pt(10, 10), fail: true}
	rec := New(screen, 10, 10, nil)

	assert.Error(t, rec.Start(context.Background()))
	rec.Observe(context.Background(), executor.Event{})
	assert.Equal(t, 2, screen.shots)
	assert.Zero(t, rec.Len())

	_, err := rec.Save(context.Background(), filepath.Join(t.TempDir(), "x.gif"), gifgen.Options{})
	assert.Error(t, err)
}

func TestRecorderSave(t *testing.T) {
	rec := New(&fakeScreen{size: image.Pt(64, 32)}, 64, 32, nil)
	require.NoError(t, rec.Start(context.Background()))
	p := image.Pt(10, 10)
	rec.Observe(context.Background(), executor.Event{Point: &p})

	path := filepath.Join(t.TempDir(), "run.gif")
	size, err := rec.Save(context.Background(), path, gifgen.Options{})
	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 2)
}
