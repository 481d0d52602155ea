package executor

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/failure"
	"github.com/v0xg/deskagent/internal/perception"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type inputCall struct {
	op    string
	point image.Point
	text  string
}

type fakeInput struct {
	calls   []inputCall
	failOn  string
	failErr error
}

func (f *fakeInput) record(c inputCall) error {
	f.calls = append(f.calls, c)
	if f.failOn == c.op {
		return f.failErr
	}
	return nil
}

func (f *fakeInput) Click(_ context.Context, p image.Point) error {
	return f.record(inputCall{op: "click", point: p})
}

func (f *fakeInput) TypeText(_ context.Context, text string) error {
	return f.record(inputCall{op: "type", text: text})
}

func (f *fakeInput) PressKey(_ context.Context, chord desktop.Chord) error {
	return f.record(inputCall{op: "press", text: chord.String()})
}

type fakeRunner struct {
	calls int
	out   *Output
	err   error
}

func (r *fakeRunner) Run(context.Context, string, string, time.Duration) (*Output, error) {
	r.calls++
	return r.out, r.err
}

func elementMap() perception.ElementMap {
	return perception.ElementMap{
		1: {X1: 100, Y1: 200, X2: 300, Y2: 250},
		2: {X1: 400, Y1: 400, X2: 800, Y2: 600},
	}
}

func TestExecuteRunsSequenceInOrder(t *testing.T) {
	in := &fakeInput{}
	ex := New(in, Config{})

	err := ex.Execute(context.Background(), Sequence{Click(1), TypeInto(2, "hi"), Press("enter")}, elementMap())
	require.NoError(t, err)

	assert.Equal(t, []inputCall{
		{op: "click", point: image.Point{X: 200, Y: 225}},
		{op: "click", point: image.Point{X: 600, Y: 500}},
		{op: "type", text: "hi"},
		{op: "press", text: "enter"},
	}, in.calls)
}

func TestExecuteStopsAtUnknownElementWithoutRollback(t *testing.T) {
	in := &fakeInput{}
	ex := New(in, Config{})
	only1 := perception.ElementMap{1: {X1: 100, Y1: 200, X2: 300, Y2: 250}}

	err := ex.Execute(context.Background(), Sequence{Click(1), TypeInto(2, "hi"), Press("enter")}, only1)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.UnknownElement)

	var step *StepError
	require.ErrorAs(t, err, &step)
	assert.Equal(t, 1, step.Index)
	assert.Equal(t, KindType, step.Action.Type)

	// The first click already happened; nothing after the failure ran.
	assert.Equal(t, []inputCall{{op: "click", point: image.Point{X: 200, Y: 225}}}, in.calls)
}

func TestUnknownElementIffAbsent(t *testing.T) {
	m := elementMap()
	for _, id := range []int{0, 1, 2, 3, -1} {
		for _, action := range []Action{Click(id), TypeInto(id, "x")} {
			err := New(&fakeInput{}, Config{}).Execute(context.Background(), Sequence{action}, m)
			_, present := m[id]
			if present {
				assert.NoError(t, err, "%s", action)
			} else {
				assert.ErrorIs(t, err, failure.UnknownElement, "%s", action)
			}
		}
	}
}

func TestMissingElementIDIsInvalid(t *testing.T) {
	err := New(&fakeInput{}, Config{}).Execute(context.Background(), Sequence{{Type: KindClick}}, elementMap())
	assert.ErrorIs(t, err, failure.InvalidAction)
}

func TestPressValidation(t *testing.T) {
	in := &fakeInput{}
	ex := New(in, Config{})

	assert.ErrorIs(t, ex.Execute(context.Background(), Sequence{Press("")}, nil), failure.InvalidAction)
	assert.ErrorIs(t, ex.Execute(context.Background(), Sequence{Press("  ")}, nil), failure.InvalidAction)
	assert.ErrorIs(t, ex.Execute(context.Background(), Sequence{Press("hyperspace")}, nil), failure.InvalidAction)
	assert.Empty(t, in.calls)

	require.NoError(t, ex.Execute(context.Background(), Sequence{Press("ctrl+s")}, nil))
	assert.Equal(t, []inputCall{{op: "press", text: "ctrl+s"}}, in.calls)
}

func TestPressAcceptsFunctionAndLockKeys(t *testing.T) {
	in := &fakeInput{}
	ex := New(in, Config{})

	keys := []string{"f5", "F11", "insert", "capslock", "printscreen", "numlock", "scrolllock", "pause", "ctrl+f4", "alt+tab"}
	for _, k := range keys {
		require.NoError(t, ex.Execute(context.Background(), Sequence{Press(k)}, nil), k)
	}
	assert.Equal(t, []inputCall{
		{op: "press", text: "f5"},
		{op: "press", text: "f11"},
		{op: "press", text: "insert"},
		{op: "press", text: "capslock"},
		{op: "press", text: "printscreen"},
		{op: "press", text: "numlock"},
		{op: "press", text: "scrolllock"},
		{op: "press", text: "pause"},
		{op: "press", text: "ctrl+f4"},
		{op: "press", text: "alt+tab"},
	}, in.calls)
}

func TestCodeBlockedWhenGateClosed(t *testing.T) {
	runner := &fakeRunner{out: &Output{}}
	for _, code := range []Action{
		Code("python", "print('hi')"),
		Code("sh", "rm -rf /tmp/nothing"),
		Code("cobol", ""),
		{Type: KindCode},
	} {
		err := New(&fakeInput{}, Config{SecurityGateOpen: false}, WithCodeRunner(runner)).
			Execute(context.Background(), Sequence{code}, nil)
		assert.ErrorIs(t, err, failure.SecurityGateClosed)
	}
	assert.Zero(t, runner.calls, "runner must never be reached with the gate closed")
}

func TestZeroConfigKeepsGateClosed(t *testing.T) {
	runner := &fakeRunner{out: &Output{}}
	err := New(&fakeInput{}, Config{}, WithCodeRunner(runner)).
		Execute(context.Background(), Sequence{Code("python", "print(1)")}, nil)
	assert.ErrorIs(t, err, failure.SecurityGateClosed)
	assert.False(t, New(nil, Config{}).Config().SecurityGateOpen)
}

func TestCodeRunsWhenGateOpen(t *testing.T) {
	runner := &fakeRunner{out: &Output{Stdout: "42\n"}}
	var events []Event
	ex := New(&fakeInput{}, Config{SecurityGateOpen: true, CodeTimeout: time.Second},
		WithCodeRunner(runner),
		WithObserver(ObserverFunc(func(_ context.Context, ev Event) { events = append(events, ev) })),
	)

	require.NoError(t, ex.Execute(context.Background(), Sequence{Code("python", "print(42)")}, nil))
	assert.Equal(t, 1, runner.calls)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Output)
	assert.Equal(t, "42\n", events[0].Output.Stdout)
}

func TestCodeRunnerErrorStopsSequence(t *testing.T) {
	in := &fakeInput{}
	runner := &fakeRunner{err: failure.New(failure.CodeTimeout, "slow")}
	ex := New(in, Config{SecurityGateOpen: true}, WithCodeRunner(runner))

	err := ex.Execute(context.Background(), Sequence{Code("python", "x"), Click(1)}, elementMap())
	assert.ErrorIs(t, err, failure.CodeTimeout)
	assert.Empty(t, in.calls)
}

func TestUnsupportedActionAlwaysFatal(t *testing.T) {
	for _, gate := range []bool{false, true} {
		in := &fakeInput{}
		runner := &fakeRunner{out: &Output{}}
		ex := New(in, Config{SecurityGateOpen: gate}, WithCodeRunner(runner))

		err := ex.Execute(context.Background(), Sequence{{Type: "scroll"}, Click(1)}, elementMap())
		assert.ErrorIs(t, err, failure.UnsupportedAction, "gate=%v", gate)
		assert.Empty(t, in.calls)
		assert.Zero(t, runner.calls)
	}
}

func TestInputErrorStopsSequence(t *testing.T) {
	boom := errors.New("xdotool: not found")
	in := &fakeInput{failOn: "type", failErr: boom}

	err := New(in, Config{}).Execute(context.Background(), Sequence{TypeInto(1, "a"), Press("enter")}, elementMap())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, in.calls, 2)
}

func TestCancellationBetweenActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := &fakeInput{}
	ex := New(in, Config{}, WithObserver(ObserverFunc(func(context.Context, Event) { cancel() })))

	err := ex.Execute(ctx, Sequence{Click(1), Click(2)}, elementMap())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, in.calls, 1)
}

func TestObserverSeesFailures(t *testing.T) {
	var events []Event
	ex := New(&fakeInput{}, Config{}, WithObserver(ObserverFunc(func(_ context.Context, ev Event) {
		events = append(events, ev)
	})))

	_ = ex.Execute(context.Background(), Sequence{Click(1), Click(9)}, elementMap())

	require.Len(t, events, 2)
	assert.Equal(t, 0, events[0].Index)
	require.NotNil(t, events[0].Point)
	assert.Equal(t, image.Point{X: 200, Y: 225}, *events[0].Point)
	assert.NoError(t, events[0].Err)
	assert.Equal(t, 1, events[1].Index)
	assert.ErrorIs(t, events[1].Err, failure.UnknownElement)
}

func TestEmptySequence(t *testing.T) {
	assert.NoError(t, New(&fakeInput{}, Config{}).Execute(context.Background(), nil, nil))
}

func TestExecuteLogsStructuredSteps(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ex := New(&fakeInput{}, Config{}, WithLogger(zap.New(core)))

	require.NoError(t, ex.Execute(context.Background(), Sequence{Click(1), Press("enter")}, elementMap()))

	started := logs.FilterMessage("action started").All()
	require.Len(t, started, 2)
	fields := started[1].ContextMap()
	assert.Equal(t, int64(2), fields["index"])
	assert.Equal(t, int64(2), fields["total"])
	assert.Equal(t, Press("enter").String(), fields["action"])
}
