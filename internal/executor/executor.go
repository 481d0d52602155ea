package executor

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/failure"
	"github.com/v0xg/deskagent/internal/perception"
	"go.uber.org/zap"
)

// Config is fixed for the executor's lifetime. The zero value keeps the
// security gate closed.
type Config struct {
	SecurityGateOpen bool
	CodeTimeout      time.Duration
}

// Event describes one dispatched action
type Event struct {
	Index  int
	Action Action
	Point  *image.Point // Click target for click and type actions
	Output *Output      // Result of a code action
	Err    error
}

// Observer is notified after every dispatched action, successful or not
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// StepError reports which action stopped the sequence
type StepError struct {
	Index  int
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index+1, e.Action.Type, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor dispatches actions to input simulation or the code runner. It
// holds no per-run state, so one Executor may serve many sequential runs.
type Executor struct {
	input     desktop.Input
	runner    CodeRunner
	cfg       Config
	observers []Observer
	logger    *zap.Logger
}

// Option customizes an Executor
type Option func(*Executor)

// WithObserver registers an observer
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithCodeRunner replaces the process based code runner
func WithCodeRunner(r CodeRunner) Option {
	return func(e *Executor) { e.runner = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an executor that sends input to in
func New(in desktop.Input, cfg Config, opts ...Option) *Executor {
	e := &Executor{input: in, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("executor")
	if e.runner == nil {
		e.runner = NewProcessRunner(e.logger)
	}
	return e
}

// Config returns the executor's immutable configuration
func (e *Executor) Config() Config { return e.cfg }

// Execute runs actions strictly in order against elements. It stops at the
// first failing action and returns a *StepError; effects of earlier actions
// are not undone. Cancellation is checked between actions.
func (e *Executor) Execute(ctx context.Context, actions Sequence, elements perception.ElementMap) error {
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled before action %d: %w", i+1, err)
		}

		e.logger.Info("action started",
			zap.Int("index", i+1),
			zap.Int("total", len(actions)),
			zap.Stringer("action", action),
		)
		start := time.Now()
		ev := e.dispatch(ctx, action, elements)
		ev.Index = i
		ev.Action = action

		for _, o := range e.observers {
			o.Observe(ctx, ev)
		}

		if ev.Err != nil {
			e.logger.Warn("action failed",
				zap.Int("index", i+1),
				zap.String("type", action.Type),
				zap.String("kind", string(failure.KindOf(ev.Err))),
				zap.Error(ev.Err),
			)
			return &StepError{Index: i, Action: action, Err: ev.Err}
		}
		e.logger.Debug("action done", zap.Int("index", i+1), zap.Duration("duration", time.Since(start)))
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, action Action, elements perception.ElementMap) Event {
	switch action.Type {
	case KindClick:
		p, err := resolve(action, elements)
		if err != nil {
			return Event{Err: err}
		}
		if err := e.input.Click(ctx, p); err != nil {
			return Event{Point: &p, Err: fmt.Errorf("click at (%d,%d): %w", p.X, p.Y, err)}
		}
		return Event{Point: &p}

	case KindType:
		p, err := resolve(action, elements)
		if err != nil {
			return Event{Err: err}
		}
		if err := e.input.Click(ctx, p); err != nil {
			return Event{Point: &p, Err: fmt.Errorf("click at (%d,%d): %w", p.X, p.Y, err)}
		}
		if err := e.input.TypeText(ctx, action.Text); err != nil {
			return Event{Point: &p, Err: fmt.Errorf("type text: %w", err)}
		}
		return Event{Point: &p}

	case KindPress:
		if strings.TrimSpace(action.Key) == "" {
			return Event{Err: failure.New(failure.InvalidAction, "press needs a key")}
		}
		chord, err := desktop.ParseKey(action.Key)
		if err != nil {
			return Event{Err: failure.Wrap(failure.InvalidAction, "press", err)}
		}
		if err := e.input.PressKey(ctx, chord); err != nil {
			return Event{Err: fmt.Errorf("press %s: %w", chord, err)}
		}
		return Event{}

	case KindCode:
		// The gate is enforced here and nowhere else.
		if !e.cfg.SecurityGateOpen {
			return Event{Err: failure.New(failure.SecurityGateClosed, "local code execution is disabled")}
		}
		out, err := e.runner.Run(ctx, action.Language, action.Code, e.cfg.CodeTimeout)
		if out != nil && out.Stdout != "" {
			e.logger.Info("code output", zap.String("language", action.Language), zap.String("stdout", out.Stdout))
		}
		return Event{Output: out, Err: err}

	default:
		return Event{Err: failure.New(failure.UnsupportedAction, fmt.Sprintf("unknown action type %q", action.Type))}
	}
}

func resolve(action Action, elements perception.ElementMap) (image.Point, error) {
	if action.ElementID == nil {
		return image.Point{}, failure.New(failure.InvalidAction, action.Type+" needs an element_id")
	}
	box, ok := elements.Lookup(*action.ElementID)
	if !ok {
		return image.Point{}, failure.New(failure.UnknownElement, fmt.Sprintf("element %d is not in the element map", *action.ElementID))
	}
	return box.Center(), nil
}
