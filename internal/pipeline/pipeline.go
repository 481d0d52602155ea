// Package pipeline chains perception, decision and execution into one run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/failure"
	"github.com/v0xg/deskagent/internal/logging"
	"github.com/v0xg/deskagent/internal/perception"
	"go.uber.org/zap"
)

// Stage names the step of a run that failed.
type Stage string

const (
	StagePerceive   Stage = "perceive"
	StageElementMap Stage = "element map"
	StageDecide     Stage = "decide"
	StageExecute    Stage = "execute"
)

// Error is returned for any failure inside the pipeline. It matches
// failure.PipelineFailed as well as every error in its cause chain.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() []error { return []error{failure.PipelineFailed, e.Err} }

// Perceiver observes the screen.
type Perceiver interface {
	Perceive(ctx context.Context, instruction string) (perception.Snapshot, error)
}

// Decider turns an instruction and a snapshot into actions.
type Decider interface {
	Decide(ctx context.Context, instruction string, snap perception.Snapshot) (executor.Sequence, error)
}

// Executor performs actions against an element map.
type Executor interface {
	Execute(ctx context.Context, actions executor.Sequence, elements perception.ElementMap) error
}

// ElementSource is anything an element map can be taken from: a Snapshot or
// an ElementMap.
type ElementSource interface {
	ElementMap() (perception.ElementMap, error)
}

// Pipeline holds no per-run state; concurrent runs each get their own
// snapshot and sequence.
type Pipeline struct {
	perceiver Perceiver
	decider   Decider
	executor  Executor
	logger    *zap.Logger
}

// New assembles a pipeline from its three stages
func New(p Perceiver, d Decider, e Executor, logger *zap.Logger) *Pipeline {
	return &Pipeline{perceiver: p, decider: d, executor: e, logger: logging.OrNop(logger).Named("pipeline")}
}

// Run perceives the screen, decides on actions and executes them, in that
// order. The first failure abandons the run. Results of stages that completed
// before the failure are still returned so the caller can inspect them.
func (p *Pipeline) Run(ctx context.Context, instruction string) (executor.Sequence, perception.Snapshot, error) {
	log := p.logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("run started", zap.String("instruction", instruction))
	start := time.Now()

	snap, err := p.perceive(ctx, log, instruction)
	if err != nil {
		return nil, perception.Snapshot{}, err
	}
	elements, err := perception.BuildElementMap(snap)
	if err != nil {
		return nil, snap, p.fail(log, StageElementMap, err)
	}
	actions, err := p.decide(ctx, log, instruction, snap)
	if err != nil {
		return nil, snap, err
	}
	if err := p.execute(ctx, log, actions, elements); err != nil {
		return actions, snap, err
	}

	log.Info("run finished", zap.Int("actions", len(actions)), zap.Duration("duration", time.Since(start)))
	return actions, snap, nil
}

// PerceiveOnly returns a fresh snapshot.
func (p *Pipeline) PerceiveOnly(ctx context.Context, instruction string) (perception.Snapshot, error) {
	return p.perceive(ctx, p.logger, instruction)
}

// DecideOnly decides against snap, perceiving first when snap is nil.
func (p *Pipeline) DecideOnly(ctx context.Context, instruction string, snap *perception.Snapshot) (executor.Sequence, error) {
	if snap == nil {
		fresh, err := p.perceive(ctx, p.logger, instruction)
		if err != nil {
			return nil, err
		}
		snap = &fresh
	}
	return p.decide(ctx, p.logger, instruction, *snap)
}

// ExecuteOnly executes actions against the element map taken from src.
func (p *Pipeline) ExecuteOnly(ctx context.Context, actions executor.Sequence, src ElementSource) error {
	if src == nil {
		return p.fail(p.logger, StageElementMap, fmt.Errorf("no snapshot or element map given"))
	}
	elements, err := src.ElementMap()
	if err != nil {
		return p.fail(p.logger, StageElementMap, err)
	}
	return p.execute(ctx, p.logger, actions, elements)
}

func (p *Pipeline) perceive(ctx context.Context, log *zap.Logger, instruction string) (perception.Snapshot, error) {
	start := time.Now()
	snap, err := p.perceiver.Perceive(ctx, instruction)
	if err != nil {
		return perception.Snapshot{}, p.fail(log, StagePerceive, err)
	}
	log.Info("perceived", zap.Int("elements", len(snap.Elements)), zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func (p *Pipeline) decide(ctx context.Context, log *zap.Logger, instruction string, snap perception.Snapshot) (executor.Sequence, error) {
	start := time.Now()
	actions, err := p.decider.Decide(ctx, instruction, snap)
	if err != nil {
		return nil, p.fail(log, StageDecide, err)
	}
	log.Info("decided", zap.Int("actions", len(actions)), zap.Duration("duration", time.Since(start)))
	return actions, nil
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger, actions executor.Sequence, elements perception.ElementMap) error {
	start := time.Now()
	if err := p.executor.Execute(ctx, actions, elements); err != nil {
		return p.fail(log, StageExecute, err)
	}
	log.Info("executed", zap.Int("actions", len(actions)), zap.Duration("duration", time.Since(start)))
	return nil
}

func (p *Pipeline) fail(log *zap.Logger, stage Stage, err error) error {
	log.Warn("stage failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(failure.KindOf(err))),
		zap.Error(err),
	)
	return &Error{Stage: stage, Err: err}
}
