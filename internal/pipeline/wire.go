package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/v0xg/deskagent/internal/ai"
	"github.com/v0xg/deskagent/internal/config"
	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/failure"
	"github.com/v0xg/deskagent/internal/logging"
	"github.com/v0xg/deskagent/internal/perception"
	"go.uber.org/zap"
)

// Build wires every stage from cfg onto an opened desktop. The security gate
// is read from cfg here, once, and copied into the executor. dt may be nil
// when only DecideOnly with a snapshot will be called.
func Build(cfg config.Config, dt desktop.Desktop, logger *zap.Logger, observers ...executor.Observer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrNop(logger)

	perceiver := perception.NewClient(perception.Options{
		URL:     cfg.Grounding.URL,
		Model:   cfg.Grounding.Model,
		APIKey:  cfg.Grounding.APIKey,
		Width:   cfg.Grounding.Width,
		Height:  cfg.Grounding.Height,
		Timeout: cfg.Grounding.Timeout,
	}, dt, logger)

	decider := &lazyDecider{cfg: cfg.LLM, logger: logger}

	opts := []executor.Option{executor.WithLogger(logger)}
	for _, o := range observers {
		opts = append(opts, executor.WithObserver(o))
	}
	exec := executor.New(dt, ExecutorConfig(cfg), opts...)

	logger.Debug("pipeline wired",
		zap.String("provider", string(cfg.LLM.Provider)),
		zap.String("model", cfg.LLM.Model),
		zap.String("backend", string(cfg.Screen.Backend)),
		zap.Bool("local_code", cfg.Execution.EnableLocalCode),
	)
	return New(perceiver, decider, exec, logger), nil
}

// ExecutorConfig derives the executor's immutable settings from cfg.
func ExecutorConfig(cfg config.Config) executor.Config {
	return executor.Config{
		SecurityGateOpen: cfg.Execution.EnableLocalCode,
		CodeTimeout:      cfg.Execution.CodeTimeout,
	}
}

// lazyDecider creates the provider on first use, so perceive and execute
// need no LLM credentials.
type lazyDecider struct {
	cfg    config.LLMConfig
	logger *zap.Logger

	once    sync.Once
	decider *ai.Decider
	err     error
}

func (l *lazyDecider) Decide(ctx context.Context, instruction string, snap perception.Snapshot) (executor.Sequence, error) {
	l.once.Do(func() {
		provider, err := ai.NewProvider(ctx, l.cfg)
		if err != nil {
			l.err = failure.Wrap(failure.DecisionUnavailable, "AI provider init failed", err)
			return
		}
		l.decider = ai.NewDecider(provider, l.cfg.Timeout, l.logger)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.decider.Decide(ctx, instruction, snap)
}
