package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/failure"
	"github.com/v0xg/deskagent/internal/perception"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a decision call when none is configured.
const DefaultTimeout = 60 * time.Second

// Decider turns an instruction and a snapshot into an action sequence. It
// checks only the shape of the reply; element ids are resolved at execution.
type Decider struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDecider wraps provider with a per-call timeout
func NewDecider(provider Provider, timeout time.Duration, logger *zap.Logger) *Decider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decider{provider: provider, timeout: timeout, logger: logger.Named("decision")}
}

// Decide asks the provider for actions. A failed call is DecisionUnavailable;
// a reply that is not an object with an "actions" array is DecisionMalformed.
func (d *Decider) Decide(ctx context.Context, instruction string, snap perception.Snapshot) (executor.Sequence, error) {
	user, err := buildUserPrompt(instruction, snap)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	raw, err := d.provider.Submit(callCtx, systemPrompt, user)
	if err != nil {
		return nil, failure.Wrap(failure.DecisionUnavailable, "provider call failed", err)
	}
	d.logger.Debug("decision received", zap.Duration("duration", time.Since(start)), zap.String("raw", raw))

	actions, err := parseDecision(raw)
	if err != nil {
		return nil, failure.Wrap(failure.DecisionMalformed, fmt.Sprintf("reply %q", truncate(raw, 200)), err)
	}
	d.logger.Info("decision parsed", zap.Int("actions", len(actions)), zap.Duration("duration", time.Since(start)))
	return actions, nil
}

// parseDecision finds the JSON object carrying "actions" in a reply that may
// hold prose or code fences and returns that array. Objects without an
// "actions" key are skipped; a reply that is itself a JSON array is rejected.
func parseDecision(response string) (executor.Sequence, error) {
	candidates, err := extractObjects(response)
	if err != nil {
		return nil, err
	}

	var firstErr error
	for _, candidate := range candidates {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to parse extracted JSON: %w", err)
			}
			continue
		}
		raw, ok := obj["actions"]
		if !ok {
			if firstErr == nil {
				firstErr = errors.New(`missing "actions" key`)
			}
			continue
		}
		return decodeActions(raw)
	}
	return nil, firstErr
}

func decodeActions(raw json.RawMessage) (executor.Sequence, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New(`"actions" is not an array`)
	}

	var actions executor.Sequence
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("failed to parse actions: %w", err)
	}
	if actions == nil {
		actions = executor.Sequence{}
	}
	return actions, nil
}

// extractObjects returns every top-level balanced {...} in response, in
// order. Braces inside JSON strings are ignored.
func extractObjects(response string) ([]string, error) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "[") {
		return nil, errors.New("reply is a JSON array, not an object")
	}
	if strings.HasPrefix(response, "{") && json.Valid([]byte(response)) {
		return []string{response}, nil
	}

	var objects []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				objects = append(objects, response[start:i+1])
			}
		}
	}

	if len(objects) == 0 {
		if depth > 0 {
			return nil, errors.New("no matching closing brace found")
		}
		return nil, errors.New("no JSON object found in response")
	}
	return objects, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
