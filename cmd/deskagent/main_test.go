package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/deskagent/internal/failure"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExecuteCommandStopsAtUnknownElement(t *testing.T) {
	elements := writeFile(t, "elements.json", `{"1": [0, 0, 10, 10]}`)
	actions := writeFile(t, "actions.json", `{"actions": [{"type": "click", "element_id": 5}]}`)

	_, err := execute(t, "execute", "--backend", "x11", "--actions", actions, "--elements", elements)
	assert.ErrorIs(t, err, failure.PipelineFailed)
	assert.ErrorIs(t, err, failure.UnknownElement)
}

func TestExecuteCommandKeepsGateClosed(t *testing.T) {
	elements := writeFile(t, "elements.json", `{}`)
	actions := writeFile(t, "actions.json", `[{"type": "code", "language": "sh", "code": "exit 0"}]`)

	_, err := execute(t, "execute", "--backend", "x11", "--actions", actions, "--elements", elements)
	assert.ErrorIs(t, err, failure.SecurityGateClosed)
}

func TestExecuteCommandRejectsDuplicateSnapshotIDs(t *testing.T) {
	snapshot := writeFile(t, "snapshot.json", `{"elements": [
		{"id": 1, "bbox": [0, 0, 1, 1], "text": "", "type": "button"},
		{"id": 1, "bbox": [2, 2, 3, 3], "text": "", "type": "button"}
	], "resolution": [1920, 1080]}`)
	actions := writeFile(t, "actions.json", `[{"type": "press", "key": "enter"}]`)

	_, err := execute(t, "execute", "--backend", "x11", "--actions", actions, "--snapshot", snapshot)
	assert.ErrorIs(t, err, failure.PerceptionMalformed)
}

func TestExecuteCommandNeedsElementSource(t *testing.T) {
	actions := writeFile(t, "actions.json", `[]`)
	_, err := execute(t, "execute", "--actions", actions)
	assert.Error(t, err)
}

func TestUnknownProviderFlag(t *testing.T) {
	_, err := execute(t, "perceive", "--provider", "mystery")
	assert.ErrorContains(t, err, "unknown provider")
}
