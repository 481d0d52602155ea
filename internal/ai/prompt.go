package ai

import (
	"encoding/json"
	"fmt"

	"github.com/v0xg/deskagent/internal/perception"
)

const systemPrompt = `You are a desktop automation agent. Your task is to convert a natural language task into precise desktop actions.

You will receive:
1. The task to perform
2. The UI elements currently on screen, each with an id, a bounding box [x1, y1, x2, y2], its text and its type

Output a JSON object with a single key "actions" holding an ordered array of actions. Each action is one of:
- {"type": "click", "element_id": <id>}
- {"type": "type", "element_id": <id>, "text": "<text to type>"}
- {"type": "press", "key": "<key>"}  (for example "enter", "tab", "escape", "ctrl+s")
- {"type": "code", "language": "python", "code": "<source>"}

Guidelines:
- Use only element_id values from the provided UI elements
- "type" clicks the element before typing, so no separate click is needed
- Use "code" only when the task cannot be done through the UI
- Keep the sequence minimal but complete
- If nothing needs to be done, return {"actions": []}

Example output:
{"actions": [
  {"type": "type", "element_id": 3, "text": "hello"},
  {"type": "press", "key": "enter"}
]}

Respond ONLY with the JSON object, no explanation or markdown.`

// buildUserPrompt serializes the full snapshot so the model can reference
// element ids. The output depends only on its inputs.
func buildUserPrompt(instruction string, snap perception.Snapshot) (string, error) {
	snapJSON, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return "Task: " + instruction + "\n\nUI Elements:\n" + string(snapJSON), nil
}
