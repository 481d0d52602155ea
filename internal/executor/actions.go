package executor

import (
	"encoding/json"
	"fmt"
)

// Action kinds understood by the executor
const (
	KindClick = "click"
	KindType  = "type"
	KindPress = "press"
	KindCode  = "code"
)

// Action represents a single desktop automation action. Type is kept as a
// plain string so that unknown kinds survive decoding and are rejected at
// execution time.
type Action struct {
	Type      string `json:"type"`                 // click, type, press, code
	ElementID *int   `json:"element_id,omitempty"` // Target element (click, type)
	Text      string `json:"text,omitempty"`       // Text to type (type)
	Key       string `json:"key,omitempty"`        // Key or chord such as "enter", "ctrl+s" (press)
	Language  string `json:"language,omitempty"`   // Interpreter for code actions
	Code      string `json:"code,omitempty"`       // Source for code actions
}

// Sequence is an ordered list of actions; order is execution order.
type Sequence []Action

// Click targets the center of element id
func Click(id int) Action {
	return Action{Type: KindClick, ElementID: &id}
}

// TypeInto clicks element id and types text
func TypeInto(id int, text string) Action {
	return Action{Type: KindType, ElementID: &id, Text: text}
}

// Press sends a single key or chord
func Press(key string) Action {
	return Action{Type: KindPress, Key: key}
}

// Code runs source under the named interpreter
func Code(language, source string) Action {
	return Action{Type: KindCode, Language: language, Code: source}
}

// MarshalJSON emits exactly the fields of the action's kind.
func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case KindClick:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ElementID *int   `json:"element_id"`
		}{a.Type, a.ElementID})
	case KindType:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ElementID *int   `json:"element_id"`
			Text      string `json:"text"`
		}{a.Type, a.ElementID, a.Text})
	case KindPress:
		return json.Marshal(struct {
			Type string `json:"type"`
			Key  string `json:"key"`
		}{a.Type, a.Key})
	case KindCode:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Language string `json:"language"`
			Code     string `json:"code"`
		}{a.Type, a.Language, a.Code})
	default:
		type plain Action
		return json.Marshal(plain(a))
	}
}

// String gives a short human readable form used in logs and CLI output
func (a Action) String() string {
	switch a.Type {
	case KindClick:
		return fmt.Sprintf("click → element %s", elementRef(a.ElementID))
	case KindType:
		return fmt.Sprintf("type → element %s (text: %q)", elementRef(a.ElementID), a.Text)
	case KindPress:
		return fmt.Sprintf("press → %s", a.Key)
	case KindCode:
		return fmt.Sprintf("code → %s (%d bytes)", a.Language, len(a.Code))
	default:
		return a.Type
	}
}

func elementRef(id *int) string {
	if id == nil {
		return "?"
	}
	return fmt.Sprint(*id)
}

// ParseSequence decodes either a bare JSON array of actions or an object with
// an "actions" array.
func ParseSequence(data []byte) (Sequence, error) {
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err == nil {
		return seq, nil
	}
	var wrapped struct {
		Actions *Sequence `json:"actions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse actions: %w", err)
	}
	if wrapped.Actions == nil {
		return nil, fmt.Errorf("failed to parse actions: missing \"actions\" array")
	}
	return *wrapped.Actions, nil
}
