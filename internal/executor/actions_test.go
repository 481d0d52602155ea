package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionJSONCarriesOnlyItsFields(t *testing.T) {
	tests := map[string]struct {
		action Action
		want   string
	}{
		"click": {Click(3), `{"type":"click","element_id":3}`},
		"type":  {TypeInto(2, "hello"), `{"type":"type","element_id":2,"text":"hello"}`},
		"press": {Press("ctrl+s"), `{"type":"press","key":"ctrl+s"}`},
		"code":  {Code("python", "print(1)"), `{"type":"code","language":"python","code":"print(1)"}`},
		"other": {Action{Type: "scroll", Text: "down"}, `{"type":"scroll","text":"down"}`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(tc.action)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestParseSequence(t *testing.T) {
	want := Sequence{Click(1), TypeInto(2, "hi"), Press("enter")}

	t.Run("array", func(t *testing.T) {
		seq, err := ParseSequence([]byte(`[
			{"type":"click","element_id":1},
			{"type":"type","element_id":2,"text":"hi"},
			{"type":"press","key":"enter"}
		]`))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	})

	t.Run("object", func(t *testing.T) {
		seq, err := ParseSequence([]byte(`{"actions":[
			{"type":"click","element_id":1},
			{"type":"type","element_id":2,"text":"hi"},
			{"type":"press","key":"enter"}
		]}`))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	})

	t.Run("empty", func(t *testing.T) {
		seq, err := ParseSequence([]byte(`{"actions":[]}`))
		require.NoError(t, err)
		assert.Empty(t, seq)
	})

	t.Run("unknown type survives", func(t *testing.T) {
		seq, err := ParseSequence([]byte(`[{"type":"scroll"}]`))
		require.NoError(t, err)
		require.Len(t, seq, 1)
		assert.Equal(t, "scroll", seq[0].Type)
	})

	t.Run("missing actions", func(t *testing.T) {
		_, err := ParseSequence([]byte(`{"steps":[]}`))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseSequence([]byte(`click the button`))
		assert.Error(t, err)
	})
}

func TestSequenceRoundTrip(t *testing.T) {
	seq := Sequence{Click(1), TypeInto(2, "a \"quoted\" word"), Press("tab"), Code("sh", "echo ok")}
	data, err := json.Marshal(seq)
	require.NoError(t, err)

	back, err := ParseSequence(data)
	require.NoError(t, err)
	assert.Equal(t, seq, back)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "click → element 4", Click(4).String())
	assert.Equal(t, `type → element 2 (text: "hi")`, TypeInto(2, "hi").String())
	assert.Equal(t, "press → enter", Press("enter").String())
	assert.Equal(t, "click → element ?", Action{Type: KindClick}.String())
}
