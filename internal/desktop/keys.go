package desktop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chord is a key plus any held modifiers, parsed from names like "enter" or
// "ctrl+shift+s".
type Chord struct {
	Modifiers []string
	Key       string
}

func (c Chord) String() string {
	return strings.Join(append(append([]string{}, c.Modifiers...), c.Key), "+")
}

var keyAliases = map[string]string{
	"return":      "enter",
	"esc":         "escape",
	"del":         "delete",
	"arrowup":     "up",
	"arrowdown":   "down",
	"arrowleft":   "left",
	"arrowright":  "right",
	"pgup":        "pageup",
	"pgdn":        "pagedown",
	"control":     "ctrl",
	"cmd":         "meta",
	"command":     "meta",
	"super":       "meta",
	"win":         "meta",
	"option":      "alt",
	"ins":         "insert",
	"caps":        "capslock",
	"prtsc":       "printscreen",
	"prtscr":      "printscreen",
	"print":       "printscreen",
	"apps":        "menu",
	"contextmenu": "menu",
}

var namedKeys = map[string]bool{
	"enter": true, "tab": true, "escape": true, "backspace": true, "delete": true, "space": true,
	"up": true, "down": true, "left": true, "right": true,
	"home": true, "end": true, "pageup": true, "pagedown": true,
	"insert": true, "capslock": true, "printscreen": true, "numlock": true,
	"scrolllock": true, "pause": true, "menu": true,
}

func init() {
	for i := 1; i <= 24; i++ {
		namedKeys[fmt.Sprintf("f%d", i)] = true
	}
}

var modifierKeys = map[string]bool{"ctrl": true, "shift": true, "alt": true, "meta": true}

// ParseKey parses a key name. A single character is taken literally; longer
// names must be one of the named keys, optionally prefixed by modifiers.
func ParseKey(name string) (Chord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Chord{}, fmt.Errorf("empty key")
	}
	if utf8.RuneCountInString(name) == 1 {
		return Chord{Key: name}, nil
	}

	parts := strings.Split(name, "+")
	var chord Chord
	for i, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		if alias, ok := keyAliases[p]; ok {
			p = alias
		}
		last := i == len(parts)-1
		switch {
		case !last && modifierKeys[p]:
			chord.Modifiers = append(chord.Modifiers, p)
		case last && (namedKeys[p] || utf8.RuneCountInString(p) == 1):
			chord.Key = p
		default:
			return Chord{}, fmt.Errorf("unknown key %q in %q", part, name)
		}
	}
	return chord, nil
}
