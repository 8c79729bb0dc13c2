package agent

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// fence opens and closes a block of structured content in model output.
const fence = "```"

// Detect reports whether text, the full reply accumulated so far, encodes a
// tool invocation of the form {"tool": "<name>", "arguments": {...}},
// optionally wrapped in a fenced block. A text that does not parse is "not
// yet detected", never an error.
func Detect(text string) (schema.Invocation, bool) {
	body := candidate(text)
	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		return schema.Invocation{}, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return schema.Invocation{}, false
	}

	rawName, ok := obj["tool"]
	if !ok {
		return schema.Invocation{}, false
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return schema.Invocation{}, false
	}

	args := map[string]any{}
	if raw, ok := obj["arguments"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return schema.Invocation{}, false
		}
	}

	return schema.Invocation{Name: name, Arguments: args}, true
}

// candidate strips surrounding whitespace and an enclosing fence from text.
// A bare info string on the opening fence line (```json) is dropped too.
func candidate(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, fence) {
		return s
	}

	s = s[len(fence):]
	if i := infoLen(s); i > 0 && i < len(s) && isSpace(s[i]) {
		s = s[i:]
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, fence) {
		s = strings.TrimSpace(s[:len(s)-len(fence)])
	}
	return s
}

// mayBeCommand reports whether text could still grow into a detectable
// invocation. Fragments are held back from the caller while it holds.
func mayBeCommand(text string) bool {
	s := strings.TrimLeftFunc(text, unicode.IsSpace)
	if s == "" || strings.HasPrefix(fence, s) {
		return true
	}

	fenced := strings.HasPrefix(s, fence)
	if fenced {
		s = s[len(fence):]
		i := infoLen(s)
		if i == len(s) {
			return true
		}
		if i > 0 && !isSpace(s[i]) {
			return false
		}
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
		if s == "" {
			return true
		}
	}

	if s[0] != '{' {
		return false
	}
	end := objectEnd(s)
	if end < 0 {
		return true
	}

	tail := strings.TrimSpace(s[end+1:])
	if tail == "" {
		return true
	}
	return fenced && strings.HasPrefix(fence, tail)
}

// objectEnd returns the index of the brace closing the object that opens
// s, or -1 if the object is still open. Braces inside strings are ignored.
func objectEnd(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func infoLen(s string) int {
	i := 0
	for i < len(s) && isInfoChar(s[i]) {
		i++
	}
	return i
}

func isInfoChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '_' || c == '-' || c == '+' || c == '.'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// watcher classifies the fragments of one generation stream. While the
// reply may still be an invocation, fragments are held; once it cannot be,
// held fragments are released in order and later ones pass straight through.
type watcher struct {
	reply       strings.Builder
	held        []string
	passthrough bool
}

// feed records frag and returns the fragments that may now reach the caller.
// detected is true once the reply parses as an invocation; the held
// fragments are then discarded.
func (w *watcher) feed(frag string) (forward []string, inv schema.Invocation, detected bool) {
	w.reply.WriteString(frag)
	if w.passthrough {
		return []string{frag}, schema.Invocation{}, false
	}

	text := w.reply.String()
	if inv, ok := Detect(text); ok {
		w.held = nil
		return nil, inv, true
	}
	if mayBeCommand(text) {
		w.held = append(w.held, frag)
		return nil, schema.Invocation{}, false
	}

	w.passthrough = true
	forward = append(w.held, frag)
	w.held = nil
	return forward, schema.Invocation{}, false
}

// flush releases whatever is still held at stream end.
func (w *watcher) flush() []string {
	out := w.held
	w.held = nil
	return out
}

// Reply returns the full text fed so far.
func (w *watcher) Reply() string { return w.reply.String() }
