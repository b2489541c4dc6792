// Package jsonrepair recovers a JSON array of records from model output that
// may be fenced, truncated, or surrounded by prose.
package jsonrepair

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/insights-cli/internal/model"
)

// Outcome records how much work was needed to obtain valid JSON.
type Outcome string

const (
	OutcomeValid         Outcome = "valid"
	OutcomeRepaired      Outcome = "repaired"
	OutcomeUnrecoverable Outcome = "unrecoverable"
)

// ErrUnrecoverable is returned by ParseRecords when no JSON array can be recovered.
var ErrUnrecoverable = eris.New("jsonrepair: unrecoverable response")

// Result is the output of Repair. JSON is empty when Outcome is unrecoverable.
type Result struct {
	JSON    string
	Outcome Outcome
}

// Repair returns a JSON array extracted from text. Text that already is a
// JSON array is returned as valid. Otherwise Repair strips code fences,
// isolates the first balanced value, closes what was left open, drops
// trailing commas, and reshapes objects into arrays.
func Repair(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Outcome: OutcomeUnrecoverable}
	}
	if gjson.Valid(trimmed) && gjson.Parse(trimmed).IsArray() {
		return Result{JSON: trimmed, Outcome: OutcomeValid}
	}

	body := stripFences(trimmed)
	var fallback string
	offset := 0
	for attempt := 0; attempt < maxStarts; attempt++ {
		i := strings.IndexAny(body[offset:], "[{")
		if i < 0 {
			break
		}
		start := offset + i
		offset = start + 1

		arr, ok := repairFrom(body[start:])
		if !ok {
			continue
		}
		if holdsRecords(arr) {
			return Result{JSON: arr, Outcome: OutcomeRepaired}
		}
		if fallback == "" {
			fallback = arr
		}
	}
	if fallback != "" {
		return Result{JSON: fallback, Outcome: OutcomeRepaired}
	}
	return Result{Outcome: OutcomeUnrecoverable}
}

// maxStarts bounds how many bracket positions Repair tries when prose before
// the JSON contains brackets of its own.
const maxStarts = 16

// repairFrom scans one value starting at body[0] and returns it as an array.
func repairFrom(body string) (string, bool) {
	s := scan(body)
	candidates := []string{s.closed()}
	if s.lastElement > 0 {
		candidates = append(candidates, s.text[:s.lastElement]+"]")
	}

	for _, c := range candidates {
		c = removeTrailingCommas(c)
		if !gjson.Valid(c) {
			continue
		}
		if arr, ok := asArray(c); ok {
			return arr, true
		}
	}
	return "", false
}

// holdsRecords reports whether arr is empty or has at least one object element.
func holdsRecords(arr string) bool {
	elems := gjson.Parse(arr).Array()
	if len(elems) == 0 {
		return true
	}
	for _, e := range elems {
		if e.IsObject() {
			return true
		}
	}
	return false
}

// ParseRecords repairs text and decodes the array elements. Elements that are
// not objects come back as nil records so callers can count them.
func ParseRecords(text string) ([]model.RawRecord, Outcome, error) {
	res := Repair(text)
	if res.Outcome == OutcomeUnrecoverable {
		return nil, res.Outcome, ErrUnrecoverable
	}

	var items []any
	if err := json.Unmarshal([]byte(res.JSON), &items); err != nil {
		return nil, OutcomeUnrecoverable, eris.Wrap(err, "jsonrepair: decode array")
	}

	records := make([]model.RawRecord, len(items))
	for i, item := range items {
		if obj, ok := item.(map[string]any); ok {
			records[i] = obj
		}
	}
	return records, res.Outcome, nil
}

// asArray returns valid JSON as an array. A single record (an object with a
// quote) is wrapped as one element. Other objects are unwrapped to their
// "insights" array or to the first array field holding objects, such as
// {"results": [...]}; anything else is wrapped.
func asArray(valid string) (string, bool) {
	v := gjson.Parse(valid)
	switch {
	case v.IsArray():
		return valid, true
	case v.IsObject():
		if v.Get("quote").Exists() {
			return "[" + valid + "]", true
		}
		if ins := v.Get("insights"); ins.IsArray() {
			return ins.Raw, true
		}
		var inner string
		v.ForEach(func(_, val gjson.Result) bool {
			if val.IsArray() && holdsRecords(val.Raw) {
				inner = val.Raw
				return false
			}
			return true
		})
		if inner != "" {
			return inner, true
		}
		return "[" + valid + "]", true
	default:
		return "", false
	}
}

func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// scanState is the result of walking one JSON value.
type scanState struct {
	text     string
	stack    []byte
	inString bool
	// lastElement is the offset just past the last complete element of a
	// top-level array, or 0 when none was seen.
	lastElement int
}

// scan walks s from its first byte until the opening bracket is balanced,
// ignoring brackets inside strings. Text after the balanced value is dropped.
func scan(s string) scanState {
	st := scanState{}
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}

		switch c {
		case '"':
			st.inString = true
		case '[', '{':
			st.stack = append(st.stack, c)
		case ']', '}':
			if len(st.stack) == 0 {
				continue
			}
			st.stack = st.stack[:len(st.stack)-1]
			if len(st.stack) == 0 {
				st.text = s[:i+1]
				return st
			}
			if len(st.stack) == 1 && st.stack[0] == '[' {
				st.lastElement = i + 1
			}
		}
	}

	st.text = s
	return st
}

// closed returns the scanned text with any open string and brackets closed.
func (st scanState) closed() string {
	if len(st.stack) == 0 && !st.inString {
		return st.text
	}
	var sb strings.Builder
	sb.WriteString(st.text)
	if st.inString {
		sb.WriteByte('"')
	}
	out := strings.TrimRight(sb.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	sb.Reset()
	sb.WriteString(out)
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == '[' {
			sb.WriteByte(']')
		} else {
			sb.WriteByte('}')
		}
	}
	return sb.String()
}

// removeTrailingCommas drops commas that directly precede a closing bracket,
// leaving string contents untouched.
func removeTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
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
			sb.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
