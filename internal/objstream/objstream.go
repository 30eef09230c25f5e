// Package objstream recovers JSON objects from model output that may hold
// several concatenated objects, stray text or a truncated tail.
package objstream

import (
	"encoding/json"
	"strings"
)

var lineBreaks = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// Parse scans s left to right with a brace-depth counter and returns every
// balanced span that decodes as a JSON object, in textual order.
//
// Every '{' and '}' counts, including those inside string literals. Text
// between objects is tried as a candidate of its own and dropped when it
// does not decode. An unbalanced tail is never flushed.
func Parse(s string) []map[string]any {
	var (
		objects []map[string]any
		buf     strings.Builder
		depth   int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		buf.WriteByte(s[i])
		if depth == 0 && buf.Len() > 0 {
			if obj, ok := decode(buf.String()); ok {
				objects = append(objects, obj)
			}
			buf.Reset()
		}
	}
	return objects
}

// First returns the first object Parse finds in s, or nil.
func First(s string) map[string]any {
	objs := Parse(s)
	if len(objs) == 0 {
		return nil
	}
	return objs[0]
}

func decode(candidate string) (map[string]any, bool) {
	candidate = lineBreaks.Replace(candidate)
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
