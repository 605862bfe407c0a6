package binding

import (
	"regexp"
	"strings"
)

// placeholderPattern matches "{{ path.to.value }}" with optional inner
// whitespace, capturing the path. Paths use gjson's dotted/indexed syntax.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// MissingFunc is invoked once per unresolved path encountered during
// Substitute, so the caller can emit a `binding:missing` warning signal.
type MissingFunc func(path string)

// Substitute walks input recursively (maps, slices, strings pass through
// unchanged if they are any other type) and replaces every "{{ path }}"
// placeholder found in string values by resolving path against ctx.
//
// A string that is *exactly* one placeholder (nothing else around it)
// substitutes the resolved value's native JSON type (so a path resolving
// to a number or object is not stringified); any other placement
// concatenates the placeholder's string representation into the
// surrounding text. Missing paths substitute the empty string and invoke
// onMissing, never failing the substitution outright, matching spec.md's
// "missing paths substitute the empty string and emit a binding:missing
// warning".
func Substitute(input any, ctx Context, onMissing MissingFunc) any {
	switch v := input.(type) {
	case string:
		return substituteString(v, ctx, onMissing)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = Substitute(vv, ctx, onMissing)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = Substitute(vv, ctx, onMissing)
		}
		return out
	default:
		return input
	}
}

func substituteString(s string, ctx Context, onMissing MissingFunc) any {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		r, ok := ctx.Get(path)
		if !ok {
			if onMissing != nil {
				onMissing(path)
			}
			return ""
		}
		return r.Value()
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		path := s[m[2]:m[3]]
		r, ok := ctx.Get(path)
		if !ok {
			if onMissing != nil {
				onMissing(path)
			}
		} else {
			b.WriteString(r.String())
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
