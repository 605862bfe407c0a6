package signal_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/harness/signal"
)

// segmentGen produces a single non-empty, colon-free segment.
func segmentGen() gopter.Gen {
	return gen.RegexMatch(`[a-z][a-z0-9]{0,5}`)
}

// TestPatternMatchesRegexTranslation checks §8 property 1: for any exact
// literal name built from segments, the equivalent "*"-per-segment pattern
// matches it, and the "**" pattern matches any deeper suffix appended to it.
func TestPatternMatchesRegexTranslation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("single-segment wildcard matches any one segment", prop.ForAll(
		func(prefix, seg string) bool {
			name := prefix + ":" + seg
			return signal.Compile(prefix + ":*").Match(name)
		},
		segmentGen(), segmentGen(),
	))

	properties.Property("double-star wildcard matches one-or-more trailing segments", prop.ForAll(
		func(prefix, seg string) bool {
			name := prefix + ":" + seg
			deep := name + ":" + seg + ":" + seg
			return signal.Compile(prefix+":**").Match(name) && signal.Compile(prefix+":**").Match(deep)
		},
		segmentGen(), segmentGen(),
	))

	properties.Property("literal pattern without wildcards matches only itself", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return signal.Compile(a).Match(a) && !signal.Compile(a).Match(b)
		},
		segmentGen(), segmentGen(),
	))

	properties.Property("compilation is idempotent across repeated calls", prop.ForAll(
		func(p string) bool {
			first := signal.Compile(p)
			second := signal.Compile(p)
			return first == second
		},
		gen.RegexMatch(`[a-z:*]{1,10}`).SuchThat(func(s string) bool { return strings.TrimSpace(s) != "" }),
	))

	properties.TestingRun(t)
}
