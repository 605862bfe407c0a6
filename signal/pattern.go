package signal

import (
	"regexp"
	"strings"
	"sync"
)

// Pattern is a compiled subscription filter over colon-segmented signal
// names. "*" matches exactly one segment (including an empty segment);
// "**" matches one or more segments. Compilation is idempotent: compiling
// the same source string twice yields matchers that agree on every input.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// compileCache memoizes pattern compilation so the hot emit path never pays
// for regexp construction; see Compile.
var compileCache sync.Map // map[string]*Pattern

// Compile converts a glob pattern into a compiled Pattern. "*" becomes
// "[^:]*" and "**" becomes ".*", both end-anchored, matching §8 property 1
// verbatim. A pattern with no "*" at all is compiled as a literal (an
// unrecognized pattern still compiles; it simply matches only itself).
func Compile(source string) *Pattern {
	if v, ok := compileCache.Load(source); ok {
		return v.(*Pattern)
	}
	p := &Pattern{source: source, re: regexp.MustCompile("^" + globToRegex(source) + "$")}
	actual, _ := compileCache.LoadOrStore(source, p)
	return actual.(*Pattern)
}

// globToRegex performs the literal translation described in §8: "**" (one or
// more segments) first, then "*" (one segment, possibly empty), with every
// other regex metacharacter escaped.
func globToRegex(source string) string {
	var b strings.Builder
	i := 0
	for i < len(source) {
		if strings.HasPrefix(source[i:], "**") {
			b.WriteString(".*")
			i += 2
			continue
		}
		c := source[i]
		if c == '*' {
			b.WriteString("[^:]*")
			i++
			continue
		}
		if strings.ContainsRune(`\.+?()|[]{}^$`, rune(c)) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// Match reports whether name satisfies the compiled pattern.
func (p *Pattern) Match(name string) bool { return p.re.MatchString(name) }

// String returns the original, uncompiled pattern source.
func (p *Pattern) String() string { return p.source }

// Matcher decides whether a signal is deliverable to a subscriber: either a
// compiled name pattern (or set of patterns) or an arbitrary predicate.
type Matcher interface {
	Match(s Signal) bool
}

// patternMatcher adapts one or more Pattern values into a Matcher, matching
// if any pattern matches the signal's Name.
type patternMatcher struct{ patterns []*Pattern }

// NewPatternMatcher compiles each source string (once, via the shared cache)
// and returns a Matcher that accepts a signal if any pattern matches its name.
func NewPatternMatcher(sources ...string) Matcher {
	pats := make([]*Pattern, len(sources))
	for i, s := range sources {
		pats[i] = Compile(s)
	}
	return &patternMatcher{patterns: pats}
}

func (m *patternMatcher) Match(s Signal) bool {
	for _, p := range m.patterns {
		if p.Match(s.Name) {
			return true
		}
	}
	return false
}

// PredicateMatcher adapts an arbitrary predicate function into a Matcher.
type PredicateMatcher func(s Signal) bool

func (f PredicateMatcher) Match(s Signal) bool { return f(s) }
