package binding_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/binding"
)

func newTestContext(t *testing.T) binding.Context {
	t.Helper()
	ctx, err := binding.NewContext(map[string]any{
		"flow":  map[string]any{"input": map[string]any{"name": "ada", "count": 3}},
		"state": map[string]any{"ready": true},
	})
	require.NoError(t, err)
	return ctx
}

func TestSubstituteWholeStringPlaceholderPreservesType(t *testing.T) {
	ctx := newTestContext(t)
	var missing []string
	out := binding.Substitute("{{ flow.input.count }}", ctx, func(p string) { missing = append(missing, p) })
	require.Equal(t, float64(3), out)
	require.Empty(t, missing)
}

func TestSubstituteEmbeddedPlaceholderConcatenates(t *testing.T) {
	ctx := newTestContext(t)
	out := binding.Substitute("hello {{ flow.input.name }}!", ctx, nil)
	require.Equal(t, "hello ada!", out)
}

func TestSubstituteMissingPathYieldsEmptyAndCallback(t *testing.T) {
	ctx := newTestContext(t)
	var missing []string
	out := binding.Substitute("{{ flow.input.nope }}", ctx, func(p string) { missing = append(missing, p) })
	require.Equal(t, "", out)
	require.Equal(t, []string{"flow.input.nope"}, missing)
}

func TestSubstituteRecursesIntoMapsAndSlices(t *testing.T) {
	ctx := newTestContext(t)
	input := map[string]any{
		"greeting": "hi {{ flow.input.name }}",
		"nested":   []any{"{{ state.ready }}", "literal"},
	}
	out := binding.Substitute(input, ctx, nil).(map[string]any)
	require.Equal(t, "hi ada", out["greeting"])
	require.Equal(t, true, out["nested"].([]any)[0])
	require.Equal(t, "literal", out["nested"].([]any)[1])
}

func TestSubstituteNonStringPassesThrough(t *testing.T) {
	ctx := newTestContext(t)
	require.Equal(t, 42, binding.Substitute(42, ctx, nil))
	require.Equal(t, true, binding.Substitute(true, ctx, nil))
}
