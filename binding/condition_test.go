package binding_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/harness/binding"
)

func conditionTestContext(t *testing.T) binding.Context {
	t.Helper()
	ctx, err := binding.NewContext(map[string]any{
		"state": map[string]any{"score": 7, "label": "gold", "flag": true},
	})
	require.NoError(t, err)
	return ctx
}

func TestEvaluateNilConditionIsTrue(t *testing.T) {
	ok, err := binding.Evaluate(nil, conditionTestContext(t))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateStringComparisons(t *testing.T) {
	ctx := conditionTestContext(t)
	cases := []struct {
		expr string
		want bool
	}{
		{"state.score > 5", true},
		{"state.score > 10", false},
		{"state.score >= 7", true},
		{"state.score <= 6", false},
		{"state.label = \"gold\"", true},
		{"state.label != \"silver\"", true},
		{"not state.flag = false", true},
		{"$exists(state.score)", true},
		{"$exists(state.missing)", false},
		{"state.score > 5 and state.label = \"gold\"", true},
		{"state.score > 100 or state.label = \"gold\"", true},
	}
	for _, c := range cases {
		got, err := binding.Evaluate(c.expr, ctx)
		require.NoErrorf(t, err, c.expr)
		require.Equalf(t, c.want, got, c.expr)
	}
}

func TestEvaluateStructuredEquals(t *testing.T) {
	ctx := conditionTestContext(t)
	cond := map[string]any{"equals": map[string]any{"var": "state.label", "value": "gold"}}
	ok, err := binding.Evaluate(cond, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateStructuredNotAndOr(t *testing.T) {
	ctx := conditionTestContext(t)

	not := map[string]any{"not": map[string]any{"equals": map[string]any{"var": "state.label", "value": "silver"}}}
	ok, err := binding.Evaluate(not, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	and := map[string]any{"and": []any{
		map[string]any{"equals": map[string]any{"var": "state.label", "value": "gold"}},
		map[string]any{"equals": map[string]any{"var": "state.flag", "value": true}},
	}}
	ok, err = binding.Evaluate(and, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	or := map[string]any{"or": []any{
		map[string]any{"equals": map[string]any{"var": "state.label", "value": "silver"}},
		map[string]any{"equals": map[string]any{"var": "state.flag", "value": true}},
	}}
	ok, err = binding.Evaluate(or, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStringAndStructuredFormsAgree(t *testing.T) {
	ctx := conditionTestContext(t)

	stringForm, err := binding.Evaluate("state.label = \"gold\"", ctx)
	require.NoError(t, err)

	structuredForm, err := binding.Evaluate(map[string]any{"equals": map[string]any{"var": "state.label", "value": "gold"}}, ctx)
	require.NoError(t, err)

	require.Equal(t, stringForm, structuredForm)
}
