package binding

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Evaluate implements the dual condition evaluator of §4.3: cond is either
// a dotted-expression string or a structured AST (decoded from YAML/JSON
// into map[string]any / []any), and both forms share identical truth
// semantics: `equals` uses strict value equality on primitives and deep
// equality on structured values.
func Evaluate(cond any, ctx Context) (bool, error) {
	switch v := cond.(type) {
	case nil:
		return true, nil
	case string:
		return evaluateString(v, ctx)
	case map[string]any:
		return evaluateStructured(v, ctx)
	default:
		return false, fmt.Errorf("binding: unsupported condition type %T", cond)
	}
}

// --- structured AST form: {equals:{var,value}} | {not:expr} | {and:[...]} | {or:[...]} ---

func evaluateStructured(node map[string]any, ctx Context) (bool, error) {
	if raw, ok := node["equals"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return false, fmt.Errorf("binding: equals requires {var, value}")
		}
		path, _ := m["var"].(string)
		r, exists := ctx.Get(path)
		if !exists {
			return false, nil
		}
		return valuesEqual(r.Value(), m["value"]), nil
	}
	if raw, ok := node["not"]; ok {
		inner, err := asCondition(raw)
		if err != nil {
			return false, err
		}
		res, err := Evaluate(inner, ctx)
		if err != nil {
			return false, err
		}
		return !res, nil
	}
	if raw, ok := node["and"]; ok {
		items, err := asConditionList(raw)
		if err != nil {
			return false, err
		}
		for _, item := range items {
			res, err := Evaluate(item, ctx)
			if err != nil {
				return false, err
			}
			if !res {
				return false, nil
			}
		}
		return true, nil
	}
	if raw, ok := node["or"]; ok {
		items, err := asConditionList(raw)
		if err != nil {
			return false, err
		}
		for _, item := range items {
			res, err := Evaluate(item, ctx)
			if err != nil {
				return false, err
			}
			if res {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("binding: structured condition missing equals/not/and/or key")
}

func asCondition(raw any) (any, error) {
	switch v := raw.(type) {
	case string, map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("binding: expected a condition, got %T", raw)
	}
}

func asConditionList(raw any) ([]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("binding: expected a list of conditions, got %T", raw)
	}
	return items, nil
}

// valuesEqual implements strict equality on primitives and deep equality
// on structured values. JSON decoding collapses all numbers to float64,
// so numeric comparison normalizes both sides through float64 first, at
// every level of nested maps and slices.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			if y, ok := bv[k]; !ok || !valuesEqual(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// --- string form: dotted expression with =, !=, >, <, >=, <=, and, or, not, $exists(x) ---

var existsPattern = regexp.MustCompile(`^\$exists\(\s*([^)]+?)\s*\)$`)

// evaluateString parses a flat conjunction/disjunction of atoms. Atoms are
// joined by "and"/"or" (left to right, uniform precedence — the grammar
// spec.md describes has no parenthesized sub-expressions) and may be
// prefixed with "not ".
func evaluateString(expr string, ctx Context) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	tokens := splitLogical(expr)
	if len(tokens.atoms) == 0 {
		return false, fmt.Errorf("binding: empty condition expression")
	}

	results := make([]bool, len(tokens.atoms))
	for i, atom := range tokens.atoms {
		res, err := evaluateAtom(atom, ctx)
		if err != nil {
			return false, err
		}
		results[i] = res
	}

	acc := results[0]
	for i, op := range tokens.ops {
		switch op {
		case "and":
			acc = acc && results[i+1]
		case "or":
			acc = acc || results[i+1]
		}
	}
	return acc, nil
}

type logicalTokens struct {
	atoms []string
	ops   []string // len(atoms)-1, each "and" or "or"
}

// splitLogical tokenizes on top-level " and "/" or " boundaries (case
// sensitive, matching the lowercase keywords spec.md names).
func splitLogical(expr string) logicalTokens {
	words := strings.Fields(expr)
	var toks logicalTokens
	var cur []string
	for _, w := range words {
		switch w {
		case "and", "or":
			toks.atoms = append(toks.atoms, strings.Join(cur, " "))
			toks.ops = append(toks.ops, w)
			cur = nil
		default:
			cur = append(cur, w)
		}
	}
	toks.atoms = append(toks.atoms, strings.Join(cur, " "))
	return toks
}

var comparisonOps = []string{">=", "<=", "!=", "=", ">", "<"}

func evaluateAtom(atom string, ctx Context) (bool, error) {
	atom = strings.TrimSpace(atom)
	negate := false
	if strings.HasPrefix(atom, "not ") {
		negate = true
		atom = strings.TrimSpace(strings.TrimPrefix(atom, "not "))
	}

	var res bool
	switch {
	case existsPattern.MatchString(atom):
		m := existsPattern.FindStringSubmatch(atom)
		res = ctx.Exists(m[1])
	default:
		op, idx := findOp(atom)
		if op == "" {
			// A bare path is truthy if it exists and its value is not null,
			// the empty string or false; a numeric 0 counts as truthy.
			r, ok := ctx.Get(atom)
			res = ok && r.Value() != nil && r.String() != "" && r.String() != "false"
			break
		}
		lhs := strings.TrimSpace(atom[:idx])
		rhs := strings.TrimSpace(atom[idx+len(op):])
		var err error
		res, err = evaluateComparison(lhs, op, rhs, ctx)
		if err != nil {
			return false, err
		}
	}
	if negate {
		res = !res
	}
	return res, nil
}

func findOp(atom string) (op string, index int) {
	for _, candidate := range comparisonOps {
		if i := strings.Index(atom, candidate); i >= 0 {
			return candidate, i
		}
	}
	return "", -1
}

func evaluateComparison(lhsPath, op, rhsRaw string, ctx Context) (bool, error) {
	lhs, ok := ctx.Get(lhsPath)
	if !ok {
		return false, nil
	}
	rhs := resolveLiteralOrPath(rhsRaw, ctx)

	switch op {
	case "=":
		return valuesEqual(lhs.Value(), rhs), nil
	case "!=":
		return !valuesEqual(lhs.Value(), rhs), nil
	case ">", "<", ">=", "<=":
		lf, lok := toFloat(lhs.Value())
		rf, rok := toFloat(rhs)
		if !lok || !rok {
			return false, fmt.Errorf("binding: comparison operator %q requires numeric operands", op)
		}
		switch op {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	return false, fmt.Errorf("binding: unsupported operator %q", op)
}

// resolveLiteralOrPath interprets rhs as a quoted string literal, a
// numeric literal, a boolean literal, or (failing all of those) a path
// resolved against ctx.
func resolveLiteralOrPath(rhs string, ctx Context) any {
	if len(rhs) >= 2 && (rhs[0] == '"' && rhs[len(rhs)-1] == '"' || rhs[0] == '\'' && rhs[len(rhs)-1] == '\'') {
		return rhs[1 : len(rhs)-1]
	}
	if rhs == "true" {
		return true
	}
	if rhs == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(rhs, 64); err == nil {
		return f
	}
	if r, ok := ctx.Get(rhs); ok {
		return r.Value()
	}
	return rhs
}
