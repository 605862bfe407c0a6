package binding

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Context is the layered binding document §4.3 defines: flow.input, one
// entry per already-executed node id keyed by that id, state, and (for
// reactive agents) signal.payload plus any forEach loop variable. It is
// backed by a single JSON document so path resolution can reuse gjson's
// dotted-path and array-index syntax verbatim.
type Context struct {
	raw []byte
}

// NewContext builds a Context from the named top-level values (e.g.
// "flow", "state", "signal", plus one key per completed node id and any
// active loop variable name).
func NewContext(values map[string]any) (Context, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return Context{}, err
	}
	return Context{raw: raw}, nil
}

// With returns a copy of c with key bound to value, for layering a loop
// variable or a node's output onto an existing context without rebuilding
// it from scratch.
func (c Context) With(key string, value any) (Context, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return Context{}, err
	}
	raw := c.raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	next, err := sjson.SetRawBytes(raw, key, encoded)
	if err != nil {
		return Context{}, err
	}
	return Context{raw: next}, nil
}

// Get resolves a dotted path against the context document. ok is false if
// the path does not exist.
func (c Context) Get(path string) (gjson.Result, bool) {
	if len(c.raw) == 0 {
		return gjson.Result{}, false
	}
	r := gjson.GetBytes(c.raw, path)
	return r, r.Exists()
}

// Exists reports whether path resolves to any value, including an
// explicit null, matching the `$exists(x)` condition operator.
func (c Context) Exists(path string) bool {
	_, ok := c.Get(path)
	return ok
}
