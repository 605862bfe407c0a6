package flow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDefinition mirrors the §6 flow-file format verbatim so yaml.v3 can
// unmarshal it directly, before Load converts it into the Definition the
// executor actually runs.
type yamlDefinition struct {
	Name    string         `yaml:"name"`
	Version int            `yaml:"version"`
	State   *yamlStateDef  `yaml:"state"`
	Nodes   []yamlNode     `yaml:"nodes"`
	Edges   []yamlEdge     `yaml:"edges"`
}

type yamlStateDef struct {
	Initial map[string]any `yaml:"initial"`
	Schema  map[string]any `yaml:"schema"`
}

type yamlNode struct {
	ID      string          `yaml:"id"`
	Type    string          `yaml:"type"`
	Input   map[string]any  `yaml:"input"`
	When    any             `yaml:"when"`
	Policy  *yamlPolicy     `yaml:"policy"`
	SubFlow *yamlDefinition `yaml:"subFlow"`
}

type yamlPolicy struct {
	Retry           *yamlRetryPolicy `yaml:"retry"`
	TimeoutMs       int              `yaml:"timeoutMs"`
	ContinueOnError bool             `yaml:"continueOnError"`
}

type yamlRetryPolicy struct {
	MaxAttempts int `yaml:"maxAttempts"`
	BackoffMs   int `yaml:"backoffMs"`
}

type yamlEdge struct {
	From          string       `yaml:"from"`
	To            string       `yaml:"to"`
	When          any          `yaml:"when"`
	Gate          string       `yaml:"gate"`
	ForEach       *yamlForEach `yaml:"forEach"`
	MaxIterations int          `yaml:"maxIterations"`
}

type yamlForEach struct {
	In string `yaml:"in"`
	As string `yaml:"as"`
}

// Load reads and parses a flow file from path, per §6's YAML format.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("flow: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a flow file's YAML (or JSON, which is a YAML subset) bytes
// into a Definition ready for Validate/Executor.Run.
func Parse(data []byte) (Definition, error) {
	var y yamlDefinition
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Definition{}, fmt.Errorf("flow: parse: %w", err)
	}
	return toDefinition(y)
}

// toDefinition converts a decoded yamlDefinition into a Definition, recursing
// into any node's subFlow so nested flows (a node that itself runs a
// sub-flow, per §4's child-run linking) parse the same way as the top-level
// document.
func toDefinition(y yamlDefinition) (Definition, error) {
	if y.Name == "" {
		return Definition{}, fmt.Errorf("flow: parse: name is required")
	}

	def := Definition{
		Name:    y.Name,
		Version: y.Version,
	}
	if y.State != nil {
		def.State = StateDef{Initial: y.State.Initial}
		if y.State.Schema != nil {
			jsonSchema, err := json.Marshal(y.State.Schema)
			if err != nil {
				return Definition{}, fmt.Errorf("flow: parse: state schema: %w", err)
			}
			def.State.Schema = jsonSchema
		}
	}

	for _, n := range y.Nodes {
		node := Node{
			ID:    n.ID,
			Type:  n.Type,
			Input: n.Input,
			When:  n.When,
		}
		if n.Policy != nil {
			node.Policy = Policy{
				TimeoutMs:       n.Policy.TimeoutMs,
				ContinueOnError: n.Policy.ContinueOnError,
			}
			if n.Policy.Retry != nil {
				node.Policy.Retry = RetryPolicy{
					MaxAttempts: n.Policy.Retry.MaxAttempts,
					BackoffMs:   n.Policy.Retry.BackoffMs,
				}
			}
		}
		if n.SubFlow != nil {
			sub, err := toDefinition(*n.SubFlow)
			if err != nil {
				return Definition{}, fmt.Errorf("flow: parse: node %s subFlow: %w", n.ID, err)
			}
			node.SubFlow = &sub
		}
		def.Nodes = append(def.Nodes, node)
	}

	for _, e := range y.Edges {
		edge := Edge{
			From:          e.From,
			To:            e.To,
			When:          e.When,
			Gate:          Gate(e.Gate),
			MaxIterations: e.MaxIterations,
		}
		if e.ForEach != nil {
			edge.ForEach = &ForEach{In: e.ForEach.In, As: e.ForEach.As}
		}
		def.Edges = append(def.Edges, edge)
	}

	return def, nil
}
