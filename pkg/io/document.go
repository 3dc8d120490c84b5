package io

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// Document is the wire form of a workflow.
type Document struct {
	Nodes []Node `json:"nodes" yaml:"nodes" validate:"required,dive"`
	Edges []Edge `json:"edges" yaml:"edges" validate:"dive"`
}

// Node is the wire form of a workflow node.
type Node struct {
	ID       string         `json:"id" yaml:"id" validate:"required"`
	Type     string         `json:"type" yaml:"type" validate:"required"`
	Position *Position      `json:"position" yaml:"position" validate:"required"`
	Data     map[string]any `json:"data" yaml:"data"`
}

// Position is the wire form of a canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Edge is the wire form of a workflow edge.
type Edge struct {
	ID           string `json:"id" yaml:"id" validate:"required"`
	Source       string `json:"source" yaml:"source" validate:"required"`
	Target       string `json:"target" yaml:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// ImportOptions tunes [Import].
type ImportOptions struct {
	// Strict additionally rejects node data outside the registry's field
	// domains (an unknown notification channel, an unparsable duration).
	Strict bool
}

// Snapshotter is satisfied by *workflow.Store.
type Snapshotter interface {
	Snapshot() workflow.Graph
}

// Export converts the current contents of s into a document. Selection is
// view state and is not exported.
func Export(s Snapshotter) Document {
	return FromGraph(s.Snapshot())
}

// FromGraph converts a graph snapshot into a document.
func FromGraph(g workflow.Graph) Document {
	doc := Document{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		data := map[string]any(n.Data.Clone())
		doc.Nodes[i] = Node{
			ID:       n.ID,
			Type:     string(n.Kind),
			Position: &Position{X: n.Position.X, Y: n.Position.Y},
			Data:     data,
		}
	}
	for i, e := range g.Edges {
		doc.Edges[i] = Edge{ID: e.ID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle}
	}
	return doc
}

// Import checks doc and reconstructs the node and edge collections. All
// failures are MALFORMED_DOCUMENT errors wrapping the specific cause
// (a validator error or one of the workflow sentinel errors); no partial
// result is ever returned.
func Import(doc Document, opts ImportOptions) ([]workflow.Node, []workflow.Edge, error) {
	if err := validate().Struct(doc); err != nil {
		return nil, nil, fberrors.Wrap(fberrors.ErrCodeMalformedDocument, describe(err), "import")
	}

	nodes := make([]workflow.Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		data := workflow.Data(stringKeys(n.Data).(map[string]any)).Clone()
		nodes[i] = workflow.Node{
			ID:       n.ID,
			Kind:     workflow.Kind(n.Type),
			Position: workflow.Position{X: n.Position.X, Y: n.Position.Y},
			Data:     data,
		}
	}
	edges := make([]workflow.Edge, len(doc.Edges))
	for i, e := range doc.Edges {
		edges[i] = workflow.Edge{ID: e.ID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle}
	}

	if err := workflow.Validate(nodes, edges); err != nil {
		return nil, nil, fberrors.Wrap(fberrors.ErrCodeMalformedDocument, err, "import")
	}
	if opts.Strict {
		for _, n := range nodes {
			t, _ := n.Type()
			if issues := t.Check(n.Data); len(issues) > 0 {
				return nil, nil, fberrors.Wrap(fberrors.ErrCodeMalformedDocument, issues[0], "import: node %s", n.ID)
			}
		}
	}
	return nodes, edges, nil
}

// stringKeys rewrites map[any]any values, as produced by generic YAML
// decoding, into map[string]any so the data stays encodable as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = stringKeys(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = stringKeys(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = stringKeys(vv)
		}
		return out
	}
	return v
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

// validate returns the shared validator. Field names in errors are taken
// from json tags so messages match the document.
func validate() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validateInst = v
	})
	return validateInst
}

// ErrMissingField is wrapped by import errors for absent required fields.
var ErrMissingField = errors.New("missing required field")

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	// Document.nodes[1].position -> nodes[1].position
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Tag() == "required" {
		return fmt.Errorf("%s: %w", path, ErrMissingField)
	}
	return fmt.Errorf("%s: failed %q check", path, fe.Tag())
}
