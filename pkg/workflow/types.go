package workflow

import (
	"maps"
	"reflect"
	"slices"
)

// Kind is the node type discriminator. The set of kinds is closed: every
// Kind constant has exactly one entry in the registry.
type Kind string

const (
	KindTrigger      Kind = "trigger"
	KindCondition    Kind = "condition"
	KindAction       Kind = "action"
	KindDelay        Kind = "delay"
	KindNotification Kind = "notification"
)

// Branch handles of condition nodes.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Position is a canvas coordinate. Positions are opaque payload and are
// never validated against any bounds.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Data is the variant-specific payload of a node, keyed by field name.
// Fields not known to the registry are kept as-is.
type Data map[string]any

// Clone returns a deep copy of d. Nested maps and slices are copied so the
// result never aliases the receiver.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the field as a string, or "" if it is missing or not a string.
func (d Data) String(field string) string {
	s, _ := d[field].(string)
	return s
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Data:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// Node is a typed vertex of the workflow graph.
//
// The zero value is not usable - nodes are created by [Store.AddNode] or
// supplied to [Store.ReplaceAll].
type Node struct {
	ID       string
	Kind     Kind
	Position Position
	Data     Data // never nil for nodes returned by a Store
}

// Clone returns a copy of n whose Data does not alias n.Data.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// Type returns the registry entry of the node's kind.
func (n Node) Type() (NodeType, bool) { return Lookup(n.Kind) }

// Edge is a directed connection between two nodes. SourceHandle names the
// output branch of a multi-output source node and is empty otherwise.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
}

// Graph is an immutable copy of the store contents.
type Graph struct {
	Nodes    []Node
	Edges    []Edge
	Selected string
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes:    make([]Node, len(g.Nodes)),
		Edges:    slices.Clone(g.Edges),
		Selected: g.Selected,
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

// Equal reports whether g and other contain the same nodes and edges,
// compared as sets. Selection is ignored.
func (g Graph) Equal(other Graph) bool {
	if len(g.Nodes) != len(other.Nodes) || len(g.Edges) != len(other.Edges) {
		return false
	}
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}
	for _, o := range other.Nodes {
		n, ok := nodes[o.ID]
		if !ok || n.Kind != o.Kind || n.Position != o.Position || !dataEqual(n.Data, o.Data) {
			return false
		}
	}
	edges := make(map[string]Edge, len(g.Edges))
	for _, e := range g.Edges {
		edges[e.ID] = e
	}
	for _, o := range other.Edges {
		if e, ok := edges[o.ID]; !ok || e != o {
			return false
		}
	}
	return true
}

func dataEqual(a, b Data) bool {
	if len(a) != len(b) {
		return false
	}
	for _, k := range slices.Sorted(maps.Keys(a)) {
		bv, ok := b[k]
		if !ok || !valueEqual(a[k], bv) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		return ok && dataEqual(at, bt)
	case Data:
		bt, ok := b.(Data)
		if !ok {
			if m, isMap := b.(map[string]any); isMap {
				bt, ok = Data(m), true
			}
		}
		return ok && dataEqual(at, bt)
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !valueEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case []string:
		bt, ok := b.([]string)
		return ok && slices.Equal(at, bt)
	default:
		return reflect.DeepEqual(a, b)
	}
}
