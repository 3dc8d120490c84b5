// Package panel implements the node configuration panel: a read-only view of
// the selected node's data, laid out by the node type registry, and a single
// commit path back into the store.
//
// The panel never owns graph state. Every edit is committed immediately, so
// closing the panel loses nothing.
package panel

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// FieldValue is one rendered field of a [View].
type FieldValue struct {
	workflow.Field
	Value any  `json:"value"`
	Set   bool `json:"set"` // false when the node's data lacks the field
}

// View is a snapshot of the selected node for rendering.
type View struct {
	NodeID string        `json:"nodeId"`
	Kind   workflow.Kind `json:"type"`
	Label  string        `json:"label"`
	Fields []FieldValue  `json:"fields"`
	// Extra holds data fields the registry does not render. They are shown
	// read-only and survive every commit.
	Extra workflow.Data `json:"extra,omitempty"`
}

// Panel projects the store's selection.
type Panel struct {
	store *workflow.Store
}

// New returns a panel reading and writing store.
func New(store *workflow.Store) *Panel {
	return &Panel{store: store}
}

// View returns the selected node's view. ok is false when nothing is selected.
func (p *Panel) View() (View, bool) {
	id, ok := p.store.Selected()
	if !ok {
		return View{}, false
	}
	n, ok := p.store.Node(id)
	if !ok {
		return View{}, false
	}
	return viewOf(n), true
}

func viewOf(n workflow.Node) View {
	t, _ := n.Type()
	v := View{NodeID: n.ID, Kind: n.Kind, Label: t.Label}
	rendered := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		val, set := n.Data[f.Name]
		v.Fields = append(v.Fields, FieldValue{Field: f, Value: val, Set: set})
		rendered[f.Name] = true
	}
	for k, val := range n.Data {
		if rendered[k] {
			continue
		}
		if v.Extra == nil {
			v.Extra = workflow.Data{}
		}
		v.Extra[k] = val
	}
	return v
}

// Commit merges partial into the selected node's data. Values for rendered
// fields must be inside the field's domain; fields the registry does not
// know are passed through untouched. It fails with NOT_FOUND when nothing is
// selected and INVALID_INPUT when a value is rejected, in which case
// nothing is applied.
func (p *Panel) Commit(partial workflow.Data) error {
	id, ok := p.store.Selected()
	if !ok {
		return fberrors.New(fberrors.ErrCodeNotFound, "no node selected")
	}
	n, ok := p.store.Node(id)
	if !ok {
		return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id)
	}
	t, _ := n.Type()
	for _, name := range sortedKeys(partial) {
		f, known := t.Field(name)
		if !known {
			continue
		}
		if ferr := f.CheckValue(partial[name]); ferr != nil {
			return fberrors.Wrap(fberrors.ErrCodeInvalidInput, ferr, "%s node %s", n.Kind, id)
		}
	}
	if !p.store.UpdateNode(id, partial) {
		return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id)
	}
	return nil
}

// Set parses a textual value for field and commits it. Text and expression
// fields take the value verbatim, lists are comma separated, objects are
// JSON, enums and durations are checked against their domain.
func (p *Panel) Set(field, value string) error {
	id, ok := p.store.Selected()
	if !ok {
		return fberrors.New(fberrors.ErrCodeNotFound, "no node selected")
	}
	n, ok := p.store.Node(id)
	if !ok {
		return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id)
	}
	t, _ := n.Type()
	f, known := t.Field(field)
	if !known {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "%s nodes have no field %q", n.Kind, field)
	}
	v, err := Parse(f, value)
	if err != nil {
		return err
	}
	return p.Commit(workflow.Data{field: v})
}

// Close clears the selection.
func (p *Panel) Close() {
	p.store.Select("")
}

// Parse converts text typed into a field editor into the field's value.
func Parse(f workflow.Field, text string) (any, error) {
	switch f.Kind {
	case workflow.FieldList:
		items := []any{}
		for _, part := range strings.Split(text, ",") {
			if s := strings.TrimSpace(part); s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	case workflow.FieldObject:
		if strings.TrimSpace(text) == "" {
			return map[string]any{}, nil
		}
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, fberrors.Wrap(fberrors.ErrCodeInvalidInput, err, "field %q: expected a JSON object", f.Name)
		}
		return obj, nil
	case workflow.FieldEnum, workflow.FieldDuration:
		s := strings.TrimSpace(text)
		if ferr := f.CheckValue(s); ferr != nil {
			return nil, fberrors.Wrap(fberrors.ErrCodeInvalidInput, ferr, "parse")
		}
		return s, nil
	default:
		return text, nil
	}
}

// Format renders a field value as the text Parse accepts.
func Format(f workflow.Field, v any) string {
	if v == nil {
		return ""
	}
	switch f.Kind {
	case workflow.FieldList:
		var items []string
		switch l := v.(type) {
		case []string:
			items = l
		case []any:
			for _, item := range l {
				items = append(items, fmt.Sprint(item))
			}
		}
		return strings.Join(items, ", ")
	case workflow.FieldObject:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func sortedKeys(d workflow.Data) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
