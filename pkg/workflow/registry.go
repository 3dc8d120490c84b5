package workflow

import (
	"fmt"
	"slices"
	"time"
)

// FieldKind selects how a data field is edited and which values it accepts.
type FieldKind int

const (
	// FieldText is a free-form single-line string.
	FieldText FieldKind = iota
	// FieldExpression is a single-line expression string evaluated by the runtime.
	FieldExpression
	// FieldEnum is a string restricted to Field.Options.
	FieldEnum
	// FieldList is a list of strings.
	FieldList
	// FieldObject is a nested key-value object.
	FieldObject
	// FieldDuration is a Go duration string such as "90s" or "5m".
	FieldDuration
)

var fieldKindNames = map[FieldKind]string{
	FieldText:       "text",
	FieldExpression: "expression",
	FieldEnum:       "enum",
	FieldList:       "list",
	FieldObject:     "object",
	FieldDuration:   "duration",
}

// String returns the lower-case name of the field kind.
func (k FieldKind) String() string {
	if s, ok := fieldKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k FieldKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Field describes one recognized data field of a node type.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Options  []string  `json:"options,omitempty"` // allowed values for FieldEnum
	Required bool      `json:"required,omitempty"`
}

// NodeType is the registry entry for one Kind.
type NodeType struct {
	Kind  Kind   `json:"type"`
	Label string `json:"label"`
	// Fields lists the data fields rendered by the config panel, in display order.
	Fields []Field `json:"fields"`
	// Handles lists the output branch handles. Empty for single-output kinds.
	Handles []string `json:"handles,omitempty"`
	// Input reports whether the node accepts incoming edges from the canvas.
	Input bool `json:"input"`

	defaults func() Data
}

// BranchLimited reports whether the type has named output branches, each of
// which may carry at most one edge.
func (t NodeType) BranchLimited() bool { return len(t.Handles) > 0 }

// HasHandle reports whether h is a valid source handle for this type. The
// empty handle is valid exactly for single-output types.
func (t NodeType) HasHandle(h string) bool {
	if !t.BranchLimited() {
		return h == ""
	}
	return slices.Contains(t.Handles, h)
}

// Field returns the field definition with the given name.
func (t NodeType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns fresh default data for a new node of this type.
func (t NodeType) Defaults() Data {
	if t.defaults == nil {
		return Data{}
	}
	return t.defaults()
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelSlack Channel = "slack"
)

// Channels lists the valid notification channels.
var Channels = []string{string(ChannelEmail), string(ChannelSMS), string(ChannelPush), string(ChannelSlack)}

var nameField = Field{Name: "name", Label: "Name", Kind: FieldText, Required: true}

// registry is the static node type table. Adding a kind means adding a Kind
// constant, an entry here and a case in Decode.
var registry = map[Kind]NodeType{
	KindTrigger: {
		Kind:  KindTrigger,
		Label: "Trigger",
		Fields: []Field{
			nameField,
			{Name: "event", Label: "Event", Kind: FieldText},
		},
		defaults: func() Data { return Data{"name": "Trigger", "event": ""} },
	},
	KindCondition: {
		Kind:  KindCondition,
		Label: "Condition",
		Fields: []Field{
			nameField,
			{Name: "condition", Label: "Condition", Kind: FieldExpression},
		},
		Handles:  []string{HandleTrue, HandleFalse},
		Input:    true,
		defaults: func() Data { return Data{"name": "Condition", "condition": ""} },
	},
	KindAction: {
		Kind:  KindAction,
		Label: "Action",
		Fields: []Field{
			nameField,
			{Name: "action", Label: "Action", Kind: FieldText},
			{Name: "params", Label: "Parameters", Kind: FieldObject},
		},
		Input:    true,
		defaults: func() Data { return Data{"name": "Action", "action": ""} },
	},
	KindDelay: {
		Kind:  KindDelay,
		Label: "Delay",
		Fields: []Field{
			nameField,
			{Name: "duration", Label: "Duration", Kind: FieldDuration},
		},
		Input:    true,
		defaults: func() Data { return Data{"name": "Delay", "duration": "1m"} },
	},
	KindNotification: {
		Kind:  KindNotification,
		Label: "Notification",
		Fields: []Field{
			nameField,
			{Name: "recipients", Label: "Recipients", Kind: FieldList},
			{Name: "channel", Label: "Channel", Kind: FieldEnum, Options: Channels},
		},
		Input:    true,
		defaults: func() Data { return Data{"name": "Notification"} },
	},
}

// kindOrder is the listing order used by pickers and the types command.
var kindOrder = []Kind{KindTrigger, KindCondition, KindAction, KindDelay, KindNotification}

// Lookup returns the registry entry for k.
func Lookup(k Kind) (NodeType, bool) {
	t, ok := registry[k]
	return t, ok
}

// Kinds returns all registered kinds in listing order.
func Kinds() []Kind { return slices.Clone(kindOrder) }

// Types returns all registry entries in listing order.
func Types() []NodeType {
	out := make([]NodeType, len(kindOrder))
	for i, k := range kindOrder {
		out[i] = registry[k]
	}
	return out
}

// FieldError reports a data value outside its field's domain.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return fmt.Sprintf("field %q: %s", e.Field, e.Reason) }

// Check reports every recognized field of data whose value is outside the
// field's domain, plus missing required fields. Unrecognized fields are
// never reported.
func (t NodeType) Check(data Data) []FieldError {
	var issues []FieldError
	for _, f := range t.Fields {
		v, ok := data[f.Name]
		if !ok || v == nil {
			if f.Required {
				issues = append(issues, FieldError{Field: f.Name, Reason: "is required"})
			}
			continue
		}
		if err := f.CheckValue(v); err != nil {
			issues = append(issues, *err)
		}
	}
	return issues
}

// CheckValue validates a single value against the field's domain.
func (f Field) CheckValue(v any) *FieldError {
	fail := func(format string, args ...any) *FieldError {
		return &FieldError{Field: f.Name, Reason: fmt.Sprintf(format, args...)}
	}
	switch f.Kind {
	case FieldText, FieldExpression:
		s, ok := v.(string)
		if !ok {
			return fail("must be a string, got %T", v)
		}
		if f.Required && s == "" {
			return fail("is required")
		}
	case FieldEnum:
		s, ok := v.(string)
		if !ok {
			return fail("must be a string, got %T", v)
		}
		if !slices.Contains(f.Options, s) {
			return fail("must be one of %v, got %q", f.Options, s)
		}
	case FieldList:
		switch l := v.(type) {
		case []string:
		case []any:
			for i, item := range l {
				if _, ok := item.(string); !ok {
					return fail("item %d must be a string, got %T", i, item)
				}
			}
		default:
			return fail("must be a list of strings, got %T", v)
		}
	case FieldObject:
		switch v.(type) {
		case map[string]any, Data:
		default:
			return fail("must be an object, got %T", v)
		}
	case FieldDuration:
		s, ok := v.(string)
		if !ok {
			return fail("must be a duration string, got %T", v)
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fail("invalid duration %q", s)
		}
	}
	return nil
}
