package workflow

import (
	"fmt"
	"time"
)

// Payload is the typed view of a node's data. Exactly one implementation
// exists per Kind; use a type switch on the result of [Decode] to handle
// each variant.
type Payload interface {
	Kind() Kind
	// Data converts the payload back to its map form. Only recognized
	// fields are included.
	Data() Data
}

// TriggerData starts a workflow when Event fires.
type TriggerData struct {
	Name  string
	Event string
}

// ConditionData routes to the "true" or "false" branch depending on Condition.
type ConditionData struct {
	Name      string
	Condition string
}

// ActionData runs a named action with parameters.
type ActionData struct {
	Name   string
	Action string
	Params map[string]any
}

// DelayData pauses the workflow.
type DelayData struct {
	Name     string
	Duration time.Duration
}

// NotificationData sends a message to Recipients over Channel.
type NotificationData struct {
	Name       string
	Recipients []string
	Channel    Channel // empty when unset
}

func (TriggerData) Kind() Kind      { return KindTrigger }
func (ConditionData) Kind() Kind    { return KindCondition }
func (ActionData) Kind() Kind       { return KindAction }
func (DelayData) Kind() Kind        { return KindDelay }
func (NotificationData) Kind() Kind { return KindNotification }

func (p TriggerData) Data() Data { return Data{"name": p.Name, "event": p.Event} }

func (p ConditionData) Data() Data { return Data{"name": p.Name, "condition": p.Condition} }

func (p ActionData) Data() Data {
	d := Data{"name": p.Name, "action": p.Action}
	if p.Params != nil {
		d["params"] = cloneValue(p.Params)
	}
	return d
}

func (p DelayData) Data() Data { return Data{"name": p.Name, "duration": p.Duration.String()} }

func (p NotificationData) Data() Data {
	d := Data{"name": p.Name}
	if p.Recipients != nil {
		d["recipients"] = append([]string(nil), p.Recipients...)
	}
	if p.Channel != "" {
		d["channel"] = string(p.Channel)
	}
	return d
}

// Decode returns the typed payload of n. It fails if the kind is unknown or
// a recognized field is outside its domain.
func Decode(n Node) (Payload, error) {
	t, ok := Lookup(n.Kind)
	if !ok {
		return nil, fmt.Errorf("decode %s: %w: %q", n.ID, ErrUnknownKind, n.Kind)
	}
	for _, f := range t.Fields {
		if v, ok := n.Data[f.Name]; ok && v != nil {
			if err := f.CheckValue(v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", n.ID, err)
			}
		}
	}

	d := n.Data
	switch n.Kind {
	case KindTrigger:
		return TriggerData{Name: d.String("name"), Event: d.String("event")}, nil
	case KindCondition:
		return ConditionData{Name: d.String("name"), Condition: d.String("condition")}, nil
	case KindAction:
		p := ActionData{Name: d.String("name"), Action: d.String("action")}
		switch m := d["params"].(type) {
		case map[string]any:
			p.Params = cloneValue(m).(map[string]any)
		case Data:
			p.Params = map[string]any(m.Clone())
		}
		return p, nil
	case KindDelay:
		p := DelayData{Name: d.String("name")}
		if s := d.String("duration"); s != "" {
			p.Duration, _ = time.ParseDuration(s)
		}
		return p, nil
	case KindNotification:
		return NotificationData{
			Name:       d.String("name"),
			Recipients: stringList(d["recipients"]),
			Channel:    Channel(d.String("channel")),
		}, nil
	}
	panic(fmt.Sprintf("workflow: kind %q registered without a payload", n.Kind))
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
