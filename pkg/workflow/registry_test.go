package workflow

import (
	"testing"
	"time"
)

func TestEveryKindRegisteredAndDecodable(t *testing.T) {
	for _, k := range Kinds() {
		typ, ok := Lookup(k)
		if !ok {
			t.Fatalf("kind %s has no registry entry", k)
		}
		if typ.Kind != k || typ.Label == "" {
			t.Errorf("entry for %s = %+v", k, typ)
		}
		if _, ok := typ.Field("name"); !ok {
			t.Errorf("%s has no name field", k)
		}
		p, err := Decode(Node{ID: "n1", Kind: k, Data: typ.Defaults()})
		if err != nil {
			t.Errorf("Decode(%s defaults): %v", k, err)
			continue
		}
		if p.Kind() != k {
			t.Errorf("payload kind = %s, want %s", p.Kind(), k)
		}
		if issues := typ.Check(typ.Defaults()); len(issues) != 0 {
			t.Errorf("%s defaults fail their own check: %v", k, issues)
		}
	}
	if len(Types()) != len(registry) {
		t.Errorf("Types() lists %d kinds, registry has %d", len(Types()), len(registry))
	}
}

func TestHandles(t *testing.T) {
	tests := []struct {
		kind   Kind
		handle string
		want   bool
	}{
		{KindCondition, HandleTrue, true},
		{KindCondition, HandleFalse, true},
		{KindCondition, "", false},
		{KindCondition, "other", false},
		{KindAction, "", true},
		{KindAction, HandleTrue, false},
		{KindTrigger, "", true},
	}
	for _, tt := range tests {
		typ, _ := Lookup(tt.kind)
		if got := typ.HasHandle(tt.handle); got != tt.want {
			t.Errorf("%s.HasHandle(%q) = %v, want %v", tt.kind, tt.handle, got, tt.want)
		}
	}

	trig, _ := Lookup(KindTrigger)
	if trig.Input {
		t.Error("trigger must not accept incoming connections")
	}
	cond, _ := Lookup(KindCondition)
	if !cond.BranchLimited() {
		t.Error("condition should be branch-limited")
	}
}

func TestDefaultsAreFresh(t *testing.T) {
	typ, _ := Lookup(KindDelay)
	a := typ.Defaults()
	a["duration"] = "5h"
	if b := typ.Defaults(); b["duration"] != "1m" {
		t.Errorf("defaults shared between calls: %v", b)
	}
}

func TestFieldCheckValue(t *testing.T) {
	notif, _ := Lookup(KindNotification)
	channel, _ := notif.Field("channel")
	recipients, _ := notif.Field("recipients")
	delay, _ := Lookup(KindDelay)
	duration, _ := delay.Field("duration")
	action, _ := Lookup(KindAction)
	params, _ := action.Field("params")
	name, _ := action.Field("name")

	tests := []struct {
		name  string
		field Field
		value any
		ok    bool
	}{
		{"enum valid", channel, "slack", true},
		{"enum invalid", channel, "pager", false},
		{"enum wrong type", channel, 3, false},
		{"list of strings", recipients, []string{"a@b.c"}, true},
		{"list of any strings", recipients, []any{"a@b.c", "ops"}, true},
		{"list with number", recipients, []any{"a", 1}, false},
		{"list wrong type", recipients, "a@b.c", false},
		{"duration valid", duration, "90s", true},
		{"duration invalid", duration, "soon", false},
		{"object", params, map[string]any{"url": "x"}, true},
		{"object wrong type", params, []any{}, false},
		{"required text empty", name, "", false},
		{"text", name, "Send", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.CheckValue(tt.value)
			if (err == nil) != tt.ok {
				t.Errorf("CheckValue(%v) = %v, want ok=%v", tt.value, err, tt.ok)
			}
		})
	}
}

func TestCheckIgnoresUnknownFields(t *testing.T) {
	typ, _ := Lookup(KindCondition)
	issues := typ.Check(Data{"name": "c", "condition": "x", "color": 12})
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
	issues = typ.Check(Data{"condition": "x"})
	if len(issues) != 1 || issues[0].Field != "name" {
		t.Errorf("missing name not reported: %v", issues)
	}
}

func TestDecode(t *testing.T) {
	p, err := Decode(Node{ID: "n1", Kind: KindNotification, Data: Data{
		"name":       "Alert",
		"recipients": []any{"ops@example.com", "oncall"},
		"channel":    "email",
		"extra":      true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	n, ok := p.(NotificationData)
	if !ok {
		t.Fatalf("payload = %T", p)
	}
	if n.Channel != ChannelEmail || len(n.Recipients) != 2 || n.Recipients[1] != "oncall" {
		t.Errorf("payload = %+v", n)
	}

	p, err = Decode(Node{ID: "n2", Kind: KindDelay, Data: Data{"name": "Wait", "duration": "2m30s"}})
	if err != nil {
		t.Fatal(err)
	}
	if d := p.(DelayData); d.Duration != 150*time.Second {
		t.Errorf("duration = %v", d.Duration)
	}
	if got := p.Data()["duration"]; got != "2m30s" {
		t.Errorf("Data() duration = %v", got)
	}

	if _, err := Decode(Node{ID: "n3", Kind: KindNotification, Data: Data{"channel": "fax"}}); err == nil {
		t.Error("expected error for invalid channel")
	}
	if _, err := Decode(Node{ID: "n4", Kind: "widget"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
