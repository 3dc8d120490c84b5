package panel

import (
	"encoding/json"
	"errors"
	"testing"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

func selected(t *testing.T, kind workflow.Kind, data workflow.Data) (*Panel, *workflow.Store, string) {
	t.Helper()
	s := workflow.New()
	id, err := s.AddNode(kind, data, workflow.Position{})
	if err != nil {
		t.Fatal(err)
	}
	s.Select(id)
	return New(s), s, id
}

func TestView(t *testing.T) {
	p, _, id := selected(t, workflow.KindNotification, workflow.Data{
		"name":       "Notify",
		"channel":    "email",
		"x-template": "welcome",
	})

	v, ok := p.View()
	if !ok {
		t.Fatal("no view for selected node")
	}
	if v.NodeID != id || v.Kind != workflow.KindNotification || v.Label != "Notification" {
		t.Errorf("view header = %+v", v)
	}
	if len(v.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(v.Fields))
	}
	if v.Fields[0].Name != "name" || v.Fields[0].Value != "Notify" || !v.Fields[0].Set {
		t.Errorf("name field = %+v", v.Fields[0])
	}
	if v.Fields[1].Name != "recipients" || v.Fields[1].Set {
		t.Errorf("recipients should be unset: %+v", v.Fields[1])
	}
	if v.Fields[2].Kind != workflow.FieldEnum || len(v.Fields[2].Options) != 4 {
		t.Errorf("channel field = %+v", v.Fields[2])
	}
	if v.Extra["x-template"] != "welcome" || len(v.Extra) != 1 {
		t.Errorf("extra = %v", v.Extra)
	}
}

func TestViewWithoutSelection(t *testing.T) {
	p := New(workflow.New())
	if _, ok := p.View(); ok {
		t.Error("expected no view")
	}
	if err := p.Commit(workflow.Data{"name": "x"}); !fberrors.Is(err, fberrors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	if err := p.Set("name", "x"); !fberrors.Is(err, fberrors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestCommit(t *testing.T) {
	p, s, id := selected(t, workflow.KindCondition, workflow.Data{"name": "Check", "condition": "a", "x": 1})

	if err := p.Commit(workflow.Data{"condition": "age > 18", "color": "red"}); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Node(id)
	if n.Data["condition"] != "age > 18" || n.Data["color"] != "red" || n.Data["x"] != 1 || n.Data["name"] != "Check" {
		t.Errorf("data = %v", n.Data)
	}
}

func TestCommitRejectsOutOfDomain(t *testing.T) {
	tests := []struct {
		name    string
		kind    workflow.Kind
		partial workflow.Data
	}{
		{"bad channel", workflow.KindNotification, workflow.Data{"channel": "fax"}},
		{"bad duration", workflow.KindDelay, workflow.Data{"duration": "later"}},
		{"empty name", workflow.KindAction, workflow.Data{"name": ""}},
		{"mixed valid and invalid", workflow.KindNotification, workflow.Data{"name": "ok", "recipients": "not-a-list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s, id := selected(t, tt.kind, nil)
			before, _ := s.Node(id)

			err := p.Commit(tt.partial)
			if !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
				t.Fatalf("err = %v, want INVALID_INPUT", err)
			}
			var ferr *workflow.FieldError
			if !errors.As(err, &ferr) {
				t.Errorf("err should carry a FieldError: %v", err)
			}
			after, _ := s.Node(id)
			if after.Data["name"] != before.Data["name"] || len(after.Data) != len(before.Data) {
				t.Error("rejected commit changed the node")
			}
		})
	}
}

func TestSet(t *testing.T) {
	p, s, id := selected(t, workflow.KindNotification, nil)

	steps := []struct {
		field, text string
	}{
		{"name", "Page on-call"},
		{"recipients", " ops@example.com, oncall ,, "},
		{"channel", "sms"},
	}
	for _, st := range steps {
		if err := p.Set(st.field, st.text); err != nil {
			t.Fatalf("Set(%s): %v", st.field, err)
		}
	}

	n, _ := s.Node(id)
	payload, err := workflow.Decode(n)
	if err != nil {
		t.Fatal(err)
	}
	got := payload.(workflow.NotificationData)
	if got.Name != "Page on-call" || got.Channel != workflow.ChannelSMS {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Recipients) != 2 || got.Recipients[0] != "ops@example.com" || got.Recipients[1] != "oncall" {
		t.Errorf("recipients = %q", got.Recipients)
	}

	if err := p.Set("channel", "carrier pigeon"); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
	if err := p.Set("nope", "x"); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("unknown field err = %v, want INVALID_INPUT", err)
	}
}

func TestSetObjectUsesJSONNumbers(t *testing.T) {
	p, s, id := selected(t, workflow.KindAction, nil)
	if err := p.Set("params", `{"retries": 3, "url": "https://example.com"}`); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Node(id)
	params := n.Data["params"].(map[string]any)
	if params["retries"] != json.Number("3") {
		t.Errorf("retries = %#v", params["retries"])
	}
	if err := p.Set("params", `[1,2]`); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestCloseKeepsCommittedData(t *testing.T) {
	p, s, id := selected(t, workflow.KindCondition, nil)
	p.Set("condition", "total > 100")
	p.Close()

	if _, ok := s.Selected(); ok {
		t.Error("Close should clear selection")
	}
	if _, ok := p.View(); ok {
		t.Error("no view after Close")
	}
	n, _ := s.Node(id)
	if n.Data["condition"] != "total > 100" {
		t.Errorf("committed data lost: %v", n.Data)
	}
}

func TestFormat(t *testing.T) {
	notif, _ := workflow.Lookup(workflow.KindNotification)
	recipients, _ := notif.Field("recipients")
	action, _ := workflow.Lookup(workflow.KindAction)
	params, _ := action.Field("params")
	name, _ := action.Field("name")

	tests := []struct {
		field workflow.Field
		value any
		want  string
	}{
		{recipients, []any{"a", "b"}, "a, b"},
		{recipients, []string{"c"}, "c"},
		{params, map[string]any{"k": "v"}, `{"k":"v"}`},
		{name, "Send", "Send"},
		{name, nil, ""},
		{name, 42, "42"},
	}
	for _, tt := range tests {
		if got := Format(tt.field, tt.value); got != tt.want {
			t.Errorf("Format(%s, %v) = %q, want %q", tt.field.Name, tt.value, got, tt.want)
		}
	}
}
