package buildinfo

import (
	"strings"
	"testing"
)

func TestGetReflectsLinkerVariables(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	defer func() { Version, Commit, Date = oldV, oldC, oldD }()

	Version, Commit, Date = "v1.2.3", "abc123", "2026-01-02T03:04:05Z"
	if got := Get(); got != (Info{Version: "v1.2.3", Commit: "abc123", Date: "2026-01-02T03:04:05Z"}) {
		t.Errorf("Get() = %+v", got)
	}
	if tmpl := Template(); !strings.Contains(tmpl, "v1.2.3") || !strings.Contains(tmpl, "{{.Name}}") {
		t.Errorf("Template() = %q", tmpl)
	}
}
