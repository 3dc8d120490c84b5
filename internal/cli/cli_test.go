package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// run executes the root command with args against a config file that does
// not exist, so every test starts from the defaults.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	old := stdout
	stdout = &out
	t.Cleanup(func() { stdout = old })

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.toml")}, args...))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func load(t *testing.T, path string) *workflow.Store {
	t.Helper()
	st, err := loadFile(context.Background(), path, false)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return st
}

func TestCommandsRegistered(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"new", "validate", "convert", "render", "types", "node", "edge", "edit", "serve", "docs", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, path := range [][]string{{"node", "add"}, {"node", "set"}, {"edge", "add"}, {"docs", "put"}} {
		if cmd, _, err := root.Find(path); err != nil || cmd.Name() != path[1] {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestSetupHonorsConfigAndVerbose(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[log]\nlevel = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want log.Level
	}{
		{"from file", []string{"--config", cfgPath, "types"}, log.WarnLevel},
		{"verbose wins", []string{"--config", cfgPath, "-v", "types"}, log.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := stdout
			stdout = io.Discard
			defer func() { stdout = old }()

			c := New(io.Discard, LogInfo)
			root := c.RootCommand()
			root.SetArgs(tt.args)
			if err := root.Execute(); err != nil {
				t.Fatal(err)
			}
			if got := c.Logger.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBadConfigFails(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[storage]\nbackend = \"ftp\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs([]string{"--config", cfgPath, "types"})
	root.SetErr(io.Discard)
	err := root.Execute()
	if !fberrors.Is(err, fberrors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, fberrors.New(fberrors.ErrCodeNotFound, "node n9 not found"))
	if !strings.Contains(buf.String(), "node n9 not found") || !strings.Contains(buf.String(), "NOT_FOUND") {
		t.Errorf("PrintError = %q", buf.String())
	}

	buf.Reset()
	PrintError(&buf, context.Canceled)
	if !strings.Contains(buf.String(), "cancelled") {
		t.Errorf("PrintError(canceled) = %q", buf.String())
	}
}

func TestNewValidateConvert(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "flow.json")
	dst := filepath.Join(dir, "flow.yaml")

	mustRun(t, "new", src, "--template", "welcome")
	out := mustRun(t, "validate", "--strict", src)
	if !strings.Contains(out, "is valid") {
		t.Errorf("validate output = %q", out)
	}

	mustRun(t, "convert", src, dst)
	a, b := load(t, src), load(t, dst)
	if !a.Snapshot().Equal(b.Snapshot()) {
		t.Errorf("converted graph differs:\n%s\n%s", a, b)
	}
	if a.NodeCount() != 5 || a.EdgeCount() != 4 {
		t.Errorf("welcome = %d nodes, %d edges, want 5, 4", a.NodeCount(), a.EdgeCount())
	}
}

func TestNewRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	mustRun(t, "new", path)
	if _, err := run(t, "new", path); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("second new: err = %v, want INVALID_INPUT", err)
	}
	mustRun(t, "new", path, "--force", "-t", "welcome")
	if n := load(t, path).NodeCount(); n != 5 {
		t.Errorf("forced overwrite left %d nodes", n)
	}
	if _, err := run(t, "new", path, "--force", "-t", "nope"); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("unknown template: err = %v", err)
	}
}

func TestValidateStrictFailsOnWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	mustRun(t, "new", path)
	mustRun(t, "node", "add", path, "action")

	out, err := run(t, "validate", path)
	if err != nil {
		t.Fatalf("lenient validate: %v", err)
	}
	if !strings.Contains(out, "no trigger") {
		t.Errorf("expected trigger warning, got %q", out)
	}
	if _, err := run(t, "validate", "--strict", path); !errors.Is(err, errLintFailed) {
		t.Errorf("strict validate: err = %v, want errLintFailed", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	if err := os.WriteFile(path, []byte(`{"nodes":[{"id":"a"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "validate", path); !fberrors.Is(err, fberrors.ErrCodeMalformedDocument) {
		t.Errorf("err = %v, want MALFORMED_DOCUMENT", err)
	}
	if _, err := run(t, "validate", filepath.Join(t.TempDir(), "missing.json")); !fberrors.Is(err, fberrors.ErrCodeNotFound) {
		t.Errorf("missing file: err = %v, want NOT_FOUND", err)
	}
}

func TestLint(t *testing.T) {
	tests := []struct {
		name  string
		build func(*workflow.Store)
		want  []string
	}{
		{"empty", func(*workflow.Store) {}, nil},
		{"clean", func(s *workflow.Store) { buildWelcome(s) }, nil},
		{"no trigger", func(s *workflow.Store) {
			s.AddNode(workflow.KindAction, nil, workflow.Position{})
		}, []string{"unreachable", "no trigger"}},
		{"open branch", func(s *workflow.Store) {
			tr, _ := s.AddNode(workflow.KindTrigger, nil, workflow.Position{})
			c, _ := s.AddNode(workflow.KindCondition, workflow.Data{"name": "c", "condition": "x"}, workflow.Position{})
			a, _ := s.AddNode(workflow.KindAction, nil, workflow.Position{})
			s.AddEdge(tr, c, "")
			s.AddEdge(c, a, workflow.HandleTrue)
		}, []string{`branch "false"`}},
		{"bad field", func(s *workflow.Store) {
			s.AddNode(workflow.KindTrigger, workflow.Data{"name": ""}, workflow.Position{})
		}, []string{`field "name"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := workflow.New()
			tt.build(s)
			issues := lint(s.Snapshot())
			var msgs []string
			for _, is := range issues {
				msgs = append(msgs, is.Message)
			}
			joined := strings.Join(msgs, "; ")
			if len(tt.want) == 0 && len(issues) > 0 {
				t.Errorf("unexpected issues: %s", joined)
			}
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("issues %q missing %q", joined, w)
				}
			}
		})
	}
}

func TestNodeAndEdgeCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	mustRun(t, "new", path)

	mustRun(t, "node", "add", path, "trigger", "name=Start", "event=order.created")
	mustRun(t, "node", "add", path, "condition", "--y", "100", "condition=order.total > 100")
	mustRun(t, "node", "add", path, "notification", "--y", "200", "recipients=ops@example.com,sales@example.com", "channel=slack")
	mustRun(t, "edge", "add", path, "n1", "n2")
	mustRun(t, "edge", "add", path, "n2", "n3", "--handle", "true")

	st := load(t, path)
	n1, _ := st.Node("n1")
	if n1.Data.String("name") != "Start" || n1.Data.String("event") != "order.created" {
		t.Errorf("n1 data = %v", n1.Data)
	}
	n3, _ := st.Node("n3")
	if n3.Data.String("channel") != "slack" || n3.Position.Y != 200 {
		t.Errorf("n3 = %+v", n3)
	}
	if st.EdgeCount() != 2 {
		t.Fatalf("edges = %d, want 2", st.EdgeCount())
	}

	// Rewiring the true branch replaces its edge.
	mustRun(t, "node", "add", path, "action")
	out := mustRun(t, "edge", "add", path, "n2", "n4", "--handle", "true")
	if !strings.Contains(out, "replaced edge") {
		t.Errorf("expected replacement note, got %q", out)
	}
	if st := load(t, path); st.EdgeCount() != 2 || len(st.Incoming("n3")) != 0 {
		t.Errorf("branch not replaced: %s", st)
	}

	errTests := []struct {
		name string
		args []string
		code fberrors.Code
	}{
		{"unknown type", []string{"node", "add", path, "webhook"}, fberrors.ErrCodeInvalidType},
		{"bad assignment", []string{"node", "add", path, "action", "name"}, fberrors.ErrCodeInvalidInput},
		{"bad enum", []string{"node", "set", path, "n3", "channel=fax"}, fberrors.ErrCodeInvalidInput},
		{"unknown field", []string{"node", "set", path, "n3", "color=red"}, fberrors.ErrCodeInvalidInput},
		{"set missing node", []string{"node", "set", path, "n9", "name=x"}, fberrors.ErrCodeNotFound},
		{"into trigger", []string{"edge", "add", path, "n2", "n1", "--handle", "false"}, fberrors.ErrCodeInvalidHandle},
		{"self loop", []string{"edge", "add", path, "n4", "n4"}, fberrors.ErrCodeInvalidHandle},
		{"missing handle", []string{"edge", "add", path, "n2", "n4"}, fberrors.ErrCodeInvalidHandle},
		{"unknown source", []string{"edge", "add", path, "n9", "n4"}, fberrors.ErrCodeUnknownNode},
		{"bad coordinate", []string{"node", "move", path, "n1", "left", "0"}, fberrors.ErrCodeInvalidInput},
		{"NaN coordinate", []string{"node", "move", path, "n1", "NaN", "0"}, fberrors.ErrCodeInvalidInput},
		{"infinite coordinate", []string{"node", "move", path, "n1", "0", "+Inf"}, fberrors.ErrCodeInvalidInput},
		{"NaN flag", []string{"node", "add", path, "action", "--x", "NaN"}, fberrors.ErrCodeInvalidInput},
		{"rm missing edge", []string{"edge", "rm", path, "nope"}, fberrors.ErrCodeNotFound},
	}
	before := load(t, path).Snapshot()
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if !fberrors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
			if after := load(t, path).Snapshot(); !after.Equal(before) {
				t.Error("failed command modified the document")
			}
		})
	}

	mustRun(t, "node", "move", path, "n1", "--", "40", "-10")
	if n, _ := load(t, path).Node("n1"); n.Position != (workflow.Position{X: 40, Y: -10}) {
		t.Errorf("position = %+v", n.Position)
	}
	out = mustRun(t, "node", "rm", path, "n2")
	if !strings.Contains(out, "2 edge(s)") {
		t.Errorf("rm output = %q", out)
	}
	if st := load(t, path); st.NodeCount() != 3 || st.EdgeCount() != 0 {
		t.Errorf("after rm: %s", st)
	}
}

func TestNodeList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	mustRun(t, "new", path, "-t", "welcome")
	out := mustRun(t, "node", "ls", path)
	for _, want := range []string{"n1", "User signed up", "condition", "5 nodes"} {
		if !strings.Contains(out, want) {
			t.Errorf("node ls missing %q:\n%s", want, out)
		}
	}
}

func TestTypesCommand(t *testing.T) {
	out := mustRun(t, "types")
	for _, k := range workflow.Kinds() {
		if !strings.Contains(out, string(k)) {
			t.Errorf("types output missing %s", k)
		}
	}
	if !strings.Contains(out, "email|sms|push|slack") {
		t.Errorf("types output missing channel options:\n%s", out)
	}
}

func TestDocsCommands(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	src := filepath.Join(dir, "flow.json")
	mustRun(t, "new", src, "-t", "welcome")

	out := mustRun(t, "docs", "ls", "--dir", docs)
	if !strings.Contains(out, "No documents") {
		t.Errorf("empty ls = %q", out)
	}

	mustRun(t, "docs", "put", "--dir", docs, "onboarding", src)
	out = mustRun(t, "docs", "ls", "--dir", docs)
	if !strings.Contains(out, "onboarding") {
		t.Errorf("ls after put = %q", out)
	}

	out = mustRun(t, "docs", "get", "--dir", docs, "onboarding", "-f", "yaml")
	if !strings.Contains(out, "User signed up") {
		t.Errorf("get = %q", out)
	}
	exported := filepath.Join(dir, "copy.yaml")
	mustRun(t, "docs", "get", "--dir", docs, "onboarding", "-o", exported)
	if !load(t, exported).Snapshot().Equal(load(t, src).Snapshot()) {
		t.Error("exported document differs from source")
	}

	out = mustRun(t, "docs", "path", "--dir", docs, "onboarding")
	if strings.TrimSpace(out) != filepath.Join(docs, "onboarding.json") {
		t.Errorf("path = %q", out)
	}

	if _, err := run(t, "docs", "put", "--dir", docs, "../escape", src); !fberrors.Is(err, fberrors.ErrCodeInvalidName) {
		t.Errorf("bad name: err = %v", err)
	}
	mustRun(t, "docs", "rm", "--dir", docs, "onboarding")
	if _, err := run(t, "docs", "get", "--dir", docs, "onboarding"); !fberrors.Is(err, fberrors.ErrCodeNotFound) {
		t.Errorf("get after rm: err = %v", err)
	}
}

func TestServeRejectsSaveWithoutFile(t *testing.T) {
	if _, err := run(t, "serve", "--save"); !fberrors.Is(err, fberrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}
