package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/observability"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) || !fberrors.Is(err, fberrors.ErrCodeNotFound) {
		t.Fatalf("Get missing err = %v, want ErrNotFound/NOT_FOUND", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete missing err = %v, want ErrNotFound", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("List empty = %v, %v", list, err)
	}

	doc := []byte(`{"nodes":[],"edges":[]}`)
	info, err := s.Put(ctx, "onboarding", doc)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Name != "onboarding" || info.Size != len(doc) || info.Checksum != Hash(doc) {
		t.Errorf("info = %+v", info)
	}

	e, err := s.Get(ctx, "onboarding")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(e.Data) != string(doc) || e.Checksum != Hash(doc) {
		t.Errorf("entry = %+v / %s", e.Info, e.Data)
	}
	if e.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	updated := []byte(`{"nodes":[{"id":"n1"}],"edges":[]}`)
	if _, err := s.Put(ctx, "onboarding", updated); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "alerts", doc); err != nil {
		t.Fatal(err)
	}
	e, _ = s.Get(ctx, "onboarding")
	if string(e.Data) != string(updated) {
		t.Errorf("Put should replace, got %s", e.Data)
	}

	list, err = s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "alerts" || list[1].Name != "onboarding" {
		t.Fatalf("List = %+v", list)
	}
	if list[1].Size != len(updated) || list[1].Checksum != Hash(updated) {
		t.Errorf("List info = %+v", list[1])
	}

	if err := s.Delete(ctx, "alerts"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "alerts"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 {
		t.Errorf("List after delete = %+v", list)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)

	path, err := s.Path("onboarding")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "onboarding.json") {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("document file missing: %v", err)
	}
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub.json"), 0o755)

	list, err := s.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Errorf("List = %+v, %v", list, err)
	}
}

func TestFileStoreRejectsBadNames(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	for _, name := range []string{"", "../escape", "a/b", `a\b`, ".hidden"} {
		if _, err := s.Put(context.Background(), name, []byte("{}")); !fberrors.Is(err, fberrors.ErrCodeInvalidName) {
			t.Errorf("Put(%q) err = %v, want INVALID_NAME", name, err)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: BackendFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)

	if _, err := Open(ctx, Config{Backend: "s3"}); !fberrors.Is(err, fberrors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}
}

type recordingHooks struct {
	observability.NoopStorageHooks
	mu    sync.Mutex
	calls []string
}

func (r *recordingHooks) OnLoad(_ context.Context, backend, name string, _ int, _ time.Duration, err error) {
	r.record("load", backend, name, err)
}

func (r *recordingHooks) OnSave(_ context.Context, backend, name string, _ int, _ time.Duration, err error) {
	r.record("save", backend, name, err)
}

func (r *recordingHooks) record(op, backend, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.calls = append(r.calls, op+" "+backend+" "+name+" "+result)
}

func TestInstrumentReportsHooks(t *testing.T) {
	observability.Reset()
	defer observability.Reset()
	hooks := &recordingHooks{}
	observability.SetStorageHooks(hooks)

	ctx := context.Background()
	s := Instrument(NewMemoryStore(), "memory")
	s.Put(ctx, "flow", []byte("{}"))
	s.Get(ctx, "flow")
	s.Get(ctx, "nope")

	want := []string{"save memory flow ok", "load memory flow ok", "load memory nope error"}
	if len(hooks.calls) != len(want) {
		t.Fatalf("calls = %v", hooks.calls)
	}
	for i := range want {
		if hooks.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, hooks.calls[i], want[i])
		}
	}

	if _, err := s.Get(ctx, "../x"); !fberrors.Is(err, fberrors.ErrCodeInvalidName) {
		t.Errorf("err = %v, want INVALID_NAME", err)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	e := Entry{Info: Info{Name: "x", Checksum: Hash([]byte("a"))}, Data: []byte("b")}
	if _, err := verify(e); !errors.Is(err, ErrCorrupt) || !fberrors.Is(err, fberrors.ErrCodeStorage) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
	e.Data = []byte("a")
	if _, err := verify(e); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestAdaptersWithGateway(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	wf := workflow.New()
	a, _ := wf.AddNode(workflow.KindTrigger, workflow.Data{"name": "Signup", "event": "user.created"}, workflow.Position{})
	b, _ := wf.AddNode(workflow.KindDelay, nil, workflow.Position{Y: 100})
	wf.AddEdge(a, b, "")

	if err := io.Save(ctx, wf, Sink(st, "signup"), io.FormatJSON); err != nil {
		t.Fatal(err)
	}

	loaded := workflow.New()
	if err := io.Load(ctx, loaded, Source(st, "signup"), io.FormatJSON, io.ImportOptions{Strict: true}); err != nil {
		t.Fatal(err)
	}
	if !wf.Snapshot().Equal(loaded.Snapshot()) {
		t.Error("document did not survive storage")
	}

	err := io.Load(ctx, loaded, Source(st, "missing"), io.FormatJSON, io.ImportOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if loaded.NodeCount() != 2 {
		t.Error("failed load changed the workflow")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}
