package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/matzehuels/flowboard/pkg/buildinfo"
	"github.com/matzehuels/flowboard/pkg/config"
	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/storage"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

type fixture struct {
	t     *testing.T
	store *workflow.Store
	srv   *Server
	docs  storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := workflow.New()
	docs := storage.Instrument(storage.NewMemoryStore(), storage.BackendMemory)
	srv := New(Options{Store: st, Docs: docs, Logger: log.New(io.Discard)})
	t.Cleanup(srv.Close)
	return &fixture{t: t, store: st, srv: srv, docs: docs}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) expect(rec *httptest.ResponseRecorder, status int) {
	f.t.Helper()
	if rec.Code != status {
		f.t.Fatalf("status = %d, want %d; body: %s", rec.Code, status, rec.Body)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) fberrors.Code {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

func TestEditingSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do("POST", "/api/nodes", `{"type":"condition","position":{"x":0,"y":0}}`)
	f.expect(rec, http.StatusCreated)
	cond := decode[fbio.Node](t, rec)
	if cond.ID != "n1" || cond.Type != "condition" {
		t.Fatalf("node = %+v", cond)
	}

	rec = f.do("POST", "/api/nodes", `{"type":"notification","position":{"x":0,"y":200}}`)
	f.expect(rec, http.StatusCreated)
	note := decode[fbio.Node](t, rec)

	rec = f.do("POST", "/api/edges", `{"source":"n1","target":"`+note.ID+`","sourceHandle":"true"}`)
	f.expect(rec, http.StatusCreated)
	edge := decode[fbio.Edge](t, rec)
	if edge.SourceHandle != "true" || edge.Target != "n2" {
		t.Errorf("edge = %+v", edge)
	}

	rec = f.do("GET", "/api/graph", "")
	f.expect(rec, http.StatusOK)
	doc := decode[fbio.Document](t, rec)
	if len(doc.Nodes) != 2 || len(doc.Edges) != 1 {
		t.Errorf("export = %d nodes, %d edges", len(doc.Nodes), len(doc.Edges))
	}

	f.expect(f.do("DELETE", "/api/nodes/n1", ""), http.StatusNoContent)
	if f.store.NodeCount() != 1 || f.store.EdgeCount() != 0 {
		t.Errorf("after delete: %s", f.store)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)
	f.store.AddNode(workflow.KindTrigger, nil, workflow.Position{})
	f.store.AddNode(workflow.KindAction, nil, workflow.Position{})

	tests := []struct {
		name         string
		method, path string
		body         string
		status       int
		code         fberrors.Code
	}{
		{"unknown type", "POST", "/api/nodes", `{"type":"webhook"}`, 400, fberrors.ErrCodeInvalidType},
		{"bad body", "POST", "/api/nodes", `{`, 400, fberrors.ErrCodeInvalidInput},
		{"unknown source", "POST", "/api/edges", `{"source":"n9","target":"n2"}`, 422, fberrors.ErrCodeUnknownNode},
		{"handle on single output", "POST", "/api/edges", `{"source":"n1","target":"n2","sourceHandle":"true"}`, 400, fberrors.ErrCodeInvalidHandle},
		{"drop on trigger", "POST", "/api/edges", `{"source":"n2","target":"n1"}`, 400, fberrors.ErrCodeInvalidHandle},
		{"missing node", "GET", "/api/nodes/n9", "", 404, fberrors.ErrCodeNotFound},
		{"move missing", "PUT", "/api/nodes/n9/position", `{"x":1,"y":1}`, 404, fberrors.ErrCodeNotFound},
		{"bad format", "GET", "/api/graph?format=xml", "", 400, fberrors.ErrCodeInvalidFormat},
		{"malformed import", "PUT", "/api/graph", `{"nodes":[{"id":"a"}]}`, 400, fberrors.ErrCodeMalformedDocument},
		{"no selection", "GET", "/api/panel", "", 404, fberrors.ErrCodeNotFound},
		{"bad document name", "PUT", "/api/documents/..bad", "", 400, fberrors.ErrCodeInvalidName},
		{"missing document", "GET", "/api/documents/nope", "", 404, fberrors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.store.Snapshot()
			rec := f.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.status, rec.Body)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
			if !f.store.Snapshot().Equal(before) {
				t.Error("rejected request changed the graph")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(fberrors.ErrCodeImportRejected) != http.StatusConflict {
		t.Error("IMPORT_REJECTED should be 409")
	}
	if StatusFor("") != http.StatusInternalServerError {
		t.Error("uncoded errors should be 500")
	}
}

func TestImportExport(t *testing.T) {
	f := newFixture(t)
	yamlDoc := `
nodes:
  - id: a
    type: trigger
    position: {x: 0, y: 0}
    data: {name: Signup, event: user.created}
  - id: b
    type: delay
    position: {x: 0, y: 100}
    data: {duration: 5m}
edges:
  - id: e1
    source: a
    target: b
`
	rec := f.do("PUT", "/api/graph?format=yaml", yamlDoc)
	f.expect(rec, http.StatusOK)
	if got := decode[summary](t, rec); got != (summary{Nodes: 2, Edges: 1}) {
		t.Errorf("summary = %+v", got)
	}

	rec = f.do("GET", "/api/graph?format=yaml", "")
	f.expect(rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "user.created") {
		t.Errorf("yaml export missing data:\n%s", rec.Body)
	}

	rec = f.do("PUT", "/api/graph?strict=true", `{"nodes":[{"id":"a","type":"delay","position":{"x":0,"y":0},"data":{"duration":"soon"}}]}`)
	f.expect(rec, http.StatusBadRequest)
	if f.store.NodeCount() != 2 {
		t.Error("strict rejection changed the graph")
	}

	rec = f.do("GET", "/api/graph.dot?detailed=true", "")
	f.expect(rec, http.StatusOK)
	if !strings.HasPrefix(rec.Body.String(), "digraph G {") {
		t.Errorf("dot = %s", rec.Body)
	}
}

func TestGestures(t *testing.T) {
	f := newFixture(t)
	cond, _ := f.store.AddNode(workflow.KindCondition, nil, workflow.Position{})
	act, _ := f.store.AddNode(workflow.KindAction, nil, workflow.Position{X: 100})

	rec := f.do("POST", "/api/canvas/drag/start", `{"id":"`+act+`","position":{"x":100,"y":0}}`)
	f.expect(rec, http.StatusOK)
	if st := decode[canvasState](t, rec); st.State != "dragging-node" || st.Dragging.ID != act {
		t.Errorf("state = %+v", st)
	}
	f.expect(f.do("POST", "/api/canvas/drag/move", `{"x":150,"y":40}`), http.StatusOK)
	rec = f.do("POST", "/api/canvas/drag/stop", `{"x":160,"y":50}`)
	f.expect(rec, http.StatusOK)
	if !decode[map[string]bool](t, rec)["moved"] {
		t.Error("drag stop should move")
	}
	if n, _ := f.store.Node(act); n.Position != (workflow.Position{X: 160, Y: 50}) {
		t.Errorf("position = %+v", n.Position)
	}
	if sel, _ := f.store.Selected(); sel != act {
		t.Errorf("selected = %q", sel)
	}

	f.expect(f.do("POST", "/api/canvas/connect/start", `{"source":"`+cond+`","sourceHandle":"false"}`), http.StatusOK)
	rec = f.do("POST", "/api/canvas/connect/end", `{"target":"`+cond+`"}`)
	f.expect(rec, http.StatusOK)
	if decode[connectEndResponse](t, rec).Connected {
		t.Error("self drop should not connect")
	}

	f.expect(f.do("POST", "/api/canvas/connect/start", `{"source":"`+cond+`","sourceHandle":"false"}`), http.StatusOK)
	rec = f.do("POST", "/api/canvas/connect/end", `{"target":"`+act+`"}`)
	f.expect(rec, http.StatusOK)
	end := decode[connectEndResponse](t, rec)
	if !end.Connected || end.EdgeID == "" {
		t.Errorf("connect end = %+v", end)
	}

	rec = f.do("POST", "/api/canvas/connect/start", `{"source":"`+cond+`","sourceHandle":"maybe"}`)
	f.expect(rec, http.StatusBadRequest)
	if st := decode[canvasState](t, f.do("GET", "/api/canvas", "")); st.State != "idle" {
		t.Errorf("state after rejected start = %s", st.State)
	}

	f.expect(f.do("PUT", "/api/selection", `{"id":"`+cond+`"}`), http.StatusOK)
	f.expect(f.do("POST", "/api/canvas/delete", ""), http.StatusNoContent)
	if f.store.NodeCount() != 1 || f.store.EdgeCount() != 0 {
		t.Errorf("after delete selection: %s", f.store)
	}
	f.expect(f.do("POST", "/api/canvas/delete", ""), http.StatusNotFound)
}

func TestNodeRoutesAbandonGesture(t *testing.T) {
	f := newFixture(t)
	cond, _ := f.store.AddNode(workflow.KindCondition, nil, workflow.Position{})
	act, _ := f.store.AddNode(workflow.KindAction, nil, workflow.Position{X: 100})

	f.expect(f.do("POST", "/api/canvas/drag/start", `{"id":"`+act+`","position":{"x":100,"y":0}}`), http.StatusOK)
	f.expect(f.do("PUT", "/api/nodes/"+act+"/position", `{"x":7,"y":8}`), http.StatusOK)
	if st := decode[canvasState](t, f.do("GET", "/api/canvas", "")); st.State != "idle" {
		t.Errorf("state after move = %s", st.State)
	}
	// a stale drag stop must not overwrite the explicit move
	f.do("POST", "/api/canvas/drag/stop", `{"x":160,"y":50}`)
	if n, _ := f.store.Node(act); n.Position != (workflow.Position{X: 7, Y: 8}) {
		t.Errorf("position = %+v", n.Position)
	}

	f.expect(f.do("POST", "/api/canvas/connect/start", `{"source":"`+cond+`","sourceHandle":"true"}`), http.StatusOK)
	f.expect(f.do("DELETE", "/api/nodes/"+cond, ""), http.StatusNoContent)
	if st := decode[canvasState](t, f.do("GET", "/api/canvas", "")); st.State != "idle" {
		t.Errorf("state after delete = %s", st.State)
	}
	f.expect(f.do("DELETE", "/api/nodes/"+cond, ""), http.StatusNotFound)
}

func TestPanel(t *testing.T) {
	f := newFixture(t)
	id, _ := f.store.AddNode(workflow.KindNotification, workflow.Data{"name": "Ping", "custom": "kept"}, workflow.Position{})
	f.store.Select(id)

	rec := f.do("PUT", "/api/panel/fields/channel", `{"value":"slack"}`)
	f.expect(rec, http.StatusOK)
	n, _ := f.store.Node(id)
	if n.Data["channel"] != "slack" || n.Data["custom"] != "kept" {
		t.Errorf("data = %v", n.Data)
	}

	rec = f.do("PATCH", "/api/panel", `{"channel":"fax"}`)
	f.expect(rec, http.StatusBadRequest)
	if errorCode(t, rec) != fberrors.ErrCodeInvalidInput {
		t.Errorf("code = %s", errorCode(t, rec))
	}

	rec = f.do("PATCH", "/api/panel", `{"name":"Ping ops"}`)
	f.expect(rec, http.StatusOK)
	view := decode[map[string]any](t, rec)
	if view["nodeId"] != id || view["type"] != "notification" {
		t.Errorf("view = %v", view)
	}

	f.expect(f.do("DELETE", "/api/panel", ""), http.StatusNoContent)
	f.expect(f.do("GET", "/api/panel", ""), http.StatusNotFound)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	f.store.AddNode(workflow.KindTrigger, workflow.Data{"name": "Start"}, workflow.Position{})

	f.expect(f.do("PUT", "/api/documents/draft", ""), http.StatusOK)
	rec := f.do("GET", "/api/documents", "")
	f.expect(rec, http.StatusOK)
	list := decode[[]storage.Info](t, rec)
	if len(list) != 1 || list[0].Name != "draft" {
		t.Fatalf("list = %+v", list)
	}

	rec = f.do("GET", "/api/documents/draft", "")
	f.expect(rec, http.StatusOK)
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}

	f.store.ReplaceAll(nil, nil)
	f.expect(f.do("POST", "/api/documents/draft/load", ""), http.StatusOK)
	if f.store.NodeCount() != 1 {
		t.Errorf("load = %s", f.store)
	}

	f.expect(f.do("DELETE", "/api/documents/draft", ""), http.StatusNoContent)
	f.expect(f.do("DELETE", "/api/documents/draft", ""), http.StatusNotFound)
}

func TestTypesAndHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/api/types", "")
	f.expect(rec, http.StatusOK)
	types := decode[[]map[string]any](t, rec)
	if len(types) != len(workflow.Kinds()) {
		t.Errorf("types = %d", len(types))
	}
	rec = f.do("GET", "/healthz", "")
	f.expect(rec, http.StatusOK)
	health := decode[struct {
		Status string         `json:"status"`
		Build  buildinfo.Info `json:"build"`
	}](t, rec)
	if health.Status != "ok" || health.Build.Version != buildinfo.Version {
		t.Errorf("health = %+v", health)
	}
	f.expect(f.do("GET", "/metrics", ""), http.StatusNotFound)
}

func TestSVGIsCached(t *testing.T) {
	f := newFixture(t)
	f.store.AddNode(workflow.KindTrigger, nil, workflow.Position{})

	rec := f.do("GET", "/api/graph.svg", "")
	f.expect(rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Fatalf("not an svg: %.200s", rec.Body)
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("first render X-Cache = %q, want MISS", got)
	}
	if got := f.do("GET", "/api/graph.svg", "").Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second render X-Cache = %q, want HIT", got)
	}

	f.store.AddNode(workflow.KindAction, nil, workflow.Position{})
	if got := f.do("GET", "/api/graph.svg", "").Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("render after edit X-Cache = %q, want MISS", got)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	f.store.AddNode(workflow.KindTrigger, nil, workflow.Position{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != "snapshot" || len(hello.Document.Nodes) != 1 {
		t.Fatalf("hello = %+v", hello)
	}

	// The subscription is in place before the snapshot is sent.
	f.store.AddNode(workflow.KindAction, nil, workflow.Position{})

	var msg struct {
		Type  string `json:"type"`
		Event struct {
			Kind   string `json:"kind"`
			NodeID string `json:"nodeId"`
		} `json:"event"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "event" || msg.Event.Kind != "node_added" || msg.Event.NodeID != "n2" {
		t.Errorf("event = %+v", msg)
	}

	f.srv.Close()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("err = %v, want going-away close", err)
	}
}

func TestEventStreamClosesWhenSnapshotCannotBeEncoded(t *testing.T) {
	f := newFixture(t)
	id, _ := f.store.AddNode(workflow.KindTrigger, nil, workflow.Position{})
	f.store.MoveNode(id, workflow.Position{X: math.NaN()})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, data, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("first frame = %q, %v; want internal-error close", data, err)
	}
	if n := f.srv.hub.count(); n != 0 {
		t.Errorf("hub still holds %d client(s)", n)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln, config.Default().Server) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Errorf("health = %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
