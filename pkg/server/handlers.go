package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/flowboard/pkg/buildinfo"
	"github.com/matzehuels/flowboard/pkg/cache"
	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/render/nodelink"
	"github.com/matzehuels/flowboard/pkg/storage"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p positionRequest) pos() workflow.Position { return workflow.Position{X: p.X, Y: p.Y} }

type summary struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

func (s *Server) summary() summary {
	return summary{Nodes: s.store.NodeCount(), Edges: s.store.EdgeCount()}
}

func nodeWire(n workflow.Node) fbio.Node {
	return fbio.FromGraph(workflow.Graph{Nodes: []workflow.Node{n}}).Nodes[0]
}

func edgeWire(e workflow.Edge) fbio.Edge {
	return fbio.FromGraph(workflow.Graph{Edges: []workflow.Edge{e}}).Edges[0]
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func queryFormat(r *http.Request) (fbio.Format, error) {
	f := r.URL.Query().Get("format")
	if f == "" {
		return fbio.FormatJSON, nil
	}
	return fbio.ParseFormat(f)
}

// =============================================================================
// Meta
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Get(), "graph": s.summary()})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, workflow.Types())
}

// =============================================================================
// Whole graph
// =============================================================================

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := queryFormat(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := fbio.Marshal(fbio.Export(s.store), f)
	if err != nil {
		s.respondError(w, r, fberrors.Wrap(fberrors.ErrCodeInternal, err, "export"))
		return
	}
	s.respondBytes(w, f.ContentType(), data)
}

// handleImport replaces the graph with the request body. ?strict=true also
// checks data fields against the registry.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	f, err := queryFormat(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	body := fbio.SourceFunc(func(context.Context) ([]byte, error) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			return nil, fberrors.Wrap(fberrors.ErrCodeInvalidInput, err, "read request body")
		}
		return data, nil
	})
	opts := fbio.ImportOptions{Strict: queryBool(r, "strict")}
	if err := fbio.Load(r.Context(), s.store, body, f, opts); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("Imported workflow", "nodes", s.store.NodeCount(), "edges", s.store.EdgeCount())
	s.respondJSON(w, http.StatusOK, s.summary())
}

func (s *Server) renderOptions(r *http.Request) nodelink.Options {
	return nodelink.Options{
		Detailed:  queryBool(r, "detailed"),
		Pinned:    queryBool(r, "pinned"),
		Highlight: r.URL.Query().Get("highlight"),
	}
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	dot := nodelink.ToDOT(s.store.Snapshot(), s.renderOptions(r))
	s.respondBytes(w, "text/vnd.graphviz", []byte(dot))
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	dot := nodelink.ToDOT(s.store.Snapshot(), s.renderOptions(r))
	svg, hit, err := cache.GetOrSet(r.Context(), s.renders, cache.Key("svg", dot), 0, func() ([]byte, error) {
		return nodelink.RenderSVG(r.Context(), dot)
	})
	if err != nil {
		s.respondError(w, r, fberrors.Wrap(fberrors.ErrCodeInternal, err, "render svg"))
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	s.respondBytes(w, "image/svg+xml", svg)
}

// =============================================================================
// Nodes and edges
// =============================================================================

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, fbio.Export(s.store).Nodes)
}

type addNodeRequest struct {
	Type     string          `json:"type"`
	Position positionRequest `json:"position"`
}

// handleAddNode places a node with registry defaults and selects it.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, err := s.canvas.AddNode(workflow.Kind(req.Type), req.Position.pos())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	n, _ := s.store.Node(id)
	s.respondJSON(w, http.StatusCreated, nodeWire(n))
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	n, ok := s.store.Node(id)
	if !ok {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, nodeWire(n))
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	var req positionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if !s.canvas.MoveNode(id, req.pos()) {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id))
		return
	}
	n, _ := s.store.Node(id)
	s.respondJSON(w, http.StatusOK, nodeWire(n))
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	if !s.canvas.DeleteNode(id) {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, fbio.Export(s.store).Edges)
}

type connectRequest struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, err := s.canvas.OnConnect(req.Source, req.Target, req.SourceHandle)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	e, _ := s.store.Edge(id)
	s.respondJSON(w, http.StatusCreated, edgeWire(e))
}

func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "edgeID")
	if !s.canvas.DeleteEdge(id) {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "edge %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Selection and gestures
// =============================================================================

type selectionResponse struct {
	Selected string `json:"selected"`
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	id, _ := s.store.Selected()
	s.respondJSON(w, http.StatusOK, selectionResponse{Selected: id})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, ok := s.store.Node(req.ID); !ok {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", req.ID))
		return
	}
	s.canvas.OnNodeClick(req.ID)
	s.handleGetSelection(w, r)
}

func (s *Server) handlePaneClick(w http.ResponseWriter, r *http.Request) {
	s.canvas.OnPaneClick()
	w.WriteHeader(http.StatusNoContent)
}

type canvasState struct {
	State      string             `json:"state"`
	Dragging   *dragState         `json:"dragging,omitempty"`
	Connecting *connectStartState `json:"connecting,omitempty"`
}

type dragState struct {
	ID       string            `json:"id"`
	Position workflow.Position `json:"position"`
}

type connectStartState struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

func (s *Server) handleCanvasState(w http.ResponseWriter, r *http.Request) {
	st := canvasState{State: s.canvas.State().String()}
	if id, pos, ok := s.canvas.Dragging(); ok {
		st.Dragging = &dragState{ID: id, Position: pos}
	}
	if src, h, ok := s.canvas.Connecting(); ok {
		st.Connecting = &connectStartState{Source: src, SourceHandle: h}
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleDragStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string          `json:"id"`
		Position positionRequest `json:"position"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if !s.canvas.OnNodeDragStart(req.ID, req.Position.pos()) {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", req.ID))
		return
	}
	s.handleCanvasState(w, r)
}

func (s *Server) handleDragMove(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.canvas.OnNodeDrag(req.pos())
	s.handleCanvasState(w, r)
}

func (s *Server) handleDragStop(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	moved := s.canvas.OnNodeDragStop(req.pos())
	s.respondJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func (s *Server) handleConnectStart(w http.ResponseWriter, r *http.Request) {
	var req connectStartState
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.canvas.OnConnectStart(req.Source, req.SourceHandle); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handleCanvasState(w, r)
}

type connectEndResponse struct {
	Connected bool   `json:"connected"`
	EdgeID    string `json:"edgeId,omitempty"`
}

// handleConnectEnd drops the edge being drawn. An invalid drop is not an
// error: the gesture is abandoned and connected is false.
func (s *Server) handleConnectEnd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, ok := s.canvas.OnConnectEnd(req.Target)
	s.respondJSON(w, http.StatusOK, connectEndResponse{Connected: ok, EdgeID: id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.canvas.Cancel()
	s.handleCanvasState(w, r)
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	if !s.canvas.DeleteSelection() {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "no node selected"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Config panel
// =============================================================================

func (s *Server) handlePanelView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.panel.View()
	if !ok {
		s.respondError(w, r, fberrors.New(fberrors.ErrCodeNotFound, "no node selected"))
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

func (s *Server) handlePanelCommit(w http.ResponseWriter, r *http.Request) {
	var partial workflow.Data
	if err := decodeBody(w, r, &partial); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.panel.Commit(partial); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handlePanelView(w, r)
}

func (s *Server) handlePanelSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.panel.Set(chi.URLParam(r, "field"), req.Value); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handlePanelView(w, r)
}

func (s *Server) handlePanelClose(w http.ResponseWriter, r *http.Request) {
	s.panel.Close()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Stored documents
// =============================================================================

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	list, err := s.docs.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	e, err := s.docs.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(e.Checksum))
	s.respondBytes(w, fbio.FormatJSON.ContentType(), e.Data)
}

// handleSaveDocument stores the current graph under name.
func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := fbio.Save(r.Context(), s.store, storage.Sink(s.docs, name), fbio.FormatJSON); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("Saved document", "name", name)
	s.respondJSON(w, http.StatusOK, s.summary())
}

// handleLoadDocument replaces the graph with the stored document.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	opts := fbio.ImportOptions{Strict: queryBool(r, "strict")}
	if err := fbio.Load(r.Context(), s.store, storage.Source(s.docs, name), fbio.FormatJSON, opts); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("Loaded document", "name", name)
	s.respondJSON(w, http.StatusOK, s.summary())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
