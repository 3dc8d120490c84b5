package workflow

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/observability"
)

// Store is the authoritative owner of a workflow graph and its selection.
//
// Every mutation either fully succeeds or leaves the store unchanged, and
// graph invariants hold after each call. A single mutex serializes
// mutations, so hosts that call from several goroutines never observe a
// half-applied change. Subscribers are notified after the lock is released,
// one commit at a time.
//
// The zero value is not usable - use [New].
type Store struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	order    []string // node ids in insertion order
	edges    []Edge
	selected string
	nextNode uint64

	newEdgeID func() string

	subs    map[int]func(Event)
	nextSub int
	deliver sync.Mutex // held while one commit's events are delivered
}

// Option configures a Store.
type Option func(*Store)

// WithEdgeIDs replaces the edge id generator (UUIDs by default).
func WithEdgeIDs(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newEdgeID = gen
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:     make(map[string]*Node),
		edges:     []Edge{},
		newEdgeID: uuid.NewString,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const nodeIDPrefix = "n"

// AddNode inserts a node of the given kind and returns its fresh id.
// When data is empty the registry defaults for the kind are used.
// Returns an INVALID_TYPE error if kind is not registered.
func (s *Store) AddNode(kind Kind, data Data, pos Position) (string, error) {
	t, ok := Lookup(kind)
	if !ok {
		err := fberrors.Wrap(fberrors.ErrCodeInvalidType, ErrUnknownKind, "add node: type %q", kind)
		observability.Store().OnMutation("add_node", err)
		return "", err
	}
	if len(data) == 0 {
		data = t.Defaults()
	} else {
		data = data.Clone()
	}

	s.mu.Lock()
	var id string
	for {
		s.nextNode++
		id = nodeIDPrefix + strconv.FormatUint(s.nextNode, 10)
		if _, taken := s.nodes[id]; !taken {
			break
		}
	}
	s.nodes[id] = &Node{ID: id, Kind: kind, Position: pos, Data: data}
	s.order = append(s.order, id)
	s.unlockAndPublish([]Event{{Kind: EventNodeAdded, NodeID: id}})

	observability.Store().OnMutation("add_node", nil)
	return id, nil
}

// UpdateNode shallow-merges partial into the node's data; keys in partial
// win. It never changes the node's kind. Reports false (and does nothing)
// if the node does not exist.
func (s *Store) UpdateNode(id string, partial Data) bool {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	for k, v := range partial {
		n.Data[k] = cloneValue(v)
	}
	s.unlockAndPublish([]Event{{Kind: EventNodeUpdated, NodeID: id}})

	observability.Store().OnMutation("update_node", nil)
	return true
}

// MoveNode overwrites the node's position. Reports false if the node does not exist.
func (s *Store) MoveNode(id string, pos Position) bool {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	n.Position = pos
	s.unlockAndPublish([]Event{{Kind: EventNodeMoved, NodeID: id}})

	observability.Store().OnMutation("move_node", nil)
	return true
}

// DeleteNode removes the node, every edge touching it, and the selection if
// it pointed at the node. Reports false if the node does not exist.
func (s *Store) DeleteNode(id string) bool {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return false
	}
	var events []Event
	delete(s.nodes, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool {
		if e.Source == id || e.Target == id {
			events = append(events, Event{Kind: EventEdgeDeleted, EdgeID: e.ID})
			return true
		}
		return false
	})
	events = append(events, Event{Kind: EventNodeDeleted, NodeID: id})
	if s.selected == id {
		s.selected = ""
		events = append(events, Event{Kind: EventSelectionChanged})
	}
	s.unlockAndPublish(events)

	observability.Store().OnMutation("delete_node", nil)
	return true
}

// AddEdge connects source to target and returns the new edge id.
//
// Returns an UNKNOWN_NODE error if either endpoint is missing and an
// INVALID_HANDLE error if handle is not a branch of the source's kind (or is
// set on a single-output kind). For branch-limited sources an existing edge
// on the same (source, handle) pair is removed first, so a branch always has
// at most one live connection.
func (s *Store) AddEdge(source, target, handle string) (string, error) {
	s.mu.Lock()
	id, events, err := s.addEdgeLocked(source, target, handle)
	s.unlockAndPublish(events)

	observability.Store().OnMutation("add_edge", err)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) addEdgeLocked(source, target, handle string) (string, []Event, error) {
	src, ok := s.nodes[source]
	if !ok {
		return "", nil, fberrors.Wrap(fberrors.ErrCodeUnknownNode, ErrUnknownSourceNode, "add edge: %q", source)
	}
	if _, ok := s.nodes[target]; !ok {
		return "", nil, fberrors.Wrap(fberrors.ErrCodeUnknownNode, ErrUnknownTargetNode, "add edge: %q", target)
	}
	t, _ := Lookup(src.Kind)
	if !t.HasHandle(handle) {
		return "", nil, fberrors.Wrap(fberrors.ErrCodeInvalidHandle, ErrInvalidHandle,
			"add edge: handle %q on %s node %s (valid: %s)", handle, src.Kind, source, handleList(t))
	}

	var events []Event
	if t.BranchLimited() {
		s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool {
			if e.Source == source && e.SourceHandle == handle {
				events = append(events, Event{Kind: EventEdgeDeleted, EdgeID: e.ID})
				return true
			}
			return false
		})
	}

	id := s.newEdgeID()
	for s.hasEdgeLocked(id) {
		id = s.newEdgeID()
	}
	s.edges = append(s.edges, Edge{ID: id, Source: source, Target: target, SourceHandle: handle})
	events = append(events, Event{Kind: EventEdgeAdded, EdgeID: id})
	return id, events, nil
}

func (s *Store) hasEdgeLocked(id string) bool {
	return slices.ContainsFunc(s.edges, func(e Edge) bool { return e.ID == id })
}

func handleList(t NodeType) string {
	if !t.BranchLimited() {
		return "none"
	}
	return strings.Join(t.Handles, ", ")
}

// DeleteEdge removes the edge. Reports false if it does not exist.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()
	before := len(s.edges)
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return e.ID == id })
	if len(s.edges) == before {
		s.mu.Unlock()
		return false
	}
	s.unlockAndPublish([]Event{{Kind: EventEdgeDeleted, EdgeID: id}})

	observability.Store().OnMutation("delete_edge", nil)
	return true
}

// Select sets the current selection. An empty id clears it. Selecting an id
// that does not exist is a no-op that keeps the prior selection.
func (s *Store) Select(id string) {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.nodes[id]; !ok {
			s.mu.Unlock()
			return
		}
	}
	if s.selected == id {
		s.mu.Unlock()
		return
	}
	s.selected = id
	s.unlockAndPublish([]Event{{Kind: EventSelectionChanged, NodeID: id}})
}

// ReplaceAll atomically replaces the whole graph. nodes and edges are
// validated with [Validate] first; on failure an IMPORT_REJECTED error is
// returned and the store is left untouched. On success the selection is
// cleared and node id allocation continues past every imported "n<seq>" id,
// so ids are never reused.
func (s *Store) ReplaceAll(nodes []Node, edges []Edge) error {
	if err := Validate(nodes, edges); err != nil {
		err = fberrors.Wrap(fberrors.ErrCodeImportRejected, err, "replace graph")
		observability.Store().OnReplace(len(nodes), len(edges), err)
		return err
	}

	byID := make(map[string]*Node, len(nodes))
	order := make([]string, 0, len(nodes))
	var maxSeq uint64
	for _, n := range nodes {
		c := n.Clone()
		byID[c.ID] = &c
		order = append(order, c.ID)
		if seq, ok := parseNodeSeq(c.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	copied := slices.Clone(edges)
	if copied == nil {
		copied = []Edge{}
	}

	s.mu.Lock()
	s.nodes = byID
	s.order = order
	s.edges = copied
	hadSelection := s.selected != ""
	s.selected = ""
	if maxSeq > s.nextNode {
		s.nextNode = maxSeq
	}
	events := []Event{{Kind: EventReplaced}}
	if hadSelection {
		events = append(events, Event{Kind: EventSelectionChanged})
	}
	s.unlockAndPublish(events)

	observability.Store().OnReplace(len(nodes), len(edges), nil)
	return nil
}

func parseNodeSeq(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, nodeIDPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodesLocked()
}

func (s *Store) nodesLocked() []Node {
	out := make([]Node, len(s.order))
	for i, id := range s.order {
		out[i] = s.nodes[id].Clone()
	}
	return out
}

// Edges returns a copy of all edges in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.edges)
}

// Edge returns the edge with the given id.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return Edge{}, false
	}
	return s.edges[i], true
}

// Outgoing returns the edges leaving the node.
func (s *Store) Outgoing(id string) []Edge {
	return s.filterEdges(func(e Edge) bool { return e.Source == id })
}

// Incoming returns the edges entering the node.
func (s *Store) Incoming(id string) []Edge {
	return s.filterEdges(func(e Edge) bool { return e.Target == id })
}

func (s *Store) filterEdges(keep func(Edge) bool) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Edge
	for _, e := range s.edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Selected returns the selected node id, if any.
func (s *Store) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

// Snapshot returns a consistent deep copy of nodes, edges and selection.
func (s *Store) Snapshot() Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Graph{
		Nodes:    s.nodesLocked(),
		Edges:    slices.Clone(s.edges),
		Selected: s.selected,
	}
}

// String summarizes the store for logs.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("workflow(%d nodes, %d edges)", len(s.nodes), len(s.edges))
}
