// Package canvas translates pointer gestures on the workflow canvas into
// [workflow.Store] mutations.
//
// The [Controller] is a small state machine with three states: idle,
// dragging a node, and drawing an edge. Pointer events that belong to a
// gesture only update the controller's transient state; the store is touched
// once, when the gesture completes. Hosts (the HTTP API, the terminal
// editor) wire their input events to the On* methods and know nothing about
// the store's invariants.
//
//	c := canvas.New(store)
//	c.OnNodeDragStart("n1", workflow.Position{X: 10, Y: 10})
//	c.OnNodeDrag(workflow.Position{X: 40, Y: 12})
//	c.OnNodeDragStop(workflow.Position{X: 80, Y: 20}) // one MoveNode call
//
// Every method is synchronous and safe for concurrent use.
package canvas

import (
	"errors"
	"fmt"
	"sync"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// State is the gesture state of a [Controller].
type State int

const (
	Idle State = iota
	DraggingNode
	DrawingEdge
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DraggingNode:
		return "dragging-node"
	case DrawingEdge:
		return "drawing-edge"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrInvalidDrop is returned by [Controller.OnConnect] when the target is not
// a valid input region: a missing node, a node kind without an input, or the
// source node itself.
var ErrInvalidDrop = errors.New("not a valid connection target")

// Controller owns transient gesture state for one canvas.
type Controller struct {
	store *workflow.Store

	mu    sync.Mutex
	state State

	// dragging-node
	dragID    string
	dragStart workflow.Position
	dragPos   workflow.Position

	// drawing-edge
	edgeSource string
	edgeHandle string
}

// New returns an idle controller driving store.
func New(store *workflow.Store) *Controller {
	return &Controller{store: store}
}

// Store returns the store the controller mutates.
func (c *Controller) Store() *workflow.Store { return c.store }

// State returns the current gesture state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnPaneClick handles a click on empty canvas: the selection is cleared and
// any gesture in progress is abandoned.
func (c *Controller) OnPaneClick() {
	c.Cancel()
	c.store.Select("")
}

// OnNodeClick selects the node. Clicking a node that does not exist keeps
// the prior selection.
func (c *Controller) OnNodeClick(id string) {
	c.Cancel()
	c.store.Select(id)
}

// OnNodeDragStart enters the dragging-node state for id and selects it. It
// reports false, and stays idle, if the node does not exist. A gesture
// already in progress is abandoned.
func (c *Controller) OnNodeDragStart(id string, pos workflow.Position) bool {
	n, ok := c.store.Node(id)

	c.mu.Lock()
	c.resetLocked()
	if ok {
		c.state = DraggingNode
		c.dragID = id
		c.dragStart = n.Position
		c.dragPos = pos
	}
	c.mu.Unlock()

	if ok {
		c.store.Select(id)
	}
	return ok
}

// OnNodeDrag records an intermediate pointer position. Intermediate
// positions are view state only and are never written to the store.
func (c *Controller) OnNodeDrag(pos workflow.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == DraggingNode {
		c.dragPos = pos
	}
}

// OnNodeDragStop commits pos as the dragged node's position and returns to
// idle. It reports whether a move was committed; false means there was no
// drag in progress, the node ended where it started, or it was deleted
// mid-gesture.
func (c *Controller) OnNodeDragStop(pos workflow.Position) bool {
	c.mu.Lock()
	if c.state != DraggingNode {
		c.mu.Unlock()
		return false
	}
	id, start := c.dragID, c.dragStart
	c.resetLocked()
	c.mu.Unlock()

	if pos == start {
		return false
	}
	return c.store.MoveNode(id, pos)
}

// Dragging returns the node being dragged and its current preview position.
func (c *Controller) Dragging() (id string, pos workflow.Position, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != DraggingNode {
		return "", workflow.Position{}, false
	}
	return c.dragID, c.dragPos, true
}

// OnConnectStart enters the drawing-edge state from source's output handle.
// It fails with UNKNOWN_NODE if source does not exist and INVALID_HANDLE if
// handle is not an output of the source's kind; the controller then stays
// idle.
func (c *Controller) OnConnectStart(source, handle string) error {
	if err := c.checkSource(source, handle); err != nil {
		c.Cancel()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.state = DrawingEdge
	c.edgeSource = source
	c.edgeHandle = handle
	return nil
}

// OnConnectEnd completes an edge drawn with [Controller.OnConnectStart] by
// dropping it on target. If target is not a valid input region the gesture
// is abandoned without touching the store and ok is false.
func (c *Controller) OnConnectEnd(target string) (edgeID string, ok bool) {
	c.mu.Lock()
	if c.state != DrawingEdge {
		c.mu.Unlock()
		return "", false
	}
	source, handle := c.edgeSource, c.edgeHandle
	c.resetLocked()
	c.mu.Unlock()

	if !c.acceptsInput(source, target) {
		return "", false
	}
	id, err := c.store.AddEdge(source, target, handle)
	if err != nil {
		// source deleted mid-gesture
		return "", false
	}
	return id, true
}

// Connecting returns the source and handle of the edge being drawn.
func (c *Controller) Connecting() (source, handle string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != DrawingEdge {
		return "", "", false
	}
	return c.edgeSource, c.edgeHandle, true
}

// OnConnect is the one-shot form of a connect gesture, for hosts that report
// only the completed drop. It returns [ErrInvalidDrop] (coded INVALID_HANDLE)
// when target is not a valid input region, and the store's error when the
// source or handle is invalid.
func (c *Controller) OnConnect(source, target, handle string) (string, error) {
	c.Cancel()
	if err := c.checkSource(source, handle); err != nil {
		return "", err
	}
	if !c.acceptsInput(source, target) {
		return "", fberrors.Wrap(fberrors.ErrCodeInvalidHandle, ErrInvalidDrop, "connect %s to %q", source, target)
	}
	return c.store.AddEdge(source, target, handle)
}

// AddNode places a new node of kind at pos with the registry defaults and
// selects it.
func (c *Controller) AddNode(kind workflow.Kind, pos workflow.Position) (string, error) {
	c.Cancel()
	id, err := c.store.AddNode(kind, nil, pos)
	if err != nil {
		return "", err
	}
	c.store.Select(id)
	return id, nil
}

// DeleteSelection deletes the selected node together with its edges. It
// reports false when nothing is selected.
func (c *Controller) DeleteSelection() bool {
	c.Cancel()
	id, ok := c.store.Selected()
	if !ok {
		return false
	}
	return c.store.DeleteNode(id)
}

// MoveNode is the one-shot form of a drag: it places id at pos, abandoning
// any gesture in progress. It reports false if the node does not exist.
// Unlike a drag it leaves the selection alone.
func (c *Controller) MoveNode(id string, pos workflow.Position) bool {
	c.Cancel()
	return c.store.MoveNode(id, pos)
}

// DeleteNode deletes id together with its edges, abandoning any gesture in
// progress. The selection is cleared if it was id.
func (c *Controller) DeleteNode(id string) bool {
	c.Cancel()
	return c.store.DeleteNode(id)
}

// DeleteEdge removes a single edge.
func (c *Controller) DeleteEdge(id string) bool {
	return c.store.DeleteEdge(id)
}

// Cancel abandons the gesture in progress without any store mutation.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.state = Idle
	c.dragID, c.dragStart, c.dragPos = "", workflow.Position{}, workflow.Position{}
	c.edgeSource, c.edgeHandle = "", ""
}

func (c *Controller) checkSource(source, handle string) error {
	n, ok := c.store.Node(source)
	if !ok {
		return fberrors.Wrap(fberrors.ErrCodeUnknownNode, workflow.ErrUnknownSourceNode, "connect from %q", source)
	}
	t, _ := n.Type()
	if !t.HasHandle(handle) {
		return fberrors.Wrap(fberrors.ErrCodeInvalidHandle, workflow.ErrInvalidHandle,
			"connect from %s: handle %q", source, handle)
	}
	return nil
}

// acceptsInput reports whether target is a valid drop region for an edge
// leaving source.
func (c *Controller) acceptsInput(source, target string) bool {
	if target == source {
		return false
	}
	n, ok := c.store.Node(target)
	if !ok {
		return false
	}
	t, _ := n.Type()
	return t.Input
}
