package workflow

import (
	"errors"
	"fmt"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
)

var (
	// ErrInvalidID is returned when a node or edge id is empty or contains
	// characters that cannot round-trip through a document.
	ErrInvalidID = errors.New("invalid id")

	// ErrDuplicateNodeID is returned by [Validate] when two nodes share an id.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrDuplicateEdgeID is returned by [Validate] when two edges share an id.
	ErrDuplicateEdgeID = errors.New("duplicate edge ID")

	// ErrUnknownKind is returned for a node whose kind is not in the registry.
	ErrUnknownKind = errors.New("unknown node type")

	// ErrUnknownSourceNode is returned when an edge's source does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned when an edge's target does not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrInvalidHandle is returned when an edge's source handle is not one of
	// the source kind's branch handles, or is set on a single-output kind.
	ErrInvalidHandle = errors.New("invalid source handle")

	// ErrBranchOccupied is returned by [Validate] when a branch-limited node has
	// more than one edge on the same handle.
	ErrBranchOccupied = errors.New("branch handle already connected")
)

// Validate checks nodes and edges against graph invariants 1-3: unique
// node and edge ids, known kinds, resolvable edge endpoints, valid source
// handles and at most one edge per branch handle. It returns the first
// violation found, wrapped with the offending node or edge id.
func Validate(nodes []Node, edges []Edge) error {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if fberrors.ValidateIdentifier(n.ID) != nil {
			return fmt.Errorf("node %q: %w", n.ID, ErrInvalidID)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("node %s: %w", n.ID, ErrDuplicateNodeID)
		}
		if _, ok := Lookup(n.Kind); !ok {
			return fmt.Errorf("node %s: %w: %q", n.ID, ErrUnknownKind, n.Kind)
		}
		byID[n.ID] = n
	}

	type branch struct{ source, handle string }
	edgeIDs := make(map[string]bool, len(edges))
	branches := make(map[branch]string)
	for _, e := range edges {
		if fberrors.ValidateIdentifier(e.ID) != nil {
			return fmt.Errorf("edge %q: %w", e.ID, ErrInvalidID)
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("edge %s: %w", e.ID, ErrDuplicateEdgeID)
		}
		edgeIDs[e.ID] = true

		src, ok := byID[e.Source]
		if !ok {
			return fmt.Errorf("edge %s: %w: %q", e.ID, ErrUnknownSourceNode, e.Source)
		}
		if _, ok := byID[e.Target]; !ok {
			return fmt.Errorf("edge %s: %w: %q", e.ID, ErrUnknownTargetNode, e.Target)
		}

		t, _ := Lookup(src.Kind)
		if !t.HasHandle(e.SourceHandle) {
			return fmt.Errorf("edge %s: %w %q for %s node", e.ID, ErrInvalidHandle, e.SourceHandle, src.Kind)
		}
		if t.BranchLimited() {
			key := branch{e.Source, e.SourceHandle}
			if prior, taken := branches[key]; taken {
				return fmt.Errorf("edge %s: %w: %s[%s] is used by %s", e.ID, ErrBranchOccupied, e.Source, e.SourceHandle, prior)
			}
			branches[key] = e.ID
		}
	}
	return nil
}
