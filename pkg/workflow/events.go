package workflow

// EventKind identifies what changed in a [Store].
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeUpdated
	EventNodeMoved
	EventNodeDeleted
	EventEdgeAdded
	EventEdgeDeleted
	EventSelectionChanged
	// EventReplaced is emitted once after a successful [Store.ReplaceAll].
	EventReplaced
)

var eventKindNames = [...]string{
	EventNodeAdded:        "node_added",
	EventNodeUpdated:      "node_updated",
	EventNodeMoved:        "node_moved",
	EventNodeDeleted:      "node_deleted",
	EventEdgeAdded:        "edge_added",
	EventEdgeDeleted:      "edge_deleted",
	EventSelectionChanged: "selection_changed",
	EventReplaced:         "replaced",
}

// String returns the snake_case name used on the wire.
func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event describes one committed change. NodeID and EdgeID are set when the
// change concerns a single element; for EventSelectionChanged NodeID holds
// the new selection ("" when cleared).
type Event struct {
	Kind   EventKind `json:"kind"`
	NodeID string    `json:"nodeId,omitempty"`
	EdgeID string    `json:"edgeId,omitempty"`
}

// Subscribe registers fn to be called after every committed mutation, in
// commit order. fn runs synchronously on the mutating goroutine, outside the
// store lock, so it may read the store. It must not mutate the store: a
// concurrent mutation waits until every subscriber has seen the previous
// one. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// unlockAndPublish releases s.mu and delivers events. The delivery lock is
// taken before s.mu is released, so no later commit can be delivered ahead
// of this one.
func (s *Store) unlockAndPublish(events []Event) {
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]func(Event), 0, len(s.subs))
	// deliver in subscription order
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
