// Package workflow provides the graph model of a flowboard automation
// workflow: typed nodes connected by directed edges, plus the selection
// state shared by every editor surface.
//
// # Overview
//
// A workflow is a directed graph. Each [Node] has a [Kind] that selects its
// data shape and how many outgoing branches it has. Condition nodes branch
// on the "true" and "false" handles; every other kind has a single output.
//
// The [Store] owns the graph. Hosts such as the canvas controller and the
// config panel mutate it through a small set of operations, each of which
// either fully succeeds or leaves the graph unchanged:
//
//	s := workflow.New()
//	check, _ := s.AddNode(workflow.KindCondition, workflow.Data{"name": "Check age", "condition": "age > 18"}, workflow.Position{})
//	notify, _ := s.AddNode(workflow.KindNotification, workflow.Data{"name": "Notify"}, workflow.Position{Y: 150})
//	_, err := s.AddEdge(check, notify, workflow.HandleTrue)
//
// # Invariants
//
// After every mutation:
//
//  1. Node ids are unique. Ids are allocated as "n1", "n2", ... and never reused.
//  2. Every edge's source and target exist. Deleting a node deletes its edges.
//  3. A branch-limited node has at most one edge per handle. Connecting an
//     occupied handle replaces the previous edge.
//  4. At most one node is selected, and the selection always resolves.
//
// [Validate] checks invariants 1-3 for an arbitrary node and edge set and is
// what [Store.ReplaceAll] and the document importer rely on.
//
// # Node Types
//
// The registry ([Lookup], [Types]) is a static table. For each kind it lists
// the data fields the config panel renders (with their value domains), the
// output handles, whether the node accepts incoming connections, and a
// human label. [Decode] turns a node's map data into its typed [Payload]
// ([ConditionData], [NotificationData], ...).
//
// # Change Notification
//
// [Store.Subscribe] registers a callback that receives an [Event] for each
// committed change, in order. The HTTP server uses this to stream changes to
// browsers; the terminal editor uses it to refresh its view.
//
// # Concurrency
//
// Store methods are safe for concurrent use. Mutations are serialized and
// subscribers run after the lock is released, on the goroutine that made
// the change.
package workflow
