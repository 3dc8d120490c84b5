// Package io provides JSON and YAML import and export for workflow graphs.
//
// # Overview
//
// A workflow document is the portable form of a [workflow.Store]: every node
// and edge, with nothing else wrapped around them. The format is designed
// for:
//
//   - Round-trip fidelity: import(export(G)) equals G, positions exact
//   - Forward compatibility: unknown node data fields are kept verbatim
//   - Exchange with the browser editor, which reads and writes the same shape
//
// # Document Format
//
// The format has two top-level arrays:
//
//	{
//	  "nodes": [
//	    {"id": "n1", "type": "condition", "position": {"x": 0, "y": 0},
//	     "data": {"name": "Check age", "condition": "age > 18"}},
//	    {"id": "n2", "type": "notification", "position": {"x": 0, "y": 150},
//	     "data": {"name": "Notify"}}
//	  ],
//	  "edges": [
//	    {"id": "e1", "source": "n1", "target": "n2", "sourceHandle": "true"}
//	  ]
//	}
//
// Node fields id, type and position are required; data defaults to an empty
// object. Edge fields id, source and target are required; sourceHandle is
// present only for edges leaving a condition node. YAML documents use the
// same field names.
//
// # Import
//
// [ReadJSON] and [ReadYAML] decode a [Document]; [Import] checks it and
// returns the node and edge collections for [workflow.Store.ReplaceAll]:
//
//	doc, err := io.ReadJSON(r)
//	nodes, edges, err := io.Import(doc, io.ImportOptions{})
//	err = store.ReplaceAll(nodes, edges)
//
// Import fails with a MALFORMED_DOCUMENT error if a required field is
// missing, ids repeat, an edge references a missing node, a handle is invalid
// or a condition branch is connected twice. With [ImportOptions].Strict the
// data of every node must also match its type's field domains. [Load] does
// all of the above from a [Source] and never applies a partial import.
//
// JSON numbers inside node data are decoded as [encoding/json.Number] so
// integers and decimals survive a round trip unchanged.
//
// # Export
//
// [Export] snapshots a store into a [Document]; [WriteJSON] and [WriteYAML]
// encode it, and [Save] hands the encoded bytes to a [Sink].
//
// # Sources and Sinks
//
// The gateway itself performs no I/O beyond "read a document" and "hand a
// document over". [Source] and [Sink] are those two primitives; files
// ([FileSource], [FileSink]) and the document stores in pkg/storage
// implement them.
package io
