// Package pkg provides the core libraries for Flowboard workflow editing.
//
// # Overview
//
// Flowboard edits automation workflows as node-link graphs: triggers start a
// flow, conditions branch it, and actions, delays and notifications do the
// work. The pkg directory is organized into four areas:
//
//  1. Domain: [workflow] (graph store and node type registry), [canvas]
//     (connection and selection gestures) and [panel] (field editing)
//  2. Serialization: [io] (JSON and YAML documents with validation)
//  3. Infrastructure: [storage], [cache], [config], [observability]
//  4. Surfaces: [render] (Graphviz diagrams) and [server] (HTTP and live events)
//
// # Architecture
//
// Every edit flows through a single store, whatever surface issues it:
//
//	document (.json / .yaml / storage backend)
//	         ↓
//	    [io] Import (validate, reject, or replace atomically)
//	         ↓
//	    [workflow] Store  ←  [canvas] / [panel] gestures
//	         ↓
//	    subscribers (editor, server events, metrics)
//	         ↓
//	    [io] Export / [render] diagrams
//
// # Quick Start
//
//	st := workflow.New()
//	c := canvas.New(st)
//
//	trigger, _ := c.AddNode(workflow.KindTrigger, workflow.Position{})
//	check, _ := c.AddNode(workflow.KindCondition, workflow.Position{Y: 150})
//	c.OnConnect(trigger, check, "")
//
//	p := panel.New(st)
//	p.Set("condition", "order.total > 100")
//	p.Close()
//
//	doc := io.Export(st)
//	data, _ := io.Marshal(doc, io.FormatYAML)
//
// # Errors
//
// All packages return [errors.Error] values carrying a stable code
// (INVALID_HANDLE, MALFORMED_DOCUMENT, IMPORT_REJECTED, ...), so callers can
// branch with [errors.Is] regardless of which layer failed.
//
// [workflow]: github.com/matzehuels/flowboard/pkg/workflow
// [canvas]: github.com/matzehuels/flowboard/pkg/canvas
// [panel]: github.com/matzehuels/flowboard/pkg/panel
// [io]: github.com/matzehuels/flowboard/pkg/io
// [storage]: github.com/matzehuels/flowboard/pkg/storage
// [cache]: github.com/matzehuels/flowboard/pkg/cache
// [config]: github.com/matzehuels/flowboard/pkg/config
// [observability]: github.com/matzehuels/flowboard/pkg/observability
// [render]: github.com/matzehuels/flowboard/pkg/render
// [server]: github.com/matzehuels/flowboard/pkg/server
// [errors.Error]: github.com/matzehuels/flowboard/pkg/errors
// [errors.Is]: github.com/matzehuels/flowboard/pkg/errors#Is
package pkg
