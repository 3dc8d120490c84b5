// Package nodelink renders workflows as node-link diagrams.
//
// # Usage
//
// Convert a workflow snapshot to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(store.Snapshot(), nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// For PDF or PNG output:
//
//	pdf, err := nodelink.RenderPDF(ctx, dot)
//	png, err := nodelink.RenderPNG(ctx, dot, 2.0)  // 2x scale
//
// # Options
//
//   - Detailed: node labels list every data field
//   - Pinned: use canvas positions (neato, pos="x,y!") instead of automatic layout
//   - Highlight: outline one node, usually the current selection
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering. PDF and PNG conversion requires librsvg (rsvg-convert).
package nodelink
