// Package render provides visualization output for workflows.
//
// The [nodelink] subpackage turns a workflow into a Graphviz diagram. This
// package holds the format conversion it shares with other renderers:
// [ToPDF] and [ToPNG] convert any SVG using the external rsvg-convert tool
// (from librsvg).
//
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	png, err := render.ToPNG(ctx, svg, 2.0)  // 2x scale
//
// [nodelink]: github.com/matzehuels/flowboard/pkg/render/nodelink
package render
