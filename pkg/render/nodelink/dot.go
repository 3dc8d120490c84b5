package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/flowboard/pkg/render"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed includes every data field in node labels.
	// When false, only the node name (or ID) and kind are shown.
	Detailed bool
	// Pinned places nodes at their canvas positions instead of letting
	// Graphviz lay them out. Canvas Y grows downward.
	Pinned bool
	// Highlight outlines the node with this ID, usually the selection.
	Highlight string
}

// pointsPerUnit scales canvas coordinates to Graphviz inches.
const pointsPerUnit = 1.0 / 72

var kindStyle = map[workflow.Kind]string{
	workflow.KindTrigger:      `shape=invhouse, fillcolor="#d1fae5"`,
	workflow.KindCondition:    `shape=diamond, fillcolor="#fef3c7"`,
	workflow.KindAction:       `shape=box, fillcolor="#dbeafe"`,
	workflow.KindDelay:        `shape=octagon, fillcolor="#ede9fe"`,
	workflow.KindNotification: `shape=note, fillcolor="#fee2e2"`,
}

// ToDOT converts a workflow snapshot to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG], [RenderPDF], or [RenderPNG].
//
// Each kind gets its own shape. Edges leaving a condition node are labeled
// with their branch ("true" in green, "false" in red).
func ToDOT(g workflow.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	if opts.Pinned {
		buf.WriteString("  layout=neato;\n")
	}
	buf.WriteString("  node [style=\"rounded,filled\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes {
		attrs := fmtAttrs(n, fmtLabel(n, opts.Detailed), opts)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		switch e.SourceHandle {
		case workflow.HandleTrue:
			fmt.Fprintf(&buf, "  %q -> %q [label=%q, color=\"#16a34a\"];\n", e.Source, e.Target, e.SourceHandle)
		case workflow.HandleFalse:
			fmt.Fprintf(&buf, "  %q -> %q [label=%q, color=\"#dc2626\"];\n", e.Source, e.Target, e.SourceHandle)
		case "":
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.Source, e.Target)
		default:
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.Source, e.Target, e.SourceHandle)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n workflow.Node, detailed bool) string {
	title := n.Data.String("name")
	if title == "" {
		title = n.ID
	}
	head := fmt.Sprintf("%s\n<%s>", title, n.Kind)
	if !detailed {
		return head
	}

	var parts []string
	for _, k := range slices.Sorted(maps.Keys(n.Data)) {
		if k == "name" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Data[k]))
	}
	if len(parts) == 0 {
		return head
	}
	return head + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n workflow.Node, label string, opts Options) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if style, ok := kindStyle[n.Kind]; ok {
		attrs = append(attrs, style)
	}
	if opts.Pinned {
		x := strconv.FormatFloat(n.Position.X*pointsPerUnit, 'f', 2, 64)
		y := strconv.FormatFloat(-n.Position.Y*pointsPerUnit, 'f', 2, 64)
		attrs = append(attrs, fmt.Sprintf("pos=\"%s,%s!\"", x, y))
	}
	if n.ID == opts.Highlight {
		attrs = append(attrs, "penwidth=3", "color=\"#2563eb\"")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
// Returns the SVG bytes ready for display or further conversion with [render.ToPDF] or [render.ToPNG].
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales with its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// RenderPDF renders a DOT graph as PDF via SVG conversion.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPDF(ctx context.Context, dot string) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPDF(ctx, svg)
}

// RenderPNG renders a DOT graph as PNG via SVG conversion.
// A scale of 2.0 produces a 2x resolution image.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPNG(ctx context.Context, dot string, scale float64) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPNG(ctx, svg, scale)
}
