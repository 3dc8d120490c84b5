package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowboard/pkg/cache"
	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/render/nodelink"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
	formatPDF = "pdf"
	formatPNG = "png"

	defaultPNGScale = 2.0
)

// validFormats lists the supported output formats in flag order.
var validFormats = []string{formatSVG, formatDOT, formatPDF, formatPNG}

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output    string   // output file, base path for several formats, or "-" for stdout
	formats   []string // output formats: "svg", "dot", "pdf", "png"
	detailed  bool     // every data field in node labels
	pinned    bool     // keep canvas positions instead of Graphviz layout
	highlight string   // node ID to outline
	scale     float64  // PNG resolution multiplier
	noCache   bool     // skip the render cache
}

func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{scale: defaultPNGScale}

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a workflow diagram",
		Long: `Render a workflow document as a node-link diagram with Graphviz.

Each node kind gets its own shape and condition branches are colored. PDF
and PNG output need rsvg-convert (librsvg) on the PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return runRender(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format), base path (several), or - for stdout")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, pdf, png (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show every data field in node labels")
	cmd.Flags().BoolVar(&opts.pinned, "pinned", false, "place nodes at their canvas positions")
	cmd.Flags().StringVar(&opts.highlight, "highlight", "", "node ID to outline")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "PNG resolution multiplier")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "render even when a cached result exists")
	cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return validFormats, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// parseFormats parses the --format flag. If empty, defaults to ["svg"].
func parseFormats(s string) []string {
	if s == "" {
		return []string{formatSVG}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func validateFormats(formats []string) error {
	for _, f := range formats {
		if !slices.Contains(validFormats, f) {
			return fberrors.New(fberrors.ErrCodeInvalidFormat, "invalid format: %s (must be one of %s)", f, strings.Join(validFormats, ", "))
		}
	}
	return nil
}

// basePath derives the base output path. If output is empty, it strips the
// extension from input; a known format extension on output is stripped too.
func basePath(output, input string) string {
	if output == "" {
		return strings.TrimSuffix(input, filepath.Ext(input))
	}
	ext := filepath.Ext(output)
	if slices.Contains(validFormats, strings.TrimPrefix(ext, ".")) {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// outputPath returns where format is written. A single format honors an
// explicit output verbatim.
func outputPath(opts *renderOpts, input, format string) string {
	if len(opts.formats) == 1 && opts.output != "" {
		return opts.output
	}
	return basePath(opts.output, input) + "." + format
}

func runRender(ctx context.Context, input string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	st, err := loadFile(ctx, input, false)
	if err != nil {
		return err
	}
	if opts.highlight != "" {
		if _, ok := st.Node(opts.highlight); !ok {
			return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", opts.highlight)
		}
	}
	if opts.output == "-" && len(opts.formats) > 1 {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "cannot write %d formats to stdout", len(opts.formats))
	}

	rc := openRenderCache(opts.noCache)
	defer rc.Close()

	g := st.Snapshot()
	dot := nodelink.ToDOT(g, nodelink.Options{
		Detailed:  opts.detailed,
		Pinned:    opts.pinned,
		Highlight: opts.highlight,
	})
	logger.Debugf("Generated DOT: %d bytes", len(dot))

	for _, format := range opts.formats {
		data, hit, err := cache.GetOrSet(ctx, rc, cache.Key(format, dot, opts.scale), 0, func() ([]byte, error) {
			return renderFormat(ctx, dot, format, opts.scale)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", format, err)
		}
		if hit {
			logger.Debugf("Using cached %s", format)
		}
		if opts.output == "-" {
			_, err := stdout.Write(data)
			return err
		}
		path := outputPath(opts, input, format)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fberrors.Wrap(fberrors.ErrCodeStorage, err, "write %s", path)
		}
		printFile(path)
	}
	prog.done(fmt.Sprintf("Rendered %d nodes", len(g.Nodes)))
	return nil
}

// renderFormat turns DOT into the requested output. Only the raster and
// PDF paths shell out, so they get a spinner.
func renderFormat(ctx context.Context, dot, format string, scale float64) ([]byte, error) {
	switch format {
	case formatDOT:
		return []byte(dot), nil
	case formatSVG:
		return nodelink.RenderSVG(ctx, dot)
	case formatPDF:
		return withSpinner(ctx, "Converting to PDF", func() ([]byte, error) {
			return nodelink.RenderPDF(ctx, dot)
		})
	case formatPNG:
		return withSpinner(ctx, "Converting to PNG", func() ([]byte, error) {
			return nodelink.RenderPNG(ctx, dot, scale)
		})
	}
	return nil, fberrors.New(fberrors.ErrCodeInvalidFormat, "unknown format: %s", format)
}

// openRenderCache opens the on-disk render cache. A cache that cannot be
// created is not an error; rendering just goes uncached.
func openRenderCache(disabled bool) cache.Cache {
	if disabled {
		return cache.NewNullCache()
	}
	fc, err := cache.NewFileCache("")
	if err != nil {
		return cache.NewNullCache()
	}
	return fc
}

// =============================================================================
// types
// =============================================================================

func (c *CLI) typesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the node types and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{}
			for _, t := range workflow.Types() {
				input := "yes"
				if !t.Input {
					input = "no"
				}
				rows = append(rows, []string{
					styleKind(t.Kind),
					t.Label,
					describeFields(t.Fields),
					strings.Join(t.Handles, ", "),
					input,
				})
			}
			printTable([]string{"Type", "Label", "Fields", "Branches", "Input"}, rows)
			return nil
		},
	}
}

// describeFields renders "name:kind" pairs, starring required fields and
// listing enum options.
func describeFields(fields []workflow.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		s := f.Name + ":" + f.Kind.String()
		if len(f.Options) > 0 {
			s += "(" + strings.Join(f.Options, "|") + ")"
		}
		if f.Required {
			s += "*"
		}
		parts[i] = s
	}
	return strings.Join(parts, " ")
}
