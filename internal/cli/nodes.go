package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowboard/pkg/canvas"
	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/panel"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// parseAssignments splits "field=value" arguments.
func parseAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fberrors.New(fberrors.ErrCodeInvalidInput, "expected field=value, got %q", a)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}

// applyFields selects id and sets each field through the config panel, so
// values are parsed and checked exactly as in the editor.
func applyFields(st *workflow.Store, id string, sets [][2]string) error {
	st.Select(id)
	p := panel.New(st)
	defer p.Close()
	for _, kv := range sets {
		if err := p.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fberrors.Wrap(fberrors.ErrCodeInvalidInput, err, "coordinate %q", s)
	}
	if err := checkFinite(s, v); err != nil {
		return 0, err
	}
	return v, nil
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "coordinate %s is not a finite number", name)
	}
	return nil
}

func completeKinds(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	kinds := workflow.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// =============================================================================
// node
// =============================================================================

func (c *CLI) nodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Edit nodes of a workflow document",
	}
	cmd.AddCommand(c.nodeListCommand())
	cmd.AddCommand(c.nodeAddCommand())
	cmd.AddCommand(c.nodeRemoveCommand())
	cmd.AddCommand(c.nodeSetCommand())
	cmd.AddCommand(c.nodeMoveCommand())
	return cmd
}

func (c *CLI) nodeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls <file>",
		Aliases: []string{"list"},
		Short:   "List nodes and their outgoing edges",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadFile(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			rows := [][]string{}
			for _, n := range st.Nodes() {
				var outs []string
				for _, e := range st.Outgoing(n.ID) {
					if e.SourceHandle != "" {
						outs = append(outs, styleHandle(e.SourceHandle)+" "+iconArrow+" "+e.Target)
					} else {
						outs = append(outs, iconArrow+" "+e.Target)
					}
				}
				rows = append(rows, []string{
					n.ID,
					styleKind(n.Kind),
					n.Data.String("name"),
					fmt.Sprintf("%g,%g", n.Position.X, n.Position.Y),
					strings.Join(outs, "  "),
				})
			}
			printTable([]string{"ID", "Type", "Name", "Position", "Edges"}, rows)
			printStats(st.NodeCount(), st.EdgeCount())
			return nil
		},
	}
}

func (c *CLI) nodeAddCommand() *cobra.Command {
	var x, y float64

	cmd := &cobra.Command{
		Use:   "add <file> <type> [field=value...]",
		Short: "Add a node with default data, optionally overriding fields",
		Args:  cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return completeKinds(cmd, args, toComplete)
			}
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			if err := checkFinite("x", x); err != nil {
				return err
			}
			if err := checkFinite("y", y); err != nil {
				return err
			}
			var id string
			_, err = editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				id, err = canvas.New(st).AddNode(workflow.Kind(args[1]), workflow.Position{X: x, Y: y})
				if err != nil {
					return err
				}
				return applyFields(st, id, sets)
			})
			if err != nil {
				return err
			}
			printSuccess("Added %s node %s", styleKind(workflow.Kind(args[1])), StyleHighlight.Render(id))
			return nil
		},
	}

	cmd.Flags().Float64Var(&x, "x", 0, "canvas x position")
	cmd.Flags().Float64Var(&y, "y", 0, "canvas y position")
	return cmd
}

func (c *CLI) nodeRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <file> <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a node and its edges",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dropped int
			_, err := editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				dropped = len(st.Outgoing(args[1])) + len(st.Incoming(args[1]))
				if !canvas.New(st).DeleteNode(args[1]) {
					return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", args[1])
				}
				return nil
			})
			if err != nil {
				return err
			}
			printSuccess("Removed node %s", StyleHighlight.Render(args[1]))
			if dropped > 0 {
				printDetail("%d edge(s) removed with it", dropped)
			}
			return nil
		},
	}
}

func (c *CLI) nodeSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <file> <id> field=value...",
		Short: "Set data fields of a node",
		Long: `Set data fields of a node as the config panel would.

Lists are comma separated (recipients=a@x.com,b@x.com), objects are JSON
(params='{"to":"ops"}'), enums and durations are checked.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			_, err = editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				if _, ok := st.Node(args[1]); !ok {
					return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", args[1])
				}
				return applyFields(st, args[1], sets)
			})
			if err != nil {
				return err
			}
			printSuccess("Updated node %s", StyleHighlight.Render(args[1]))
			return nil
		},
	}
}

func (c *CLI) nodeMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <file> <id> <x> <y>",
		Short: "Move a node on the canvas",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := parseCoord(args[2])
			if err != nil {
				return err
			}
			y, err := parseCoord(args[3])
			if err != nil {
				return err
			}
			_, err = editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				if !canvas.New(st).MoveNode(args[1], workflow.Position{X: x, Y: y}) {
					return fberrors.New(fberrors.ErrCodeNotFound, "node %s not found", args[1])
				}
				return nil
			})
			if err != nil {
				return err
			}
			printSuccess("Moved node %s to %g,%g", StyleHighlight.Render(args[1]), x, y)
			return nil
		},
	}
}

// =============================================================================
// edge
// =============================================================================

func (c *CLI) edgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Edit edges of a workflow document",
	}
	cmd.AddCommand(c.edgeAddCommand())
	cmd.AddCommand(c.edgeRemoveCommand())
	return cmd
}

func (c *CLI) edgeAddCommand() *cobra.Command {
	var handle string

	cmd := &cobra.Command{
		Use:   "add <file> <source> <target>",
		Short: "Connect two nodes",
		Long: `Connect source to target as if drawn on the canvas.

Condition nodes need --handle true or --handle false; connecting a branch
that is already used replaces its edge. Triggers accept no incoming edges.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			var replaced []string
			_, err := editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				for _, e := range st.Outgoing(args[1]) {
					if handle != "" && e.SourceHandle == handle {
						replaced = append(replaced, e.ID)
					}
				}
				var err error
				id, err = canvas.New(st).OnConnect(args[1], args[2], handle)
				return err
			})
			if err != nil {
				return err
			}
			label := args[1]
			if handle != "" {
				label += " [" + styleHandle(handle) + "]"
			}
			printSuccess("Connected %s %s %s", label, iconArrow, args[2])
			printDetail("edge %s", id)
			for _, r := range replaced {
				printDetail("replaced edge %s", r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "source branch for condition nodes: true, false")
	cmd.RegisterFlagCompletionFunc("handle", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{workflow.HandleTrue, workflow.HandleFalse}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func (c *CLI) edgeRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <file> <id>",
		Aliases: []string{"remove"},
		Short:   "Remove an edge",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := editFile(cmd.Context(), args[0], func(st *workflow.Store) error {
				if !canvas.New(st).DeleteEdge(args[1]) {
					return fberrors.New(fberrors.ErrCodeNotFound, "edge %s not found", args[1])
				}
				return nil
			})
			if err != nil {
				return err
			}
			printSuccess("Removed edge %s", StyleHighlight.Render(args[1]))
			return nil
		},
	}
}
