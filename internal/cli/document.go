package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// =============================================================================
// File Helpers
// =============================================================================

// loadFile imports the document at path into a fresh store.
func loadFile(ctx context.Context, path string, strict bool) (*workflow.Store, error) {
	st := workflow.New()
	if err := fbio.ImportFile(ctx, st, path, fbio.ImportOptions{Strict: strict}); err != nil {
		return nil, err
	}
	loggerFromContext(ctx).Debug("Loaded workflow", "path", path, "nodes", st.NodeCount(), "edges", st.EdgeCount())
	return st, nil
}

// editFile loads path, applies fn and writes the result back. Nothing is
// written when fn fails.
func editFile(ctx context.Context, path string, fn func(*workflow.Store) error) (*workflow.Store, error) {
	st, err := loadFile(ctx, path, false)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := fbio.ExportFile(ctx, st, path); err != nil {
		return nil, err
	}
	return st, nil
}

// =============================================================================
// Templates
// =============================================================================

const (
	templateEmpty   = "empty"
	templateWelcome = "welcome"
)

var templates = []string{templateEmpty, templateWelcome}

// buildTemplate fills st with the named starter workflow.
func buildTemplate(st *workflow.Store, name string) error {
	switch name {
	case templateEmpty:
		return nil
	case templateWelcome:
		return buildWelcome(st)
	}
	return fberrors.New(fberrors.ErrCodeInvalidInput, "unknown template %q (available: %v)", name, templates)
}

// buildWelcome creates a signup flow: new users with an email get a welcome
// message, the rest are asked for one after a pause.
func buildWelcome(st *workflow.Store) error {
	add := func(kind workflow.Kind, data workflow.Data, x, y float64) string {
		id, _ := st.AddNode(kind, data, workflow.Position{X: x, Y: y})
		return id
	}
	trigger := add(workflow.KindTrigger, workflow.Data{"name": "User signed up", "event": "user.created"}, 200, 0)
	check := add(workflow.KindCondition, workflow.Data{"name": "Has email?", "condition": "user.email != \"\""}, 200, 150)
	welcome := add(workflow.KindNotification, workflow.Data{
		"name":       "Welcome",
		"channel":    string(workflow.ChannelEmail),
		"recipients": []any{"{{user.email}}"},
	}, 0, 300)
	wait := add(workflow.KindDelay, workflow.Data{"name": "Wait a day", "duration": "24h"}, 400, 300)
	ask := add(workflow.KindAction, workflow.Data{
		"name":   "Ask for email",
		"action": "sms.send",
		"params": map[string]any{"template": "collect-email"},
	}, 400, 450)

	for _, e := range [][3]string{
		{trigger, check, ""},
		{check, welcome, workflow.HandleTrue},
		{check, wait, workflow.HandleFalse},
		{wait, ask, ""},
	} {
		if _, err := st.AddEdge(e[0], e[1], e[2]); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// new
// =============================================================================

func (c *CLI) newCommand() *cobra.Command {
	var template string
	var force bool

	cmd := &cobra.Command{
		Use:   "new <file>",
		Short: "Create a workflow document (.json or .yaml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fberrors.New(fberrors.ErrCodeInvalidInput, "%s already exists (use --force to overwrite)", path)
			}
			st := workflow.New()
			if err := buildTemplate(st, template); err != nil {
				return err
			}
			if err := fbio.ExportFile(cmd.Context(), st, path); err != nil {
				return err
			}
			printSuccess("Created %s", StyleHighlight.Render(path))
			printStats(st.NodeCount(), st.EdgeCount())
			printNextStep("Edit it", fmt.Sprintf("%s edit %s", appName, path))
			return nil
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", templateEmpty, fmt.Sprintf("starter workflow: %v", templates))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.RegisterFlagCompletionFunc("template", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return templates, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// =============================================================================
// validate
// =============================================================================

// lintIssue is a structural warning that does not prevent import.
type lintIssue struct {
	NodeID  string
	Message string
}

// lint reports field problems and dangling structure: workflows without a
// trigger, nodes nothing leads to, and condition branches left open.
func lint(g workflow.Graph) []lintIssue {
	var issues []lintIssue
	incoming := make(map[string]int)
	branches := make(map[string][]string)
	for _, e := range g.Edges {
		incoming[e.Target]++
		branches[e.Source] = append(branches[e.Source], e.SourceHandle)
	}

	triggers := 0
	for _, n := range g.Nodes {
		t, _ := n.Type()
		for _, fe := range t.Check(n.Data) {
			issues = append(issues, lintIssue{NodeID: n.ID, Message: fe.Error()})
		}
		if n.Kind == workflow.KindTrigger {
			triggers++
		} else if incoming[n.ID] == 0 {
			issues = append(issues, lintIssue{NodeID: n.ID, Message: "unreachable: no incoming edge"})
		}
		for _, h := range t.Handles {
			if !slices.Contains(branches[n.ID], h) {
				issues = append(issues, lintIssue{NodeID: n.ID, Message: fmt.Sprintf("branch %q is not connected", h)})
			}
		}
	}
	if len(g.Nodes) > 0 && triggers == 0 {
		issues = append(issues, lintIssue{Message: "workflow has no trigger"})
	}
	return issues
}

var errLintFailed = errors.New("workflow has warnings")

func (c *CLI) validateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workflow document",
		Long: `Check that a document imports cleanly and report structural warnings.

With --strict, node data must match the registry's field domains and any
warning fails the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadFile(cmd.Context(), args[0], strict)
			if err != nil {
				return err
			}
			issues := lint(st.Snapshot())
			if len(issues) == 0 {
				printSuccess("%s is valid", StyleHighlight.Render(args[0]))
				printStats(st.NodeCount(), st.EdgeCount())
				return nil
			}
			printWarning("%s imports with %d warning(s)", args[0], len(issues))
			for _, is := range issues {
				if is.NodeID != "" {
					printDetail("%s: %s", is.NodeID, is.Message)
				} else {
					printDetail("%s", is.Message)
				}
			}
			if strict {
				return fberrors.Wrap(fberrors.ErrCodeInvalidInput, errLintFailed, "%s", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "check field domains and fail on warnings")
	return cmd
}

// =============================================================================
// convert
// =============================================================================

func (c *CLI) convertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a document between JSON and YAML",
		Long:  `Convert a workflow document. Formats are taken from the file extensions (.json, .yaml, .yml).`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadFile(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := fbio.ExportFile(cmd.Context(), st, args[1]); err != nil {
				return err
			}
			printSuccess("Converted %s", args[0])
			printFile(args[1])
			return nil
		},
	}
}
