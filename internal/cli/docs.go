package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/storage"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

func (c *CLI) docsCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage stored workflow documents",
		Long: `Manage named workflow documents in the configured storage backend
(file, memory, redis or mongo). --dir forces the file backend.`,
	}

	cmd.PersistentFlags().StringVar(&dir, "dir", "", "document directory (file backend)")

	// open is resolved at run time, after the config is loaded.
	open := func(ctx context.Context) (storage.Store, error) { return c.openDocs(ctx, dir) }

	cmd.AddCommand(c.docsListCommand(open))
	cmd.AddCommand(c.docsGetCommand(open))
	cmd.AddCommand(c.docsPutCommand(open))
	cmd.AddCommand(c.docsRemoveCommand(open))
	cmd.AddCommand(c.docsPathCommand(&dir))
	return cmd
}

type openFunc func(context.Context) (storage.Store, error)

func (c *CLI) docsListCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer docs.Close()

			infos, err := docs.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				printInfo("No documents stored")
				return nil
			}
			rows := make([][]string, len(infos))
			for i, in := range infos {
				rows[i] = []string{
					in.Name,
					formatSize(in.Size),
					formatRelativeTime(in.UpdatedAt),
					in.Checksum[:min(12, len(in.Checksum))],
				}
			}
			printTable([]string{"Name", "Size", "Updated", "Checksum"}, rows)
			return nil
		},
	}
}

func (c *CLI) docsGetCommand(open openFunc) *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print or export a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := open(ctx)
			if err != nil {
				return err
			}
			defer docs.Close()

			st := workflow.New()
			if err := fbio.Load(ctx, st, storage.Source(docs, args[0]), fbio.FormatJSON, fbio.ImportOptions{}); err != nil {
				return err
			}
			if output != "" {
				if err := fbio.ExportFile(ctx, st, output); err != nil {
					return err
				}
				printSuccess("Exported %s", StyleHighlight.Render(args[0]))
				printFile(output)
				return nil
			}
			f, err := fbio.ParseFormat(format)
			if err != nil {
				return err
			}
			return fbio.Write(fbio.Export(st), f, stdout)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", string(fbio.FormatJSON), "stdout format: json, yaml")
	return cmd
}

func (c *CLI) docsPutCommand(open openFunc) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "put <name> <file>",
		Short: "Store a workflow document under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := fberrors.ValidateDocumentName(args[0]); err != nil {
				return err
			}
			st, err := loadFile(ctx, args[1], strict)
			if err != nil {
				return err
			}
			docs, err := open(ctx)
			if err != nil {
				return err
			}
			defer docs.Close()

			if err := fbio.Save(ctx, st, storage.Sink(docs, args[0]), fbio.FormatJSON); err != nil {
				return err
			}
			printSuccess("Stored %s", StyleHighlight.Render(args[0]))
			printStats(st.NodeCount(), st.EdgeCount())
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "check field domains before storing")
	return cmd
}

func (c *CLI) docsRemoveCommand(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Delete a stored document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer docs.Close()

			if err := docs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess("Deleted %s", StyleHighlight.Render(args[0]))
			return nil
		},
	}
}

func (c *CLI) docsPathCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path [name]",
		Short: "Show where the file backend keeps documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.Config.Storage
			if *dir == "" && cfg.Backend != storage.BackendFile && cfg.Backend != "" {
				return fberrors.New(fberrors.ErrCodeUnsupported, "backend %q has no document path", cfg.Backend)
			}
			d := *dir
			if d == "" {
				d = cfg.Dir
			}
			fs, err := storage.NewFileStore(d)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(stdout, fs.Dir())
				return nil
			}
			p, err := fs.Path(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, p)
			return nil
		},
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// formatRelativeTime formats t as "just now", "5m ago", "3h ago", "2d ago"
// or a date for anything older than a month.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}
