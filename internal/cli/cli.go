package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/flowboard/pkg/buildinfo"
	"github.com/matzehuels/flowboard/pkg/config"
	"github.com/matzehuels/flowboard/pkg/storage"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "flowboard"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config config.Config

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Flowboard edits automation workflows",
		Long:         `Flowboard is an editor for automation workflows: typed nodes (triggers, conditions, actions, delays, notifications) connected into a directed graph, stored as JSON or YAML documents.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/flowboard/config.toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	// Register all subcommands
	root.AddCommand(c.newCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.typesCommand())
	root.AddCommand(c.nodeCommand())
	root.AddCommand(c.edgeCommand())
	root.AddCommand(c.editCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.docsCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the config file and settles the log level: --verbose wins
// over the file.
func (c *CLI) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.Config = cfg

	level := cfg.Level()
	if c.verbose {
		level = LogDebug
	}
	c.SetLogLevel(level)
	c.Logger.Debug("Loaded config", "path", c.configPath, "storage", cfg.Storage.Backend)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withLogger(ctx, c.Logger))
	return nil
}

// =============================================================================
// Storage Factory
// =============================================================================

// openDocs opens the configured document store. The --dir override, when
// set, forces the file backend.
func (c *CLI) openDocs(ctx context.Context, dir string) (storage.Store, error) {
	cfg := c.Config.Storage
	if dir != "" {
		cfg.Backend = storage.BackendFile
		cfg.Dir = dir
	}
	c.Logger.Debug("Opening document store", "backend", cfg.Backend)
	return storage.Open(ctx, cfg)
}

// stdout is where command results go; tests replace it.
var stdout io.Writer = os.Stdout
