package cli

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	fbio "github.com/matzehuels/flowboard/pkg/io"
	"github.com/matzehuels/flowboard/pkg/observability"
	"github.com/matzehuels/flowboard/pkg/server"
	"github.com/matzehuels/flowboard/pkg/storage"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

type serveOpts struct {
	addr    string
	file    string // document to edit, written back on shutdown when save is set
	doc     string // stored document to start from
	save    bool
	metrics bool
	noDocs  bool
}

func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor API over HTTP",
		Long: `Serve one workflow over HTTP with a JSON API and a websocket event stream.

The workflow starts empty, from --file, or from a stored document (--doc).
With --save, the workflow is written back to --file on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.file, "file", "", "workflow document to load (.json or .yaml)")
	cmd.Flags().StringVar(&opts.doc, "doc", "", "stored document to load")
	cmd.Flags().BoolVar(&opts.save, "save", false, "write the workflow back to --file on shutdown")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "expose Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&opts.noDocs, "no-docs", false, "disable the /api/documents routes")
	cmd.MarkFlagsMutuallyExclusive("file", "doc")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) (err error) {
	if opts.save && opts.file == "" {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "--save needs --file")
	}

	cfg := c.Config.Server
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}

	var metrics *prometheus.Registry
	if opts.metrics {
		metrics = prometheus.NewRegistry()
		metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p := observability.NewPrometheus(metrics)
		observability.SetStoreHooks(p)
		observability.SetStorageHooks(p)
		observability.SetHTTPHooks(p)
		defer observability.Reset()
	}

	st := workflow.New()
	if opts.file != "" {
		if err := fbio.ImportFile(ctx, st, opts.file, fbio.ImportOptions{}); err != nil {
			return err
		}
		c.Logger.Info("Loaded workflow", "path", opts.file, "nodes", st.NodeCount(), "edges", st.EdgeCount())
	}

	var docs storage.Store
	if !opts.noDocs || opts.doc != "" {
		docs, err = c.openDocs(ctx, "")
		if err != nil {
			return err
		}
		defer docs.Close()
	}
	if opts.doc != "" {
		if err := fbio.Load(ctx, st, storage.Source(docs, opts.doc), fbio.FormatJSON, fbio.ImportOptions{}); err != nil {
			return err
		}
		c.Logger.Info("Loaded document", "name", opts.doc, "nodes", st.NodeCount(), "edges", st.EdgeCount())
	}

	so := server.Options{Store: st, Logger: c.Logger}
	if !opts.noDocs {
		so.Docs = docs
	}
	if metrics != nil {
		so.Metrics = promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})
	}
	srv := server.New(so)
	defer srv.Close()

	printInfo("Serving on %s", StyleHighlight.Render(cfg.Addr))
	runErr := srv.Run(ctx, cfg)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if opts.save {
		// ctx is already done here.
		if err := fbio.ExportFile(context.WithoutCancel(ctx), st, opts.file); err != nil {
			return errors.Join(runErr, err)
		}
		printSuccess("Saved %s", StyleHighlight.Render(opts.file))
	}
	return runErr
}
