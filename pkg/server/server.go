// Package server exposes a workflow over HTTP for browser-based editors.
//
// The API mirrors the editor's own boundaries: the canvas gesture callbacks,
// the config panel's view and commit, the serialization gateway, and named
// documents in a [storage.Store]. Every change is pushed to websocket
// clients on /api/events.
//
// Rejected operations answer with a JSON body
//
//	{"error": {"code": "INVALID_HANDLE", "message": "..."}}
//
// and a status derived from the code by [StatusFor].
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/flowboard/pkg/cache"
	"github.com/matzehuels/flowboard/pkg/canvas"
	"github.com/matzehuels/flowboard/pkg/config"
	"github.com/matzehuels/flowboard/pkg/panel"
	"github.com/matzehuels/flowboard/pkg/storage"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

const maxBodySize = 4 << 20

// Options configures a [Server].
type Options struct {
	// Store is the edited workflow. Required.
	Store *workflow.Store
	// Docs enables the /api/documents routes when set.
	Docs storage.Store
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// RenderCache holds rendered SVGs. Defaults to a small in-memory cache.
	RenderCache cache.Cache
	Logger      *log.Logger
}

// Server serves one workflow. Its canvas controller is shared by all
// clients, so gestures from different clients interleave.
type Server struct {
	store   *workflow.Store
	canvas  *canvas.Controller
	panel   *panel.Panel
	docs    storage.Store
	renders cache.Cache
	logger  *log.Logger
	hub     *hub
	router  chi.Router
}

// New builds a server around opts.Store.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:  opts.Store,
		canvas: canvas.New(opts.Store),
		panel:  panel.New(opts.Store),
		docs:   opts.Docs,
		logger: logger,
	}
	s.renders = opts.RenderCache
	if s.renders == nil {
		s.renders = cache.NewMemoryCache(0)
	}
	s.hub = newHub(opts.Store, logger)
	s.router = s.routes(opts.Metrics)
	return s
}

func (s *Server) routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/types", s.handleTypes)
		r.Get("/events", s.handleEvents)

		r.Get("/graph", s.handleExport)
		r.Put("/graph", s.handleImport)
		r.Get("/graph.dot", s.handleDOT)
		r.Get("/graph.svg", s.handleSVG)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Post("/", s.handleAddNode)
			r.Get("/{nodeID}", s.handleGetNode)
			r.Put("/{nodeID}/position", s.handleMoveNode)
			r.Delete("/{nodeID}", s.handleDeleteNode)
		})
		r.Route("/edges", func(r chi.Router) {
			r.Get("/", s.handleListEdges)
			r.Post("/", s.handleConnect)
			r.Delete("/{edgeID}", s.handleDeleteEdge)
		})

		r.Get("/selection", s.handleGetSelection)
		r.Put("/selection", s.handleSelect)
		r.Delete("/selection", s.handlePaneClick)

		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", s.handleCanvasState)
			r.Post("/drag/start", s.handleDragStart)
			r.Post("/drag/move", s.handleDragMove)
			r.Post("/drag/stop", s.handleDragStop)
			r.Post("/connect/start", s.handleConnectStart)
			r.Post("/connect/end", s.handleConnectEnd)
			r.Post("/cancel", s.handleCancel)
			r.Post("/delete", s.handleDeleteSelection)
		})

		r.Route("/panel", func(r chi.Router) {
			r.Get("/", s.handlePanelView)
			r.Patch("/", s.handlePanelCommit)
			r.Put("/fields/{field}", s.handlePanelSet)
			r.Delete("/", s.handlePanelClose)
		})

		if s.docs != nil {
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", s.handleListDocuments)
				r.Get("/{name}", s.handleGetDocument)
				r.Put("/{name}", s.handleSaveDocument)
				r.Post("/{name}/load", s.handleLoadDocument)
				r.Delete("/{name}", s.handleDeleteDocument)
			})
		}
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close ends all event streams and detaches from the store.
func (s *Server) Close() { s.hub.close() }

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, cfg)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// cfg.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg config.ServerConfig) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	grace := cfg.ShutdownTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down")
		s.hub.close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
