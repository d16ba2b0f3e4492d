package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/vango-dev/liveview/internal/config"
	"github.com/vango-dev/liveview/internal/demo"
	"github.com/vango-dev/liveview/internal/errors"
	"github.com/vango-dev/liveview/pkg/assets"
	"github.com/vango-dev/liveview/pkg/server"
)

type serveOptions struct {
	address   string
	staticDir string
	store     string
	logLevel  string
}

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo views",
		Long: `Start the HTTP/WebSocket server with the demo views registered.

Routes:
  /live/{view}     first page, rendered on the server
  /live/ws/{view}  WebSocket carrying events and patches
  /metrics         Prometheus metrics
  /healthz         liveness and live session count

Examples:
  liveview serve
  liveview serve --address=:3000
  liveview serve --store=sqlite -c liveview.yaml
  liveview serve --static=./public`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "address to listen on (default from config)")
	cmd.Flags().StringVar(&opts.staticDir, "static", "", "directory served under /static/ (default: the demo stylesheet)")
	cmd.Flags().StringVar(&opts.store, "store", "", "state store driver (default from config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (default from config)")

	return cmd
}

const staticPrefix = "/static/"

func runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	srv, closeStore, err := newServer(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := srv.Run(); err != nil {
		return errors.New("E160").
			WithSuggestion("check that " + cfg.Server.Address + " is free").
			Wrap(err)
	}
	return nil
}

// newServer builds the demo server from cfg. The returned func closes the
// state store.
func newServer(ctx context.Context, cfg *config.Config, opts serveOptions) (*server.Server, func(), error) {
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if opts.store != "" {
		cfg.Store.Driver = opts.store
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	sc, err := cfg.ServerConfig()
	if err != nil {
		return nil, nil, err
	}

	static := demo.Static()
	if opts.staticDir != "" {
		static = os.DirFS(opts.staticDir)
	} else {
		sc.StyleSheets = append(sc.StyleSheets, staticPrefix+demo.StyleSheet)
	}
	manifest, err := assets.Build(static)
	if err != nil {
		return nil, nil, errors.New("E160").
			WithDetail("static files could not be read").
			Wrap(err)
	}
	sc.StyleSheets = assets.Rewrite(assets.NewResolver(manifest, staticPrefix), staticPrefix, sc.StyleSheets)

	renderer, err := demo.Renderer()
	if err != nil {
		return nil, nil, errors.New("E160").Wrap(err)
	}

	store, err := cfg.Store.OpenStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(sc, renderer,
		server.WithLogger(logger),
		server.WithStore(store),
		server.WithMetrics(server.NewMetrics(server.WithRegistry(reg))),
		server.WithTracer(otel.Tracer("github.com/vango-dev/liveview")),
	)
	srv.SetGatherer(reg)
	demo.Register(srv)

	router := srv.Router()
	router.Handle(staticPrefix+"*", http.StripPrefix(staticPrefix, assets.Handler(static, manifest)))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/live/counter", http.StatusFound)
	})

	logger.Info("state store ready", "driver", cfg.Store.Driver, "assets", manifest.Len())
	return srv, func() { store.Close() }, nil
}
