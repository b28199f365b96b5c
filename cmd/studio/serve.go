package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/pagestudio/client"
	"github.com/gabrielmiguelok/pagestudio/internal/config"
	"github.com/gabrielmiguelok/pagestudio/internal/layout"
	"github.com/gabrielmiguelok/pagestudio/pkg/api"
	"github.com/gabrielmiguelok/pagestudio/pkg/builder"
	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/health"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/metrics"
	"github.com/gabrielmiguelok/pagestudio/pkg/router"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the studios, the page API and the client script",
	Long: `Serves:
  /studio/{page}                  live editors (home, offers)
  /api/pages/{page}               GET / PUT whole page documents
  /api/catalog/{kind}?q=          catalog search
  /api/catalog/packs/{id}/contents
  /assets/studio.js               browser client
  /healthz /readyz /metrics       probes and metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Storage.Seed != "" {
		if err := applySeed(ctx, b, cfg.Storage.Seed, logger); err != nil {
			return err
		}
	}

	r, err := newServer(cfg, b, logger)
	if err != nil {
		return err
	}
	if cfg.Server.Timeouts.Cleanup > 0 {
		r.StartCleanup(ctx, cfg.Server.Timeouts.Cleanup)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("studio listening", logging.String("addr", cfg.Server.Addr), logging.Bool("dev", cfg.Server.DevMode))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeouts.Shutdown)
	defer cancel()

	// Live connections are hijacked, so the HTTP server does not track them.
	httpErr := srv.Shutdown(shutdownCtx)
	liveErr := r.Shutdown(shutdownCtx)
	return errors.Join(httpErr, liveErr)
}

// newServer assembles the router: middleware, API, assets and one live
// route per page template.
func newServer(cfg *config.Config, b *backends, logger logging.Logger) (*router.Router, error) {
	r := router.New(router.WithConfig(cfg.RouterConfig()), router.WithLogger(logger))

	// Middleware applies to routes registered after it.
	r.Use(router.Recovery(logger))
	r.Use(router.RequestID())
	r.Use(logging.RequestLogger(logger))
	r.Use(router.SecureHeaders())
	if cfg.Limits.RequestsPerSecond > 0 {
		r.Use(router.RateLimit(cfg.Limits.RequestsPerSecond, cfg.Limits.RequestBurst))
	}

	apiHandler, err := api.New(b.repo, b.catalog, api.WithLogger(logger.With(logging.String("component", "api"))))
	if err != nil {
		return nil, err
	}
	var apiRoutes http.Handler = apiHandler
	if cfg.Server.DevMode || len(cfg.Server.AllowedOrigins) > 0 {
		cors := router.DefaultCORSOptions()
		if !cfg.Server.DevMode {
			cors.AllowAllOrigins = false
			cors.AllowedOrigins = cfg.Server.AllowedOrigins
		}
		apiRoutes = router.CORS(cors)(apiRoutes)
	}
	r.Handle("/api/", apiRoutes)
	r.Handle("GET /assets/", http.StripPrefix("/assets/", client.Handler()))

	page := layout.DefaultPageConfig()
	// The browser client speaks the text codecs only.
	if cfg.Server.Codec == "json" || cfg.Server.Codec == "phoenix" {
		page.Codec = cfg.Server.Codec
	}
	docLayout := layout.New(page, "")
	studioMetrics := metrics.New("studio")

	templates := section.Templates()
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tmpl := templates[name]
		r.Live("/studio/"+name, func() core.Component {
			return builder.New(builder.Deps{
				Template:    tmpl,
				Repo:        b.repo,
				Catalog:     b.catalog,
				SaveTimeout: cfg.Server.Timeouts.Save,
				Metrics:     studioMetrics,
				Events:      b.events,
			})
		}, router.WithLayout(docLayout), router.WithTitle(tmpl.Title))
	}

	r.HandleFunc("GET /{$}", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/studio/"+names[0], http.StatusFound)
	})

	checker := health.NewChecker(version, logger)
	checker.Add(health.Probe{Name: "storage", Run: health.RepositoryProbe(b.repo, names[0]), Critical: true})
	checker.Add(health.Probe{Name: "catalog", Run: health.CatalogProbe(b.catalog, catalog.KindProducts)})
	checker.Add(health.Probe{Name: "sessions", Run: health.CapacityProbe(r.SessionManager().Count, cfg.Limits.MaxSessions)})
	r.Handle("GET /healthz", checker.LiveHandler())
	r.Handle("GET /readyz", checker.ReadyHandler())
	r.Handle("GET /metrics", studioMetrics.Handler())
	return r, nil
}
