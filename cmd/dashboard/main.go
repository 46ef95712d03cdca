package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/config"
	"github.com/watchboard/watchboard/internal/flow"
	"github.com/watchboard/watchboard/internal/httpapi"
	"github.com/watchboard/watchboard/internal/logging"
	"github.com/watchboard/watchboard/internal/poll"
	"github.com/watchboard/watchboard/internal/syncstore"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.Log.Dir, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	api := backend.New(cfg.Backend.BaseURL, logger)

	sites := syncstore.New(logger, api, cfg.Sync.Debounce)
	nodes := flow.New(logger, sites)
	sites.SetRekeyHook(nodes.RelinkSite)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sites.Load(ctx); err != nil {
		// the dashboard still starts; the UI shows the error and the next
		// manual load retries
		logger.Warn("initial_site_load_failed", zap.Error(err))
	}

	fetch := poll.BackendFetch(api)
	defaults := poll.Query{
		Window:  cfg.View.Window,
		GroupBy: cfg.View.GroupBy,
		Limit:   cfg.View.RawLimit,
	}

	overview := poll.New(logger, fetch)
	overview.SetQuery(defaults)
	if cfg.View.AutoRefresh > 0 {
		overview.SetAutoRefresh(cfg.View.AutoRefresh)
	}

	srv := httpapi.NewServer(
		logger,
		sites,
		nodes,
		overview,
		func() *poll.Orchestrator { return poll.New(logger, fetch) },
		defaults,
		cfg.View.AutoRefresh,
	)

	hs := &http.Server{Addr: cfg.API.Addr, Handler: srv.Router()}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.API.Addr))
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)

	srv.Close()
	overview.Close()
	sites.FlushAll() // don't lose a final edit to the debounce window
}
