package main

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/realumlabs/realum-dao/internal/config"
	"github.com/realumlabs/realum-dao/pkg/api"
	"github.com/realumlabs/realum-dao/pkg/governance"
	memstore "github.com/realumlabs/realum-dao/pkg/governance/store"
	"github.com/realumlabs/realum-dao/pkg/governance/store/sqlite"
	"github.com/realumlabs/realum-dao/pkg/notify"
	"github.com/realumlabs/realum-dao/pkg/token"
	"github.com/realumlabs/realum-dao/pkg/users"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the governance API server",
		Run: func(_ *cobra.Command, _ []string) {
			logger := commonRun()
			cfg, err := config.Load(configFile)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			if err := serveRun(cfg, logger); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
}

func serveRun(cfg *config.Config, logger *slog.Logger) error {
	var store governance.Store
	var err error
	if cfg.DataDir == "" {
		logger.Info("no data dir configured, using in-memory store")
		store = memstore.NewMemoryStore()
	} else {
		store, err = sqlite.New(cfg.DataDir, logger)
		if err != nil {
			return err
		}
	}
	defer store.Close() //nolint:errcheck

	registry := prometheus.NewRegistry()
	dispatcher := notify.NewDispatcher(
		notify.LogSink{Logger: logger},
		logger,
		registry,
	)
	defer dispatcher.Stop()

	// The platform identity and wallet services are external; until their
	// integrations are wired in, serve runs against seeded demo data.
	directory := users.NewDirectory()
	tokens := token.NewSystem()
	seedDemoData(directory, tokens)
	supply, err := tokens.GetTotalSupply()
	if err != nil {
		return err
	}
	logger.Warn("identity and wallet integrations not configured, using seeded demo data",
		"token_supply", supply.String())

	service := governance.NewService(
		store,
		directory,
		tokens,
		dispatcher,
		cfg.Governance,
		governance.WithLogger(logger),
	)
	server := api.NewServer(service, logger, registry, cfg.ListenAddr())

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           server.MetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(server.Start)
	group.Go(func() error {
		logger.Info("metrics server listening", "addr", metricsServer.Addr)
		err := metricsServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		timeout, err := time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return errors.Join(
			server.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})
	return group.Wait()
}

// seedDemoData populates the in-memory identity directory and token
// ledger so the API is usable out of the box.
func seedDemoData(directory *users.Directory, tokens *token.System) {
	demo := []struct {
		user    governance.User
		balance int64
	}{
		{governance.User{ID: "admin", Level: 5, Admin: true}, 10000},
		{governance.User{ID: "alice", Level: 3}, 500},
		{governance.User{ID: "bob", Level: 2}, 250},
		{governance.User{ID: "carol", Level: 1}, 100},
	}
	for _, d := range demo {
		directory.Add(d.user)
		tokens.SetBalance(d.user.ID, big.NewInt(d.balance)) //nolint:errcheck
	}
}
