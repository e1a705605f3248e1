package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tukib/dtec-messenger-electron/internal/auth"
	"github.com/tukib/dtec-messenger-electron/internal/config"
	"github.com/tukib/dtec-messenger-electron/internal/handlers"
	"github.com/tukib/dtec-messenger-electron/internal/store"
	"github.com/tukib/dtec-messenger-electron/internal/store/mongostore"
	"github.com/tukib/dtec-messenger-electron/internal/store/sqlstore"
	"github.com/tukib/dtec-messenger-electron/internal/ws"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:          "messenger-server",
		Short:        "Relay for end-to-end encrypted messages",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(envFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&envFile, "config", "", "path to a .env file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Server) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	guard, closeGuard := replayGuard(cfg.Auth)
	defer closeGuard()

	hub := ws.NewHub(ws.WithPingPeriod(cfg.PingPeriod))
	go hub.Run()
	defer hub.Stop()

	engine := handlers.NewEngine(st, hub,
		handlers.WithReplayGuard(guard),
		handlers.WithWindow(cfg.Auth.FreshnessWindow),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(hub, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Addr).Info("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongostore.New(connectCtx, cfg.DSN, cfg.MongoDatabase)
	default:
		return sqlstore.New(cfg.Driver, cfg.DSN)
	}
}

func replayGuard(cfg config.AuthConfig) (auth.ReplayGuard, func()) {
	switch cfg.ReplayGuard {
	case "redis":
		g := auth.NewRedisGuard(cfg.RedisAddr, cfg.FreshnessWindow)
		return g, func() { g.Close() }
	case "off":
		return auth.NopGuard{}, func() {}
	default:
		return auth.NewMemoryGuard(cfg.FreshnessWindow), func() {}
	}
}
