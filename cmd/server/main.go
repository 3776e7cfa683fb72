// Command server runs the BI metadata service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bi-demo/internal/app"
	"bi-demo/internal/config"
	internaldb "bi-demo/internal/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env carries what every subcommand needs once config is loaded.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	var (
		dotEnv string
		e      env
	)
	root := &cobra.Command{
		Use:           "bi-server",
		Short:         "BI metadata service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(dotEnv); err != nil {
				return fmt.Errorf("load %s: %w", dotEnv, err)
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(e.logger)
			for _, w := range cfg.Warnings {
				e.logger.Warn(w)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dotEnv, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.AddCommand(newServeCmd(&e), newMigrateCmd(&e), newSeedCmd(&e))
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metastore migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			writeDB, err := internaldb.OpenSQLite(e.cfg.MetaDBPath, internaldb.ModeWrite, 0)
			if err != nil {
				return err
			}
			defer writeDB.Close()
			if err := internaldb.RunMigrations(writeDB); err != nil {
				return err
			}
			v, err := internaldb.MigrationVersion(writeDB)
			if err != nil {
				return err
			}
			e.logger.Info("metastore migrated", "path", e.cfg.MetaDBPath, "version", v)
			return nil
		},
	}
}

func newSeedCmd(e *env) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo users and the examples database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = e.cfg.SeedAdminPassword
			}
			if password == "" {
				return errors.New("no password: pass --password or set BI_SEED_ADMIN_PASSWORD")
			}
			return withApp(cmd.Context(), e, func(a *app.App) error {
				return a.Seed(cmd.Context(), app.SeedOptions{Password: password, ExamplesPath: e.cfg.ExamplesDBPath})
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password of the seeded users")
	return cmd
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			return withApp(ctx, e, func(a *app.App) error {
				if e.cfg.SeedAdminPassword != "" {
					if err := a.Seed(ctx, app.SeedOptions{
						Password:     e.cfg.SeedAdminPassword,
						ExamplesPath: e.cfg.ExamplesDBPath,
					}); err != nil {
						return fmt.Errorf("seed: %w", err)
					}
				}
				return serve(ctx, e, a)
			})
		},
	}
}

// withApp opens and migrates the metastore, wires the application and runs
// fn with it.
func withApp(ctx context.Context, e *env, fn func(*app.App) error) error {
	writeDB, readDB, err := internaldb.OpenSQLitePair(e.cfg.MetaDBPath, 4)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	defer writeDB.Close()
	defer readDB.Close()

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a, err := app.New(ctx, app.Deps{Cfg: e.cfg, WriteDB: writeDB, ReadDB: readDB, Logger: e.logger})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(a)
}

func serve(ctx context.Context, e *env, a *app.App) error {
	srv := &http.Server{
		Addr:              e.cfg.ListenAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("HTTP API listening", "addr", e.cfg.ListenAddr,
			"try", "curl "+baseURLForListenAddr(e.cfg.ListenAddr, e.cfg.TLSCertFile != "")+"/health")
		var err error
		if e.cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(e.cfg.TLSCertFile, e.cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.SweepRateLimits(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		e.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// baseURLForListenAddr turns a listen address into a URL a local client can
// reach. Wildcard and empty hosts become localhost.
func baseURLForListenAddr(listenAddr string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return scheme + "://localhost:8088"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return scheme + "://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
