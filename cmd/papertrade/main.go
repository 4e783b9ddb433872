// Command papertrade runs the simulated stock-trading backend: a REST
// and websocket API over a paper-money ledger, with orders filled
// against live quotes by a background scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efreitasn/papertrade/internal/config"
	"github.com/efreitasn/papertrade/internal/engine"
	"github.com/efreitasn/papertrade/internal/handler"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/internal/service"
)

// demoPrices seeds the static quote source so the server is usable
// without upstream credentials. Prices are cents.
var demoPrices = map[string]int64{
	"AAPL.US":  19000,
	"TSLA.US":  25000,
	"MSFT.US":  42000,
	"GOOGL.US": 14000,
	"AMZN.US":  15500,
	"NVDA.US":  87500,
	"META.US":  48500,
}

func main() {
	root := &cobra.Command{
		Use:          "papertrade",
		Short:        "Simulated stock-trading backend",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), sweepCmd(), healthcheckCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is everything the commands wire up from configuration.
type deps struct {
	store  ledger.Store
	chain  *quote.Chain
	xueqiu *quote.XueqiuSource
	engine *engine.Engine
	logger *slog.Logger
}

func buildDeps(cfg *config.Config) (*deps, error) {
	logger := newLogger(cfg.LogLevel)

	markets, err := config.LoadMarkets(cfg.MarketsPath)
	if err != nil {
		return nil, err
	}

	var store ledger.Store
	if cfg.SQLitePath != "" {
		store, err = ledger.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite ledger: %w", err)
		}
		logger.Info("sqlite ledger opened", slog.String("path", cfg.SQLitePath))
	} else {
		store = ledger.NewMemoryStore()
		logger.Info("using in-memory ledger")
	}

	xueqiu := quote.NewXueqiuSource(cfg.QuoteBaseURL, cfg.QuoteTimeout)
	if cookie := os.Getenv("XUEQIU_COOKIE"); cookie != "" {
		xueqiu.SetCredentials(quote.Credentials{
			Cookie:    cookie,
			UserAgent: os.Getenv("XUEQIU_USER_AGENT"),
		})
		logger.Info("xueqiu credentials loaded from environment")
	}
	static := quote.NewStaticSource(demoPrices)
	chain := quote.NewChain(logger, xueqiu, static)

	eng := engine.New(store, chain, markets, logger)

	return &deps{
		store:  store,
		chain:  chain,
		xueqiu: xueqiu,
		engine: eng,
		logger: logger,
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the pending-order scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			d, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer d.store.Close()

			accountSvc := service.NewAccountService(d.store, d.chain, d.logger)
			router := handler.NewRouter(accountSvc, d.engine, d.store, d.chain, d.xueqiu, cfg.SnapshotInterval, d.logger)

			scheduler := engine.NewScheduler(d.engine, cfg.SweepInterval, d.logger)
			scheduler.Start()
			defer scheduler.Stop()

			addr := fmt.Sprintf(":%d", cfg.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
				IdleTimeout:  cfg.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				d.logger.Info("server starting", slog.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				d.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				d.logger.Error("server shutdown error", slog.String("error", err.Error()))
			}

			d.logger.Info("server stopped")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pending-order sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			d, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer d.store.Close()

			filled, checked, err := d.engine.ProcessAllPending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d pending orders, filled %d\n", checked, filled)
			return nil
		},
	}
}

func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server's /healthz endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthz returned %d", resp.StatusCode)
			}
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
