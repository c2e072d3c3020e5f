package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/engine"
	"github.com/0xc0d3d00d/tickagg/internal/feed"
	"github.com/0xc0d3d00d/tickagg/internal/server"
	"github.com/0xc0d3d00d/tickagg/internal/store/filestore"
	"github.com/0xc0d3d00d/tickagg/internal/store/postgres"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

type config struct {
	ListenAddress string     `env:"ADDR" envDefault:":6969"`
	LogLevel      slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"file"`
	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`

	FlushIntervalMs       int  `env:"FLUSH_INTERVAL_MS" envDefault:"150"`
	CloseDelayMs          int  `env:"CLOSE_DELAY_MS" envDefault:"100"`
	SweepIntervalMs       int  `env:"SWEEP_INTERVAL_MS" envDefault:"50"`
	RealtimeWindowSeconds int  `env:"REALTIME_WINDOW_SECONDS" envDefault:"120"`
	Workers               int  `env:"WORKERS" envDefault:"8"`
	QueueSize             int  `env:"QUEUE_SIZE" envDefault:"4096"`
	GeneratorEnabled      bool `env:"GENERATOR_ENABLED" envDefault:"true"`
	GeneratorRate         int  `env:"GENERATOR_RATE" envDefault:"50"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config{}
	if err := loadConfig(&cfg); err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// set global logger with custom options
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.DateTime,
		}),
	))

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create candle store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	agg := engine.New(store, engine.Config{
		FlushInterval:  time.Duration(cfg.FlushIntervalMs) * time.Millisecond,
		CloseDelay:     time.Duration(cfg.CloseDelayMs) * time.Millisecond,
		SweepInterval:  time.Duration(cfg.SweepIntervalMs) * time.Millisecond,
		RealtimeWindow: time.Duration(cfg.RealtimeWindowSeconds) * time.Second,
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
	})

	httpServer, err := server.New(ctx, cfg.ListenAddress, server.NewHistoryHandler(agg))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create server", "error", err)
		os.Exit(1)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.GeneratorEnabled {
		generator := feed.NewGenerator(agg, feed.DefaultSymbols, cfg.GeneratorRate)
		g.Go(func() error {
			return generator.Run(gCtx)
		})
	}

	// Start HTTP server
	g.Go(func() error {
		slog.InfoContext(ctx, "starting server", "listen_address", cfg.ListenAddress, "store", cfg.StoreDriver)
		if err := runHttpServer(ctx, cfg.ListenAddress, httpServer); err != nil {
			slog.ErrorContext(ctx, "failed to start server", "error", err)
			cancel()
			return err
		}
		return nil
	})

	// Handle graceful shutdown: drain the engine, then stop the server.
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("shutting down gracefully")

		if err := agg.Close(shutdownCtx); err != nil {
			slog.Error("engine shutdown failed", "error", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server terminated", "err", err)
	}
}

func newStore(ctx context.Context, cfg config) (engine.Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "file":
		s, err := filestore.New(afero.NewOsFs(), cfg.DataDir, 3600)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, errors.New("unknown STORE_DRIVER: " + cfg.StoreDriver)
	}
}

func runHttpServer(ctx context.Context, listenAddress string, srv *server.Server) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return err
	}

	err = srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func loadConfig(config any) error {
	// Ignore error if .env is missing
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		return err
	}

	// Parse for built-in types
	if err := env.Parse(config); err != nil {
		return err
	}

	return nil
}
