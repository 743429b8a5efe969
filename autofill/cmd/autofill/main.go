// Command autofill attaches the suggestion overlay engine to a page and runs
// it until interrupted. An optional admin endpoint exposes lifecycle control.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/infilloai/infillo-sub001/autofill"
	"github.com/infilloai/infillo-sub001/autofill/internal/api"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration")
		pageURL    = flag.String("url", "", "page URL (overrides config)")
		service    = flag.String("service", "", "inference service endpoint (overrides config)")
		adminAddr  = flag.String("admin", "", "admin API listen address, e.g. 127.0.0.1:8099")
		logLevel   = flag.String("log-level", env("LOG_LEVEL", "info"), "debug | info | warn | error")
	)
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := autofill.DefaultConfig()
	if *configPath != "" {
		loaded, err := autofill.LoadConfigFile(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *pageURL != "" {
		cfg.Page.URL = *pageURL
	}
	if *service != "" {
		cfg.Service.Endpoint = *service
	}
	if cfg.Page.URL == "" {
		slog.Error("page URL is required (-url or config)")
		os.Exit(1)
	}
	if cfg.Service.Endpoint == "" {
		slog.Error("inference service endpoint is required (-service or config)")
		os.Exit(1)
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		slog.Error("configure sinks", "error", err)
		os.Exit(1)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, autofill.NewStdoutSink(os.Stdout))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := autofill.New(cfg, autofill.WithLogger(logger), autofill.WithSinks(sinks...))

	if err := engine.Start(ctx); err != nil {
		slog.Error("engine start", "error", err)
		os.Exit(1)
	}
	defer engine.Stop()

	var admin *http.Server
	if *adminAddr != "" {
		admin = &http.Server{
			Addr:              *adminAddr,
			Handler:           api.NewHandler(engine, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("admin API listening", "addr", *adminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin API", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if admin != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		admin.Shutdown(shutCtx)
	}
}

func buildSinks(cfg *autofill.Config) ([]autofill.Sink, error) {
	var sinks []autofill.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, autofill.NewStdoutSink(os.Stdout))
		case "webhook":
			sinks = append(sinks, autofill.NewWebhookSink(sc.URL))
		case "sqlite":
			s, err := autofill.NewSQLiteSink(sc.Path)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			slog.Warn("unknown sink type skipped", "type", sc.Type)
		}
	}
	return sinks, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
