// Command boltd runs the Bolt protocol server against the sqlitegraph
// reference backend. Grounded on the teacher's cmd/ wiring pattern,
// generalised from a single flat flag parse to spf13/cobra+viper so
// config can also come from a file or environment, matching how
// vitessio-vitess and Ekats-Mycelica/spore structure their own entrypoints.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bolt-proto/boltd/auth/staticvalidator"
	"github.com/bolt-proto/boltd/backend/sqlitegraph"
	"github.com/bolt-proto/boltd/config"
	"github.com/bolt-proto/boltd/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("boltd")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "boltd",
		Short: "A Bolt v5.x protocol server backed by a reference graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(v)
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags(), v)

	var cfgFile string
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			_ = v.ReadInConfig()
		}
	})
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)

	be, err := sqlitegraph.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer be.Close()

	validator := staticvalidator.New(cfg.Users)

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load TLS keypair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	var metrics *server.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = server.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	srv := server.New(server.Config{
		Addr:           cfg.ListenAddr,
		TLS:            tlsConfig,
		MaxSessions:    cfg.MaxSessions,
		IdleTimeout:    cfg.IdleTimeout,
		ReapInterval:   cfg.ReapInterval,
		MaxMessageSize: cfg.MaxMessageSize,
	}, be, validator, log, metrics)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
