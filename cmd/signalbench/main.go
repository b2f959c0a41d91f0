package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

const (
	configKey    = "config"
	logLevelKey  = "log-level"
	logFormatKey = "log-format"
)

type ctxKey int

const (
	configCtxKey ctxKey = iota
	loggerCtxKey
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "signalbench",
		Usage: "Benchmark, inspect and serve cascade dependency graphs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      configKey,
				Aliases:   []string{"c"},
				Usage:     "YAML config file, flags override its values",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:  logLevelKey,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  logFormatKey,
				Usage: "text or json",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			propagateCommand(),
			layersCommand(),
			dotCommand(),
			serveCommand(),
		},
	}
}

// setup loads the config and builds the logger every subcommand uses.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(cmd.String(configKey))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet(logLevelKey) {
		cfg.Log.Level = cmd.String(logLevelKey)
	}
	if cmd.IsSet(logFormatKey) {
		cfg.Log.Format = cmd.String(logFormatKey)
	}

	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx = context.WithValue(ctx, configCtxKey, cfg)
	ctx = context.WithValue(ctx, loggerCtxKey, logger)
	return ctx, nil
}

func configFrom(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configCtxKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
