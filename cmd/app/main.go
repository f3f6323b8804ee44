package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/waypoint/internal"
	pkgconfig "github.com/starford/waypoint/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("workers") {
		cfg.Index.Workers = int(cmd.Int("workers"))
		if err := cfg.Index.Validate(); err != nil {
			return nil, fmt.Errorf("--workers: %w", err)
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func index(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []internal.Option{internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)}
	sum, err := internal.RunIndex(ctx, opts...)
	printSummary(os.Stdout, sum, cmd.Bool("no-color"))
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if cmd.Bool("strict") && sum.Errors > 0 {
		return cli.Exit(fmt.Sprintf("index: %d errors", sum.Errors), 2)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	cmd := &cli.Command{
		Name:    "waypoint",
		Usage:   "Index where URLs appear in org-roam notes, bibliographies and Joplin, and serve that history",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Org file workers (-1 sequential, 0 one per CPU); overrides index.workers",
				Sources: cli.EnvVars("WAYPOINT_WORKERS"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and event stream, re-indexing on change",
				Action: serve,
			},
			{
				Name:   "index",
				Usage:  "Run one indexing pass and print a summary",
				Action: index,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "no-color",
						Usage:   "Disable colored output",
						Sources: cli.EnvVars("NO_COLOR"),
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Exit with status 2 when any source reported errors",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the visit history over MCP on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
