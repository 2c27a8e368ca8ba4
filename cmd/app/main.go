package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/scimark/internal"
	pkgconfig "github.com/starford/scimark/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func preprocess(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Preprocess(ctx, opts...); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	return nil
}

func supports(_ context.Context, cmd *cli.Command) error {
	renderer := cmd.Args().First()
	if renderer == "" {
		return cli.Exit("supports: renderer name required", 2)
	}
	if !internal.Supports(renderer) {
		return cli.Exit("", 1)
	}
	return nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Build(ctx, opts...); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "scimark",
		Usage:   "mdbook preprocessor for LaTeX equations, figures, gnuplot plots and cross references",
		Version: version,
		Action:  preprocess,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "supports",
				Usage:     "Exit 0 when the renderer is supported",
				ArgsUsage: "<renderer>",
				Action:    supports,
			},
			{
				Name:   "build",
				Usage:  "Render the standalone book into its output directory",
				Action: build,
			},
			{
				Name:   "serve",
				Usage:  "Preview server with rebuild on change and live events",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the book to MCP clients over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
