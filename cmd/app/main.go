package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdxengine/internal"
	pkgconfig "github.com/starford/mdxengine/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadFiles(cmd.String("config"), cfg, cmd.String("config-local")); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("documents"); dir != "" {
		cfg.Content.Documents = dir
	}
	if dir := cmd.String("components"); dir != "" {
		cfg.Content.Components = dir
	}
	if dir := cmd.String("out"); dir != "" {
		cfg.Content.Output = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Build(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	if report.Failed > 0 && cmd.Bool("fail-on-error") {
		return fmt.Errorf("%d document(s) failed to render", report.Failed)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func contentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "documents",
			Aliases: []string{"d"},
			Usage:   "Directory of .mdx/.md documents (overrides content.documents)",
		},
		&cli.StringFlag{
			Name:  "components",
			Usage: "Directory of .jsx/.js component files (overrides content.components)",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Directory for rendered output (overrides content.output)",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "mdxengine",
		Usage:  "Batch MDX rendering engine with sandboxed components",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-local",
				Usage:   "Optional config file applied over --config",
				Value:   "config/config.local.yaml",
				Sources: cli.EnvVars("APP_CONFIG_LOCAL_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and content watcher",
				Flags:  contentFlags(),
				Action: serve,
			},
			{
				Name:  "render",
				Usage: "Render the content directory once and print a JSON report",
				Flags: append(contentFlags(), &cli.BoolFlag{
					Name:  "fail-on-error",
					Usage: "Exit non-zero when any document fails",
				}),
				Action: build,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Flags:  contentFlags(),
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
