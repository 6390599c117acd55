// Command confluence runs CQL searches against a Confluence server, either
// once from the command line or as a small HTTP search service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Sternrassler/confluence-client/internal/config"
	"github.com/Sternrassler/confluence-client/pkg/confluence"
	"github.com/Sternrassler/confluence-client/pkg/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "confluence",
		Usage: "Search Confluence with CQL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("CONFLUENCE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Confluence base URL including the context path",
				Sources: cli.EnvVars("CONFLUENCE_URL"),
			},
			&cli.StringFlag{
				Name:    "username",
				Usage:   "Account name for basic authentication",
				Sources: cli.EnvVars("CONFLUENCE_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Password or API token",
				Sources: cli.EnvVars("CONFLUENCE_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "redis",
				Usage:   "Redis address for the shared response cache",
				Sources: cli.EnvVars("CONFLUENCE_REDIS"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			serveCommand(),
			purgeCacheCommand(),
		},
	}
}

// loadConfig reads the optional config file and overlays the global flags.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	var cfg config.Config
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.ReadFile(path); err != nil {
			return config.Config{}, err
		}
	}

	if v := cmd.String("url"); v != "" {
		cfg.Confluence.BaseURL = v
	}
	if v := cmd.String("username"); v != "" {
		cfg.Confluence.Username = v
	}
	if v := cmd.String("password"); v != "" {
		cfg.Confluence.Password = v
	}
	if v := cmd.String("redis"); v != "" {
		cfg.Redis.Addr = v
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = string(logging.LevelDebug)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// connect sets up logging and Redis and connects to Confluence. The
// returned cleanup closes everything connect opened.
func connect(ctx context.Context, cfg config.Config) (*confluence.Confluence, func(), error) {
	logging.Setup(cfg.LoggerConfig())

	rdb := cfg.NewRedis()
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	conf, err := confluence.New(ctx, cfg.ClientConfig(rdb), confluence.WithPagination(cfg.PaginationConfig()))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		conf.Close()
		if rdb != nil {
			rdb.Close()
		}
	}
	return conf, cleanup, nil
}
