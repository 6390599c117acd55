package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

func purgeCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-cache",
		Usage: "Drop the cached responses of one account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "Account whose entries are removed (default: the configured username)",
			},
		},
		Action: runPurgeCache,
	}
}

func runPurgeCache(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conf, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	store := conf.Client().Cache()
	if store == nil {
		return errors.New("response cache is not configured: set redis.addr and a positive redis.cache_ttl_sec")
	}

	user := cmd.String("user")
	if user == "" {
		user = cfg.Confluence.Username
	}
	n, err := store.Purge(ctx, user)
	if err != nil {
		return fmt.Errorf("purge cache for %s: %w", user, err)
	}
	fmt.Fprintf(cmd.Root().Writer, "Removed %d cached responses for %s\n", n, user)
	return nil
}
