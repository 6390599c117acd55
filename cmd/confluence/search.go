package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/search"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run a CQL search and print the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "cql",
				Usage:    "CQL query, e.g. 'type=page and space=DEV'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "cql-context",
				Usage: "JSON object describing the space and content the query runs in",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Results per page (default from config)",
			},
			&cli.IntFlag{
				Name:  "start",
				Usage: "Offset of the first result",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Retrieve every page of results",
			},
			&cli.StringSliceFlag{
				Name:  "expand",
				Usage: "Properties to expand (repeatable)",
			},
			&cli.StringFlag{
				Name:  "excerpt",
				Usage: "Excerpt strategy: highlight, indexed, none",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw result as JSON",
			},
		},
		Action: runSearch,
	}
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	limit := cfg.Search.DefaultLimit
	if cmd.IsSet("limit") {
		limit = int(cmd.Int("limit"))
	}
	opts := []search.Option{
		search.WithCQLContext(cmd.String("cql-context")),
		search.WithExpand(cmd.StringSlice("expand")...),
		search.WithLimit(limit),
		search.WithStart(int(cmd.Int("start"))),
		search.WithRetrieveAll(cmd.Bool("all")),
	}
	if name := cmd.String("excerpt"); name != "" {
		excerpt, err := domain.ParseExcerpt(name)
		if err != nil {
			return err
		}
		opts = append(opts, search.WithExcerpt(excerpt))
	}
	req, err := search.NewRequest(cmd.String("cql"), opts...)
	if err != nil {
		return err
	}

	conf, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := conf.Search().SearchContent(ctx, req).Wait(ctx)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	renderResults(w, result)
	return nil
}
