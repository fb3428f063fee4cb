package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"portfolio_api/config"
	"portfolio_api/services"

	"github.com/google/subcommands"
)

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "run one price refresh round and exit" }
func (*refreshCmd) Usage() string {
	return `refresh

  Fetches prices for every tracked ticker and stores them as last prices.
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, db, logger, err := openDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer config.CloseDB(db) //nolint:errcheck

	quotes := services.NewQuoteClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.QuoteAPIKeyHeader, cfg.QuoteTimeout)
	refresher := services.NewPriceRefresher(services.NewPortfolioService(db), quotes, logger)

	result, err := refresher.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error refreshing prices: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Tickers: %d, prices fetched: %d, rows updated: %d\n", result.Tickers, result.Fetched, result.RowsUpdated)
	return subcommands.ExitSuccess
}
