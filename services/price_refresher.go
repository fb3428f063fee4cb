package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSink receives the prices fetched in each refresh round.
type PriceSink interface {
	Publish(ctx context.Context, prices map[string]decimal.Decimal) error
}

// PriceRefresher updates last_price for every tracked ticker across all users.
type PriceRefresher struct {
	portfolio *PortfolioService
	fetcher   PriceFetcher
	sinks     []PriceSink
	logger    *zap.Logger
}

// RefreshResult summarises one refresh round.
type RefreshResult struct {
	Tickers     int
	Fetched     int
	RowsUpdated int64
}

// NewPriceRefresher creates a refresher; sinks may be empty.
func NewPriceRefresher(portfolio *PortfolioService, fetcher PriceFetcher, logger *zap.Logger, sinks ...PriceSink) *PriceRefresher {
	return &PriceRefresher{
		portfolio: portfolio,
		fetcher:   fetcher,
		sinks:     sinks,
		logger:    logger,
	}
}

// Refresh runs one round. A failed fetch counts as an empty price set;
// only a failure to read the ticker list is returned.
func (r *PriceRefresher) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult

	tickers, err := r.portfolio.DistinctTickers()
	if err != nil {
		return result, err
	}
	result.Tickers = len(tickers)

	joined := strings.Join(tickers, ",")
	r.logger.Info("Updating prices for tickers", zap.String("tickers", joined))

	if len(tickers) == 0 {
		r.logger.Info("No tracked tickers, skipping price fetch")
		return result, nil
	}

	prices, err := r.fetcher.FetchPrices(ctx, tickers)
	if err != nil {
		r.logger.Warn("Price fetch failed, no prices updated this round", zap.Error(err))
		prices = map[string]decimal.Decimal{}
	}
	result.Fetched = len(prices)

	for ticker, price := range prices {
		rows, err := r.portfolio.UpdateLastPrice(ticker, price)
		if err != nil {
			r.logger.Error("Failed to store price", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		result.RowsUpdated += rows
	}

	if len(prices) > 0 {
		for _, sink := range r.sinks {
			if err := sink.Publish(ctx, prices); err != nil {
				r.logger.Warn("Price sink publish failed", zap.Error(err))
			}
		}
	}

	r.logger.Info("Updated prices for tickers",
		zap.String("tickers", joined),
		zap.Int("fetched", result.Fetched),
		zap.Int64("rows_updated", result.RowsUpdated),
	)
	return result, nil
}

// Run is the scheduler entry point; it logs instead of returning errors.
func (r *PriceRefresher) Run(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Error("Price refresh failed", zap.Error(err))
	}
}
