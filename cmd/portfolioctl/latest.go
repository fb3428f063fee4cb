package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"portfolio_api/config"
	"portfolio_api/services"

	"github.com/google/subcommands"
)

// mirroredPrice is one price read back from a refresh sink.
type mirroredPrice struct {
	Price     float64
	UpdatedAt time.Time
}

// priceMirror reads back what refresh rounds mirrored into Redis or MongoDB.
type priceMirror interface {
	latest(ctx context.Context, ticker string) (mirroredPrice, bool, error)
	Close() error
}

type redisMirror struct {
	publisher *services.RedisPricePublisher
	close     func() error
}

func (r *redisMirror) latest(ctx context.Context, ticker string) (mirroredPrice, bool, error) {
	update, ok, err := r.publisher.Latest(ctx, ticker)
	if err != nil || !ok {
		return mirroredPrice{}, ok, err
	}
	return mirroredPrice{Price: update.Price, UpdatedAt: time.Unix(update.Timestamp, 0).UTC()}, true, nil
}

func (r *redisMirror) Close() error { return r.close() }

type mongoMirror struct {
	store *services.MongoPriceStore
}

func (m *mongoMirror) latest(ctx context.Context, ticker string) (mirroredPrice, bool, error) {
	doc, ok, err := m.store.Latest(ctx, ticker)
	if err != nil || !ok {
		return mirroredPrice{}, ok, err
	}
	return mirroredPrice{Price: doc.Price, UpdatedAt: doc.UpdatedAt.UTC()}, true, nil
}

func (m *mongoMirror) Close() error { return m.store.Close() }

// openPriceMirror prefers Redis and falls back to MongoDB.
func openPriceMirror(ctx context.Context, cfg *config.Config) (priceMirror, error) {
	switch {
	case cfg.RedisAddr != "":
		client, err := services.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return &redisMirror{publisher: services.NewRedisPricePublisher(client), close: client.Close}, nil
	case cfg.MongoURI != "":
		store, err := services.ConnectMongoPriceStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &mongoMirror{store: store}, nil
	default:
		return nil, fmt.Errorf("neither REDIS_ADDR nor MONGODB_URI is set")
	}
}

type latestCmd struct {
	out io.Writer
}

func (*latestCmd) Name() string     { return "latest" }
func (*latestCmd) Synopsis() string { return "print the last mirrored price of tickers" }
func (*latestCmd) Usage() string {
	return `latest <ticker> [<ticker>...]

  Reads the prices the last refresh round mirrored into Redis (REDIS_ADDR)
  or, when Redis is not configured, MongoDB (MONGODB_URI).
`
}

func (*latestCmd) SetFlags(*flag.FlagSet) {}

func (c *latestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one ticker is required.")
		return subcommands.ExitUsageError
	}
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	mirror, err := openPriceMirror(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening price mirror: %v\n", err)
		return subcommands.ExitFailure
	}
	defer mirror.Close() //nolint:errcheck

	status := subcommands.ExitSuccess
	for _, ticker := range f.Args() {
		price, ok, err := mirror.latest(ctx, ticker)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", ticker, err)
			status = subcommands.ExitFailure
		case !ok:
			fmt.Fprintf(out, "%s\tnot mirrored\n", ticker)
			status = subcommands.ExitFailure
		default:
			fmt.Fprintf(out, "%s\t%v\t%s\n", ticker, price.Price, price.UpdatedAt.Format(time.RFC3339))
		}
	}
	return status
}
