package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"portfolio_api/config"
	"portfolio_api/models"
	"portfolio_api/services"
	"portfolio_api/testutils"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/subcommands"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// useTestEnv points the commands at a fresh sqlite file and returns its path.
func useTestEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portfolio.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MONGODB_URI", "")
	return path
}

func openTestDatabase(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(&config.Config{DBDriver: "sqlite", SQLitePath: path, Environment: "production"})
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = config.CloseDB(db) })
	return db
}

func flags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestCreateUserCmd(t *testing.T) {
	path := useTestEnv(t)
	ctx := context.Background()

	cmd := &createUserCmd{username: "alice", password: "s3cret", email: "alice@example.com"}
	if got := cmd.Execute(ctx, flags(t)); got != subcommands.ExitSuccess {
		t.Fatalf("Expected success, got %v", got)
	}

	db := openTestDatabase(t, path)
	var user models.User
	if err := db.Where("username = ?", "alice").First(&user).Error; err != nil {
		t.Fatalf("User not stored: %v", err)
	}
	if !user.IsActive || !user.CheckPassword("s3cret") || user.Email != "alice@example.com" {
		t.Errorf("Unexpected user %+v", user)
	}

	if got := cmd.Execute(ctx, flags(t)); got != subcommands.ExitFailure {
		t.Errorf("Duplicate user: expected failure, got %v", got)
	}
}

func TestCreateUserCmd_RequiresCredentials(t *testing.T) {
	useTestEnv(t)

	cmd := &createUserCmd{username: "alice"}
	if got := cmd.Execute(context.Background(), flags(t)); got != subcommands.ExitUsageError {
		t.Errorf("Expected usage error, got %v", got)
	}
}

func TestRefreshCmd_UpdatesLastPrices(t *testing.T) {
	path := useTestEnv(t)

	quotes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tickers") != "AAPL" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"AAPL": 216.32}`)) //nolint:errcheck
	}))
	defer quotes.Close()
	t.Setenv("QUOTE_API_URL", quotes.URL)

	db := openTestDatabase(t, path)
	user := testutils.CreateUser(t, db, "alice", "secret")
	testutils.AddSecurity(t, db, user.ID, "AAPL", decimal.Zero)

	if got := (&refreshCmd{}).Execute(context.Background(), flags(t)); got != subcommands.ExitSuccess {
		t.Fatalf("Expected success, got %v", got)
	}

	var security models.Security
	if err := db.Where("user_id = ? AND ticker = ?", user.ID, "AAPL").First(&security).Error; err != nil {
		t.Fatalf("Load security: %v", err)
	}
	if !security.LastPrice.Equal(decimal.RequireFromString("216.32")) {
		t.Errorf("Expected last price 216.32, got %s", security.LastPrice)
	}
}

func TestRefreshCmd_QuoteServiceDown(t *testing.T) {
	path := useTestEnv(t)

	quotes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer quotes.Close()
	t.Setenv("QUOTE_API_URL", quotes.URL)

	db := openTestDatabase(t, path)
	user := testutils.CreateUser(t, db, "alice", "secret")
	testutils.AddSecurity(t, db, user.ID, "AAPL", decimal.RequireFromString("100"))

	// A failed fetch skips the round without failing it.
	if got := (&refreshCmd{}).Execute(context.Background(), flags(t)); got != subcommands.ExitSuccess {
		t.Fatalf("Expected success, got %v", got)
	}

	var security models.Security
	db.Where("user_id = ?", user.ID).First(&security)
	if !security.LastPrice.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected last price untouched, got %s", security.LastPrice)
	}
}

func TestHashPasswordCmd(t *testing.T) {
	ctx := context.Background()
	cmd := &hashPasswordCmd{}

	if got := cmd.Execute(ctx, flags(t)); got != subcommands.ExitUsageError {
		t.Errorf("No argument: expected usage error, got %v", got)
	}
	if got := cmd.Execute(ctx, flags(t, "a", "b")); got != subcommands.ExitUsageError {
		t.Errorf("Two arguments: expected usage error, got %v", got)
	}
	if got := cmd.Execute(ctx, flags(t, "s3cret")); got != subcommands.ExitSuccess {
		t.Errorf("One argument: expected success, got %v", got)
	}
}

func TestLatestCmd_ReadsRedisMirror(t *testing.T) {
	useTestEnv(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	publisher := services.NewRedisPricePublisher(client)
	if err := publisher.Publish(ctx, map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("216.32")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	t.Setenv("REDIS_ADDR", mr.Addr())

	var out bytes.Buffer
	cmd := &latestCmd{out: &out}
	if got := cmd.Execute(ctx, flags(t, "AAPL")); got != subcommands.ExitSuccess {
		t.Fatalf("Expected success, got %v", got)
	}
	if !strings.HasPrefix(out.String(), "AAPL\t216.32\t") {
		t.Errorf("Unexpected output %q", out.String())
	}

	out.Reset()
	if got := cmd.Execute(ctx, flags(t, "AAPL", "NOPE")); got != subcommands.ExitFailure {
		t.Errorf("Missing ticker: expected failure, got %v", got)
	}
	if !strings.Contains(out.String(), "NOPE\tnot mirrored") {
		t.Errorf("Expected missing ticker to be reported, got %q", out.String())
	}
}

func TestLatestCmd_NeedsTickerAndMirror(t *testing.T) {
	useTestEnv(t)
	ctx := context.Background()
	cmd := &latestCmd{out: &bytes.Buffer{}}

	if got := cmd.Execute(ctx, flags(t)); got != subcommands.ExitUsageError {
		t.Errorf("No ticker: expected usage error, got %v", got)
	}
	if got := cmd.Execute(ctx, flags(t, "AAPL")); got != subcommands.ExitFailure {
		t.Errorf("No mirror configured: expected failure, got %v", got)
	}
}
