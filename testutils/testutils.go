// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"portfolio_api/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated sqlite database in a temporary directory.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser stores an active user with the given password.
func CreateUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()

	user := &models.User{Username: username, Email: username + "@example.com", IsActive: true}
	if err := user.SetPassword(password); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// AddSecurity stores a security row directly.
func AddSecurity(t *testing.T, db *gorm.DB, userID uint, ticker string, price decimal.Decimal) {
	t.Helper()

	if err := db.Create(&models.Security{UserID: userID, Ticker: ticker, LastPrice: price}).Error; err != nil {
		t.Fatalf("create security %s: %v", ticker, err)
	}
}

// FakeFetcher serves prices from a fixed table and records every request.
type FakeFetcher struct {
	mu     sync.Mutex
	Prices map[string]decimal.Decimal
	Err    error
	Calls  [][]string
}

// FetchPrices returns the known prices among tickers, or Err when set.
func (f *FakeFetcher) FetchPrices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, append([]string(nil), tickers...))
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]decimal.Decimal)
	for _, ticker := range tickers {
		if price, ok := f.Prices[ticker]; ok {
			out[ticker] = price
		}
	}
	return out, nil
}

// CallCount returns how many times FetchPrices ran.
func (f *FakeFetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
