package services

import (
	"errors"
	"fmt"
	"strings"

	"portfolio_api/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAlreadyInPortfolio = errors.New("ticker already in portfolio")
	ErrNotInPortfolio     = errors.New("ticker not in portfolio")
	ErrEmptyTicker        = errors.New("ticker must be provided")
)

// PortfolioService persists the securities each user tracks.
type PortfolioService struct {
	db *gorm.DB
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(db *gorm.DB) *PortfolioService {
	return &PortfolioService{db: db}
}

// ListPrices returns ticker -> last recorded price for the user's securities.
func (s *PortfolioService) ListPrices(userID uint) (map[string]decimal.Decimal, error) {
	var securities []models.Security
	if err := s.db.Select("ticker", "last_price").
		Where("user_id = ?", userID).
		Find(&securities).Error; err != nil {
		return nil, fmt.Errorf("list securities for user %d: %w", userID, err)
	}

	prices := make(map[string]decimal.Decimal, len(securities))
	for _, security := range securities {
		prices[security.Ticker] = security.LastPrice
	}
	return prices, nil
}

// Exists reports whether the user already holds ticker.
func (s *PortfolioService) Exists(userID uint, ticker string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Security{}).
		Where("user_id = ? AND ticker = ?", userID, ticker).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check security %s for user %d: %w", ticker, userID, err)
	}
	return count > 0, nil
}

// Add creates the security for the user with an unset price.
// A concurrent duplicate rejected by the unique index is reported as ErrAlreadyInPortfolio.
func (s *PortfolioService) Add(userID uint, ticker string) (*models.Security, error) {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return nil, ErrEmptyTicker
	}

	exists, err := s.Exists(userID, ticker)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyInPortfolio
	}

	security := &models.Security{
		UserID:    userID,
		Ticker:    ticker,
		LastPrice: decimal.Zero,
	}
	if err := s.db.Create(security).Error; err != nil {
		if exists, checkErr := s.Exists(userID, ticker); checkErr == nil && exists {
			return nil, ErrAlreadyInPortfolio
		}
		return nil, fmt.Errorf("create security %s for user %d: %w", ticker, userID, err)
	}
	return security, nil
}

// Remove deletes the user's security in a single statement.
func (s *PortfolioService) Remove(userID uint, ticker string) error {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return ErrEmptyTicker
	}

	result := s.db.Where("user_id = ? AND ticker = ?", userID, ticker).Delete(&models.Security{})
	if result.Error != nil {
		return fmt.Errorf("delete security %s for user %d: %w", ticker, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotInPortfolio
	}
	return nil
}

// DistinctTickers returns every ticker tracked by any user.
func (s *PortfolioService) DistinctTickers() ([]string, error) {
	var tickers []string
	if err := s.db.Model(&models.Security{}).
		Distinct("ticker").
		Order("ticker").
		Pluck("ticker", &tickers).Error; err != nil {
		return nil, fmt.Errorf("list distinct tickers: %w", err)
	}
	return tickers, nil
}

// UpdateLastPrice sets the price on every user's row for ticker.
func (s *PortfolioService) UpdateLastPrice(ticker string, price decimal.Decimal) (int64, error) {
	result := s.db.Model(&models.Security{}).
		Where("ticker = ?", ticker).
		Update("last_price", price)
	if result.Error != nil {
		return 0, fmt.Errorf("update price for %s: %w", ticker, result.Error)
	}
	return result.RowsAffected, nil
}

func normalizeTicker(ticker string) string {
	return strings.TrimSpace(ticker)
}
