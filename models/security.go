package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Security is one ticker held in a user's portfolio. A user holds a ticker at most once.
type Security struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"uniqueIndex:idx_security_owner_ticker;not null" json:"user_id"`
	Ticker    string          `gorm:"uniqueIndex:idx_security_owner_ticker;index;size:16;not null" json:"ticker"`
	Name      string          `json:"name"`
	LastPrice decimal.Decimal `gorm:"type:numeric;default:0" json:"last_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MigrateSecurityModels runs database migrations for portfolio models
func MigrateSecurityModels(db *gorm.DB) error {
	return db.AutoMigrate(&Security{})
}

// Migrate runs every migration in dependency order.
func Migrate(db *gorm.DB) error {
	if err := MigrateUserModels(db); err != nil {
		return err
	}
	return MigrateSecurityModels(db)
}
