package config

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger for the given environment.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
