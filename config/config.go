package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"port"`
	Environment string   `mapstructure:"environment"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	DBDriver   string `mapstructure:"db_driver"` // postgres, sqlite
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	QuoteAPIURL       string        `mapstructure:"quote_api_url"`
	QuoteAPIKey       string        `mapstructure:"quote_api_key"`
	QuoteAPIKeyHeader string        `mapstructure:"quote_api_key_header"`
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	MongoURI      string `mapstructure:"mongodb_uri"`
	MongoDatabase string `mapstructure:"mongodb_database"`
}

var AppConfig *Config

// keys lists every setting; each maps to the upper-cased environment variable.
var keys = []string{
	"port", "environment", "cors_origins",
	"db_driver", "db_host", "db_port", "db_user", "db_password", "db_name", "db_sslmode", "sqlite_path",
	"jwt_secret", "token_ttl",
	"quote_api_url", "quote_api_key", "quote_api_key_header", "quote_timeout", "refresh_interval",
	"redis_addr", "redis_password", "redis_db",
	"mongodb_uri", "mongodb_database",
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "portfolio")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("sqlite_path", "data/portfolio.db")

	v.SetDefault("jwt_secret", "your-secret-key")
	v.SetDefault("token_ttl", 24*time.Hour)

	v.SetDefault("quote_api_url", "http://localhost:9000/stock/prices/")
	v.SetDefault("quote_api_key", "")
	v.SetDefault("quote_api_key_header", "X-Api-Key")
	v.SetDefault("quote_timeout", 10*time.Second)
	v.SetDefault("refresh_interval", 5*time.Second)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("mongodb_uri", "")
	v.SetDefault("mongodb_database", "portfolio")
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.DBDriver)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
