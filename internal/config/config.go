package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Stock valuation bases for the dashboard stock value figure.
const (
	ValuationCost  = "cost"
	ValuationPrice = "price"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	Port        string `envconfig:"PORT" default:"3000"`
	AppName     string `envconfig:"APP_NAME" default:"Retail Back-Office v1.0"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBURL      string `envconfig:"DATABASE_URL"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"backoffice"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBTimeZone string `envconfig:"DB_TIMEZONE" default:"UTC"`
	DBLogLevel string `envconfig:"DB_LOG_LEVEL" default:"warn"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"backoffice.db"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Embedded so its variables are read without a prefix.
	Dashboard

	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@example.com"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:"admin123"`
}

// Dashboard tunes the dashboard aggregator.
type Dashboard struct {
	// WindowDays bounds total sales/profit and breakdowns; 0 means all-time.
	WindowDays     int           `envconfig:"DASHBOARD_WINDOW_DAYS" default:"30"`
	TrendDays      int           `envconfig:"DASHBOARD_TREND_DAYS" default:"7"`
	RecentLimit    int           `envconfig:"DASHBOARD_RECENT_LIMIT" default:"5"`
	StockValuation string        `envconfig:"STOCK_VALUATION" default:"cost"`
	CacheTTL       time.Duration `envconfig:"DASHBOARD_CACHE_TTL" default:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalises enum-like values and rejects unknown ones.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	c.Dashboard.StockValuation = strings.ToLower(strings.TrimSpace(c.Dashboard.StockValuation))
	if c.Dashboard.StockValuation != ValuationCost && c.Dashboard.StockValuation != ValuationPrice {
		return fmt.Errorf("config: STOCK_VALUATION must be %q or %q", ValuationCost, ValuationPrice)
	}
	if c.Dashboard.WindowDays < 0 {
		return fmt.Errorf("config: DASHBOARD_WINDOW_DAYS must not be negative")
	}
	if c.Dashboard.TrendDays <= 0 {
		c.Dashboard.TrendDays = 7
	}
	if c.Dashboard.RecentLimit <= 0 {
		c.Dashboard.RecentLimit = 5
	}
	return nil
}

// PostgresDSN builds a DSN from the discrete DB_* settings unless DATABASE_URL is set.
func (c *Config) PostgresDSN() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBTimeZone,
	)
}
