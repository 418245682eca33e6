package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, ValuationCost, cfg.Dashboard.StockValuation)
	assert.Equal(t, 30, cfg.Dashboard.WindowDays)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("STOCK_VALUATION", "price")
	t.Setenv("DASHBOARD_WINDOW_DAYS", "0")
	t.Setenv("DASHBOARD_CACHE_TTL", "1m")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, ValuationPrice, cfg.Dashboard.StockValuation)
	assert.Equal(t, 0, cfg.Dashboard.WindowDays)
	assert.Equal(t, time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "postgres://u:p@db/x", cfg.PostgresDSN())
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("STOCK_VALUATION", "market")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STOCK_VALUATION", "cost")
	t.Setenv("DB_DRIVER", "mysql")
	_, err = Load()
	assert.Error(t, err)
}

func TestPostgresDSNFromParts(t *testing.T) {
	cfg := Config{DBHost: "h", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5433", DBTimeZone: "UTC"}
	assert.Equal(t, "host=h user=u password=p dbname=n port=5433 sslmode=disable TimeZone=UTC", cfg.PostgresDSN())
}
