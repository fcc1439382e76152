package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SERVER_PORT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, "mongodb://localhost:27017/mes_db", cfg.MongoURI)
	assert.Equal(t, 5*time.Second, cfg.CodeLockTTL)
	assert.Equal(t, 10*time.Second, cfg.DashboardInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("TOKEN_TTL_MINUTES", "15")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MONGO_TRANSACTIONS", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.MongoTransactions)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "8000")
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}
