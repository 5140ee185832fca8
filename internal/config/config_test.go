package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseURL(t *testing.T) {
	c := &Config{
		PostgresUser: "forest", PostgresPassword: "secret",
		PostgresHost: "db", PostgresPort: "5432", PostgresDB: "forestdb",
	}
	assert.Equal(t, "postgres://forest:secret@db:5432/forestdb?sslmode=disable", c.DatabaseURL())
}

func TestRedisAddr(t *testing.T) {
	c := &Config{RedisHost: "cache", RedisPort: "6379"}
	assert.Equal(t, "cache:6379", c.RedisAddr())
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "localhost", cfg.PostgresHost)
	assert.Equal(t, "5432", cfg.PostgresPort)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, "8080", cfg.BackendPort)
	assert.Equal(t, 24, cfg.JWTExpiryHours)
	assert.Equal(t, "species_table.csv", cfg.SpeciesTablePath)
	assert.Equal(t, 20.0, cfg.DefaultGridSpacingM)
	assert.Equal(t, 5000.0, cfg.ProximityDistanceM)
	assert.Equal(t, 120, cfg.RequestDeadlineSeconds)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Equal(t, int32(2), cfg.DBMinConns)
}
