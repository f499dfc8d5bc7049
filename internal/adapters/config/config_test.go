package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "riskgate", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 0.10, cfg.Risk.VolatilityCeiling)
	assert.Equal(t, 5*time.Minute, cfg.Risk.AlertCooldown)
	assert.Equal(t, 2*time.Second, cfg.Risk.PriceTimeout)
	assert.Equal(t, 30*time.Second, cfg.Workers.GeneralSweepInterval)
	assert.Equal(t, 10*time.Second, cfg.Workers.StopLossSweepInterval)
	assert.Equal(t, time.Minute, cfg.Workers.LimitRefreshInterval)
	assert.Equal(t, time.Hour, cfg.Workers.ResetSweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("RISK_ALERT_COOLDOWN", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 90*time.Second, cfg.Risk.AlertCooldown)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "risk", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=risk sslmode=disable", c.DSN())
}
