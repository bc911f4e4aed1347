package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
source:
  type: postgres
postgres:
  dsn: postgres://localhost/agricast
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 5000, c.Server.Port)
	assert.Equal(t, 3, c.Forecast.DefaultHorizon)
	assert.Equal(t, 30, c.Forecast.MaxHorizon)
	assert.Equal(t, 1, c.Forecast.MinTrainingRows)
	assert.Equal(t, "none", c.Predictions.Sink)
	assert.Equal(t, 5*time.Minute, c.Products.CacheTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing environment", "source: {type: postgres}\npostgres: {dsn: x}"},
		{"unknown source", "environment: t\nsource: {type: mysql}"},
		{"postgres without dsn", "environment: t\nsource: {type: postgres}"},
		{"supabase without key", "environment: t\nsource: {type: supabase}\nsupabase: {url: http://x}"},
		{"kafka sink without topic", minimal + "predictions: {sink: kafka}\nkafka: {brokers: [a:9092]}"},
		{"supabase sink without url", minimal + "predictions: {sink: supabase}"},
		{"unknown sink", minimal + "predictions: {sink: s3}"},
		{"horizon above max", minimal + "forecast: {default_horizon: 40, max_horizon: 30}"},
		{"target without city", minimal + "targets: [{product: Potatoes}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"PORT":          "8080",
		"SOURCE_TYPE":   "supabase",
		"SUPABASE_URL":  "https://demo.supabase.co",
		"SUPABASE_KEY":  "anon",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"REDIS_ADDR":    "cache:6380",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "supabase", c.Source.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal+"targets: [{product: Potatoes, city: Nanjing}]\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Target{{Product: "Potatoes", City: "Nanjing"}}, c.Targets)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
