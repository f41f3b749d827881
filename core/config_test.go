package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "storefront", cfg.Name)
	assert.Equal(t, "pt-BR", cfg.Locale)
	assert.Equal(t, "BRL", cfg.Currency)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.True(t, cfg.Catalog.HideStockless)
	assert.False(t, cfg.Catalog.HideMinZero)
	assert.Equal(t, "data/keys", cfg.Remote.KeysDocument)
	assert.Equal(t, "produtos", cfg.Remote.ProductsField)
	assert.Equal(t, "orders", cfg.Remote.OrdersCollection)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_NAME", "loja-centro")
	t.Setenv("STOREFRONT_PORT", "9090")
	t.Setenv("STOREFRONT_REMOTE_PROVIDER", "REDIS")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("STOREFRONT_HIDE_STOCKLESS", "false")
	t.Setenv("STOREFRONT_DISTRICT_SOURCES", "a.json, b.json,")
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "loja-centro", cfg.Name)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "redis", cfg.Remote.Provider)
	assert.Equal(t, "redis://localhost:6379", cfg.Remote.RedisURL)
	assert.False(t, cfg.Catalog.HideStockless)
	assert.Equal(t, []string{"a.json", "b.json"}, cfg.Districts.Sources)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
}

func TestLoadFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("STOREFRONT_PORT", "not-a-port")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	content := `
name: loja-bairro
http:
  port: 7070
catalog:
  hide_stockless: false
  hide_min_zero: true
queue:
  flush_schedule: "@every 30s"
  connectivity_interval: 5s
districts:
  sources: ["https://example.com/bairros.json"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "loja-bairro", cfg.Name)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.False(t, cfg.Catalog.HideStockless)
	assert.True(t, cfg.Catalog.HideMinZero)
	assert.Equal(t, "@every 30s", cfg.Queue.FlushSchedule)
	assert.Equal(t, 5*time.Second, cfg.Queue.ConnectivityInterval)
	assert.Equal(t, []string{"https://example.com/bairros.json"}, cfg.Districts.Sources)
	// untouched sections keep defaults
	assert.Equal(t, "BRL", cfg.Currency)
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"json-loja","checkout":{"order_history":true}}`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, "json-loja", cfg.Name)
	assert.True(t, cfg.Checkout.OrderHistory)
}

func TestLoadFromFile_Errors(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.LoadFromFile("config.toml")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":`), 0o600))
	err = cfg.LoadFromFile(path)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid defaults", func(c *Config) {}, nil},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, ErrInvalidConfiguration},
		{"missing name", func(c *Config) { c.Name = "" }, ErrMissingConfiguration},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "sqlite" }, ErrInvalidConfiguration},
		{"redis storage without url", func(c *Config) { c.Storage.Provider = "redis" }, ErrMissingConfiguration},
		{"redis remote without url", func(c *Config) { c.Remote.Provider = "redis" }, ErrMissingConfiguration},
		{"firestore without project", func(c *Config) { c.Remote.Provider = "firestore" }, ErrMissingConfiguration},
		{"unknown remote", func(c *Config) { c.Remote.Provider = "couch" }, ErrInvalidConfiguration},
		{"otlp without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "otlp"
		}, ErrMissingConfiguration},
		{"events without brokers", func(c *Config) { c.Events.Enabled = true }, ErrMissingConfiguration},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			var se *StoreError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestNewConfig_OptionsOverrideEnv(t *testing.T) {
	t.Setenv("STOREFRONT_NAME", "from-env")

	cfg, err := NewConfig(
		WithName("from-option"),
		WithPort(8181),
		WithRemoteProvider("redis", "redis://cache:6379"),
		WithCatalogFilters(false, true),
		WithEvents([]string{"kafka:9092"}, "orders"),
	)
	require.NoError(t, err)

	assert.Equal(t, "from-option", cfg.Name)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, "redis://cache:6379", cfg.Remote.RedisURL)
	assert.False(t, cfg.Catalog.HideStockless)
	assert.True(t, cfg.Catalog.HideMinZero)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "orders", cfg.Events.Topic)
}

func TestNewConfig_InvalidOption(t *testing.T) {
	_, err := NewConfig(WithPort(70000))
	assert.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
