package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the storefront.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// A config file can be layered in through WithConfigFile, which is applied
// in the options phase like any other option.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("loja-centro"),
//	    WithPort(8080),
//	    WithRemoteProvider("redis", "redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name     string `json:"name" yaml:"name" env:"STOREFRONT_NAME" default:"storefront"`
	Locale   string `json:"locale" yaml:"locale" env:"STOREFRONT_LOCALE" default:"pt-BR"`
	Currency string `json:"currency" yaml:"currency" env:"STOREFRONT_CURRENCY" default:"BRL"`
	Domain   string `json:"domain" yaml:"domain" env:"STOREFRONT_DOMAIN"`

	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Remote    RemoteConfig    `json:"remote" yaml:"remote"`
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog"`
	Checkout  CheckoutConfig  `json:"checkout" yaml:"checkout"`
	Districts DistrictsConfig `json:"districts" yaml:"districts"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Tracker   TrackerConfig   `json:"tracker" yaml:"tracker"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	KeySync   KeySyncConfig   `json:"keysync" yaml:"keysync"`
}

// HTTPConfig contains the API server settings
type HTTPConfig struct {
	Port            int           `json:"port" yaml:"port" env:"STOREFRONT_PORT" default:"8080"`
	Address         string        `json:"address" yaml:"address" env:"STOREFRONT_ADDRESS"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"10s"`
	RateLimit       float64       `json:"rate_limit" yaml:"rate_limit" env:"STOREFRONT_RATE_LIMIT" default:"20"`
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins     []string      `json:"cors_origins" yaml:"cors_origins" env:"STOREFRONT_CORS_ORIGINS"`
	// LogAllRequests logs every request instead of only errors and slow ones.
	LogAllRequests  bool          `json:"log_all_requests" yaml:"log_all_requests" env:"STOREFRONT_LOG_ALL_REQUESTS"`
}

// StorageConfig selects the device-local durable storage
type StorageConfig struct {
	Provider  string `json:"provider" yaml:"provider" env:"STOREFRONT_STORAGE_PROVIDER" default:"bolt"` // bolt, memory, redis
	Path      string `json:"path" yaml:"path" env:"STOREFRONT_STORAGE_PATH" default:"storefront.db"`
	RedisURL  string `json:"redis_url" yaml:"redis_url" env:"STOREFRONT_STORAGE_REDIS_URL"`
	Namespace string `json:"namespace" yaml:"namespace" env:"STOREFRONT_STORAGE_NAMESPACE" default:"storefront:device"`
}

// RemoteConfig selects the remote document store
type RemoteConfig struct {
	Provider         string `json:"provider" yaml:"provider" env:"STOREFRONT_REMOTE_PROVIDER" default:"memory"` // memory, redis, firestore
	RedisURL         string `json:"redis_url" yaml:"redis_url" env:"REDIS_URL"`
	Namespace        string `json:"namespace" yaml:"namespace" env:"STOREFRONT_REMOTE_NAMESPACE" default:"storefront"`
	ProjectID        string `json:"project_id" yaml:"project_id" env:"STOREFRONT_FIRESTORE_PROJECT"`
	CredentialsFile  string `json:"credentials_file" yaml:"credentials_file" env:"STOREFRONT_FIRESTORE_CREDENTIALS"`
	KeysDocument     string `json:"keys_document" yaml:"keys_document" default:"data/keys"`
	ProductsField    string `json:"products_field" yaml:"products_field" default:"produtos"`
	OrdersCollection string `json:"orders_collection" yaml:"orders_collection" default:"orders"`
}

// CatalogConfig holds the default visibility filters
type CatalogConfig struct {
	HideStockless bool `json:"hide_stockless" yaml:"hide_stockless" env:"STOREFRONT_HIDE_STOCKLESS" default:"true"`
	HideMinZero   bool `json:"hide_min_zero" yaml:"hide_min_zero" env:"STOREFRONT_HIDE_MIN_ZERO" default:"false"`
}

// CheckoutConfig describes which optional checkout features are enabled
type CheckoutConfig struct {
	DeliveryFees    bool               `json:"delivery_fees" yaml:"delivery_fees" env:"STOREFRONT_DELIVERY_FEES" default:"true"`
	DiscountWarning bool               `json:"discount_warning" yaml:"discount_warning" default:"true"`
	OrderHistory    bool               `json:"order_history" yaml:"order_history" env:"STOREFRONT_ORDER_HISTORY" default:"false"`
	HistoryLimit    int                `json:"history_limit" yaml:"history_limit" default:"10"`
	// CartDiscount is an optional store-wide cart discount ("percent" or
	// "fixed"); it suppresses payment discounts while it applies.
	CartDiscount    CartDiscountConfig `json:"cart_discount" yaml:"cart_discount"`
}

// CartDiscountConfig describes the store-wide cart discount
type CartDiscountConfig struct {
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
}

// DistrictsConfig lists the district/fee resources (URLs or file paths)
type DistrictsConfig struct {
	Sources         []string      `json:"sources" yaml:"sources" env:"STOREFRONT_DISTRICT_SOURCES"`
	OverrideSources []string      `json:"override_sources" yaml:"override_sources" env:"STOREFRONT_DISTRICT_OVERRIDES"`
	FetchTimeout    time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" default:"5s"`
}

// QueueConfig controls offline queue flushing
type QueueConfig struct {
	FlushSchedule        string        `json:"flush_schedule" yaml:"flush_schedule" env:"STOREFRONT_FLUSH_SCHEDULE" default:"@every 1m"`
	ConnectivityInterval time.Duration `json:"connectivity_interval" yaml:"connectivity_interval" default:"15s"`
	PingTimeout          time.Duration `json:"ping_timeout" yaml:"ping_timeout" default:"3s"`
}

// TrackerConfig controls the order status tracker
type TrackerConfig struct {
	CancellationAlert bool `json:"cancellation_alert" yaml:"cancellation_alert" default:"true"`
	WatchHistory      bool `json:"watch_history" yaml:"watch_history" default:"false"`
}

// RetryConfig controls remote submission retries
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" env:"STOREFRONT_RETRY_ATTEMPTS" default:"2"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" default:"200ms"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" default:"2s"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" default:"2.0"`
}

// TelemetryConfig contains tracing and metrics settings
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"STOREFRONT_TELEMETRY_ENABLED" default:"false"`
	Exporter    string `json:"exporter" yaml:"exporter" env:"STOREFRONT_TELEMETRY_EXPORTER" default:"stdout"` // stdout, otlp
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" default:"storefront"`
	Insecure    bool   `json:"insecure" yaml:"insecure" default:"true"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"STOREFRONT_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"STOREFRONT_LOG_FORMAT" default:"json"`
	Output     string `json:"output" yaml:"output" default:"stdout"`
	FileEnable bool   `json:"file_enable" yaml:"file_enable" env:"STOREFRONT_LOG_FILE_ENABLE" default:"false"`
	Filename   string `json:"filename" yaml:"filename" env:"STOREFRONT_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" default:"64"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" default:"7"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" default:"30"`
}

// EventsConfig configures order event publishing
type EventsConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" env:"STOREFRONT_EVENTS_ENABLED" default:"false"`
	Brokers []string `json:"brokers" yaml:"brokers" env:"STOREFRONT_KAFKA_BROKERS"`
	Topic   string   `json:"topic" yaml:"topic" env:"STOREFRONT_KAFKA_TOPIC" default:"storefront.orders"`
}

// KeySyncConfig configures the periodic product-key uploader
type KeySyncConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled" env:"STOREFRONT_KEYSYNC_ENABLED" default:"false"`
	Keys     []string `json:"keys" yaml:"keys" env:"STOREFRONT_KEYSYNC_KEYS"`
	Schedule string   `json:"schedule" yaml:"schedule" default:"@every 1m"`
}

// Option configures Config. Options run after defaults and environment
// variables, so they win over both.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Name:     "storefront",
		Locale:   "pt-BR",
		Currency: "BRL",
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
		},
		Storage: StorageConfig{
			Provider:  "bolt",
			Path:      "storefront.db",
			Namespace: "storefront:device",
		},
		Remote: RemoteConfig{
			Provider:         "memory",
			Namespace:        "storefront",
			KeysDocument:     DefaultKeysDocument,
			ProductsField:    DefaultProductsField,
			OrdersCollection: DefaultOrdersCollection,
		},
		Catalog: CatalogConfig{
			HideStockless: true,
		},
		Checkout: CheckoutConfig{
			DeliveryFees:    true,
			DiscountWarning: true,
			HistoryLimit:    10,
		},
		Districts: DistrictsConfig{
			Sources:         []string{"bairros.json"},
			OverrideSources: []string{"bairros_frete.json"},
			FetchTimeout:    5 * time.Second,
		},
		Queue: QueueConfig{
			FlushSchedule:        "@every 1m",
			ConnectivityInterval: 15 * time.Second,
			PingTimeout:          3 * time.Second,
		},
		Tracker: TrackerConfig{
			CancellationAlert: true,
		},
		Retry: RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "stdout",
			ServiceName: "storefront",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  64,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		Events: EventsConfig{
			Topic: "storefront.orders",
		},
		KeySync: KeySyncConfig{
			Schedule: "@every 1m",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Storefront settings use the STOREFRONT_ prefix; REDIS_URL, PORT and
// OTEL_EXPORTER_OTLP_ENDPOINT are honoured as standard variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("STOREFRONT_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("STOREFRONT_LOCALE"); v != "" {
		c.Locale = v
	}
	if v := os.Getenv("STOREFRONT_CURRENCY"); v != "" {
		c.Currency = strings.ToUpper(v)
	}
	if v := os.Getenv("STOREFRONT_DOMAIN"); v != "" {
		c.Domain = v
	}

	// HTTP settings; STOREFRONT_PORT wins over PORT
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STOREFRONT_PORT %q: %w", v, ErrInvalidConfiguration)
		}
		c.HTTP.Port = port
	}
	if v := os.Getenv("STOREFRONT_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}
	if v := os.Getenv("STOREFRONT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTP.RateLimit = f
		}
	}
	if v := os.Getenv("STOREFRONT_CORS_ORIGINS"); v != "" {
		c.HTTP.CORSOrigins = parseStringList(v)
	}
	if v := os.Getenv("STOREFRONT_LOG_ALL_REQUESTS"); v != "" {
		c.HTTP.LogAllRequests = parseBool(v)
	}

	// Storage
	if v := os.Getenv("STOREFRONT_STORAGE_PROVIDER"); v != "" {
		c.Storage.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("STOREFRONT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("STOREFRONT_STORAGE_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("STOREFRONT_STORAGE_NAMESPACE"); v != "" {
		c.Storage.Namespace = v
	}

	// Remote document store
	if v := os.Getenv("STOREFRONT_REMOTE_PROVIDER"); v != "" {
		c.Remote.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Remote.RedisURL = v
	}
	if v := os.Getenv("STOREFRONT_REMOTE_NAMESPACE"); v != "" {
		c.Remote.Namespace = v
	}
	if v := os.Getenv("STOREFRONT_FIRESTORE_PROJECT"); v != "" {
		c.Remote.ProjectID = v
	}
	if v := os.Getenv("STOREFRONT_FIRESTORE_CREDENTIALS"); v != "" {
		c.Remote.CredentialsFile = v
	}

	// Catalog filters
	if v := os.Getenv("STOREFRONT_HIDE_STOCKLESS"); v != "" {
		c.Catalog.HideStockless = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_HIDE_MIN_ZERO"); v != "" {
		c.Catalog.HideMinZero = parseBool(v)
	}

	// Checkout
	if v := os.Getenv("STOREFRONT_DELIVERY_FEES"); v != "" {
		c.Checkout.DeliveryFees = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_ORDER_HISTORY"); v != "" {
		c.Checkout.OrderHistory = parseBool(v)
	}

	// Districts
	if v := os.Getenv("STOREFRONT_DISTRICT_SOURCES"); v != "" {
		c.Districts.Sources = parseStringList(v)
	}
	if v := os.Getenv("STOREFRONT_DISTRICT_OVERRIDES"); v != "" {
		c.Districts.OverrideSources = parseStringList(v)
	}

	// Queue
	if v := os.Getenv("STOREFRONT_FLUSH_SCHEDULE"); v != "" {
		c.Queue.FlushSchedule = v
	}

	// Retry
	if v := os.Getenv("STOREFRONT_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}

	// Telemetry
	if v := os.Getenv("STOREFRONT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv(EnvOTELEndpoint); v != "" {
		c.Telemetry.Endpoint = v
	}

	// Logging
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("STOREFRONT_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("STOREFRONT_LOG_FILE_ENABLE"); v != "" {
		c.Logging.FileEnable = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_LOG_FILE"); v != "" {
		c.Logging.Filename = v
	}

	// Events
	if v := os.Getenv("STOREFRONT_EVENTS_ENABLED"); v != "" {
		c.Events.Enabled = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = parseStringList(v)
	}
	if v := os.Getenv("STOREFRONT_KAFKA_TOPIC"); v != "" {
		c.Events.Topic = v
	}

	// Key sync
	if v := os.Getenv("STOREFRONT_KEYSYNC_ENABLED"); v != "" {
		c.KeySync.Enabled = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_KEYSYNC_KEYS"); v != "" {
		c.KeySync.Keys = parseStringList(v)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Values present in
// the file override whatever the config already holds.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path is operator supplied
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig().
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.HTTP.Port),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "storefront name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Storage.Provider {
	case "memory", "bolt":
	case "redis":
		if c.Storage.RedisURL == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis storage provider",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown storage provider: %s", c.Storage.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Remote.Provider {
	case "memory":
	case "redis":
		if c.Remote.RedisURL == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis remote provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case "firestore":
		if c.Remote.ProjectID == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "project id is required for the firestore remote provider",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown remote provider: %s", c.Remote.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Exporter == "otlp" && c.Telemetry.Endpoint == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required for the otlp exporter",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "kafka brokers are required when events are enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("retry attempts must be at least 1, got %d", c.Retry.MaxAttempts),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

// Helper functions

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the storefront name used in logs and order sources.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return &StoreError{
				Op:      "WithPort",
				Kind:    "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.HTTP.Port = port
		return nil
	}
}

// WithDomain sets the domain recorded in the order source block.
func WithDomain(domain string) Option {
	return func(c *Config) error {
		c.Domain = domain
		return nil
	}
}

// WithStorage selects the local storage provider.
func WithStorage(provider, location string) Option {
	return func(c *Config) error {
		c.Storage.Provider = provider
		switch provider {
		case "bolt":
			c.Storage.Path = location
		case "redis":
			c.Storage.RedisURL = location
		}
		return nil
	}
}

// WithRemoteProvider selects the remote document store. location is a Redis
// URL for "redis" and a project id for "firestore".
func WithRemoteProvider(provider, location string) Option {
	return func(c *Config) error {
		c.Remote.Provider = provider
		switch provider {
		case "redis":
			c.Remote.RedisURL = location
		case "firestore":
			c.Remote.ProjectID = location
		}
		return nil
	}
}

// WithCatalogFilters sets the default visibility filters.
func WithCatalogFilters(hideStockless, hideMinZero bool) Option {
	return func(c *Config) error {
		c.Catalog.HideStockless = hideStockless
		c.Catalog.HideMinZero = hideMinZero
		return nil
	}
}

// WithCheckoutFeatures toggles optional checkout features.
func WithCheckoutFeatures(deliveryFees, discountWarning, orderHistory bool) Option {
	return func(c *Config) error {
		c.Checkout.DeliveryFees = deliveryFees
		c.Checkout.DiscountWarning = discountWarning
		c.Checkout.OrderHistory = orderHistory
		return nil
	}
}

// WithDistrictSources sets the district resources.
func WithDistrictSources(primary, overrides []string) Option {
	return func(c *Config) error {
		c.Districts.Sources = primary
		c.Districts.OverrideSources = overrides
		return nil
	}
}

// WithFlushSchedule sets the cron spec for periodic queue flushes.
func WithFlushSchedule(spec string) Option {
	return func(c *Config) error {
		c.Queue.FlushSchedule = spec
		return nil
	}
}

// WithRetry configures submission retries.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(c *Config) error {
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.InitialInterval = initialInterval
		return nil
	}
}

// WithTelemetry enables telemetry with the given exporter.
func WithTelemetry(enabled bool, exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Exporter = exporter
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format (json or text).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithEvents enables Kafka order events.
func WithEvents(brokers []string, topic string) Option {
	return func(c *Config) error {
		c.Events.Enabled = len(brokers) > 0
		c.Events.Brokers = brokers
		if topic != "" {
			c.Events.Topic = topic
		}
		return nil
	}
}

// WithKeySync enables periodic upload of the listed local keys.
func WithKeySync(keys []string, schedule string) Option {
	return func(c *Config) error {
		c.KeySync.Enabled = len(keys) > 0
		c.KeySync.Keys = keys
		if schedule != "" {
			c.KeySync.Schedule = schedule
		}
		return nil
	}
}

// WithConfigFile loads a JSON or YAML file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the provided options.
// Defaults are applied first, then environment variables, then options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
