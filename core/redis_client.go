// Package core provides Redis client abstractions for the storefront.
// This file implements a small Redis client wrapper with database isolation,
// namespacing and connection management, plus a Memory implementation on top of it.
//
// Purpose:
// - Provides unified Redis access for the document store and local storage
// - Implements database isolation between remote documents and device state
// - Supports key namespacing so several storefronts can share one server
//
// Database Allocation:
// - DB 0: remote document store (products, payment options, orders)
// - DB 1: device-local storage (cart, queue, prefill, ack flags)
//
// Usage:
//
//	client, err := NewRedisClient(RedisClientOptions{
//	    RedisURL:  "redis://localhost:6379",
//	    DB:        RedisDBLocalStorage,
//	    Namespace: "storefront:device-1",
//	})
//	store := NewRedisMemory(client)
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient provides a simplified Redis interface with DB isolation
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client
type RedisClientOptions struct {
	RedisURL  string
	DB        int    // Redis DB number for isolation (0-15)
	Namespace string // Key namespace for organization
	Logger    Logger // Optional logger
}

// NewRedisClient creates a new Redis client with specified options and verifies
// the connection with a ping.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	if opts.RedisURL == "" {
		logger.Error("Failed to initialize Redis client", map[string]interface{}{
			"error":      "Redis URL is required",
			"error_type": "ErrInvalidConfiguration",
		})
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis URL", map[string]interface{}{
			"error":     err.Error(),
			"redis_url": opts.RedisURL,
		})
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", map[string]interface{}{
			"error":     err.Error(),
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
		})
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis DB %d: %w", opts.DB, ErrConnectionFailed)
	}

	logger.Info("Redis client connected", map[string]interface{}{
		"db":        opts.DB,
		"db_name":   GetRedisDBName(opts.DB),
		"namespace": opts.Namespace,
	})

	return &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    logger,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	err := r.client.Close()
	if err != nil {
		r.logger.Error("Failed to close Redis client", map[string]interface{}{
			"error":     err.Error(),
			"db":        r.dbID,
			"namespace": r.namespace,
		})
	}
	return err
}

// Client exposes the underlying go-redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// GetDB returns the DB number being used
func (r *RedisClient) GetDB() int {
	return r.dbID
}

// GetNamespace returns the namespace being used
func (r *RedisClient) GetNamespace() string {
	return r.namespace
}

// FormatKey formats a key with the namespace
func (r *RedisClient) FormatKey(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s:%s", r.namespace, key)
	}
	return key
}

// Ping checks the connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisMemory implements Memory on a namespaced RedisClient. It lets a kiosk
// or server-side session keep its device state outside the process.
type RedisMemory struct {
	client *RedisClient
}

// NewRedisMemory wraps client as a Memory
func NewRedisMemory(client *RedisClient) *RedisMemory {
	return &RedisMemory{client: client}
}

// Get returns "" with no error for missing keys, like the in-memory store
func (m *RedisMemory) Get(ctx context.Context, key string) (string, error) {
	val, err := m.client.client.Get(ctx, m.client.FormatKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, ErrConnectionFailed)
	}
	return val, nil
}

// Set stores value; ttl 0 keeps the key forever
func (m *RedisMemory) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := m.client.client.Set(ctx, m.client.FormatKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, ErrConnectionFailed)
	}
	return nil
}

// Delete removes key
func (m *RedisMemory) Delete(ctx context.Context, key string) error {
	if err := m.client.client.Del(ctx, m.client.FormatKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, ErrConnectionFailed)
	}
	return nil
}

// Exists reports whether key is present
func (m *RedisMemory) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.client.client.Exists(ctx, m.client.FormatKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, ErrConnectionFailed)
	}
	return n > 0, nil
}
