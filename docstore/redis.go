package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/storefront/core"
)

const maxMergeAttempts = 5

// RedisStore keeps each document as a JSON string and announces every write
// on a per-document pub/sub channel tagged with the writing client's id.
// Server timestamps are written as RFC3339Nano strings.
type RedisStore struct {
	client    *redis.Client
	namespace string
	clientID  string
	logger    core.Logger
	clock     func() time.Time
}

// RedisStoreOption configures a RedisStore
type RedisStoreOption func(*RedisStore)

// WithNamespace prefixes every key and channel
func WithNamespace(ns string) RedisStoreOption {
	return func(s *RedisStore) { s.namespace = ns }
}

// WithClientID fixes the id used to recognise this client's own writes
func WithClientID(id string) RedisStoreOption {
	return func(s *RedisStore) { s.clientID = id }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(clock func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.clock = clock }
}

type changeEvent struct {
	Origin string `json:"origin"`
	Path   string `json:"path"`
}

// NewRedisStore wraps a go-redis client
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		namespace: "storefront",
		clientID:  NewID(),
		logger:    &core.NoOpLogger{},
		clock:     UTCNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientID returns the writer id stamped on change events
func (s *RedisStore) ClientID() string {
	return s.clientID
}

func (s *RedisStore) docKey(path string) string {
	return s.namespace + ":doc:" + path
}

func (s *RedisStore) channel(path string) string {
	return s.namespace + ":events:" + path
}

func decodeDocument(raw string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// Get reads a document
func (s *RedisStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return Document{}, err
	}
	raw, err := s.client.Get(ctx, s.docKey(path)).Result()
	if errors.Is(err, redis.Nil) {
		return Document{Path: path}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("redis get %s (%v): %w", path, err, core.ErrConnectionFailed)
	}
	data, err := decodeDocument(raw)
	if err != nil {
		s.logger.Warn("Corrupt document in Redis, treating as missing", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return Document{Path: path}, nil
	}
	return Document{Path: path, Exists: true, Data: data}, nil
}

func (s *RedisStore) resolve(data map[string]interface{}) map[string]interface{} {
	now := s.clock().UTC().Format(time.RFC3339Nano)
	return ResolveTimestamps(data, func() interface{} { return now })
}

// Set writes a document; with Merge it runs an optimistic WATCH/MULTI merge.
func (s *RedisStore) Set(ctx context.Context, path string, data map[string]interface{}, opts ...SetOption) error {
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	o := applySetOptions(opts)
	key := s.docKey(path)
	resolved := s.resolve(data)

	if !o.merge {
		body, err := json.Marshal(resolved)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := s.client.Set(ctx, key, body, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s (%v): %w", path, err, core.ErrConnectionFailed)
		}
		s.publish(ctx, path)
		return nil
	}

	txf := func(tx *redis.Tx) error {
		current := map[string]interface{}{}
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if decoded, derr := decodeDocument(raw); derr == nil {
				current = decoded
			}
		}
		body, err := json.Marshal(DeepMerge(current, resolved))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, 0)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis merge %s (%v): %w", path, err, core.ErrConnectionFailed)
	}
	s.publish(ctx, path)
	return nil
}

// Create writes a document only if the key is absent (SETNX)
func (s *RedisStore) Create(ctx context.Context, path string, data map[string]interface{}) error {
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	body, err := json.Marshal(s.resolve(data))
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	ok, err := s.client.SetNX(ctx, s.docKey(path), body, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create %s (%v): %w", path, err, core.ErrConnectionFailed)
	}
	if !ok {
		return fmt.Errorf("create %s: %w", path, core.ErrAlreadyExists)
	}
	s.publish(ctx, path)
	return nil
}

func (s *RedisStore) publish(ctx context.Context, path string) {
	payload, _ := json.Marshal(changeEvent{Origin: s.clientID, Path: path})
	if err := s.client.Publish(ctx, s.channel(path), payload).Err(); err != nil {
		s.logger.Warn("Failed to publish document change", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

// Subscribe listens on the document's channel. The current snapshot and each
// change are read back and delivered from a single goroutine, so callbacks
// never run concurrently for one subscription.
func (s *RedisStore) Subscribe(ctx context.Context, path string, onChange func(Document), onError func(error)) (Subscription, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}

	ps := s.client.Subscribe(ctx, s.channel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s (%v): %w", path, err, core.ErrConnectionFailed)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{cancel: cancel, ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()

	go func() {
		defer close(sub.done)
		s.emit(subCtx, path, "", onChange, onError)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("Ignoring malformed change event", map[string]interface{}{
						"path":  path,
						"error": err.Error(),
					})
					continue
				}
				s.emit(subCtx, path, ev.Origin, onChange, onError)
			}
		}
	}()

	return sub, nil
}

func (s *RedisStore) emit(ctx context.Context, path, origin string, onChange func(Document), onError func(error)) {
	doc, err := s.Get(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			onError(err)
		}
		return
	}
	doc.HasPendingWrites = origin != "" && origin == s.clientID
	onChange(doc)
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping (%v): %w", err, core.ErrOffline)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	cancel context.CancelFunc
	ps     *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops delivery. It does not wait for an in-flight callback, so
// it is safe to call from inside one.
func (r *redisSubscription) Unsubscribe() {
	r.once.Do(func() {
		r.cancel()
		_ = r.ps.Close()
	})
}

// Done is closed once the delivery goroutine has exited
func (r *redisSubscription) Done() <-chan struct{} {
	return r.done
}
