// Package docstore is the storefront's view of the remote document store: one
// document holds product and payment data, a collection holds one document per
// order. The store is opaque; this package only fixes the get / set / create /
// subscribe contract and ships Memory, Redis and Firestore implementations.
package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/storefront/core"
)

type sentinel int

// ServerTimestamp, used as a field value, asks the store to write its own
// clock at commit time.
const ServerTimestamp sentinel = 1

// Document is one snapshot of a remote document.
type Document struct {
	Path   string
	Exists bool
	Data   map[string]interface{}
	// HasPendingWrites is true when the snapshot reflects a write made by this
	// client that the store has not yet confirmed to other clients.
	HasPendingWrites bool
}

// Field returns the value at a dotted path such as "clientNotify.receivedAt".
func (d Document) Field(path string) (interface{}, bool) {
	return Lookup(d.Data, path)
}

// Lookup walks nested maps along a dotted path.
func Lookup(data map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetOption tunes Set.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge deep-merges the written fields into the existing document instead of
// replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Subscription is a live listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Store is the remote document store contract.
type Store interface {
	// Get returns the document; a missing document is Exists=false, not an error.
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, data map[string]interface{}, opts ...SetOption) error
	// Create writes a new document and fails with core.ErrAlreadyExists if
	// one is already present at path.
	Create(ctx context.Context, path string, data map[string]interface{}) error
	// Subscribe delivers the current snapshot and every later change, in
	// store order, until the subscription is cancelled or ctx ends.
	Subscribe(ctx context.Context, path string, onChange func(Document), onError func(error)) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewID returns a random document id.
func NewID() string {
	return uuid.NewString()
}

// Join builds a document path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidateDocPath checks that path addresses a document: an even, non-zero
// number of non-empty segments.
func ValidateDocPath(path string) error {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return fmt.Errorf("document path %q must have an even number of segments: %w", path, core.ErrInvalidConfiguration)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("document path %q has an empty segment: %w", path, core.ErrInvalidConfiguration)
		}
	}
	return nil
}

// DeepMerge merges src into dst recursively and returns dst. Nested maps merge
// field by field; any other value replaces what was there.
func DeepMerge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			dst[k] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = DeepCopy(v)
	}
	return dst
}

// DeepCopy copies JSON-shaped values so stored documents never alias caller data.
func DeepCopy(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = DeepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		return v
	}
}

// CopyMap is DeepCopy for a document body.
func CopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return DeepCopy(m).(map[string]interface{})
}

// ResolveTimestamps replaces every ServerTimestamp sentinel with resolve(now).
func ResolveTimestamps(data map[string]interface{}, resolve func() interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch x := v.(type) {
		case sentinel:
			if x == ServerTimestamp {
				out[k] = resolve()
				continue
			}
			out[k] = v
		case map[string]interface{}:
			out[k] = ResolveTimestamps(x, resolve)
		default:
			out[k] = DeepCopy(v)
		}
	}
	return out
}

// UTCNow is the default server clock.
func UTCNow() time.Time {
	return time.Now().UTC()
}
