package keysync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
)

// ReasonEmptyOverwrite marks an upload skipped to keep non-empty remote data.
const ReasonEmptyOverwrite = "empty_overwrite_prevented"

// UploadOptions tunes one upload.
type UploadOptions struct {
	// Field is the target field, defaulting to the local key name.
	Field string
	// AllowEmpty lets an empty local value replace non-empty remote data.
	// By default such uploads are skipped.
	AllowEmpty bool
	// Transform, when set, rewrites the parsed local value before upload.
	Transform func(interface{}) interface{}
}

// UploadResult reports one upload.
type UploadResult struct {
	Key     string `json:"key"`
	Field   string `json:"field"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Uploader pushes device-local keys into the keys document.
type Uploader struct {
	store  docstore.Store
	local  core.Memory
	path   string
	logger core.Logger
	tracer trace.Tracer
}

// NewUploader creates an uploader
func NewUploader(store docstore.Store, local core.Memory, opts ...Option) (*Uploader, error) {
	if store == nil || local == nil {
		return nil, fmt.Errorf("keysync: store and local storage: %w", core.ErrMissingConfiguration)
	}
	s := apply(opts)
	return &Uploader{
		store:  store,
		local:  local,
		path:   s.path,
		logger: s.logger,
		tracer: otel.Tracer("github.com/itsneelabh/storefront/keysync"),
	}, nil
}

// UploadKey merges the local value of key into the keys document. The local
// value is sent as parsed JSON when it parses, as a string otherwise, and as
// null when the key is absent.
func (u *Uploader) UploadKey(ctx context.Context, key string, opts UploadOptions) (UploadResult, error) {
	field := opts.Field
	if field == "" {
		field = key
	}
	ctx, span := u.tracer.Start(ctx, "keysync.UploadKey")
	defer span.End()
	span.SetAttributes(attribute.String("keysync.field", field))

	value, err := u.localValue(ctx, key)
	if err != nil {
		span.RecordError(err)
		return UploadResult{Key: key, Field: field}, err
	}
	if opts.Transform != nil {
		value = opts.Transform(value)
	}

	if !opts.AllowEmpty && IsEmptyValue(value) {
		doc, err := u.store.Get(ctx, u.path)
		if err != nil {
			span.RecordError(err)
			return UploadResult{Key: key, Field: field}, &core.StoreError{Op: "keysync.UploadKey", Kind: "docstore", ID: field, Err: err}
		}
		if existing := doc.Data[field]; doc.Exists && !IsEmptyValue(existing) {
			u.logger.Warn("Upload skipped: empty value would overwrite remote data", map[string]interface{}{
				"field": field,
				"path":  u.path,
			})
			return UploadResult{Key: key, Field: field, Skipped: true, Reason: ReasonEmptyOverwrite}, nil
		}
	}

	if err := u.store.Set(ctx, u.path, map[string]interface{}{field: value}, docstore.Merge()); err != nil {
		span.RecordError(err)
		return UploadResult{Key: key, Field: field}, &core.StoreError{Op: "keysync.UploadKey", Kind: "docstore", ID: field, Err: err}
	}
	u.logger.Info("Key uploaded", map[string]interface{}{
		"field": field,
		"path":  u.path,
	})
	return UploadResult{Key: key, Field: field, OK: true}, nil
}

// UploadMany uploads keys in order with the same options. It stops at the
// first error and returns the results gathered so far.
func (u *Uploader) UploadMany(ctx context.Context, keys []string, opts UploadOptions) ([]UploadResult, error) {
	results := make([]UploadResult, 0, len(keys))
	for _, k := range keys {
		o := opts
		if len(keys) > 1 {
			// a target field only applies to a single key
			o.Field = ""
		}
		res, err := u.UploadKey(ctx, k, o)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (u *Uploader) localValue(ctx context.Context, key string) (interface{}, error) {
	ok, err := u.local.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	raw, err := u.local.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw, nil
	}
	return parsed, nil
}

// IsEmptyValue reports nil, blank strings, and empty slices or maps.
func IsEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	default:
		return false
	}
}
