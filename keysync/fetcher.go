// Package keysync moves named keys between device storage and the shared
// keys document (data/keys by default). The Fetcher reads and watches
// fields of that document; the Uploader pushes local keys into it.
package keysync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
)

// Fetcher reads fields of the keys document.
type Fetcher struct {
	store  docstore.Store
	path   string
	logger core.Logger
	tracer trace.Tracer
}

// Option configures a Fetcher or an Uploader
type Option func(*settings)

type settings struct {
	path   string
	logger core.Logger
}

// WithDocument overrides the keys document path
func WithDocument(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.path = path
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(s *settings) { s.logger = core.ComponentLogger(logger, "keysync") }
}

func apply(opts []Option) settings {
	s := settings{path: core.DefaultKeysDocument, logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewFetcher creates a fetcher
func NewFetcher(store docstore.Store, opts ...Option) *Fetcher {
	s := apply(opts)
	return &Fetcher{
		store:  store,
		path:   s.path,
		logger: s.logger,
		tracer: otel.Tracer("github.com/itsneelabh/storefront/keysync"),
	}
}

// GetKey reads field and normalizes it into records. A missing document or
// field yields an empty slice.
func (f *Fetcher) GetKey(ctx context.Context, field string) ([]catalog.Record, error) {
	ctx, span := f.tracer.Start(ctx, "keysync.GetKey")
	defer span.End()
	span.SetAttributes(attribute.String("keysync.field", field))

	doc, err := f.store.Get(ctx, f.path)
	if err != nil {
		span.RecordError(err)
		return nil, &core.StoreError{Op: "keysync.GetKey", Kind: "docstore", ID: field, Err: err}
	}
	var raw interface{}
	if doc.Exists {
		raw = doc.Data[field]
	}
	records := catalog.Normalize(raw)
	if records == nil {
		records = []catalog.Record{}
	}
	span.SetAttributes(attribute.Int("keysync.count", len(records)))
	return records, nil
}

// WatchKey calls onChange with the normalized field and the whole document
// data on every snapshot of the keys document.
func (f *Fetcher) WatchKey(ctx context.Context, field string, onChange func([]catalog.Record, map[string]interface{}), onError func(error)) (docstore.Subscription, error) {
	return f.store.Subscribe(ctx, f.path, func(doc docstore.Document) {
		data := map[string]interface{}{}
		if doc.Exists && doc.Data != nil {
			data = doc.Data
		}
		records := catalog.Normalize(data[field])
		if records == nil {
			records = []catalog.Record{}
		}
		onChange(records, data)
	}, func(err error) {
		f.logger.Error("Keys listener failed", map[string]interface{}{
			"field": field,
			"error": err.Error(),
		})
		if onError != nil {
			onError(err)
		}
	})
}

// DownloadKey writes field as indented JSON to w and returns the number of
// records written.
func (f *Fetcher) DownloadKey(ctx context.Context, field string, w io.Writer) (int, error) {
	records, err := f.GetKey(ctx, field)
	if err != nil {
		return 0, err
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", field, err)
	}
	if _, err := w.Write(out); err != nil {
		return 0, fmt.Errorf("write %s: %w", field, err)
	}
	return len(records), nil
}

// ActiveProducts returns the active records of the products field.
func (f *Fetcher) ActiveProducts(ctx context.Context) ([]catalog.Record, error) {
	records, err := f.GetKey(ctx, core.DefaultProductsField)
	if err != nil {
		return nil, err
	}
	return ActiveOnly(records), nil
}

// ActiveOnly keeps the records StrictActive accepts.
func ActiveOnly(records []catalog.Record) []catalog.Record {
	out := make([]catalog.Record, 0, len(records))
	for _, r := range records {
		if StrictActive(r) {
			out = append(out, r)
		}
	}
	return out
}

// StrictActive requires a decisive ativo flag or status. Unlike the catalog
// rule, a record with neither is inactive.
func StrictActive(r catalog.Record) bool {
	if r == nil {
		return false
	}
	if v, ok := r["ativo"]; ok {
		switch x := v.(type) {
		case nil:
		case bool:
			return x
		case string:
			switch x {
			case "true", "1":
				return true
			case "false", "0":
				return false
			}
		default:
			if n, err := cast.ToFloat64E(x); err == nil {
				if n == 1 {
					return true
				}
				if n == 0 {
					return false
				}
			}
		}
	}
	if v, ok := r["status"]; ok {
		switch strings.ToLower(cast.ToString(v)) {
		case "ativo", "active", "on":
			return true
		case "inativo", "inactive", "off":
			return false
		}
	}
	return false
}
