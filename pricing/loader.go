package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/money"
)

// DistrictLoader builds the fee table from a primary resource and an
// optional override resource. Each is a list of candidate locations (http(s)
// URLs or file paths); the first that loads wins.
type DistrictLoader struct {
	client   *http.Client
	logger   core.Logger
	collator *money.Collator
	maxBytes int64
}

// LoaderOption configures a DistrictLoader
type LoaderOption func(*DistrictLoader)

// WithHTTPClient replaces the instrumented default client
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *DistrictLoader) { l.client = c }
}

// WithLoaderLogger sets the logger
func WithLoaderLogger(logger core.Logger) LoaderOption {
	return func(l *DistrictLoader) { l.logger = core.ComponentLogger(logger, "districts") }
}

// WithCollator sets the comparison used to sort names
func WithCollator(c *money.Collator) LoaderOption {
	return func(l *DistrictLoader) { l.collator = c }
}

// NewDistrictLoader creates a loader with an otelhttp-instrumented client.
func NewDistrictLoader(timeout time.Duration, opts ...LoaderOption) *DistrictLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	l := &DistrictLoader{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:   &core.NoOpLogger{},
		collator: money.DefaultCollator(),
		maxBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the merged, deduplicated and sorted table. Missing resources
// yield an empty table rather than an error.
func (l *DistrictLoader) Load(ctx context.Context, sources, overrides []string) *FeeTable {
	table := NewFeeTable()
	if data, from, ok := l.first(ctx, sources); ok {
		parsed, err := ParseDistricts(data)
		if err != nil {
			l.logger.Warn("Ignoring malformed district list", map[string]interface{}{"source": from, "error": err.Error()})
		} else {
			table = parsed
		}
	}
	if data, from, ok := l.first(ctx, overrides); ok {
		parsed, err := ParseFeeOverrides(data)
		if err != nil {
			l.logger.Warn("Ignoring malformed fee overrides", map[string]interface{}{"source": from, "error": err.Error()})
		} else {
			table.Merge(parsed)
		}
	}
	table.Sorted(l.collator)
	l.logger.Info("District fee table loaded", map[string]interface{}{
		"districts": len(table.names),
		"fees":      len(table.fees),
	})
	return table
}

func (l *DistrictLoader) first(ctx context.Context, locations []string) ([]byte, string, bool) {
	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		data, err := l.read(ctx, loc)
		if err != nil {
			l.logger.Debug("District source unavailable", map[string]interface{}{"source": loc, "error": err.Error()})
			continue
		}
		return data, loc, true
	}
	return nil, "", false
}

func (l *DistrictLoader) read(ctx context.Context, loc string) ([]byte, error) {
	if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") {
		return os.ReadFile(loc)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
}
