package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/money"
	"github.com/itsneelabh/storefront/telemetry"
)

// Meta describes where the current view came from.
type Meta struct {
	Online    bool      `json:"online"`
	Shown     int       `json:"shown"`
	Total     int       `json:"total"`
	Filters   Filters   `json:"filters"`
	UpdatedAt time.Time `json:"updatedAt"`
	Error     string    `json:"error,omitempty"`
}

// String renders the status line, e.g.
// "Conectado • 12 exibidos de 15 (sem estoque oculto)".
func (m Meta) String() string {
	if m.Error != "" {
		return m.Error
	}
	state := "Conectado"
	if !m.Online {
		state = "Sem conexão"
	}
	return fmt.Sprintf("%s • %d exibidos de %d (%s)", state, m.Shown, m.Total, m.Filters.Describe())
}

// Timestamp renders when the view was last refreshed.
func (m Meta) Timestamp() string {
	label := "Atualizado em"
	if !m.Online {
		label = "Último cache em"
	}
	if m.UpdatedAt.IsZero() {
		return label + " —"
	}
	return label + " " + m.UpdatedAt.Local().Format("02/01/2006 15:04:05")
}

// Service owns the catalog state: the decoded raw source, the active filters
// and the view derived from them. Remote updates and filter toggles both
// rebuild the view from the retained source.
type Service struct {
	mu       sync.RWMutex
	store    docstore.Store
	local    core.Memory
	logger   core.Logger
	collator *money.Collator
	tracer   trace.Tracer
	metrics  *telemetry.Recorder
	path     string
	field    string
	now      func() time.Time
	onUpdate func(*View, Meta)

	records []Record
	kind    SourceKind
	filters Filters
	view    *View
	meta    Meta
	sub     docstore.Subscription
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger core.Logger) ServiceOption {
	return func(s *Service) { s.logger = core.ComponentLogger(logger, "catalog") }
}

// WithCollator sets the comparison used for sorting
func WithCollator(c *money.Collator) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.collator = c
		}
	}
}

// WithDocument sets the remote document path and product field
func WithDocument(path, field string) ServiceOption {
	return func(s *Service) {
		s.path = path
		s.field = field
	}
}

// WithFilters sets the initial filters
func WithFilters(f Filters) ServiceOption {
	return func(s *Service) { s.filters = f }
}

// WithOnUpdate registers the render callback, invoked after every rebuild
func WithOnUpdate(fn func(*View, Meta)) ServiceOption {
	return func(s *Service) { s.onUpdate = fn }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithRecorder records rebuild metrics
func WithRecorder(r *telemetry.Recorder) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// NewService creates a catalog service reading store and caching into local
func NewService(store docstore.Store, local core.Memory, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		local:    local,
		logger:   &core.NoOpLogger{},
		collator: money.DefaultCollator(),
		tracer:   otel.Tracer("github.com/itsneelabh/storefront/catalog"),
		path:     core.DefaultKeysDocument,
		field:    core.DefaultProductsField,
		now:      time.Now,
		filters:  DefaultFilters(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.view = buildFromRecords(nil, KindEmpty, s.filters, s.collator)
	return s
}

// Load performs the first read. On failure the cached view is served and the
// returned error wraps core.ErrOffline; the service stays usable either way.
func (s *Service) Load(ctx context.Context) (Meta, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Load")
	defer span.End()

	doc, err := s.store.Get(ctx, s.path)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("Catalog load failed, serving local cache", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		meta := s.loadFromCache(ctx)
		return meta, fmt.Errorf("catalog load: %v: %w", err, core.ErrOffline)
	}
	meta := s.apply(ctx, doc)
	span.SetAttributes(
		attribute.Int("catalog.shown", meta.Shown),
		attribute.Int("catalog.total", meta.Total),
	)
	return meta, nil
}

// Watch subscribes to the product document. Listener errors keep the last
// state and mark the meta line.
func (s *Service) Watch(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx, s.path, func(doc docstore.Document) {
		s.apply(ctx, doc)
	}, func(err error) {
		s.logger.Error("Catalog listener error", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		s.mu.Lock()
		s.meta.Error = "Erro no listener — mantendo último estado"
		meta := s.meta
		view := s.view
		s.mu.Unlock()
		s.notify(view, meta)
	})
	if err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close stops watching
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// View returns the current view
func (s *Service) View() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Meta returns the current meta line data
func (s *Service) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Filters returns the active filters
func (s *Service) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Lookup finds a visible product by id
func (s *Service) Lookup(id string) (Product, bool) {
	return s.View().Lookup(id)
}

// SetFilters replaces the filters, rebuilds from the retained source and
// re-saves the cached view. The cache timestamp keeps marking the last
// remote read.
func (s *Service) SetFilters(ctx context.Context, f Filters) *View {
	s.mu.Lock()
	s.filters = f
	s.view = buildFromRecords(s.records, s.kind, f, s.collator)
	s.meta.Shown = s.view.Len()
	s.meta.Filters = f
	view, meta := s.view, s.meta
	s.mu.Unlock()

	s.saveView(ctx, view)
	s.notify(view, meta)
	return view
}

// ToggleStockFilter flips HideStockless
func (s *Service) ToggleStockFilter(ctx context.Context) *View {
	f := s.Filters()
	f.HideStockless = !f.HideStockless
	return s.SetFilters(ctx, f)
}

// ToggleMinFilter flips HideMinZero
func (s *Service) ToggleMinFilter(ctx context.Context) *View {
	f := s.Filters()
	f.HideMinZero = !f.HideMinZero
	return s.SetFilters(ctx, f)
}

func (s *Service) apply(ctx context.Context, doc docstore.Document) Meta {
	var raw interface{}
	if doc.Exists {
		raw = doc.Data[s.field]
	}
	decoded := Decode(raw)

	s.mu.Lock()
	s.records = decoded.Records
	s.kind = decoded.Kind
	s.view = buildFromRecords(s.records, s.kind, s.filters, s.collator)
	s.meta = Meta{
		Online:    true,
		Shown:     s.view.Len(),
		Total:     len(decoded.Records),
		Filters:   s.filters,
		UpdatedAt: s.now(),
	}
	view, meta := s.view, s.meta
	s.mu.Unlock()

	s.saveCache(ctx, view, meta.UpdatedAt)
	s.metrics.CatalogRebuilt(ctx, true)
	s.logger.Debug("Catalog rebuilt", map[string]interface{}{
		"source_kind": decoded.Kind.String(),
		"shown":       meta.Shown,
		"total":       meta.Total,
	})
	s.notify(view, meta)
	return meta
}

func (s *Service) saveCache(ctx context.Context, view *View, at time.Time) {
	if s.saveView(ctx, view) {
		_ = s.local.Set(ctx, core.KeyCatalogViewAt, at.UTC().Format(time.RFC3339), 0)
	}
}

func (s *Service) saveView(ctx context.Context, view *View) bool {
	encoded, err := MarshalRecords(view.Records())
	if err != nil {
		s.logger.Warn("Failed to encode catalog cache", map[string]interface{}{"error": err.Error()})
		return false
	}
	if err := s.local.Set(ctx, core.KeyCatalogView, encoded, 0); err != nil {
		s.logger.Warn("Failed to write catalog cache", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

func (s *Service) loadFromCache(ctx context.Context) Meta {
	var records []Record
	if cached, err := s.local.Get(ctx, core.KeyCatalogView); err == nil && cached != "" {
		records = Decode(cached).Records
	}
	var cachedAt time.Time
	if at, err := s.local.Get(ctx, core.KeyCatalogViewAt); err == nil && at != "" {
		cachedAt, _ = time.Parse(time.RFC3339, at)
	}

	s.mu.Lock()
	s.records = records
	s.kind = KindArray
	s.view = buildFromRecords(records, KindArray, s.filters, s.collator)
	s.meta = Meta{
		Online:    false,
		Shown:     s.view.Len(),
		Total:     len(records),
		Filters:   s.filters,
		UpdatedAt: cachedAt,
	}
	view, meta := s.view, s.meta
	s.mu.Unlock()

	s.metrics.CatalogRebuilt(ctx, false)
	s.notify(view, meta)
	return meta
}

func (s *Service) notify(view *View, meta Meta) {
	if s.onUpdate != nil {
		s.onUpdate(view, meta)
	}
}
