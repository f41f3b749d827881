// Package tracker follows remote order documents and renders their status
// timeline. While watching, it writes a client acknowledgment for the
// received, preparing and ready statuses, at most once per status per device.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/telemetry"
)

// Messages shown when there is nothing to track or tracking fails.
const (
	MsgNoOrder     = "Sem pedido para acompanhar. Abra com ?id=... ou finalize um pedido."
	MsgWatchFailed = "Não foi possível acompanhar seu pedido agora."
)

// ackFields maps acknowledged statuses to their field under clientNotify.
var ackFields = map[order.Status]string{
	order.StatusReceived:  "receivedAt",
	order.StatusPreparing: "preparingAt",
	order.StatusReady:     "readyAt",
}

// Ack skip reasons, as recorded in metrics.
const (
	skipPendingWrites = "pending_writes"
	skipAcknowledged  = "already_acknowledged"
	skipLocalFlag     = "local_flag"
	skipStaleStatus   = "stale_status"
)

// ResolveOrderID picks the order to track: the query value when given,
// otherwise the last order placed on this device.
func ResolveOrderID(ctx context.Context, local core.Memory, query string) (string, error) {
	if id := strings.TrimSpace(query); id != "" {
		return id, nil
	}
	if local != nil {
		id, err := local.Get(ctx, core.KeyLastOrderID)
		if err == nil && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), nil
		}
	}
	return "", fmt.Errorf("%s: %w", MsgNoOrder, core.ErrNotFound)
}

// Alerter is told when a watched order gets canceled.
type Alerter interface {
	OrderCanceled(ctx context.Context, v View)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(ctx context.Context, v View)

// OrderCanceled calls f.
func (f AlertFunc) OrderCanceled(ctx context.Context, v View) {
	f(ctx, v)
}

// Tracker watches order documents.
type Tracker struct {
	store      docstore.Store
	local      core.Memory
	collection string
	logger     core.Logger
	metrics    *telemetry.Recorder
	alerter    Alerter
	now        func() time.Time

	mu      sync.Mutex
	alerted map[string]bool
	latest  map[string]order.Status
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(t *Tracker) { t.logger = core.ComponentLogger(logger, "tracker") }
}

// WithRecorder records acknowledgment metrics
func WithRecorder(r *telemetry.Recorder) Option {
	return func(t *Tracker) { t.metrics = r }
}

// WithCollection sets the orders collection
func WithCollection(name string) Option {
	return func(t *Tracker) {
		if name != "" {
			t.collection = name
		}
	}
}

// WithCancellationAlert invokes a once per order when it becomes canceled
func WithCancellationAlert(a Alerter) Option {
	return func(t *Tracker) { t.alerter = a }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker
func New(store docstore.Store, local core.Memory, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		local:      local,
		collection: core.DefaultOrdersCollection,
		logger:     &core.NoOpLogger{},
		now:        time.Now,
		alerted:    make(map[string]bool),
		latest:     make(map[string]order.Status),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get reads the order once and derives its view.
func (t *Tracker) Get(ctx context.Context, id string) (View, error) {
	doc, err := t.store.Get(ctx, docstore.Join(t.collection, id))
	if err != nil {
		return View{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return Derive(id, doc, t.now()), nil
}

// Watch subscribes to order id. onUpdate receives every snapshot of an
// existing document; onError, which may be nil, receives listener failures.
// Unsubscribe the returned handle to stop.
func (t *Tracker) Watch(ctx context.Context, id string, onUpdate func(View), onError func(error)) (docstore.Subscription, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: %w", MsgNoOrder, core.ErrNotFound)
	}
	path := docstore.Join(t.collection, id)
	return t.store.Subscribe(ctx, path, func(doc docstore.Document) {
		if !doc.Exists {
			return
		}
		v := Derive(id, doc, t.now())
		if onUpdate != nil {
			onUpdate(v)
		}
		if t.advance(id, v.Status) {
			t.acknowledge(ctx, id, doc)
		} else {
			t.metrics.AckSkipped(ctx, string(v.Status), skipStaleStatus)
			t.logger.Debug("Order status cannot follow the last one seen, no ack", map[string]interface{}{
				"order_id": id,
				"status":   string(v.Status),
			})
		}
		t.alertIfCanceled(ctx, v)
	}, func(err error) {
		t.logger.Error("Order listener failed", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
		if onError != nil {
			onError(fmt.Errorf("%s: %w", MsgWatchFailed, err))
		}
	})
}

// WatchHistory watches every order in the device history, plus the last
// order when the history does not list it. The returned handle stops them all.
func (t *Tracker) WatchHistory(ctx context.Context, onUpdate func(View), onError func(error)) (docstore.Subscription, error) {
	ids := order.History(ctx, t.local)
	if last, err := ResolveOrderID(ctx, t.local, ""); err == nil && !contains(ids, last) {
		ids = append([]string{last}, ids...)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: %w", MsgNoOrder, core.ErrNotFound)
	}

	group := &subscriptionGroup{}
	for _, id := range ids {
		sub, err := t.Watch(ctx, id, onUpdate, onError)
		if err != nil {
			group.Unsubscribe()
			return nil, err
		}
		group.subs = append(group.subs, sub)
	}
	return group, nil
}

// acknowledge writes clientNotify.<status>At once per status. It is skipped
// when the snapshot carries this client's own unconfirmed write, when the
// document is already acknowledged, or when this device already did it.
// Failures are logged and otherwise ignored.
func (t *Tracker) acknowledge(ctx context.Context, id string, doc docstore.Document) {
	status, _ := doc.Data["status"].(string)
	field, ok := ackFields[order.Status(status)]
	if !ok {
		return
	}
	if doc.HasPendingWrites {
		t.metrics.AckSkipped(ctx, status, skipPendingWrites)
		return
	}
	if v, ok := doc.Field("clientNotify." + field); ok && v != nil {
		t.metrics.AckSkipped(ctx, status, skipAcknowledged)
		return
	}

	flag := AckKey(id, order.Status(status))
	if t.local != nil {
		if done, err := t.local.Exists(ctx, flag); err == nil && done {
			t.metrics.AckSkipped(ctx, status, skipLocalFlag)
			return
		}
		// the flag goes first so a re-entrant snapshot cannot ack twice
		if err := t.local.Set(ctx, flag, t.now().UTC().Format(time.RFC3339Nano), 0); err != nil {
			t.logger.Warn("Failed to store ack flag", map[string]interface{}{
				"order_id": id,
				"status":   status,
				"error":    err.Error(),
			})
		}
	}

	err := t.store.Set(ctx, doc.Path, map[string]interface{}{
		"clientNotify": map[string]interface{}{field: docstore.ServerTimestamp},
	}, docstore.Merge())
	if err != nil {
		if t.local != nil {
			_ = t.local.Delete(ctx, flag)
		}
		level := t.logger.Warn
		if errors.Is(err, context.Canceled) {
			level = t.logger.Debug
		}
		level("Order ack failed (ignored)", map[string]interface{}{
			"order_id": id,
			"status":   status,
			"error":    err.Error(),
		})
		return
	}
	t.metrics.AckWritten(ctx, status)
	t.logger.Debug("Order ack written", map[string]interface{}{
		"order_id": id,
		"status":   status,
	})
}

// advance records status as the latest one seen for id. It reports false
// when the order cannot reach status from there, such as a received snapshot
// arriving after the order was canceled or done. Unknown statuses pass
// through without being recorded.
func (t *Tracker) advance(id string, status order.Status) bool {
	if !status.Known() {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.latest[id]
	if seen && last != status && !order.CanTransition(last, status) {
		return false
	}
	t.latest[id] = status
	return true
}

func (t *Tracker) alertIfCanceled(ctx context.Context, v View) {
	if t.alerter == nil || v.Status != order.StatusCanceled {
		return
	}
	t.mu.Lock()
	seen := t.alerted[v.OrderID]
	t.alerted[v.OrderID] = true
	t.mu.Unlock()
	if !seen {
		t.alerter.OrderCanceled(ctx, v)
	}
}

// AckKey is the local flag recording that this device acknowledged status.
func AckKey(id string, status order.Status) string {
	return core.KeyOrderAckPrefix + id + ":" + string(status)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

type subscriptionGroup struct {
	subs []docstore.Subscription
}

func (g *subscriptionGroup) Unsubscribe() {
	for _, s := range g.subs {
		s.Unsubscribe()
	}
}
