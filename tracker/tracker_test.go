package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/order"
)

var serverNow = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

type env struct {
	backend *docstore.MemoryBackend
	pos     *docstore.MemoryStore
	local   *core.MemoryStore
	tracker *Tracker

	mu      sync.Mutex
	views   []View
	ackSets int
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	e := &env{
		backend: docstore.NewMemoryBackend(),
		local:   core.NewMemoryStore(),
	}
	e.backend.SetClock(func() time.Time { return serverNow })
	e.pos = e.backend.Client("pos")
	e.tracker = New(e.backend.Client("device"), e.local, opts...)
	return e
}

func (e *env) onUpdate(v View) {
	e.mu.Lock()
	e.views = append(e.views, v)
	e.mu.Unlock()
}

func (e *env) last(t *testing.T) View {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.views)
	return e.views[len(e.views)-1]
}

// countSets counts every set reaching the backend, from either client.
func (e *env) countSets() {
	e.backend.SetFailureHook(func(op, path string) error {
		if op == "set" {
			e.ackSets++
		}
		return nil
	})
}

func (e *env) placeOrder(t *testing.T, id string) {
	t.Helper()
	o := order.Order{
		IdempotencyKey:  id,
		Status:          order.StatusNew,
		CreatedAtClient: 1735830000000,
		Items:           []order.Item{{ID: "p1", Name: "Arroz", UnitPrice: 25, Qty: 2, LineTotal: 50}},
		Totals:          order.Totals{Subtotal: 50, Total: 57.5},
		Delivery:        &order.Delivery{District: "Centro", Fee: 7.5},
	}
	doc, err := o.ToDocument()
	require.NoError(t, err)
	require.NoError(t, e.pos.Create(context.Background(), "orders/"+id, doc))
}

func (e *env) setStatus(t *testing.T, id string, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, e.pos.Set(context.Background(), "orders/"+id, fields, docstore.Merge()))
}

func TestResolveOrderID(t *testing.T) {
	ctx := context.Background()
	local := core.NewMemoryStore()

	_, err := ResolveOrderID(ctx, local, "")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, local.Set(ctx, core.KeyLastOrderID, "last-1", 0))
	id, err := ResolveOrderID(ctx, local, "  ")
	require.NoError(t, err)
	assert.Equal(t, "last-1", id)

	id, err = ResolveOrderID(ctx, local, " from-query ")
	require.NoError(t, err)
	assert.Equal(t, "from-query", id)
}

func TestWatch_ReceivedStepAndSingleAck(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o1")

	sub, err := e.tracker.Watch(ctx, "o1", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	v := e.last(t)
	assert.Equal(t, "Enviado", v.StatusLabel)
	assert.Equal(t, "R$ 57,50 (c/ entrega)", v.TotalLabel)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "Arroz", v.Items[0].Name)

	e.countSets()

	// the point of sale moves the order without stamping receivedAt
	e.setStatus(t, "o1", map[string]interface{}{"status": "received"})

	v = e.last(t)
	assert.Equal(t, "Recebido pelo PDV", v.StatusLabel)
	step, ok := v.Step(order.StatusReceived)
	require.True(t, ok)
	assert.Equal(t, StepActive, step.State)
	assert.Nil(t, step.At)

	doc, _ := e.backend.Snapshot("orders/o1")
	ack, ok := docstore.Lookup(doc, "clientNotify.receivedAt")
	require.True(t, ok, "ack written for received")
	assert.Equal(t, serverNow, ack)
	exists, _ := e.local.Exists(ctx, AckKey("o1", order.StatusReceived))
	assert.True(t, exists)

	// more updates while still received never write again
	receivedAt := serverNow.Add(time.Minute)
	e.setStatus(t, "o1", map[string]interface{}{"receivedAt": receivedAt})
	e.setStatus(t, "o1", map[string]interface{}{"note": "sem cebola"})

	v = e.last(t)
	step, _ = v.Step(order.StatusReceived)
	assert.Equal(t, StepDone, step.State)
	require.NotNil(t, step.At)
	assert.Equal(t, receivedAt, *step.At)

	// 1 status change + 1 ack + 2 later updates
	assert.Equal(t, 4, e.ackSets)
}

func TestWatch_LocalFlagSkipsAck(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o2")
	e.setStatus(t, "o2", map[string]interface{}{"status": "preparing"})
	require.NoError(t, e.local.Set(ctx, AckKey("o2", order.StatusPreparing), "x", 0))

	e.countSets()
	sub, err := e.tracker.Watch(ctx, "o2", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, 0, e.ackSets)
	doc, _ := e.backend.Snapshot("orders/o2")
	_, acked := docstore.Lookup(doc, "clientNotify.preparingAt")
	assert.False(t, acked)
}

func TestWatch_AckOnlyForAcknowledgedStatuses(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o3")

	sub, err := e.tracker.Watch(ctx, "o3", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	e.setStatus(t, "o3", map[string]interface{}{"status": "ready"})
	e.setStatus(t, "o3", map[string]interface{}{"status": "out_for_delivery"})
	e.setStatus(t, "o3", map[string]interface{}{"status": "done", "doneAt": serverNow})

	doc, _ := e.backend.Snapshot("orders/o3")
	notify, _ := doc["clientNotify"].(map[string]interface{})
	assert.Equal(t, []string{"readyAt"}, keysOf(notify))

	v := e.last(t)
	step, _ := v.Step(order.StatusDone)
	assert.Equal(t, StepDone, step.State)
	step, _ = v.Step(order.StatusOutForDelivery)
	assert.Equal(t, StepPending, step.State)
}

func TestWatch_AckFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o4")

	sub, err := e.tracker.Watch(ctx, "o4", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sets := 0
	e.backend.SetFailureHook(func(op, path string) error {
		if op != "set" {
			return nil
		}
		sets++
		if sets > 1 {
			return errors.New("permission denied")
		}
		return nil
	})
	e.setStatus(t, "o4", map[string]interface{}{"status": "received"})

	assert.Equal(t, "received", string(e.last(t).Status))
	exists, _ := e.local.Exists(ctx, AckKey("o4", order.StatusReceived))
	assert.False(t, exists, "a failed ack can be retried later")
}

func TestWatch_CancellationAlertFiresOnce(t *testing.T) {
	ctx := context.Background()
	var alerts []string
	e := newEnv(t, WithCancellationAlert(AlertFunc(func(ctx context.Context, v View) {
		alerts = append(alerts, v.OrderID)
	})))
	e.placeOrder(t, "o5")

	sub, err := e.tracker.Watch(ctx, "o5", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	e.setStatus(t, "o5", map[string]interface{}{"status": "canceled"})
	e.setStatus(t, "o5", map[string]interface{}{"canceledAt": serverNow})

	assert.Equal(t, []string{"o5"}, alerts)
	v := e.last(t)
	step, ok := v.Step(order.StatusCanceled)
	require.True(t, ok)
	assert.Equal(t, StepDone, step.State)
	assert.Equal(t, "Cancelado", v.StatusLabel)
}

func TestWatch_NoAckAfterTerminalStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o6")

	sub, err := e.tracker.Watch(ctx, "o6", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	e.setStatus(t, "o6", map[string]interface{}{"status": "canceled"})
	// a late write from the point of sale moves it back
	e.setStatus(t, "o6", map[string]interface{}{"status": "received"})

	assert.Equal(t, order.StatusReceived, e.last(t).Status, "the view still follows the document")
	doc, _ := e.backend.Snapshot("orders/o6")
	_, acked := docstore.Lookup(doc, "clientNotify.receivedAt")
	assert.False(t, acked)
	exists, _ := e.local.Exists(ctx, AckKey("o6", order.StatusReceived))
	assert.False(t, exists)
}

func TestWatch_ListenerErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.placeOrder(t, "o6")

	var got error
	sub, err := e.tracker.Watch(ctx, "o6", e.onUpdate, func(err error) { got = err })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	boom := errors.New("listener closed")
	e.backend.FailSubscribers("orders/o6", boom)
	require.Error(t, got)
	assert.ErrorIs(t, got, boom)
	assert.Contains(t, got.Error(), MsgWatchFailed)

	_, err = e.tracker.Watch(ctx, "", nil, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWatch_MissingDocumentIsSkipped(t *testing.T) {
	e := newEnv(t)
	sub, err := e.tracker.Watch(context.Background(), "ghost", e.onUpdate, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.Empty(t, e.views)

	v, err := e.tracker.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, v.Exists)
	assert.Equal(t, "—", v.StatusLabel)
}

func TestWatchHistory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, id := range []string{"h1", "h2", "h3"} {
		e.placeOrder(t, id)
	}
	require.NoError(t, order.Remember(ctx, e.local, "h1", 10))
	require.NoError(t, order.Remember(ctx, e.local, "h2", 10))
	require.NoError(t, e.local.Set(ctx, core.KeyLastOrderID, "h3", 0))

	sub, err := e.tracker.WatchHistory(ctx, e.onUpdate, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, v := range e.views {
		seen[v.OrderID] = true
	}
	assert.Equal(t, map[string]bool{"h1": true, "h2": true, "h3": true}, seen)

	sub.Unsubscribe()
	before := len(e.views)
	e.setStatus(t, "h1", map[string]interface{}{"status": "received"})
	assert.Len(t, e.views, before, "no updates after unsubscribe")

	_, err = New(e.pos, core.NewMemoryStore()).WatchHistory(ctx, nil, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func keysOf(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
