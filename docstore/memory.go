package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// MemoryBackend is an in-process document store shared by any number of
// clients. Each client sees its own writes flagged as pending, which is how
// the real store reports local, unconfirmed writes.
type MemoryBackend struct {
	mu      sync.Mutex
	docs    map[string]map[string]interface{}
	subs    map[string]map[int]*memorySub
	nextSub int
	offline bool
	hook    func(op, path string) error
	clock   func() time.Time
}

type memorySub struct {
	owner    string
	onChange func(Document)
	onError  func(error)
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs:  make(map[string]map[string]interface{}),
		subs:  make(map[string]map[int]*memorySub),
		clock: UTCNow,
	}
}

// SetOffline makes every operation fail with core.ErrOffline until reset.
func (b *MemoryBackend) SetOffline(offline bool) {
	b.mu.Lock()
	b.offline = offline
	b.mu.Unlock()
}

// SetFailureHook installs a function consulted before every operation; a
// non-nil return fails that operation. op is get, set, create or subscribe.
func (b *MemoryBackend) SetFailureHook(hook func(op, path string) error) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// SetClock overrides the server clock used for ServerTimestamp.
func (b *MemoryBackend) SetClock(clock func() time.Time) {
	b.mu.Lock()
	b.clock = clock
	b.mu.Unlock()
}

// Client returns a store handle identified by clientID
func (b *MemoryBackend) Client(clientID string) *MemoryStore {
	if clientID == "" {
		clientID = NewID()
	}
	return &MemoryStore{backend: b, clientID: clientID}
}

// Snapshot returns a copy of the raw document at path, for tests and tools.
func (b *MemoryBackend) Snapshot(path string) (map[string]interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[path]
	return CopyMap(d), ok
}

// Paths lists every stored document path.
func (b *MemoryBackend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.docs))
	for p := range b.docs {
		out = append(out, p)
	}
	return out
}

func (b *MemoryBackend) check(op, path string) error {
	if b.offline {
		return fmt.Errorf("%s %s: %w", op, path, core.ErrOffline)
	}
	if b.hook != nil {
		if err := b.hook(op, path); err != nil {
			return err
		}
	}
	return nil
}

type delivery struct {
	sub *memorySub
	doc Document
}

// pendingDeliveries must be called with b.mu held.
func (b *MemoryBackend) pendingDeliveries(path, writer string) []delivery {
	data, exists := b.docs[path]
	out := make([]delivery, 0, len(b.subs[path]))
	for _, s := range b.subs[path] {
		out = append(out, delivery{
			sub: s,
			doc: Document{
				Path:             path,
				Exists:           exists,
				Data:             CopyMap(data),
				HasPendingWrites: s.owner == writer,
			},
		})
	}
	return out
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.sub.onChange(d.doc)
	}
}

// MemoryStore is one client's handle on a MemoryBackend. It implements Store.
type MemoryStore struct {
	backend  *MemoryBackend
	clientID string
}

// ClientID returns the id used to flag this client's own writes
func (s *MemoryStore) ClientID() string {
	return s.clientID
}

// Get returns a copy of the document
func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := ValidateDocPath(path); err != nil {
		return Document{}, err
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("get", path); err != nil {
		return Document{}, err
	}
	data, ok := b.docs[path]
	return Document{Path: path, Exists: ok, Data: CopyMap(data)}, nil
}

// Set writes or merges data at path
func (s *MemoryStore) Set(ctx context.Context, path string, data map[string]interface{}, opts ...SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	o := applySetOptions(opts)
	b := s.backend
	b.mu.Lock()
	if err := b.check("set", path); err != nil {
		b.mu.Unlock()
		return err
	}
	now := b.clock()
	resolved := ResolveTimestamps(data, func() interface{} { return now })
	if o.merge {
		b.docs[path] = DeepMerge(b.docs[path], resolved)
	} else {
		b.docs[path] = resolved
	}
	ds := b.pendingDeliveries(path, s.clientID)
	b.mu.Unlock()

	deliver(ds)
	return nil
}

// Create writes data only if nothing exists at path
func (s *MemoryStore) Create(ctx context.Context, path string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	b := s.backend
	b.mu.Lock()
	if err := b.check("create", path); err != nil {
		b.mu.Unlock()
		return err
	}
	if _, exists := b.docs[path]; exists {
		b.mu.Unlock()
		return fmt.Errorf("create %s: %w", path, core.ErrAlreadyExists)
	}
	now := b.clock()
	b.docs[path] = ResolveTimestamps(data, func() interface{} { return now })
	ds := b.pendingDeliveries(path, s.clientID)
	b.mu.Unlock()

	deliver(ds)
	return nil
}

// Subscribe registers listeners and synchronously delivers the current snapshot
func (s *MemoryStore) Subscribe(ctx context.Context, path string, onChange func(Document), onError func(error)) (Subscription, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}
	b := s.backend
	b.mu.Lock()
	if err := b.check("subscribe", path); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	id := b.nextSub
	b.nextSub++
	sub := &memorySub{owner: s.clientID, onChange: onChange, onError: onError}
	if b.subs[path] == nil {
		b.subs[path] = make(map[int]*memorySub)
	}
	b.subs[path][id] = sub
	data, exists := b.docs[path]
	initial := Document{Path: path, Exists: exists, Data: CopyMap(data)}
	b.mu.Unlock()

	handle := &memorySubscription{backend: b, path: path, id: id}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				handle.Unsubscribe()
			case <-handle.done():
			}
		}()
	}

	onChange(initial)
	return handle, nil
}

// Ping fails only while the backend is offline
func (s *MemoryStore) Ping(ctx context.Context) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return core.ErrOffline
	}
	return nil
}

// Close is a no-op; the backend outlives its clients
func (s *MemoryStore) Close() error {
	return nil
}

// FailSubscribers pushes err to every listener on path, simulating a
// listener failure on the remote side.
func (b *MemoryBackend) FailSubscribers(path string, err error) {
	b.mu.Lock()
	subs := make([]*memorySub, 0, len(b.subs[path]))
	for _, s := range b.subs[path] {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.onError(err)
	}
}

type memorySubscription struct {
	backend *MemoryBackend
	path    string
	id      int
	once    sync.Once
	doneCh  chan struct{}
	initMu  sync.Mutex
}

func (m *memorySubscription) done() chan struct{} {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.doneCh == nil {
		m.doneCh = make(chan struct{})
	}
	return m.doneCh
}

// Unsubscribe removes the listener
func (m *memorySubscription) Unsubscribe() {
	m.once.Do(func() {
		ch := m.done()
		m.backend.mu.Lock()
		delete(m.backend.subs[m.path], m.id)
		m.backend.mu.Unlock()
		close(ch)
	})
}
