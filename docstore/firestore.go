package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/itsneelabh/storefront/core"
)

// FirestoreStore implements Store on Cloud Firestore through the Firebase
// Admin SDK. The admin SDK has no offline cache, so HasPendingWrites is
// always false.
type FirestoreStore struct {
	client   *firestore.Client
	pingPath string
	logger   core.Logger
}

// FirestoreOptions configures NewFirestoreStore
type FirestoreOptions struct {
	ProjectID       string
	CredentialsFile string // optional; application default credentials otherwise
	PingPath        string // document read by Ping, defaults to data/keys
	Logger          core.Logger
}

// NewFirestoreStore initialises a Firebase app and its Firestore client
func NewFirestoreStore(ctx context.Context, opts FirestoreOptions) (*FirestoreStore, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required: %w", core.ErrMissingConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init (%v): %w", err, core.ErrConnectionFailed)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client (%v): %w", err, core.ErrConnectionFailed)
	}

	pingPath := opts.PingPath
	if pingPath == "" {
		pingPath = core.DefaultKeysDocument
	}

	logger.Info("Firestore client ready", map[string]interface{}{
		"project_id": opts.ProjectID,
	})
	return &FirestoreStore{client: client, pingPath: pingPath, logger: logger}, nil
}

// Get reads a document
func (s *FirestoreStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ValidateDocPath(path); err != nil {
		return Document{}, err
	}
	snap, err := s.client.Doc(path).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{Path: path}, nil
	}
	if err != nil {
		return Document{}, translateFirestoreError("get", path, err)
	}
	return Document{Path: path, Exists: snap.Exists(), Data: snap.Data()}, nil
}

// Set writes a document, merging all fields when Merge is given
func (s *FirestoreStore) Set(ctx context.Context, path string, data map[string]interface{}, opts ...SetOption) error {
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	o := applySetOptions(opts)
	var setOpts []firestore.SetOption
	if o.merge {
		setOpts = append(setOpts, firestore.MergeAll)
	}
	if _, err := s.client.Doc(path).Set(ctx, toFirestore(data), setOpts...); err != nil {
		return translateFirestoreError("set", path, err)
	}
	return nil
}

// Create writes a document that must not exist yet
func (s *FirestoreStore) Create(ctx context.Context, path string, data map[string]interface{}) error {
	if err := ValidateDocPath(path); err != nil {
		return err
	}
	if _, err := s.client.Doc(path).Create(ctx, toFirestore(data)); err != nil {
		return translateFirestoreError("create", path, err)
	}
	return nil
}

// Subscribe streams snapshots of one document
func (s *FirestoreStore) Subscribe(ctx context.Context, path string, onChange func(Document), onError func(error)) (Subscription, error) {
	if err := ValidateDocPath(path); err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}

	subCtx, cancel := context.WithCancel(ctx)
	it := s.client.Doc(path).Snapshots(subCtx)
	sub := &firestoreSubscription{cancel: cancel, it: it}

	go func() {
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() == nil && status.Code(err) != codes.Canceled {
					onError(translateFirestoreError("subscribe", path, err))
				}
				return
			}
			doc := Document{Path: path, Exists: snap.Exists()}
			if doc.Exists {
				doc.Data = snap.Data()
			}
			onChange(doc)
		}
	}()

	return sub, nil
}

// Ping reads the ping document; a missing document still proves connectivity
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Doc(s.pingPath).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore ping (%v): %w", err, core.ErrOffline)
	}
	return nil
}

// Close releases the client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreSubscription struct {
	cancel context.CancelFunc
	it     *firestore.DocumentSnapshotIterator
	once   sync.Once
}

func (f *firestoreSubscription) Unsubscribe() {
	f.once.Do(func() {
		f.cancel()
		f.it.Stop()
	})
}

// toFirestore swaps our ServerTimestamp sentinel for Firestore's.
func toFirestore(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch x := v.(type) {
		case sentinel:
			if x == ServerTimestamp {
				out[k] = firestore.ServerTimestamp
				continue
			}
			out[k] = v
		case map[string]interface{}:
			out[k] = toFirestore(x)
		default:
			out[k] = v
		}
	}
	return out
}

func translateFirestoreError(op, path string, err error) error {
	switch status.Code(err) {
	case codes.AlreadyExists:
		return fmt.Errorf("%s %s: %w", op, path, core.ErrAlreadyExists)
	case codes.NotFound:
		return fmt.Errorf("%s %s: %w", op, path, core.ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("firestore %s %s (%v): %w", op, path, err, core.ErrOffline)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("firestore %s %s: %w", op, path, core.ErrTimeout)
	}
	return fmt.Errorf("firestore %s %s: %w", op, path, err)
}
