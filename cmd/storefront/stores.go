package main

import (
	"context"
	"fmt"
	"io"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/localstore"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openLocal opens the device storage selected by cfg.Storage.
func openLocal(cfg core.StorageConfig, logger core.Logger) (core.Memory, io.Closer, error) {
	switch cfg.Provider {
	case "", "bolt":
		s, err := localstore.Open(cfg.Path, localstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		m := core.NewMemoryStore()
		m.SetLogger(core.ComponentLogger(logger, "localstore"))
		return m, closerFunc(func() error { return nil }), nil
	case "redis":
		client, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  cfg.RedisURL,
			DB:        core.RedisDBLocalStorage,
			Namespace: cfg.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return core.NewRedisMemory(client), client, nil
	default:
		return nil, nil, fmt.Errorf("storage provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
}

// openRemote opens the document store selected by cfg.Remote. The memory
// provider runs the storefront standalone, with the point of sale simulated
// in process.
func openRemote(ctx context.Context, cfg core.RemoteConfig, logger core.Logger) (docstore.Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return docstore.NewMemoryBackend().Client("storefront"), nil
	case "redis":
		client, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  cfg.RedisURL,
			DB:        core.RedisDBDocuments,
			Namespace: cfg.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		// the store owns the client and closes it
		return docstore.NewRedisStore(client.Client(),
			docstore.WithNamespace(cfg.Namespace),
			docstore.WithLogger(logger),
		), nil
	case "firestore":
		return docstore.NewFirestoreStore(ctx, docstore.FirestoreOptions{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
			PingPath:        cfg.KeysDocument,
			Logger:          core.ComponentLogger(logger, "firestore"),
		})
	default:
		return nil, fmt.Errorf("remote provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
}
