package store

import (
	"context"
	"fmt"

	"YONASettlement/internal/db"
)

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory://"

// Backend is a store serving both intents and the directory.
type Backend interface {
	IntentStore
	Directory
}

// Open connects to Postgres, or builds a Memory store for MemoryDSN and applies the optional
// seed file to it. The returned func releases the connection pool.
func Open(ctx context.Context, dsn, seedPath string) (Backend, func(), error) {
	if dsn == MemoryDSN {
		m := NewMemory()
		if seedPath != "" {
			seed, err := LoadSeed(seedPath)
			if err != nil {
				return nil, nil, err
			}
			if err := seed.Apply(m); err != nil {
				return nil, nil, fmt.Errorf("apply seed: %w", err)
			}
		}
		return m, func() {}, nil
	}

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return New(pool), pool.Close, nil
}
