// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// MemoryPath opens a private in-memory database. Each pool opened with
// it gets its own named shared-cache database, held by a single
// connection for the life of the pool.
const MemoryPath = ":memory:"

var memoryDatabases atomic.Uint64

// memoryURI names a fresh in-memory database. sqlitex refuses the bare
// ":memory:" path.
func memoryURI() string {
	return fmt.Sprintf("file:sqlitepool-%d?mode=memory&cache=shared", memoryDatabases.Add(1))
}

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4). Ignored for
	// MemoryPath.
	PoolSize int

	// Schema is executed on every connection after the pragmas. It
	// must be idempotent (CREATE ... IF NOT EXISTS).
	Schema string

	// OnConnect runs after Schema for any further per-connection
	// setup. An error discards the connection and fails the Take.
	OnConnect func(conn *sqlite.Conn) error

	Logger *slog.Logger
}

// Pool is a fixed-size pool of SQLite connections with standard
// pragmas applied. Pool is safe for concurrent use; connections are
// not, so each goroutine takes its own and puts it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are prepared lazily on first
// Take. The caller must Close the pool.
func Open(config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	uri := config.Path
	poolSize := config.PoolSize
	var flags sqlite.OpenFlags
	switch {
	case config.Path == MemoryPath:
		uri = memoryURI()
		poolSize = 1
		flags = sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI
	case poolSize <= 0:
		poolSize = max(runtime.NumCPU(), 4)
	}

	inner, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		Flags:    flags,
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, config.Path, config.Schema, config.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", config.Path, err)
	}

	config.Logger.Info("sqlite pool opened",
		"path", config.Path,
		"pool_size", poolSize,
	)
	return &Pool{inner: inner, logger: config.Logger, path: config.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Pair every Take with a Put:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (pool *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := pool.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (pool *Pool) Put(conn *sqlite.Conn) {
	pool.inner.Put(conn)
}

// Close closes every connection, waiting for borrowed ones to be
// returned.
func (pool *Pool) Close() error {
	if err := pool.inner.Close(); err != nil {
		pool.logger.Error("sqlite pool close error",
			"path", pool.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", pool.path, err)
	}
	pool.logger.Info("sqlite pool closed", "path", pool.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, path, schema string, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	if path != MemoryPath {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if schema != "" {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return fmt.Errorf("sqlitepool: applying schema: %w", err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
