// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/codec"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
	"github.com/bureau-foundation/deskpilot/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id           TEXT PRIMARY KEY,
	conversation TEXT NOT NULL,
	target_id    TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL,
	model        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	screenshot   BLOB,
	tool_calls   BLOB,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_conversation_created
	ON turns (conversation, created_at);
`

// SQLiteConfig holds the parameters for opening a SQLite store.
type SQLiteConfig struct {
	// Path is the database file, or sqlitepool.MemoryPath.
	Path string

	// PoolSize is passed through to sqlitepool.
	PoolSize int

	// Clock stamps turns created without a CreatedAt. Defaults to
	// clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// SQLite is a [Store] backed by a SQLite database. Screenshot
// descriptors and tool calls are stored as CBOR blobs; the encoded
// JPEG bytes of a descriptor are not stored.
type SQLite struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at config.Path.
// The caller must Close the store.
func OpenSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: %w", err)
	}
	return &SQLite{pool: pool, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the connection pool.
func (store *SQLite) Close() error {
	return store.pool.Close()
}

// CreateTurn inserts turn.
func (store *SQLite) CreateTurn(ctx context.Context, turn Turn) (Turn, error) {
	turn, err := prepare(turn, store.clock.Now())
	if err != nil {
		return Turn{}, err
	}

	var screenshotBlob any
	if turn.Screenshot != nil {
		data, err := codec.Marshal(turn.Screenshot)
		if err != nil {
			return Turn{}, fmt.Errorf("chatstore: marshal screenshot: %w", err)
		}
		screenshotBlob = data
	}
	var toolCallsBlob any
	if len(turn.ToolCalls) > 0 {
		data, err := codec.Marshal(turn.ToolCalls)
		if err != nil {
			return Turn{}, fmt.Errorf("chatstore: marshal tool calls: %w", err)
		}
		toolCallsBlob = data
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("chatstore: create turn: %w", err)
	}
	defer store.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO turns
		(id, conversation, target_id, role, model, content, screenshot, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			turn.ID,
			turn.Conversation,
			turn.TargetID,
			string(turn.Role),
			turn.Model,
			turn.Content,
			screenshotBlob,
			toolCallsBlob,
			turn.CreatedAt.UnixNano(),
		},
	})
	if err != nil {
		return Turn{}, fmt.Errorf("chatstore: insert turn %s: %w", turn.ID, err)
	}

	store.logger.Debug("turn stored",
		"turn_id", turn.ID,
		"conversation", turn.Conversation,
		"role", turn.Role,
	)
	return turn, nil
}

// RecentTurns returns the newest turns matching filter.
func (store *SQLite) RecentTurns(ctx context.Context, filter Filter, limit int) ([]Turn, error) {
	if filter.Conversation == "" {
		return nil, ErrNoConversation
	}
	if limit <= 0 {
		return nil, nil
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("chatstore: recent turns: %w", err)
	}
	defer store.pool.Put(conn)

	var turns []Turn
	err = sqlitex.Execute(conn, `SELECT id, conversation, target_id, role, model, content,
		screenshot, tool_calls, created_at
		FROM turns
		WHERE conversation = ? AND (? = '' OR role = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{filter.Conversation, string(filter.Role), string(filter.Role), limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			turn, err := scanTurn(stmt)
			if err != nil {
				return err
			}
			turns = append(turns, turn)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chatstore: query turns of %s: %w", filter.Conversation, err)
	}
	return turns, nil
}

func scanTurn(stmt *sqlite.Stmt) (Turn, error) {
	// Columns: id(0), conversation(1), target_id(2), role(3), model(4),
	// content(5), screenshot(6), tool_calls(7), created_at(8)
	turn := Turn{
		ID:           stmt.ColumnText(0),
		Conversation: stmt.ColumnText(1),
		TargetID:     stmt.ColumnText(2),
		Role:         Role(stmt.ColumnText(3)),
		Model:        stmt.ColumnText(4),
		Content:      stmt.ColumnText(5),
		CreatedAt:    time.Unix(0, stmt.ColumnInt64(8)).UTC(),
	}

	if !stmt.ColumnIsNull(6) {
		var descriptor screenshot.Descriptor
		if err := codec.Unmarshal(columnBlob(stmt, 6), &descriptor); err != nil {
			return Turn{}, fmt.Errorf("unmarshal screenshot of turn %s: %w", turn.ID, err)
		}
		turn.Screenshot = &descriptor
	}
	if !stmt.ColumnIsNull(7) {
		if err := codec.Unmarshal(columnBlob(stmt, 7), &turn.ToolCalls); err != nil {
			return Turn{}, fmt.Errorf("unmarshal tool calls of turn %s: %w", turn.ID, err)
		}
	}
	return turn, nil
}

// columnBlob copies a BLOB column out of the statement; the column
// memory is only valid until the next step.
func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}
