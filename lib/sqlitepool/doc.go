// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with deskpilot's
// standard settings on top of zombiezen.com/go/sqlite.
//
// Every connection gets WAL journaling (file databases only),
// synchronous=NORMAL, a 5 second busy timeout, and in-memory temp
// storage, then the caller's idempotent schema script.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(root, "chat.db"),
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// Callers write SQL and run it with sqlitex.Execute; there is no query
// builder.
package sqlitepool
