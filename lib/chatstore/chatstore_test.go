// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
	"github.com/bureau-foundation/deskpilot/lib/sqlitepool"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// implementations runs a test against every Store, each with its own
// fake clock.
func implementations(t *testing.T, run func(t *testing.T, store Store, clk *clock.FakeClock)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		clk := clock.Fake(epoch)
		run(t, NewMemory(clk), clk)
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		clk := clock.Fake(epoch)
		store, err := OpenSQLite(SQLiteConfig{
			Path:  filepath.Join(t.TempDir(), "chat.db"),
			Clock: clk,
		})
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
		run(t, store, clk)
	})
}

func TestCreateTurnAssignsIDAndTime(t *testing.T) {
	t.Parallel()
	implementations(t, func(t *testing.T, store Store, clk *clock.FakeClock) {
		clk.Advance(90 * time.Second)
		stored, err := store.CreateTurn(context.Background(), Turn{
			Conversation: "desk-1",
			Role:         RoleUser,
			Content:      "open the browser",
		})
		if err != nil {
			t.Fatalf("CreateTurn: %v", err)
		}
		if _, err := uuid.Parse(stored.ID); err != nil {
			t.Errorf("ID %q is not a UUID: %v", stored.ID, err)
		}
		if want := epoch.Add(90 * time.Second); !stored.CreatedAt.Equal(want) {
			t.Errorf("CreatedAt = %v, want %v", stored.CreatedAt, want)
		}

		turns, err := store.RecentTurns(context.Background(), Filter{Conversation: "desk-1"}, 10)
		if err != nil {
			t.Fatalf("RecentTurns: %v", err)
		}
		if len(turns) != 1 || turns[0].ID != stored.ID {
			t.Fatalf("RecentTurns = %+v, want the stored turn", turns)
		}
	})
}

func TestRecentTurnsNewestFirst(t *testing.T) {
	t.Parallel()
	implementations(t, func(t *testing.T, store Store, clk *clock.FakeClock) {
		ctx := context.Background()
		contents := []string{"one", "two", "three", "four"}
		for index, content := range contents {
			role := RoleUser
			if index%2 == 1 {
				role = RoleAssistant
			}
			if _, err := store.CreateTurn(ctx, Turn{Conversation: "desk-1", Role: role, Content: content}); err != nil {
				t.Fatalf("CreateTurn(%s): %v", content, err)
			}
			clk.Advance(time.Second)
		}
		if _, err := store.CreateTurn(ctx, Turn{Conversation: "desk-2", Role: RoleUser, Content: "elsewhere"}); err != nil {
			t.Fatalf("CreateTurn: %v", err)
		}

		turns, err := store.RecentTurns(ctx, Filter{Conversation: "desk-1"}, 3)
		if err != nil {
			t.Fatalf("RecentTurns: %v", err)
		}
		assertContents(t, turns, "four", "three", "two")

		turns, err = store.RecentTurns(ctx, Filter{Conversation: "desk-1", Role: RoleAssistant}, 10)
		if err != nil {
			t.Fatalf("RecentTurns(assistant): %v", err)
		}
		assertContents(t, turns, "four", "two")
	})
}

func TestRecentTurnsOrdersTiesByInsertion(t *testing.T) {
	t.Parallel()
	implementations(t, func(t *testing.T, store Store, clk *clock.FakeClock) {
		ctx := context.Background()
		for _, content := range []string{"first", "second", "third"} {
			if _, err := store.CreateTurn(ctx, Turn{Conversation: "desk-1", Role: RoleUser, Content: content}); err != nil {
				t.Fatalf("CreateTurn: %v", err)
			}
		}
		turns, err := store.RecentTurns(ctx, Filter{Conversation: "desk-1"}, 2)
		if err != nil {
			t.Fatalf("RecentTurns: %v", err)
		}
		assertContents(t, turns, "third", "second")
	})
}

func TestTurnRoundTripsScreenshotAndToolCalls(t *testing.T) {
	t.Parallel()
	implementations(t, func(t *testing.T, store Store, clk *clock.FakeClock) {
		ctx := context.Background()
		shot := &screenshot.Descriptor{
			URL:       "/api/screenshots/desk-1_1767225600000.jpg",
			Width:     1280,
			Height:    720,
			Timestamp: epoch,
			Digest:    "abc123",
			Path:      "/var/lib/deskpilot/screenshots/desk-1_1767225600000.jpg",
			Data:      []byte{0xff, 0xd8},
		}
		calls := []ToolCall{{
			ID:         "toolu_1",
			Name:       "computer",
			Input:      json.RawMessage(`{"action":"left_click","coordinate":[10,20]}`),
			Descriptor: "<left_click>10,20</left_click>",
		}}
		if _, err := store.CreateTurn(ctx, Turn{
			Conversation: "desk-1",
			TargetID:     "desk-1",
			Role:         RoleAssistant,
			Model:        "claude-3-5-sonnet-20241022",
			Content:      "Clicking.\n<left_click>10,20</left_click>\n",
			Screenshot:   shot,
			ToolCalls:    calls,
		}); err != nil {
			t.Fatalf("CreateTurn: %v", err)
		}

		turns, err := store.RecentTurns(ctx, Filter{Conversation: "desk-1"}, 1)
		if err != nil {
			t.Fatalf("RecentTurns: %v", err)
		}
		if len(turns) != 1 {
			t.Fatalf("got %d turns, want 1", len(turns))
		}
		got := turns[0]
		if got.Model != "claude-3-5-sonnet-20241022" || got.TargetID != "desk-1" {
			t.Errorf("model/target = %q/%q", got.Model, got.TargetID)
		}
		if got.Screenshot == nil {
			t.Fatal("screenshot lost")
		}
		if got.Screenshot.URL != shot.URL || got.Screenshot.Width != 1280 || !got.Screenshot.Timestamp.Equal(epoch) {
			t.Errorf("screenshot = %+v, want %+v", *got.Screenshot, *shot)
		}
		if got.Screenshot.Data != nil {
			t.Errorf("screenshot Data persisted (%d bytes), want nil", len(got.Screenshot.Data))
		}
		if len(got.ToolCalls) != 1 {
			t.Fatalf("got %d tool calls, want 1", len(got.ToolCalls))
		}
		if got.ToolCalls[0].Descriptor != calls[0].Descriptor || string(got.ToolCalls[0].Input) != string(calls[0].Input) {
			t.Errorf("tool call = %+v, want %+v", got.ToolCalls[0], calls[0])
		}
	})
}

func TestCreateTurnValidation(t *testing.T) {
	t.Parallel()
	implementations(t, func(t *testing.T, store Store, clk *clock.FakeClock) {
		ctx := context.Background()
		if _, err := store.CreateTurn(ctx, Turn{Role: RoleUser}); !errors.Is(err, ErrNoConversation) {
			t.Errorf("missing conversation: got %v, want %v", err, ErrNoConversation)
		}
		if _, err := store.CreateTurn(ctx, Turn{Conversation: "desk-1", Role: "system"}); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("system role: got %v, want %v", err, ErrInvalidRole)
		}
		if _, err := store.RecentTurns(ctx, Filter{}, 5); !errors.Is(err, ErrNoConversation) {
			t.Errorf("empty filter: got %v, want %v", err, ErrNoConversation)
		}
		turns, err := store.RecentTurns(ctx, Filter{Conversation: "desk-1"}, 0)
		if err != nil || len(turns) != 0 {
			t.Errorf("limit 0 = %v, %v; want nothing", turns, err)
		}
	})
}

func TestSQLiteInMemory(t *testing.T) {
	t.Parallel()
	store, err := OpenSQLite(SQLiteConfig{Path: sqlitepool.MemoryPath, Clock: clock.Fake(epoch)})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.CreateTurn(ctx, Turn{Conversation: "scratch", Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}
	turns, err := store.RecentTurns(ctx, Filter{Conversation: "scratch"}, 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	assertContents(t, turns, "hi")
}

func assertContents(t *testing.T, turns []Turn, want ...string) {
	t.Helper()
	if len(turns) != len(want) {
		t.Fatalf("got %d turns, want %d (%v)", len(turns), len(want), want)
	}
	for index, turn := range turns {
		if turn.Content != want[index] {
			t.Errorf("turns[%d].Content = %q, want %q", index, turn.Content, want[index])
		}
	}
}
