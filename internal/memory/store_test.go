package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sanjeevni-ai/sanjeevni/internal/database"
	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/tools"
)

// stores returns every Store implementation under test, each backed by a
// fresh database.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{"mem": NewMemStore()}
	for _, driver := range []string{database.DriverCGO, database.DriverPure} {
		s, err := NewSQLiteStore(driver, filepath.Join(t.TempDir(), driver+".db"), nil)
		if err != nil {
			t.Fatalf("NewSQLiteStore(%s): %v", driver, err)
		}
		t.Cleanup(func() { s.Close() })
		out["sqlite/"+driver] = s
	}
	return out
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.Create(ctx)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if conv.ID == "" || conv.CreatedAt.IsZero() {
				t.Fatalf("Create = %+v, want id and timestamp", conv)
			}

			ok, err := s.Exists(ctx, conv.ID)
			if err != nil || !ok {
				t.Errorf("Exists = %v, %v, want true", ok, err)
			}

			got, err := s.Get(ctx, conv.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ID != conv.ID || got.MessageCount != 0 {
				t.Errorf("Get = %+v", got)
			}

			msgs, err := s.Messages(ctx, conv.ID)
			if err != nil || len(msgs) != 0 {
				t.Errorf("Messages = %v, %v, want empty", msgs, err)
			}
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			if !errors.Is(err, ErrConversationNotFound) {
				t.Errorf("Get error = %v, want ErrConversationNotFound", err)
			}
			ok, err := s.Exists(ctx, "missing")
			if err != nil || ok {
				t.Errorf("Exists = %v, %v, want false", ok, err)
			}
		})
	}
}

func TestStore_AppendAutoCreatesAndOrders(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := range 5 {
				role := RoleUser
				if i%2 == 1 {
					role = RoleAssistant
				}
				if err := s.Append(ctx, "conv-1", Message{Role: role, Content: fmt.Sprintf("m%d", i)}); err != nil {
					t.Fatalf("Append %d: %v", i, err)
				}
			}

			ok, _ := s.Exists(ctx, "conv-1")
			if !ok {
				t.Fatal("Append should create the conversation")
			}

			msgs, err := s.Messages(ctx, "conv-1")
			if err != nil {
				t.Fatalf("Messages: %v", err)
			}
			if len(msgs) != 5 {
				t.Fatalf("Messages len = %d, want 5", len(msgs))
			}
			for i, m := range msgs {
				if m.Content != fmt.Sprintf("m%d", i) {
					t.Errorf("msgs[%d].Content = %q, want m%d", i, m.Content, i)
				}
				if m.ID == "" || m.Timestamp.IsZero() {
					t.Errorf("msgs[%d] missing id or timestamp: %+v", i, m)
				}
			}
			if msgs[1].Role != RoleAssistant {
				t.Errorf("msgs[1].Role = %q, want assistant", msgs[1].Role)
			}

			conv, _ := s.Get(ctx, "conv-1")
			if conv.MessageCount != 5 {
				t.Errorf("MessageCount = %d, want 5", conv.MessageCount)
			}
		})
	}
}

func TestStore_ToolCallsRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			msg := Message{
				Role:      RoleAssistant,
				Content:   "Sales are up.",
				ToolCalls: []llm.FunctionCall{{Name: "analyze_metrics", Args: map[string]any{"metrics": []any{"sales"}}}},
				ToolResults: []tools.Result{
					tools.Success("analyze_metrics", map[string]any{"trend": "up"}),
				},
			}
			if err := s.Append(ctx, "c", msg); err != nil {
				t.Fatalf("Append: %v", err)
			}

			msgs, _ := s.Messages(ctx, "c")
			if len(msgs) != 1 {
				t.Fatalf("Messages len = %d, want 1", len(msgs))
			}
			got := msgs[0]
			if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "analyze_metrics" {
				t.Errorf("ToolCalls = %+v", got.ToolCalls)
			}
			if len(got.ToolResults) != 1 || !got.ToolResults[0].OK() {
				t.Errorf("ToolResults = %+v", got.ToolResults)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Append(ctx, "gone", Message{Role: RoleUser, Content: "hi"})
			s.Append(ctx, "kept", Message{Role: RoleUser, Content: "hello"})

			deleted, err := s.Delete(ctx, "gone")
			if err != nil || !deleted {
				t.Fatalf("Delete = %v, %v, want true", deleted, err)
			}
			if ok, _ := s.Exists(ctx, "gone"); ok {
				t.Error("deleted conversation still exists")
			}
			if msgs, _ := s.Messages(ctx, "gone"); len(msgs) != 0 {
				t.Errorf("deleted conversation has %d messages", len(msgs))
			}
			if msgs, _ := s.Messages(ctx, "kept"); len(msgs) != 1 {
				t.Errorf("other conversation has %d messages, want 1", len(msgs))
			}

			deleted, err = s.Delete(ctx, "gone")
			if err != nil || deleted {
				t.Errorf("second Delete = %v, %v, want false", deleted, err)
			}
		})
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 4, 30, 10, 0, 0, 0, time.UTC)

	mem := NewMemStore()
	sq, err := NewSQLiteStore(database.DriverCGO, filepath.Join(t.TempDir(), "list.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sq.Close()

	for name, tc := range map[string]struct {
		s      Store
		setNow func(func() time.Time)
	}{
		"mem":    {mem, func(f func() time.Time) { mem.now = f }},
		"sqlite": {sq, func(f func() time.Time) { sq.now = f }},
	} {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"old", "mid", "new"} {
				at := base.Add(time.Duration(i) * time.Minute)
				tc.setNow(func() time.Time { return at })
				tc.s.Append(ctx, id, Message{Role: RoleUser, Content: id})
			}
			// Touch "old" last so it becomes the most recent.
			tc.setNow(func() time.Time { return base.Add(time.Hour) })
			tc.s.Append(ctx, "old", Message{Role: RoleAssistant, Content: "again"})

			convs, err := tc.s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{"old", "new", "mid"}
			if len(convs) != len(want) {
				t.Fatalf("List len = %d, want %d", len(convs), len(want))
			}
			for i := range want {
				if convs[i].ID != want[i] {
					t.Errorf("convs[%d] = %q, want %q", i, convs[i].ID, want[i])
				}
			}
			if convs[0].MessageCount != 2 {
				t.Errorf("old MessageCount = %d, want 2", convs[0].MessageCount)
			}
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Append(ctx, fmt.Sprintf("c%d", i%4), Message{Role: RoleUser, Content: "x"}); err != nil {
						t.Errorf("Append: %v", err)
					}
				}()
			}
			wg.Wait()

			total := 0
			convs, _ := s.List(ctx)
			for _, c := range convs {
				total += c.MessageCount
			}
			if total != 20 {
				t.Errorf("total messages = %d, want 20", total)
			}
		})
	}
}
