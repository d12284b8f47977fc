package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// stores returns one fresh instance of every Store implementation.
func stores(t *testing.T, capacity int) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(":memory:", capacity)
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"inmemory": NewInMemoryStore(capacity),
		"sqlite":   sq,
	}
}

func Test_Store_AppendAndHistory(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Append(ctx, "s1",
				Message{Role: RoleUser, Content: "hello"},
				Message{Role: RoleAssistant, Content: "world"},
			)
			if err != nil {
				t.Fatalf("append: %v", err)
			}

			msgs, err := s.History(ctx, "s1")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("want 2 messages, got %d", len(msgs))
			}
			if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
				t.Errorf("msg[0]: want user/hello, got %s/%s", msgs[0].Role, msgs[0].Content)
			}
			if msgs[1].Role != RoleAssistant || msgs[1].Content != "world" {
				t.Errorf("msg[1]: want assistant/world, got %s/%s", msgs[1].Role, msgs[1].Content)
			}
			if msgs[0].CreatedAt.IsZero() {
				t.Error("CreatedAt should be stamped on append")
			}
		})
	}
}

func Test_Store_CapKeepsNewest(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 12 {
				if err := s.Append(ctx, "s", Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}

			msgs, err := s.History(ctx, "s")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(msgs) != 10 {
				t.Fatalf("want 10 messages, got %d", len(msgs))
			}
			for i, m := range msgs {
				if want := fmt.Sprintf("m%d", i+2); m.Content != want {
					t.Errorf("msg[%d]: want %q, got %q", i, want, m.Content)
				}
			}
		})
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = s.Append(ctx, "x", Message{Role: RoleUser, Content: "from x"})
			_ = s.Append(ctx, "y", Message{Role: RoleUser, Content: "from y"})

			msgsX, _ := s.History(ctx, "x")
			msgsY, _ := s.History(ctx, "y")
			if len(msgsX) != 1 || msgsX[0].Content != "from x" {
				t.Errorf("session x isolation failed: got %v", msgsX)
			}
			if len(msgsY) != 1 || msgsY[0].Content != "from y" {
				t.Errorf("session y isolation failed: got %v", msgsY)
			}
		})
	}
}

func Test_Store_UnknownSessionIsEmpty(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			msgs, err := s.History(context.Background(), "nobody")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(msgs) != 0 {
				t.Errorf("want 0 messages, got %d", len(msgs))
			}
		})
	}
}

func Test_Store_RequiresSessionID(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Append(ctx, "", Message{Role: RoleUser, Content: "x"}); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("append: want validation error, got %v", err)
			}
			if _, err := s.History(ctx, ""); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("history: want validation error, got %v", err)
			}
		})
	}
}

func Test_Store_ConcurrentAppendsStayWithinCap(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t, 4) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = s.Append(ctx, "busy",
						Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
						Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
					)
				}()
			}
			wg.Wait()

			msgs, err := s.History(ctx, "busy")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(msgs) != 4 {
				t.Fatalf("want 4 messages, got %d", len(msgs))
			}
			// Pairs are appended atomically, so the history alternates.
			for i, m := range msgs {
				want := RoleUser
				if i%2 == 1 {
					want = RoleAssistant
				}
				if m.Role != want {
					t.Errorf("msg[%d]: want role %s, got %s", i, want, m.Role)
				}
			}
		})
	}
}

func Test_SQLiteStore_Ping(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func Test_SQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/history.db"
	ctx := context.Background()

	s, err := OpenSQLite(path, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append(ctx, "s", Message{Role: RoleUser, Content: "remember me"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = s.Close()

	s, err = OpenSQLite(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	msgs, _ := s.History(ctx, "s")
	if len(msgs) != 1 || msgs[0].Content != "remember me" {
		t.Errorf("history not persisted: %v", msgs)
	}
}
