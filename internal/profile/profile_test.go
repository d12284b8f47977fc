package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/generator"
)

func newTestStore(t *testing.T, d Defaults) *Store {
	t.Helper()
	b, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewStore(b, d)
}

func Test_Load_DefaultsWhenNoPrompt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Defaults{Model: generator.Model{Name: "gpt-4o-mini", Temperature: 0.5}})

	p, err := s.Load(context.Background(), "bot1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.SystemPrompt != DefaultSystemPrompt || p.CustomPrompt {
		t.Errorf("want default prompt, got custom=%v %q", p.CustomPrompt, p.SystemPrompt)
	}
	if p.Model.Name != "gpt-4o-mini" || p.Model.MaxTokens != 500 || p.Model.Temperature != 0.5 {
		t.Errorf("unexpected model defaults: %+v", p.Model)
	}
}

func Test_PromptLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Defaults{})
	ctx := context.Background()

	if err := s.SetPrompt(ctx, "bot1", "Only talk about pizza."); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	p, _ := s.Load(ctx, "bot1")
	if p.SystemPrompt != "Only talk about pizza." || !p.CustomPrompt {
		t.Errorf("custom prompt not loaded: %+v", p)
	}

	other, _ := s.Load(ctx, "bot2")
	if other.CustomPrompt {
		t.Error("prompt leaked to another tenant")
	}

	if err := s.DeletePrompt(ctx, "bot1"); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	if err := s.DeletePrompt(ctx, "bot1"); err != nil {
		t.Errorf("deleting a missing prompt should succeed, got %v", err)
	}
	p, _ = s.Load(ctx, "bot1")
	if p.CustomPrompt {
		t.Error("prompt should revert to default after delete")
	}
}

func Test_Validation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Defaults{})
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
	}{
		{"empty tenant", s.SetPrompt(ctx, "", "x")},
		{"traversal tenant", s.SetPrompt(ctx, "../bot", "x")},
		{"slash tenant", s.DeletePrompt(ctx, "a/b")},
		{"empty prompt", s.SetPrompt(ctx, "bot1", "   ")},
	}
	for _, tc := range tests {
		if !errors.Is(tc.err, apperr.ErrValidation) {
			t.Errorf("%s: want validation error, got %v", tc.name, tc.err)
		}
	}
}

func Test_PromptKey(t *testing.T) {
	t.Parallel()
	got, err := PromptKey("bot1")
	if err != nil {
		t.Fatalf("PromptKey: %v", err)
	}
	if got != "prompts/prompt_bot1.txt" {
		t.Errorf("PromptKey = %q", got)
	}
}
