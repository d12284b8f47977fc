package rag

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func Test_qdrantFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		want   map[string]string
	}{
		{"zero filter", Filter{}, nil},
		{"tenant only", Filter{TenantID: "bot1"}, map[string]string{"tenantId": "bot1"}},
		{"document only", Filter{DocumentID: "faq.pdf"}, map[string]string{"documentId": "faq.pdf"}},
		{"tenant and document", Filter{TenantID: "bot1", DocumentID: "faq.pdf"},
			map[string]string{"tenantId": "bot1", "documentId": "faq.pdf"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := qdrantFilter(tc.filter)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("want nil filter, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("want a filter, got nil")
			}
			if len(got.GetMust()) != len(tc.want) {
				t.Fatalf("want %d must conditions, got %d", len(tc.want), len(got.GetMust()))
			}
			if len(got.GetShould()) != 0 || len(got.GetMustNot()) != 0 {
				t.Errorf("only must conditions are expected: %v", got)
			}
			for _, c := range got.GetMust() {
				field := c.GetField()
				want, ok := tc.want[field.GetKey()]
				if !ok {
					t.Errorf("unexpected condition on %q", field.GetKey())
					continue
				}
				if kw := field.GetMatch().GetKeyword(); kw != want {
					t.Errorf("%s matches %q, want exact keyword %q", field.GetKey(), kw, want)
				}
			}
		})
	}
}

func Test_matchFromPayload(t *testing.T) {
	t.Parallel()

	payload := map[string]*qdrant.Value{
		"fragmentId": qdrant.NewValueString("bot1::faq.pdf::0"),
		"content":    qdrant.NewValueString("The office opens at nine."),
		"title":      qdrant.NewValueString("Opening hours"),
		"documentId": qdrant.NewValueString("faq.pdf"),
		"tenantId":   qdrant.NewValueString("bot1"),
	}
	got := matchFromPayload(payload)
	want := Match{
		ID: "bot1::faq.pdf::0",
		Metadata: Metadata{
			Content:    "The office opens at nine.",
			Title:      "Opening hours",
			DocumentID: "faq.pdf",
			TenantID:   "bot1",
		},
	}
	if got != want {
		t.Errorf("matchFromPayload = %+v, want %+v", got, want)
	}
}

func Test_matchFromPayload_MissingKeys(t *testing.T) {
	t.Parallel()

	got := matchFromPayload(map[string]*qdrant.Value{
		"content": qdrant.NewValueString("orphan"),
		"title":   qdrant.NewValueInt(3),
	})
	if got.Metadata.TenantID != "" || got.Metadata.DocumentID != "" || got.ID != "" {
		t.Errorf("absent keys must decode empty, got %+v", got)
	}
	if got.Metadata.Title != "" {
		t.Errorf("non-string title must decode empty, got %q", got.Metadata.Title)
	}
	if got.Metadata.Content != "orphan" {
		t.Errorf("content = %q", got.Metadata.Content)
	}
}
