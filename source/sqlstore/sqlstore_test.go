package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/toolcompiler/tool"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "tools.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	defs := []tool.Definition{
		{
			ID:          "text_analyzer",
			Name:        "Text Analyzer",
			Description: "Counts words",
			Source:      "func Execute() {}",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
			Active: true,
		},
		{ID: "tenant_tool", Source: "t", Tenants: []string{"1", "3"}, Active: true},
		{ID: "empty_scope", Source: "e", Tenants: []string{}, Active: true},
		{ID: "disabled", Source: "d", Active: false},
	}
	for _, d := range defs {
		if err := s.Upsert(context.Background(), d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); !errors.Is(err, tool.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	seed(t, s)
	defs, err := s.ListActive(context.Background(), "")
	if err != nil || len(defs) != 3 {
		t.Fatalf("ListActive = %d defs, %v", len(defs), err)
	}
}

func TestDefinition_RoundTrip(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	got, err := s.Definition(context.Background(), "text_analyzer", "")
	if err != nil {
		t.Fatal(err)
	}
	want := &tool.Definition{
		ID:          "text_analyzer",
		Name:        "Text Analyzer",
		Description: "Counts words",
		Source:      "func Execute() {}",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
		},
		Active: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Definition mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinition_Filters(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		id, tenant string
		found      bool
	}{
		{"tenant_tool", "1", true},
		{"tenant_tool", "3", true},
		{"tenant_tool", "2", false},
		{"tenant_tool", "", true},
		{"empty_scope", "9", true},
		{"text_analyzer", "9", true},
		{"disabled", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		def, err := s.Definition(ctx, tt.id, tt.tenant)
		if err != nil {
			t.Fatalf("Definition(%q, %q): %v", tt.id, tt.tenant, err)
		}
		if (def != nil) != tt.found {
			t.Errorf("Definition(%q, %q) found = %v, want %v", tt.id, tt.tenant, def != nil, tt.found)
		}
	}
}

func TestListActive(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	ids := func(tenant string) []string {
		defs, err := s.ListActive(context.Background(), tenant)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, len(defs))
		for i, d := range defs {
			out[i] = d.ID
		}
		return out
	}
	if diff := cmp.Diff([]string{"empty_scope", "tenant_tool", "text_analyzer"}, ids("1")); diff != "" {
		t.Errorf("tenant 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"empty_scope", "text_analyzer"}, ids("2")); diff != "" {
		t.Errorf("tenant 2 mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_Replaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Upsert(ctx, tool.Definition{ID: "x", Source: "v1", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, tool.Definition{ID: "x", Source: "v2", Tenants: []string{"5"}, Active: true}); err != nil {
		t.Fatal(err)
	}
	def, err := s.Definition(ctx, "x", "5")
	if err != nil || def == nil {
		t.Fatalf("Definition = %v, %v", def, err)
	}
	if def.Source != "v2" || !cmp.Equal(def.Tenants, []string{"5"}) {
		t.Errorf("unexpected definition: %+v", def)
	}
}

func TestUpsert_RequiresID(t *testing.T) {
	if err := openStore(t).Upsert(context.Background(), tool.Definition{Source: "x"}); err == nil {
		t.Fatal("expected error for missing tool_id")
	}
}

func TestSetActive(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	ok, err := s.SetActive(ctx, "text_analyzer", false)
	if err != nil || !ok {
		t.Fatalf("SetActive = %v, %v", ok, err)
	}
	if def, _ := s.Definition(ctx, "text_analyzer", ""); def != nil {
		t.Error("expected disabled tool to be hidden")
	}
	if ok, _ := s.SetActive(ctx, "missing", true); ok {
		t.Error("expected missing tool to report false")
	}
}

func TestSchema(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	got, err := s.Schema(context.Background(), "text_analyzer", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Text Analyzer" || got.Description != "Counts words" || got.InputSchema["type"] != "object" {
		t.Errorf("Schema = %+v", got)
	}
	if got, _ := s.Schema(context.Background(), "disabled", ""); got != nil {
		t.Errorf("expected nil schema for disabled tool")
	}
}
