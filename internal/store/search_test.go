package store

import (
	"context"
	"strings"
	"testing"
)

func TestScopeClauses(t *testing.T) {
	t.Run("user scope only", func(t *testing.T) {
		f := SearchFilter{UserID: "u1"}
		clauses, args, err := f.scopeClauses([]any{"query"})
		if err != nil {
			t.Fatalf("scopeClauses failed: %v", err)
		}
		if len(clauses) != 1 || clauses[0] != "user_id = $2" {
			t.Errorf("clauses = %v", clauses)
		}
		if len(args) != 2 || args[1] != "u1" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("file scope continues numbering", func(t *testing.T) {
		f := SearchFilter{UserID: "u1", FileIDs: []string{"f1", "f2"}}
		clauses, args, err := f.scopeClauses([]any{"query"})
		if err != nil {
			t.Fatalf("scopeClauses failed: %v", err)
		}
		if len(clauses) != 2 || clauses[1] != "file_id = ANY($3)" {
			t.Errorf("clauses = %v", clauses)
		}
		if len(args) != 3 {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("include filter is one containment clause", func(t *testing.T) {
		f := SearchFilter{
			UserID:  "u1",
			Include: map[string]string{"file_type": "md", "lang": "en"},
		}
		clauses, args, err := f.scopeClauses(nil)
		if err != nil {
			t.Fatalf("scopeClauses failed: %v", err)
		}
		if len(clauses) != 2 || clauses[1] != "metadata @> $2" {
			t.Errorf("clauses = %v", clauses)
		}
		includeJSON, ok := args[1].([]byte)
		if !ok || !strings.Contains(string(includeJSON), `"file_type":"md"`) {
			t.Errorf("include arg = %v", args[1])
		}
	})

	t.Run("exclude filter is one negated clause per pair", func(t *testing.T) {
		f := SearchFilter{
			UserID:  "u1",
			Exclude: map[string]string{"draft": "true", "archived": "true"},
		}
		clauses, _, err := f.scopeClauses(nil)
		if err != nil {
			t.Fatalf("scopeClauses failed: %v", err)
		}
		if len(clauses) != 3 {
			t.Fatalf("clauses = %v", clauses)
		}
		for _, c := range clauses[1:] {
			if !strings.HasPrefix(c, "NOT (metadata @> $") {
				t.Errorf("unexpected exclude clause %q", c)
			}
		}
	})

	t.Run("exclude pattern coalesces missing fields", func(t *testing.T) {
		f := SearchFilter{
			UserID:          "u1",
			ExcludePatterns: map[string]string{"source": "%/vendor/%"},
		}
		clauses, args, err := f.scopeClauses(nil)
		if err != nil {
			t.Fatalf("scopeClauses failed: %v", err)
		}
		if len(clauses) != 2 || clauses[1] != "COALESCE(metadata->>$2, '') NOT LIKE $3" {
			t.Errorf("clauses = %v", clauses)
		}
		if len(args) != 3 || args[1] != "source" || args[2] != "%/vendor/%" {
			t.Errorf("args = %v", args)
		}
	})
}

func TestSearchRejectsEmptyUserID(t *testing.T) {
	s := New(nil, nil)

	if _, err := s.VectorSearch(context.Background(), []float32{1}, SearchFilter{}); err != ErrEmptyUserID {
		t.Errorf("VectorSearch error = %v, want ErrEmptyUserID", err)
	}
	if _, err := s.KeywordSearch(context.Background(), "q", SearchFilter{}); err != ErrEmptyUserID {
		t.Errorf("KeywordSearch error = %v, want ErrEmptyUserID", err)
	}
	if _, err := s.DeleteFileChunks(context.Background(), "", "f1"); err != ErrEmptyUserID {
		t.Errorf("DeleteFileChunks error = %v, want ErrEmptyUserID", err)
	}
}

func TestFilterLimit(t *testing.T) {
	if got := (SearchFilter{}).limit(); got != DefaultLimit {
		t.Errorf("zero limit = %d, want %d", got, DefaultLimit)
	}
	if got := (SearchFilter{Limit: 25}).limit(); got != 25 {
		t.Errorf("explicit limit = %d, want 25", got)
	}
}
