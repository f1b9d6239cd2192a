package graph

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Vector Search", "vector_search"},
		{"vector search", "vector_search"},
		{"  padded   title  ", "padded_title"},
		{"Already_Normalized", "already_normalized"},
		{"Mixed: Punctuation!", "mixed_punctuation"},
		{"dash-is-kept", "dash-is-kept"},
		{"tabs\tand\nnewlines", "tabs_and_newlines"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyDeterminism(t *testing.T) {
	if DocumentKey("f1") != DocumentKey("f1") {
		t.Error("DocumentKey is not deterministic")
	}
	if DocumentKey("f1") != "doc_f1" {
		t.Errorf("DocumentKey(f1) = %q", DocumentKey("f1"))
	}
	if ChunkKey("f1_chunk_0") != "chunk_f1_chunk_0" {
		t.Errorf("ChunkKey = %q", ChunkKey("f1_chunk_0"))
	}
	if EntityKey("Vector Search") != EntityKey("vector search") {
		t.Error("EntityKey did not normalize case")
	}
}

func TestSectionKeyDistinguishes(t *testing.T) {
	doc := DocumentKey("f1")

	// Same title at different levels is a different section.
	if SectionKey(1, doc, "Intro") == SectionKey(2, doc, "Intro") {
		t.Error("section keys collide across levels")
	}
	// Same title in different documents is a different section.
	if SectionKey(2, doc, "Intro") == SectionKey(2, DocumentKey("f2"), "Intro") {
		t.Error("section keys collide across documents")
	}
	// Case and spacing variants of a title converge.
	if SectionKey(2, doc, "Getting Started") != SectionKey(2, doc, "getting  started") {
		t.Error("section keys diverge on title normalization")
	}
}
