package chunking

import (
	"strings"
	"testing"
)

// runeTokenizer treats every rune as one token, making window sizes exact
// and independent of the BPE vocabulary.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes)
}

func newTestChunker(t *testing.T) *Chunker {
	t.Helper()
	return NewChunker(runeTokenizer{}, nil)
}

func TestSplitEmptyInput(t *testing.T) {
	c := newTestChunker(t)

	for _, text := range []string{"", "   ", "\n\t\n"} {
		if got := c.Split(text, Strategy{Kind: KindToken, Size: 10}); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", text, len(got))
		}
	}
}

func TestSplitTokenWindows(t *testing.T) {
	c := newTestChunker(t)
	text := "abcdefghij" // 10 tokens under the rune tokenizer

	t.Run("no overlap", func(t *testing.T) {
		chunks := c.Split(text, Strategy{Kind: KindToken, Size: 4})
		want := []string{"abcd", "efgh", "ij"}
		if len(chunks) != len(want) {
			t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
		}
		for i, w := range want {
			if chunks[i].Text != w {
				t.Errorf("chunk[%d].Text = %q, want %q", i, chunks[i].Text, w)
			}
			if chunks[i].Index != i {
				t.Errorf("chunk[%d].Index = %d, want %d", i, chunks[i].Index, i)
			}
		}
	})

	t.Run("with overlap", func(t *testing.T) {
		chunks := c.Split(text, Strategy{Kind: KindToken, Size: 4, Overlap: 2})
		// step = 2: windows start at 0, 2, 4, 6, 8
		want := []string{"abcd", "cdef", "efgh", "ghij", "ij"}
		if len(chunks) != len(want) {
			t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
		}
		for i, w := range want {
			if chunks[i].Text != w {
				t.Errorf("chunk[%d].Text = %q, want %q", i, chunks[i].Text, w)
			}
		}
	})

	t.Run("overlap >= size ignored", func(t *testing.T) {
		chunks := c.Split(text, Strategy{Kind: KindToken, Size: 4, Overlap: 4})
		if len(chunks) != 3 {
			t.Fatalf("got %d chunks, want 3 (overlap should reset to 0)", len(chunks))
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		s := Strategy{Kind: KindToken, Size: 4, Overlap: 2}
		first := c.Split(text, s)
		second := c.Split(text, s)
		if len(first) != len(second) {
			t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].Text != second[i].Text {
				t.Errorf("chunk[%d] differs across runs: %q vs %q",
					i, first[i].Text, second[i].Text)
			}
		}
	})
}

func TestSplitMarkdownHeadings(t *testing.T) {
	c := newTestChunker(t)
	source := `# Guide

Intro paragraph.

## Install

Run the installer.

### Linux

Use the package manager.

## Usage

Call the binary.
`
	chunks := c.Split(source, Strategy{
		Kind:         KindMarkdown,
		Size:         DefaultStructuredSize,
		HeadingDepth: DefaultHeadingDepth,
	})
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	tests := []struct {
		text string
		meta map[string]string
	}{
		{"Intro paragraph.", map[string]string{"h1": "Guide"}},
		{"Run the installer.", map[string]string{"h1": "Guide", "h2": "Install"}},
		{"Use the package manager.", map[string]string{"h1": "Guide", "h2": "Install", "h3": "Linux"}},
		{"Call the binary.", map[string]string{"h1": "Guide", "h2": "Usage"}},
	}
	for i, tt := range tests {
		if chunks[i].Text != tt.text {
			t.Errorf("chunk[%d].Text = %q, want %q", i, chunks[i].Text, tt.text)
		}
		for key, want := range tt.meta {
			if got := chunks[i].Metadata[key]; got != want {
				t.Errorf("chunk[%d].Metadata[%q] = %q, want %q", i, key, got, want)
			}
		}
	}

	// The h3 captured under Install must not leak into the Usage section.
	if _, ok := chunks[3].Metadata["h3"]; ok {
		t.Errorf("chunk[3] kept stale h3 metadata: %v", chunks[3].Metadata)
	}
}

func TestSplitMarkdownDeepHeadingsFoldIntoBody(t *testing.T) {
	c := newTestChunker(t)
	source := `## Section

#### Too Deep

Body text.
`
	chunks := c.Split(source, Strategy{
		Kind:         KindMarkdown,
		Size:         DefaultStructuredSize,
		HeadingDepth: 3,
	})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if _, ok := chunks[0].Metadata["h4"]; ok {
		t.Errorf("heading below capture depth recorded as metadata: %v", chunks[0].Metadata)
	}
	if !strings.Contains(chunks[0].Text, "Body text.") {
		t.Errorf("chunk lost body text: %q", chunks[0].Text)
	}
}

func TestSplitHTML(t *testing.T) {
	c := newTestChunker(t)
	source := `<html><body>
<h1>Manual</h1>
<p>Overview text.</p>
<h2>Setup</h2>
<p>First step.</p>
<p>Second step.</p>
</body></html>`

	chunks := c.Split(source, Strategy{Kind: KindHTML, Size: DefaultStructuredSize})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	if chunks[0].Text != "Overview text." {
		t.Errorf("chunk[0].Text = %q", chunks[0].Text)
	}
	if got := chunks[0].Metadata["h1"]; got != "Manual" {
		t.Errorf("chunk[0].Metadata[h1] = %q, want Manual", got)
	}

	if !strings.Contains(chunks[1].Text, "First step.") || !strings.Contains(chunks[1].Text, "Second step.") {
		t.Errorf("chunk[1] missing section body: %q", chunks[1].Text)
	}
	if got := chunks[1].Metadata["h2"]; got != "Setup" {
		t.Errorf("chunk[1].Metadata[h2] = %q, want Setup", got)
	}
}

func TestSplitJSON(t *testing.T) {
	c := newTestChunker(t)

	t.Run("small document stays whole", func(t *testing.T) {
		chunks := c.Split(`{"name":"korpus","kind":"tool"}`, Strategy{Kind: KindJSON, MaxSize: 1024})
		if len(chunks) != 1 {
			t.Fatalf("got %d chunks, want 1", len(chunks))
		}
	})

	t.Run("array decomposes per element", func(t *testing.T) {
		chunks := c.Split(`[{"id":1},{"id":2},{"id":3}]`, Strategy{Kind: KindJSON, MaxSize: 10})
		if len(chunks) != 3 {
			t.Fatalf("got %d chunks, want 3", len(chunks))
		}
		for i, chunk := range chunks {
			if len(chunk.Text) > 10 {
				t.Errorf("chunk[%d] exceeds max size: %d bytes", i, len(chunk.Text))
			}
		}
	})

	t.Run("object decomposes per key deterministically", func(t *testing.T) {
		source := `{"beta":"` + strings.Repeat("b", 30) + `","alpha":"` + strings.Repeat("a", 30) + `"}`
		first := c.Split(source, Strategy{Kind: KindJSON, MaxSize: 50})
		second := c.Split(source, Strategy{Kind: KindJSON, MaxSize: 50})
		if len(first) != 2 {
			t.Fatalf("got %d chunks, want 2", len(first))
		}
		if !strings.Contains(first[0].Text, "alpha") {
			t.Errorf("keys not in sorted order: chunk[0] = %q", first[0].Text)
		}
		for i := range first {
			if first[i].Text != second[i].Text {
				t.Errorf("chunk[%d] differs across runs", i)
			}
		}
	})

	t.Run("invalid json falls back to byte windows", func(t *testing.T) {
		chunks := c.Split("not json at all {{{", Strategy{Kind: KindJSON, MaxSize: 8})
		if len(chunks) == 0 {
			t.Fatal("invalid json produced no chunks")
		}
		for i, chunk := range chunks {
			if len(chunk.Text) > 8 {
				t.Errorf("chunk[%d] exceeds window size: %q", i, chunk.Text)
			}
		}
	})
}

func TestEnrich(t *testing.T) {
	t.Run("offsets are monotonic for repeated text", func(t *testing.T) {
		source := "repeat repeat repeat"
		chunks := []Chunk{
			{Text: "repeat", Index: 0},
			{Text: "repeat", Index: 1},
			{Text: "repeat", Index: 2},
		}
		got := Enrich(chunks, source)
		offsets := []int{got[0].StartOffset, got[1].StartOffset, got[2].StartOffset}
		want := []int{0, 7, 14}
		for i := range want {
			if offsets[i] != want[i] {
				t.Errorf("chunk[%d].StartOffset = %d, want %d", i, offsets[i], want[i])
			}
		}
	})

	t.Run("section title from deepest heading at level two or below", func(t *testing.T) {
		chunks := []Chunk{{
			Text:     "body",
			Metadata: map[string]string{"h1": "Doc", "h2": "Setup", "h3": "Linux"},
		}}
		got := Enrich(chunks, "body")
		if title := got[0].Metadata[MetaSectionTitle]; title != "Linux" {
			t.Errorf("section title = %q, want Linux", title)
		}
	})

	t.Run("h1 alone does not name a section", func(t *testing.T) {
		chunks := []Chunk{{
			Text:     "body",
			Metadata: map[string]string{"h1": "Doc"},
		}}
		got := Enrich(chunks, "body")
		if title := got[0].Metadata[MetaSectionTitle]; title != UnknownSection {
			t.Errorf("section title = %q, want %q", title, UnknownSection)
		}
	})

	t.Run("chunk index recorded as metadata", func(t *testing.T) {
		chunks := []Chunk{{Text: "a", Index: 0}, {Text: "b", Index: 1}}
		got := Enrich(chunks, "a b")
		if got[1].Metadata[MetaChunkIndex] != "1" {
			t.Errorf("chunk index metadata = %q, want 1", got[1].Metadata[MetaChunkIndex])
		}
	})

	t.Run("unlocatable text keeps cursor position", func(t *testing.T) {
		chunks := []Chunk{{Text: `{"synthesized":true}`, Index: 0}}
		got := Enrich(chunks, "completely different source")
		if got[0].StartOffset != 0 {
			t.Errorf("StartOffset = %d, want 0", got[0].StartOffset)
		}
	})
}

func TestSplitPopulatesMetadataMap(t *testing.T) {
	c := newTestChunker(t)
	chunks := c.Split("plain text body", Strategy{Kind: KindToken, Size: 100})
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	if chunks[0].Metadata == nil {
		t.Error("Split returned chunk with nil Metadata")
	}
}
