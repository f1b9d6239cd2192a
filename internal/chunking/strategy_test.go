package chunking

import "testing"

func TestSelectStrategy(t *testing.T) {
	base := Params{Size: 256, Overlap: 32}

	tests := []struct {
		name string
		ext  string
		want Kind
	}{
		{name: "markdown", ext: "md", want: KindMarkdown},
		{name: "markdown long form", ext: "markdown", want: KindMarkdown},
		{name: "markdown with dot", ext: ".md", want: KindMarkdown},
		{name: "markdown upper case", ext: "MD", want: KindMarkdown},
		{name: "html", ext: "html", want: KindHTML},
		{name: "htm", ext: "htm", want: KindHTML},
		{name: "json", ext: "json", want: KindJSON},
		{name: "plain text", ext: "txt", want: KindToken},
		{name: "go source", ext: "go", want: KindToken},
		{name: "unknown extension", ext: "xyz", want: KindToken},
		{name: "empty extension", ext: "", want: KindToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectStrategy(tt.ext, base)
			if got.Kind != tt.want {
				t.Errorf("SelectStrategy(%q).Kind = %q, want %q", tt.ext, got.Kind, tt.want)
			}
		})
	}
}

func TestSelectStrategyParams(t *testing.T) {
	base := Params{Size: 256, Overlap: 32}

	t.Run("token keeps base params", func(t *testing.T) {
		s := SelectStrategy("txt", base)
		if s.Size != base.Size || s.Overlap != base.Overlap {
			t.Errorf("got size=%d overlap=%d, want size=%d overlap=%d",
				s.Size, s.Overlap, base.Size, base.Overlap)
		}
	})

	t.Run("markdown uses structured size", func(t *testing.T) {
		s := SelectStrategy("md", base)
		if s.Size != DefaultStructuredSize {
			t.Errorf("got size=%d, want %d", s.Size, DefaultStructuredSize)
		}
		if s.HeadingDepth != DefaultHeadingDepth {
			t.Errorf("got heading depth=%d, want %d", s.HeadingDepth, DefaultHeadingDepth)
		}
	})

	t.Run("json uses byte ceiling", func(t *testing.T) {
		s := SelectStrategy("json", base)
		if s.MaxSize != DefaultJSONMaxSize {
			t.Errorf("got max size=%d, want %d", s.MaxSize, DefaultJSONMaxSize)
		}
		if s.Size != 0 || s.Overlap != 0 {
			t.Errorf("json strategy should zero token params, got size=%d overlap=%d",
				s.Size, s.Overlap)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := SelectStrategy("md", base)
		b := SelectStrategy("md", base)
		if a != b {
			t.Errorf("same input produced different strategies: %+v vs %+v", a, b)
		}
	})
}
