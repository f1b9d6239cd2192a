package chunking

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// splitMarkdown is structure-aware chunking for markdown. Top-level blocks
// are walked in order; headings up to the strategy's capture depth open a
// new section and record their title under h{level}. Each section body is
// token-split within the strategy's size budget, so a long section still
// produces multiple chunks that share heading metadata.
func (c *Chunker) splitMarkdown(source string, s Strategy) []Chunk {
	depth := s.HeadingDepth
	if depth <= 0 || depth > 6 {
		depth = DefaultHeadingDepth
	}

	src := []byte(source)
	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(src))

	var (
		chunks   []Chunk
		body     bytes.Buffer
		headings = make(map[string]string)
	)

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if text == "" {
			return
		}
		chunks = append(chunks, c.splitTokens(text, s, headings)...)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level > depth {
			// Non-heading blocks (and headings below the capture depth)
			// accumulate into the current section body.
			if text := blockText(n, src); text != "" {
				if body.Len() > 0 {
					body.WriteString("\n\n")
				}
				body.WriteString(text)
			}
			continue
		}

		flush()

		title := strings.TrimSpace(string(headingText(heading, src)))
		headings = cloneMetadata(headings)
		headings[fmt.Sprintf("h%d", heading.Level)] = title
		// A new section at level N invalidates captured deeper levels.
		for l := heading.Level + 1; l <= 6; l++ {
			delete(headings, fmt.Sprintf("h%d", l))
		}
	}
	flush()

	return chunks
}

// headingText collects the inline text of a heading node.
func headingText(h *ast.Heading, src []byte) []byte {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
		} else {
			buf.WriteString(blockText(c, src))
		}
	}
	return buf.Bytes()
}

// blockText gets the raw text content of a goldmark AST node, including the
// markdown markers of sub-headings, by slicing the source line segments.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
			buf.WriteByte('\n')
		}
		// Container blocks (lists, quotes) keep their text on children.
		if lines.Len() == 0 {
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t := blockText(c, src); t != "" {
					buf.WriteString(t)
					buf.WriteByte('\n')
				}
			}
		}
	} else {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Value(src))
				if t.HardLineBreak() || t.SoftLineBreak() {
					buf.WriteByte('\n')
				}
			} else {
				buf.WriteString(blockText(c, src))
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
