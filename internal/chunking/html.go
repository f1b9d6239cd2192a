package chunking

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlBlockSelector matches the elements that carry readable content, in
// document order. Headings switch sections; the rest accumulates.
const htmlBlockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th"

// splitHTML is structure-aware chunking for HTML. Heading elements open a
// new section recorded under h{level}; other text-bearing blocks accumulate
// into the current section, which is then token-split within the size
// budget. Unparseable input degrades to plain token chunking of the raw
// text rather than failing the pipeline.
func (c *Chunker) splitHTML(source string, s Strategy) []Chunk {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		c.logger.Warn("html parse failed, falling back to token chunking", "error", err)
		return c.splitTokens(source, s, nil)
	}

	var (
		chunks   []Chunk
		body     []string
		headings = make(map[string]string)
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n\n"))
		body = body[:0]
		if text == "" {
			return
		}
		chunks = append(chunks, c.splitTokens(text, s, headings)...)
	}

	doc.Find(htmlBlockSelector).Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}

		if level, ok := headingLevel(tag); ok {
			flush()
			headings = cloneMetadata(headings)
			headings[fmt.Sprintf("h%d", level)] = text
			for l := level + 1; l <= 6; l++ {
				delete(headings, fmt.Sprintf("h%d", l))
			}
			return
		}

		// Nested blocks (li inside li, p inside blockquote) would repeat
		// their parent's text; only take leaves of the selector set.
		if sel.Find(htmlBlockSelector).Length() > 0 {
			return
		}
		body = append(body, text)
	})
	flush()

	if len(chunks) == 0 {
		// Markup without any matched blocks still may carry text.
		if text := strings.TrimSpace(doc.Text()); text != "" {
			return c.splitTokens(text, s, nil)
		}
	}
	return chunks
}

func headingLevel(tag string) (int, bool) {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0'), true
	}
	return 0, false
}
