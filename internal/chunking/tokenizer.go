package chunking

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer converts text to and from token sequences.
// The consumer-defined interface keeps the chunker testable without
// loading a real BPE encoding.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// tokenizerEncoding is the BPE encoding used for chunk sizing.
const tokenizerEncoding = "cl100k_base"

// estimatedCharsPerToken backs the fallback tokenizer: English prose
// averages roughly four characters per token.
const estimatedCharsPerToken = 4

// NewTokenizer returns a cl100k_base tokenizer, falling back to a
// character-group estimator when the encoding cannot be loaded (the
// tiktoken data may be unavailable offline). Chunk sizes are budgets,
// not contracts, so the estimate is an acceptable degradation.
func NewTokenizer() Tokenizer {
	enc, err := tiktoken.GetEncoding(tokenizerEncoding)
	if err != nil {
		return newEstimateTokenizer()
	}
	return tiktokenTokenizer{enc: enc}
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// estimateTokenizer treats every run of estimatedCharsPerToken runes as one
// token. Token ids index an interning table of rune groups so that Decode
// reproduces the original text. Safe for concurrent use.
type estimateTokenizer struct {
	mu     sync.Mutex
	ids    map[string]int
	groups []string
}

func newEstimateTokenizer() *estimateTokenizer {
	return &estimateTokenizer{ids: make(map[string]int)}
}

func (t *estimateTokenizer) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, 0, (len(runes)+estimatedCharsPerToken-1)/estimatedCharsPerToken)

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < len(runes); i += estimatedCharsPerToken {
		end := min(i+estimatedCharsPerToken, len(runes))
		group := string(runes[i:end])
		id, ok := t.ids[group]
		if !ok {
			id = len(t.groups)
			t.groups = append(t.groups, group)
			t.ids[group] = id
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (t *estimateTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b []byte
	for _, id := range tokens {
		if id >= 0 && id < len(t.groups) {
			b = append(b, t.groups[id]...)
		}
	}
	return string(b)
}
