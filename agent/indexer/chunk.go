package indexer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultMaxTokens is the per-chunk token ceiling spec.md §4.7 names
// (cl100k_base, max_tokens=512).
const DefaultMaxTokens = 512

// chunkEncodingCache mirrors kadirpekel-hector's pkg/utils.TokenCounter
// package-level cache: tiktoken encodings are expensive to build and safe
// to share across every Chunker for a given model name.
var (
	chunkEncodingCache = map[string]*tiktoken.Tiktoken{}
	chunkEncodingMu    sync.RWMutex
)

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	chunkEncodingMu.RLock()
	if enc, ok := chunkEncodingCache[model]; ok {
		chunkEncodingMu.RUnlock()
		return enc, nil
	}
	chunkEncodingMu.RUnlock()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("indexer: failed to load tiktoken encoding: %w", err)
		}
	}

	chunkEncodingMu.Lock()
	chunkEncodingCache[model] = enc
	chunkEncodingMu.Unlock()
	return enc, nil
}

// Chunk is one token-bounded slice of a file's content.
type Chunk struct {
	Text       string
	StartLine  int // 0-indexed, inclusive
	EndLine    int // 0-indexed, inclusive
	TokenCount int
}

// Chunker splits file content into Chunks no larger than MaxTokens,
// breaking only at line boundaries (spec.md §4.7: "split at line
// boundaries" rather than mid-line, so a chunk is always whole lines).
type Chunker struct {
	Model     string // defaults to "gpt-4" equivalent encoding, falling back to cl100k_base
	MaxTokens int
}

// NewChunker builds a Chunker with spec.md's default settings.
func NewChunker(model string) *Chunker {
	return &Chunker{Model: model, MaxTokens: DefaultMaxTokens}
}

// Split breaks content into line-boundary-respecting chunks, each at most
// MaxTokens tokens. A single line that alone exceeds MaxTokens still
// becomes its own (oversized) chunk rather than being split mid-line or
// dropped — spec.md §4.7 has no provision for token-level line splitting.
func (c *Chunker) Split(content string) ([]Chunk, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	enc, err := encodingFor(c.Model)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var cur []string
	curTokens := 0
	curStart := 0

	flush := func(endLine int) {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:       strings.Join(cur, "\n"),
			StartLine:  curStart,
			EndLine:    endLine,
			TokenCount: curTokens,
		})
		cur = nil
		curTokens = 0
	}

	for i, line := range lines {
		lineTokens := len(enc.Encode(line, nil, nil))
		if len(cur) > 0 && curTokens+lineTokens > maxTokens {
			flush(i - 1)
			curStart = i
		}
		cur = append(cur, line)
		curTokens += lineTokens
	}
	flush(len(lines) - 1)

	return chunks, nil
}
