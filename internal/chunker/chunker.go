// Package chunker splits document text into overlapping word-based chunks,
// preferring to cut at separator boundaries.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunker splits text into overlapping chunks. Size and overlap are measured
// in words; separator marks preferred cut points (typically "\n\n").
type Chunker struct {
	size      int
	overlap   int
	separator string
}

// Piece is one emitted chunk. Text is a contiguous span of the original
// input, so concatenating the non-overlapping parts of consecutive pieces
// reconstructs the input.
type Piece struct {
	Text       string
	Index      int
	CharOffset int
	WordCount  int
}

// New creates a chunker. Overlap must be strictly less than size.
func New(size, overlap int, separator string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap (%d) must be less than size (%d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap, separator: separator}, nil
}

// span is a word's position in the original text.
type span struct {
	start, end int
}

// Chunk splits text into pieces. Empty or all-whitespace input yields nil.
// Input shorter than the chunk size yields exactly one piece. Each piece
// after the first repeats the trailing overlap words of the previous piece.
func (c *Chunker) Chunk(text string) []Piece {
	words := wordSpans(text)
	if len(words) == 0 {
		return nil
	}

	var pieces []Piece
	i := 0
	for {
		end := i + c.size
		if end >= len(words) {
			if i == 0 {
				// The whole input fits in one chunk; keep it verbatim,
				// surrounding whitespace included.
				return []Piece{{Text: text, Index: 0, CharOffset: 0, WordCount: len(words)}}
			}
			pieces = append(pieces, c.piece(text, words, i, len(words), len(pieces)))
			break
		}
		if cut := c.separatorCut(text, words, i, end); cut > 0 {
			end = cut
		}
		pieces = append(pieces, c.piece(text, words, i, end, len(pieces)))
		i = end - c.overlap
	}
	return pieces
}

func (c *Chunker) piece(text string, words []span, start, end, index int) Piece {
	return Piece{
		Text:       text[words[start].start:words[end-1].end],
		Index:      index,
		CharOffset: words[start].start,
		WordCount:  end - start,
	}
}

// separatorCut looks backwards from the hard size boundary for a word gap
// containing the separator, so chunks break at paragraph boundaries when one
// is near. Returns 0 when no usable boundary exists. The cut must leave more
// than overlap words in the chunk so the next window always advances.
func (c *Chunker) separatorCut(text string, words []span, start, hardEnd int) int {
	if c.separator == "" {
		return 0
	}
	for j := hardEnd; j > start+c.overlap+1; j-- {
		gap := text[words[j-1].end:words[j].start]
		if strings.Contains(gap, c.separator) {
			return j
		}
	}
	return 0
}

// wordSpans returns the positions of whitespace-separated words in text.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
