package chunker

import (
	"fmt"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/google/uuid"
)

// Chunker splits extracted document text into overlapping passages. Size
// and overlap are in characters.
type Chunker struct {
	size    int
	overlap int
}

// New rejects a bad size/overlap pair at construction so the mistake
// surfaces at startup, not mid-ingestion.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap cannot be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split covers the whole document with ordered, overlapping chunks. A
// document shorter than one chunk yields exactly one chunk. Windows prefer
// to end on a word boundary so embeddings don't see half words.
func (c *Chunker) Split(doc ragModel.Document) []ragModel.Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}

	var chunks []ragModel.Chunk
	start := 0
	ordinal := 0

	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else if cut := strings.LastIndex(text[start:end], " "); cut > 0 {
			end = start + cut
		}

		span := strings.TrimSpace(text[start:end])
		if span != "" {
			chunks = append(chunks, ragModel.Chunk{
				Id:      uuid.New().String(),
				DocId:   doc.Id,
				DocName: doc.Name,
				Corpus:  doc.Corpus,
				Ordinal: ordinal,
				Text:    span,
				Overlap: c.overlap,
			})
			ordinal++
		}

		if end == len(text) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Word-boundary trimming shrank the window below the overlap;
			// move forward anyway so the loop terminates.
			next = end
		}
		start = next
	}

	return chunks
}
