package chunker

import (
	"strings"
	"testing"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap is fine", 100, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"zero size", 0, 0, true},
		{"negative overlap", 100, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_ShortDocumentYieldsOneChunk(t *testing.T) {
	c, _ := New(1000, 150)
	doc := ragModel.Document{Id: "d1", Name: "short.txt", Corpus: ragModel.CorpusGeneral, Text: "Overtime requires manager approval."}

	chunks := c.Split(doc)

	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != doc.Text {
		t.Errorf("chunk text = %q, want full document", chunks[0].Text)
	}
	if chunks[0].Ordinal != 0 {
		t.Errorf("ordinal = %d, want 0", chunks[0].Ordinal)
	}
}

func TestSplit_CoversDocumentWithOverlap(t *testing.T) {
	c, _ := New(50, 10)
	text := strings.Repeat("every word here counts toward the split total ", 20)
	doc := ragModel.Document{Id: "d2", Name: "long.txt", Corpus: ragModel.CorpusBenefits, Text: text}

	chunks := c.Split(doc)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, ch.Ordinal)
		}
		if ch.DocId != "d2" || ch.Corpus != ragModel.CorpusBenefits {
			t.Errorf("chunk %d lost document metadata: %+v", i, ch)
		}
		if len(ch.Text) > 50 {
			t.Errorf("chunk %d is %d chars, exceeds size", i, len(ch.Text))
		}
	}

	// Every word of the source must land in some chunk.
	joined := strings.Join(collectTexts(chunks), " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, word) {
			t.Fatalf("word %q missing from chunk coverage", word)
		}
	}
}

func TestSplit_ConsecutiveChunksShareText(t *testing.T) {
	c, _ := New(40, 15)
	doc := ragModel.Document{Id: "d3", Text: strings.Repeat("abcdefghi ", 30)}

	chunks := c.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// The tail of chunk n should reappear at the head of chunk n+1.
	tail := chunks[0].Text[len(chunks[0].Text)-5:]
	if !strings.Contains(chunks[1].Text, strings.TrimSpace(tail)) {
		t.Errorf("no overlap between %q and %q", chunks[0].Text, chunks[1].Text)
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	c, _ := New(100, 10)
	if got := c.Split(ragModel.Document{Id: "d4", Text: "   \n  "}); got != nil {
		t.Errorf("expected nil for blank document, got %d chunks", len(got))
	}
}

func collectTexts(chunks []ragModel.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
