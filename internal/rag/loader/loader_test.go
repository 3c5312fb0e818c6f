package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
)

func TestGetDocType(t *testing.T) {
	tests := []struct {
		path     string
		expected docType
	}{
		{"handbook.pdf", typePDF},
		{"POLICY.PDF", typePDF},
		{"fba.docx", typeCatFile},
		{"notes.txt", typeCatFile},
		{"old.rtf", typeCatFile},
		{"image.png", typeErr},
		{"no_extension", typeErr},
	}

	for _, tt := range tests {
		if got := getDocType(tt.path); got != tt.expected {
			t.Errorf("getDocType(%s) = %v; want %v", tt.path, got, tt.expected)
		}
	}
}

func TestLoad_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overtime.txt")
	os.WriteFile(path, []byte("Overtime requires manager approval."), 0644)

	doc, err := New().Load(path, ragModel.CorpusGeneral)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Name != "overtime.txt" {
		t.Errorf("Name = %q", doc.Name)
	}
	if doc.Corpus != ragModel.CorpusGeneral {
		t.Errorf("Corpus = %q", doc.Corpus)
	}
	if doc.Text != "Overtime requires manager approval." {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.Id == "" || doc.ExtractedAt.IsZero() {
		t.Error("document missing id or extraction timestamp")
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	os.WriteFile(path, []byte{0x89, 0x50}, 0644)

	_, err := New().Load(path, ragModel.CorpusGeneral)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestLoad_EmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.txt")
	os.WriteFile(path, []byte("   \n"), 0644)

	if _, err := New().Load(path, ragModel.CorpusGeneral); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestLoadDir_BadDocumentDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "good.txt"), []byte("Benefits enrollment opens in November."), 0644)
	os.WriteFile(filepath.Join(dir, "bad.png"), []byte{0x00}, 0644)
	os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0644)

	docs, skips, err := New().LoadDir(dir, ragModel.CorpusBenefits)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 loaded document, got %d", len(docs))
	}
	if len(skips) != 2 {
		t.Errorf("expected 2 skips, got %d: %+v", len(skips), skips)
	}
	for _, s := range skips {
		if s.Reason == "" {
			t.Errorf("skip for %s has no reason", s.Path)
		}
	}
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	if _, _, err := New().LoadDir("/nonexistent/corpus/dir", ragModel.CorpusGeneral); err == nil {
		t.Error("expected error for missing directory")
	}
}
