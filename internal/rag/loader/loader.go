package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
	"github.com/google/uuid"
)

// ErrUnsupported marks a file whose extension no extractor handles. Batch
// ingestion turns it into a skip; the upload path turns it into a 400.
var ErrUnsupported = errors.New("unsupported document format")

// Skip records one document that failed extraction. The batch carries on.
type Skip struct {
	Path   string
	Reason string
}

type docType string

const (
	typePDF     docType = "PDF"
	typeCatFile docType = "DOCX" //docx, txt, rtf, odt all go through cat
	typeErr     docType = "ERROR"
)

type Loader struct {
	logger *logger_i.Logger
}

func New() *Loader {
	return &Loader{logger: logger_i.NewLogger("Document Loader")}
}

// Load extracts plain text from a single file. It never panics past this
// boundary; any parser failure comes back as an error for the caller to
// classify.
func (l *Loader) Load(path string, corpus ragModel.Corpus) (ragModel.Document, error) {
	kind := getDocType(path)
	if kind == typeErr {
		return ragModel.Document{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	text, err := extractText(path, kind)
	if err != nil {
		return ragModel.Document{}, fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(text) == "" {
		return ragModel.Document{}, fmt.Errorf("document %s produced no text", filepath.Base(path))
	}

	return ragModel.Document{
		Id:          uuid.New().String(),
		Name:        filepath.Base(path),
		Path:        path,
		Corpus:      corpus,
		Text:        text,
		ExtractedAt: time.Now(),
	}, nil
}

// LoadDir extracts every readable document under dir. A single bad file
// becomes a Skip and the rest of the batch continues; the returned error is
// only for an unreadable directory.
func (l *Loader) LoadDir(dir string, corpus ragModel.Corpus) ([]ragModel.Document, []Skip, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading corpus directory %s: %w", dir, err)
	}

	var docs []ragModel.Document
	var skips []Skip
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := l.Load(path, corpus)
		if err != nil {
			l.logger.Warn("Skipping document", "path", path, "reason", err.Error())
			skips = append(skips, Skip{Path: path, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, skips, nil
}

func getDocType(path string) docType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return typePDF
	case ".docx", ".txt", ".rtf", ".odt":
		return typeCatFile
	default:
		return typeErr
	}
}
