package loader

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

const pageExtractTimeout = 10 * time.Second

func extractText(path string, kind docType) (string, error) {
	switch kind {
	case typePDF:
		return extractPDF(path)
	case typeCatFile:
		return extractWithCat(path)
	default:
		return "", fmt.Errorf("no extractor for %s", kind)
	}
}

func extractPDF(path string) (string, error) {
	f, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []string
	numPages := f.NumPage()
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := protectExtract(page)
		if err != nil {
			// A corrupt page should not sink the document.
			continue
		}
		pages = append(pages, content)
	}
	if len(pages) == 0 {
		return "", errors.New("no readable pages")
	}
	return strings.Join(pages, "\n"), nil
}

// cat reads .docx, .odt, .rtf and plaintext files.
func extractWithCat(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("failed to extract document: %w", err)
	}
	return text, nil
}

// protectExtract bounds a single page extraction; the pdf parser can spin
// on malformed content streams.
func protectExtract(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(pageExtractTimeout):
		return "", errors.New("page extraction timeout")
	}
}
