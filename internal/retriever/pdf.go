package retriever

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageText is the extracted text of a single PDF page.
type PageText struct {
	// PageNumber is 1-indexed.
	PageNumber int
	// Text is the extracted page content. Empty when extraction produced
	// nothing for the page.
	Text string
}

// PDFExtractor extracts per-page text from a PDF file on disk.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]PageText, error)
}

// PDFCPUExtractor implements PDFExtractor using pdfcpu.
type PDFCPUExtractor struct {
	tempDir string
}

var _ PDFExtractor = (*PDFCPUExtractor)(nil)

// NewPDFCPUExtractor creates a pdfcpu-backed extractor. Page content is
// staged under a per-process temp directory.
func NewPDFCPUExtractor() *PDFCPUExtractor {
	tempDir := filepath.Join(os.TempDir(), "taleemd-pdf")
	_ = os.MkdirAll(tempDir, 0o755)
	return &PDFCPUExtractor{tempDir: tempDir}
}

// ExtractPages extracts text page by page. Pages whose content cannot be
// read are returned with empty text rather than failing the whole document.
func (e *PDFCPUExtractor) ExtractPages(ctx context.Context, path string) ([]PageText, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pdf %s: %w", path, err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp(e.tempDir, "pages_")
	if err != nil {
		return nil, fmt.Errorf("creating extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extracting pdf content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
			continue
		}
		if _, err := fmt.Sscanf(entry.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	pages := make([]PageText, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pages = append(pages, PageText{
			PageNumber: pageNum,
			Text:       pageTexts[pageNum],
		})
	}
	return pages, nil
}
