package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
)

var pdfcpuOnce sync.Once

// PageCount opens path as a PDF and returns its page count. It fails for
// files that are not readable PDFs.
func PageCount(path string) (int, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return 0, fmt.Errorf("%s: not a .pdf file", filepath.Base(path))
	}
	// pdfcpu writes a config dir under the user's home unless told not to.
	pdfcpuOnce.Do(pdfapi.DisableConfigDir)

	n, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}

// UploadFile checks that path is a readable PDF and uploads it.
func (d *Driver) UploadFile(ctx context.Context, path, apiKey string, onProgress func(Progress)) (api.ProDocumentSummary, error) {
	pages, err := PageCount(path)
	if err != nil {
		return api.ProDocumentSummary{}, &Error{Stage: StageInit, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return api.ProDocumentSummary{}, &Error{Stage: StageInit, Err: fmt.Errorf("open file: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return api.ProDocumentSummary{}, &Error{Stage: StageInit, Err: fmt.Errorf("stat file: %w", err)}
	}

	d.log.Debug("upload preflight",
		zap.String("file", info.Name()),
		zap.Int("pages", pages),
		zap.Int64("size", info.Size()),
	)
	return d.Upload(ctx, info.Name(), f, info.Size(), apiKey, onProgress)
}
