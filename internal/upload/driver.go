// Package upload drives the chunked init/chunk/complete upload protocol used
// for large PDFs.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
)

// DefaultChunkSize is the fixed part size of a chunked upload.
const DefaultChunkSize = 5 * 1024 * 1024

// ErrUploadFailed matches every error returned by Upload.
var ErrUploadFailed = errors.New("upload failed")

// Uploader is the server side of the protocol. *api.Client implements it.
type Uploader interface {
	InitUpload(ctx context.Context, filename string, size int64) (string, error)
	SendChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (api.ChunkAck, error)
	CompleteUpload(ctx context.Context, uploadID, apiKey string) (api.ProDocumentSummary, error)
}

// Range is the slice of a progress bar the upload is allowed to fill.
type Range struct {
	Lo, Hi int
}

// Options configures a Driver. Zero values take the defaults.
type Options struct {
	ChunkSize int
	Range     Range
}

// Progress is reported after every acknowledged chunk.
type Progress struct {
	UploadID   string
	BytesSent  int64
	TotalBytes int64
	Chunk      int
	Chunks     int
	Percent    int // scaled into Options.Range
}

// Stage names the protocol step that failed.
type Stage string

const (
	StageInit     Stage = "init"
	StageRead     Stage = "read"
	StageChunk    Stage = "chunk"
	StageComplete Stage = "complete"
)

// Error describes a failed upload. It matches ErrUploadFailed.
type Error struct {
	Stage    Stage
	UploadID string
	Offset   int64
	Err      error
}

func (e *Error) Error() string {
	if e.Stage == StageChunk || e.Stage == StageRead {
		return fmt.Sprintf("upload failed: %s at offset %d: %v", e.Stage, e.Offset, e.Err)
	}
	return fmt.Sprintf("upload failed: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrUploadFailed, e.Err} }

// Driver uploads one file at a time, chunk by chunk.
type Driver struct {
	up   Uploader
	opts Options
	log  *zap.Logger
}

// NewDriver returns a Driver using up.
func NewDriver(up Uploader, opts Options, log *zap.Logger) *Driver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Range == (Range{}) {
		opts.Range = Range{Lo: 0, Hi: 60}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{up: up, opts: opts, log: log}
}

// Upload sends size bytes from r in order, one chunk in flight at a time,
// then completes the upload with apiKey. Any failure aborts the remaining
// chunks; the upload is not resumable. onProgress may be nil.
func (d *Driver) Upload(ctx context.Context, name string, r io.Reader, size int64, apiKey string, onProgress func(Progress)) (api.ProDocumentSummary, error) {
	if size <= 0 {
		return api.ProDocumentSummary{}, &Error{Stage: StageInit, Err: fmt.Errorf("empty file %q", name)}
	}

	uploadID, err := d.up.InitUpload(ctx, name, size)
	if err != nil {
		return api.ProDocumentSummary{}, &Error{Stage: StageInit, Err: err}
	}

	log := d.log.With(zap.String("upload_id", uploadID), zap.String("file", name))
	chunks := int((size + int64(d.opts.ChunkSize) - 1) / int64(d.opts.ChunkSize))
	buf := make([]byte, d.opts.ChunkSize)

	var sent int64
	for i := 0; sent < size; i++ {
		n := int(min(int64(d.opts.ChunkSize), size-sent))
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			log.Warn("read chunk", zap.Int64("offset", sent), zap.Error(err))
			return api.ProDocumentSummary{}, &Error{Stage: StageRead, UploadID: uploadID, Offset: sent, Err: err}
		}

		if _, err := d.up.SendChunk(ctx, uploadID, sent, buf[:n]); err != nil {
			log.Warn("send chunk", zap.Int64("offset", sent), zap.Error(err))
			return api.ProDocumentSummary{}, &Error{Stage: StageChunk, UploadID: uploadID, Offset: sent, Err: err}
		}
		sent += int64(n)

		if onProgress != nil {
			onProgress(Progress{
				UploadID:   uploadID,
				BytesSent:  sent,
				TotalBytes: size,
				Chunk:      i + 1,
				Chunks:     chunks,
				Percent:    d.opts.Range.scale(sent, size),
			})
		}
	}

	sum, err := d.up.CompleteUpload(ctx, uploadID, apiKey)
	if err != nil {
		log.Warn("complete upload", zap.Error(err))
		return api.ProDocumentSummary{}, &Error{Stage: StageComplete, UploadID: uploadID, Err: err}
	}

	log.Info("upload complete",
		zap.String("pro_document_id", sum.ProDocumentID),
		zap.Int("total_pages", sum.TotalPages),
		zap.Int("chunks", chunks),
	)
	return sum, nil
}

func (r Range) scale(sent, total int64) int {
	frac := float64(sent) / float64(total)
	return r.Lo + int(math.Round(frac*float64(r.Hi-r.Lo)))
}
