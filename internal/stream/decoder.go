// Package stream decodes the server-sent event stream of a deep scan into
// typed scan events.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/scan"
)

const (
	dataPrefix = "data:"

	// Pro results arrive inline in the done frame and can be large.
	maxLineSize = 16 * 1024 * 1024
)

// Decoder reads "data: {json}" frames one line at a time. Lines that do not
// decode to a known event are skipped and counted, never returned as errors.
// So are lines longer than the line limit. Blank frame separators are
// ignored without counting.
type Decoder struct {
	rc      io.ReadCloser
	br      *bufio.Reader
	log     *zap.Logger
	maxLine int
	line    []byte

	skipped   atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger logs skipped lines at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(d *Decoder) { d.log = log }
}

// NewDecoder wraps rc. The decoder owns rc and closes it on Close.
func NewDecoder(rc io.ReadCloser, opts ...Option) *Decoder {
	d := &Decoder{
		rc:      rc,
		br:      bufio.NewReaderSize(rc, 64*1024),
		log:     zap.NewNop(),
		maxLine: maxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event in stream order. It returns io.EOF once the
// stream ends or the decoder is closed. Any other error is a transport
// failure.
func (d *Decoder) Next() (scan.Event, error) {
	for {
		if d.closed.Load() {
			return nil, io.EOF
		}
		line, err := d.readLine()
		switch {
		case errors.Is(err, errLineTooLong):
			d.skipped.Add(1)
			d.log.Debug("skip stream line", zap.Error(err))
			continue
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case err != nil:
			if d.closed.Load() {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		ev, err := decodeLine(line)
		if err != nil {
			if !errors.Is(err, errBlank) {
				d.skipped.Add(1)
				d.log.Debug("skip stream line", zap.Error(err))
			}
			continue
		}
		return ev, nil
	}
}

// readLine returns the next line without its line ending. A line longer
// than maxLine bytes, ending included, is consumed up to its newline and
// reported as errLineTooLong. An unterminated last line is returned as a
// line; the call after it returns io.EOF.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	tooLong := false
	for {
		chunk, err := d.br.ReadSlice('\n')
		if !tooLong {
			if len(d.line)+len(chunk) > d.maxLine {
				tooLong = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		if err != nil && len(d.line) == 0 {
			return nil, io.EOF
		}
		line := bytes.TrimSuffix(d.line, []byte("\n"))
		return bytes.TrimSuffix(line, []byte("\r")), nil
	}
}

// Close releases the underlying stream. A blocked Next returns io.EOF.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.rc.Close()
	})
	return d.closeErr
}

// Skipped returns how many payload lines were dropped as malformed or of an
// unknown type.
func (d *Decoder) Skipped() int {
	return int(d.skipped.Load())
}

var (
	errBlank       = errors.New("blank line")
	errNoPayload   = errors.New("no data payload")
	errUnknownType = errors.New("unknown event type")
	errLineTooLong = errors.New("line exceeds limit")
)

// decodeLine parses one line without its line ending.
func decodeLine(line []byte) (scan.Event, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, errBlank
	}
	rest, ok := bytes.CutPrefix(line, []byte(dataPrefix))
	if !ok {
		return nil, errNoPayload
	}
	rest = bytes.TrimSpace(rest)
	if len(rest) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var w wireEvent
	if err := json.Unmarshal(rest, &w); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return w.event()
}

// wireEvent is the union of every field any event type carries.
type wireEvent struct {
	Type scan.Kind `json:"type"`

	AnalysisID      string           `json:"analysis_id"`
	TotalPages      int              `json:"total_pages"`
	Documents       []string         `json:"documents"`
	BatchMode       bool             `json:"batch_mode"`
	Parts           []scan.PageRange `json:"parts"`
	EstimatedTokens int              `json:"estimated_tokens"`
	RubricText      string           `json:"rubric_text"`
	RelevanceMode   string           `json:"relevance_mode"`
	Document        string           `json:"document"`
	Batch           int              `json:"batch"`
	TotalBatches    int              `json:"total_batches"`
	Pages           json.RawMessage  `json:"pages"`
	Percent         *float64         `json:"percent"`
	Status          string           `json:"status"`
	Thought         string           `json:"thought"`
	Finding         *scan.Finding    `json:"finding"`
	Message         string           `json:"message"`
	ModelUsed       string           `json:"model_used"`
	Result          json.RawMessage  `json:"result"`
	TotalFindings   int              `json:"total_findings"`
	Coverage        *scan.Coverage   `json:"coverage"`
}

func (w wireEvent) event() (scan.Event, error) {
	switch w.Type {
	case scan.KindStart:
		return scan.StartEvent{
			AnalysisID:      w.AnalysisID,
			TotalPages:      w.TotalPages,
			Documents:       w.Documents,
			BatchMode:       w.BatchMode,
			Parts:           w.Parts,
			EstimatedTokens: w.EstimatedTokens,
			RubricText:      w.RubricText,
			RelevanceMode:   w.RelevanceMode,
		}, nil

	case scan.KindDocumentStart:
		var pages int
		if len(w.Pages) > 0 {
			if err := json.Unmarshal(w.Pages, &pages); err != nil {
				return nil, fmt.Errorf("document_start pages: %w", err)
			}
		}
		return scan.DocumentStartEvent{Document: w.Document, Pages: pages}, nil

	case scan.KindBatchStart:
		var pr scan.PageRange
		if len(w.Pages) > 0 {
			if err := json.Unmarshal(w.Pages, &pr); err != nil {
				return nil, fmt.Errorf("batch_start pages: %w", err)
			}
		}
		return scan.BatchStartEvent{Batch: w.Batch, TotalBatches: w.TotalBatches, Pages: pr}, nil

	case scan.KindProgress:
		ev := scan.ProgressEvent{
			Status:       w.Status,
			Batch:        w.Batch,
			TotalBatches: w.TotalBatches,
			Pages:        pagesText(w.Pages),
		}
		if w.Percent != nil {
			p := int(math.Round(*w.Percent))
			ev.Percent = &p
		}
		return ev, nil

	case scan.KindThinking:
		return scan.ThinkingEvent{Pages: pagesText(w.Pages), Thought: w.Thought}, nil

	case scan.KindFinding:
		if w.Finding == nil {
			return nil, fmt.Errorf("finding event without finding")
		}
		return scan.FindingEvent{Finding: *w.Finding}, nil

	case scan.KindBatchDone:
		return scan.BatchDoneEvent{Batch: w.Batch}, nil

	case scan.KindError:
		return scan.ErrorEvent{Message: w.Message, Batch: w.Batch}, nil

	case scan.KindDone:
		return scan.DoneEvent{
			AnalysisID:    w.AnalysisID,
			ModelUsed:     w.ModelUsed,
			Result:        w.Result,
			TotalFindings: w.TotalFindings,
			Coverage:      w.Coverage,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, w.Type)
}

// pagesText renders a "pages" field that is either a string like "1-10" or
// a bare number.
func pagesText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
