// Package scan folds the deep-scan event stream into a progress model.
//
// Events arrive in order from the stream decoder. Reduce applies one event
// to a State and returns the next State; it never mutates its input, so
// every snapshot handed to the UI stays valid.
package scan

import "encoding/json"

// Kind names an event type as it appears in the "type" field on the wire.
type Kind string

const (
	KindStart         Kind = "start"
	KindDocumentStart Kind = "document_start"
	KindBatchStart    Kind = "batch_start"
	KindProgress      Kind = "progress"
	KindThinking      Kind = "thinking"
	KindFinding       Kind = "finding"
	KindBatchDone     Kind = "batch_done"
	KindError         Kind = "error"
	KindDone          Kind = "done"
)

// Event is one decoded record from a scan stream.
type Event interface {
	Kind() Kind
}

// PageRange is an inclusive page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// StartEvent opens a scan.
type StartEvent struct {
	AnalysisID      string
	TotalPages      int
	Documents       []string
	BatchMode       bool
	Parts           []PageRange
	EstimatedTokens int
	RubricText      string
	RelevanceMode   string
}

// DocumentStartEvent marks the start of one document in a multi-document scan.
type DocumentStartEvent struct {
	Document string
	Pages    int
}

// BatchStartEvent marks the start of a server-side batch. TotalBatches is
// zero when the server did not report a total.
type BatchStartEvent struct {
	Batch        int
	TotalBatches int
	Pages        PageRange
}

// ProgressEvent is a server-reported progress update. Percent is nil when
// the server sent no explicit value.
type ProgressEvent struct {
	Percent      *int
	Status       string
	Batch        int
	TotalBatches int
	Pages        string
}

// ThinkingEvent carries the model's reasoning for a page range.
type ThinkingEvent struct {
	Pages   string
	Thought string
}

// FindingEvent carries one finding.
type FindingEvent struct {
	Finding Finding
}

// BatchDoneEvent marks the end of a batch.
type BatchDoneEvent struct {
	Batch int
}

// ErrorEvent is terminal.
type ErrorEvent struct {
	Message string
	Batch   int
}

// DoneEvent is terminal. Pro scans inline the result; standard scans
// only report AnalysisID and the caller fetches the full analysis.
type DoneEvent struct {
	AnalysisID    string
	ModelUsed     string
	Result        json.RawMessage
	TotalFindings int
	Coverage      *Coverage
}

// Coverage summarizes how much of the corpus a standard scan read.
type Coverage struct {
	TotalPages       int     `json:"total_pages"`
	PagesAnalyzed    int     `json:"pages_analyzed"`
	PagesWithFinding int     `json:"pages_with_findings"`
	CoveragePercent  float64 `json:"coverage_percent"`
}

func (StartEvent) Kind() Kind         { return KindStart }
func (DocumentStartEvent) Kind() Kind { return KindDocumentStart }
func (BatchStartEvent) Kind() Kind    { return KindBatchStart }
func (ProgressEvent) Kind() Kind      { return KindProgress }
func (ThinkingEvent) Kind() Kind      { return KindThinking }
func (FindingEvent) Kind() Kind       { return KindFinding }
func (BatchDoneEvent) Kind() Kind     { return KindBatchDone }
func (ErrorEvent) Kind() Kind         { return KindError }
func (DoneEvent) Kind() Kind          { return KindDone }
