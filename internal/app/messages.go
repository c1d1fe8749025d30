package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/deepscan/internal/api"
	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/history"
	"github.com/jwulff/deepscan/internal/scan"
	"github.com/jwulff/deepscan/internal/upload"
)

// DocumentsLoadedMsg carries the document list for the current mode.
type DocumentsLoadedMsg struct {
	Documents []DocumentItem
	Err       error
}

// HistoryLoadedMsg carries past analyses, most recent first.
type HistoryLoadedMsg struct {
	Entries []history.Entry
	Err     error
}

// SelectionChangedMsg is sent whenever the set of selected documents changes.
type SelectionChangedMsg struct {
	IDs []string
}

// ResumeResolvedMsg carries the resume decision for a selection.
type ResumeResolvedMsg struct {
	Selection []string
	Resume    history.Resume
}

// ScanUpdateMsg carries the scan state after one applied event.
type ScanUpdateMsg struct {
	Gen   int
	State scan.State
	next  <-chan tea.Msg
}

// ScanEndedMsg is sent when a scan run returns. Err is its outcome, or the
// error that kept the stream from opening.
type ScanEndedMsg struct {
	Gen int
	Err error
}

// AnalysisLoadedMsg carries a full analysis fetched after a scan or picked
// from history.
type AnalysisLoadedMsg struct {
	Entry    history.Entry
	Err      error
	FromScan bool
}

// ChatRepliedMsg carries the session after a chat round trip. Gen ties it
// to the conversation it was sent from.
type ChatRepliedMsg struct {
	Gen     int
	Session chat.Session
	Err     error
}

// ChatLoadedMsg carries a stored conversation picked on the command line.
type ChatLoadedMsg struct {
	Session chat.Session
	Err     error
}

// UploadProgressMsg reports chunk progress of a pro upload.
type UploadProgressMsg struct {
	Progress upload.Progress
	next     <-chan tea.Msg
}

// UploadDoneMsg is sent when an upload finishes or fails.
type UploadDoneMsg struct {
	Name     string
	Pages    int
	Document *api.Document
	Pro      *api.ProDocumentSummary
	Err      error
}

// RubricMsg carries a generated rubric.
type RubricMsg struct {
	Text string
	Err  error
}

// DocumentDeletedMsg is sent after a delete call.
type DocumentDeletedMsg struct {
	ID  string
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
