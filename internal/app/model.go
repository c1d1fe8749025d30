package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/history"
	"github.com/jwulff/deepscan/internal/scan"
	"github.com/jwulff/deepscan/internal/upload"

	tea "github.com/charmbracelet/bubbletea"
)

// Backend is the part of the API the TUI calls directly. *api.Client
// implements it.
type Backend interface {
	ListDocuments(ctx context.Context) ([]api.Document, error)
	ListProDocuments(ctx context.Context) ([]api.ProDocument, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteProDocument(ctx context.Context, id, apiKey string) error
	UploadDocument(ctx context.Context, filename string, r io.Reader) (api.Document, error)
	AnalyzeStream(ctx context.Context, req api.AnalyzeRequest) (io.ReadCloser, error)
	ProAnalyzeStream(ctx context.Context, req api.ProAnalyzeRequest) (io.ReadCloser, error)
	GenerateRubric(ctx context.Context, req api.RubricRequest) (api.RubricResponse, error)
}

// Deps are the collaborators the model drives.
type Deps struct {
	API      Backend
	History  *history.Cache
	Uploader *upload.Driver
	Chat     chat.Sender

	// Transcripts loads stored conversations. Only needed with
	// Options.ChatSessionID.
	Transcripts chat.Client
	Log         *zap.Logger
}

// Options are the per-run settings.
type Options struct {
	Pro           bool
	APIKey        string
	Model         string
	Speed         string
	RelevanceMode string
	UploadPath    string // uploaded on start when set

	// Default page range of standard scans; zero leaves an end open.
	PageStart int
	PageEnd   int

	// Stored conversation to resume on start.
	ChatSessionID string
}

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusDocuments PanelFocus = iota
	FocusQuery
	FocusPages
	FocusChat
)

// DocumentItem is one row of the document panel.
type DocumentItem struct {
	ID    string
	Name  string
	Pages int
}

// resultView is a finished analysis on screen, either from a scan that just
// completed or restored from history.
type resultView struct {
	AnalysisID string
	Query      string
	ModelUsed  string
	Findings   []scan.Finding
	Restored   bool
}

// Model is the root bubbletea model for the deepscan TUI.
type Model struct {
	deps Deps
	opts Options

	// Documents
	documents []DocumentItem
	cursor    int
	selected  map[string]bool

	// Lifetime of the program; quit cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// Query
	query  textinput.Model
	pages  textinput.Model
	rubric string

	// Scan
	scanGen    int
	scanState  scan.State
	scanQuery  string
	scanDocs   []string
	analyzing  bool
	scanCancel context.CancelFunc
	progress   progress.Model

	// Result
	result       *resultView
	showPossible bool

	// History
	history       []history.Entry
	historyCursor int
	showHistory   bool

	// Chat
	chatGen     int
	chatSession chat.Session
	chatPending *chat.Pending
	chatInput   textarea.Model
	chatView    viewport.Model

	// Upload
	uploading  bool
	uploadName string
	uploadPct  int

	// UI state
	focusedPanel PanelFocus
	width        int
	height       int

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText string
}

// New creates a Model with default state.
func New(deps Deps, opts Options) Model {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	q := textinput.New()
	q.Placeholder = "What should the scan look for?"
	q.CharLimit = 1000
	q.Prompt = "Query: "

	pg := textinput.New()
	pg.Placeholder = "all"
	pg.CharLimit = 13
	pg.Prompt = "Pages: "
	pg.Width = pageInputWidth
	pg.SetValue(formatPageRange(opts.PageStart, opts.PageEnd))

	ta := textarea.New()
	ta.Placeholder = "Ask about the selected documents..."
	ta.CharLimit = 2000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Blur()

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		deps:         deps,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		selected:     map[string]bool{},
		query:        q,
		pages:        pg,
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		chatInput:    ta,
		chatView:     viewport.New(60, chatViewHeight),
		focusedPanel: FocusDocuments,
		statusText:   "Loading documents...",
	}
	if opts.UploadPath != "" {
		m.uploading = true
		m.uploadName = filepath.Base(opts.UploadPath)
		m.statusText = fmt.Sprintf("Uploading %s...", m.uploadName)
	}
	return m
}

// Init loads documents and history, and starts the upload and the chat
// resume given on the command line.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		loadDocumentsCmd(m.deps.API, m.opts.Pro),
		loadHistoryCmd(m.deps.History),
	}
	if m.opts.UploadPath != "" {
		cmds = append(cmds, uploadCmd(m.ctx, m.deps, m.opts, m.opts.UploadPath))
	}
	if m.opts.ChatSessionID != "" && m.deps.Transcripts != nil {
		cmds = append(cmds, loadChatCmd(m.ctx, m.deps.Transcripts, m.opts.ChatSessionID))
	}
	return tea.Batch(cmds...)
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case DocumentsLoadedMsg:
		if msg.Err != nil {
			m.deps.Log.Warn("load documents", zap.Error(msg.Err))
			m.statusText = "Backend unavailable"
			return m.setError(fmt.Sprintf("load documents: %v", msg.Err), true)
		}
		m.documents = msg.Documents
		if m.cursor >= len(m.documents) {
			m.cursor = max(0, len(m.documents)-1)
		}
		m.statusText = fmt.Sprintf("%d documents", len(m.documents))

		// Drop selections whose document is gone.
		kept := map[string]bool{}
		for _, d := range m.documents {
			if m.selected[d.ID] {
				kept[d.ID] = true
			}
		}
		if len(kept) != len(m.selected) {
			m.selected = kept
			return m, selectionChangedCmd(m.selection())
		}
		return m, nil

	case HistoryLoadedMsg:
		if msg.Err != nil {
			m.deps.Log.Warn("history unavailable", zap.Error(msg.Err))
			return m, nil
		}
		m.history = msg.Entries
		if m.historyCursor >= len(m.history) {
			m.historyCursor = max(0, len(m.history)-1)
		}
		return m, nil

	case SelectionChangedMsg:
		next := m.chatSession.ForSelection(msg.IDs)
		if !slices.Equal(next.DocumentIDs, m.chatSession.DocumentIDs) {
			m.chatGen++
			m.chatPending = nil
		}
		m.chatSession = next
		m.refreshChat()
		return m, resolveResumeCmd(m.deps.History, msg.IDs, m.analyzing)

	case ResumeResolvedMsg:
		if m.analyzing || !slices.Equal(msg.Selection, m.selection()) {
			return m, nil
		}
		switch msg.Resume.Action {
		case history.ResumeRestore:
			m.showEntry(*msg.Resume.Entry, true)
			m.statusText = "Restored previous analysis"
		case history.ResumeClear:
			m.result = nil
			m.scanState = scan.State{}
		}
		return m, nil

	case ScanUpdateMsg:
		if msg.Gen != m.scanGen {
			return m, nil
		}
		wasDone := m.scanState.Done()
		m.scanState = msg.State
		m.statusText = m.scanState.Status

		// The run keeps draining after a terminal event so the stream
		// closes cleanly.
		cmds := []tea.Cmd{waitCmd(msg.next)}
		if !wasDone && m.scanState.Done() {
			cmds = append(cmds, m.finishScan())
		}
		return m, tea.Batch(cmds...)

	case ScanEndedMsg:
		if msg.Gen != m.scanGen {
			return m, nil
		}
		m.stopScan()
		if m.scanState.Done() {
			return m, nil
		}
		m.analyzing = false
		err := msg.Err
		if err == nil {
			err = scan.Outcome(m.scanState)
		}
		m.deps.Log.Warn("scan ended without result", zap.Error(err))
		m.statusText = "Scan interrupted"
		return m.setError(err.Error(), false)

	case AnalysisLoadedMsg:
		if errors.Is(msg.Err, history.ErrNotFound) {
			// The cache already dropped it; reload so the list matches.
			m.deps.Log.Info("analysis gone", zap.Error(msg.Err))
			m.errorMessage = "Analysis no longer exists"
			m.errorTransient = true
			return m, tea.Batch(clearTransientErrorCmd(), loadHistoryCmd(m.deps.History))
		}
		if msg.Err != nil {
			m.deps.Log.Warn("load analysis", zap.Error(msg.Err))
			return m.setError(fmt.Sprintf("load analysis: %v", msg.Err), true)
		}
		if m.analyzing {
			return m, nil
		}
		m.showEntry(msg.Entry, !msg.FromScan)
		if msg.FromScan {
			return m, recordCmd(m.deps.History, msg.Entry)
		}
		m.showHistory = false
		m.statusText = "Opened analysis from history"
		return m, nil

	case ChatRepliedMsg:
		if msg.Gen != m.chatGen {
			return m, nil
		}
		m.chatPending = nil
		m.chatSession = msg.Session
		m.refreshChat()
		if msg.Err != nil {
			m.deps.Log.Warn("chat", zap.Error(msg.Err))
			return m.setError(msg.Err.Error(), true)
		}
		return m, nil

	case ChatLoadedMsg:
		if msg.Err != nil {
			m.deps.Log.Warn("load chat", zap.String("session_id", m.opts.ChatSessionID), zap.Error(msg.Err))
			return m.setError(msg.Err.Error(), true)
		}
		m.chatGen++
		m.chatPending = nil
		m.chatSession = msg.Session
		m.selected = map[string]bool{}
		for _, id := range msg.Session.DocumentIDs {
			m.selected[id] = true
		}
		m.refreshChat()
		m.statusText = fmt.Sprintf("Resumed chat (%d messages)", len(msg.Session.Messages))
		return m, nil

	case UploadProgressMsg:
		p := msg.Progress
		m.uploadPct = max(m.uploadPct, p.Percent)
		if p.BytesSent >= p.TotalBytes {
			m.uploadPct = max(m.uploadPct, 70)
			m.statusText = fmt.Sprintf("Processing %s...", m.uploadName)
		} else {
			m.statusText = fmt.Sprintf("Uploading %s: part %d/%d", m.uploadName, p.Chunk, p.Chunks)
		}
		return m, waitCmd(msg.next)

	case UploadDoneMsg:
		m.uploading = false
		if msg.Err != nil {
			m.uploadPct = 0
			m.deps.Log.Warn("upload", zap.String("file", msg.Name), zap.Error(msg.Err))
			m.statusText = "Upload failed"
			return m.setError(msg.Err.Error(), false)
		}
		m.uploadPct = 100
		m.statusText = fmt.Sprintf("Uploaded %s (%d pages)", msg.Name, msg.Pages)
		return m, loadDocumentsCmd(m.deps.API, m.opts.Pro)

	case RubricMsg:
		if msg.Err != nil {
			return m.setError(fmt.Sprintf("generate rubric: %v", msg.Err), true)
		}
		m.rubric = msg.Text
		m.statusText = "Rubric ready"
		return m, nil

	case DocumentDeletedMsg:
		if msg.Err != nil {
			return m.setError(fmt.Sprintf("delete document: %v", msg.Err), true)
		}
		delete(m.selected, msg.ID)
		m.deps.History.Invalidate()
		return m, tea.Batch(
			loadDocumentsCmd(m.deps.API, m.opts.Pro),
			loadHistoryCmd(m.deps.History),
		)

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// finishScan handles the first terminal event of a scan.
func (m *Model) finishScan() tea.Cmd {
	m.analyzing = false

	if msg, failed := m.scanState.Failed(); failed {
		m.deps.Log.Warn("scan failed", zap.String("message", msg))
		m.errorMessage = "Scan failed: " + msg
		m.errorTransient = false
		return nil
	}

	res := m.scanState.Terminal.Result
	m.deps.Log.Info("scan complete",
		zap.String("analysis_id", res.AnalysisID),
		zap.Int("findings", len(m.scanState.Findings)),
	)

	findings := scan.ParseFindings(res.Raw)
	if findings == nil {
		findings = m.scanState.Findings
	}
	m.result = &resultView{
		AnalysisID: res.AnalysisID,
		Query:      m.scanQuery,
		ModelUsed:  res.ModelUsed,
		Findings:   findings,
	}

	if m.opts.Pro {
		e := history.Entry{
			ID:            res.AnalysisID,
			ProDocumentID: m.scanDocs[0],
			Query:         m.scanQuery,
			Status:        history.StatusComplete,
			ModelUsed:     res.ModelUsed,
			Result:        res.Raw,
			CreatedAt:     time.Now(),
		}
		return recordCmd(m.deps.History, e)
	}
	if res.AnalysisID == "" {
		return nil
	}
	return getAnalysisCmd(m.deps.History, res.AnalysisID, true)
}

// showEntry puts a stored analysis on screen.
func (m *Model) showEntry(e history.Entry, restored bool) {
	findings := scan.ParseFindings(e.Findings)
	if findings == nil {
		findings = scan.ParseFindings(e.Result)
	}
	if findings == nil && m.result != nil && m.result.AnalysisID == e.ID {
		findings = m.result.Findings
	}
	m.result = &resultView{
		AnalysisID: e.ID,
		Query:      e.Query,
		ModelUsed:  e.ModelUsed,
		Findings:   findings,
		Restored:   restored,
	}
	m.query.SetValue(e.Query)
	if restored {
		m.scanState = scan.State{}
	}
}

func (m Model) startScan() (tea.Model, tea.Cmd) {
	if m.analyzing {
		return m, nil
	}
	sel := m.selection()
	query := strings.TrimSpace(m.query.Value())
	switch {
	case len(sel) == 0:
		return m.setError("Select at least one document", true)
	case query == "":
		return m.setError("Enter a query", true)
	case m.opts.Pro && len(sel) != 1:
		return m.setError("Pro scans take exactly one document", true)
	case m.opts.Pro && m.opts.APIKey == "":
		return m.setError("Set DEEPSCAN_GEMINI_API_KEY for pro scans", true)
	}
	var pageStart, pageEnd *int
	if !m.opts.Pro {
		var err error
		if pageStart, pageEnd, err = parsePageRange(m.pages.Value()); err != nil {
			return m.setError(err.Error(), true)
		}
	}

	m.stopScan()
	ctx, cancel := context.WithCancel(m.ctx)
	m.scanCancel = cancel
	m.scanGen++
	m.scanState = scan.New()
	m.scanQuery = query
	m.scanDocs = sel
	m.analyzing = true
	m.result = nil
	m.errorMessage = ""
	m.errorTransient = false
	m.statusText = "Starting scan..."

	req := scanRequest{
		pro:           m.opts.Pro,
		documentIDs:   sel,
		query:         query,
		apiKey:        m.opts.APIKey,
		model:         m.opts.Model,
		speed:         m.opts.Speed,
		relevanceMode: m.opts.RelevanceMode,
		rubric:        m.rubric,
		pageStart:     pageStart,
		pageEnd:       pageEnd,
	}
	return m, startScanCmd(ctx, m.scanGen, m.deps.API, req, m.deps.Log)
}

func (m Model) sendChat() (tea.Model, tea.Cmd) {
	if m.chatPending != nil {
		return m, nil
	}
	text := strings.TrimSpace(m.chatInput.Value())
	if text == "" {
		return m, nil
	}
	if len(m.chatSession.DocumentIDs) == 0 {
		return m.setError("Select a document to chat about", true)
	}

	p := m.chatSession.Begin(text)
	m.chatPending = &p
	m.chatInput.Reset()
	m.refreshChat()
	return m, sendChatCmd(m.chatGen, m.deps.Chat, m.chatSession, text)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case KeyCtrlC:
		return m.quit()
	case KeyTab:
		m.setFocus(m.nextFocus(1))
		return m, nil
	case KeyShiftTab:
		m.setFocus(m.nextFocus(-1))
		return m, nil
	}

	switch m.focusedPanel {
	case FocusQuery:
		switch key {
		case KeyEnter:
			return m.startScan()
		case KeyEsc:
			m.setFocus(FocusDocuments)
			return m, nil
		case KeyRubric:
			q := strings.TrimSpace(m.query.Value())
			if q == "" {
				return m.setError("Enter a query first", true)
			}
			m.statusText = "Generating rubric..."
			return m, rubricCmd(m.deps.API, q, m.opts.Model)
		}
		var cmd tea.Cmd
		m.query, cmd = m.query.Update(msg)
		return m, cmd

	case FocusPages:
		switch key {
		case KeyEnter:
			return m.startScan()
		case KeyEsc:
			m.setFocus(FocusDocuments)
			return m, nil
		}
		var cmd tea.Cmd
		m.pages, cmd = m.pages.Update(msg)
		return m, cmd

	case FocusChat:
		switch key {
		case KeyEnter:
			return m.sendChat()
		case KeyEsc:
			m.setFocus(FocusDocuments)
			return m, nil
		case KeyPgUp, KeyPgDown:
			var cmd tea.Cmd
			m.chatView, cmd = m.chatView.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.chatInput, cmd = m.chatInput.Update(msg)
		return m, cmd
	}

	switch key {
	case KeyQuit, KeyQuitUpper:
		return m.quit()

	case KeyJ, KeyDown:
		if m.showHistory {
			if m.historyCursor < len(m.history)-1 {
				m.historyCursor++
			}
		} else if m.cursor < len(m.documents)-1 {
			m.cursor++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.showHistory {
			if m.historyCursor > 0 {
				m.historyCursor--
			}
		} else if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case KeySpace:
		if m.showHistory || m.cursor >= len(m.documents) {
			return m, nil
		}
		id := m.documents[m.cursor].ID
		m.selected = maps.Clone(m.selected)
		if m.selected[id] {
			delete(m.selected, id)
		} else {
			m.selected[id] = true
		}
		return m, selectionChangedCmd(m.selection())

	case KeyEnter:
		if m.showHistory {
			if m.analyzing || m.historyCursor >= len(m.history) {
				return m, nil
			}
			return m, getAnalysisCmd(m.deps.History, m.history[m.historyCursor].ID, false)
		}
		m.setFocus(FocusQuery)
		return m, nil

	case KeyScan:
		return m.startScan()

	case KeyTogglePossible:
		m.showPossible = !m.showPossible
		return m, nil

	case KeyHistory:
		m.showHistory = !m.showHistory
		return m, nil

	case KeyDelete:
		if m.showHistory || m.cursor >= len(m.documents) {
			return m, nil
		}
		if m.opts.Pro && m.opts.APIKey == "" {
			return m.setError("Set DEEPSCAN_GEMINI_API_KEY to delete pro documents", true)
		}
		return m, deleteDocumentCmd(m.deps.API, m.opts.Pro, m.opts.APIKey, m.documents[m.cursor].ID)

	case KeyRefresh:
		m.deps.History.Invalidate()
		m.statusText = "Refreshing..."
		return m, tea.Batch(
			loadDocumentsCmd(m.deps.API, m.opts.Pro),
			loadHistoryCmd(m.deps.History),
		)
	}

	return m, nil
}

// quit stops the scan and any upload in flight.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopScan()
	m.cancel()
	return m, tea.Quit
}

// stopScan cancels the running scan, which closes its stream.
func (m *Model) stopScan() {
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
}

// nextFocus steps through the panels. The page field only exists for
// standard scans.
func (m Model) nextFocus(step int) PanelFocus {
	order := []PanelFocus{FocusDocuments, FocusQuery, FocusPages, FocusChat}
	if m.opts.Pro {
		order = []PanelFocus{FocusDocuments, FocusQuery, FocusChat}
	}
	i := max(slices.Index(order, m.focusedPanel), 0)
	return order[(i+step+len(order))%len(order)]
}

func (m *Model) setFocus(f PanelFocus) {
	m.focusedPanel = f
	m.query.Blur()
	m.pages.Blur()
	m.chatInput.Blur()
	switch f {
	case FocusQuery:
		m.query.Focus()
	case FocusPages:
		m.pages.Focus()
	case FocusChat:
		m.chatInput.Focus()
	}
}

func (m Model) setError(text string, transient bool) (tea.Model, tea.Cmd) {
	m.errorMessage = text
	m.errorTransient = transient
	if transient {
		return m, clearTransientErrorCmd()
	}
	return m, nil
}

// selection returns the selected document ids in list order.
func (m Model) selection() []string {
	var ids []string
	for _, d := range m.documents {
		if m.selected[d.ID] {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// visibleFindings returns the findings to render: the finished result when
// there is one, else the live scan.
func (m Model) visibleFindings() []scan.Finding {
	if m.result != nil && !m.analyzing {
		return scan.State{Findings: m.result.Findings}.Visible(m.showPossible)
	}
	return m.scanState.Visible(m.showPossible)
}

// displayPercent is the value of the progress bar.
func (m Model) displayPercent() int {
	if m.uploading {
		return m.uploadPct
	}
	return m.scanState.Percent
}
