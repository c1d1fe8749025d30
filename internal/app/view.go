package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/scan"
	"github.com/jwulff/deepscan/internal/ui"
)

const (
	chatViewHeight  = 5
	chatInputHeight = 2
	maxThoughts     = 5
	pageInputWidth  = 9
)

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Main content: documents or history | scan
	sections = append(sections, m.renderMainContent())

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderQueryRow())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderChat())

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("DEEPSCAN")

	var mode string
	if m.opts.Pro {
		mode = ui.ProBadgeStyle.Render(" [PRO]")
	}

	var sel string
	if n := len(m.selection()); n > 0 {
		sel = ui.DimStyle.Render(fmt.Sprintf(" %d selected", n))
	}

	return title + mode + sel
}

func (m Model) renderStatusBar() string {
	var badge string
	switch {
	case m.uploading:
		badge = ui.AnalyzingBadgeStyle.Render("⇡ UPLOAD")
	case m.analyzing:
		badge = ui.AnalyzingBadgeStyle.Render("● SCAN")
	default:
		badge = ui.IdleBadgeStyle.Render("○ IDLE")
	}

	pct := m.displayPercent()
	bar := m.progress.ViewAs(float64(pct) / 100)

	status := ui.StatusStyle.Render(m.statusText)
	return badge + "  " + bar + fmt.Sprintf(" %3d%%  ", pct) + status
}

func (m Model) leftPanelWidth() int {
	w := m.width / 3
	return max(20, min(w, 40))
}

func (m Model) rightPanelWidth() int {
	return max(20, m.width-m.leftPanelWidth()-1)
}

// contentHeight is what is left for the two main panels.
func (m Model) contentHeight() int {
	// header, status, three dividers, query, footer
	fixed := 7 + chatViewHeight + chatInputHeight
	if m.errorMessage != "" {
		fixed++
	}
	return max(3, m.height-fixed)
}

func (m Model) renderMainContent() string {
	leftW := m.leftPanelWidth()
	rightW := m.rightPanelWidth()
	contentH := m.contentHeight()

	var left string
	if m.showHistory {
		left = m.renderHistoryPanel(leftW, contentH)
	} else {
		left = m.renderDocumentPanel(leftW, contentH)
	}
	right := m.renderScanPanel(rightW, contentH)

	divider := ui.DividerStyle.Render("│")

	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	for len(leftLines) < contentH {
		leftLines = append(leftLines, strings.Repeat(" ", leftW))
	}
	for len(rightLines) < contentH {
		rightLines = append(rightLines, "")
	}

	var rows []string
	for i := 0; i < contentH; i++ {
		rows = append(rows, leftLines[i]+divider+rightLines[i])
	}

	return strings.Join(rows, "\n")
}

func (m Model) panelTitle(text string, focused bool) string {
	if focused {
		return ui.PanelTitleActiveStyle.Render(text)
	}
	return ui.PanelTitleStyle.Render(text)
}

func (m Model) renderDocumentPanel(width, height int) string {
	focused := m.focusedPanel == FocusDocuments
	lines := []string{padRight(m.panelTitle(fmt.Sprintf("DOCUMENTS (%d)", len(m.documents)), focused), width)}

	if len(m.documents) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No documents yet..."))
		lines = append(lines, ui.DimStyle.Render("  Upload with: deepscan -upload file.pdf"))
	} else {
		start := scrollStart(m.cursor, len(m.documents), height-1)
		for i := start; i < len(m.documents) && len(lines) < height; i++ {
			d := m.documents[i]
			check := "[ ]"
			if m.selected[d.ID] {
				check = ui.CheckedStyle.Render("[x]")
			}
			pages := ui.PageStyle.Render(fmt.Sprintf(" %dp", d.Pages))

			var line string
			if i == m.cursor && focused && !m.showHistory {
				line = ui.SelectedStyle.Render("> ") + check + " " + ui.SelectedStyle.Render(d.Name) + pages
			} else {
				line = "  " + check + " " + d.Name + pages
			}
			lines = append(lines, truncateToWidth(line, width))
		}
	}

	return fitPanel(lines, width, height)
}

func (m Model) renderHistoryPanel(width, height int) string {
	lines := []string{padRight(m.panelTitle(fmt.Sprintf("HISTORY (%d)", len(m.history)), m.focusedPanel == FocusDocuments), width)}

	if len(m.history) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No analyses yet"))
	} else {
		start := scrollStart(m.historyCursor, len(m.history), (height-1)/2)
		for i := start; i < len(m.history) && len(lines) < height; i++ {
			e := m.history[i]
			query := e.Query
			if query == "" {
				query = "(no query)"
			}
			if i == m.historyCursor {
				lines = append(lines, truncateToWidth(ui.SelectedStyle.Render("> ")+ui.SelectedStyle.Render(query), width))
			} else {
				lines = append(lines, truncateToWidth("  "+query, width))
			}

			meta := e.Status
			if !e.CreatedAt.IsZero() {
				meta = e.CreatedAt.Local().Format("Jan 02 15:04") + " " + meta
			}
			if e.DocumentName != "" {
				meta += " · " + e.DocumentName
			}
			lines = append(lines, ui.DimStyle.Render(truncateToWidth("    "+meta, width)))
		}
	}

	return fitPanel(lines, width, height)
}

func (m Model) renderScanPanel(width, height int) string {
	var lines []string

	findings := m.visibleFindings()
	switch {
	case m.analyzing || (m.result == nil && m.scanState.Status != ""):
		title := ui.PanelTitleActiveStyle.Render("SCANNING")
		if !m.analyzing {
			title = ui.PanelTitleStyle.Render("SCAN STOPPED")
		}
		lines = append(lines, title+ui.DimStyle.Render(" "+m.scanQuery))
		if s := m.scanState; s.BatchMode && s.TotalBatches > 0 {
			lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  part %d of %d, %d pages", s.CurrentBatch, s.TotalBatches, s.TotalPages)))
		}
		thoughts := m.scanState.Thinking
		if len(thoughts) > maxThoughts {
			thoughts = thoughts[len(thoughts)-maxThoughts:]
		}
		for _, t := range thoughts {
			text := t.Thought
			if t.Pages != "" {
				text = "[" + t.Pages + "] " + text
			}
			lines = append(lines, ui.ThinkingStyle.Render(truncateToWidth("  "+text, width)))
		}

	case m.result != nil:
		title := "RESULTS"
		if m.result.Restored {
			title = "RESULTS (restored)"
		}
		lines = append(lines, ui.PanelTitleStyle.Render(title)+ui.DimStyle.Render(" "+m.result.Query))
		if m.result.ModelUsed != "" {
			lines = append(lines, ui.DimStyle.Render("  model: "+m.result.ModelUsed))
		}

	default:
		lines = append(lines, ui.PanelTitleStyle.Render("SCAN"))
		lines = append(lines, "")
		if len(m.selection()) == 0 {
			lines = append(lines, ui.DimStyle.Render("  Select documents with Space"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Enter a query, then press s to scan"))
		}
		return fitPanel(lines, width, height)
	}

	lines = append(lines, m.renderCounts())
	textWidth := max(10, width-4)
	for _, f := range findings {
		lines = append(lines, renderFinding(f, textWidth)...)
		if len(lines) >= height {
			break
		}
	}

	return fitPanel(lines, width, height)
}

func (m Model) renderCounts() string {
	var all []scan.Finding
	if m.result != nil && !m.analyzing {
		all = m.result.Findings
	} else {
		all = m.scanState.Findings
	}
	direct, possible := scan.State{Findings: all}.Counts()

	text := fmt.Sprintf("  %d matches", direct)
	if possible > 0 {
		if m.showPossible {
			text += fmt.Sprintf(", %d possible (p to hide)", possible)
		} else {
			text += fmt.Sprintf(", %d possible hidden (p to show)", possible)
		}
	}
	return ui.DimStyle.Render(text)
}

func renderFinding(f scan.Finding, width int) []string {
	page := ui.PageStyle.Render(fmt.Sprintf("p.%d", f.PageNumber))
	conf := ui.ConfidenceStyle(string(f.Confidence)).Render(string(f.Confidence))
	head := "  " + page + " " + conf
	if f.Possible() {
		head += ui.PossibleBadgeStyle.Render(" possible")
	}
	if f.Section != "" {
		head += ui.DimStyle.Render(" §" + f.Section)
	}
	if f.Document != "" {
		head += ui.DimStyle.Render(" " + f.Document)
	}

	lines := []string{head}
	for _, wl := range wrapText(f.Text, width) {
		lines = append(lines, "    "+wl)
	}
	if f.Relevance != "" {
		for _, wl := range wrapText(f.Relevance, width) {
			lines = append(lines, ui.DimStyle.Render("    "+wl))
		}
	}
	return lines
}

func (m Model) renderChat() string {
	title := m.panelTitle("CHAT", m.focusedPanel == FocusChat)
	if m.chatPending != nil {
		title += ui.PendingTextStyle.Render(" waiting...")
	}
	return title + "\n" + m.chatView.View() + "\n" + m.chatInput.View()
}

// chatContent renders the transcript, including an unanswered message.
func (m Model) chatContent() string {
	s := m.chatSession
	if m.chatPending != nil {
		s = m.chatPending.Session()
	}
	if len(s.Messages) == 0 {
		return ui.DimStyle.Render("  Ask a question about the selected documents")
	}

	width := max(10, m.width-12)
	var b strings.Builder
	for i, msg := range s.Messages {
		label := ui.AssistantLabelStyle.Render("Scanner: ")
		if msg.Role == chat.RoleUser {
			label = ui.UserLabelStyle.Render("You: ")
		}
		wrapped := wrapText(msg.Content, width)
		if m.chatPending != nil && i == len(s.Messages)-1 {
			for j := range wrapped {
				wrapped[j] = ui.PendingTextStyle.Render(wrapped[j])
			}
		}
		b.WriteString(label + wrapped[0] + "\n")
		for _, wl := range wrapped[1:] {
			b.WriteString("  " + wl + "\n")
		}
	}
	return b.String()
}

// refreshChat pushes the transcript into the viewport and follows it.
func (m *Model) refreshChat() {
	m.chatView.SetContent(m.chatContent())
	m.chatView.GotoBottom()
}

// resize fits the bubbles components to the window.
func (m *Model) resize() {
	m.progress.Width = max(10, min(30, m.width/4))
	m.query.Width = max(10, m.width-len(m.query.Prompt)-2)
	if !m.opts.Pro {
		m.query.Width = max(10, m.query.Width-m.pagesRowWidth())
	}
	m.chatView.Width = m.width
	m.chatView.Height = chatViewHeight
	m.chatInput.SetWidth(max(10, m.width-2))
	m.refreshChat()
}

// renderQueryRow puts the page field next to the query for standard scans.
func (m Model) renderQueryRow() string {
	if m.opts.Pro {
		return m.query.View()
	}
	queryW := max(10, m.width-m.pagesRowWidth())
	return padRight(m.query.View(), queryW) + m.pages.View()
}

func (m Model) pagesRowWidth() int {
	return len(m.pages.Prompt) + pageInputWidth + 3
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.focusedPanel {
	case FocusQuery:
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Scan"))
		parts = append(parts, ui.FooterKeyStyle.Render("^R")+ui.FooterDescStyle.Render(" Rubric"))
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Back"))
	case FocusPages:
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Scan"))
		parts = append(parts, ui.DimStyle.Render("e.g. 10-50"))
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Back"))
	case FocusChat:
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Send"))
		parts = append(parts, ui.FooterKeyStyle.Render("PgUp/PgDn")+ui.FooterDescStyle.Render(" Scroll"))
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Back"))
	default:
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Select"))
		parts = append(parts, ui.FooterKeyStyle.Render("s")+ui.FooterDescStyle.Render(" Scan"))
		parts = append(parts, ui.FooterKeyStyle.Render("p")+ui.FooterDescStyle.Render(" Possible"))
		parts = append(parts, ui.FooterKeyStyle.Render("h")+ui.FooterDescStyle.Render(" History"))
		parts = append(parts, ui.FooterKeyStyle.Render("d")+ui.FooterDescStyle.Render(" Delete"))
		parts = append(parts, ui.FooterKeyStyle.Render("R")+ui.FooterDescStyle.Render(" Refresh"))
		parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Focus"))

	return strings.Join(parts, "  ")
}

// Helpers

// scrollStart keeps cursor inside a window of size rows.
func scrollStart(cursor, n, rows int) int {
	if rows <= 0 || n <= rows || cursor < rows {
		return 0
	}
	return min(cursor-rows+1, n-rows)
}

// fitPanel pads or cuts lines to exactly height rows of width columns.
func fitPanel(lines []string, width, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
