package scan

import (
	"fmt"
	"math"
)

// Percent bands. A scan shows startFloor once accepted, moves through
// [bandLo, bandHi] as batches run, and reaches 100 only on done.
const (
	startFloor    = 5
	bandLo        = 10
	bandHi        = 90
	maxBeforeDone = 99
)

// New returns the state of a scan that has been requested but has not
// received any event yet.
func New() State {
	return State{Status: "Waiting for the scanner..."}
}

// Reduce applies ev to s. It is total over every Event and a no-op once s
// is terminal.
func Reduce(s State, ev Event) State {
	if s.Terminal != nil {
		return s
	}

	switch ev := ev.(type) {
	case StartEvent:
		s.advance(startFloor)
		s.TotalPages = ev.TotalPages
		s.BatchMode = ev.BatchMode
		s.Documents = append([]string(nil), ev.Documents...)
		s.TotalBatches = max(len(ev.Parts), 1)
		s.CurrentBatch = 0
		switch {
		case len(ev.Parts) > 0:
			mode := "one-shot"
			if ev.BatchMode {
				mode = "multi-part"
			}
			s.Status = fmt.Sprintf("Analyzing %d pages (%s mode)...", ev.TotalPages, mode)
		default:
			s.Status = fmt.Sprintf("Starting analysis of %d pages...", ev.TotalPages)
		}

	case DocumentStartEvent:
		s.Status = fmt.Sprintf("Analyzing %s (%d pages)...", ev.Document, ev.Pages)

	case BatchStartEvent:
		if ev.TotalBatches > 0 {
			s.TotalBatches = ev.TotalBatches
		}
		s.CurrentBatch = ev.Batch
		s.advance(batchStartPercent(ev.Batch, s.TotalBatches))
		total := "?"
		if ev.TotalBatches > 0 {
			total = fmt.Sprint(ev.TotalBatches)
		}
		s.Status = fmt.Sprintf("Processing part %d/%s: pages %d-%d...", ev.Batch, total, ev.Pages.Start, ev.Pages.End)

	case BatchDoneEvent:
		s.advance(batchDonePercent(ev.Batch, s.TotalBatches))
		if s.TotalBatches-ev.Batch > 0 {
			s.Status = fmt.Sprintf("Part %d complete. Processing next...", ev.Batch)
		} else {
			s.Status = fmt.Sprintf("Part %d complete. Merging results...", ev.Batch)
		}

	case ProgressEvent:
		if ev.Percent != nil {
			s.advance(min(max(*ev.Percent, 0), maxBeforeDone))
		}
		if ev.TotalBatches > 0 {
			s.TotalBatches = ev.TotalBatches
		}
		if ev.Batch > 0 {
			s.CurrentBatch = ev.Batch
		}
		if ev.Status != "" {
			s.Status = ev.Status
		}

	case ThinkingEvent:
		s.Thinking = append(s.Thinking[:len(s.Thinking):len(s.Thinking)], Thought{Pages: ev.Pages, Thought: ev.Thought})

	case FindingEvent:
		s.Findings = append(s.Findings[:len(s.Findings):len(s.Findings)], normalize(ev.Finding))

	case ErrorEvent:
		s.Terminal = &Terminal{Kind: TerminalError, Message: ev.Message}
		s.Status = "Scan failed"

	case DoneEvent:
		s.Percent = 100
		s.Status = "Complete!"
		s.Terminal = &Terminal{
			Kind: TerminalDone,
			Result: Result{
				AnalysisID:    ev.AnalysisID,
				ModelUsed:     ev.ModelUsed,
				Raw:           ev.Result,
				TotalFindings: ev.TotalFindings,
				Coverage:      ev.Coverage,
			},
		}
	}

	return s
}

// advance raises Percent to p. Percent never moves backwards.
func (s *State) advance(p int) {
	if p > s.Percent {
		s.Percent = p
	}
}

func batchStartPercent(batch, total int) int {
	if total < 1 {
		total = 1
	}
	p := int(math.Round(float64(batch-1)/float64(total)*(bandHi-bandLo))) + bandLo
	return min(max(p, bandLo), bandHi)
}

func batchDonePercent(batch, total int) int {
	if total < 1 {
		total = 1
	}
	p := int(math.Round(float64(batch)/float64(total)*(bandHi-bandLo))) + bandLo
	return min(max(p, bandLo), bandHi)
}

func normalize(f Finding) Finding {
	switch f.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		f.Confidence = ConfidenceMedium
	}
	if f.MatchType != MatchPossible {
		f.MatchType = MatchDirect
	}
	return f
}
