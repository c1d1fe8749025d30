package scan

import "encoding/json"

// Confidence grades a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchType separates direct matches from looser candidates.
type MatchType string

const (
	MatchDirect   MatchType = "match"
	MatchPossible MatchType = "possible"
)

// Finding is one quoted excerpt judged relevant to the query.
type Finding struct {
	PageNumber int        `json:"page_number"`
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
	MatchType  MatchType  `json:"match_type,omitempty"`
	Document   string     `json:"document,omitempty"`
	Section    string     `json:"section,omitempty"`
	Relevance  string     `json:"relevance,omitempty"`
}

// Possible reports whether the finding is a possible (not direct) match.
func (f Finding) Possible() bool { return f.MatchType == MatchPossible }

// Thought is one entry of the thinking trace.
type Thought struct {
	Pages   string
	Thought string
}

// TerminalKind says how a scan ended.
type TerminalKind string

const (
	TerminalDone  TerminalKind = "done"
	TerminalError TerminalKind = "error"
)

// Terminal is set exactly once, by a done or error event.
type Terminal struct {
	Kind    TerminalKind
	Result  Result // for TerminalDone
	Message string // for TerminalError
}

// Result is the payload of a done event.
type Result struct {
	AnalysisID    string
	ModelUsed     string
	Raw           json.RawMessage
	TotalFindings int
	Coverage      *Coverage
}

// State is the progress model of one scan.
type State struct {
	Percent      int
	Status       string
	Documents    []string
	TotalPages   int
	BatchMode    bool
	TotalBatches int
	CurrentBatch int
	Thinking     []Thought
	Findings     []Finding
	Terminal     *Terminal
}

// Done reports whether a terminal event has been applied.
func (s State) Done() bool { return s.Terminal != nil }

// Failed returns the error message of a failed scan.
func (s State) Failed() (string, bool) {
	if s.Terminal == nil || s.Terminal.Kind != TerminalError {
		return "", false
	}
	return s.Terminal.Message, true
}

// Visible returns the findings to render. Possible matches are dropped
// unless showPossible is set. The returned slice is always a copy.
func (s State) Visible(showPossible bool) []Finding {
	out := make([]Finding, 0, len(s.Findings))
	for _, f := range s.Findings {
		if f.Possible() && !showPossible {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Counts returns the number of direct and possible findings.
func (s State) Counts() (direct, possible int) {
	for _, f := range s.Findings {
		if f.Possible() {
			possible++
		} else {
			direct++
		}
	}
	return direct, possible
}
