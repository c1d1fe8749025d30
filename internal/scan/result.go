package scan

import "encoding/json"

// proFinding is a finding as the pro model writes it inside a result.
type proFinding struct {
	GlobalPage   int        `json:"global_page"`
	Section      string     `json:"section"`
	Quote        string     `json:"quote"`
	WhyRelevant  string     `json:"why_relevant"`
	Confidence   Confidence `json:"confidence"`
	MatchType    MatchType  `json:"match_type"`
	PageNumber   int        `json:"page_number"`
	Text         string     `json:"text"`
	Relevance    string     `json:"relevance"`
	DocumentName string     `json:"document"`
}

func (p proFinding) finding() Finding {
	f := Finding{
		PageNumber: p.PageNumber,
		Text:       p.Text,
		Relevance:  p.Relevance,
		Confidence: p.Confidence,
		MatchType:  p.MatchType,
		Document:   p.DocumentName,
		Section:    p.Section,
	}
	if f.PageNumber == 0 {
		f.PageNumber = p.GlobalPage
	}
	if f.Text == "" {
		f.Text = p.Quote
	}
	if f.Relevance == "" {
		f.Relevance = p.WhyRelevant
	}
	return normalize(f)
}

// ParseFindings reads findings from a stored analysis. raw is either a bare
// array of findings or a result object with a "findings" array, in the
// standard or pro shape. Anything else yields nil.
func ParseFindings(raw json.RawMessage) []Finding {
	if len(raw) == 0 {
		return nil
	}

	var list []proFinding
	if err := json.Unmarshal(raw, &list); err != nil {
		var obj struct {
			Findings []proFinding `json:"findings"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		list = obj.Findings
	}

	if len(list) == 0 {
		return nil
	}
	out := make([]Finding, len(list))
	for i, p := range list {
		out[i] = p.finding()
	}
	return out
}
