package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindingsStandardArray(t *testing.T) {
	raw := []byte(`[
		{"page_number":3,"document":"a.pdf","text":"shall indemnify","relevance":"names the clause","confidence":"high","match_type":"match"},
		{"page_number":8,"document":"a.pdf","text":"hold harmless","confidence":"low","match_type":"possible"}
	]`)

	got := ParseFindings(raw)

	require.Len(t, got, 2)
	assert.Equal(t, Finding{
		PageNumber: 3, Document: "a.pdf", Text: "shall indemnify", Relevance: "names the clause",
		Confidence: ConfidenceHigh, MatchType: MatchDirect,
	}, got[0])
	assert.True(t, got[1].Possible())
}

func TestParseFindingsProResult(t *testing.T) {
	raw := []byte(`{"doc_type":"contract","findings":[
		{"global_page":1204,"section":"7.2","quote":"Licensee shall indemnify","why_relevant":"indemnity","confidence":"medium"}
	],"notes":""}`)

	got := ParseFindings(raw)

	require.Len(t, got, 1)
	assert.Equal(t, 1204, got[0].PageNumber)
	assert.Equal(t, "Licensee shall indemnify", got[0].Text)
	assert.Equal(t, "indemnity", got[0].Relevance)
	assert.Equal(t, "7.2", got[0].Section)
	assert.Equal(t, MatchDirect, got[0].MatchType)
}

func TestParseFindingsEmpty(t *testing.T) {
	assert.Nil(t, ParseFindings(nil))
	assert.Nil(t, ParseFindings([]byte(`{"findings":[]}`)))
	assert.Nil(t, ParseFindings([]byte(`"not findings"`)))
	assert.Nil(t, ParseFindings([]byte(`null`)))
}
