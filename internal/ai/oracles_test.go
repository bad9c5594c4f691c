package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bugsift/internal/types"
)

func TestJudgeCandidate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid verdict", func(t *testing.T) {
		s, fake := newTestSupervisor(t, `{"relevant": true, "sufficient": true, "reason": "same crash"}`)
		j := s.JudgeCandidate(ctx, "crash on settings open", "null pointer in settings menu")
		assert.Equal(t, Judgment{Relevant: true, Sufficient: true, Reason: "same crash"}, j)
		assert.Equal(t, []string{"small"}, fake.models)
		assert.Contains(t, fake.prompts[0], "null pointer in settings menu")
	})

	t.Run("non-JSON degrades with raw text", func(t *testing.T) {
		s, _ := newTestSupervisor(t, "  I think it is relevant.  ")
		j := s.JudgeCandidate(ctx, "fb", "doc")
		assert.Equal(t, Judgment{Reason: "I think it is relevant."}, j)
	})

	t.Run("sufficient without relevant is not sufficient", func(t *testing.T) {
		s, _ := newTestSupervisor(t, `{"relevant": false, "sufficient": true, "reason": "x"}`)
		j := s.JudgeCandidate(ctx, "fb", "doc")
		assert.False(t, j.Sufficient)
	})

	t.Run("transport failure degrades", func(t *testing.T) {
		s, fake := newTestSupervisor(t)
		fake.errs = []error{errors.New("401 unauthorized")}
		j := s.JudgeCandidate(ctx, "fb", "doc")
		assert.False(t, j.Relevant)
		assert.False(t, j.Sufficient)
		assert.Contains(t, j.Reason, "judge unavailable")
	})
}

func TestGenerateReport(t *testing.T) {
	report := `{"title":"Crash on settings","steps_to_reproduce":["open settings"],"expected_result":"page opens","actual_result":"crash","possible_cause":"NPE","severity":"high"}`
	s, fake := newTestSupervisor(t, "```json\n"+report+"\n```")

	got, err := s.GenerateReport(context.Background(), "feedback\n\nevidence")
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Equal(t, []string{"big"}, fake.models)

	parsed, ok := ParseBugReport(got)
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, parsed.Severity)
	assert.Equal(t, []string{"open settings"}, parsed.StepsToReproduce)

	s, _ = newTestSupervisor(t, "not json at all")
	got, err = s.GenerateReport(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "not json at all", got, "malformed output is stored as-is")
	_, ok = ParseBugReport(got)
	assert.False(t, ok)
}

func TestReason(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		response   string
		wantAction types.Action
	}{
		{"search", `{"action":"search","rationale":"need more","context":""}`, types.ActionSearch},
		{"generate upper-case", `{"action":"GENERATE","rationale":"enough","context":"ctx"}`, types.ActionGenerate},
		{"store", `{"action":"store","rationale":"later"}`, types.ActionStore},
		{"unknown token", `{"action":"escalate","rationale":"?"}`, types.ActionNone},
		{"prose", "I would search the web for this.", types.ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSupervisor(t, tt.response)
			d := s.Reason(ctx, "fb", []string{"a", "b"})
			assert.Equal(t, tt.wantAction, d.Action)
		})
	}

	s, _ := newTestSupervisor(t, `{"action":"generate","rationale":"enough"}`)
	d := s.Reason(ctx, "fb", []string{"e1"})
	assert.Equal(t, "fb\n\ne1", d.Context, "empty generate context falls back to feedback+evidence")
}

func TestVerifyReuse(t *testing.T) {
	ctx := context.Background()
	candidates := []types.ScoredCacheEntry{
		{Entry: types.CacheEntry{Feedback: "settings crash"}, Similarity: 0.92},
		{Entry: types.CacheEntry{Feedback: "profile crash"}, Similarity: 0.85},
	}

	s, fake := newTestSupervisor(t, `{"reuse": true, "matched_indices": [1], "rationale": "same"}`)
	v, err := s.VerifyReuse(ctx, "crash on settings open", candidates)
	require.NoError(t, err)
	assert.Equal(t, &ReuseVerdict{Reuse: true, MatchedIndices: []int{1}, Rationale: "same"}, v)
	assert.Contains(t, fake.prompts[0], "[Candidate #2]")
	assert.Contains(t, fake.prompts[0], "Similarity=0.920")

	s, _ = newTestSupervisor(t, "yes, candidate one")
	_, err = s.VerifyReuse(ctx, "fb", candidates)
	assert.Error(t, err)

	v, err = s.VerifyReuse(ctx, "fb", nil)
	require.NoError(t, err)
	assert.False(t, v.Reuse)
}

func TestGenerateQueries(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestSupervisor(t, `["settings crash", "Settings Crash", " ", "settings page null pointer", "a", "b", "c"]`)
	q := s.GenerateQueries(ctx, "fb", 3)
	assert.Equal(t, []string{"settings crash", "settings page null pointer", "a"}, q)

	s, _ = newTestSupervisor(t, `{"queries": "oops"}`)
	assert.Equal(t, []string{"fb"}, s.GenerateQueries(ctx, "fb", 5))

	s, _ = newTestSupervisor(t, `[]`)
	assert.Equal(t, []string{"fb"}, s.GenerateQueries(ctx, "fb", 5))
}

func TestSummarizeResults(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestSupervisor(t, " Likely a GPU driver regression. ")

	results := []string{"r1", "r2", "r3"}
	got := s.SummarizeResults(ctx, "fb", results, 2)
	assert.Equal(t, "Likely a GPU driver regression.", got)
	assert.Contains(t, fake.prompts[0], "[2] r2")
	assert.NotContains(t, fake.prompts[0], "r3")

	assert.Equal(t, "", s.SummarizeResults(ctx, "fb", nil, 8))
}

func TestJudgeSummary(t *testing.T) {
	ctx := context.Background()

	s, fake := newTestSupervisor(t, `{"action":"generate","rationale":"clear cause","context":"check the cache path"}`)
	d := s.JudgeSummary(ctx, "fb", []string{"crash log excerpt"}, "summary")
	assert.Equal(t, SearchDecision{
		Action:    types.ActionGenerate,
		Rationale: "clear cause",
		Context:   "fb\n\ncrash log excerpt\n\nsummary\n\ncheck the cache path",
	}, d)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "[1] crash log excerpt", "collected evidence is judged too")

	s, _ = newTestSupervisor(t, `{"action":"generate","rationale":"clear cause"}`)
	d = s.JudgeSummary(ctx, "fb", []string{"e"}, "summary")
	assert.Equal(t, "fb\n\ne\n\nsummary", d.Context, "evidence reaches the generator without model notes")

	s, _ = newTestSupervisor(t, `{"action":"search","rationale":"?"}`)
	d = s.JudgeSummary(ctx, "fb", []string{"e"}, "summary")
	assert.Equal(t, types.ActionStore, d.Action)
	assert.Equal(t, "fb\n\ne\n\nsummary", d.Context)

	s, fake = newTestSupervisor(t)
	d = s.JudgeSummary(ctx, "fb", nil, "   ")
	assert.Equal(t, types.ActionStore, d.Action)
	assert.Empty(t, fake.prompts, "empty summary is judged without a call")
}
