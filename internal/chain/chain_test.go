package chain

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atmo-climate/atmo/internal/llm"
	"github.com/atmo-climate/atmo/internal/prompts"
)

// fakeModel replays canned structured replies in order and streams fixed
// pieces.
type fakeModel struct {
	mu         sync.Mutex
	replies    []map[string]any
	replyErrs  []error
	prompts    []string
	pieces     []string
	streamErr  error
	openErr    error
	panicStage int // 1-based structured call that panics; 0 for none
	stream     *fakeStream
}

func (m *fakeModel) CompleteStructured(ctx context.Context, prompt string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	i := len(m.prompts) - 1
	if m.panicStage == i+1 {
		panic("decoder exploded")
	}
	if i < len(m.replyErrs) && m.replyErrs[i] != nil {
		return nil, m.replyErrs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return map[string]any{}, nil
}

func (m *fakeModel) CompleteStreaming(ctx context.Context, prompt string) (llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.stream = &fakeStream{pieces: append([]string(nil), m.pieces...), err: m.streamErr}
	return m.stream, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type fakeStream struct {
	pieces []string
	err    error
	recvs  int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	s.recvs++
	if len(s.pieces) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	p := s.pieces[0]
	s.pieces = s.pieces[1:]
	return p, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func coralModel() *fakeModel {
	return &fakeModel{
		replies: []map[string]any{
			{"concept": "coral bleaching"},
			{"explanation": "Coral bleaching occurs when..."},
		},
		pieces: []string{"Coral", " bleaching", " is..."},
	}
}

func collect(o *Orchestrator, question string, history []HistoryEntry) []Fragment {
	var out []Fragment
	for f := range o.Run(context.Background(), question, history) {
		out = append(out, f)
	}
	return out
}

func checkInvariants(t *testing.T, frags []Fragment) {
	t.Helper()
	if len(frags) == 0 {
		t.Fatal("expected at least one fragment")
	}
	if frags[0].Kind != KindThought {
		t.Errorf("expected first fragment to be a thought, got %s", frags[0].Kind)
	}
	terminals := 0
	started := false
	for i, f := range frags {
		if f.Terminal() {
			terminals++
			if i != len(frags)-1 {
				t.Errorf("terminal fragment %s at position %d is not last", f.Kind, i)
			}
		}
		if f.Kind == KindAnswerStart {
			started = true
		}
		if f.Kind == KindAnswerChunk && !started {
			t.Errorf("answer chunk at position %d before answer-start", i)
		}
	}
	if terminals != 1 {
		t.Errorf("expected exactly one terminal fragment, got %d", terminals)
	}
}

func TestRunCoralBleaching(t *testing.T) {
	model := coralModel()
	frags := collect(New(model, prompts.New(prompts.DefaultRegion())), "What causes coral bleaching?", nil)

	want := []Fragment{
		{Kind: KindThought, Text: "Analyzing..."},
		{Kind: KindThought, Text: "Focusing on: coral bleaching"},
		{Kind: KindFact, Text: "Coral bleaching occurs when..."},
		{Kind: KindAnswerStart},
		{Kind: KindAnswerChunk, Text: "Coral"},
		{Kind: KindAnswerChunk, Text: " bleaching"},
		{Kind: KindAnswerChunk, Text: " is..."},
		{Kind: KindAnswerEnd, Transcript: "Coral bleaching is..."},
	}
	if len(frags) != len(want) {
		t.Fatalf("expected %d fragments, got %d: %+v", len(want), len(frags), frags)
	}
	for i := range want {
		if frags[i] != want[i] {
			t.Errorf("fragment %d: expected %+v, got %+v", i, want[i], frags[i])
		}
	}
	checkInvariants(t, frags)

	if len(model.prompts) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(model.prompts))
	}
	if !strings.Contains(model.prompts[0], `"What causes coral bleaching?"`) {
		t.Error("expected question in decomposer prompt")
	}
	if !strings.Contains(model.prompts[1], `"coral bleaching"`) {
		t.Error("expected concept in explainer prompt")
	}
	if !strings.Contains(model.prompts[2], "Coral bleaching occurs when...") {
		t.Error("expected explanation in synthesizer prompt")
	}
	if !strings.Contains(model.prompts[2], NoHistory) {
		t.Error("expected empty-history marker in synthesizer prompt")
	}
	if !model.stream.closed {
		t.Error("expected stream to be closed")
	}
}

func TestRunMidStreamFailure(t *testing.T) {
	model := coralModel()
	model.pieces = []string{"Partial"}
	model.streamErr = errors.New("boom")

	frags := collect(New(model, nil), "What causes coral bleaching?", nil)
	checkInvariants(t, frags)

	n := len(frags)
	if n < 2 {
		t.Fatalf("expected at least 2 fragments, got %d", n)
	}
	if got := frags[n-2]; got.Kind != KindAnswerChunk || got.Text != "Partial" {
		t.Errorf("expected answer-chunk(Partial), got %+v", got)
	}
	last := frags[n-1]
	if last.Kind != KindError || last.Text != "[Error mid-stream: boom]" {
		t.Errorf("expected mid-stream error fragment, got %+v", last)
	}
	if last.Transcript != "Partial" {
		t.Errorf("expected partial transcript 'Partial', got %q", last.Transcript)
	}
	for _, f := range frags {
		if f.Kind == KindAnswerEnd {
			t.Error("expected no answer-end after a failure")
		}
	}
	if !model.stream.closed {
		t.Error("expected stream to be closed after failure")
	}
}

func TestRunEmptyStructuredRepliesFallBack(t *testing.T) {
	model := &fakeModel{
		replies: []map[string]any{{}, {}},
		pieces:  []string{"ok"},
	}
	frags := collect(New(model, nil), "hmm", nil)
	checkInvariants(t, frags)

	if frags[1].Text != "Focusing on: "+FallbackConcept {
		t.Errorf("expected fallback concept, got %q", frags[1].Text)
	}
	if len(model.prompts) < 2 || !strings.Contains(model.prompts[1], FallbackConcept) {
		t.Error("expected stage 2 to run with the fallback concept")
	}
	if frags[2].Kind != KindFact || frags[2].Text != FallbackExplanation {
		t.Errorf("expected fallback explanation fact, got %+v", frags[2])
	}
	if frags[len(frags)-1].Kind != KindAnswerEnd {
		t.Error("expected the run to complete")
	}
}

func TestRunNonStringAndBlankFieldsFallBack(t *testing.T) {
	model := &fakeModel{
		replies: []map[string]any{
			{"concept": 42.0},
			{"explanation": "   "},
		},
	}
	frags := collect(New(model, nil), "q", nil)
	if frags[1].Text != "Focusing on: "+FallbackConcept {
		t.Errorf("expected fallback for non-string concept, got %q", frags[1].Text)
	}
	if frags[2].Text != FallbackExplanation {
		t.Errorf("expected fallback for blank explanation, got %q", frags[2].Text)
	}
}

func TestRunDecomposeFailure(t *testing.T) {
	model := &fakeModel{replyErrs: []error{errors.New("backend unavailable")}}
	frags := collect(New(model, nil), "q", nil)
	checkInvariants(t, frags)

	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %+v", frags)
	}
	if frags[1].Text != "[Error: backend unavailable]" || frags[1].Transcript != "" {
		t.Errorf("unexpected error fragment: %+v", frags[1])
	}
	if model.calls() != 1 {
		t.Errorf("expected no calls after stage 1 failure, got %d", model.calls())
	}
}

func TestRunMalformedExplainFailure(t *testing.T) {
	model := &fakeModel{
		replies:   []map[string]any{{"concept": "drought"}},
		replyErrs: []error{nil, &llm.MalformedResponseError{Err: errors.New("unexpected end of JSON input")}},
	}
	frags := collect(New(model, nil), "q", nil)
	checkInvariants(t, frags)

	last := frags[len(frags)-1]
	if last.Kind != KindError || !strings.HasPrefix(last.Text, "[Error: malformed model response") {
		t.Errorf("unexpected terminal fragment: %+v", last)
	}
	for _, f := range frags {
		if f.Kind == KindFact || f.Kind == KindAnswerStart {
			t.Errorf("unexpected %s fragment after stage 2 failure", f.Kind)
		}
	}
}

func TestRunStreamOpenFailure(t *testing.T) {
	model := coralModel()
	model.openErr = errors.New("refused")
	frags := collect(New(model, nil), "q", nil)
	checkInvariants(t, frags)

	kinds := make([]Kind, len(frags))
	for i, f := range frags {
		kinds[i] = f.Kind
	}
	want := []Kind{KindThought, KindThought, KindFact, KindAnswerStart, KindError}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if frags[4].Text != "[Error: refused]" {
		t.Errorf("expected pre-stream error text, got %q", frags[4].Text)
	}
}

func TestRunRecoversModelPanic(t *testing.T) {
	model := coralModel()
	model.panicStage = 1
	frags := collect(New(model, nil), "q", nil)
	checkInvariants(t, frags)

	last := frags[len(frags)-1]
	if last.Kind != KindError || !strings.Contains(last.Text, "decoder exploded") {
		t.Errorf("expected panic to surface as an error fragment, got %+v", last)
	}
}

func TestRunSerializesWholeHistory(t *testing.T) {
	var history []HistoryEntry
	for i := 0; i < 15; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, HistoryEntry{Role: role, Content: "message"})
	}

	text := FormatHistory(history)
	if lines := strings.Split(text, "\n"); len(lines) != 15 {
		t.Errorf("expected 15 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(text, "USER: message\nASSISTANT: message") {
		t.Errorf("unexpected serialization: %q", text)
	}

	model := coralModel()
	collect(New(model, nil), "q", history)
	if !strings.Contains(model.prompts[2], text) {
		t.Error("expected synthesizer prompt to carry the full 15-line history")
	}
}

func TestRunUsesHistoryFormatter(t *testing.T) {
	var got int
	formatter := func(entries []HistoryEntry) string {
		got = len(entries)
		return "CUSTOM HISTORY"
	}
	model := coralModel()
	collect(New(model, nil, WithHistoryFormatter(formatter)), "q", []HistoryEntry{{Role: "user", Content: "hi"}})

	if got != 1 {
		t.Errorf("expected formatter to receive 1 entry, got %d", got)
	}
	if !strings.Contains(model.prompts[2], "CUSTOM HISTORY") {
		t.Error("expected custom history text in synthesizer prompt")
	}
	if strings.Contains(model.prompts[0], "CUSTOM HISTORY") {
		t.Error("decomposer prompt must ignore history")
	}
}

func TestRunEarlyBreakClosesStream(t *testing.T) {
	model := coralModel()
	var seen []Fragment
	for f := range New(model, nil).Run(context.Background(), "q", nil) {
		seen = append(seen, f)
		if f.Kind == KindAnswerChunk {
			break
		}
	}

	if seen[len(seen)-1].Text != "Coral" {
		t.Errorf("expected to stop at the first chunk, got %+v", seen[len(seen)-1])
	}
	if !model.stream.closed {
		t.Error("expected stream to be closed when the consumer stops")
	}
	if model.stream.recvs != 1 {
		t.Errorf("expected no reads after the consumer stopped, got %d", model.stream.recvs)
	}
}

func TestRunIsLazy(t *testing.T) {
	model := coralModel()
	seq := New(model, nil).Run(context.Background(), "q", nil)
	if model.calls() != 0 {
		t.Fatalf("expected no model calls before iteration, got %d", model.calls())
	}

	for f := range seq {
		if f.Kind == KindThought {
			break
		}
	}
	if model.calls() != 0 {
		t.Errorf("expected no model calls before the first thought is consumed, got %d", model.calls())
	}
}

func TestRunPassesQuestionUntouched(t *testing.T) {
	model := coralModel()
	collect(New(model, nil), "  spaced\tquestion  ", nil)
	if !strings.Contains(model.prompts[0], `"  spaced`+"\t"+`question  "`) {
		t.Error("expected question to reach the model untrimmed")
	}
}

type countingMetrics struct {
	mu       sync.Mutex
	stages   map[string]int
	chunks   int
	outcomes map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{stages: map[string]int{}, outcomes: map[string]int{}}
}

func (m *countingMetrics) ObserveStage(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

func (m *countingMetrics) ObserveChunk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks++
}

func (m *countingMetrics) ObserveRun(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func TestRunReportsMetrics(t *testing.T) {
	metrics := newCountingMetrics()
	collect(New(coralModel(), nil, WithMetrics(metrics)), "q", nil)

	if metrics.chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", metrics.chunks)
	}
	if metrics.outcomes["success"] != 1 {
		t.Errorf("expected one success, got %v", metrics.outcomes)
	}
	for _, stage := range []string{"decomposing", "explaining", "synthesizing"} {
		if metrics.stages[stage] != 1 {
			t.Errorf("expected stage %s observed once, got %d", stage, metrics.stages[stage])
		}
	}
}

func TestRunConcurrentInvocations(t *testing.T) {
	var wg sync.WaitGroup
	o := New(&concurrentModel{}, nil)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frags := collect(o, "q", nil)
			last := frags[len(frags)-1]
			if last.Kind != KindAnswerEnd || last.Transcript != "ab" {
				t.Errorf("unexpected terminal fragment: %+v", last)
			}
		}()
	}
	wg.Wait()
}

// concurrentModel returns fresh streams and keeps no per-call state.
type concurrentModel struct{}

func (concurrentModel) CompleteStructured(ctx context.Context, prompt string) (map[string]any, error) {
	return map[string]any{"concept": "c", "explanation": "e"}, nil
}

func (concurrentModel) CompleteStreaming(ctx context.Context, prompt string) (llm.Stream, error) {
	return &fakeStream{pieces: []string{"a", "b"}}, nil
}

func TestFragmentWire(t *testing.T) {
	tests := []struct {
		f    Fragment
		want string
	}{
		{thought("Analyzing..."), "[[START_THOUGHT]]Analyzing...[[END_THOUGHT]]"},
		{fact("E"), "[[START_FACT]]E[[END_FACT]]"},
		{Fragment{Kind: KindAnswerStart}, "[[START_ANSWER]]"},
		{Fragment{Kind: KindAnswerChunk, Text: "Coral"}, "Coral"},
		{Fragment{Kind: KindAnswerEnd, Transcript: "x"}, "[[END_ANSWER]]"},
		{Fragment{Kind: KindError, Text: "[Error: x]"}, "[Error: x]"},
	}
	for _, tt := range tests {
		if got := tt.f.Wire(); got != tt.want {
			t.Errorf("Wire(%s) = %q, want %q", tt.f.Kind, got, tt.want)
		}
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil); got != NoHistory {
		t.Errorf("expected %q, got %q", NoHistory, got)
	}
}

func TestStateString(t *testing.T) {
	if Synthesizing.String() != "synthesizing" || Failed.String() != "failed" {
		t.Error("unexpected state names")
	}
}
