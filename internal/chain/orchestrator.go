// Package chain answers a question by chaining three model calls:
// decompose the question into one concept, explain that concept, then
// stream a synthesized answer. Progress is delivered as a lazy sequence of
// Fragments that the caller pulls.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/atmo-climate/atmo/internal/llm"
	"github.com/atmo-climate/atmo/internal/prompts"
	"go.uber.org/zap"
)

// Fallback values used when a structured reply lacks the expected field.
const (
	FallbackConcept     = "Unknown Concept"
	FallbackExplanation = "No explanation available."
)

// ModelClient is the model access the orchestrator needs. *llm.Client
// satisfies it.
type ModelClient interface {
	CompleteStructured(ctx context.Context, prompt string) (map[string]any, error)
	CompleteStreaming(ctx context.Context, prompt string) (llm.Stream, error)
}

// Metrics receives run instrumentation. All methods must be safe for
// concurrent use.
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	ObserveChunk()
	ObserveRun(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) ObserveChunk()                      {}
func (nopMetrics) ObserveRun(string)                  {}

// State is the stage a run is in.
type State int

const (
	Decomposing State = iota
	Explaining
	Synthesizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Decomposing:
		return "decomposing"
	case Explaining:
		return "explaining"
	case Synthesizing:
		return "synthesizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Orchestrator runs the three-stage chain. Its fields are fixed at
// construction, so one Orchestrator may serve any number of concurrent
// runs.
type Orchestrator struct {
	model         ModelClient
	prompts       *prompts.Templates
	formatHistory HistoryFormatter
	logger        *zap.Logger
	metrics       Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for stage transitions and failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithHistoryFormatter replaces FormatHistory.
func WithHistoryFormatter(f HistoryFormatter) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.formatHistory = f
		}
	}
}

// New creates an Orchestrator. A nil tpl uses templates without regional
// context.
func New(model ModelClient, tpl *prompts.Templates, opts ...Option) *Orchestrator {
	if tpl == nil {
		tpl = prompts.New(nil)
	}
	o := &Orchestrator{
		model:         model,
		prompts:       tpl,
		formatHistory: FormatHistory,
		logger:        zap.NewNop(),
		metrics:       nopMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run answers question in the context of history (oldest first). Nothing
// happens until the sequence is ranged over. Every completed sequence ends
// with exactly one answer-end or error fragment. If the consumer stops
// early, the open model stream is closed before Run's iterator returns.
//
// The question is passed to the model untouched and history is serialized
// without truncation.
func (o *Orchestrator) Run(ctx context.Context, question string, history []HistoryEntry) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		r := &run{
			Orchestrator: o,
			ctx:          ctx,
			yield:        yield,
			state:        Decomposing,
			logger:       o.logger.With(zap.Int("history_len", len(history))),
		}
		r.execute(question, history)
	}
}

// run holds the state of a single invocation.
type run struct {
	*Orchestrator
	ctx        context.Context
	yield      func(Fragment) bool
	logger     *zap.Logger
	state      State
	transcript strings.Builder
	chunks     int
}

// emit hands f to the consumer. After it returns false the run must not
// emit again.
func (r *run) emit(f Fragment) bool {
	if r.yield(f) {
		return true
	}
	if !f.Terminal() {
		r.logger.Debug("consumer stopped", zap.Stringer("state", r.state))
		r.metrics.ObserveRun("abandoned")
	}
	return false
}

func (r *run) enter(s State) {
	r.logger.Debug("chain stage", zap.Stringer("from", r.state), zap.Stringer("to", s))
	r.state = s
}

func (r *run) execute(question string, history []HistoryEntry) {
	if !r.emit(thought("Analyzing...")) {
		return
	}

	start := time.Now()
	concept, err := r.structuredField(r.prompts.Decomposer(question), "concept", FallbackConcept)
	r.metrics.ObserveStage(Decomposing.String(), time.Since(start))
	if err != nil {
		r.fail(err)
		return
	}
	if !r.emit(thought("Focusing on: " + concept)) {
		return
	}

	r.enter(Explaining)
	start = time.Now()
	explanation, err := r.structuredField(r.prompts.Explainer(concept), "explanation", FallbackExplanation)
	r.metrics.ObserveStage(Explaining.String(), time.Since(start))
	if err != nil {
		r.fail(err)
		return
	}
	if !r.emit(fact(explanation)) {
		return
	}

	r.enter(Synthesizing)
	start = time.Now()
	defer func() { r.metrics.ObserveStage(Synthesizing.String(), time.Since(start)) }()

	prompt := r.prompts.Synthesizer(question, explanation, r.formatHistory(history))
	if !r.emit(Fragment{Kind: KindAnswerStart}) {
		return
	}

	stream, err := r.openStream(prompt)
	if err != nil {
		r.fail(err)
		return
	}
	defer stream.Close()

	for {
		text, err := r.recv(stream)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.fail(err)
			return
		}
		r.transcript.WriteString(text)
		r.chunks++
		r.metrics.ObserveChunk()
		if !r.emit(Fragment{Kind: KindAnswerChunk, Text: text}) {
			return
		}
	}

	r.enter(Done)
	r.metrics.ObserveRun("success")
	r.emit(Fragment{Kind: KindAnswerEnd, Transcript: r.transcript.String()})
}

// fail emits the single error fragment that ends a failed run.
func (r *run) fail(err error) {
	failedIn := r.state
	r.enter(Failed)

	var text string
	if r.chunks > 0 {
		text = fmt.Sprintf("[Error mid-stream: %s]", err.Error())
	} else {
		text = fmt.Sprintf("[Error: %s]", err.Error())
	}
	r.logger.Warn("chain failed",
		zap.Stringer("stage", failedIn),
		zap.Int("chunks", r.chunks),
		zap.Error(err))

	r.metrics.ObserveRun("error")
	r.emit(Fragment{Kind: KindError, Text: text, Transcript: r.transcript.String()})
}

// structuredField performs one structured call and extracts key as a
// string. A missing, blank or non-string value yields fallback.
func (r *run) structuredField(prompt, key, fallback string) (value string, err error) {
	defer recoverModelPanic(&err)

	out, err := r.model.CompleteStructured(r.ctx, prompt)
	if err != nil {
		return "", err
	}
	if s, ok := out[key].(string); ok && strings.TrimSpace(s) != "" {
		return s, nil
	}
	r.logger.Warn("structured reply missing field, using fallback",
		zap.String("key", key),
		zap.String("fallback", fallback))
	return fallback, nil
}

func (r *run) openStream(prompt string) (stream llm.Stream, err error) {
	defer recoverModelPanic(&err)
	return r.model.CompleteStreaming(r.ctx, prompt)
}

func (r *run) recv(stream llm.Stream) (text string, err error) {
	defer recoverModelPanic(&err)
	return stream.Recv()
}

func recoverModelPanic(err *error) {
	if v := recover(); v != nil {
		*err = fmt.Errorf("model client panic: %v", v)
	}
}
