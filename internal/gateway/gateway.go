// Package gateway sits between transports and the answer chain: it
// assigns session IDs, loads bounded history, forwards fragments and
// persists the outcome of every turn.
package gateway

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/chain"
	"github.com/atmo-climate/atmo/internal/history"
)

// DefaultHistoryLimit is how many prior messages feed a new turn.
const DefaultHistoryLimit = 10

// Text recorded when the consumer goes away before the turn finishes.
const (
	disconnectedMidStream = "[Error mid-stream: client disconnected]"
	disconnectedEarly     = "[Error: client disconnected]"
	endedWithoutAnswer    = "[Error: answer ended unexpectedly]"
)

// Store is the persistence the gateway needs. *history.Store satisfies it.
type Store interface {
	Append(ctx context.Context, sessionID, role, content string) (*history.Message, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
	Messages(ctx context.Context, sessionID string) ([]history.Message, error)
	ListSessions(ctx context.Context) ([]history.Session, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Runner produces the fragments of one answer. *chain.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context, question string, history []chain.HistoryEntry) iter.Seq[chain.Fragment]
}

// Metrics counts persisted rows by role.
type Metrics interface {
	ObserveCommit(role string)
}

// Gateway runs turns against a Runner and records them in a Store.
//
// Two turns on the same session may run concurrently. Their rows are then
// interleaved in the store and each turn only sees history committed
// before it began. No per-session locking is done.
type Gateway struct {
	store        Store
	runner       Runner
	historyLimit int
	logger       *zap.Logger
	metrics      Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHistoryLimit sets how many prior messages feed a turn.
func WithHistoryLimit(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.historyLimit = n
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the commit metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a Gateway.
func New(store Store, runner Runner, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		runner:       runner,
		historyLimit: DefaultHistoryLimit,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the underlying store.
func (g *Gateway) Store() Store { return g.store }

// SetupError reports that a turn could not be started. SessionID is the
// session the failure was recorded against.
type SetupError struct {
	SessionID string
	Err       error
}

func (e *SetupError) Error() string { return e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// Turn is one question being answered within a session.
type Turn struct {
	SessionID string

	g        *Gateway
	ctx      context.Context
	question string
	history  []chain.HistoryEntry
}

// Begin starts a turn. An empty sessionID starts a new session. Prior
// history is read before the question is stored, so the question never
// appears in its own history. On failure an error row is recorded when
// possible and a *SetupError is returned.
func (g *Gateway) Begin(ctx context.Context, sessionID, question string) (*Turn, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	prior, err := g.store.Recent(ctx, sessionID, g.historyLimit)
	if err != nil {
		return nil, g.setupFailed(ctx, sessionID, fmt.Errorf("loading history: %w", err))
	}
	if _, err := g.store.Append(ctx, sessionID, history.RoleUser, question); err != nil {
		return nil, g.setupFailed(ctx, sessionID, fmt.Errorf("saving question: %w", err))
	}
	g.observeCommit(history.RoleUser)

	entries := make([]chain.HistoryEntry, 0, len(prior))
	for _, m := range prior {
		entries = append(entries, chain.HistoryEntry{Role: m.Role, Content: m.Content})
	}

	return &Turn{
		SessionID: sessionID,
		g:         g,
		ctx:       ctx,
		question:  question,
		history:   entries,
	}, nil
}

func (g *Gateway) setupFailed(ctx context.Context, sessionID string, err error) error {
	g.logger.Error("turn setup failed", zap.String("session_id", sessionID), zap.Error(err))
	g.commit(ctx, sessionID, history.RoleError, fmt.Sprintf("[Error: %s]", err.Error()))
	return &SetupError{SessionID: sessionID, Err: err}
}

// Fragments runs the chain and yields its fragments unchanged. The turn's
// outcome is committed before the terminal fragment is yielded:
//
//   - answer-end: the transcript as an assistant message
//   - error after answer text: the partial transcript plus the error text
//     as an assistant message
//   - error before answer text: the error text as an error message
//
// If the consumer stops early the partial transcript is committed with a
// client-disconnected marker. Commits ignore cancellation of the turn's
// context.
func (t *Turn) Fragments() iter.Seq[chain.Fragment] {
	return func(yield func(chain.Fragment) bool) {
		var transcript strings.Builder
		terminal := false
		abandoned := false

		defer func() {
			if terminal {
				return
			}
			switch {
			case !abandoned:
				t.commit(history.RoleError, endedWithoutAnswer)
			case transcript.Len() > 0:
				t.commit(history.RoleAssistant, transcript.String()+disconnectedMidStream)
			default:
				t.commit(history.RoleError, disconnectedEarly)
			}
		}()

		for f := range t.g.runner.Run(t.ctx, t.question, t.history) {
			switch f.Kind {
			case chain.KindAnswerChunk:
				transcript.WriteString(f.Text)
			case chain.KindAnswerEnd:
				terminal = true
				t.commit(history.RoleAssistant, f.Transcript)
			case chain.KindError:
				terminal = true
				partial := f.Transcript
				if partial == "" {
					partial = transcript.String()
				}
				if partial != "" {
					t.commit(history.RoleAssistant, partial+f.Text)
				} else {
					t.commit(history.RoleError, f.Text)
				}
			}
			if !yield(f) {
				abandoned = true
				return
			}
		}
	}
}

func (t *Turn) commit(role, content string) {
	t.g.commit(t.ctx, t.SessionID, role, content)
}

func (g *Gateway) commit(ctx context.Context, sessionID, role, content string) {
	if _, err := g.store.Append(context.WithoutCancel(ctx), sessionID, role, content); err != nil {
		g.logger.Error("committing transcript",
			zap.String("session_id", sessionID),
			zap.String("role", role),
			zap.Error(err))
		return
	}
	g.observeCommit(role)
}

func (g *Gateway) observeCommit(role string) {
	if g.metrics != nil {
		g.metrics.ObserveCommit(role)
	}
}
