package chain

// Kind identifies what a Fragment carries.
type Kind string

const (
	KindThought     Kind = "thought"
	KindFact        Kind = "fact"
	KindAnswerStart Kind = "answer-start"
	KindAnswerChunk Kind = "answer-chunk"
	KindAnswerEnd   Kind = "answer-end"
	KindError       Kind = "error"
)

// Wire markers wrapped around fragments on the plain-text stream.
const (
	StartThought = "[[START_THOUGHT]]"
	EndThought   = "[[END_THOUGHT]]"
	StartFact    = "[[START_FACT]]"
	EndFact      = "[[END_FACT]]"
	StartAnswer  = "[[START_ANSWER]]"
	EndAnswer    = "[[END_ANSWER]]"
)

// Fragment is one unit of streamed output from a chain run.
//
// Transcript is only set on terminal fragments: on answer-end it is the
// full answer, on error it is whatever answer text was emitted before the
// failure (possibly empty).
type Fragment struct {
	Kind       Kind
	Text       string
	Transcript string
}

// Terminal reports whether f ends a run.
func (f Fragment) Terminal() bool {
	return f.Kind == KindAnswerEnd || f.Kind == KindError
}

// Wire renders f for the plain-text stream. Answer chunks and errors are
// written as-is.
func (f Fragment) Wire() string {
	switch f.Kind {
	case KindThought:
		return StartThought + f.Text + EndThought
	case KindFact:
		return StartFact + f.Text + EndFact
	case KindAnswerStart:
		return StartAnswer
	case KindAnswerEnd:
		return EndAnswer
	default:
		return f.Text
	}
}

func thought(text string) Fragment { return Fragment{Kind: KindThought, Text: text} }
func fact(text string) Fragment    { return Fragment{Kind: KindFact, Text: text} }
