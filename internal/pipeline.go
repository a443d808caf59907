package contact

import "context"

type OutcomeKind int

const (
	// Accepted means the notification was delivered.
	Accepted OutcomeKind = iota
	// AcceptedSilently means the submission looked like spam and was dropped.
	// The sender cannot tell it apart from Accepted.
	AcceptedSilently
	// Rejected means validation failed; Errors lists every violation.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case AcceptedSilently:
		return "accepted_silently"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind       OutcomeKind
	Submission Submission
	Errors     ValidationErrors
}

// Notifier delivers an accepted submission.
type Notifier interface {
	Dispatch(ctx context.Context, s Submission, requestID string) error
}

// Pipeline runs validation, spam screening and dispatch for one submission.
type Pipeline struct {
	notifier Notifier
	isSpam   func(string) bool
}

func NewPipeline(notifier Notifier) *Pipeline {
	return &Pipeline{notifier: notifier, isSpam: IsSpam}
}

// Process returns a non-nil error only when dispatch fails.
func (p *Pipeline) Process(ctx context.Context, raw any, requestID string) (Outcome, error) {
	logger := LoggerFromContext(ctx)

	s, errs := Validate(raw)
	if len(errs) > 0 {
		logger.Warn("validation failed", "errors", errs)
		return Outcome{Kind: Rejected, Errors: errs}, nil
	}

	if p.isSpam(SpamText(s)) {
		logger.Warn("spam detected, skipping dispatch")
		return Outcome{Kind: AcceptedSilently, Submission: s}, nil
	}

	if err := p.notifier.Dispatch(ctx, s, requestID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Accepted, Submission: s}, nil
}
