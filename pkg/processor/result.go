package processor

import "fmt"

// Outcome is the terminal state of one candidate.
type Outcome int

const (
	// Submitted means a reply was posted and recorded.
	Submitted Outcome = iota
	// Deduplicated means the ledger already holds the post; nothing was done.
	Deduplicated
	// Skipped means the post was deliberately left alone.
	Skipped
	// Failed means the pipeline could not complete for this post.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Submitted:
		return "Submitted"
	case Deduplicated:
		return "Deduplicated"
	case Skipped:
		return "Skipped"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Reasons attached to non-submitted results.
const (
	ReasonAlreadyInteracted = "already-interacted"
	ReasonAlreadySolved     = "already-solved"
	ReasonGenerationFailed  = "generation-failed"
	ReasonDryRun            = "dry-run"
	ReasonNoContent         = "no-content"
	ReasonNavigation        = "navigation"
	ReasonNoReplyAffordance = "no-reply-affordance"
	ReasonNoEditor          = "no-editor"
	ReasonNoSubmit          = "no-submit"
	ReasonInteraction       = "interaction"
	ReasonLedger            = "ledger"
)

// Candidate is a discovered post.
type Candidate struct {
	// ID is derived deterministically from URL.
	ID  string
	URL string
	// Body is filled once the post page has been read.
	Body string
}

// Result reports what happened to one candidate.
type Result struct {
	Candidate Candidate
	Outcome   Outcome
	Reason    string

	// Reply is the text submitted, or the text that would have been.
	Reply string
	// Fallback is set when Reply is the configured fallback text.
	Fallback bool

	// Err is the underlying error of a Failed or Skipped result, if any.
	Err error
}

func (r Result) String() string {
	if r.Reason == "" {
		return fmt.Sprintf("%s %s", r.Outcome, r.Candidate.ID)
	}
	return fmt.Sprintf("%s(%s) %s", r.Outcome, r.Reason, r.Candidate.ID)
}
