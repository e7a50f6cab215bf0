package enforcer

import "fmt"

// Kind enumerates the terminal states of processing one merge request event.
type Kind int

const (
	KindIgnored Kind = iota
	KindValidTicket
	KindInvalidTicket
	KindClosedCommented
	KindClosedCommentFailed
	KindCloseFailed
)

func (k Kind) String() string {
	switch k {
	case KindIgnored:
		return "ignored"
	case KindValidTicket:
		return "valid_ticket"
	case KindInvalidTicket:
		return "invalid_ticket"
	case KindClosedCommented:
		return "closed_commented"
	case KindClosedCommentFailed:
		return "closed_comment_failed"
	case KindCloseFailed:
		return "close_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Source says where a ticket reference was found.
type Source string

const (
	SourceBranch      Source = "branch name"
	SourceDescription Source = "description"
)

// Outcome is the result of processing one event. Failures that were handled
// locally are recorded here rather than returned as errors.
type Outcome struct {
	Kind   Kind
	Source Source // set for KindValidTicket and KindInvalidTicket
	Ticket string // set for KindValidTicket and KindInvalidTicket
	IID    int64

	// CloseErr is set for KindCloseFailed.
	CloseErr error
	// CommentErr is set for KindClosedCommentFailed; the close still stands.
	CommentErr error
}

// Message is the human-readable text returned to the webhook caller.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindIgnored:
		return "Merge request is not being opened, ignoring."
	case KindValidTicket:
		return fmt.Sprintf("Valid JIRA ticket in %s: %s", o.Source, o.Ticket)
	case KindInvalidTicket:
		return fmt.Sprintf("Invalid JIRA ticket in %s: %s", o.Source, o.Ticket)
	case KindClosedCommented:
		return fmt.Sprintf("Merge request %d closed", o.IID)
	case KindClosedCommentFailed:
		return fmt.Sprintf("Merge request %d closed, but commenting failed", o.IID)
	case KindCloseFailed:
		return fmt.Sprintf("Failed to close merge request %d", o.IID)
	default:
		return o.Kind.String()
	}
}
