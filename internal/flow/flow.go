// Package flow runs the scripted screening interview: it interprets one
// inbound message against the sender's conversation state and decides whether
// to advance, branch, block, answer an FAQ or finish and score the candidate.
package flow

import (
	"context"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// ReplyKind tells the transport what to do with a Reply.
type ReplyKind int

const (
	// ReplySilent means nothing is sent back.
	ReplySilent ReplyKind = iota
	// ReplyText carries a message for the candidate.
	ReplyText
	// ReplyComplete means the interview finished; no question follows.
	ReplyComplete
)

// Reply is the engine's decision for one inbound message.
type Reply struct {
	Kind ReplyKind
	Text string
}

// Body returns the wire form: nil when silent, the completion sentinel when done.
func (r Reply) Body() *string {
	switch r.Kind {
	case ReplyText:
		s := r.Text
		return &s
	case ReplyComplete:
		s := models.CompletionSentinel
		return &s
	default:
		return nil
	}
}

func textReply(s string) Reply { return Reply{Kind: ReplyText, Text: s} }

// ConversationStore is keyed read/write access to per-sender state.
// GetConversation returns (nil, nil) when the sender has no state.
type ConversationStore interface {
	GetConversation(ctx context.Context, sender string) (*models.ConversationState, error)
	SaveConversation(ctx context.Context, state *models.ConversationState) error
	DeleteConversation(ctx context.Context, sender string) error
}

// CandidateSink receives finished candidates.
type CandidateSink interface {
	SaveCandidate(ctx context.Context, rec *models.CandidateRecord) error
}

// NotificationSink tells an operator about finished candidates.
type NotificationSink interface {
	NotifyCandidate(ctx context.Context, rec models.CandidateRecord) error
}

// ChatLogger records processed turns.
type ChatLogger interface {
	AppendChatLog(ctx context.Context, entry models.ChatLogEntry) error
}

// Assistant is an external conversational model used as an optional fallback.
type Assistant interface {
	Reply(ctx context.Context, sender string, history []models.ChatMessage) (string, error)
}

// CriteriaSource hands out consistent criteria snapshots.
type CriteriaSource interface {
	Snapshot() models.QualificationCriteria
}
