package domain

import "time"

// Chat event types written to the event stream.
const (
	EventMessageCreated  = "message.created"
	EventMessageEdited   = "message.edited"
	EventMessageDeleted  = "message.deleted"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
)

// ChatEvent is the canonical record of a ledger mutation, published for
// downstream consumers after the mutation is persisted.
type ChatEvent struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	CommunityID string      `json:"communityId"`
	MessageID   string      `json:"messageId"`
	ActorID     string      `json:"actorId"`
	Data        interface{} `json:"data,omitempty"`
	OccurredAt  time.Time   `json:"occurredAt"`
}
