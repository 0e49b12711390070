// Package events publishes comment lifecycle notifications for downstream
// consumers. Delivery is best effort: a failed publish never fails the edit or
// comment operation that produced it.
package events

import (
	"context"
	"time"
)

type Type string

const (
	DocumentCreated   Type = "document.created"
	CommentCreated    Type = "comment.created"
	CommentOrphaned   Type = "comment.orphaned"
	CommentReanchored Type = "comment.reanchored"
	CommentResolved   Type = "comment.resolved"
	CommentReopened   Type = "comment.reopened"
	CommentDeleted    Type = "comment.deleted"
)

// Event is the JSON payload written to the topic. Messages are keyed by
// DocumentID so one document's events stay ordered within a partition.
type Event struct {
	Type       Type      `json:"type"`
	DocumentID string    `json:"documentId"`
	CommentID  string    `json:"commentId,omitempty"`
	From       int       `json:"from,omitempty"`
	To         int       `json:"to,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps an event with the current time.
func New(typ Type, documentID, commentID string) Event {
	return Event{Type: typ, DocumentID: documentID, CommentID: commentID, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
