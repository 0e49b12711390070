package store

import (
	"time"

	"marginalia/api/internal/anchor"
)

const (
	CommentOpen     = "OPEN"
	CommentResolved = "RESOLVED"
)

type Document struct {
	ID        string
	Title     string
	SiteID    uint32
	Length    int
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is a persisted comment. FromRelative and ToRelative hold the encoded
// anchor; both nil means the selection integers are authoritative.
type Comment struct {
	ID             string
	DocumentID     string
	Body           string
	Quote          string
	Author         string
	SelectionFrom  int
	SelectionTo    int
	FromRelative   *string
	ToRelative     *string
	Status         string
	OrphanedReason string
	ResolvedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c Comment) Anchor() anchor.Stored {
	return anchor.Stored{FromRelative: c.FromRelative, ToRelative: c.ToRelative}
}

func (c Comment) Orphaned() bool {
	return c.OrphanedReason != ""
}

type Reply struct {
	ID        string
	CommentID string
	Author    string
	Body      string
	CreatedAt time.Time
}
