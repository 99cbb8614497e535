// Package session keeps per-browser state between the steps of the
// enrollment workflow. The only state carried is the id of the draft
// submission being edited.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Session is one browser session.
type Session struct {
	ID           string     `gorm:"type:varchar(64);column:id;primaryKey" json:"id"`
	UserID       string     `gorm:"type:varchar(100);column:user_id;not null;index" json:"userId"`
	SubmissionID *uuid.UUID `gorm:"type:uuid;column:submission_id" json:"submissionId,omitempty"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index" json:"expiresAt"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (s *Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Save inserts or replaces the session.
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// State is the typed view of a session the views work with. At most one
// submission id is held at a time.
type State interface {
	SubmissionID() (uuid.UUID, bool)
	SetSubmissionID(ctx context.Context, id uuid.UUID) error
	ClearSubmissionID(ctx context.Context) error
}
