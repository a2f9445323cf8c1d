package domain

import "time"

// Idempotency records the outcome of an ingestion request, keyed by
// (channel_id, author_id, key). A retried request with the same key replays
// the recorded subject/message ids instead of ingesting the message twice.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ChannelID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_channel_author_key,priority:1"`
	AuthorID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_channel_author_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_channel_author_key,priority:3"`
	SubjectID string    `gorm:"type:TEXT NOT NULL"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
