// Package domain defines the persistence models for subjects, their messages,
// and the token statistics used to score lexical similarity. These types are
// mapped with GORM and form the core data layer of the subject engine.
package domain

import (
	"time"
)

// Subject is a topical thread of messages scoped to one channel.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ChannelID: channel the subject belongs to; indexed with LastMessageAt
//     so "most recently active subjects" is a range scan.
//   - CreatedAt / LastMessageAt / UpdatedAt: set by the engine, never by GORM
//     hooks; CreatedAt <= LastMessageAt <= UpdatedAt holds after every write.
//   - MessageCount: number of Message rows owned by this subject.
//   - Title / Summary / Keywords: optional metadata filled by synthesis.
//   - MetaFailCount / MetaFailedAt: synthesis failure bookkeeping.
type Subject struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ChannelID     string     `json:"channel_id"      gorm:"type:varchar(128);not null;index:idx_subjects_channel,priority:1"`
	CreatedAt     time.Time  `json:"created_at"      gorm:"not null;autoCreateTime:false"`
	UpdatedAt     time.Time  `json:"updated_at"      gorm:"not null;autoUpdateTime:false"`
	LastMessageAt time.Time  `json:"last_message_at" gorm:"not null;index:idx_subjects_channel,priority:2"`
	MessageCount  int        `json:"message_count"   gorm:"not null;default:0"`
	Title         *string    `json:"title,omitempty"    gorm:"type:varchar(255)"`
	Summary       *string    `json:"summary,omitempty"  gorm:"type:text"`
	Keywords      *string    `json:"keywords,omitempty" gorm:"type:text"`
	MetaFailCount int        `json:"meta_fail_count" gorm:"not null;default:0"`
	MetaFailedAt  *time.Time `json:"meta_failed_at,omitempty"`
}

// TableName returns the database table name for Subject.
func (Subject) TableName() string { return "subjects" }

// HasTitle reports whether a non-empty title is stored.
func (s Subject) HasTitle() bool { return s.Title != nil && *s.Title != "" }

// HasSummary reports whether a non-empty summary is stored.
func (s Subject) HasSummary() bool { return s.Summary != nil && *s.Summary != "" }

// Message is one ingested chat message. It belongs to exactly one subject at
// any instant; only a merge may move it to another subject.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SubjectID string    `json:"subject_id" gorm:"type:char(36);not null;index:idx_subject_msgs,priority:1"`
	AuthorID  string    `json:"author_id"  gorm:"type:varchar(128);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime:false;index:idx_subject_msgs,priority:2"`

	// Subject is the owning thread. The RESTRICT constraint keeps a subject
	// from being removed while it still owns messages.
	Subject Subject `json:"-" gorm:"foreignKey:SubjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "subject_messages" }

// TokenDF is the corpus-wide document frequency of a token: the number of
// distinct subjects in which it has ever appeared.
type TokenDF struct {
	Token string `gorm:"type:varchar(191);primaryKey"`
	DF    int64  `gorm:"column:df;not null;default:0"`
}

// TableName returns the database table name for TokenDF.
func (TokenDF) TableName() string { return "tokens_df" }

// SubjectToken is the per-subject term frequency of a token.
type SubjectToken struct {
	SubjectID string `gorm:"type:char(36);primaryKey;index:idx_subject_tokens_subject"`
	Token     string `gorm:"type:varchar(191);primaryKey"`
	TF        int64  `gorm:"column:tf;not null;default:0"`
}

// TableName returns the database table name for SubjectToken.
func (SubjectToken) TableName() string { return "subject_tokens" }

// SubjectCounter holds named monotonic counters. The "subjects" row counts
// every subject ever created, including ones later folded by a merge.
type SubjectCounter struct {
	Name  string `gorm:"type:varchar(64);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

// TableName returns the database table name for SubjectCounter.
func (SubjectCounter) TableName() string { return "subject_counters" }

// CounterSubjects is the SubjectCounter row used as the IDF corpus size.
const CounterSubjects = "subjects"
