// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-subject-engine/internal/domain"
)

// CreateMessage inserts a new message row owned by subjectID.
func CreateMessage(ctx context.Context, db *gorm.DB, subjectID, authorID, content string, at time.Time) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at.UTC(),
	}
	return m, db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, subjectID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("subject_id = ?", subjectID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the limit most recent messages of a subject in
// chronological order (oldest first).
func ListRecentMessages(ctx context.Context, db *gorm.DB, subjectID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListRecentContents is ListRecentMessages projected to message contents.
func ListRecentContents(ctx context.Context, db *gorm.DB, subjectID string, limit int) ([]string, error) {
	msgs, err := ListRecentMessages(ctx, db, subjectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, subjectID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM subject_messages WHERE subject_id = ?", subjectID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, subjectID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MoveMessages reassigns every message of from to to and returns how many
// rows moved.
func MoveMessages(ctx context.Context, db *gorm.DB, from, to string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("subject_id = ?", from).
		Update("subject_id", to)
	return res.RowsAffected, res.Error
}
