// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Subject
// model.
//
// All functions accept a *gorm.DB handle, so they can run inside a
// transaction opened by the caller. They follow the "thin repository"
// approach: no business logic, only CRUD persistence and query composition.
//
// Error semantics:
//   - When a subject is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-subject-engine/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrSubjectHasMessages is returned by DeleteSubject when the subject still
// owns message rows.
var ErrSubjectHasMessages = errors.New("subject still owns messages")

// CreateSubject inserts an empty subject for channelID with all timestamps
// set to now.
func CreateSubject(ctx context.Context, db *gorm.DB, channelID string, now time.Time) (*domain.Subject, error) {
	now = now.UTC()
	s := &domain.Subject{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSubject fetches a subject by id.
func GetSubject(ctx context.Context, db *gorm.DB, id string) (*domain.Subject, error) {
	var s domain.Subject
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRecentSubjects returns up to limit subjects of a channel, most recently
// active first. limit <= 0 returns every subject of the channel.
func ListRecentSubjects(ctx context.Context, db *gorm.DB, channelID string, limit int) ([]domain.Subject, error) {
	var out []domain.Subject
	q := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("last_message_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountSubjects returns the number of live subjects in a channel.
func CountSubjects(ctx context.Context, db *gorm.DB, channelID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("channel_id = ?", channelID).
		Count(&total).Error
	return total, err
}

// ListSubjectsPage returns a page of a channel's subjects ordered by recency.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListSubjectsPage(ctx context.Context, db *gorm.DB, channelID string, offset, limit int) ([]domain.Subject, error) {
	var out []domain.Subject
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("last_message_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListMicroSubjects returns channel subjects with at most maxMessages
// messages created at or after since, newest first.
func ListMicroSubjects(ctx context.Context, db *gorm.DB, channelID string, maxMessages int, since time.Time) ([]domain.Subject, error) {
	var out []domain.Subject
	err := db.WithContext(ctx).
		Where("channel_id = ? AND message_count <= ? AND created_at >= ?", channelID, maxMessages, since.UTC()).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// TouchSubjectOnMessage records one more message: the message count is
// incremented and the activity timestamps are overwritten. Callers keep
// lastMessageAt <= updatedAt.
func TouchSubjectOnMessage(ctx context.Context, db *gorm.DB, id string, lastMessageAt, updatedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": lastMessageAt.UTC(),
			"updated_at":      updatedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubjectActivity overwrites the counters and activity timestamps of a
// subject. Used when a merge folds another subject into this one.
func SetSubjectActivity(ctx context.Context, db *gorm.DB, id string, messageCount int, lastMessageAt, updatedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   messageCount,
			"last_message_at": lastMessageAt.UTC(),
			"updated_at":      updatedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubjectTitle stores a title without touching other metadata.
func SetSubjectTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	return db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("id = ?", id).
		Update("title", title).Error
}

// UpdateSubjectMeta stores the non-empty fields among title, summary and
// keywords, keeping the stored value for empty ones, and bumps updated_at
// without moving it before last_message_at.
func UpdateSubjectMeta(ctx context.Context, db *gorm.DB, id, title, summary, keywords string, now time.Time) error {
	s, err := GetSubject(ctx, db, id)
	if err != nil {
		return err
	}
	updated := now.UTC()
	if updated.Before(s.UpdatedAt) {
		updated = s.UpdatedAt
	}
	fields := map[string]any{"updated_at": updated}
	if title != "" {
		fields["title"] = title
	}
	if summary != "" {
		fields["summary"] = summary
	}
	if keywords != "" {
		fields["keywords"] = keywords
	}
	return db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// IncrMetaFail increments the synthesis failure counter and records when the
// failure happened.
func IncrMetaFail(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Subject{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"meta_fail_count": gorm.Expr("meta_fail_count + 1"),
			"meta_failed_at":  at.UTC(),
		}).Error
}

// DeleteSubject removes a subject that no longer owns any message, together
// with its token rows. It returns ErrSubjectHasMessages otherwise.
func DeleteSubject(ctx context.Context, db *gorm.DB, id string) error {
	owned, err := CountMessages(ctx, db, id)
	if err != nil {
		return err
	}
	if owned > 0 {
		return ErrSubjectHasMessages
	}
	if err := DeleteSubjectTokens(ctx, db, id); err != nil {
		return err
	}
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Subject{}).Error
}

// ResetChannel deletes every subject of a channel along with its messages
// and token rows. Document frequencies and the corpus counter are kept.
func ResetChannel(ctx context.Context, db *gorm.DB, channelID string) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&domain.Subject{}).Select("id").Where("channel_id = ?", channelID)
		if err := tx.Where("subject_id IN (?)", ids).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_id IN (?)", ids).Delete(&domain.SubjectToken{}).Error; err != nil {
			return err
		}
		res := tx.Where("channel_id = ?", channelID).Delete(&domain.Subject{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// ResetAll deletes every subject, message and subject token row.
func ResetAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.SubjectToken{}).Error; err != nil {
			return err
		}
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Subject{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
