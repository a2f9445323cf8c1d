// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the token statistics used for TF-IDF
// scoring: per-subject term frequencies, corpus document frequencies and the
// named counters that size the corpus.
package repo

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-subject-engine/internal/domain"
)

// DocFreqBatchSize bounds the IN (...) list of a single DocFreqs query.
const DocFreqBatchSize = 200

// AddSubjectTokens adds freqs to the subject's term frequencies and
// increments the document frequency of every token the subject did not hold
// before. It returns those newly seen tokens, sorted.
//
// Run it inside the caller's transaction so the read of existing tokens and
// the writes are atomic.
func AddSubjectTokens(ctx context.Context, db *gorm.DB, subjectID string, freqs map[string]int) ([]string, error) {
	if len(freqs) == 0 {
		return nil, nil
	}
	tokens := make([]string, 0, len(freqs))
	for t := range freqs {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	existing := make(map[string]struct{}, len(tokens))
	for start := 0; start < len(tokens); start += DocFreqBatchSize {
		end := min(start+DocFreqBatchSize, len(tokens))
		var have []string
		err := db.WithContext(ctx).
			Model(&domain.SubjectToken{}).
			Where("subject_id = ? AND token IN ?", subjectID, tokens[start:end]).
			Pluck("token", &have).Error
		if err != nil {
			return nil, err
		}
		for _, t := range have {
			existing[t] = struct{}{}
		}
	}

	rows := make([]domain.SubjectToken, 0, len(tokens))
	var fresh []string
	for _, t := range tokens {
		rows = append(rows, domain.SubjectToken{SubjectID: subjectID, Token: t, TF: int64(freqs[t])})
		if _, ok := existing[t]; !ok {
			fresh = append(fresh, t)
		}
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]any{"tf": gorm.Expr("subject_tokens.tf + excluded.tf")}),
	}).CreateInBatches(rows, DocFreqBatchSize).Error
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		dfs := make([]domain.TokenDF, len(fresh))
		for i, t := range fresh {
			dfs[i] = domain.TokenDF{Token: t, DF: 1}
		}
		err = db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.Assignments(map[string]any{"df": gorm.Expr("tokens_df.df + 1")}),
		}).CreateInBatches(dfs, DocFreqBatchSize).Error
		if err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// SubjectTokens returns the term-frequency vector of a subject.
func SubjectTokens(ctx context.Context, db *gorm.DB, subjectID string) (map[string]int64, error) {
	var rows []domain.SubjectToken
	if err := db.WithContext(ctx).Where("subject_id = ?", subjectID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Token] = r.TF
	}
	return out, nil
}

// DocFreqs returns the document frequency of each requested token that has
// one. Tokens are queried in batches of DocFreqBatchSize.
func DocFreqs(ctx context.Context, db *gorm.DB, tokens []string) (map[string]int64, error) {
	out := make(map[string]int64, len(tokens))
	for start := 0; start < len(tokens); start += DocFreqBatchSize {
		end := min(start+DocFreqBatchSize, len(tokens))
		var rows []domain.TokenDF
		if err := db.WithContext(ctx).Where("token IN ?", tokens[start:end]).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.Token] = r.DF
		}
	}
	return out, nil
}

// MergeSubjectTokens adds every term frequency of from onto to, summing rows
// that both subjects share. The rows of from are left in place.
func MergeSubjectTokens(ctx context.Context, db *gorm.DB, from, to string) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subject_tokens (subject_id, token, tf)
		 SELECT ?, token, tf FROM subject_tokens WHERE subject_id = ?
		 ON CONFLICT (subject_id, token) DO UPDATE SET tf = subject_tokens.tf + excluded.tf`,
		to, from,
	).Error
}

// DeleteSubjectTokens removes every term-frequency row of a subject.
func DeleteSubjectTokens(ctx context.Context, db *gorm.DB, subjectID string) error {
	return db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&domain.SubjectToken{}).Error
}

// IncrementCounter adds delta to the named counter, creating it if needed,
// and returns the new value.
func IncrementCounter(ctx context.Context, db *gorm.DB, name string, delta int64) (int64, error) {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("subject_counters.value + ?", delta)}),
	}).Create(&domain.SubjectCounter{Name: name, Value: delta}).Error
	if err != nil {
		return 0, err
	}
	return GetCounter(ctx, db, name)
}

// GetCounter returns the named counter, or 0 if it was never incremented.
func GetCounter(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	var c domain.SubjectCounter
	err := db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}
