package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/search"
)

// TokenIndex maintains per-subject term frequencies and the corpus-wide
// document frequencies used for IDF weighting.
//
// The corpus size counts every subject ever created, including subjects later
// folded away by a merge, so IDF values never jump back after a merge.
type TokenIndex struct {
	DB *gorm.DB
}

// RecordTokens adds tokens to the subject's vector. Document frequency is
// incremented once per token the subject did not already contain. Pass the
// ingestion transaction as tx; a nil tx uses the index's own handle.
func (ix *TokenIndex) RecordTokens(ctx context.Context, tx *gorm.DB, subjectID string, tokens []string) ([]string, error) {
	if tx == nil {
		tx = ix.DB
	}
	return repo.AddSubjectTokens(ctx, tx, subjectID, search.Frequencies(tokens))
}

// CountSubject records one more subject in the corpus.
func (ix *TokenIndex) CountSubject(ctx context.Context, tx *gorm.DB) error {
	if tx == nil {
		tx = ix.DB
	}
	_, err := repo.IncrementCounter(ctx, tx, domain.CounterSubjects, 1)
	return err
}

// SubjectVector returns the subject's token -> tf mapping.
func (ix *TokenIndex) SubjectVector(ctx context.Context, subjectID string) (map[string]int64, error) {
	return repo.SubjectTokens(ctx, ix.DB, subjectID)
}

// CorpusSize returns the number of subjects ever created.
func (ix *TokenIndex) CorpusSize(ctx context.Context) (int64, error) {
	return repo.GetCounter(ctx, ix.DB, domain.CounterSubjects)
}

// DocFreqs returns df for each known token.
func (ix *TokenIndex) DocFreqs(ctx context.Context, tokens []string) (map[string]int64, error) {
	return repo.DocFreqs(ctx, ix.DB, tokens)
}
