package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/search"
)

// Sampling windows for the Jaccard half of the blended score.
const (
	assignFetch = 8 // messages fetched per candidate during assignment
	assignKeep  = 5 // most recent of those used as the sample
	mergeFetch  = 10
	mergeKeep   = 6
)

// Similarity is a blended score with its two components.
type Similarity struct {
	Jaccard float64
	Cosine  float64
	Blended float64
}

// Scorer computes the blended Jaccard + TF-IDF cosine similarity between a
// token sequence and a stored subject.
type Scorer struct {
	DB    *gorm.DB
	Index *TokenIndex
}

// Score compares tokens with the subject's recent messages and term vector.
// It is 0 when tokens is empty or the subject has no recorded tokens.
func (sc *Scorer) Score(ctx context.Context, tokens []string, subjectID string) (Similarity, error) {
	return sc.ScoreSample(ctx, tokens, subjectID, assignFetch, assignKeep)
}

// ScoreSample is Score with an explicit Jaccard sample: the last keep of the
// subject's last fetch messages.
func (sc *Scorer) ScoreSample(ctx context.Context, tokens []string, subjectID string, fetch, keep int) (Similarity, error) {
	if len(tokens) == 0 {
		return Similarity{}, nil
	}
	contents, err := repo.ListRecentContents(ctx, sc.DB, subjectID, fetch)
	if err != nil {
		return Similarity{}, err
	}
	if len(contents) > keep {
		contents = contents[len(contents)-keep:]
	}
	j := search.Jaccard(tokens, search.TokenizeAll(contents))

	c, err := sc.cosine(ctx, tokens, subjectID)
	if err != nil {
		return Similarity{}, err
	}
	return Similarity{Jaccard: j, Cosine: c, Blended: search.Blend(j, c)}, nil
}

func (sc *Scorer) cosine(ctx context.Context, tokens []string, subjectID string) (float64, error) {
	doc, err := sc.Index.SubjectVector(ctx, subjectID)
	if err != nil || len(doc) == 0 {
		return 0, err
	}
	n, err := sc.Index.CorpusSize(ctx)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	query := search.Frequencies(tokens)
	wanted := make([]string, 0, len(query)+len(doc))
	for t := range query {
		wanted = append(wanted, t)
	}
	for t := range doc {
		if _, dup := query[t]; !dup {
			wanted = append(wanted, t)
		}
	}
	df, err := sc.Index.DocFreqs(ctx, wanted)
	if err != nil {
		return 0, err
	}
	return search.TFIDFCosine(query, doc, df, n), nil
}
