// Package services – Reconciler
//
// The Reconciler repairs over-fragmentation. A short tangent that was split
// into its own subject ("micro" subject) is folded back into an older, larger
// subject of the same channel when the conversation returns to it shortly
// afterwards and the two are lexically close enough.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/search"
)

// errMergeSkipped aborts a merge transaction whose subjects changed since
// they were scored.
var errMergeSkipped = errors.New("merge skipped")

// Merge describes one folded micro subject.
type Merge struct {
	MicroID  string
	TargetID string
	Score    float64
	Moved    int64
}

// Reconciler folds micro subjects into older matching subjects.
type Reconciler struct {
	DB       *gorm.DB
	Scorer   *Scorer
	Settings *SettingsStore
	Log      zerolog.Logger
	Now      func() time.Time

	// Lock, when set, serializes the merge write with ingestion on the
	// same channel.
	Lock func(channelID string) (unlock func())
}

// Reconcile scans the channel's micro subjects, skipping currentSubjectID,
// and merges each into its best target scoring at least the merge threshold.
func (r *Reconciler) Reconcile(ctx context.Context, channelID, currentSubjectID string) ([]Merge, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "Reconcile",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.String("subject.id", currentSubjectID),
		),
	)
	defer span.End()

	set := DefaultSettings()
	if r.Settings != nil {
		set = r.Settings.Get()
	}
	if !set.MicroMergeEnabled {
		return nil, nil
	}
	now := r.now()

	micros, err := repo.ListMicroSubjects(ctx, r.DB, channelID, set.MicroMaxMessages, now.Add(-set.MicroReturnWindow))
	if err != nil || len(micros) == 0 {
		return nil, err
	}
	// Every other subject of the channel is a merge target, not just the
	// assignment candidates.
	targets, err := repo.ListRecentSubjects(ctx, r.DB, channelID, 0)
	if err != nil {
		return nil, err
	}

	var merges []Merge
	for _, micro := range micros {
		if micro.ID == currentSubjectID {
			continue
		}
		contents, err := repo.ListRecentContents(ctx, r.DB, micro.ID, mergeFetch)
		if err != nil {
			return merges, err
		}
		tokens := search.TokenizeAll(contents)
		if len(tokens) == 0 {
			continue
		}

		var (
			bestID    string
			bestScore float64
		)
		for _, t := range targets {
			if t.ID == micro.ID || t.MessageCount <= set.MicroMaxMessages || !t.CreatedAt.Before(micro.CreatedAt) {
				continue
			}
			sim, err := r.Scorer.ScoreSample(ctx, tokens, t.ID, mergeFetch, mergeKeep)
			if err != nil {
				return merges, err
			}
			if sim.Blended >= set.MicroMergeThreshold && sim.Blended > bestScore {
				bestID, bestScore = t.ID, sim.Blended
			}
		}
		if bestID == "" {
			continue
		}

		moved, err := r.merge(ctx, channelID, micro.ID, bestID, now)
		if errors.Is(err, errMergeSkipped) {
			continue
		}
		if err != nil {
			return merges, err
		}
		subjectMerges.Inc()
		m := Merge{MicroID: micro.ID, TargetID: bestID, Score: bestScore, Moved: moved}
		merges = append(merges, m)
		r.Log.Info().
			Str("channel_id", channelID).
			Str("micro_id", m.MicroID).
			Str("target_id", m.TargetID).
			Float64("score", m.Score).
			Int64("moved", m.Moved).
			Msg("micro subject merged")
	}
	return merges, nil
}

// merge moves every message and token of microID onto targetID and deletes
// the micro subject, all in one transaction.
func (r *Reconciler) merge(ctx context.Context, channelID, microID, targetID string, now time.Time) (int64, error) {
	if r.Lock != nil {
		unlock := r.Lock(channelID)
		defer unlock()
	}

	var moved int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		micro, err := repo.GetSubject(ctx, tx, microID)
		if errors.Is(err, repo.ErrNotFound) {
			return errMergeSkipped
		}
		if err != nil {
			return err
		}
		target, err := repo.GetSubject(ctx, tx, targetID)
		if errors.Is(err, repo.ErrNotFound) {
			return errMergeSkipped
		}
		if err != nil {
			return err
		}

		if moved, err = repo.MoveMessages(ctx, tx, micro.ID, target.ID); err != nil {
			return err
		}
		if err := repo.MergeSubjectTokens(ctx, tx, micro.ID, target.ID); err != nil {
			return err
		}

		count, err := repo.CountMessages(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		last := latest(target.LastMessageAt, micro.LastMessageAt)
		updated := latest(now, last, target.UpdatedAt)
		if err := repo.SetSubjectActivity(ctx, tx, target.ID, int(count), last, updated); err != nil {
			return err
		}
		return repo.DeleteSubject(ctx, tx, micro.ID)
	})
	return moved, err
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
