// Package services – SubjectService
//
// This file implements SubjectService, the application-level component that
// owns message ingestion and the read side of the subject engine. For every
// incoming message it scores the channel's recent subjects, runs the
// assignment rules (see Decide) and persists the message, the subject
// counters and the token statistics atomically. Metadata synthesis and
// micro-merge are then started in the background without delaying the
// caller.
//
// Ingestion is serialized per channel; distinct channels proceed
// concurrently.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include channel/subject identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/search"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"
)

const (
	// CandidateLimit is how many recently active subjects compete for a message.
	CandidateLimit = 25

	// noveltyWindow is how many recent messages form a subject's vocabulary
	// when measuring novelty.
	noveltyWindow = 12

	contextMessageRunes = 400
	defaultDetailLimit  = 30

	jobMeta  = "meta"
	jobMerge = "merge"
)

// Ingested is the result of RecordMessage.
type Ingested struct {
	SubjectID string
	MessageID string
	Outcome   Outcome
}

// SubjectDetail is one subject with its most recent messages.
type SubjectDetail struct {
	Subject  domain.Subject
	Messages []domain.Message
	Total    int64
}

// SubjectService coordinates message assignment, persistence and reads.
type SubjectService struct {
	DB       *gorm.DB
	Index    *TokenIndex
	Scorer   *Scorer
	Synth    *Synthesizer
	Merger   *Reconciler
	Settings *SettingsStore
	Log      zerolog.Logger

	// Optional guards
	MaxContentRunes int

	// TitleLocale drives casing of heuristic titles.
	TitleLocale language.Tag

	// Now overrides the clock used when a message carries no timestamp.
	Now func() time.Time

	locks  *keyedMutex
	bg     *background
	closed atomic.Bool
}

// NewSubjectService wires the engine components around db. gen may be nil,
// in which case every synthesis attempt is recorded as a failure.
func NewSubjectService(db *gorm.DB, settings *SettingsStore, gen Generator, log zerolog.Logger) *SubjectService {
	if settings == nil {
		settings, _ = NewSettingsStore(DefaultSettings())
	}
	idx := &TokenIndex{DB: db}
	sc := &Scorer{DB: db, Index: idx}
	s := &SubjectService{
		DB:          db,
		Index:       idx,
		Scorer:      sc,
		Settings:    settings,
		Log:         log,
		TitleLocale: language.Und,
		locks:       newKeyedMutex(),
		bg:          newBackground(),
	}
	s.Synth = &Synthesizer{
		DB:       db,
		Gen:      gen,
		Settings: settings,
		Timeout:  DefaultGenerateTimeout,
		Log:      log,
		Now:      s.now,
	}
	s.Merger = &Reconciler{
		DB:       db,
		Scorer:   sc,
		Settings: settings,
		Log:      log,
		Now:      s.now,
		Lock:     s.locks.Lock,
	}
	return s
}

// RecordMessage assigns one message to a subject of channelID and persists
// it. A zero at is replaced by the current time.
//
// The write is atomic: either the subject (when created), the message, the
// subject counters and the token statistics are all stored, or none is.
func (s *SubjectService) RecordMessage(ctx context.Context, channelID, authorID, content string, at time.Time) (*Ingested, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "RecordMessage",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.String("author.id", authorID),
		),
	)
	defer span.End()

	if s.closed.Load() {
		return nil, ErrClosed
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, ErrChannelRequired
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return nil, ErrAuthorRequired
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	set := s.Settings.Get()

	unlock := s.locks.Lock(channelID)
	defer unlock()

	tokens := search.Tokenize(content)
	in, scored, err := s.decisionInput(ctx, channelID, tokens, at, set)
	if err != nil {
		return nil, err
	}
	out := Decide(in)

	res := &Ingested{Outcome: out}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subj *domain.Subject
		if out.Action == ActionCreate {
			created, err := repo.CreateSubject(ctx, tx, channelID, at)
			if err != nil {
				return err
			}
			if err := s.Index.CountSubject(ctx, tx); err != nil {
				return err
			}
			if set.ImmediateTitleHeuristic {
				if title := HeuristicTitle(content, s.TitleLocale); title != "" {
					if err := repo.SetSubjectTitle(ctx, tx, created.ID, title); err != nil {
						return err
					}
				}
			}
			subj = created
		} else {
			current, err := repo.GetSubject(ctx, tx, out.SubjectID)
			if err != nil {
				return err
			}
			subj = current
		}

		msg, err := repo.CreateMessage(ctx, tx, subj.ID, authorID, content, at)
		if err != nil {
			return err
		}
		last := latest(at, subj.LastMessageAt)
		if err := repo.TouchSubjectOnMessage(ctx, tx, subj.ID, last, latest(last, subj.UpdatedAt)); err != nil {
			return err
		}
		if _, err := s.Index.RecordTokens(ctx, tx, subj.ID, tokens); err != nil {
			return err
		}
		res.SubjectID, res.MessageID = subj.ID, msg.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	subjectDecisions.WithLabelValues(out.Action.String(), string(out.Reason)).Inc()
	s.logDecision(channelID, res, scored, set.SimilarityLogTop)
	s.trigger(channelID, res.SubjectID)
	return res, nil
}

// scoredCandidate is one candidate with its similarity, kept for logging.
type scoredCandidate struct {
	ID  string
	Sim Similarity
}

// decisionInput scores every candidate and assembles the input of Decide.
func (s *SubjectService) decisionInput(ctx context.Context, channelID string, tokens []string, at time.Time, set Settings) (DecisionInput, []scoredCandidate, error) {
	in := DecisionInput{Tokens: tokens, Now: at, Settings: set}

	candidates, err := repo.ListRecentSubjects(ctx, s.DB, channelID, CandidateLimit)
	if err != nil {
		return in, nil, err
	}
	in.Scored = len(candidates)

	scored := make([]scoredCandidate, 0, len(candidates))
	var best *domain.Subject
	var bestScore float64
	for i := range candidates {
		sim, err := s.Scorer.Score(ctx, tokens, candidates[i].ID)
		if err != nil {
			return in, nil, err
		}
		scored = append(scored, scoredCandidate{ID: candidates[i].ID, Sim: sim})
		if sim.Blended > bestScore {
			best, bestScore = &candidates[i], sim.Blended
		}
	}
	if best == nil {
		return in, scored, nil
	}

	recent, err := repo.ListRecentContents(ctx, s.DB, best.ID, noveltyWindow)
	if err != nil {
		return in, nil, err
	}
	in.Best = &Candidate{Subject: *best, Score: bestScore, RecentTokens: search.TokenizeAll(recent)}
	return in, scored, nil
}

func (s *SubjectService) logDecision(channelID string, res *Ingested, scored []scoredCandidate, top int) {
	ev := s.Log.Debug()
	if !ev.Enabled() {
		return
	}
	out := res.Outcome
	ev = ev.
		Str("channel_id", channelID).
		Str("subject_id", res.SubjectID).
		Str("action", out.Action.String()).
		Str("reason", string(out.Reason)).
		Float64("best_score", out.BestScore).
		Float64("novelty", out.Novelty).
		Str("category", out.Category)
	if top > 0 && len(scored) > 0 {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Sim.Blended > scored[j].Sim.Blended })
		if len(scored) > top {
			scored = scored[:top]
		}
		arr := zerolog.Arr()
		for _, c := range scored {
			arr = arr.Dict(zerolog.Dict().
				Str("id", c.ID).
				Float64("jaccard", c.Sim.Jaccard).
				Float64("cosine", c.Sim.Cosine).
				Float64("blended", c.Sim.Blended))
		}
		ev = ev.Array("top", arr)
	}
	ev.Msg("subject decision")
}

// trigger starts metadata synthesis and micro-merge for the channel. Both
// are dropped when the same job is already running for the channel.
func (s *SubjectService) trigger(channelID, subjectID string) {
	s.bg.Go(jobMeta, channelID, func(ctx context.Context) {
		if _, err := s.Synth.Maybe(ctx, subjectID); err != nil {
			s.Log.Warn().Err(err).Str("subject_id", subjectID).Msg("metadata job failed")
		}
	})
	s.bg.Go(jobMerge, channelID, func(ctx context.Context) {
		if _, err := s.Merger.Reconcile(ctx, channelID, subjectID); err != nil {
			s.Log.Warn().Err(err).Str("channel_id", channelID).Msg("micro-merge job failed")
		}
	})
}

// BuildContext renders the most recently active subject of a channel: an
// optional metadata header followed by its latest message bodies, oldest
// first. It returns "" when the channel has no subject.
func (s *SubjectService) BuildContext(ctx context.Context, channelID string) (string, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "BuildContext", trace.WithAttributes(attribute.String("channel.id", channelID)))
	defer span.End()

	subs, err := repo.ListRecentSubjects(ctx, s.DB, channelID, 1)
	if err != nil || len(subs) == 0 {
		return "", err
	}
	latestSubject := subs[0]
	set := s.Settings.Get()

	contents, err := repo.ListRecentContents(ctx, s.DB, latestSubject.ID, set.MaxContextMessages)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(contents)+4)
	if set.IncludeMetadataInContext {
		if latestSubject.HasTitle() {
			lines = append(lines, "Title: "+*latestSubject.Title)
		}
		if latestSubject.Keywords != nil && *latestSubject.Keywords != "" {
			lines = append(lines, "Keywords: "+*latestSubject.Keywords)
		}
		if latestSubject.HasSummary() {
			lines = append(lines, "Summary: "+*latestSubject.Summary)
		}
		if len(lines) > 0 {
			lines = append(lines, "---")
		}
	}
	for _, c := range contents {
		lines = append(lines, clipRunes(c, contextMessageRunes))
	}
	return strings.Join(lines, "\n"), nil
}

// ListPage returns a channel's subjects by recency, paginated, with the total.
func (s *SubjectService) ListPage(ctx context.Context, channelID string, page, pageSize int) ([]domain.Subject, int64, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSubjects(ctx, s.DB, channelID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Subject{}, 0, nil
	}
	items, err := repo.ListSubjectsPage(ctx, s.DB, channelID, offset, pageSize)
	return items, total, err
}

// Detail returns a subject with its last limit messages (oldest first) and
// the total message count. limit <= 0 defaults to 30.
func (s *SubjectService) Detail(ctx context.Context, subjectID string, limit int) (*SubjectDetail, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "Detail",
		trace.WithAttributes(attribute.String("subject.id", subjectID), attribute.Int("limit", limit)),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultDetailLimit
	}
	subj, err := s.getSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.ListRecentMessages(ctx, s.DB, subjectID, limit)
	if err != nil {
		return nil, err
	}
	total, err := repo.CountMessages(ctx, s.DB, subjectID)
	if err != nil {
		return nil, err
	}
	return &SubjectDetail{Subject: *subj, Messages: msgs, Total: total}, nil
}

// Transcript returns every message of a subject in chronological order.
func (s *SubjectService) Transcript(ctx context.Context, subjectID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "Transcript", trace.WithAttributes(attribute.String("subject.id", subjectID)))
	defer span.End()

	if _, err := s.getSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, subjectID, 0)
}

// TranscriptPage returns one page of a subject's messages in chronological
// order together with the subject's message count.
func (s *SubjectService) TranscriptPage(ctx context.Context, subjectID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "TranscriptPage",
		trace.WithAttributes(
			attribute.String("subject.id", subjectID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if _, err := s.getSubject(ctx, subjectID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, subjectID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	msgs, err := repo.ListMessagesPage(ctx, s.DB, subjectID, (page-1)*pageSize, pageSize)
	return msgs, total, err
}

// ResetChannel deletes every subject of a channel, with messages and token
// rows, and returns how many subjects were removed.
func (s *SubjectService) ResetChannel(ctx context.Context, channelID string) (int64, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "ResetChannel", trace.WithAttributes(attribute.String("channel.id", channelID)))
	defer span.End()

	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return 0, ErrChannelRequired
	}
	unlock := s.locks.Lock(channelID)
	defer unlock()
	return repo.ResetChannel(ctx, s.DB, channelID)
}

// ResetAll deletes every subject of every channel.
func (s *SubjectService) ResetAll(ctx context.Context) (int64, error) {
	tr := otel.Tracer("services/SubjectService")
	ctx, span := tr.Start(ctx, "ResetAll")
	defer span.End()

	return repo.ResetAll(ctx, s.DB)
}

// WaitIdle blocks until every background job started so far has returned.
func (s *SubjectService) WaitIdle() { s.bg.Wait() }

// Close stops ingestion and background scheduling and waits for running
// jobs until ctx expires.
func (s *SubjectService) Close(ctx context.Context) error {
	s.closed.Store(true)
	return s.bg.Close(ctx)
}

func (s *SubjectService) getSubject(ctx context.Context, id string) (*domain.Subject, error) {
	subj, err := repo.GetSubject(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSubjectNotFound
	}
	return subj, err
}

func (s *SubjectService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
