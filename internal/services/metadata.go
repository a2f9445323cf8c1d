// Package services – Synthesizer
//
// This file implements metadata synthesis: a subject's title, one-sentence
// summary and keywords are requested from the text-generation collaborator
// once the subject is large enough, and refreshed periodically afterwards.
//
// Failures (collaborator not ok, error, timeout, unparsable output) never
// reach the ingestion caller: they bump the subject's failure counter and
// leave existing metadata untouched. A failed subject is retried with an
// exponential backoff and, once it reaches the failure cap, only by the
// periodic refresh trigger.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/repo"
)

const (
	metaPromptMessages  = 30
	metaTitleMaxRunes   = 120
	metaSummaryMaxRunes = 700
	metaMaxKeywords     = 8
	minRefreshEvery     = 5
	maxBackoffShift     = 5

	// DefaultGenerateTimeout bounds one collaborator call.
	DefaultGenerateTimeout = 25 * time.Second
)

// ErrMetaParse is recorded when the collaborator output holds no usable JSON.
var ErrMetaParse = errors.New("metadata output is not valid JSON")

// Meta is parsed collaborator output.
type Meta struct {
	Title    string
	Summary  string
	Keywords []string
}

// Synthesizer requests and stores subject metadata.
type Synthesizer struct {
	DB       *gorm.DB
	Gen      Generator
	Settings *SettingsStore
	Timeout  time.Duration
	Log      zerolog.Logger
	Now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Eligible reports whether s should be synthesized at now under set.
func Eligible(s domain.Subject, set Settings, now time.Time) bool {
	if isRefreshPoint(s.MessageCount, set.SummaryRefreshEvery) {
		return true
	}
	if !set.AutoGenerateSummary && !set.AutoGenerateTitle {
		return false
	}
	if s.MessageCount < set.SummaryMinMessages {
		return false
	}
	missing := (set.AutoGenerateSummary && !s.HasSummary()) || (set.AutoGenerateTitle && !s.HasTitle())
	if !missing {
		return false
	}
	if set.SummaryMaxFailures > 0 && s.MetaFailCount >= set.SummaryMaxFailures {
		return false
	}
	return !inBackoff(s, set.SummaryRetryBackoff, now)
}

func isRefreshPoint(count, every int) bool {
	return every >= minRefreshEvery && count > 0 && count%every == 0
}

// inBackoff doubles the wait after every consecutive failure, capped at
// base << maxBackoffShift.
func inBackoff(s domain.Subject, base time.Duration, now time.Time) bool {
	if s.MetaFailCount == 0 || s.MetaFailedAt == nil || base <= 0 {
		return false
	}
	shift := min(s.MetaFailCount-1, maxBackoffShift)
	return now.Sub(*s.MetaFailedAt) < base<<shift
}

// Maybe synthesizes metadata for subjectID if it is eligible and no other
// synthesis for it is running. It reports whether a collaborator call was
// made; the error is the failure that was recorded, if any.
func (sy *Synthesizer) Maybe(ctx context.Context, subjectID string) (bool, error) {
	tr := otel.Tracer("services/Synthesizer")
	ctx, span := tr.Start(ctx, "Maybe", trace.WithAttributes(attribute.String("subject.id", subjectID)))
	defer span.End()

	s, err := repo.GetSubject(ctx, sy.DB, subjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !Eligible(*s, sy.settings(), sy.now()) {
		return false, nil
	}
	if !sy.acquire(subjectID) {
		return false, nil
	}
	defer sy.releaseSubject(subjectID)

	return true, sy.Synthesize(ctx, subjectID)
}

// Synthesize unconditionally runs one collaborator round for subjectID.
func (sy *Synthesizer) Synthesize(ctx context.Context, subjectID string) error {
	contents, err := repo.ListRecentContents(ctx, sy.DB, subjectID, metaPromptMessages)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return nil
	}

	meta, err := sy.generate(ctx, BuildMetaPrompt(contents))
	if err != nil {
		subjectMeta.WithLabelValues("fail").Inc()
		sy.Log.Warn().Err(err).Str("subject_id", subjectID).Msg("metadata synthesis failed")
		// Recorded on a fresh context so a cancelled job still counts its failure.
		if ferr := repo.IncrMetaFail(context.WithoutCancel(ctx), sy.DB, subjectID, sy.now()); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}

	if err := repo.UpdateSubjectMeta(ctx, sy.DB, subjectID, meta.Title, meta.Summary, strings.Join(meta.Keywords, ", "), sy.now()); err != nil {
		return err
	}
	subjectMeta.WithLabelValues("ok").Inc()
	sy.Log.Debug().Str("subject_id", subjectID).Bool("title", meta.Title != "").Bool("summary", meta.Summary != "").Msg("metadata stored")
	return nil
}

func (sy *Synthesizer) generate(ctx context.Context, prompt string) (Meta, error) {
	if sy.Gen == nil {
		return Meta{}, errors.New("no generator configured")
	}
	timeout := sy.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := sy.Gen.Generate(cctx, prompt)
	if err != nil {
		return Meta{}, err
	}
	if !res.OK {
		if res.Error == "" {
			res.Error = "generator returned not ok"
		}
		return Meta{}, errors.New(res.Error)
	}
	return ParseMeta(res.Text)
}

// BuildMetaPrompt asks for strict JSON describing the given messages.
func BuildMetaPrompt(contents []string) string {
	var b strings.Builder
	b.WriteString("Analyze the messages of a chat discussion and produce strict JSON:\n")
	b.WriteString("{\n  \"title\": \"SHORT TITLE (max 8 words)\",\n")
	b.WriteString("  \"summary\": \"One-sentence summary\",\n")
	b.WriteString("  \"keywords\": [\"word1\",\"word2\",\"word3\"]\n}\n")
	b.WriteString("Answer in the language of the messages, without extra quotes.\nMessages:\n---\n")
	for _, c := range contents {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteByte('\n')
	}
	b.WriteString("---\nJSON:")
	return b.String()
}

// ParseMeta extracts the outermost {...} block of text and decodes it.
// Fields are trimmed and clipped; non-string keywords are ignored.
func ParseMeta(text string) (Meta, error) {
	text = strings.TrimSpace(text)
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Meta{}, ErrMetaParse
	}
	var raw struct {
		Title    any `json:"title"`
		Summary  any `json:"summary"`
		Keywords any `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrMetaParse, err)
	}
	m := Meta{
		Title:   strings.TrimSpace(clipRunes(stringOf(raw.Title), metaTitleMaxRunes)),
		Summary: strings.TrimSpace(clipRunes(stringOf(raw.Summary), metaSummaryMaxRunes)),
	}
	list, _ := raw.Keywords.([]any)
	for _, k := range list {
		if len(m.Keywords) == metaMaxKeywords {
			break
		}
		if s, ok := k.(string); ok {
			m.Keywords = append(m.Keywords, s)
		}
	}
	return m, nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func clipRunes(s string, limit int) string {
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		return string([]rune(s)[:limit])
	}
	return s
}

func (sy *Synthesizer) acquire(id string) bool {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.inflight == nil {
		sy.inflight = make(map[string]struct{})
	}
	if _, busy := sy.inflight[id]; busy {
		return false
	}
	sy.inflight[id] = struct{}{}
	return true
}

func (sy *Synthesizer) releaseSubject(id string) {
	sy.mu.Lock()
	delete(sy.inflight, id)
	sy.mu.Unlock()
}

func (sy *Synthesizer) settings() Settings {
	if sy.Settings == nil {
		return DefaultSettings()
	}
	return sy.Settings.Get()
}

func (sy *Synthesizer) now() time.Time {
	if sy.Now != nil {
		return sy.Now().UTC()
	}
	return time.Now().UTC()
}
