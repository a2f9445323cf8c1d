package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/repo"
)

type countingGen struct {
	calls atomic.Int32
	res   Result
	err   error
	last  atomic.Value
}

func (g *countingGen) Generate(_ context.Context, prompt string) (Result, error) {
	g.calls.Add(1)
	g.last.Store(prompt)
	return g.res, g.err
}

func TestSynthesis_StoresMetadataOnceEligible(t *testing.T) {
	gen := &countingGen{res: Result{OK: true, Text: `Sure! {"title":"Broken deploy","summary":"The pipeline fails.","keywords":["golang","deploy",3]}`}}
	svc, clock := newTestService(t, gen, nil)
	ctx := context.Background()

	var id string
	for i := 0; i < 5; i++ {
		id = record(t, svc, clock, "c", deployMsg, t0.Add(time.Duration(i)*time.Minute)).SubjectID
	}
	if gen.calls.Load() != 0 {
		t.Fatalf("generator called below the minimum size")
	}

	record(t, svc, clock, "c", deployMsg, t0.Add(5*time.Minute))
	if gen.calls.Load() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls.Load())
	}
	subj, _ := repo.GetSubject(ctx, svc.DB, id)
	if *subj.Title != "Broken deploy" || *subj.Summary != "The pipeline fails." || *subj.Keywords != "golang, deploy" {
		t.Fatalf("metadata not stored: %+v", subj)
	}
	if !strings.Contains(gen.last.Load().(string), "- "+deployMsg) {
		t.Fatalf("prompt misses the messages")
	}

	// complete metadata is not requested again until the refresh point
	record(t, svc, clock, "c", deployMsg, t0.Add(6*time.Minute))
	if gen.calls.Load() != 1 {
		t.Fatalf("generator called for a complete subject")
	}
}

func TestSynthesis_FailureIsRecordedWithBackoff(t *testing.T) {
	gen := &countingGen{res: Result{OK: false, Error: "quota"}}
	svc, clock := newTestService(t, gen, nil)
	ctx := context.Background()

	var id string
	for i := 0; i < 6; i++ {
		id = record(t, svc, clock, "c", deployMsg, t0.Add(time.Duration(i)*time.Minute)).SubjectID
	}
	subj, _ := repo.GetSubject(ctx, svc.DB, id)
	if gen.calls.Load() != 1 || subj.MetaFailCount != 1 || subj.HasTitle() {
		t.Fatalf("failure not recorded: calls=%d %+v", gen.calls.Load(), subj)
	}
	if subj.MetaFailedAt == nil || !subj.MetaFailedAt.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("meta_failed_at = %v", subj.MetaFailedAt)
	}

	// inside the five minute backoff
	record(t, svc, clock, "c", deployMsg, t0.Add(6*time.Minute))
	if gen.calls.Load() != 1 {
		t.Fatalf("generator called during backoff")
	}

	record(t, svc, clock, "c", deployMsg, t0.Add(11*time.Minute))
	subj, _ = repo.GetSubject(ctx, svc.DB, id)
	if gen.calls.Load() != 2 || subj.MetaFailCount != 2 {
		t.Fatalf("retry after backoff: calls=%d fails=%d", gen.calls.Load(), subj.MetaFailCount)
	}
}

func TestSynthesize_EmptyFieldsKeepStoredMetadata(t *testing.T) {
	gen := &countingGen{res: Result{OK: true, Text: `{"title":"","summary":"The pipeline fails.","keywords":[]}`}}
	svc, clock := newTestService(t, gen, func(s *Settings) { s.ImmediateTitleHeuristic = true })
	ctx := context.Background()

	id := record(t, svc, clock, "c", deployMsg, t0).SubjectID
	before, _ := repo.GetSubject(ctx, svc.DB, id)
	if !before.HasTitle() {
		t.Fatalf("heuristic title missing: %+v", before)
	}

	if err := svc.Synth.Synthesize(ctx, id); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	after, _ := repo.GetSubject(ctx, svc.DB, id)
	if !after.HasTitle() || *after.Title != *before.Title {
		t.Fatalf("title = %v, want %q kept", after.Title, *before.Title)
	}
	if !after.HasSummary() || *after.Summary != "The pipeline fails." {
		t.Fatalf("summary not stored: %+v", after)
	}
}

func TestSynthesize_ErrorsBecomeFailures(t *testing.T) {
	cases := []struct {
		name string
		gen  Generator
	}{
		{"nil generator", nil},
		{"error", GeneratorFunc(func(context.Context, string) (Result, error) { return Result{}, errors.New("boom") })},
		{"unparsable", GeneratorFunc(func(context.Context, string) (Result, error) { return Result{OK: true, Text: "no json here"}, nil })},
		{"timeout", GeneratorFunc(func(ctx context.Context, _ string) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, clock := newTestService(t, tc.gen, nil)
			svc.Synth.Timeout = 20 * time.Millisecond
			id := record(t, svc, clock, "c", deployMsg, t0).SubjectID

			if err := svc.Synth.Synthesize(context.Background(), id); err == nil {
				t.Fatalf("expected an error")
			}
			subj, _ := repo.GetSubject(context.Background(), svc.DB, id)
			if subj.MetaFailCount != 1 || subj.HasTitle() {
				t.Fatalf("failure not recorded: %+v", subj)
			}
		})
	}
}

func TestSynthesizer_MaybeSkips(t *testing.T) {
	gen := &countingGen{res: Result{OK: true, Text: `{"title":"x"}`}}
	svc, clock := newTestService(t, gen, nil)
	ctx := context.Background()

	if called, err := svc.Synth.Maybe(ctx, "missing"); called || err != nil {
		t.Fatalf("Maybe(missing) = %v, %v", called, err)
	}

	id := record(t, svc, clock, "c", deployMsg, t0).SubjectID
	if called, _ := svc.Synth.Maybe(ctx, id); called {
		t.Fatalf("ineligible subject synthesized")
	}

	if err := repo.SetSubjectActivity(ctx, svc.DB, id, 10, t0, t0); err != nil {
		t.Fatalf("SetSubjectActivity: %v", err)
	}
	if !svc.Synth.acquire(id) {
		t.Fatalf("acquire failed")
	}
	if called, _ := svc.Synth.Maybe(ctx, id); called {
		t.Fatalf("in-flight subject synthesized twice")
	}
	svc.Synth.releaseSubject(id)
	if called, err := svc.Synth.Maybe(ctx, id); !called || err != nil {
		t.Fatalf("Maybe = %v, %v", called, err)
	}
}

func TestEligible(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	set := DefaultSettings()
	title := "t"

	cases := []struct {
		name string
		subj domain.Subject
		set  func(*Settings)
		want bool
	}{
		{"too small", domain.Subject{MessageCount: 5}, nil, false},
		{"missing metadata", domain.Subject{MessageCount: 6}, nil, true},
		{"complete", domain.Subject{MessageCount: 7, Title: &title, Summary: &title}, nil, false},
		{"title missing with summaries off", domain.Subject{MessageCount: 7, Summary: &title}, func(s *Settings) { s.AutoGenerateSummary = false }, true},
		{"both flags off", domain.Subject{MessageCount: 7}, func(s *Settings) { s.AutoGenerateSummary, s.AutoGenerateTitle = false, false }, false},
		{"refresh point with flags off", domain.Subject{MessageCount: 25, Title: &title, Summary: &title}, func(s *Settings) { s.AutoGenerateSummary, s.AutoGenerateTitle = false, false }, true},
		{"refresh disabled below five", domain.Subject{MessageCount: 8, Title: &title, Summary: &title}, func(s *Settings) { s.SummaryRefreshEvery = 4 }, false},
		{"in backoff", domain.Subject{MessageCount: 6, MetaFailCount: 1, MetaFailedAt: ptr(now.Add(-4 * time.Minute))}, nil, false},
		{"backoff elapsed", domain.Subject{MessageCount: 6, MetaFailCount: 1, MetaFailedAt: ptr(now.Add(-5 * time.Minute))}, nil, true},
		{"backoff doubles", domain.Subject{MessageCount: 6, MetaFailCount: 3, MetaFailedAt: ptr(now.Add(-19 * time.Minute))}, nil, false},
		{"backoff capped", domain.Subject{MessageCount: 6, MetaFailCount: 7, MetaFailedAt: ptr(now.Add(-160 * time.Minute))}, nil, true},
		{"failure cap", domain.Subject{MessageCount: 6, MetaFailCount: 8, MetaFailedAt: ptr(now.Add(-24 * time.Hour))}, nil, false},
		{"failure cap ignored at refresh point", domain.Subject{MessageCount: 50, MetaFailCount: 8, MetaFailedAt: ptr(now)}, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := set
			if tc.set != nil {
				tc.set(&s)
			}
			if got := Eligible(tc.subj, s, now); got != tc.want {
				t.Fatalf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseMeta(t *testing.T) {
	m, err := ParseMeta("```json\n{\"title\":\"  Deploy  \",\"summary\":\"It broke.\",\"keywords\":[\"a\",1,\"b\",\"c\",\"d\",\"e\",\"f\",\"g\",\"h\",\"i\"]}\n```")
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if m.Title != "Deploy" || m.Summary != "It broke." {
		t.Fatalf("unexpected meta: %+v", m)
	}
	if len(m.Keywords) != 8 || m.Keywords[1] != "b" {
		t.Fatalf("keywords = %v", m.Keywords)
	}

	m, err = ParseMeta(`{"title":"` + strings.Repeat("é", 130) + `","keywords":"not a list"}`)
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if len([]rune(m.Title)) != 120 || m.Keywords != nil || m.Summary != "" {
		t.Fatalf("unexpected meta: %+v", m)
	}

	for _, bad := range []string{"", "no braces", "} backwards {", "{not json}"} {
		if _, err := ParseMeta(bad); !errors.Is(err, ErrMetaParse) {
			t.Fatalf("ParseMeta(%q) = %v, want ErrMetaParse", bad, err)
		}
	}
}

func TestBuildMetaPrompt(t *testing.T) {
	p := BuildMetaPrompt([]string{"first", "second"})
	if !strings.Contains(p, "- first\n- second\n") || !strings.HasSuffix(p, "JSON:") {
		t.Fatalf("unexpected prompt: %q", p)
	}
}
