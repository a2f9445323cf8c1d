package services

import (
	"time"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/search"
)

// Action is the terminal outcome of an assignment decision.
type Action int

const (
	// ActionCreate starts a new subject.
	ActionCreate Action = iota + 1
	// ActionReuse appends to an existing subject.
	ActionReuse
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionReuse:
		return "reuse"
	}
	return "unknown"
}

// Reason names the rule that produced an Outcome.
type Reason string

// Decision reasons, one per rule plus the reuse fallthrough.
const (
	ReasonNoCandidates   Reason = "no_candidates"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonStale          Reason = "stale"
	ReasonNovelty        Reason = "novelty"
	ReasonComposite      Reason = "composite"
	ReasonCategoryShift  Reason = "category_shift"
	ReasonSimilar        Reason = "similar"
)

// Candidate is the best-scoring existing subject for an incoming message.
type Candidate struct {
	Subject domain.Subject
	Score   float64
	// RecentTokens are the tokens of the subject's last 12 messages.
	RecentTokens []string
}

// DecisionInput is everything Decide looks at.
type DecisionInput struct {
	Tokens    []string
	Best      *Candidate // nil when no candidate scored above zero
	Now       time.Time
	Settings  Settings
	Scored    int // number of candidates considered
	novelty   float64
	composite float64
}

// Outcome is the tagged result of Decide. SubjectID is set only on Reuse.
type Outcome struct {
	Action    Action
	SubjectID string
	Reason    Reason
	BestScore float64
	Novelty   float64
	Category  string
}

// rule is one ordered create predicate.
type rule struct {
	reason Reason
	match  func(in *DecisionInput) bool
}

// createRules are evaluated in order; the first match creates a subject.
var createRules = []rule{
	{ReasonNoCandidates, noCandidates},
	{ReasonBelowThreshold, belowThreshold},
	{ReasonStale, stale},
	{ReasonNovelty, noveltyForced},
	{ReasonComposite, compositeBelow},
	{ReasonCategoryShift, categoryShift},
}

// Decide chooses between creating a subject and reusing in.Best.
func Decide(in DecisionInput) Outcome {
	out := Outcome{Category: search.Classify(in.Tokens)}
	if in.Best != nil {
		out.BestScore = in.Best.Score
		in.novelty = Novelty(in.Tokens, in.Best.RecentTokens)
		in.composite = in.Settings.WeightSimilarity*in.Best.Score - in.Settings.WeightNovelty*in.novelty
		out.Novelty = in.novelty
	}
	for _, r := range createRules {
		if r.match(&in) {
			out.Action, out.Reason = ActionCreate, r.reason
			return out
		}
	}
	out.Action, out.Reason, out.SubjectID = ActionReuse, ReasonSimilar, in.Best.Subject.ID
	return out
}

// Novelty is the fraction of tokens absent from the reference vocabulary.
// It is 0 for an empty token sequence.
func Novelty(tokens, reference []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	ref := search.Set(reference)
	novel := 0
	for _, t := range tokens {
		if _, ok := ref[t]; !ok {
			novel++
		}
	}
	return float64(novel) / float64(len(tokens))
}

func noCandidates(in *DecisionInput) bool { return in.Scored == 0 }

// belowThreshold also covers candidates that all scored zero.
func belowThreshold(in *DecisionInput) bool {
	return in.Best == nil || in.Best.Score < in.Settings.SimilarityThreshold
}

func stale(in *DecisionInput) bool {
	return in.Now.Sub(in.Best.Subject.LastMessageAt) > in.Settings.InactivityWindow
}

func noveltyForced(in *DecisionInput) bool {
	return in.novelty >= in.Settings.NoveltyForceThreshold
}

func compositeBelow(in *DecisionInput) bool {
	return in.composite < in.Settings.SimilarityThreshold
}

func categoryShift(in *DecisionInput) bool {
	if !in.Settings.CategoryShiftForce {
		return false
	}
	cur := search.Classify(in.Tokens)
	prev := search.Classify(in.Best.RecentTokens)
	return cur != "" && prev != "" && cur != prev
}
