package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Settings holds every tunable of the engine. A Settings value is immutable
// once published through a SettingsStore; callers copy, edit and Set.
type Settings struct {
	// Assignment
	SimilarityThreshold   float64
	InactivityWindow      time.Duration
	NoveltyForceThreshold float64
	WeightSimilarity      float64
	WeightNovelty         float64
	CategoryShiftForce    bool

	// Metadata synthesis
	SummaryMinMessages  int
	SummaryRefreshEvery int
	SummaryRetryBackoff time.Duration
	SummaryMaxFailures  int
	AutoGenerateSummary bool
	AutoGenerateTitle   bool

	ImmediateTitleHeuristic bool

	// Micro-merge
	MicroMergeEnabled   bool
	MicroMaxMessages    int
	MicroReturnWindow   time.Duration
	MicroMergeThreshold float64

	// Context building
	MaxContextMessages       int
	IncludeMetadataInContext bool

	// SimilarityLogTop is how many scored candidates a decision log line
	// carries. 0 disables the list.
	SimilarityLogTop int
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		SimilarityThreshold:   0.32,
		InactivityWindow:      45 * time.Minute,
		NoveltyForceThreshold: 0.55,
		WeightSimilarity:      1.0,
		WeightNovelty:         0.0,
		CategoryShiftForce:    false,

		SummaryMinMessages:  6,
		SummaryRefreshEvery: 25,
		SummaryRetryBackoff: 5 * time.Minute,
		SummaryMaxFailures:  8,
		AutoGenerateSummary: true,
		AutoGenerateTitle:   true,

		ImmediateTitleHeuristic: false,

		MicroMergeEnabled:   true,
		MicroMaxMessages:    4,
		MicroReturnWindow:   25 * time.Minute,
		MicroMergeThreshold: 0.68,

		MaxContextMessages:       12,
		IncludeMetadataInContext: true,

		SimilarityLogTop: 5,
	}
}

// Validate reports the first out-of-range field, wrapped in ErrInvalidSettings.
func (s Settings) Validate() error {
	switch {
	case s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity threshold must be within [0,1]", ErrInvalidSettings)
	case s.NoveltyForceThreshold < 0 || s.NoveltyForceThreshold > 1:
		return fmt.Errorf("%w: novelty force threshold must be within [0,1]", ErrInvalidSettings)
	case s.MicroMergeThreshold < 0 || s.MicroMergeThreshold > 1:
		return fmt.Errorf("%w: micro merge threshold must be within [0,1]", ErrInvalidSettings)
	case s.WeightSimilarity < 0 || s.WeightNovelty < 0:
		return fmt.Errorf("%w: composite weights must be >= 0", ErrInvalidSettings)
	case s.InactivityWindow <= 0:
		return fmt.Errorf("%w: inactivity window must be > 0", ErrInvalidSettings)
	case s.MicroReturnWindow < 0:
		return fmt.Errorf("%w: micro return window must be >= 0", ErrInvalidSettings)
	case s.SummaryRetryBackoff < 0:
		return fmt.Errorf("%w: summary retry backoff must be >= 0", ErrInvalidSettings)
	case s.SummaryMinMessages < 1:
		return fmt.Errorf("%w: summary min messages must be >= 1", ErrInvalidSettings)
	case s.SummaryRefreshEvery < 0 || s.SummaryMaxFailures < 0:
		return fmt.Errorf("%w: summary refresh/max failures must be >= 0", ErrInvalidSettings)
	case s.MicroMaxMessages < 1:
		return fmt.Errorf("%w: micro max messages must be >= 1", ErrInvalidSettings)
	case s.MaxContextMessages < 1:
		return fmt.Errorf("%w: max context messages must be >= 1", ErrInvalidSettings)
	case s.SimilarityLogTop < 0:
		return fmt.Errorf("%w: similarity log top must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// SettingsStore publishes Settings to concurrent readers. Reads are lock-free;
// writers are serialized so read-modify-write updates do not lose edits.
type SettingsStore struct {
	cur atomic.Pointer[Settings]
	mu  sync.Mutex
}

// NewSettingsStore validates initial and returns a store holding it.
func NewSettingsStore(initial Settings) (*SettingsStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	st := &SettingsStore{}
	st.cur.Store(&initial)
	return st, nil
}

// Get returns a snapshot of the current settings.
func (st *SettingsStore) Get() Settings {
	if p := st.cur.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

// Set replaces the settings after validation.
func (st *SettingsStore) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.cur.Store(&s)
	st.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the current settings and publishes the
// result if it validates.
func (st *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := st.Get()
	fn(&next)
	if err := next.Validate(); err != nil {
		return st.Get(), err
	}
	st.cur.Store(&next)
	return next, nil
}
