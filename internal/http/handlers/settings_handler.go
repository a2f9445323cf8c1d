package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subject-engine/internal/http/middleware"
	"github.com/tbourn/go-subject-engine/internal/services"
)

// SettingsDTO is the wire form of the engine settings. Durations use Go
// duration syntax ("45m", "1h30m").
type SettingsDTO struct {
	SimilarityThreshold   float64 `json:"similarity_threshold" example:"0.32"`
	InactivityWindow      string  `json:"inactivity_window" example:"45m0s"`
	NoveltyForceThreshold float64 `json:"novelty_force_threshold" example:"0.55"`
	WeightSimilarity      float64 `json:"weight_similarity" example:"1"`
	WeightNovelty         float64 `json:"weight_novelty" example:"0"`
	CategoryShiftForce    bool    `json:"category_shift_force"`

	SummaryMinMessages  int    `json:"summary_min_messages" example:"6"`
	SummaryRefreshEvery int    `json:"summary_refresh_every" example:"25"`
	SummaryRetryBackoff string `json:"summary_retry_backoff" example:"5m0s"`
	SummaryMaxFailures  int    `json:"summary_max_failures" example:"8"`
	AutoGenerateSummary bool   `json:"auto_generate_summary"`
	AutoGenerateTitle   bool   `json:"auto_generate_title"`

	ImmediateTitleHeuristic bool `json:"immediate_title_heuristic"`

	MicroMergeEnabled   bool    `json:"micro_merge_enabled"`
	MicroMaxMessages    int     `json:"micro_max_messages" example:"4"`
	MicroReturnWindow   string  `json:"micro_return_window" example:"25m0s"`
	MicroMergeThreshold float64 `json:"micro_merge_threshold" example:"0.68"`

	MaxContextMessages       int  `json:"max_context_messages" example:"12"`
	IncludeMetadataInContext bool `json:"include_metadata_in_context"`

	SimilarityLogTop int `json:"similarity_log_top" example:"5"`
}

// SettingsPatch is a partial update; omitted fields keep their value.
type SettingsPatch struct {
	SimilarityThreshold   *float64 `json:"similarity_threshold,omitempty"`
	InactivityWindow      *string  `json:"inactivity_window,omitempty"`
	NoveltyForceThreshold *float64 `json:"novelty_force_threshold,omitempty"`
	WeightSimilarity      *float64 `json:"weight_similarity,omitempty"`
	WeightNovelty         *float64 `json:"weight_novelty,omitempty"`
	CategoryShiftForce    *bool    `json:"category_shift_force,omitempty"`

	SummaryMinMessages  *int    `json:"summary_min_messages,omitempty"`
	SummaryRefreshEvery *int    `json:"summary_refresh_every,omitempty"`
	SummaryRetryBackoff *string `json:"summary_retry_backoff,omitempty"`
	SummaryMaxFailures  *int    `json:"summary_max_failures,omitempty"`
	AutoGenerateSummary *bool   `json:"auto_generate_summary,omitempty"`
	AutoGenerateTitle   *bool   `json:"auto_generate_title,omitempty"`

	ImmediateTitleHeuristic *bool `json:"immediate_title_heuristic,omitempty"`

	MicroMergeEnabled   *bool    `json:"micro_merge_enabled,omitempty"`
	MicroMaxMessages    *int     `json:"micro_max_messages,omitempty"`
	MicroReturnWindow   *string  `json:"micro_return_window,omitempty"`
	MicroMergeThreshold *float64 `json:"micro_merge_threshold,omitempty"`

	MaxContextMessages       *int  `json:"max_context_messages,omitempty"`
	IncludeMetadataInContext *bool `json:"include_metadata_in_context,omitempty"`

	SimilarityLogTop *int `json:"similarity_log_top,omitempty"`
}

func settingsToDTO(s services.Settings) SettingsDTO {
	return SettingsDTO{
		SimilarityThreshold:      s.SimilarityThreshold,
		InactivityWindow:         s.InactivityWindow.String(),
		NoveltyForceThreshold:    s.NoveltyForceThreshold,
		WeightSimilarity:         s.WeightSimilarity,
		WeightNovelty:            s.WeightNovelty,
		CategoryShiftForce:       s.CategoryShiftForce,
		SummaryMinMessages:       s.SummaryMinMessages,
		SummaryRefreshEvery:      s.SummaryRefreshEvery,
		SummaryRetryBackoff:      s.SummaryRetryBackoff.String(),
		SummaryMaxFailures:       s.SummaryMaxFailures,
		AutoGenerateSummary:      s.AutoGenerateSummary,
		AutoGenerateTitle:        s.AutoGenerateTitle,
		ImmediateTitleHeuristic:  s.ImmediateTitleHeuristic,
		MicroMergeEnabled:        s.MicroMergeEnabled,
		MicroMaxMessages:         s.MicroMaxMessages,
		MicroReturnWindow:        s.MicroReturnWindow.String(),
		MicroMergeThreshold:      s.MicroMergeThreshold,
		MaxContextMessages:       s.MaxContextMessages,
		IncludeMetadataInContext: s.IncludeMetadataInContext,
		SimilarityLogTop:         s.SimilarityLogTop,
	}
}

// parseDur parses an optional duration field named name.
func parseDur(name string, v *string) (*time.Duration, error) {
	if v == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a duration", name, *v)
	}
	return &d, nil
}

// apply returns a function that overlays p on a Settings value. Duration
// fields are parsed up front so a malformed patch changes nothing.
func (p SettingsPatch) apply() (func(*services.Settings), error) {
	inactivity, err := parseDur("inactivity_window", p.InactivityWindow)
	if err != nil {
		return nil, err
	}
	backoff, err := parseDur("summary_retry_backoff", p.SummaryRetryBackoff)
	if err != nil {
		return nil, err
	}
	returnWindow, err := parseDur("micro_return_window", p.MicroReturnWindow)
	if err != nil {
		return nil, err
	}

	return func(s *services.Settings) {
		setIf(&s.SimilarityThreshold, p.SimilarityThreshold)
		setIf(&s.InactivityWindow, inactivity)
		setIf(&s.NoveltyForceThreshold, p.NoveltyForceThreshold)
		setIf(&s.WeightSimilarity, p.WeightSimilarity)
		setIf(&s.WeightNovelty, p.WeightNovelty)
		setIf(&s.CategoryShiftForce, p.CategoryShiftForce)
		setIf(&s.SummaryMinMessages, p.SummaryMinMessages)
		setIf(&s.SummaryRefreshEvery, p.SummaryRefreshEvery)
		setIf(&s.SummaryRetryBackoff, backoff)
		setIf(&s.SummaryMaxFailures, p.SummaryMaxFailures)
		setIf(&s.AutoGenerateSummary, p.AutoGenerateSummary)
		setIf(&s.AutoGenerateTitle, p.AutoGenerateTitle)
		setIf(&s.ImmediateTitleHeuristic, p.ImmediateTitleHeuristic)
		setIf(&s.MicroMergeEnabled, p.MicroMergeEnabled)
		setIf(&s.MicroMaxMessages, p.MicroMaxMessages)
		setIf(&s.MicroReturnWindow, returnWindow)
		setIf(&s.MicroMergeThreshold, p.MicroMergeThreshold)
		setIf(&s.MaxContextMessages, p.MaxContextMessages)
		setIf(&s.IncludeMetadataInContext, p.IncludeMetadataInContext)
		setIf(&s.SimilarityLogTop, p.SimilarityLogTop)
	}, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// GetSettings godoc
// @ID          getSettings
// @Summary     Current engine settings
// @Tags        Settings
// @Produce     json
// @Success     200  {object} handlers.SettingsDTO
// @Router      /settings [get]
func (h *Handlers) GetSettings(c *gin.Context) {
	ok(c, http.StatusOK, settingsToDTO(h.settings.Get()))
}

// PatchSettings godoc
// @ID          patchSettings
// @Summary     Update engine settings
// @Description Applies a partial update. The result is validated as a whole; an invalid
// @Description combination leaves the current settings untouched.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SettingsPatch  true  "Fields to change"
// @Success     200  {object} handlers.SettingsDTO
// @Failure     400  {object} handlers.ErrorResponse "Invalid settings"
// @Router      /settings [patch]
func (h *Handlers) PatchSettings(c *gin.Context) {
	var patch SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	fn, err := patch.apply()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidSettings, err.Error())
		return
	}
	next, err := h.settings.Update(fn)
	if err != nil {
		failService(c, err, ErrCodeInvalidSettings)
		return
	}
	lg := middleware.LoggerFrom(c)
	lg.Info().
		Float64("similarity_threshold", next.SimilarityThreshold).
		Dur("inactivity_window", next.InactivityWindow).
		Bool("micro_merge_enabled", next.MicroMergeEnabled).
		Msg("engine settings updated")
	ok(c, http.StatusOK, settingsToDTO(next))
}
