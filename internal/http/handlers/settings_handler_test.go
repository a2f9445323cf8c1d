package handlers

import (
	"net/http"
	"testing"
	"time"
)

func TestGetSettings_ReturnsDefaults(t *testing.T) {
	r, _, _ := newEngine(t)

	w := do(r, http.MethodGet, "/settings", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d", w.Code)
	}
	got := decode[SettingsDTO](t, w)
	if got.SimilarityThreshold != 0.32 || got.InactivityWindow != "45m0s" || got.MicroReturnWindow != "25m0s" || !got.MicroMergeEnabled {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestPatchSettings_PartialUpdate(t *testing.T) {
	r, svc, _ := newEngine(t)

	w := do(r, http.MethodPatch, "/settings", `{"similarity_threshold":0.5,"inactivity_window":"1h30m","micro_merge_enabled":false}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch -> %d body=%s", w.Code, w.Body.String())
	}
	got := decode[SettingsDTO](t, w)
	if got.SimilarityThreshold != 0.5 || got.InactivityWindow != "1h30m0s" || got.MicroMergeEnabled {
		t.Fatalf("patch not applied: %+v", got)
	}

	live := svc.Settings.Get()
	if live.SimilarityThreshold != 0.5 || live.InactivityWindow != 90*time.Minute || live.MicroMergeEnabled {
		t.Fatalf("engine did not observe update: %+v", live)
	}
	// Untouched fields keep their value.
	if live.SummaryMinMessages != 6 || live.NoveltyForceThreshold != 0.55 {
		t.Fatalf("unrelated fields changed: %+v", live)
	}
}

func TestPatchSettings_Rejects(t *testing.T) {
	r, svc, _ := newEngine(t)
	before := svc.Settings.Get()

	cases := []struct {
		name, body, code string
	}{
		{"out of range", `{"similarity_threshold":1.5}`, ErrCodeInvalidSettings},
		{"bad duration", `{"micro_return_window":"soon"}`, ErrCodeInvalidSettings},
		{"zero window", `{"inactivity_window":"0s"}`, ErrCodeInvalidSettings},
		{"partial invalid", `{"similarity_threshold":0.9,"max_context_messages":0}`, ErrCodeInvalidSettings},
		{"malformed", `{"similarity_threshold":`, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPatch, "/settings", tc.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d body=%s", w.Code, w.Body.String())
			}
			if er := decode[ErrorResponse](t, w); er.Code != tc.code {
				t.Fatalf("code = %q, want %q", er.Code, tc.code)
			}
		})
	}

	if svc.Settings.Get() != before {
		t.Fatalf("rejected patches must not change settings")
	}
}
