package main

import (
	"time"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

/* ─── Requests ───────────────────────────────────────────────────────── */

// registerEntryRequest is the request body for POST /api/ledger/entries.
type registerEntryRequest struct {
	FoodName  string  `json:"food_name"`
	QuantityG float64 `json:"quantity_g"`
}

// putProfileRequest is the request body for PUT /api/profile. Goal may be
// left empty when desired_weight_kg is given; it is then inferred.
type putProfileRequest struct {
	WeightKG        float64  `json:"weight_kg"`
	HeightCM        float64  `json:"height_cm"`
	AgeYears        int      `json:"age_years"`
	Gender          string   `json:"gender"`
	Goal            string   `json:"goal"`
	ActivityLevel   string   `json:"activity_level"`
	DesiredWeightKG *float64 `json:"desired_weight_kg"`
}

func (r putProfileRequest) profile() goals.Profile {
	p := goals.Profile{
		WeightKG:        r.WeightKG,
		HeightCM:        r.HeightCM,
		AgeYears:        r.AgeYears,
		Gender:          goals.Gender(r.Gender),
		Goal:            goals.Goal(r.Goal),
		ActivityLevel:   r.ActivityLevel,
		DesiredWeightKG: r.DesiredWeightKG,
	}
	if p.Goal == "" && p.DesiredWeightKG != nil {
		p.Goal = goals.GoalFromWeights(p.WeightKG, *p.DesiredWeightKG)
	}
	if p.Goal == "" {
		p.Goal = goals.Maintain
	}
	return p
}

/* ─── Responses ──────────────────────────────────────────────────────── */

// ledgerResponse is the open ledger for GET /api/ledger.
type ledgerResponse struct {
	Entries []nutrition.Entry `json:"entries"`
	Total   nutrition.Vector  `json:"total"`
}

// registerEntryResponse is returned by POST /api/ledger/entries.
type registerEntryResponse struct {
	Entry nutrition.Entry  `json:"entry"`
	Total nutrition.Vector `json:"total"`
}

// targetsResponse carries computed targets and the inputs they came from.
type targetsResponse struct {
	goals.Targets
	Mode           goals.Mode `json:"mode"`
	BurnedCalories float64    `json:"burned_calories"`
	Label          string     `json:"label"`
}

// ledgerSummary is the response shape for GET /api/ledger/summary. Targets
// and Alerts are omitted when the user has no saved profile.
type ledgerSummary struct {
	Entries []nutrition.Entry `json:"entries"`
	Total   nutrition.Vector  `json:"total"`
	Targets *targetsResponse  `json:"targets,omitempty"`
	Alerts  *goals.Alerts     `json:"alerts,omitempty"`
}

// profileResponse is returned by GET and PUT /api/profile.
type profileResponse struct {
	Profile goals.Profile `json:"profile"`
	Targets goals.Targets `json:"targets"`
}

// archiveDay is one closed day in GET /api/archive.
type archiveDay struct {
	ClosedAt time.Time         `json:"closed_at"`
	Entries  []nutrition.Entry `json:"entries"`
	Total    nutrition.Vector  `json:"total"`
}

// closeResponse is returned by POST /api/ledger/close. SyncError is set when
// the local close succeeded but the remote backup did not.
type closeResponse struct {
	Outcome   string           `json:"outcome"`
	State     string           `json:"state"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty"`
	Entries   int              `json:"entries"`
	Total     nutrition.Vector `json:"total"`
	SyncKey   string           `json:"sync_key,omitempty"`
	SyncError string           `json:"sync_error,omitempty"`
}
