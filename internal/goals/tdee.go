// Package goals derives daily calorie and protein targets from a user profile
// and evaluates a day's intake against them.
package goals

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProfile is returned when a profile cannot produce targets.
var ErrInvalidProfile = errors.New("invalid profile")

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

// Goal is the direction the user wants their weight to move.
type Goal string

const (
	Maintain Goal = "maintain"
	Deficit  Goal = "deficit"
	Surplus  Goal = "surplus"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels and is also
// used when validating saved profiles.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// goalCalorieOffset is the kcal added or removed from BMR in ModeGoal.
const goalCalorieOffset = 500

const (
	proteinPerKGDesired = 1.6
	proteinPerKG        = 1.8
)

// Profile is the body data a user saves. It is only mutated by an explicit
// save; targets are always recomputed from it and never stored.
type Profile struct {
	WeightKG        float64  `json:"weight_kg"`
	HeightCM        float64  `json:"height_cm"`
	AgeYears        int      `json:"age_years"`
	Gender          Gender   `json:"gender"`
	Goal            Goal     `json:"goal"`
	ActivityLevel   string   `json:"activity_level,omitempty"`
	DesiredWeightKG *float64 `json:"desired_weight_kg,omitempty"`
}

// Mode selects which calorie formula ComputeTargets applies. The two are
// mutually exclusive for a single computation.
type Mode string

const (
	// ModeGoal adds or removes a fixed offset from BMR according to Goal.
	ModeGoal Mode = "goal"
	// ModeActivity multiplies BMR by the profile's activity multiplier.
	ModeActivity Mode = "activity"
)

// ParseMode maps a query/config string onto a Mode. Empty means ModeGoal.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeGoal:
		return ModeGoal, nil
	case ModeActivity:
		return ModeActivity, nil
	}
	return "", fmt.Errorf("mode must be one of: goal, activity (got %q)", s)
}

// Options tune a single target computation.
type Options struct {
	// BurnedCalories is exercise energy added to the ModeGoal target.
	BurnedCalories float64
	Mode           Mode
}

// Targets are the computed daily goals.
type Targets struct {
	CalorieTarget  float64 `json:"calorie_target"`
	ProteinTargetG float64 `json:"protein_target_g"`
}

// ActivityLevels returns the accepted activity level names.
func ActivityLevels() []string {
	return []string{"sedentary", "light", "moderate", "active", "very_active"}
}

// ActivityMultiplier returns the multiplier for level.
func ActivityMultiplier(level string) (float64, bool) {
	m, ok := activityMultipliers[level]
	return m, ok
}

// Validate reports why p cannot be used to compute targets.
func (p Profile) Validate() error {
	if !(p.WeightKG > 0) || math.IsInf(p.WeightKG, 0) {
		return fmt.Errorf("%w: weight_kg must be greater than 0", ErrInvalidProfile)
	}
	if !(p.HeightCM > 0) || math.IsInf(p.HeightCM, 0) {
		return fmt.Errorf("%w: height_cm must be greater than 0", ErrInvalidProfile)
	}
	if p.AgeYears <= 0 {
		return fmt.Errorf("%w: age_years must be greater than 0", ErrInvalidProfile)
	}
	if p.Gender != Male && p.Gender != Female {
		return fmt.Errorf("%w: gender must be one of: male, female", ErrInvalidProfile)
	}
	switch p.Goal {
	case "", Maintain, Deficit, Surplus:
	default:
		return fmt.Errorf("%w: goal must be one of: maintain, deficit, surplus", ErrInvalidProfile)
	}
	if p.ActivityLevel != "" {
		if _, ok := activityMultipliers[p.ActivityLevel]; !ok {
			return fmt.Errorf("%w: activity_level must be one of: sedentary, light, moderate, active, very_active", ErrInvalidProfile)
		}
	}
	if p.DesiredWeightKG != nil && !(*p.DesiredWeightKG > 0) {
		return fmt.Errorf("%w: desired_weight_kg must be greater than 0", ErrInvalidProfile)
	}
	return nil
}

// BMR computes basal metabolic rate via Mifflin-St Jeor: different constant
// for male vs female.
func BMR(p Profile) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	bmr := 10*p.WeightKG + 6.25*p.HeightCM - 5*float64(p.AgeYears)
	if p.Gender == Male {
		bmr += 5
	} else {
		bmr -= 161
	}
	return bmr, nil
}

// ComputeTargets derives the daily calorie and protein targets for p.
// Results are not rounded.
func ComputeTargets(p Profile, opts Options) (Targets, error) {
	bmr, err := BMR(p)
	if err != nil {
		return Targets{}, err
	}

	var calories float64
	switch opts.Mode {
	case "", ModeGoal:
		calories = bmr + opts.BurnedCalories
		switch p.Goal {
		case Deficit:
			calories -= goalCalorieOffset
		case Surplus:
			calories += goalCalorieOffset
		}
	case ModeActivity:
		mult, ok := activityMultipliers[p.ActivityLevel]
		if !ok {
			return Targets{}, fmt.Errorf("%w: activity_level is required for activity mode", ErrInvalidProfile)
		}
		calories = bmr * mult
	default:
		return Targets{}, fmt.Errorf("unknown target mode %q", opts.Mode)
	}

	return Targets{
		CalorieTarget:  calories,
		ProteinTargetG: proteinTarget(p),
	}, nil
}

// proteinTarget scales by the heavier of current and desired weight when a
// desired weight is set.
func proteinTarget(p Profile) float64 {
	if p.DesiredWeightKG != nil {
		return math.Max(p.WeightKG, *p.DesiredWeightKG) * proteinPerKGDesired
	}
	return p.WeightKG * proteinPerKG
}

// GoalFromWeights infers the goal direction from the desired weight the way
// the setup form does: heavier means surplus, lighter means deficit.
func GoalFromWeights(currentKG, desiredKG float64) Goal {
	switch {
	case desiredKG > currentKG:
		return Surplus
	case desiredKG < currentKG:
		return Deficit
	}
	return Maintain
}

// Describe names the calorie target the way it is shown for each goal.
func Describe(g Goal) string {
	switch g {
	case Deficit:
		return "daily calorie limit"
	case Surplus:
		return "daily calorie goal"
	}
	return "daily calorie requirement"
}
