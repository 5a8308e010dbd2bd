package goals

import "lg/nutrition-ledger-go-api/internal/nutrition"

type CalorieState string

const (
	UnderLimit    CalorieState = "under_limit"
	AtOrOverLimit CalorieState = "at_or_over_limit"
)

type ProteinState string

const (
	BelowGoal ProteinState = "below_goal"
	GoalMet   ProteinState = "goal_met"
)

// Alerts is the outcome of comparing a day's total against its targets.
type Alerts struct {
	Calorie CalorieState `json:"calorie_state"`
	Protein ProteinState `json:"protein_state"`
}

// Evaluate compares total against targets. Reaching a target exactly counts
// as reaching it for both calories and protein.
func Evaluate(total nutrition.Vector, targets Targets) Alerts {
	a := Alerts{Calorie: UnderLimit, Protein: BelowGoal}
	if total.Calories >= targets.CalorieTarget {
		a.Calorie = AtOrOverLimit
	}
	if total.ProteinG >= targets.ProteinTargetG {
		a.Protein = GoalMet
	}
	return a
}
