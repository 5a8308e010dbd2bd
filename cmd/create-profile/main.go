// CLI tool to create or replace a user's body profile.
// Usage: go run ./cmd/create-profile
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"lg/nutrition-ledger-go-api/internal/config"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := store.OpenPool(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	userID, profile, err := promptProfile(bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
		os.Exit(1)
	}

	targets, err := goals.ComputeTargets(profile, goals.Options{Mode: goals.ModeGoal})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
		os.Exit(1)
	}
	if err := store.NewPostgres(pool).SaveProfile(ctx, userID, profile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving profile: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nProfile saved!\n")
	fmt.Printf("  User:           %s\n", userID)
	fmt.Printf("  Goal:           %s\n", profile.Goal)
	fmt.Printf("  Calorie target: %.0f kcal (%s)\n", targets.CalorieTarget, goals.Describe(profile.Goal))
	fmt.Printf("  Protein target: %.0f g\n", targets.ProteinTargetG)
}

// promptProfile asks for each profile field. Blank optional answers are left unset.
func promptProfile(r *bufio.Reader, w io.Writer) (string, goals.Profile, error) {
	ask := func(label string) string {
		fmt.Fprint(w, label)
		line, _ := r.ReadString('\n')
		return strings.TrimSpace(line)
	}

	var p goals.Profile
	userID := ask("User ID: ")
	if userID == "" {
		return "", p, fmt.Errorf("user ID is required")
	}

	var err error
	if p.WeightKG, err = strconv.ParseFloat(ask("Weight (kg): "), 64); err != nil {
		return "", p, fmt.Errorf("weight: %w", err)
	}
	if p.HeightCM, err = strconv.ParseFloat(ask("Height (cm): "), 64); err != nil {
		return "", p, fmt.Errorf("height: %w", err)
	}
	if p.AgeYears, err = strconv.Atoi(ask("Age (years): ")); err != nil {
		return "", p, fmt.Errorf("age: %w", err)
	}
	p.Gender = goals.Gender(strings.ToLower(ask("Gender (male/female): ")))
	p.ActivityLevel = ask("Activity level (" + strings.Join(goals.ActivityLevels(), "/") + ", blank to skip): ")

	if s := ask("Desired weight (kg, blank to skip): "); s != "" {
		d, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", p, fmt.Errorf("desired weight: %w", err)
		}
		p.DesiredWeightKG = &d
		p.Goal = goals.GoalFromWeights(p.WeightKG, d)
	} else {
		p.Goal = goals.Goal(strings.ToLower(ask("Goal (maintain/deficit/surplus): ")))
		if p.Goal == "" {
			p.Goal = goals.Maintain
		}
	}
	return userID, p, p.Validate()
}
