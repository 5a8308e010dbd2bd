package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"lg/nutrition-ledger-go-api/internal/goals"
)

func TestPromptProfile(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantGoal goals.Goal
		wantErr  bool
	}{
		{"desired weight infers deficit", "u1\n80\n180\n40\nmale\nlight\n72\n", goals.Deficit, false},
		{"explicit goal", "u1\n60\n165\n28\nFemale\n\n\nsurplus\n", goals.Surplus, false},
		{"blank goal is maintain", "u1\n60\n165\n28\nfemale\n\n\n\n", goals.Maintain, false},
		{"missing user", "\n", "", true},
		{"bad weight", "u1\nheavy\n", "", true},
		{"unknown gender", "u1\n60\n165\n28\nx\n\n\n\n", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID, p, err := promptProfile(bufio.NewReader(strings.NewReader(tc.input)), io.Discard)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if userID != "u1" || p.Goal != tc.wantGoal {
				t.Errorf("got user %q goal %q, want u1 %q", userID, p.Goal, tc.wantGoal)
			}
		})
	}
}

func TestPromptProfile_InvalidProfileError(t *testing.T) {
	_, _, err := promptProfile(bufio.NewReader(strings.NewReader("u1\n0\n165\n28\nmale\n\n\n\n")), io.Discard)
	if !errors.Is(err, goals.ErrInvalidProfile) {
		t.Errorf("err = %v, want ErrInvalidProfile", err)
	}
}
