package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/store"
)

// getProfile returns the saved profile and its targets under the server's
// default mode.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	profile, ok := h.loadProfile(c)
	if !ok {
		return
	}
	targets, err := goals.ComputeTargets(profile, goals.Options{Mode: h.targetMode})
	if err != nil {
		// A profile saved without an activity level cannot use activity mode.
		targets, err = goals.ComputeTargets(profile, goals.Options{Mode: goals.ModeGoal})
	}
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, profileResponse{Profile: profile, Targets: targets})
}

// putProfile validates and replaces the user's profile. This is the only
// path that mutates a profile.
// PUT /api/profile.
func (h *Handler) putProfile(c *gin.Context) {
	userID := c.GetString("user_id")

	var body putProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	profile := body.profile()

	// Validate before saving so a bad profile never reaches the store.
	targets, err := goals.ComputeTargets(profile, goals.Options{Mode: goals.ModeGoal})
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SaveProfile(c, userID, profile); err != nil {
		log.Printf("[putProfile] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to save profile")
		return
	}
	c.JSON(http.StatusOK, profileResponse{Profile: profile, Targets: targets})
}

// getTargets computes targets for the saved profile.
// GET /api/profile/targets?burned_calories=&mode=.
func (h *Handler) getTargets(c *gin.Context) {
	opts, err := h.targetOptions(c)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	profile, ok := h.loadProfile(c)
	if !ok {
		return
	}
	targets, err := goals.ComputeTargets(profile, opts)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, targetsResponse{
		Targets:        targets,
		Mode:           opts.Mode,
		BurnedCalories: opts.BurnedCalories,
		Label:          goals.Describe(profile.Goal),
	})
}

// loadProfile writes the error response itself and reports whether to go on.
func (h *Handler) loadProfile(c *gin.Context) (goals.Profile, bool) {
	profile, err := h.store.LoadProfile(c, c.GetString("user_id"))
	if errors.Is(err, store.ErrProfileNotFound) {
		apiError(c, http.StatusNotFound, "profile not found")
		return goals.Profile{}, false
	}
	if err != nil {
		log.Printf("[loadProfile] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load profile")
		return goals.Profile{}, false
	}
	return profile, true
}
