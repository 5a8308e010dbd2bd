package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lg/nutrition-ledger-go-api/internal/catalog"
	"lg/nutrition-ledger-go-api/internal/dayclose"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/ledgercsv"
	"lg/nutrition-ledger-go-api/internal/nutrition"
	"lg/nutrition-ledger-go-api/internal/store"
)

// registerEntry looks the food up, scales it to the eaten quantity and appends
// the entry to the user's open ledger. Nothing is written when the quantity is
// invalid or the food is unknown.
// POST /api/ledger/entries.
func (h *Handler) registerEntry(c *gin.Context) {
	userID := c.GetString("user_id")

	var body registerEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	food, err := h.foods.Lookup(c, body.FoodName)
	if errors.Is(err, catalog.ErrFoodNotFound) {
		h.metrics.RecordRegistrationRejected("food_not_found")
		apiError(c, http.StatusNotFound, "food not found")
		return
	}
	if err != nil {
		log.Printf("[registerEntry] lookup %q: %v", body.FoodName, err)
		apiError(c, http.StatusInternalServerError, "failed to look up food")
		return
	}

	entry, err := nutrition.NewEntry(uuid.New(), h.clock.Now().UTC(), food.Name, body.QuantityG, food.Per100g)
	if errors.Is(err, nutrition.ErrInvalidQuantity) {
		h.metrics.RecordRegistrationRejected("invalid_quantity")
		apiError(c, http.StatusBadRequest, "quantity_g must be greater than 0")
		return
	}
	if err != nil {
		log.Printf("[registerEntry] %v", err)
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.AppendEntry(c, userID, entry); err != nil {
		log.Printf("[registerEntry] append: %v", err)
		apiError(c, http.StatusInternalServerError, "failed to save entry")
		return
	}
	h.closer.Reopen(userID)
	h.metrics.RecordRegistration()

	ledger, err := h.store.LoadLedger(c, userID)
	if err != nil {
		log.Printf("[registerEntry] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	c.JSON(http.StatusCreated, registerEntryResponse{Entry: entry, Total: ledger.CurrentTotal()})
}

// getLedger returns the open ledger and its running total.
// GET /api/ledger.
func (h *Handler) getLedger(c *gin.Context) {
	ledger, err := h.store.LoadLedger(c, c.GetString("user_id"))
	if err != nil {
		log.Printf("[getLedger] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	c.JSON(http.StatusOK, ledgerResponse{Entries: ledger.Entries(), Total: ledger.CurrentTotal()})
}

// getLedgerSummary returns the open ledger with targets and alert states.
// GET /api/ledger/summary?burned_calories=&mode=.
func (h *Handler) getLedgerSummary(c *gin.Context) {
	userID := c.GetString("user_id")

	opts, err := h.targetOptions(c)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	ledger, err := h.store.LoadLedger(c, userID)
	if err != nil {
		log.Printf("[getLedgerSummary] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	summary := ledgerSummary{Entries: ledger.Entries(), Total: ledger.CurrentTotal()}

	profile, err := h.store.LoadProfile(c, userID)
	if errors.Is(err, store.ErrProfileNotFound) {
		c.JSON(http.StatusOK, summary)
		return
	}
	if err != nil {
		log.Printf("[getLedgerSummary] profile: %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load profile")
		return
	}

	targets, err := goals.ComputeTargets(profile, opts)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	alerts := goals.Evaluate(summary.Total, targets)
	summary.Targets = &targetsResponse{
		Targets:        targets,
		Mode:           opts.Mode,
		BurnedCalories: opts.BurnedCalories,
		Label:          goals.Describe(profile.Goal),
	}
	summary.Alerts = &alerts
	c.JSON(http.StatusOK, summary)
}

// closeDay archives and resets the open ledger.
// POST /api/ledger/close. An empty ledger answers 200 with outcome
// nothing_to_close. A failed backup still answers 200 with sync_error set.
func (h *Handler) closeDay(c *gin.Context) {
	res, err := h.closer.Close(c, c.GetString("user_id"))
	if errors.Is(err, dayclose.ErrCloseInProgress) {
		apiError(c, http.StatusConflict, "close already in progress")
		return
	}
	if err != nil {
		log.Printf("[closeDay] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to close day")
		return
	}

	resp := closeResponse{
		Outcome: string(res.Outcome),
		State:   string(res.State),
		Total:   res.Total,
		SyncKey: res.SyncKey,
	}
	if res.Record != nil {
		closedAt := res.Record.ClosedAt
		resp.ClosedAt = &closedAt
		resp.Entries = len(res.Record.Entries)
	}
	if res.SyncErr != nil {
		resp.SyncError = res.SyncErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// exportLedger downloads the open ledger as a CSV table.
// GET /api/ledger/export.
func (h *Handler) exportLedger(c *gin.Context) {
	ledger, err := h.store.LoadLedger(c, c.GetString("user_id"))
	if err != nil {
		log.Printf("[exportLedger] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	var buf bytes.Buffer
	if err := ledgercsv.EncodeLedger(&buf, ledger.Entries()); err != nil {
		log.Printf("[exportLedger] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to encode ledger")
		return
	}
	sendCSV(c, "ledger.csv", buf.Bytes())
}

// getArchive lists every closed day, oldest first.
// GET /api/archive.
func (h *Handler) getArchive(c *gin.Context) {
	records, err := h.store.Archives(c, c.GetString("user_id"))
	if err != nil {
		log.Printf("[getArchive] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load archive")
		return
	}
	days := make([]archiveDay, len(records))
	for i, r := range records {
		days[i] = archiveDay{ClosedAt: r.ClosedAt, Entries: r.Entries, Total: r.Total()}
	}
	c.JSON(http.StatusOK, days)
}

// exportArchive downloads the full historical log as a CSV table.
// GET /api/archive/export.
func (h *Handler) exportArchive(c *gin.Context) {
	records, err := h.store.Archives(c, c.GetString("user_id"))
	if err != nil {
		log.Printf("[exportArchive] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load archive")
		return
	}
	var buf bytes.Buffer
	if err := ledgercsv.EncodeArchive(&buf, records); err != nil {
		log.Printf("[exportArchive] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to encode archive")
		return
	}
	sendCSV(c, "archive.csv", buf.Bytes())
}

func sendCSV(c *gin.Context, filename string, payload []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}

// targetOptions reads burned_calories and mode from the query string. mode
// defaults to the server's TARGET_MODE.
func (h *Handler) targetOptions(c *gin.Context) (goals.Options, error) {
	opts := goals.Options{Mode: h.targetMode}
	if s := c.Query("mode"); s != "" {
		mode, err := goals.ParseMode(s)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if s := c.Query("burned_calories"); s != "" {
		burned, err := strconv.ParseFloat(s, 64)
		if err != nil || burned < 0 || math.IsNaN(burned) || math.IsInf(burned, 0) {
			return opts, errors.New("burned_calories must be a non-negative number")
		}
		opts.BurnedCalories = burned
	}
	return opts, nil
}
