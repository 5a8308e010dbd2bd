package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/ledgercsv"
	"lg/nutrition-ledger-go-api/internal/metrics"
)

// syncLedger stores the open ledger remotely under ledger.csv. The local
// ledger is unaffected whatever the outcome.
// POST /api/sync/ledger.
func (h *Handler) syncLedger(c *gin.Context) {
	if h.backup == nil {
		apiError(c, http.StatusServiceUnavailable, "sync backend not configured")
		return
	}
	userID := c.GetString("user_id")

	ledger, err := h.store.LoadLedger(c, userID)
	if err != nil {
		log.Printf("[syncLedger] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	var buf bytes.Buffer
	if err := ledgercsv.EncodeLedger(&buf, ledger.Entries()); err != nil {
		apiError(c, http.StatusInternalServerError, "failed to encode ledger")
		return
	}

	ctx, cancel := context.WithTimeout(c, h.syncTimeout)
	defer cancel()
	start := h.clock.Now()
	err = h.backup.Store(ctx, userID, backup.LedgerKey, buf.Bytes())
	h.metrics.RecordSyncLatency(h.clock.Now().Sub(start))
	if err != nil {
		log.Printf("[syncLedger] %s: %v", userID, err)
		h.metrics.RecordSync("ledger", metrics.SyncFailed)
		apiError(c, http.StatusBadGateway, "sync failed")
		return
	}
	h.metrics.RecordSync("ledger", metrics.SyncOK)
	c.JSON(http.StatusOK, gin.H{"key": backup.LedgerKey, "entries": ledger.Len()})
}

// restoreLedger fetches ledger.csv from the remote store into an empty open
// ledger. A non-empty ledger is never overwritten.
// POST /api/sync/ledger/restore.
func (h *Handler) restoreLedger(c *gin.Context) {
	if h.backup == nil {
		apiError(c, http.StatusServiceUnavailable, "sync backend not configured")
		return
	}
	userID := c.GetString("user_id")

	ledger, err := h.store.LoadLedger(c, userID)
	if err != nil {
		log.Printf("[restoreLedger] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	if !ledger.IsEmpty() {
		apiError(c, http.StatusConflict, "ledger is not empty")
		return
	}

	ctx, cancel := context.WithTimeout(c, h.syncTimeout)
	defer cancel()
	start := h.clock.Now()
	payload, err := h.backup.Fetch(ctx, userID, backup.LedgerKey)
	h.metrics.RecordSyncLatency(h.clock.Now().Sub(start))
	if errors.Is(err, backup.ErrNotFound) {
		h.metrics.RecordSync("restore", metrics.SyncNotFound)
		apiError(c, http.StatusNotFound, "no remote ledger")
		return
	}
	if err != nil {
		log.Printf("[restoreLedger] %s: %v", userID, err)
		h.metrics.RecordSync("restore", metrics.SyncFailed)
		apiError(c, http.StatusBadGateway, "sync failed")
		return
	}
	h.metrics.RecordSync("restore", metrics.SyncOK)

	entries, err := ledgercsv.DecodeLedger(bytes.NewReader(payload))
	if err != nil {
		log.Printf("[restoreLedger] decode: %v", err)
		apiError(c, http.StatusBadGateway, "remote ledger is malformed")
		return
	}
	if err := h.store.AppendEntries(c, userID, entries); err != nil {
		log.Printf("[restoreLedger] append: %v", err)
		apiError(c, http.StatusInternalServerError, "failed to save entries")
		return
	}
	h.closer.Reopen(userID)
	c.JSON(http.StatusOK, gin.H{"restored": len(entries)})
}
