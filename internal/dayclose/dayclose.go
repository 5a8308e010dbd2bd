// Package dayclose ends a user's day: it archives the open ledger, resets it,
// and backs the closed day up to the remote store.
//
// The archive is written before the ledger is reset, in one atomic store
// call, so a failed close never loses entries and a replayed close never
// duplicates them. Every close of a user gets a closed_at strictly after the
// previous one, so archive keys never collide. The remote backup runs last and
// its failure is reported without undoing the local archive.
package dayclose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/juju/clock"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/ledgercsv"
	"lg/nutrition-ledger-go-api/internal/metrics"
	"lg/nutrition-ledger-go-api/internal/nutrition"
	"lg/nutrition-ledger-go-api/internal/store"
)

// ErrCloseInProgress is returned when the user already has a close in flight.
var ErrCloseInProgress = errors.New("close already in progress")

const (
	defaultSyncTimeout = 10 * time.Second

	// maxArchiveAttempts bounds retries after a closed_at key conflict.
	maxArchiveAttempts = 3
)

// State is the closer's view of a user's day.
type State string

const (
	Open    State = "open"
	Closing State = "closing"
	Closed  State = "closed"
)

// Outcome says what a Close call did.
type Outcome string

const (
	OutcomeClosed  Outcome = "closed"
	NothingToClose Outcome = "nothing_to_close"
)

// Ledgers is the slice of the store the closer needs.
type Ledgers interface {
	LoadLedger(ctx context.Context, userID string) (*nutrition.Ledger, error)
	ArchiveAndReset(ctx context.Context, rec nutrition.ArchiveRecord) error
	LastClosedAt(ctx context.Context, userID string) (time.Time, error)
}

// Config wires a Closer. Backup and Metrics are optional.
type Config struct {
	Ledgers     Ledgers
	Backup      backup.Service
	Metrics     metrics.Recorder
	Clock       clock.Clock
	SyncTimeout time.Duration
}

// Result describes one Close call.
type Result struct {
	Outcome Outcome                  `json:"outcome"`
	State   State                    `json:"state"`
	Record  *nutrition.ArchiveRecord `json:"record,omitempty"`
	Total   nutrition.Vector         `json:"total"`
	// SyncKey is the remote key the archive was (or would have been) stored under.
	SyncKey string `json:"sync_key,omitempty"`
	// SyncErr wraps backup.ErrSyncFailure when the backup failed. The local
	// archive is still authoritative.
	SyncErr error `json:"-"`
}

// Closer runs the close transition. Safe for concurrent use; different users
// never wait on each other.
type Closer struct {
	ledgers     Ledgers
	backup      backup.Service
	metrics     metrics.Recorder
	clock       clock.Clock
	syncTimeout time.Duration

	mu      sync.Mutex
	closing map[string]bool
	states  map[string]State
	// gens counts Reopen calls per user. A close only records Closed if no
	// Reopen happened while it ran.
	gens map[string]uint64
}

func New(cfg Config) *Closer {
	c := &Closer{
		ledgers:     cfg.Ledgers,
		backup:      cfg.Backup,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		syncTimeout: cfg.SyncTimeout,
		closing:     make(map[string]bool),
		states:      make(map[string]State),
		gens:        make(map[string]uint64),
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.syncTimeout <= 0 {
		c.syncTimeout = defaultSyncTimeout
	}
	return c
}

// State reports the last known state for userID. Users the closer has not
// seen yet are Open.
func (c *Closer) State(userID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing[userID] {
		return Closing
	}
	if s, ok := c.states[userID]; ok {
		return s
	}
	return Open
}

// Reopen marks userID's day as open again, e.g. after a new registration.
func (c *Closer) Reopen(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, userID)
	c.gens[userID]++
}

// Close archives and resets userID's ledger. An empty ledger yields
// NothingToClose with a nil error.
func (c *Closer) Close(ctx context.Context, userID string) (Result, error) {
	gen, err := c.begin(userID)
	if err != nil {
		return Result{State: Closing}, err
	}
	final := Open
	defer func() { c.finish(userID, final, gen) }()

	ledger, err := c.ledgers.LoadLedger(ctx, userID)
	if err != nil {
		return Result{State: Open}, fmt.Errorf("load ledger: %w", err)
	}
	if ledger.IsEmpty() {
		c.metrics.RecordClose(string(NothingToClose))
		return Result{Outcome: NothingToClose, State: Open}, nil
	}

	rec, err := c.archive(ctx, userID, ledger.Entries())
	if err != nil {
		log.Printf("[Close] archive failed for %s: %v", userID, err)
		return Result{State: Open}, fmt.Errorf("archive day: %w", err)
	}
	final = Closed
	c.metrics.RecordClose(string(OutcomeClosed))

	res := Result{
		Outcome: OutcomeClosed,
		State:   Closed,
		Record:  &rec,
		Total:   rec.Total(),
		SyncKey: backup.ArchiveKey(rec.ClosedAt),
	}
	if c.backup != nil {
		res.SyncErr = c.sync(ctx, rec, res.SyncKey)
	}
	return res, nil
}

// archive writes entries as a closed day and resets them from the ledger.
// A key conflict means another close took closed_at in the meantime; the
// next attempt picks a later one.
func (c *Closer) archive(ctx context.Context, userID string, entries []nutrition.Entry) (nutrition.ArchiveRecord, error) {
	for attempt := 1; ; attempt++ {
		closedAt, err := c.nextClosedAt(ctx, userID)
		if err != nil {
			return nutrition.ArchiveRecord{}, err
		}
		rec := nutrition.ArchiveRecord{UserID: userID, ClosedAt: closedAt, Entries: entries}
		err = c.ledgers.ArchiveAndReset(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrArchiveConflict) || attempt == maxArchiveAttempts {
			return nutrition.ArchiveRecord{}, err
		}
		log.Printf("[Close] closed_at %s taken for %s, retrying", closedAt.Format(time.RFC3339Nano), userID)
	}
}

// nextClosedAt is the clock's now, or one microsecond past the user's newest
// archive when the clock has not moved beyond it. Postgres keeps microseconds,
// so the key must be truncated to survive a round trip.
func (c *Closer) nextClosedAt(ctx context.Context, userID string) (time.Time, error) {
	now := c.clock.Now().UTC().Truncate(time.Microsecond)
	last, err := c.ledgers.LastClosedAt(ctx, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load last close: %w", err)
	}
	if last = last.UTC().Truncate(time.Microsecond); !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	return now, nil
}

// sync stores the closed day remotely, then replaces the remote open ledger
// with the reset one so a restore cannot bring archived entries back. Both
// calls share one syncTimeout.
func (c *Closer) sync(ctx context.Context, rec nutrition.ArchiveRecord, key string) error {
	var archive bytes.Buffer
	if err := ledgercsv.EncodeArchive(&archive, []nutrition.ArchiveRecord{rec}); err != nil {
		return fmt.Errorf("%w: encode archive: %v", backup.ErrSyncFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.syncTimeout)
	defer cancel()

	if err := c.put(ctx, "archive", rec.UserID, key, archive.Bytes()); err != nil {
		return err
	}

	ledger, err := c.ledgers.LoadLedger(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("%w: load reset ledger: %v", backup.ErrSyncFailure, err)
	}
	var open bytes.Buffer
	if err := ledgercsv.EncodeLedger(&open, ledger.Entries()); err != nil {
		return fmt.Errorf("%w: encode ledger: %v", backup.ErrSyncFailure, err)
	}
	return c.put(ctx, "ledger", rec.UserID, backup.LedgerKey, open.Bytes())
}

func (c *Closer) put(ctx context.Context, op, userID, key string, payload []byte) error {
	start := c.clock.Now()
	err := c.backup.Store(ctx, userID, key, payload)
	c.metrics.RecordSyncLatency(c.clock.Now().Sub(start))
	if err != nil {
		log.Printf("[Close] backup of %s for %s failed: %v", key, userID, err)
		c.metrics.RecordSync(op, metrics.SyncFailed)
		if !errors.Is(err, backup.ErrSyncFailure) {
			err = fmt.Errorf("%w: %v", backup.ErrSyncFailure, err)
		}
		return err
	}
	c.metrics.RecordSync(op, metrics.SyncOK)
	return nil
}

func (c *Closer) begin(userID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing[userID] {
		return 0, ErrCloseInProgress
	}
	c.closing[userID] = true
	return c.gens[userID], nil
}

func (c *Closer) finish(userID string, s State, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.closing, userID)
	if s == Open || c.gens[userID] != gen {
		delete(c.states, userID)
		return
	}
	c.states[userID] = s
}
