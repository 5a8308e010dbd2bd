// Package store keeps per-user ledgers, archives and profiles. Every call
// names the user it acts on; nothing is shared between users.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

var (
	// ErrProfileNotFound is returned when a user has never saved a profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrArchiveConflict is returned by ArchiveAndReset when a record with the
	// same (user_id, closed_at) key already exists but lacks some of the new
	// record's entries. Nothing is changed.
	ErrArchiveConflict = errors.New("archive record already exists with different entries")
)

// Store is the full set of operations the host layer needs.
type Store interface {
	LoadLedger(ctx context.Context, userID string) (*nutrition.Ledger, error)
	AppendEntry(ctx context.Context, userID string, e nutrition.Entry) error
	// AppendEntries appends entries in order as a single unit.
	AppendEntries(ctx context.Context, userID string, entries []nutrition.Entry) error

	// ArchiveAndReset appends rec to the user's historical log and removes
	// rec's entries from the open ledger in one atomic step. Replaying a
	// record whose key already exists does not duplicate it; a different
	// record under an existing key fails with ErrArchiveConflict.
	ArchiveAndReset(ctx context.Context, rec nutrition.ArchiveRecord) error
	Archives(ctx context.Context, userID string) ([]nutrition.ArchiveRecord, error)
	// LastClosedAt returns the newest closed_at in the user's historical log,
	// or the zero time when nothing has been archived.
	LastClosedAt(ctx context.Context, userID string) (time.Time, error)

	LoadProfile(ctx context.Context, userID string) (goals.Profile, error)
	SaveProfile(ctx context.Context, userID string, p goals.Profile) error
}

// coveredBy reports whether every entry in entries has its ID in archived.
func coveredBy(entries []nutrition.Entry, archived map[uuid.UUID]bool) bool {
	for _, e := range entries {
		if !archived[e.ID] {
			return false
		}
	}
	return true
}

func entryIDs(entries []nutrition.Entry) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids
}
