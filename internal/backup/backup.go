// Package backup stores and fetches serialized ledger and archive tables in
// a remote location, keyed by user and a human-readable key.
//
// Backends never retry. A failed call is reported as ErrSyncFailure and the
// caller decides whether to try again on a later action.
package backup

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound is returned by Fetch when nothing is stored under the key.
	ErrNotFound = errors.New("backup not found")

	// ErrSyncFailure is returned when the remote store is unreachable,
	// rejects the request, or returns a payload that fails verification.
	ErrSyncFailure = errors.New("sync failure")
)

// LedgerKey holds the open ledger of a user.
const LedgerKey = "ledger.csv"

// Service is the remote store capability.
type Service interface {
	Store(ctx context.Context, userID, key string, payload []byte) error
	Fetch(ctx context.Context, userID, key string) ([]byte, error)
}

// ArchiveKey names the backup of a day closed at closedAt. The key carries
// microseconds, the precision closed_at is stored with, so two closes in the
// same second get distinct keys.
func ArchiveKey(closedAt time.Time) string {
	t := closedAt.UTC()
	return fmt.Sprintf("archive_%s_%06d.csv", t.Format("2006_01_02_150405"), t.Nanosecond()/1000)
}

// Checksum returns the hex BLAKE2b-256 digest stored alongside every payload.
func Checksum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// verify checks payload against the checksum recorded when it was stored.
// A missing checksum is accepted so objects written by other tools still load.
func verify(payload []byte, checksum string) error {
	if checksum == "" {
		return nil
	}
	if got := Checksum(payload); got != checksum {
		return fmt.Errorf("%w: checksum mismatch (stored %s, computed %s)", ErrSyncFailure, checksum, got)
	}
	return nil
}

// syncErr wraps a backend error as ErrSyncFailure unless it is already one of
// the package's sentinel errors.
func syncErr(op string, err error) error {
	if errors.Is(err, ErrSyncFailure) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrSyncFailure, op, err)
}
