package dayclose

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/ledgercsv"
	"lg/nutrition-ledger-go-api/internal/nutrition"
	"lg/nutrition-ledger-go-api/internal/store"
)

var t0 = time.Date(2026, 3, 1, 21, 30, 0, 123456789, time.UTC)

func register(t *testing.T, s *store.Memory, userID string, calories, qty float64, at time.Time) nutrition.Entry {
	t.Helper()
	e, err := nutrition.NewEntry(uuid.New(), at, "food", qty, nutrition.Vector{Calories: calories})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := s.AppendEntry(context.Background(), userID, e); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	return e
}

func newCloser(s *store.Memory, b backup.Service) *Closer {
	return New(Config{Ledgers: s, Backup: b, Clock: testclock.NewClock(t0), SyncTimeout: time.Second})
}

// Closing a ledger with 3 entries archives all 3 and leaves the ledger empty.
func TestClose_ArchivesAndResets(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for i := 0; i < 3; i++ {
		register(t, s, "u1", 100, 100, t0.Add(time.Duration(i)*time.Minute))
	}
	b := backup.NewMemory()
	c := newCloser(s, b)

	res, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Outcome != OutcomeClosed || res.State != Closed {
		t.Errorf("outcome/state = %s/%s, want closed/closed", res.Outcome, res.State)
	}
	if res.Record == nil || len(res.Record.Entries) != 3 {
		t.Fatalf("record = %+v, want 3 entries", res.Record)
	}
	if math.Abs(res.Total.Calories-300) > 1e-9 {
		t.Errorf("total calories = %v, want 300", res.Total.Calories)
	}
	if !res.Record.ClosedAt.Equal(t0.Truncate(time.Microsecond)) {
		t.Errorf("closed_at = %v, want %v", res.Record.ClosedAt, t0.Truncate(time.Microsecond))
	}
	if res.SyncErr != nil {
		t.Errorf("unexpected SyncErr: %v", res.SyncErr)
	}

	l, _ := s.LoadLedger(ctx, "u1")
	if !l.IsEmpty() {
		t.Errorf("ledger has %d entries after close", l.Len())
	}
	archives, _ := s.Archives(ctx, "u1")
	if len(archives) != 1 || len(archives[0].Entries) != 3 {
		t.Errorf("archives = %+v, want one record of 3 entries", archives)
	}
	if c.State("u1") != Closed {
		t.Errorf("State = %s, want closed", c.State("u1"))
	}
}

// The backup payload is the archive table for the closed day.
func TestClose_BacksUpArchiveTable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 52, 150, t0)
	b := backup.NewMemory()

	res, err := newCloser(s, b).Close(ctx, "u1")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.SyncKey != "archive_2026_03_01_213000_123456.csv" {
		t.Errorf("SyncKey = %q", res.SyncKey)
	}
	payload, err := b.Fetch(ctx, "u1", res.SyncKey)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	records, err := ledgercsv.DecodeArchive(bytes.NewReader(payload), "u1")
	if err != nil {
		t.Fatalf("DecodeArchive: %v", err)
	}
	if len(records) != 1 || len(records[0].Entries) != 1 || !records[0].ClosedAt.Equal(res.Record.ClosedAt) {
		t.Errorf("decoded archive = %+v", records)
	}
}

// Closing an empty ledger reports NothingToClose and changes nothing.
func TestClose_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	b := backup.NewMemory()
	c := newCloser(s, b)

	res, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Outcome != NothingToClose || res.State != Open {
		t.Errorf("outcome/state = %s/%s, want nothing_to_close/open", res.Outcome, res.State)
	}
	if archives, _ := s.Archives(ctx, "u1"); len(archives) != 0 {
		t.Errorf("expected no archives, got %d", len(archives))
	}
	if keys := b.Keys("u1"); len(keys) != 0 {
		t.Errorf("expected no backups, got %v", keys)
	}
}

// A second close right after a successful one is a no-op.
func TestClose_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	c := newCloser(s, nil)

	if _, err := c.Close(ctx, "u1"); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	res, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if res.Outcome != NothingToClose {
		t.Errorf("second outcome = %s, want nothing_to_close", res.Outcome)
	}
	if archives, _ := s.Archives(ctx, "u1"); len(archives) != 1 {
		t.Errorf("archives = %d, want 1", len(archives))
	}
}

// A failed archive step leaves the ledger intact so a retry loses nothing.
func TestClose_ArchiveFailureKeepsLedger(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	register(t, s, "u1", 50, 100, t0.Add(time.Minute))
	c := newCloser(s, nil)

	s.FailArchiveWith(errors.New("disk full"))
	if _, err := c.Close(ctx, "u1"); err == nil {
		t.Fatal("expected archive error")
	}
	l, _ := s.LoadLedger(ctx, "u1")
	if l.Len() != 2 {
		t.Fatalf("ledger has %d entries after failed close, want 2", l.Len())
	}
	if c.State("u1") != Open {
		t.Errorf("State = %s, want open", c.State("u1"))
	}

	s.FailArchiveWith(nil)
	res, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("retry Close: %v", err)
	}
	if len(res.Record.Entries) != 2 {
		t.Errorf("retry archived %d entries, want 2", len(res.Record.Entries))
	}
	if archives, _ := s.Archives(ctx, "u1"); len(archives) != 1 {
		t.Errorf("archives = %d, want 1", len(archives))
	}
}

// A backup failure is reported but the local close stands.
func TestClose_SyncFailureNotRolledBack(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	b := backup.NewMemory()
	b.FailWith(errors.New("network unreachable"))

	res, err := newCloser(s, b).Close(ctx, "u1")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !errors.Is(res.SyncErr, backup.ErrSyncFailure) {
		t.Errorf("SyncErr = %v, want ErrSyncFailure", res.SyncErr)
	}
	if res.Outcome != OutcomeClosed {
		t.Errorf("outcome = %s, want closed", res.Outcome)
	}
	l, _ := s.LoadLedger(ctx, "u1")
	if !l.IsEmpty() {
		t.Error("ledger should be reset despite sync failure")
	}
	if archives, _ := s.Archives(ctx, "u1"); len(archives) != 1 {
		t.Errorf("archives = %d, want 1", len(archives))
	}
}

// Closing one user leaves another user's ledger alone.
func TestClose_UsersIndependent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	register(t, s, "u2", 200, 100, t0)

	if _, err := newCloser(s, nil).Close(ctx, "u1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	l, _ := s.LoadLedger(ctx, "u2")
	if l.Len() != 1 {
		t.Errorf("u2 ledger has %d entries, want 1", l.Len())
	}
}

// blockingLedgers holds LoadLedger until release is closed.
type blockingLedgers struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLedgers) LoadLedger(ctx context.Context, userID string) (*nutrition.Ledger, error) {
	close(b.entered)
	<-b.release
	return b.Memory.LoadLedger(ctx, userID)
}

// A close started while another is in flight for the same user is refused.
func TestClose_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	bl := &blockingLedgers{Memory: s, entered: make(chan struct{}), release: make(chan struct{})}
	c := New(Config{Ledgers: bl, Clock: testclock.NewClock(t0)})

	done := make(chan error, 1)
	go func() {
		_, err := c.Close(ctx, "u1")
		done <- err
	}()
	<-bl.entered

	if c.State("u1") != Closing {
		t.Errorf("State = %s, want closing", c.State("u1"))
	}
	if _, err := c.Close(ctx, "u1"); !errors.Is(err, ErrCloseInProgress) {
		t.Errorf("concurrent Close err = %v, want ErrCloseInProgress", err)
	}

	close(bl.release)
	if err := <-done; err != nil {
		t.Fatalf("first Close: %v", err)
	}
}

// blockingArchive holds ArchiveAndReset, after the snapshot was taken, until
// release is closed.
type blockingArchive struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingArchive) ArchiveAndReset(ctx context.Context, rec nutrition.ArchiveRecord) error {
	close(b.entered)
	<-b.release
	return b.Memory.ArchiveAndReset(ctx, rec)
}

// A registration that lands while a close is in flight keeps the day open.
func TestClose_ReopenDuringClose(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	bl := &blockingArchive{Memory: s, entered: make(chan struct{}), release: make(chan struct{})}
	c := New(Config{Ledgers: bl, Clock: testclock.NewClock(t0)})

	done := make(chan error, 1)
	go func() {
		_, err := c.Close(ctx, "u1")
		done <- err
	}()
	<-bl.entered
	register(t, s, "u1", 50, 100, t0)
	c.Reopen("u1")
	close(bl.release)
	if err := <-done; err != nil {
		t.Fatalf("Close: %v", err)
	}

	if c.State("u1") != Open {
		t.Errorf("State = %s, want open", c.State("u1"))
	}
	l, _ := s.LoadLedger(ctx, "u1")
	if l.Len() != 1 {
		t.Errorf("ledger has %d entries, want the late one", l.Len())
	}
}

// With a clock that never moves, each close still gets its own closed_at and
// no entry is lost.
func TestClose_ClockNotAdvanced(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	b := backup.NewMemory()
	c := newCloser(s, b)

	register(t, s, "u1", 100, 100, t0)
	first, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("first Close: %v", err)
	}
	register(t, s, "u1", 50, 100, t0)
	second, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if second.Outcome != OutcomeClosed || math.Abs(second.Total.Calories-50) > 1e-9 {
		t.Errorf("second close = %s with %v kcal, want closed with 50", second.Outcome, second.Total.Calories)
	}
	if !second.Record.ClosedAt.After(first.Record.ClosedAt) {
		t.Errorf("closed_at %v not after %v", second.Record.ClosedAt, first.Record.ClosedAt)
	}
	if first.SyncKey == second.SyncKey {
		t.Errorf("both closes backed up under %q", first.SyncKey)
	}

	archives, _ := s.Archives(ctx, "u1")
	if len(archives) != 2 || len(archives[0].Entries) != 1 || len(archives[1].Entries) != 1 {
		t.Fatalf("archives = %+v, want two days of one entry", archives)
	}
	l, _ := s.LoadLedger(ctx, "u1")
	if !l.IsEmpty() {
		t.Errorf("ledger has %d entries after close", l.Len())
	}
}

// staleLastClose reports no previous close once, as if another process
// archived after the closer read it.
type staleLastClose struct {
	*store.Memory
	stale bool
}

func (s *staleLastClose) LastClosedAt(ctx context.Context, userID string) (time.Time, error) {
	if s.stale {
		s.stale = false
		return time.Time{}, nil
	}
	return s.Memory.LastClosedAt(ctx, userID)
}

// A closed_at taken by another close is retried with a later one.
func TestClose_RetriesOnKeyConflict(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	register(t, s, "u1", 100, 100, t0)
	c := New(Config{Ledgers: &staleLastClose{Memory: s}, Clock: testclock.NewClock(t0)})
	if _, err := c.Close(ctx, "u1"); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	register(t, s, "u1", 50, 100, t0)
	c = New(Config{Ledgers: &staleLastClose{Memory: s, stale: true}, Clock: testclock.NewClock(t0)})
	res, err := c.Close(ctx, "u1")
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !res.Record.ClosedAt.After(t0.Truncate(time.Microsecond)) {
		t.Errorf("closed_at = %v, want after %v", res.Record.ClosedAt, t0)
	}
	if archives, _ := s.Archives(ctx, "u1"); len(archives) != 2 {
		t.Errorf("archives = %d, want 2", len(archives))
	}
}

// After a close the remote open ledger matches the reset local one.
func TestClose_ReplacesRemoteLedger(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	b := backup.NewMemory()
	register(t, s, "u1", 100, 100, t0)

	var stale bytes.Buffer
	l, _ := s.LoadLedger(ctx, "u1")
	if err := ledgercsv.EncodeLedger(&stale, l.Entries()); err != nil {
		t.Fatal(err)
	}
	if err := b.Store(ctx, "u1", backup.LedgerKey, stale.Bytes()); err != nil {
		t.Fatal(err)
	}

	if _, err := newCloser(s, b).Close(ctx, "u1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	payload, err := b.Fetch(ctx, "u1", backup.LedgerKey)
	if err != nil {
		t.Fatalf("Fetch ledger: %v", err)
	}
	entries, err := ledgercsv.DecodeLedger(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("DecodeLedger: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("remote ledger has %d entries after close, want 0", len(entries))
	}
}
