package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeEntry(t *testing.T, name string, qty float64, at time.Time) nutrition.Entry {
	t.Helper()
	e, err := nutrition.NewEntry(uuid.New(), at, name, qty, nutrition.Vector{Calories: 100, FatG: 1, ProteinG: 2, CarbohydrateG: 3})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return e
}

// Ledgers are isolated per user and preserve append order.
func TestMemory_LedgerPerUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := makeEntry(t, "apple", 100, t0)
	b := makeEntry(t, "bread", 50, t0.Add(time.Minute))

	if err := m.AppendEntry(ctx, "u1", a); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendEntries(ctx, "u1", []nutrition.Entry{b}); err != nil {
		t.Fatal(err)
	}

	l, err := m.LoadLedger(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	got := l.Entries()
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Errorf("unexpected ledger order: %+v", got)
	}

	other, _ := m.LoadLedger(ctx, "u2")
	if !other.IsEmpty() {
		t.Errorf("u2 ledger should be empty, has %d entries", other.Len())
	}
}

// ArchiveAndReset moves only the archived entries and is idempotent on the key.
func TestMemory_ArchiveAndReset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := makeEntry(t, "apple", 100, t0)
	b := makeEntry(t, "bread", 50, t0.Add(time.Minute))
	_ = m.AppendEntries(ctx, "u1", []nutrition.Entry{a, b})

	rec := nutrition.ArchiveRecord{UserID: "u1", ClosedAt: t0.Add(time.Hour), Entries: []nutrition.Entry{a, b}}

	// An entry registered after the snapshot was taken must survive the reset.
	late := makeEntry(t, "cheese", 30, t0.Add(2*time.Hour))
	_ = m.AppendEntry(ctx, "u1", late)

	for i := 0; i < 2; i++ {
		if err := m.ArchiveAndReset(ctx, rec); err != nil {
			t.Fatalf("ArchiveAndReset #%d: %v", i+1, err)
		}
	}

	archives, _ := m.Archives(ctx, "u1")
	if len(archives) != 1 {
		t.Fatalf("expected 1 archive record after replay, got %d", len(archives))
	}
	if len(archives[0].Entries) != 2 {
		t.Errorf("archived %d entries, want 2", len(archives[0].Entries))
	}

	l, _ := m.LoadLedger(ctx, "u1")
	if got := l.Entries(); len(got) != 1 || got[0].ID != late.ID {
		t.Errorf("ledger after reset = %+v, want only the late entry", got)
	}
}

// A different record under an existing key is refused and removes nothing.
func TestMemory_ArchiveKeyConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := makeEntry(t, "apple", 100, t0)
	_ = m.AppendEntry(ctx, "u1", a)
	if err := m.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: "u1", ClosedAt: t0, Entries: []nutrition.Entry{a}}); err != nil {
		t.Fatalf("ArchiveAndReset: %v", err)
	}

	soup := makeEntry(t, "soup", 100, t0)
	_ = m.AppendEntry(ctx, "u1", soup)
	err := m.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: "u1", ClosedAt: t0, Entries: []nutrition.Entry{soup}})
	if !errors.Is(err, ErrArchiveConflict) {
		t.Fatalf("err = %v, want ErrArchiveConflict", err)
	}

	l, _ := m.LoadLedger(ctx, "u1")
	if got := l.Entries(); len(got) != 1 || got[0].ID != soup.ID {
		t.Errorf("ledger after conflict = %+v, want the soup entry", got)
	}
	archives, _ := m.Archives(ctx, "u1")
	if len(archives) != 1 || len(archives[0].Entries) != 1 || archives[0].Entries[0].ID != a.ID {
		t.Errorf("archives after conflict = %+v", archives)
	}
}

func TestMemory_LastClosedAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if last, err := m.LastClosedAt(ctx, "u1"); err != nil || !last.IsZero() {
		t.Fatalf("LastClosedAt = %v, %v; want zero", last, err)
	}
	for _, at := range []time.Time{t0.Add(2 * time.Hour), t0.Add(time.Hour)} {
		e := makeEntry(t, "apple", 100, t0)
		_ = m.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: "u1", ClosedAt: at, Entries: []nutrition.Entry{e}})
	}
	if last, _ := m.LastClosedAt(ctx, "u1"); !last.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("LastClosedAt = %v, want %v", last, t0.Add(2*time.Hour))
	}
	if last, _ := m.LastClosedAt(ctx, "u2"); !last.IsZero() {
		t.Errorf("u2 LastClosedAt = %v, want zero", last)
	}
}

// A failing archive leaves both the ledger and the archive untouched.
func TestMemory_ArchiveFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := makeEntry(t, "apple", 100, t0)
	_ = m.AppendEntry(ctx, "u1", a)

	m.FailArchiveWith(errors.New("disk full"))
	err := m.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: "u1", ClosedAt: t0, Entries: []nutrition.Entry{a}})
	if err == nil {
		t.Fatal("expected error")
	}

	l, _ := m.LoadLedger(ctx, "u1")
	if l.Len() != 1 {
		t.Errorf("ledger has %d entries, want 1", l.Len())
	}
	if archives, _ := m.Archives(ctx, "u1"); len(archives) != 0 {
		t.Errorf("expected no archives, got %d", len(archives))
	}
}

// Archive slices handed out are copies.
func TestMemory_ArchivesAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := makeEntry(t, "apple", 100, t0)
	_ = m.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: "u1", ClosedAt: t0, Entries: []nutrition.Entry{a}})

	first, _ := m.Archives(ctx, "u1")
	first[0].Entries[0].FoodName = "mutated"

	second, _ := m.Archives(ctx, "u1")
	if second[0].Entries[0].FoodName != "apple" {
		t.Errorf("archive was mutated through returned slice: %q", second[0].Entries[0].FoodName)
	}
}

func TestMemory_Profiles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.LoadProfile(ctx, "u1"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("LoadProfile err = %v, want ErrProfileNotFound", err)
	}

	desired := 65.0
	p := goals.Profile{WeightKG: 70, HeightCM: 175, AgeYears: 30, Gender: goals.Male, Goal: goals.Deficit, DesiredWeightKG: &desired}
	if err := m.SaveProfile(ctx, "u1", p); err != nil {
		t.Fatal(err)
	}
	desired = 10 // caller's pointer must not leak into the store

	got, err := m.LoadProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DesiredWeightKG == nil || *got.DesiredWeightKG != 65 {
		t.Errorf("DesiredWeightKG = %v, want 65", got.DesiredWeightKG)
	}
	if got.WeightKG != 70 || got.Gender != goals.Male {
		t.Errorf("unexpected profile: %+v", got)
	}
}
