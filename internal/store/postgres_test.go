package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"lg/nutrition-ledger-go-api/internal/catalog"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

// newTestPostgres connects to TEST_DB_URL (a migrated scratch database) or
// skips. Each test uses a fresh user ID so runs do not interfere.
func newTestPostgres(t *testing.T) (*Postgres, string) {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		t.Skip("TEST_DB_URL not set")
	}
	ctx := context.Background()
	pool, err := OpenPool(ctx, url)
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewPostgres(pool), "test-" + uuid.NewString()
}

func TestPostgres_ArchiveAndReset(t *testing.T) {
	p, userID := newTestPostgres(t)
	ctx := context.Background()

	a := makeEntry(t, "apple", 150, t0)
	b := makeEntry(t, "bread", 50, t0.Add(time.Minute))
	if err := p.AppendEntries(ctx, userID, []nutrition.Entry{a, b}); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	l, err := p.LoadLedger(ctx, userID)
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if l.Len() != 2 || l.Entries()[0].ID != a.ID {
		t.Fatalf("unexpected ledger: %+v", l.Entries())
	}

	rec := nutrition.ArchiveRecord{UserID: userID, ClosedAt: t0.Add(time.Hour), Entries: l.Entries()}
	for i := 0; i < 2; i++ {
		if err := p.ArchiveAndReset(ctx, rec); err != nil {
			t.Fatalf("ArchiveAndReset #%d: %v", i+1, err)
		}
	}

	after, _ := p.LoadLedger(ctx, userID)
	if !after.IsEmpty() {
		t.Errorf("ledger not reset: %d entries", after.Len())
	}
	archives, err := p.Archives(ctx, userID)
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if len(archives) != 1 || len(archives[0].Entries) != 2 {
		t.Fatalf("unexpected archives: %+v", archives)
	}
	if got, want := archives[0].Total(), rec.Total(); got != want {
		t.Errorf("archived total = %+v, want %+v", got, want)
	}
}

func TestPostgres_ArchiveKeyConflict(t *testing.T) {
	p, userID := newTestPostgres(t)
	ctx := context.Background()

	a := makeEntry(t, "apple", 150, t0)
	soup := makeEntry(t, "soup", 100, t0)
	if err := p.AppendEntries(ctx, userID, []nutrition.Entry{a, soup}); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	closedAt := t0.Add(time.Hour)
	if err := p.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: userID, ClosedAt: closedAt, Entries: []nutrition.Entry{a}}); err != nil {
		t.Fatalf("ArchiveAndReset: %v", err)
	}
	err := p.ArchiveAndReset(ctx, nutrition.ArchiveRecord{UserID: userID, ClosedAt: closedAt, Entries: []nutrition.Entry{soup}})
	if !errors.Is(err, ErrArchiveConflict) {
		t.Fatalf("err = %v, want ErrArchiveConflict", err)
	}

	l, _ := p.LoadLedger(ctx, userID)
	if got := l.Entries(); len(got) != 1 || got[0].ID != soup.ID {
		t.Errorf("ledger after conflict = %+v, want the soup entry", got)
	}
	last, err := p.LastClosedAt(ctx, userID)
	if err != nil || !last.Equal(closedAt) {
		t.Errorf("LastClosedAt = %v, %v; want %v", last, err, closedAt)
	}
}

func TestPostgres_Profiles(t *testing.T) {
	p, userID := newTestPostgres(t)
	ctx := context.Background()

	if _, err := p.LoadProfile(ctx, userID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("LoadProfile err = %v, want ErrProfileNotFound", err)
	}

	prof := goals.Profile{WeightKG: 70, HeightCM: 175, AgeYears: 30, Gender: goals.Male, Goal: goals.Maintain, ActivityLevel: "moderate"}
	if err := p.SaveProfile(ctx, userID, prof); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	desired := 65.0
	prof.DesiredWeightKG = &desired
	prof.Goal = goals.Deficit
	if err := p.SaveProfile(ctx, userID, prof); err != nil {
		t.Fatalf("SaveProfile update: %v", err)
	}

	got, err := p.LoadProfile(ctx, userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got.Goal != goals.Deficit || got.DesiredWeightKG == nil || *got.DesiredWeightKG != 65 || got.ActivityLevel != "moderate" {
		t.Errorf("unexpected profile: %+v", got)
	}
}

func TestPostgres_FoodNotFound(t *testing.T) {
	p, _ := newTestPostgres(t)
	if _, err := p.Lookup(context.Background(), "no such food "+uuid.NewString()); !errors.Is(err, catalog.ErrFoodNotFound) {
		t.Errorf("Lookup err = %v, want ErrFoodNotFound", err)
	}
}
