package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/nutrition"
)

// Memory is a process-local Store. Values are copied in and out so callers
// never share slices with it.
type Memory struct {
	mu       sync.Mutex
	ledgers  map[string][]nutrition.Entry
	archives map[string][]nutrition.ArchiveRecord
	profiles map[string]goals.Profile

	// failArchive, when set, makes ArchiveAndReset fail before changing anything.
	failArchive error
}

func NewMemory() *Memory {
	return &Memory{
		ledgers:  make(map[string][]nutrition.Entry),
		archives: make(map[string][]nutrition.ArchiveRecord),
		profiles: make(map[string]goals.Profile),
	}
}

// FailArchiveWith makes ArchiveAndReset return err until reset with nil.
func (m *Memory) FailArchiveWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failArchive = err
}

func (m *Memory) LoadLedger(_ context.Context, userID string) (*nutrition.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nutrition.NewLedger(userID, m.ledgers[userID]...), nil
}

func (m *Memory) AppendEntry(_ context.Context, userID string, e nutrition.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[userID] = append(m.ledgers[userID], e)
	return nil
}

func (m *Memory) AppendEntries(_ context.Context, userID string, entries []nutrition.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[userID] = append(m.ledgers[userID], entries...)
	return nil
}

func (m *Memory) ArchiveAndReset(_ context.Context, rec nutrition.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failArchive != nil {
		return m.failArchive
	}

	var existing *nutrition.ArchiveRecord
	for i, r := range m.archives[rec.UserID] {
		if r.Key() == rec.Key() {
			existing = &m.archives[rec.UserID][i]
			break
		}
	}
	if existing != nil {
		// A replay may only remove entries the stored record already holds.
		if !coveredBy(rec.Entries, entryIDs(existing.Entries)) {
			return fmt.Errorf("%w: user %s at %s", ErrArchiveConflict, rec.UserID, rec.ClosedAt.UTC().Format(time.RFC3339Nano))
		}
	} else {
		frozen := rec
		frozen.Entries = append([]nutrition.Entry(nil), rec.Entries...)
		m.archives[rec.UserID] = append(m.archives[rec.UserID], frozen)
	}

	// Only the archived entries leave the ledger.
	archived := entryIDs(rec.Entries)
	var remaining []nutrition.Entry
	for _, e := range m.ledgers[rec.UserID] {
		if !archived[e.ID] {
			remaining = append(remaining, e)
		}
	}
	m.ledgers[rec.UserID] = remaining
	return nil
}

func (m *Memory) Archives(_ context.Context, userID string) ([]nutrition.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]nutrition.ArchiveRecord, len(m.archives[userID]))
	for i, r := range m.archives[userID] {
		out[i] = r
		out[i].Entries = append([]nutrition.Entry(nil), r.Entries...)
	}
	return out, nil
}

func (m *Memory) LastClosedAt(_ context.Context, userID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	for _, r := range m.archives[userID] {
		if r.ClosedAt.After(last) {
			last = r.ClosedAt
		}
	}
	return last, nil
}

func (m *Memory) LoadProfile(_ context.Context, userID string) (goals.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return goals.Profile{}, ErrProfileNotFound
	}
	if p.DesiredWeightKG != nil {
		d := *p.DesiredWeightKG
		p.DesiredWeightKG = &d
	}
	return p, nil
}

func (m *Memory) SaveProfile(_ context.Context, userID string, p goals.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.DesiredWeightKG != nil {
		d := *p.DesiredWeightKG
		p.DesiredWeightKG = &d
	}
	m.profiles[userID] = p
	return nil
}
