package nutrition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyFoodName is returned when an entry is created without a food name.
var ErrEmptyFoodName = errors.New("food name is required")

// Entry is one registration action: a food, the grams eaten and the nutrients
// that quantity contributes. Entries are created once and never mutated.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	FoodName  string    `json:"food_name"`
	QuantityG float64   `json:"quantity_g"`
	Nutrients Vector    `json:"nutrients"`
}

// NewEntry scales per100g by quantityG and wraps the result in an Entry.
// Validation happens before anything is built so a failed registration leaves
// no partial state behind.
func NewEntry(id uuid.UUID, ts time.Time, foodName string, quantityG float64, per100g Vector) (Entry, error) {
	foodName = strings.TrimSpace(foodName)
	if foodName == "" {
		return Entry{}, ErrEmptyFoodName
	}
	consumed, err := Scale(per100g, quantityG)
	if err != nil {
		return Entry{}, fmt.Errorf("scale %q: %w", foodName, err)
	}
	return Entry{
		ID:        id,
		Timestamp: ts,
		FoodName:  foodName,
		QuantityG: quantityG,
		Nutrients: consumed,
	}, nil
}

// Ledger is the open list of today's consumption entries for one user.
// Insertion order is the entry order; identical registrations are kept.
type Ledger struct {
	UserID  string
	entries []Entry
}

// NewLedger returns a ledger for userID holding a copy of entries.
func NewLedger(userID string, entries ...Entry) *Ledger {
	l := &Ledger{UserID: userID}
	if len(entries) > 0 {
		l.entries = append([]Entry(nil), entries...)
	}
	return l
}

// Append adds e after every existing entry.
func (l *Ledger) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the entries in insertion order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// CurrentTotal sums every entry appended so far.
func (l *Ledger) CurrentTotal() Vector {
	return Sum(l.entries)
}

func (l *Ledger) IsEmpty() bool {
	return len(l.entries) == 0
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// ArchiveRecord is the frozen snapshot of a closed day. It is identified by
// (UserID, ClosedAt); appending the same key twice must not duplicate it.
type ArchiveRecord struct {
	UserID   string    `json:"user_id"`
	ClosedAt time.Time `json:"closed_at"`
	Entries  []Entry   `json:"entries"`
}

// ArchiveKey identifies an ArchiveRecord within the historical log.
type ArchiveKey struct {
	UserID   string
	ClosedAt time.Time
}

// Key returns the record's identity. ClosedAt is normalised to UTC so equal
// instants in different zones compare equal as map keys.
func (r ArchiveRecord) Key() ArchiveKey {
	return ArchiveKey{UserID: r.UserID, ClosedAt: r.ClosedAt.UTC()}
}

// Total sums the archived entries.
func (r ArchiveRecord) Total() Vector {
	return Sum(r.Entries)
}
