// Package catalog exposes the read-only food table that maps a food name to
// its nutrient profile per 100g.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"lg/nutrition-ledger-go-api/internal/nutrition"
)

// ErrFoodNotFound is returned when a name has no profile in the catalog.
var ErrFoodNotFound = errors.New("food not found")

// Food is one catalog row.
type Food struct {
	Name    string           `json:"name"`
	Per100g nutrition.Vector `json:"per_100g"`
}

// Lookup resolves a food name to its profile.
type Lookup interface {
	Lookup(ctx context.Context, name string) (Food, error)
}

// Searcher lists catalog names matching a query.
type Searcher interface {
	SearchFoods(ctx context.Context, query string, limit int) ([]string, error)
}

// NormalizeName is the matching key for food names: trimmed, lower-cased,
// inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Table is an in-memory catalog. It is safe for concurrent reads once built.
type Table struct {
	foods map[string]Food
}

// NewTable builds a Table from foods. Later duplicates replace earlier ones.
func NewTable(foods ...Food) *Table {
	t := &Table{foods: make(map[string]Food, len(foods))}
	for _, f := range foods {
		t.foods[NormalizeName(f.Name)] = f
	}
	return t
}

func (t *Table) Lookup(_ context.Context, name string) (Food, error) {
	f, ok := t.foods[NormalizeName(name)]
	if !ok {
		return Food{}, ErrFoodNotFound
	}
	return f, nil
}

// Names returns every food name in alphabetical order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.foods))
	for _, f := range t.foods {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// SearchFoods returns up to limit names containing query, alphabetically.
// A non-positive limit means no limit.
func (t *Table) SearchFoods(_ context.Context, query string, limit int) ([]string, error) {
	q := NormalizeName(query)
	var out []string
	for _, name := range t.Names() {
		if q != "" && !strings.Contains(NormalizeName(name), q) {
			continue
		}
		out = append(out, name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
