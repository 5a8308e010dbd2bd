// Package nutrition scales per-100g nutrient profiles into consumed amounts
// and keeps the running per-user ledger of what was eaten today.
package nutrition

import (
	"errors"
	"fmt"
	"math"
)

// referenceMassG is the mass that catalog profiles are expressed against.
const referenceMassG = 100.0

var (
	// ErrInvalidQuantity is returned when a consumed quantity is not a
	// positive, finite number of grams.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidProfileVector is returned when a per-100g profile carries a
	// negative or non-finite field.
	ErrInvalidProfileVector = errors.New("invalid nutrient profile")
)

// Vector is the {calories, fat, protein, carbohydrate} quantity tuple. Values
// are never rounded here; rounding is a presentation concern.
type Vector struct {
	Calories      float64 `json:"calories"`
	FatG          float64 `json:"fat_g"`
	ProteinG      float64 `json:"protein_g"`
	CarbohydrateG float64 `json:"carbohydrate_g"`
}

// Add returns the field-wise sum of v and o.
func (v Vector) Add(o Vector) Vector {
	return Vector{
		Calories:      v.Calories + o.Calories,
		FatG:          v.FatG + o.FatG,
		ProteinG:      v.ProteinG + o.ProteinG,
		CarbohydrateG: v.CarbohydrateG + o.CarbohydrateG,
	}
}

// IsZero reports whether every field is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Validate checks that every field is finite and non-negative.
func (v Vector) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"calories", v.Calories},
		{"fat_g", v.FatG},
		{"protein_g", v.ProteinG},
		{"carbohydrate_g", v.CarbohydrateG},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidProfileVector, f.name, f.value)
		}
	}
	return nil
}

// Scale computes the nutrients consumed when quantityG grams of a food with
// the given per-100g profile are eaten. Each field is multiplied by the
// same factor, so the result is exactly linear in the quantity.
func Scale(per100g Vector, quantityG float64) (Vector, error) {
	if err := ValidateQuantity(quantityG); err != nil {
		return Vector{}, err
	}
	if err := per100g.Validate(); err != nil {
		return Vector{}, err
	}
	factor := quantityG / referenceMassG
	return Vector{
		Calories:      per100g.Calories * factor,
		FatG:          per100g.FatG * factor,
		ProteinG:      per100g.ProteinG * factor,
		CarbohydrateG: per100g.CarbohydrateG * factor,
	}, nil
}

// ValidateQuantity rejects quantities that are not a positive, finite number
// of grams.
func ValidateQuantity(quantityG float64) error {
	if math.IsNaN(quantityG) || math.IsInf(quantityG, 0) || quantityG <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0 g, got %v", ErrInvalidQuantity, quantityG)
	}
	return nil
}

// Sum reduces the entries' nutrient vectors into a daily total. An empty
// slice yields the zero vector.
func Sum(entries []Entry) Vector {
	var total Vector
	for _, e := range entries {
		total = total.Add(e.Nutrients)
	}
	return total
}
