// Package coin resolves bursts of coin-acceptor pulses into denominations.
// Table and Coalescer are pure: no I/O, no sleeping, time is passed in.
package coin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Denomination is a recognised coin, identified by its pulse signature.
type Denomination struct {
	Name   string
	Pulses int
	Value  decimal.Decimal
}

// Table maps pulse counts to denominations.
//
// With Tolerance 0 only exact signatures match. With Tolerance t a count
// matches the closest signature within t pulses; a count that is equally
// close to two signatures is rejected rather than guessed.
type Table struct {
	denoms    []Denomination
	tolerance int
}

// NewTable validates and builds a Table.
func NewTable(tolerance int, denoms ...Denomination) (*Table, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("tolerance must be >= 0, got %d", tolerance)
	}
	if len(denoms) == 0 {
		return nil, errors.New("at least one denomination is required")
	}

	sorted := make([]Denomination, len(denoms))
	copy(sorted, denoms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pulses < sorted[j].Pulses })

	for i, d := range sorted {
		if d.Pulses <= 0 {
			return nil, fmt.Errorf("denomination %q: pulses must be > 0", d.Name)
		}
		if !d.Value.IsPositive() {
			return nil, fmt.Errorf("denomination %q: value must be > 0", d.Name)
		}
		if i > 0 && sorted[i-1].Pulses == d.Pulses {
			return nil, fmt.Errorf("denominations %q and %q share signature %d", sorted[i-1].Name, d.Name, d.Pulses)
		}
	}

	return &Table{denoms: sorted, tolerance: tolerance}, nil
}

// Match returns the denomination for a pulse count.
func (t *Table) Match(pulses int) (Denomination, bool) {
	if pulses <= 0 {
		return Denomination{}, false
	}

	best := -1
	bestDist := t.tolerance + 1
	tied := false
	for i, d := range t.denoms {
		dist := abs(pulses - d.Pulses)
		switch {
		case dist > t.tolerance:
			continue
		case dist < bestDist:
			best, bestDist, tied = i, dist, false
		case dist == bestDist:
			tied = true
		}
	}

	if best < 0 || tied {
		return Denomination{}, false
	}
	return t.denoms[best], true
}

// Signature returns the pulse count registered for a coin value.
func (t *Table) Signature(value decimal.Decimal) (int, bool) {
	for _, d := range t.denoms {
		if d.Value.Equal(value) {
			return d.Pulses, true
		}
	}
	return 0, false
}

// Denominations returns the table's denominations ordered by signature.
func (t *Table) Denominations() []Denomination {
	out := make([]Denomination, len(t.denoms))
	copy(out, t.denoms)
	return out
}

// Tolerance returns the matching tolerance in pulses.
func (t *Table) Tolerance() int {
	return t.tolerance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
