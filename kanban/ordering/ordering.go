// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ordering implements fractional-index position arithmetic for
// lists and cards.
//
// Positions are float64 keys forming a total order surrogate: a new
// item can be placed between two existing items by taking the
// midpoint, without renumbering anything else, until the float gap
// between neighbors is exhausted. When that happens [Between] returns
// [ErrPrecisionExhausted] and the caller renumbers the whole sequence
// with [ReorderAll] before retrying.
package ordering

import (
	"errors"
	"math"
	"sort"
)

const (
	// Initial is the position assigned to the first item in an empty
	// sequence, and the base used by ReorderAll.
	Initial = 1000.0

	// Interval is the spacing between consecutive items assigned by
	// appends, prepends, and ReorderAll.
	Interval = 1000.0
)

// epsilonSafety scales the float epsilon when deciding whether the
// gap between two bounds is wide enough to hold a distinct midpoint.
// A bare epsilon comparison can still produce a midpoint equal to one
// of the bounds after rounding; the safety factor keeps the check
// strictly ahead of that edge.
const epsilonSafety = 4.0

// ErrPrecisionExhausted reports that the gap between the requested
// bounds is too narrow for a new distinct position. The caller must
// renumber the sequence with ReorderAll and derive the position again.
var ErrPrecisionExhausted = errors.New("ordering: position gap exhausted, renumber required")

// Between computes a position strictly between before and after.
// Either bound may be nil:
//
//   - both nil: Initial (first item in an empty sequence)
//   - only before: before + Interval (append)
//   - only after: after - Interval, or half of after when that would
//     not be positive (prepend)
//   - both: the midpoint
//
// Returns ErrPrecisionExhausted when the bounds are too close (or
// inverted) for a midpoint strictly between them.
func Between(before, after *float64) (float64, error) {
	switch {
	case before == nil && after == nil:
		return Initial, nil

	case before != nil && after == nil:
		return *before + Interval, nil

	case before == nil:
		if candidate := *after - Interval; candidate > 0 {
			return candidate, nil
		}
		// No room for a full interval ahead of the first item; halve
		// the head position instead of going non-positive.
		candidate := *after / 2
		if candidate <= 0 || candidate >= *after {
			return 0, ErrPrecisionExhausted
		}
		return candidate, nil

	default:
		gap := *after - *before
		if gap <= math.Abs(*before)*epsilon()*epsilonSafety || gap <= epsilon()*epsilonSafety {
			return 0, ErrPrecisionExhausted
		}
		midpoint := (*before + *after) / 2
		if midpoint <= *before || midpoint >= *after {
			return 0, ErrPrecisionExhausted
		}
		return midpoint, nil
	}
}

func epsilon() float64 {
	return math.Nextafter(1, 2) - 1
}

// Positioned is anything that carries an orderable position key.
type Positioned interface {
	GetPosition() float64
	SetPosition(float64)
}

// ReorderAll sorts items by their current position and reassigns
// uniform spacing: Initial + i*Interval for sorted index i. Invoke
// whenever repeated insertions exhaust the gap between neighbors.
func ReorderAll[T Positioned](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].GetPosition() < items[j].GetPosition()
	})
	for i, item := range items {
		item.SetPosition(Initial + float64(i)*Interval)
	}
}
