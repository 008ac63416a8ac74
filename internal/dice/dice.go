// Package dice implements the random source and dice mechanics used by the
// expression evaluator.
package dice

import (
	"errors"
	"math/rand"
)

// ErrInvalidDiceSpec indicates a roll was requested with a non-positive
// die count or side count.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")

// ErrInvalidThreshold indicates a dice pool threshold is non-positive.
var ErrInvalidThreshold = errors.New("pool threshold must be positive")

// MaxBonusDice caps how many extra dice a single exploding roll may spawn.
// Exploding dice recurse on every maximum face; the cap guarantees
// termination even for degenerate expressions like 100x1.
const MaxBonusDice = 1000

// Roller produces uniform die rolls. Implementations are injected wherever
// randomness is needed so tests can supply deterministic sequences.
type Roller interface {
	// Roll returns a uniform value in [1, sides]. Callers must ensure
	// sides > 0.
	Roll(sides int) int
}

type randRoller struct {
	rng *rand.Rand
}

// NewRoller returns a Roller seeded with the provided seed. Two rollers with
// the same seed produce identical sequences.
func NewRoller(seed int64) Roller {
	return &randRoller{rng: rand.New(rand.NewSource(seed))}
}

func (r *randRoller) Roll(sides int) int {
	return r.rng.Intn(sides) + 1
}

// Sum rolls count dice with the given sides and returns their sum.
// The result lies in [count, count*sides].
func Sum(r Roller, count, sides int) (int, error) {
	if count <= 0 || sides <= 0 {
		return 0, ErrInvalidDiceSpec
	}
	total := 0
	for i := 0; i < count; i++ {
		total += r.Roll(sides)
	}
	return total, nil
}

// Pool rolls count dice and counts how many land at or above threshold.
// The result lies in [0, count].
func Pool(r Roller, count, sides, threshold int) (int, error) {
	if count <= 0 || sides <= 0 {
		return 0, ErrInvalidDiceSpec
	}
	if threshold <= 0 {
		return 0, ErrInvalidThreshold
	}
	hits := 0
	for i := 0; i < count; i++ {
		if r.Roll(sides) >= threshold {
			hits++
		}
	}
	return hits, nil
}

// PoolLow rolls count dice and counts how many land at or below threshold.
// The result lies in [0, count].
func PoolLow(r Roller, count, sides, threshold int) (int, error) {
	if count <= 0 || sides <= 0 {
		return 0, ErrInvalidDiceSpec
	}
	if threshold <= 0 {
		return 0, ErrInvalidThreshold
	}
	hits := 0
	for i := 0; i < count; i++ {
		if r.Roll(sides) <= threshold {
			hits++
		}
	}
	return hits, nil
}

// Explode rolls count exploding dice: every die landing on its maximum face
// spawns one additional die of the same size, chains included. The sum of
// every roll produced is returned, so the result is always >= count.
//
// At most MaxBonusDice additional dice are rolled per call; once the cap is
// reached remaining explosions are ignored. With one-sided dice every roll
// explodes, so the cap also bounds the result at count+MaxBonusDice rolls.
func Explode(r Roller, count, sides int) (int, error) {
	if count <= 0 || sides <= 0 {
		return 0, ErrInvalidDiceSpec
	}
	total := 0
	bonus := 0
	for i := 0; i < count; i++ {
		for {
			v := r.Roll(sides)
			total += v
			if v != sides {
				break
			}
			if bonus >= MaxBonusDice {
				break
			}
			bonus++
		}
	}
	return total, nil
}
