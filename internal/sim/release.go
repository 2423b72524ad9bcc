package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// HoursPerDay is the length of the release cycle.
const HoursPerDay = 24

// ReleaseSchedule is the number of agents activated at the start of each
// hour of the day.
type ReleaseSchedule [HoursPerDay]int

// NormalSchedule discretises a normal density over the 24 hours of a day:
// hour h releases round(pdf(h) * total) agents.
func NormalSchedule(total, peakHour, spreadHours float64) ReleaseSchedule {
	dist := distuv.Normal{Mu: peakHour, Sigma: spreadHours}
	var s ReleaseSchedule
	for h := range s {
		s[h] = int(math.Round(dist.Prob(float64(h)) * total))
	}
	return s
}

// At returns the release count for the hour starting at tick.
func (s ReleaseSchedule) At(tick, ticksPerHour int) int {
	return s[(tick/ticksPerHour)%HoursPerDay]
}

// Total returns the number of agents released over a day.
func (s ReleaseSchedule) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Peak returns the largest hourly release.
func (s ReleaseSchedule) Peak() int {
	m := 0
	for _, v := range s {
		m = max(m, v)
	}
	return m
}

// StepOrder decides the order agents are stepped within a tick.
type StepOrder interface {
	// Order fills buf with a permutation of 0..n-1 and returns it.
	Order(buf []int, rng *rand.Rand) []int
}

// Sequential steps agents in id order.
type Sequential struct{}

func (Sequential) Order(buf []int, _ *rand.Rand) []int {
	for i := range buf {
		buf[i] = i
	}
	return buf
}

// Shuffled steps agents in a fresh random order every tick, drawn from the
// simulation's seeded generator.
type Shuffled struct{}

func (Shuffled) Order(buf []int, rng *rand.Rand) []int {
	for i := range buf {
		buf[i] = i
	}
	rng.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
	return buf
}
