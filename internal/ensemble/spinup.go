package ensemble

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/footfall/internal/sim"
	"github.com/banshee-data/footfall/internal/world"
)

// pcgStream is the PCG stream (increment) shared by every replica; replicas
// differ by seed.
const pcgStream = 0x9e3779b97f4a7c15

// maxPriorRedraws bounds rejection sampling of a truncated prior.
const maxPriorRedraws = 1000

// Seed derives a replica seed from the run seed, the window and the member
// index with a splitmix64 finaliser, so neighbouring members get unrelated
// streams.
func Seed(run uint64, window, member int) uint64 {
	z := run ^ uint64(window)<<32 ^ uint64(member)
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// DrawRates samples n bleed-out rates from Normal(mean, stddev) truncated to
// [0,1] by redrawing.
func DrawRates(n int, mean, stddev float64, src rand.Source) []float64 {
	prior := distuv.Normal{Mu: mean, Sigma: stddev, Src: src}
	out := make([]float64, n)
	for i := range out {
		r := prior.Rand()
		for tries := 0; (r < 0 || r > 1) && tries < maxPriorRedraws; tries++ {
			r = prior.Rand()
		}
		out[i] = min(1, max(0, r))
	}
	return out
}

// NewRand returns the random stream for a replica seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, pcgStream))
}

// Spinup builds a replica per rate, all agents retired, runs tick 0 (which
// closes hour 0 on every camera) and returns the resulting members, ready to
// forecast window 1.
func Spinup(w *world.World, p sim.Params, rates []float64, run uint64) ([]Member, error) {
	out := make([]Member, len(rates))
	for i, r := range rates {
		p.BleedoutRate = r
		s, err := sim.New(w, p, NewRand(Seed(run, 0, i)))
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		if err := s.Tick(); err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = Member{Vector: s.EncodeState(), StartTick: s.NextTick(), Seed: Seed(run, 1, i)}
	}
	return out, nil
}
