package ensemble

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/footfall/internal/sim"
	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/world"
)

func smallParams() sim.Params {
	return sim.Params{
		Agents:       80,
		TicksPerHour: 60,
		WalkingSpeed: 1,
		BleedoutRate: 0.5,
		Schedule:     sim.NormalSchedule(800, 12, 6),
		Order:        sim.Shuffled{},
	}
}

func spinup(t *testing.T, n int) (*world.World, []Member) {
	t.Helper()
	w := world.DefaultStreet()
	rates := DrawRates(n, 0.5, 0.1, rand.New(rand.NewPCG(1, 2)))
	members, err := Spinup(w, smallParams(), rates, 77)
	require.NoError(t, err)
	return w, members
}

func TestSpinup(t *testing.T) {
	t.Parallel()

	_, members := spinup(t, 5)
	require.Len(t, members, 5)
	seeds := map[uint64]bool{}
	for _, m := range members {
		assert.Equal(t, 1, m.StartTick)
		assert.Len(t, m.Vector, sim.StateLen(80))
		r := m.Vector[sim.RateIndex(80)]
		assert.True(t, r >= 0 && r <= 1)
		seeds[m.Seed] = true
	}
	assert.Len(t, seeds, 5)
}

func TestForecastMemberIsPure(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 1)
	m := members[0]
	orig := append([]float64(nil), m.Vector...)

	a, err := ForecastMember(context.Background(), w, smallParams(), m, 120)
	require.NoError(t, err)
	b, err := ForecastMember(context.Background(), w, smallParams(), m, 120)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated forecast differs (-a +b):\n%s", diff)
	}
	assert.Equal(t, orig, m.Vector, "input member must not be modified")
	assert.Equal(t, 121, a.EndTick)
}

func TestSequentialAndParallelAgree(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 8)
	run := func(mapper Mapper) []Forecast {
		mgr := &Manager{World: w, Params: smallParams(), Mapper: mapper}
		out, err := mgr.Forecast(context.Background(), members, 60*13)
		require.NoError(t, err)
		return out
	}

	seq := run(SequentialMapper{})
	par := run(ParallelMapper{Workers: 4})
	unlimited := run(NewMapper(true, 0))

	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel forecast differs from sequential (-seq +par):\n%s", diff)
	}
	assert.Equal(t, seq, unlimited)

	// Members are independent replicas: different seeds diverge.
	assert.NotEqual(t, seq[0].Vector, seq[1].Vector)
}

func TestForecastProjectsAnalysisVectors(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 1)
	m := members[0]
	m.Vector = append([]float64(nil), m.Vector...)
	for i := range m.Vector {
		m.Vector[i] += 0.3
	}
	m.Vector[sim.RateIndex(80)] = 1.4

	f, err := ForecastMember(context.Background(), w, smallParams(), m, 60)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Vector[sim.RateIndex(80)])
}

func TestForecastCancelled(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, mapper := range []Mapper{SequentialMapper{}, ParallelMapper{Workers: 2}} {
		mgr := &Manager{World: w, Params: smallParams(), Mapper: mapper}
		out, err := mgr.Forecast(ctx, members, 60)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Nil(t, out, "partial results must be discarded")
	}
}

// advancingMapper burns the window budget before delegating.
type advancingMapper struct {
	clock *timeutil.MockClock
	by    time.Duration
	inner Mapper
}

func (a advancingMapper) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	a.clock.Advance(a.by)
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
	return a.inner.Map(ctx, n, fn)
}

func TestForecastBudgetExceeded(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 3)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mgr := &Manager{
		World:  w,
		Params: smallParams(),
		Mapper: advancingMapper{clock: clock, by: 2 * time.Second, inner: SequentialMapper{}},
		Clock:  clock,
		Budget: time.Second,
	}
	out, err := mgr.Forecast(context.Background(), members, 60)
	require.Error(t, err)
	assert.True(t, errors.Is(err, timeutil.ErrBudgetExceeded), "got %v", err)
	assert.Nil(t, out)
}

func TestForecastMemberFailureAborts(t *testing.T) {
	t.Parallel()

	w, members := spinup(t, 3)
	members[1].Vector = members[1].Vector[:10]

	for _, mapper := range []Mapper{SequentialMapper{}, ParallelMapper{Workers: 3}} {
		mgr := &Manager{World: w, Params: smallParams(), Mapper: mapper}
		out, err := mgr.Forecast(context.Background(), members, 60)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sim.ErrEncoding), "got %v", err)
		assert.Nil(t, out)
	}
}

func TestMatrixAndReseed(t *testing.T) {
	t.Parallel()

	fs := []Forecast{{Vector: []float64{1, 2, 3}}, {Vector: []float64{4, 5, 6}}}
	ens := Matrix(fs)
	r, c := ens.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)

	members := Reseed(ens, 61, func(i int) uint64 { return Seed(9, 2, i) })
	require.Len(t, members, 2)
	assert.Equal(t, []float64{4, 5, 6}, members[1].Vector)
	assert.Equal(t, 61, members[0].StartTick)
	assert.Equal(t, Seed(9, 2, 0), members[0].Seed)
}

func TestKeepAgents(t *testing.T) {
	t.Parallel()

	// Two agents: [pos0, counter0, pos1, counter1, rate, camera_a, camera_b].
	forecast := mat.NewDense(2, 7, []float64{
		85, 3, 0, 1000, 0.40, 10, 12,
		86, 4, 87, 5, 0.60, 14, 9,
	})
	analysis := mat.NewDense(2, 7, []float64{
		91.7, -240.2, 3.1, 512.9, 0.45, 11.6, 13.2,
		70.2, 38.9, 90.4, 27.5, 1.08, 15.1, 8.4,
	})

	got := KeepAgents(forecast, analysis, 2)
	assert.Equal(t, []float64{85, 3, 0, 1000, 0.45, 11.6, 13.2}, mat.Row(nil, 0, got))
	assert.Equal(t, []float64{86, 4, 87, 5, 1, 15.1, 8.4}, mat.Row(nil, 1, got), "rate clamped to 1")
	assert.Equal(t, 0.40, forecast.At(0, 4), "forecast unchanged")
}

func TestSeed(t *testing.T) {
	t.Parallel()

	seen := map[uint64]bool{}
	for w := 0; w < 20; w++ {
		for m := 0; m < 30; m++ {
			s := Seed(12345, w, m)
			assert.False(t, seen[s], "collision at window %d member %d", w, m)
			seen[s] = true
		}
	}
	assert.Equal(t, Seed(1, 2, 3), Seed(1, 2, 3))
	assert.NotEqual(t, Seed(1, 2, 3), Seed(2, 2, 3))
}

func TestDrawRates(t *testing.T) {
	t.Parallel()

	wide := DrawRates(500, 0.5, 1, rand.New(rand.NewPCG(3, 4)))
	for _, r := range wide {
		assert.True(t, r >= 0 && r <= 1, "rate %v outside [0,1]", r)
	}

	fixed := DrawRates(3, 0.25, 0, rand.New(rand.NewPCG(3, 4)))
	assert.Equal(t, []float64{0.25, 0.25, 0.25}, fixed)
}
