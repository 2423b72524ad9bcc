package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/config"
)

func TestStateLayout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1203, StateLen(600))
	assert.Equal(t, 1200, RateIndex(600))
	assert.Equal(t, 1201, CameraIndex(600, 0))
	assert.Equal(t, 1202, CameraIndex(600, 1))
	assert.Equal(t, 1200, QuantityBleedoutRate.Index(600))
	assert.Equal(t, 1202, QuantityCameraB.Index(600))

	m, err := AgentsFor(1203)
	require.NoError(t, err)
	assert.Equal(t, 600, m)
	_, err = AgentsFor(1202)
	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	p := testParams(150, 0.55, map[int]int{0: 60, 1: 90})
	src := newTestSim(t, p, 21)
	for _, n := range []int{1, 17, 45, 60} {
		require.NoError(t, src.Run(n))

		v := src.EncodeState()
		require.Len(t, v, StateLen(150))

		dst := newTestSim(t, testParams(150, 0.1, nil), 4)
		require.NoError(t, dst.DecodeState(v))

		if diff := cmp.Diff(src.Agents(), dst.Agents()); diff != "" {
			t.Fatalf("agents differ after round trip (-src +dst):\n%s", diff)
		}
		assert.Equal(t, src.BleedoutRate(), dst.BleedoutRate())
		assert.Equal(t, src.CameraCounts(), dst.CameraCounts())
		assert.Equal(t, v, dst.EncodeState())
	}
}

func TestDecodeRestoresEnclosedAgents(t *testing.T) {
	t.Parallel()

	p := testParams(10, 1, map[int]int{0: 10})
	p.Order = Sequential{}
	src := newTestSim(t, p, 2)
	require.NoError(t, src.Run(4)) // outbound agents now stand on camera_a's cell

	dst := newTestSim(t, testParams(10, 1, nil), 2)
	require.NoError(t, dst.DecodeState(src.EncodeState()))
	assert.Equal(t, src.Cameras()[0].Enclosed(), dst.Cameras()[0].Enclosed())
	assert.Equal(t, 0, dst.Cameras()[0].Count())
}

func TestDecodeStateRejects(t *testing.T) {
	t.Parallel()

	src := newTestSim(t, testParams(20, 0.5, map[int]int{0: 20}), 8)
	require.NoError(t, src.Run(10))
	orig := src.EncodeState()
	graveIdx := func(s *Simulation) float64 {
		return float64(s.World().Grid().Index(s.World().Graveyard()))
	}

	tests := []struct {
		name   string
		mutate func(v []float64, s *Simulation) []float64
		want   error
	}{
		{"short", func(v []float64, _ *Simulation) []float64 { return v[:len(v)-1] }, ErrEncoding},
		{"long", func(v []float64, _ *Simulation) []float64 { return append(v, 0) }, ErrEncoding},
		{"fractional position", func(v []float64, _ *Simulation) []float64 { v[0] += 0.5; return v }, ErrEncoding},
		{"NaN counter", func(v []float64, _ *Simulation) []float64 { v[1] = math.NaN(); return v }, ErrEncoding},
		{"position off grid", func(v []float64, _ *Simulation) []float64 { v[0] = -1; return v }, ErrEncoding},
		{"position off route", func(v []float64, s *Simulation) []float64 { v[0], v[1] = graveIdx(s), 3; return v }, ErrEncoding},
		{"retired away from graveyard", func(v []float64, _ *Simulation) []float64 { v[0], v[1] = 85, RetiredCounter; return v }, ErrEncoding},
		{"negative count", func(v []float64, _ *Simulation) []float64 { v[CameraIndex(20, 0)] = -1; return v }, ErrEncoding},
		{"infinite rate", func(v []float64, _ *Simulation) []float64 { v[RateIndex(20)] = math.Inf(1); return v }, ErrEncoding},
		{"rate above one", func(v []float64, _ *Simulation) []float64 { v[RateIndex(20)] = 1.2; return v }, config.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dst := newTestSim(t, testParams(20, 0.3, nil), 1)
			before := dst.EncodeState()
			v := append([]float64(nil), orig...)
			err := dst.DecodeState(tt.mutate(v, dst))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, before, dst.EncodeState(), "failed decode must not modify the replica")
		})
	}
}

func TestProjectState(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, testParams(4, 0.5, nil), 1)
	w := s.World()
	g := w.Grid()
	idx := func(c int, outbound bool) float64 {
		if outbound {
			return float64(g.Index(w.Outbound()[c]))
		}
		return float64(g.Index(w.Returning()[c]))
	}
	grave := float64(g.Index(w.Graveyard()))
	last := len(w.Outbound()) - 1

	v := []float64{
		grave + 3, RetiredCounter - 0.4, // stays retired
		idx(7, true) + 0.3, 6.6, // snapped onto outbound counter 7
		idx(5, false) - 0.2, 4.7, // snapped onto returning counter 5
		idx(last, true) + 1, 250.0, // clamped to route end, nearer the route than the sentinel
		1.3, // rate clamped
		-2.2, 12.6,
	}
	got, err := ProjectState(w, v)
	require.NoError(t, err)

	want := []float64{
		grave, RetiredCounter,
		idx(7, true), 7,
		idx(5, false), 5,
		idx(last, true), float64(last),
		1,
		0, 13,
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 1.3, v[RateIndex(4)], "input must not be modified")
	require.NoError(t, s.DecodeState(got))

	// Already-consistent vectors are fixed points.
	again, err := ProjectState(w, got)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestProjectStateRetiresNearSentinel(t *testing.T) {
	t.Parallel()

	w := newTestSim(t, testParams(1, 0.5, nil), 1).World()
	grave := float64(w.Grid().Index(w.Graveyard()))
	got, err := ProjectState(w, []float64{100, 700, 0.5, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{grave, RetiredCounter, 0.5, 0, 0}, got)

	_, err = ProjectState(w, []float64{0, 0, math.NaN(), 0, 0})
	assert.True(t, errors.Is(err, ErrEncoding))
	_, err = ProjectState(w, []float64{0, 0, 0.5, 0})
	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestParseQuantities(t *testing.T) {
	t.Parallel()

	qs, err := ParseQuantities([]string{"camera_a", "bleedout_rate"})
	require.NoError(t, err)
	assert.Equal(t, []Quantity{QuantityCameraA, QuantityBleedoutRate}, qs)

	_, err = ParseQuantities([]string{"camera_c"})
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}
