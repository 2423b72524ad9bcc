package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/footfall/internal/world"
)

func TestCameraCountsLingeringAgentOnce(t *testing.T) {
	t.Parallel()

	sight := world.Cell{Row: 2, Col: 5}
	away := world.Cell{Row: 2, Col: 6}

	for _, k := range []int{1, 2, 5, 30} {
		cam := NewCamera(world.Camera{Name: "camera_a", LineOfSight: sight})
		agents := []Agent{{ID: 0, Position: away}, {ID: 1, Position: away}}

		agents[0].Position = sight
		for i := 0; i < k; i++ {
			cam.Observe(agents)
			assert.Equal(t, 0, cam.Count(), "no departure while lingering")
			assert.Equal(t, 1, cam.Enclosed())
		}

		agents[0].Position = away
		cam.Observe(agents)
		cam.Observe(agents)
		assert.Equal(t, 1, cam.Count(), "lingered %d ticks", k)
		assert.Equal(t, 0, cam.Enclosed())
	}
}

func TestCameraCloseHour(t *testing.T) {
	t.Parallel()

	sight := world.Cell{Row: 2, Col: 5}
	cam := NewCamera(world.Camera{Name: "camera_b", LineOfSight: sight})
	agents := []Agent{{ID: 0, Position: sight}, {ID: 1, Position: sight}}

	cam.Observe(agents)
	agents[0].Position = world.Cell{Row: 2, Col: 4}
	agents[1].Position = world.Cell{Row: 2, Col: 6}
	cam.Observe(agents)
	cam.CloseHour()

	assert.Equal(t, 2, cam.Last())
	assert.Equal(t, 0, cam.Count())

	cam.CloseHour()
	assert.Equal(t, 0, cam.Last())
	assert.Equal(t, []int{2, 0}, cam.History())
}

func TestCameraReEntryCountsAgain(t *testing.T) {
	t.Parallel()

	sight := world.Cell{Row: 2, Col: 5}
	cam := NewCamera(world.Camera{Name: "camera_a", LineOfSight: sight})
	agents := []Agent{{ID: 0, Position: sight}}

	for i := 0; i < 3; i++ {
		agents[0].Position = sight
		cam.Observe(agents)
		agents[0].Position = world.Cell{Row: 3, Col: 0}
		cam.Observe(agents)
	}
	assert.Equal(t, 3, cam.Count())
}

func TestCameraMatchesAgentsByID(t *testing.T) {
	t.Parallel()

	sight := world.Cell{Row: 2, Col: 5}
	away := world.Cell{Row: 2, Col: 6}
	cam := NewCamera(world.Camera{Name: "camera_a", LineOfSight: sight})

	agents := []Agent{{ID: 40, Position: sight}, {ID: 7, Position: away}}
	assert.NotPanics(t, func() { cam.Observe(agents) })
	assert.Equal(t, 1, cam.Enclosed())

	// Reordering the slice must not count the agent still in view.
	agents = []Agent{{ID: 7, Position: away}, {ID: 40, Position: sight}}
	cam.Observe(agents)
	assert.Equal(t, 0, cam.Count())

	agents[1].Position = away
	cam.Observe(agents)
	assert.Equal(t, 1, cam.Count())
	assert.Equal(t, 0, cam.Enclosed())

	// An enclosed agent missing from the slice has left the view.
	cam.Observe([]Agent{{ID: 3, Position: sight}})
	cam.Observe(nil)
	assert.Equal(t, 2, cam.Count())
}
