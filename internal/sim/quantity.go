package sim

import (
	"fmt"

	"github.com/banshee-data/footfall/internal/config"
)

// Quantity names an observable entry of the state vector.
type Quantity string

const (
	QuantityCameraA      Quantity = config.QuantityCameraA
	QuantityCameraB      Quantity = config.QuantityCameraB
	QuantityBleedoutRate Quantity = config.QuantityBleedoutRate
)

// ParseQuantity validates a configured quantity name.
func ParseQuantity(name string) (Quantity, error) {
	switch q := Quantity(name); q {
	case QuantityCameraA, QuantityCameraB, QuantityBleedoutRate:
		return q, nil
	default:
		return "", fmt.Errorf("%w: unknown quantity %q", config.ErrInvalidConfig, name)
	}
}

// ParseQuantities validates a list of configured quantity names.
func ParseQuantities(names []string) ([]Quantity, error) {
	out := make([]Quantity, 0, len(names))
	for _, n := range names {
		q, err := ParseQuantity(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Index returns the quantity's position in a state vector for a population of
// agents.
func (q Quantity) Index(agents int) int {
	switch q {
	case QuantityCameraA:
		return CameraIndex(agents, 0)
	case QuantityCameraB:
		return CameraIndex(agents, 1)
	case QuantityBleedoutRate:
		return RateIndex(agents)
	default:
		panic(fmt.Sprintf("sim: unknown quantity %q", string(q)))
	}
}

// Read returns the quantity's current value in the replica.
func (s *Simulation) Read(q Quantity) float64 {
	switch q {
	case QuantityCameraA:
		return float64(s.cameras[0].Last())
	case QuantityCameraB:
		return float64(s.cameras[1].Last())
	case QuantityBleedoutRate:
		return s.rate
	default:
		panic(fmt.Sprintf("sim: unknown quantity %q", string(q)))
	}
}
