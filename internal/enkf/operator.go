package enkf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Operator is the observation operator H: a k×D selection of state entries.
// It is applied by indexing rather than by a dense multiply.
type Operator struct {
	dim     int
	indices []int
}

// NewOperator returns an operator that observes the given distinct entries of
// a D-dimensional state.
func NewOperator(dim int, indices ...int) (*Operator, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("observation operator needs at least one index")
	}
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= dim {
			return nil, fmt.Errorf("observation index %d out of range [0,%d)", i, dim)
		}
		if seen[i] {
			return nil, fmt.Errorf("observation index %d selected twice", i)
		}
		seen[i] = true
	}
	return &Operator{dim: dim, indices: append([]int(nil), indices...)}, nil
}

// Dim returns D, the state dimension.
func (h *Operator) Dim() int { return h.dim }

// Rows returns k, the number of observed quantities.
func (h *Operator) Rows() int { return len(h.indices) }

// Indices returns the observed state indices.
func (h *Operator) Indices() []int { return append([]int(nil), h.indices...) }

// Apply returns H·x.
func (h *Operator) Apply(x []float64) []float64 {
	out := make([]float64, len(h.indices))
	for r, i := range h.indices {
		out[r] = x[i]
	}
	return out
}

// ApplyRows returns the N×k matrix of H applied to every member of ens.
func (h *Operator) ApplyRows(ens mat.Matrix) *mat.Dense {
	n, _ := ens.Dims()
	out := mat.NewDense(n, len(h.indices), nil)
	for m := 0; m < n; m++ {
		for r, i := range h.indices {
			out.Set(m, r, ens.At(m, i))
		}
	}
	return out
}

// PHt returns the D×k product P·Hᵀ, the observed columns of P.
func (h *Operator) PHt(p mat.Symmetric) *mat.Dense {
	d := p.SymmetricDim()
	out := mat.NewDense(d, len(h.indices), nil)
	for r := 0; r < d; r++ {
		for c, i := range h.indices {
			out.Set(r, c, p.At(r, i))
		}
	}
	return out
}

// HPHt returns the k×k product H·P·Hᵀ.
func (h *Operator) HPHt(p mat.Symmetric) *mat.SymDense {
	k := len(h.indices)
	out := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			out.SetSym(a, b, p.At(h.indices[a], h.indices[b]))
		}
	}
	return out
}

// Dense returns H as an explicit k×D matrix.
func (h *Operator) Dense() *mat.Dense {
	out := mat.NewDense(len(h.indices), h.dim, nil)
	for r, i := range h.indices {
		out.Set(r, i, 1)
	}
	return out
}
