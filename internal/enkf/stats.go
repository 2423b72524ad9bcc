// Package enkf implements the correction half of a stochastic ensemble Kalman
// filter over a fixed-length state vector. Ensembles are N×D matrices with
// one member per row.
package enkf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the ensemble mean state.
func Mean(ens mat.Matrix) []float64 {
	n, d := ens.Dims()
	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, ens)
		mean[j] = stat.Mean(col, nil)
	}
	return mean
}

// Anomalies returns each member minus the ensemble mean.
func Anomalies(ens mat.Matrix, mean []float64) *mat.Dense {
	n, d := ens.Dims()
	a := mat.NewDense(n, d, nil)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, ens)
		floats.Sub(row, mean)
		a.SetRow(i, row)
	}
	return a
}

// Covariance returns the D×D sample covariance of the ensemble, built from
// the anomaly outer products scaled by 1/(N-1). It is symmetric by
// construction. Ensembles of fewer than two members have a zero covariance.
func Covariance(ens mat.Matrix) *mat.SymDense {
	n, d := ens.Dims()
	if n < 2 {
		return mat.NewSymDense(d, nil)
	}
	a := Anomalies(ens, Mean(ens))
	var cov mat.SymDense
	cov.SymOuterK(1/float64(n-1), a.T())
	return &cov
}

// isFinite reports whether every element of m is finite.
func isFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
