package enkf

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDegenerateCovariance is returned when the innovation covariance is
// rank-deficient beyond tolerance or the correction is not finite. Callers
// keep the forecast unmodified for that window.
var ErrDegenerateCovariance = errors.New("degenerate innovation covariance")

// DefaultRankTolerance is the relative singular value cutoff used when a
// Filter leaves RankTolerance unset.
const DefaultRankTolerance = 1e-12

// VirtualObservations perturbs the true observation once per member with
// independent zero-mean Gaussian noise of the given variance. The result is
// N×k.
func VirtualObservations(truth []float64, members int, variance float64, src rand.Source) *mat.Dense {
	noise := distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: src}
	v := mat.NewDense(members, len(truth), nil)
	for i := 0; i < members; i++ {
		for j, y := range truth {
			v.Set(i, j, y+noise.Rand())
		}
	}
	return v
}

// Gain solves K·(H·P·Hᵀ + R) = P·Hᵀ for the D×k Kalman gain, with R = r·I.
// The transposed system (H·P·Hᵀ + R)ᵀ·Kᵀ = H·Pᵀ is solved in the least
// squares sense through an SVD so a near-singular innovation covariance does
// not blow up.
func Gain(p mat.Symmetric, h *Operator, r, tol float64) (*mat.Dense, error) {
	if tol <= 0 {
		tol = DefaultRankTolerance
	}
	k := h.Rows()

	// Innovation covariance S = H * P * H^T + R
	s := h.HPHt(p)
	for i := 0; i < k; i++ {
		s.SetSym(i, i, s.At(i, i)+r)
	}
	if !isFinite(s) {
		return nil, fmt.Errorf("%w: innovation covariance is not finite", ErrDegenerateCovariance)
	}

	var svd mat.SVD
	if ok := svd.Factorize(s.T(), mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: SVD did not converge", ErrDegenerateCovariance)
	}
	rank := svd.Rank(tol)
	if rank < k {
		return nil, fmt.Errorf("%w: rank %d < %d (singular values %v)", ErrDegenerateCovariance, rank, k, svd.Values(nil))
	}

	// Right-hand side H * P^T, k×D.
	pht := h.PHt(p)
	var kt mat.Dense
	svd.SolveTo(&kt, pht.T(), rank)
	if !isFinite(&kt) {
		return nil, fmt.Errorf("%w: gain is not finite", ErrDegenerateCovariance)
	}

	gain := mat.DenseCopyOf(kt.T())
	return gain, nil
}

// Analyse applies a_i = f_i + K·(v_i − H·f_i) to every member and returns
// the N×D analysis ensemble.
func Analyse(forecast mat.Matrix, gain mat.Matrix, h *Operator, virtual mat.Matrix) *mat.Dense {
	// Innovations, N×k.
	var innov mat.Dense
	innov.Sub(virtual, h.ApplyRows(forecast))

	var update mat.Dense
	update.Mul(&innov, gain.T())

	var analysis mat.Dense
	analysis.Add(forecast, &update)
	return &analysis
}

// Result holds one assimilation step. On ErrDegenerateCovariance only the
// forecast statistics and the virtual observations are set.
type Result struct {
	ForecastMean       []float64
	ForecastCovariance *mat.SymDense
	Virtual            *mat.Dense // N×k perturbed observations
	Gain               *mat.Dense // D×k
	Analysis           *mat.Dense // N×D
	AnalysisMean       []float64
	AnalysisCovariance *mat.SymDense
}

// Filter is a stochastic ensemble Kalman filter for one observation layout.
type Filter struct {
	H             *Operator
	NoiseVariance float64 // R = NoiseVariance·I
	RankTolerance float64
	Src           rand.Source // observation perturbations
}

// Assimilate corrects a forecast ensemble (N×D) towards an observation of the
// H-selected quantities.
func (f *Filter) Assimilate(forecast *mat.Dense, truth []float64) (*Result, error) {
	n, d := forecast.Dims()
	if d != f.H.Dim() {
		return nil, fmt.Errorf("forecast has dimension %d, operator expects %d", d, f.H.Dim())
	}
	if len(truth) != f.H.Rows() {
		return nil, fmt.Errorf("observation has %d values, operator selects %d", len(truth), f.H.Rows())
	}

	res := &Result{
		ForecastMean:       Mean(forecast),
		ForecastCovariance: Covariance(forecast),
	}
	res.Virtual = VirtualObservations(truth, n, f.NoiseVariance, f.Src)

	gain, err := Gain(res.ForecastCovariance, f.H, f.NoiseVariance, f.RankTolerance)
	if err != nil {
		return res, err
	}

	analysis := Analyse(forecast, gain, f.H, res.Virtual)
	if !isFinite(analysis) {
		return res, fmt.Errorf("%w: analysis is not finite", ErrDegenerateCovariance)
	}

	res.Gain = gain
	res.Analysis = analysis
	res.AnalysisMean = Mean(analysis)
	res.AnalysisCovariance = Covariance(analysis)
	return res, nil
}
