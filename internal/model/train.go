package model

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/auracast/auracast/internal/observation"
)

// rankTolerance is the relative singular-value cutoff used to decide the
// effective rank of the standardised feature matrix.
const rankTolerance = 1e-10

// Dataset is the assembled training data.
type Dataset struct {
	X       [][4]float64
	Y       []float64
	Dropped int
}

// Assemble selects the four predictors and the target from rows, dropping any
// row with a missing value. It fails with observation.ErrNoTrainableData when
// nothing remains.
func Assemble(rows []observation.Aligned) (Dataset, error) {
	ds := Dataset{
		X: make([][4]float64, 0, len(rows)),
		Y: make([]float64, 0, len(rows)),
	}
	for _, r := range rows {
		x, ok := r.Features()
		if !ok || r.NearestGroundValue == nil || !finite(x[:]...) || !finite(*r.NearestGroundValue) {
			ds.Dropped++
			continue
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, *r.NearestGroundValue)
	}
	if len(ds.X) == 0 {
		return ds, fmt.Errorf("%w: all %d rows have a missing feature or target", observation.ErrNoTrainableData, len(rows))
	}
	return ds, nil
}

// Fit solves ordinary least squares with an intercept. Columns are centred
// and scaled before a minimum-norm SVD solve, so constant or collinear
// predictors get zero weight instead of failing. The result depends only on
// ds, apart from TrainedAt.
func Fit(ds Dataset, trainedAt time.Time) (*Model, error) {
	n := len(ds.X)
	if n == 0 || n != len(ds.Y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d targets", observation.ErrNoTrainableData, n, len(ds.Y))
	}

	var mean [4]float64
	var yMean float64
	for i, x := range ds.X {
		for j := range x {
			mean[j] += x[j]
		}
		yMean += ds.Y[i]
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	yMean /= float64(n)

	var scale [4]float64
	for _, x := range ds.X {
		for j := range x {
			d := x[j] - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j])
	}

	z := mat.NewDense(n, 4, nil)
	yc := mat.NewVecDense(n, nil)
	for i, x := range ds.X {
		for j := range x {
			if scale[j] > 0 {
				z.Set(i, j, (x[j]-mean[j])/scale[j])
			}
		}
		yc.SetVec(i, ds.Y[i]-yMean)
	}

	gamma := mat.NewVecDense(4, nil)
	var svd mat.SVD
	if !svd.Factorize(z, mat.SVDThin) {
		return nil, fmt.Errorf("factorize feature matrix: SVD did not converge")
	}
	if rank := svd.Rank(rankTolerance); rank > 0 {
		svd.SolveVecTo(gamma, yc, rank)
	}

	m := &Model{
		Features:     FeatureNames,
		TrainedAt:    trainedAt.UTC(),
		TrainingRows: n,
		Intercept:    yMean,
	}
	for j := range m.Coefficients {
		if scale[j] > 0 {
			m.Coefficients[j] = gamma.AtVec(j) / scale[j]
		}
		m.Intercept -= m.Coefficients[j] * mean[j]
	}
	m.TrainingMSE = MSE(m, ds)
	return m, nil
}

// MSE is the mean squared error of the unclamped predictions over ds.
func MSE(m *Model, ds Dataset) float64 {
	if len(ds.X) == 0 {
		return 0
	}
	var sum float64
	for i, x := range ds.X {
		d := ds.Y[i] - m.Raw(x)
		sum += d * d
	}
	return sum / float64(len(ds.X))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
