package tabular

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each feature on zero mean and unit variance
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-feature mean and population standard deviation from X.
// Constant features keep a scale of 1.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return fmt.Errorf("row has %d features, want %d", len(row), dim)
		}
	}

	s.Mean = make([]float64, dim)
	s.Std = make([]float64, dim)
	col := make([]float64, len(X))
	for j := range dim {
		for i, row := range X {
			col[i] = row[j]
		}
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(col, nil)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return nil
}

// Transform returns a scaled copy of X. Rows of another width are copied
// unscaled.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := slices.Clone(row)
		if len(scaled) == len(s.Mean) {
			floats.Sub(scaled, s.Mean)
			floats.Div(scaled, s.Std)
		}
		out[i] = scaled
	}
	return out
}
