package tabular

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Weighting of neighbour votes
const (
	WeightUniform  = "uniform"
	WeightDistance = "distance"
)

// Distance metrics
const (
	MetricEuclidean = "euclidean"
	MetricManhattan = "manhattan"
)

// ErrNotFitted is returned by Predict before Fit.
var ErrNotFitted = errors.New("classifier is not fitted")

// KNNClassifier labels a row by a vote of its K nearest training rows.
// Fields are exported so fitted models can be gob-encoded.
type KNNClassifier struct {
	K         int
	Weighting string
	Metric    string

	X [][]float64
	Y []string
}

// NewKNN creates an unfitted classifier from p
func NewKNN(p Params) *KNNClassifier {
	return &KNNClassifier{K: p.K, Weighting: p.Weighting, Metric: p.Metric}
}

// Params returns the hyperparameters
func (c *KNNClassifier) Params() Params {
	return Params{K: c.K, Weighting: c.Weighting, Metric: c.Metric}
}

func (c *KNNClassifier) validate(rows int) error {
	if c.K < 1 || c.K > rows {
		return fmt.Errorf("k=%d must be in [1, %d]", c.K, rows)
	}
	switch c.Weighting {
	case "", WeightUniform, WeightDistance:
	default:
		return fmt.Errorf("unknown weighting %q", c.Weighting)
	}
	switch c.Metric {
	case "", MetricEuclidean, MetricManhattan:
	default:
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	return nil
}

// Fit memorises the training data
func (c *KNNClassifier) Fit(X [][]float64, y []string) error {
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return fmt.Errorf("%d rows but %d labels", len(X), len(y))
	}
	if err := c.validate(len(X)); err != nil {
		return err
	}
	c.X = X
	c.Y = y
	return nil
}

type neighbour struct {
	dist  float64
	label string
}

// Predict labels every row of X
func (c *KNNClassifier) Predict(X [][]float64) ([]string, error) {
	if len(c.X) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]string, len(X))
	for i, row := range X {
		if len(row) != len(c.X[0]) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(c.X[0]))
		}
		out[i] = c.predictOne(row)
	}
	return out, nil
}

func (c *KNNClassifier) predictOne(row []float64) string {
	nb := make([]neighbour, len(c.X))
	for i, x := range c.X {
		nb[i] = neighbour{dist: c.distance(row, x), label: c.Y[i]}
	}
	sort.SliceStable(nb, func(i, j int) bool { return nb[i].dist < nb[j].dist })
	nb = nb[:c.K]

	exact := c.Weighting == WeightDistance && nb[0].dist == 0
	votes := make(map[string]float64)
	for _, n := range nb {
		switch {
		case exact:
			if n.dist == 0 {
				votes[n.label]++
			}
		case c.Weighting == WeightDistance:
			votes[n.label] += 1 / n.dist
		default:
			votes[n.label]++
		}
	}

	best := math.Inf(-1)
	for _, v := range votes {
		best = max(best, v)
	}
	// ties go to the label of the nearest neighbour among the tied labels
	for _, n := range nb {
		if v, ok := votes[n.label]; ok && v == best {
			return n.label
		}
	}
	return nb[0].label
}

func (c *KNNClassifier) distance(a, b []float64) float64 {
	if c.Metric == MetricManhattan {
		return floats.Distance(a, b, 1)
	}
	return floats.Distance(a, b, 2)
}

// Score returns the accuracy of Predict(X) against y
func (c *KNNClassifier) Score(X [][]float64, y []string) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return Accuracy(pred, y)
}

// Accuracy is the fraction of equal labels
func Accuracy(pred, truth []string) (float64, error) {
	if len(pred) != len(truth) {
		return 0, fmt.Errorf("%d predictions but %d labels", len(pred), len(truth))
	}
	if len(truth) == 0 {
		return 0, ErrEmptyDataset
	}
	correct := 0
	for i := range pred {
		if pred[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// Labels returns the distinct training labels in sorted order
func (c *KNNClassifier) Labels() []string {
	labels := slices.Clone(c.Y)
	slices.Sort(labels)
	return slices.Compact(labels)
}
