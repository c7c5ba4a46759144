package tabular

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusters builds two well separated classes with n rows each.
func clusters(n int) string {
	var sb strings.Builder
	sb.WriteString("x,y,species\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%.2f,%.2f,setosa\n", 1+float64(i%5)*0.1, 2+float64(i%3)*0.1)
		fmt.Fprintf(&sb, "%.2f,%.2f,virginica\n", 8+float64(i%5)*0.1, 9+float64(i%3)*0.1)
	}
	return sb.String()
}

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("label,a,b\nx,1,2\ny, 3 ,4\n"), "label")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ds.FeatureNames)
	assert.Equal(t, "label", ds.LabelName)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, ds.Features)
	assert.Equal(t, []string{"x", "y"}, ds.Labels)

	ds, err = ReadCSV(strings.NewReader("a,b,target\n1,2,t\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "target", ds.LabelName)
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]struct {
		data  string
		label string
	}{
		"empty":         {"", ""},
		"header only":   {"a,b\n", ""},
		"missing label": {"a,b\n1,x\n", "c"},
		"not a number":  {"a,b\nfoo,x\n", ""},
		"ragged row":    {"a,b,c\n1,2\n", ""},
		"single column": {"a\n1\n", ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data), tt.label)
			assert.Error(t, err)
		})
	}

	_, err := ReadCSV(strings.NewReader("a,b\n"), "")
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestLoadCSVOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/iris.csv" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, clusters(3))
	}))
	defer srv.Close()

	ds, err := LoadCSV(context.Background(), srv.URL+"/iris.csv", "species")
	require.NoError(t, err)
	assert.Equal(t, 6, ds.Len())

	_, err = LoadCSV(context.Background(), srv.URL+"/missing.csv", "")
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(clusters(10)), "")
	require.NoError(t, err)

	train, test, err := TrainTestSplit(ds, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, 15, train.Len())
	assert.Equal(t, 5, test.Len())

	train2, test2, err := TrainTestSplit(ds, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, train.Labels, train2.Labels)
	assert.Equal(t, test.Features, test2.Features)

	for _, frac := range []float64{0, 1, -0.5, 0.01} {
		_, _, err := TrainTestSplit(ds, frac, 1)
		assert.ErrorIs(t, err, ErrInvalidSplit, "fraction %v", frac)
	}
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{}
	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}))
	assert.InDeltaSlice(t, []float64{2, 5}, s.Mean, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1}, s.Std, 1e-12)
	scaled := s.Transform([][]float64{{1, 5}, {3, 5}})
	assert.InDeltaSlice(t, []float64{-1, 0}, scaled[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, scaled[1], 1e-12)

	// population deviation: {2, 4, 4, 4, 5, 5, 7, 9} has std 2
	require.NoError(t, s.Fit([][]float64{{2}, {4}, {4}, {4}, {5}, {5}, {7}, {9}}))
	assert.InDelta(t, 5.0, s.Mean[0], 1e-12)
	assert.InDelta(t, 2.0, s.Std[0], 1e-12)

	assert.Error(t, s.Fit([][]float64{{1, 2}, {3}}))

	assert.ErrorIs(t, s.Fit(nil), ErrEmptyDataset)
}

func TestKNNClassifier(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {10}, {11}}
	y := []string{"a", "a", "b", "c", "c"}

	clf := NewKNN(Params{K: 3})
	require.NoError(t, clf.Fit(X, y))

	pred, err := clf.Predict([][]float64{{0.4}, {10.4}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, pred)

	score, err := clf.Score([][]float64{{0.4}, {10.4}}, []string{"a", "b"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, clf.Labels())
}

func TestKNNDistanceMetrics(t *testing.T) {
	a, b := []float64{0, 0}, []float64{3, 4}
	assert.InDelta(t, 5.0, NewKNN(Params{K: 1, Metric: MetricEuclidean}).distance(a, b), 1e-12)
	assert.InDelta(t, 7.0, NewKNN(Params{K: 1, Metric: MetricManhattan}).distance(a, b), 1e-12)
}

func TestKNNTieGoesToNearest(t *testing.T) {
	clf := NewKNN(Params{K: 2, Metric: MetricManhattan})
	require.NoError(t, clf.Fit([][]float64{{0}, {3}}, []string{"far", "near"}))

	pred, err := clf.Predict([][]float64{{2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, pred)
}

func TestKNNDistanceWeighting(t *testing.T) {
	X := [][]float64{{0}, {5}, {5.5}}
	y := []string{"a", "b", "b"}

	uniform := NewKNN(Params{K: 3, Weighting: WeightUniform})
	require.NoError(t, uniform.Fit(X, y))
	weighted := NewKNN(Params{K: 3, Weighting: WeightDistance})
	require.NoError(t, weighted.Fit(X, y))

	p, err := uniform.Predict([][]float64{{0.5}})
	require.NoError(t, err)
	assert.Equal(t, "b", p[0])

	p, err = weighted.Predict([][]float64{{0.5}, {5}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p)
}

func TestKNNValidation(t *testing.T) {
	X := [][]float64{{0}, {1}}
	y := []string{"a", "b"}

	assert.Error(t, NewKNN(Params{K: 0}).Fit(X, y))
	assert.Error(t, NewKNN(Params{K: 3}).Fit(X, y))
	assert.Error(t, NewKNN(Params{K: 1, Metric: "cosine"}).Fit(X, y))
	assert.Error(t, NewKNN(Params{K: 1}).Fit(X, y[:1]))

	_, err := NewKNN(Params{K: 1}).Predict(X)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid([]string{"k=1,3", "weights=uniform,distance", "metric=manhattan"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, g.K)

	combos := g.Combinations()
	require.Len(t, combos, 4)
	assert.Equal(t, Params{K: 1, Weighting: WeightUniform, Metric: MetricManhattan}, combos[0])
	assert.Equal(t, Params{K: 3, Weighting: WeightDistance, Metric: MetricManhattan}, combos[3])

	_, err = ParseGrid([]string{"k=x"})
	assert.Error(t, err)
	_, err = ParseGrid([]string{"depth=3"})
	assert.Error(t, err)
}

func TestGridSearch(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(clusters(10)), "species")
	require.NoError(t, err)

	grid := Grid{K: []int{1, 3}, Weighting: []string{WeightUniform, WeightDistance}}
	res, err := GridSearch(context.Background(), grid, ds, 5)
	require.NoError(t, err)

	require.Len(t, res.Results, 4)
	for i, r := range res.Results {
		assert.Equal(t, grid.Combinations()[i], r.Params)
		assert.Len(t, r.FoldScores, 5)
	}
	// every combination separates the clusters, so the first one wins
	assert.Equal(t, 1.0, res.BestScore)
	assert.Equal(t, Params{K: 1, Weighting: WeightUniform, Metric: MetricEuclidean}, res.Best)
	require.NotNil(t, res.Model)

	_, err = GridSearch(context.Background(), grid, ds, 1)
	assert.ErrorIs(t, err, ErrInvalidSplit)

	_, err = GridSearch(context.Background(), Grid{K: []int{100}}, ds, 2)
	assert.Error(t, err)
}

func TestSaveLoadModel(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(clusters(6)), "")
	require.NoError(t, err)
	train, test, err := TrainTestSplit(ds, 0.5, 7)
	require.NoError(t, err)

	m, err := Train(train, Params{K: 3, Weighting: WeightDistance, Metric: MetricEuclidean})
	require.NoError(t, err)
	before, err := m.Score(test)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "knn.zst")
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Classifier.Params(), loaded.Classifier.Params())
	assert.Equal(t, m.FeatureNames, loaded.FeatureNames)

	after, err := loaded.Score(test)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	wrong := &Dataset{FeatureNames: []string{"y", "x"}, Features: [][]float64{{1, 2}}, Labels: []string{"a"}}
	_, err = loaded.Score(wrong)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.zst"))
	assert.Error(t, err)
}
