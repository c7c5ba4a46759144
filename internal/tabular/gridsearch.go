package tabular

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Params are kNN hyperparameters
type Params struct {
	K         int
	Weighting string
	Metric    string
}

func (p Params) String() string {
	return fmt.Sprintf("k=%d weights=%s metric=%s", p.K, p.Weighting, p.Metric)
}

// Grid lists the values to try for each hyperparameter
type Grid struct {
	K         []int
	Weighting []string
	Metric    []string
}

// DefaultGrid is used when no values are given
func DefaultGrid() Grid {
	return Grid{
		K:         []int{1, 3, 5, 7},
		Weighting: []string{WeightUniform, WeightDistance},
		Metric:    []string{MetricEuclidean},
	}
}

// Combinations enumerates the grid with K varying slowest
func (g Grid) Combinations() []Params {
	ks, ws, ms := g.K, g.Weighting, g.Metric
	if len(ks) == 0 {
		ks = []int{5}
	}
	if len(ws) == 0 {
		ws = []string{WeightUniform}
	}
	if len(ms) == 0 {
		ms = []string{MetricEuclidean}
	}

	out := make([]Params, 0, len(ks)*len(ws)*len(ms))
	for _, k := range ks {
		for _, w := range ws {
			for _, m := range ms {
				out = append(out, Params{K: k, Weighting: w, Metric: m})
			}
		}
	}
	return out
}

// ParseGrid reads "name=v1,v2" specs; names are k, weights and metric.
func ParseGrid(specs []string) (Grid, error) {
	var g Grid
	for _, spec := range specs {
		name, values, ok := strings.Cut(spec, "=")
		if !ok || values == "" {
			return g, fmt.Errorf("grid entry %q must look like name=v1,v2", spec)
		}
		for _, v := range strings.Split(values, ",") {
			v = strings.TrimSpace(v)
			switch strings.TrimSpace(name) {
			case "k", "n_neighbors":
				k, err := strconv.Atoi(v)
				if err != nil {
					return g, fmt.Errorf("grid k value %q: %w", v, err)
				}
				g.K = append(g.K, k)
			case "weights", "weighting":
				g.Weighting = append(g.Weighting, v)
			case "metric":
				g.Metric = append(g.Metric, v)
			default:
				return g, fmt.Errorf("unknown grid parameter %q", name)
			}
		}
	}
	return g, nil
}

// CVResult is the cross-validated accuracy of one parameter set
type CVResult struct {
	Params     Params
	FoldScores []float64
	MeanScore  float64
}

// GridResult holds every evaluated combination and the refit winner
type GridResult struct {
	Results   []CVResult
	Best      Params
	BestScore float64
	Model     *Model
}

// GridSearch scores every combination in grid with k-fold cross-validation
// on ds and refits the best one on all of ds. Ties go to the earlier
// combination.
func GridSearch(ctx context.Context, grid Grid, ds *Dataset, folds int) (*GridResult, error) {
	n := ds.Len()
	if n == 0 {
		return nil, ErrEmptyDataset
	}
	if folds < 2 || folds > n {
		return nil, fmt.Errorf("%w: %d folds for %d rows", ErrInvalidSplit, folds, n)
	}

	combos := grid.Combinations()
	splits := foldSplits(n, folds)
	results := make([]CVResult, len(combos))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, p := range combos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := crossValidate(ds, p, splits)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for i, r := range results {
		if r.MeanScore > results[best].MeanScore {
			best = i
		}
	}

	model, err := Train(ds, results[best].Params)
	if err != nil {
		return nil, fmt.Errorf("failed to refit best model: %w", err)
	}

	return &GridResult{
		Results:   results,
		Best:      results[best].Params,
		BestScore: results[best].MeanScore,
		Model:     model,
	}, nil
}

type fold struct {
	train, test []int
}

// foldSplits assigns row i to fold i mod k.
func foldSplits(n, k int) []fold {
	out := make([]fold, k)
	for i := 0; i < n; i++ {
		f := i % k
		for j := range out {
			if j == f {
				out[j].test = append(out[j].test, i)
			} else {
				out[j].train = append(out[j].train, i)
			}
		}
	}
	return out
}

func crossValidate(ds *Dataset, p Params, splits []fold) (CVResult, error) {
	res := CVResult{Params: p, FoldScores: make([]float64, 0, len(splits))}
	var sum float64
	for _, f := range splits {
		m, err := Train(ds.subset(f.train), p)
		if err != nil {
			return res, err
		}
		score, err := m.Score(ds.subset(f.test))
		if err != nil {
			return res, err
		}
		res.FoldScores = append(res.FoldScores, score)
		sum += score
	}
	res.MeanScore = sum / float64(len(splits))
	return res, nil
}
