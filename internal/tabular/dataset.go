// Package tabular trains and evaluates a k-nearest-neighbours classifier on
// CSV data: split, scale, fit, score, grid search and model files.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyDataset is returned when a CSV or split has no rows.
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrInvalidSplit is returned for a test fraction that leaves a side empty.
	ErrInvalidSplit = errors.New("invalid train/test split")
)

// Dataset is a table of numeric features with one string label per row
type Dataset struct {
	FeatureNames []string
	LabelName    string
	Features     [][]float64
	Labels       []string
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// subset returns the rows at idx; rows are shared, not copied.
func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		FeatureNames: d.FeatureNames,
		LabelName:    d.LabelName,
		Features:     make([][]float64, len(idx)),
		Labels:       make([]string, len(idx)),
	}
	for i, j := range idx {
		out.Features[i] = d.Features[j]
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// LoadCSV reads a dataset from an http(s) URL or a local path. The first row
// is the header. labelColumn names the label; empty means the last column.
func LoadCSV(ctx context.Context, source, labelColumn string) (*Dataset, error) {
	rc, err := openSource(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return ReadCSV(rc, labelColumn)
}

func openSource(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open csv: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := (&http.Client{Timeout: time.Minute}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch csv: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch csv: %s returned %d", source, resp.StatusCode)
	}
	return resp.Body, nil
}

// ReadCSV parses a dataset from r
func ReadCSV(r io.Reader, labelColumn string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("need at least one feature and one label column, got %d columns", len(header))
	}

	labelIdx := len(header) - 1
	if labelColumn != "" {
		labelIdx = -1
		for i, h := range header {
			if strings.TrimSpace(h) == labelColumn {
				labelIdx = i
				break
			}
		}
		if labelIdx < 0 {
			return nil, fmt.Errorf("label column %q not found", labelColumn)
		}
	}

	ds := &Dataset{LabelName: strings.TrimSpace(header[labelIdx])}
	for i, h := range header {
		if i != labelIdx {
			ds.FeatureNames = append(ds.FeatureNames, strings.TrimSpace(h))
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, 0, len(header)-1)
		for i, field := range rec {
			if i == labelIdx {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, header[i], err)
			}
			row = append(row, v)
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, strings.TrimSpace(rec[labelIdx]))
	}

	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// TrainTestSplit shuffles rows with seed and holds out testFraction of them
func TrainTestSplit(ds *Dataset, testFraction float64, seed uint64) (train, test *Dataset, err error) {
	n := ds.Len()
	if n == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("%w: test fraction %v must be in (0, 1)", ErrInvalidSplit, testFraction)
	}

	nTest := int(math.Round(float64(n) * testFraction))
	if nTest < 1 || nTest > n-1 {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with test fraction %v", ErrInvalidSplit, n, testFraction)
	}

	idx := shuffledIndices(n, seed)
	return ds.subset(idx[nTest:]), ds.subset(idx[:nTest]), nil
}

func shuffledIndices(n int, seed uint64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}
