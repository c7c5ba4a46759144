package tabular

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Model is a fitted scaler and classifier plus the column layout it expects
type Model struct {
	FeatureNames []string
	LabelName    string
	Scaler       *StandardScaler
	Classifier   *KNNClassifier
}

// Train fits a scaled kNN model on ds
func Train(ds *Dataset, p Params) (*Model, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(ds.Features); err != nil {
		return nil, err
	}

	clf := NewKNN(p)
	if err := clf.Fit(scaler.Transform(ds.Features), ds.Labels); err != nil {
		return nil, err
	}

	return &Model{
		FeatureNames: ds.FeatureNames,
		LabelName:    ds.LabelName,
		Scaler:       scaler,
		Classifier:   clf,
	}, nil
}

// Predict scales X with the training statistics and classifies it
func (m *Model) Predict(X [][]float64) ([]string, error) {
	return m.Classifier.Predict(m.Scaler.Transform(X))
}

// Score returns accuracy on ds
func (m *Model) Score(ds *Dataset) (float64, error) {
	if err := m.checkColumns(ds); err != nil {
		return 0, err
	}
	pred, err := m.Predict(ds.Features)
	if err != nil {
		return 0, err
	}
	return Accuracy(pred, ds.Labels)
}

func (m *Model) checkColumns(ds *Dataset) error {
	if len(ds.FeatureNames) != len(m.FeatureNames) {
		return fmt.Errorf("dataset has %d features, model expects %d", len(ds.FeatureNames), len(m.FeatureNames))
	}
	for i, name := range m.FeatureNames {
		if ds.FeatureNames[i] != name {
			return fmt.Errorf("feature %d is %q, model expects %q", i, ds.FeatureNames[i], name)
		}
	}
	return nil
}

// Save writes m to path as zstd-compressed gob
func Save(path string, m *Model) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(m); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush model: %w", err)
	}
	return f.Close()
}

// Load reads a model written by Save
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	var m Model
	if err := gob.NewDecoder(zr).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if m.Classifier == nil || m.Scaler == nil {
		return nil, fmt.Errorf("model file %s is incomplete", path)
	}
	return &m, nil
}
