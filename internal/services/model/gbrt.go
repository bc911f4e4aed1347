package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"AgriCast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// ArtifactFormat tags exported model documents.
const ArtifactFormat = "agricast-gbrt/v1"

// Trainer fits gradient-boosted regression tree ensembles with a squared-error objective.
type Trainer struct {
	params  Params
	minRows int
}

func NewTrainer(opts ...TrainerOption) *Trainer {
	t := &Trainer{params: DefaultParams(), minRows: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Params returns the hyperparameters used by Fit.
func (t *Trainer) Params() Params { return t.params }

// Fit trains one ensemble on x (rows laid out in schema order) against y.
// Identical inputs always produce an identical model.
func (t *Trainer) Fit(x [][]float64, y []float64, schema []string) (*Model, error) {
	if len(x) != len(y) {
		return nil, models.TrainingError("feature rows (%d) and targets (%d) differ", len(x), len(y))
	}
	if len(x) < t.minRows || len(x) == 0 {
		return nil, models.TrainingError("need at least %d training rows, got %d", max(t.minRows, 1), len(x))
	}
	if len(schema) == 0 {
		return nil, models.TrainingError("empty feature schema")
	}
	for i, row := range x {
		if len(row) != len(schema) {
			return nil, models.TrainingError("row %d has %d features, schema has %d", i, len(row), len(schema))
		}
		if !allFinite(row) || !isFinite(y[i]) {
			return nil, models.TrainingError("row %d contains non-finite values", i)
		}
	}

	p := t.params
	if p.NumTrees <= 0 || p.MaxDepth <= 0 || p.LearningRate <= 0 {
		return nil, models.TrainingError("invalid params: %+v", p)
	}

	base := stat.Mean(y, nil)
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))
	grad := make([]float64, len(y))
	trees := make([]Tree, 0, p.NumTrees)
	for round := 0; round < p.NumTrees; round++ {
		for i := range y {
			grad[i] = pred[i] - y[i]
		}
		b := &treeBuilder{x: x, grad: grad, p: p}
		b.build(sampleRows(rng, len(y), p.Subsample), 0)
		tree := Tree{Nodes: b.nodes}
		for i := range pred {
			pred[i] += tree.predict(x[i])
		}
		trees = append(trees, tree)
	}

	return &Model{
		schema:       slices.Clone(schema),
		baseScore:    base,
		trees:        trees,
		params:       p,
		trainingRows: len(x),
	}, nil
}

// sampleRows draws a row subset without replacement, keeping original order.
func sampleRows(rng *rand.Rand, n int, fraction float64) []int {
	idx := make([]int, 0, n)
	if fraction >= 1 || fraction <= 0 {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
		return idx
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < fraction {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		idx = append(idx, rng.IntN(n))
	}
	return idx
}

// Model is an immutable trained ensemble bound to its feature schema.
type Model struct {
	schema       []string
	baseScore    float64
	trees        []Tree
	params       Params
	trainingRows int
}

// Schema returns a copy of the ordered feature names.
func (m *Model) Schema() []string { return slices.Clone(m.schema) }

// TrainingRows returns how many rows the model was fitted on.
func (m *Model) TrainingRows() int { return m.trainingRows }

// NumTrees returns the ensemble size.
func (m *Model) NumTrees() int { return len(m.trees) }

// Predict scores one feature vector laid out in the model's schema order.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != len(m.schema) {
		return 0, models.InvalidArgumentError("feature vector has %d values, model schema has %d", len(x), len(m.schema))
	}
	out := m.baseScore
	for i := range m.trees {
		out += m.trees[i].predict(x)
	}
	return out, nil
}

// Artifact is the portable JSON document of a trained model.
type Artifact struct {
	Format       string   `json:"format"`
	Schema       []string `json:"schema"`
	BaseScore    float64  `json:"base_score"`
	Params       Params   `json:"params"`
	TrainingRows int      `json:"training_rows"`
	Trees        []Tree   `json:"trees"`
}

// Artifact snapshots the model for export.
func (m *Model) Artifact() Artifact {
	return Artifact{
		Format:       ArtifactFormat,
		Schema:       m.Schema(),
		BaseScore:    m.baseScore,
		Params:       m.params,
		TrainingRows: m.trainingRows,
		Trees:        m.trees,
	}
}

// MarshalJSON encodes the model as its Artifact.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Artifact())
}

// FromArtifact rebuilds a model from an exported document.
func FromArtifact(a Artifact) (*Model, error) {
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if len(a.Schema) == 0 {
		return nil, fmt.Errorf("artifact has empty schema")
	}
	for i, t := range a.Trees {
		if err := t.validate(len(a.Schema)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &Model{
		schema:       slices.Clone(a.Schema),
		baseScore:    a.BaseScore,
		trees:        a.Trees,
		params:       a.Params,
		trainingRows: a.TrainingRows,
	}, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
