package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"AgriCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

var testSchema = []string{"a", "b", "c"}

func linearData(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = []float64{float64(i), float64(i % 7), 1}
		y[i] = 2*float64(i) + 1
	}
	return x, y
}

func TestFitReducesTrainingError(t *testing.T) {
	x, y := linearData(50)
	m, err := NewTrainer().Fit(x, y, testSchema)
	require.NoError(t, err)

	var sse float64
	for i := range x {
		p, err := m.Predict(x[i])
		require.NoError(t, err)
		sse += (p - y[i]) * (p - y[i])
	}
	mse := sse / float64(len(y))
	assert.Less(t, mse, 0.05*stat.Variance(y, nil))
	assert.Equal(t, 100, m.NumTrees())
	assert.Equal(t, 50, m.TrainingRows())
}

func TestFitDeterministic(t *testing.T) {
	x, y := linearData(30)
	tr := NewTrainer(WithParams(Params{NumTrees: 20, MaxDepth: 3, LearningRate: 0.3, Lambda: 1, MinChildWeight: 1, Subsample: 0.7, Seed: 7}))

	a, err := tr.Fit(x, y, testSchema)
	require.NoError(t, err)
	b, err := tr.Fit(x, y, testSchema)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestTreesRespectMaxDepth(t *testing.T) {
	x, y := linearData(64)
	m, err := NewTrainer().Fit(x, y, testSchema)
	require.NoError(t, err)
	for _, tree := range m.trees {
		assert.LessOrEqual(t, tree.depth(), DefaultParams().MaxDepth)
	}
}

func TestSingleRowFitPredictsTarget(t *testing.T) {
	m, err := NewTrainer().Fit([][]float64{{1, 2, 3}}, []float64{42}, testSchema)
	require.NoError(t, err)
	p, err := m.Predict([]float64{9, 9, 9})
	require.NoError(t, err)
	assert.InDelta(t, 42, p, 1e-9)
}

func TestFitTrainingErrors(t *testing.T) {
	tests := []struct {
		name    string
		trainer *Trainer
		x       [][]float64
		y       []float64
		schema  []string
	}{
		{"empty", NewTrainer(), nil, nil, testSchema},
		{"below minimum", NewTrainer(WithMinRows(5)), [][]float64{{1, 2, 3}}, []float64{1}, testSchema},
		{"schema mismatch", NewTrainer(), [][]float64{{1, 2}}, []float64{1}, testSchema},
		{"non-finite feature", NewTrainer(), [][]float64{{1, math.NaN(), 3}}, []float64{1}, testSchema},
		{"non-finite target", NewTrainer(), [][]float64{{1, 2, 3}}, []float64{math.Inf(1)}, testSchema},
		{"length mismatch", NewTrainer(), [][]float64{{1, 2, 3}}, []float64{1, 2}, testSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.trainer.Fit(tt.x, tt.y, tt.schema)
			assert.True(t, errors.Is(err, models.ErrTraining), "got %v", err)
		})
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	x, y := linearData(10)
	m, err := NewTrainer().Fit(x, y, testSchema)
	require.NoError(t, err)

	_, err = m.Predict([]float64{1, 2})
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))
}

func TestArtifactRoundTripPreservesPredictions(t *testing.T) {
	x, y := linearData(40)
	m, err := NewTrainer().Fit(x, y, testSchema)
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var a Artifact
	require.NoError(t, json.Unmarshal(raw, &a))
	assert.Equal(t, ArtifactFormat, a.Format)
	assert.Equal(t, testSchema, a.Schema)

	back, err := FromArtifact(a)
	require.NoError(t, err)
	for i := range x {
		want, _ := m.Predict(x[i])
		got, err := back.Predict(x[i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = FromArtifact(Artifact{Format: "onnx"})
	assert.Error(t, err)
}

func TestFromArtifactRejectsMalformedTrees(t *testing.T) {
	leaf := Node{Leaf: true, Value: 1}
	cases := map[string][]Node{
		"empty":           nil,
		"child past end":  {{Feature: 0, Threshold: 1, Left: 1, Right: 5}, leaf},
		"cycle to parent": {{Feature: 0, Threshold: 1, Left: 1, Right: 2}, {Feature: 0, Threshold: 1, Left: 0, Right: 2}, leaf},
		"self loop":       {{Feature: 0, Threshold: 1, Left: 0, Right: 1}, leaf},
		"feature too big": {{Feature: len(testSchema), Threshold: 1, Left: 1, Right: 2}, leaf, leaf},
		"negative":        {{Feature: -1, Threshold: 1, Left: 1, Right: 2}, leaf, leaf},
	}
	for name, nodes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromArtifact(Artifact{Format: ArtifactFormat, Schema: testSchema, Trees: []Tree{{Nodes: nodes}}})
			assert.Error(t, err)
		})
	}

	m, err := FromArtifact(Artifact{Format: ArtifactFormat, Schema: testSchema, BaseScore: 2, Trees: []Tree{
		{Nodes: []Node{{Feature: 1, Threshold: 5, Left: 1, Right: 2}, {Leaf: true, Value: -1}, {Leaf: true, Value: 1}}},
	}})
	require.NoError(t, err)
	x := make([]float64, len(testSchema))
	x[1] = 7
	got, err := m.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}
