package model

// Params are the boosting hyperparameters.
type Params struct {
	NumTrees       int     `json:"num_trees"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`           // L2 penalty on leaf weights
	MinChildWeight float64 `json:"min_child_weight"` // minimum hessian sum per child
	Subsample      float64 `json:"subsample"`        // row fraction per tree, 1 disables sampling
	Seed           uint64  `json:"seed"`
}

// DefaultParams returns 100 trees of depth 5 at learning rate 0.1, seeded with 42.
func DefaultParams() Params {
	return Params{
		NumTrees:       100,
		MaxDepth:       5,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		Subsample:      1,
		Seed:           42,
	}
}

// TrainerOption configures Trainer.
type TrainerOption func(*Trainer)

// WithParams overrides the boosting hyperparameters.
func WithParams(p Params) TrainerOption {
	return func(t *Trainer) {
		t.params = p
	}
}

// WithMinRows sets the minimum number of training rows accepted by Fit.
func WithMinRows(n int) TrainerOption {
	return func(t *Trainer) {
		if n > 0 {
			t.minRows = n
		}
	}
}
