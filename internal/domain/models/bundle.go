package models

import "time"

// NormalizerState holds the min/max fitted on the training windows of one
// run. Immutable after fit; persisted inside the same bundle record as the
// model it was fitted for.
type NormalizerState struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Hyperparams are the architecture settings needed to reconstruct an
// identically-shaped network at load time.
type Hyperparams struct {
	Lookback   int     `json:"lookback"`
	HiddenSize int     `json:"hidden_size"`
	Layers     int     `json:"layers"`
	Dropout    float64 `json:"dropout"`
}

// LayerWeights holds the learned parameters of one recurrent layer.
// Gate weight matrices are stored row-major, gate order i,f,g,o.
type LayerWeights struct {
	WX []float64 `json:"wx"` // input weights, 4*hidden x inputSize
	WH []float64 `json:"wh"` // recurrent weights, 4*hidden x hidden
	B  []float64 `json:"b"`  // biases, 4*hidden
}

// ModelSnapshot is a versioned, immutable set of learned parameters plus the
// hyperparameters used to instantiate them.
type ModelSnapshot struct {
	RunID     string         `json:"run_id"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Params    Hyperparams    `json:"params"`
	Layers    []LayerWeights `json:"layers"`
	OutW      []float64      `json:"out_w"` // output projection, hidden
	OutB      float64        `json:"out_b"`
}

// ServingBundle is the matched (snapshot, normalizer) pair the service holds
// in memory. Exactly one bundle is live at any instant; it is read-only once
// published.
type ServingBundle struct {
	Snapshot   ModelSnapshot
	Normalizer NormalizerState
	LoadedAt   time.Time
}

// Lookback returns the input window length the bundle expects.
func (b *ServingBundle) Lookback() int { return b.Snapshot.Params.Lookback }

// RunRecord is the opaque key/value record emitted once per training run to
// the experiment tracker.
type RunRecord struct {
	RunID      string            `json:"run_id"`
	Symbol     string            `json:"symbol"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Params     map[string]string `json:"params"`
	Metrics    map[string]float64 `json:"metrics"`
}
