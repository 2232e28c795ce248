package model

import (
	"math"
	"math/rand"

	"EquiCast/internal/domain/models"
)

// Network is a stacked LSTM over a univariate normalized window, projecting
// the last hidden state to one normalized scalar. The forward pass is a pure
// function of (hyperparameters, weights, input); nothing here mutates shared
// state, so concurrent Forward calls on one Network are safe.
type Network struct {
	params models.Hyperparams
	layers []layerParams
	outW   []float64
	outB   float64
}

// layerParams holds one layer's weights. Gate order is i, f, g, o; matrices
// are row-major with 4*hidden rows.
type layerParams struct {
	wx     []float64 // 4*hidden x inSize
	wh     []float64 // 4*hidden x hidden
	b      []float64 // 4*hidden
	inSize int
}

// NewNetwork creates a network with small uniform random weights. The same
// seed always produces the same initialization.
func NewNetwork(params models.Hyperparams, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	n := &Network{params: params}

	for l := 0; l < params.Layers; l++ {
		inSize := 1
		if l > 0 {
			inSize = params.HiddenSize
		}
		scale := 1.0 / math.Sqrt(float64(inSize+params.HiddenSize))
		lp := layerParams{
			wx:     randomSlice(rng, 4*params.HiddenSize*inSize, scale),
			wh:     randomSlice(rng, 4*params.HiddenSize*params.HiddenSize, scale),
			b:      make([]float64, 4*params.HiddenSize),
			inSize: inSize,
		}
		// forget-gate bias starts at 1 so early training keeps cell memory
		for j := params.HiddenSize; j < 2*params.HiddenSize; j++ {
			lp.b[j] = 1
		}
		n.layers = append(n.layers, lp)
	}

	outScale := 1.0 / math.Sqrt(float64(params.HiddenSize))
	n.outW = randomSlice(rng, params.HiddenSize, outScale)
	return n
}

func randomSlice(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * scale
	}
	return out
}

// FromSnapshot reconstructs a network from persisted weights, failing fast
// when the stored shapes disagree with the snapshot's own hyperparameters.
func FromSnapshot(snap *models.ModelSnapshot) (*Network, error) {
	p := snap.Params
	if len(snap.Layers) != p.Layers {
		return nil, &models.ArchitectureMismatchError{Field: "layers", Want: p.Layers, Got: len(snap.Layers)}
	}
	if len(snap.OutW) != p.HiddenSize {
		return nil, &models.ArchitectureMismatchError{Field: "out_w", Want: p.HiddenSize, Got: len(snap.OutW)}
	}

	n := &Network{params: p, outB: snap.OutB}
	n.outW = append([]float64(nil), snap.OutW...)

	for l, lw := range snap.Layers {
		inSize := 1
		if l > 0 {
			inSize = p.HiddenSize
		}
		if len(lw.WX) != 4*p.HiddenSize*inSize {
			return nil, &models.ArchitectureMismatchError{Field: "wx", Want: 4 * p.HiddenSize * inSize, Got: len(lw.WX)}
		}
		if len(lw.WH) != 4*p.HiddenSize*p.HiddenSize {
			return nil, &models.ArchitectureMismatchError{Field: "wh", Want: 4 * p.HiddenSize * p.HiddenSize, Got: len(lw.WH)}
		}
		if len(lw.B) != 4*p.HiddenSize {
			return nil, &models.ArchitectureMismatchError{Field: "b", Want: 4 * p.HiddenSize, Got: len(lw.B)}
		}
		n.layers = append(n.layers, layerParams{
			wx:     append([]float64(nil), lw.WX...),
			wh:     append([]float64(nil), lw.WH...),
			b:      append([]float64(nil), lw.B...),
			inSize: inSize,
		})
	}
	return n, nil
}

// Snapshot copies the learned parameters into an immutable snapshot.
func (n *Network) Snapshot(runID string, version int) models.ModelSnapshot {
	snap := models.ModelSnapshot{
		RunID:   runID,
		Version: version,
		Params:  n.params,
		OutW:    append([]float64(nil), n.outW...),
		OutB:    n.outB,
	}
	for _, lp := range n.layers {
		snap.Layers = append(snap.Layers, models.LayerWeights{
			WX: append([]float64(nil), lp.wx...),
			WH: append([]float64(nil), lp.wh...),
			B:  append([]float64(nil), lp.b...),
		})
	}
	return snap
}

// Params returns the architecture hyperparameters.
func (n *Network) Params() models.Hyperparams { return n.params }

// Forward runs inference over one normalized window and returns the
// normalized next-step prediction.
func (n *Network) Forward(input []float64) (float64, error) {
	if len(input) != n.params.Lookback {
		return 0, &models.ShapeMismatchError{Want: n.params.Lookback, Got: len(input)}
	}
	cache := n.forward(input, nil)
	return cache.output, nil
}

// stepState is one timestep's activations for one layer, kept for BPTT.
type stepState struct {
	x    []float64 // layer input at this step
	i    []float64
	f    []float64
	g    []float64
	o    []float64
	c    []float64
	tanc []float64 // tanh(c)
	h    []float64
}

type layerCache struct {
	steps []stepState
}

type forwardCache struct {
	layers []layerCache
	lastH  []float64
	output float64
}

// forward runs the full sequence. dropMasks, when non-nil, carries one
// inverted-dropout mask per non-final layer per timestep (training only).
func (n *Network) forward(input []float64, dropMasks [][][]float64) *forwardCache {
	h := n.params.HiddenSize
	T := len(input)
	cache := &forwardCache{layers: make([]layerCache, len(n.layers))}

	// xs is the current layer's input sequence
	xs := make([][]float64, T)
	for t := 0; t < T; t++ {
		xs[t] = []float64{input[t]}
	}

	for l, lp := range n.layers {
		hs := make([][]float64, T)
		prevH := make([]float64, h)
		prevC := make([]float64, h)
		cache.layers[l].steps = make([]stepState, T)

		for t := 0; t < T; t++ {
			st := stepState{
				x: xs[t],
				i: make([]float64, h), f: make([]float64, h),
				g: make([]float64, h), o: make([]float64, h),
				c: make([]float64, h), tanc: make([]float64, h),
				h: make([]float64, h),
			}

			for j := 0; j < h; j++ {
				pi := gatePre(lp, st.x, prevH, 0*h+j)
				pf := gatePre(lp, st.x, prevH, 1*h+j)
				pg := gatePre(lp, st.x, prevH, 2*h+j)
				po := gatePre(lp, st.x, prevH, 3*h+j)

				st.i[j] = sigmoid(pi)
				st.f[j] = sigmoid(pf)
				st.g[j] = math.Tanh(pg)
				st.o[j] = sigmoid(po)
				st.c[j] = st.f[j]*prevC[j] + st.i[j]*st.g[j]
				st.tanc[j] = math.Tanh(st.c[j])
				st.h[j] = st.o[j] * st.tanc[j]
			}

			prevH = st.h
			prevC = st.c
			cache.layers[l].steps[t] = st
			hs[t] = st.h
		}

		// inter-layer dropout during training only
		if dropMasks != nil && l < len(n.layers)-1 {
			masked := make([][]float64, T)
			for t := 0; t < T; t++ {
				out := make([]float64, h)
				for j := 0; j < h; j++ {
					out[j] = hs[t][j] * dropMasks[l][t][j]
				}
				masked[t] = out
			}
			xs = masked
		} else {
			xs = hs
		}
	}

	last := cache.layers[len(n.layers)-1].steps[T-1].h
	cache.lastH = last
	cache.output = n.outB
	for j := 0; j < h; j++ {
		cache.output += n.outW[j] * last[j]
	}
	return cache
}

// gatePre computes the pre-activation for gate row r.
func gatePre(lp layerParams, x, prevH []float64, r int) float64 {
	sum := lp.b[r]
	for c := 0; c < lp.inSize; c++ {
		sum += lp.wx[r*lp.inSize+c] * x[c]
	}
	hlen := len(prevH)
	for c := 0; c < hlen; c++ {
		sum += lp.wh[r*hlen+c] * prevH[c]
	}
	return sum
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
