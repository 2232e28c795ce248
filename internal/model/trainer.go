package model

import (
	"context"
	"math"
	"math/rand"

	"EquiCast/internal/domain/models"
	"EquiCast/pkg/logger"
)

// TrainerConfig holds the optimization hyperparameters. Architecture
// hyperparameters live on the Network itself.
type TrainerConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Dropout      float64
	Seed         int64
}

// Trainer fits a Network on normalized windows with truncated-free BPTT over
// the full window and Adam updates. One Trainer drives one training run.
type Trainer struct {
	net   *Network
	cfg   TrainerConfig
	rng   *rand.Rand
	opt   *adam
	log   *logger.Logger
	grads *gradients
}

// EpochStats reports per-epoch losses (mean squared error in normalized space).
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
}

func NewTrainer(net *Network, cfg TrainerConfig, log *logger.Logger) *Trainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Trainer{
		net: net,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		opt: newAdam(net, cfg.LearningRate),
		log: log,
	}
}

// Train runs the configured number of epochs over the training windows,
// reporting validation loss after each epoch. When a validation set is
// given, the weights with the lowest validation loss are kept; otherwise
// the final epoch's weights stand. It honors ctx between batches so a run
// timeout aborts promptly.
func (tr *Trainer) Train(ctx context.Context, train models.TrainSplit, val []models.Window) ([]EpochStats, error) {
	windows := train.Windows
	if len(windows) == 0 {
		return nil, &models.InsufficientDataError{Have: 0, Lookback: tr.net.params.Lookback}
	}

	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}

	bestVal := math.Inf(1)
	var best *weights

	var history []EpochStats
	for epoch := 1; epoch <= tr.cfg.Epochs; epoch++ {
		tr.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		for start := 0; start < len(order); start += tr.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := start + tr.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			epochLoss += tr.trainBatch(windows, order[start:end]) * float64(end-start)
		}
		epochLoss /= float64(len(windows))

		stats := EpochStats{Epoch: epoch, TrainLoss: epochLoss}
		if len(val) > 0 {
			stats.ValLoss = tr.Loss(val)
			if stats.ValLoss < bestVal {
				bestVal = stats.ValLoss
				best = copyWeights(tr.net)
			}
		}
		history = append(history, stats)

		if tr.log != nil {
			tr.log.Debug("epoch finished",
				logger.Int("epoch", epoch),
				logger.Float64("train_loss", stats.TrainLoss),
				logger.Float64("val_loss", stats.ValLoss),
			)
		}
	}

	if best != nil {
		best.applyTo(tr.net)
		if tr.log != nil {
			tr.log.Info("restored best validation weights",
				logger.Float64("val_loss", bestVal))
		}
	}
	return history, nil
}

// weights is a deep copy of a network's parameters, used to roll the
// network back to its best validation epoch after training finishes.
type weights struct {
	layers []layerGrads
	outW   []float64
	outB   float64
}

func copyWeights(n *Network) *weights {
	w := &weights{
		outW: append([]float64(nil), n.outW...),
		outB: n.outB,
	}
	for _, lp := range n.layers {
		w.layers = append(w.layers, layerGrads{
			wx: append([]float64(nil), lp.wx...),
			wh: append([]float64(nil), lp.wh...),
			b:  append([]float64(nil), lp.b...),
		})
	}
	return w
}

func (w *weights) applyTo(n *Network) {
	for l := range n.layers {
		copy(n.layers[l].wx, w.layers[l].wx)
		copy(n.layers[l].wh, w.layers[l].wh)
		copy(n.layers[l].b, w.layers[l].b)
	}
	copy(n.outW, w.outW)
	n.outB = w.outB
}

// Loss computes mean squared error over windows without updating weights.
func (tr *Trainer) Loss(windows []models.Window) float64 {
	if len(windows) == 0 {
		return 0
	}
	var sum float64
	for _, w := range windows {
		cache := tr.net.forward(w.Input, nil)
		d := cache.output - w.Target
		sum += d * d
	}
	return sum / float64(len(windows))
}

// trainBatch accumulates gradients over one mini-batch, applies a single
// Adam step, and returns the batch mean squared error.
func (tr *Trainer) trainBatch(windows []models.Window, idx []int) float64 {
	if tr.grads == nil {
		tr.grads = newGradients(tr.net)
	}
	tr.grads.reset()

	var loss float64
	for _, i := range idx {
		w := windows[i]
		masks := tr.dropoutMasks(len(w.Input))
		cache := tr.net.forward(w.Input, masks)

		diff := cache.output - w.Target
		loss += diff * diff
		// d(mse)/d(output), averaged over the batch
		dout := 2 * diff / float64(len(idx))
		tr.backward(cache, masks, dout)
	}

	tr.opt.step(tr.net, tr.grads)
	return loss / float64(len(idx))
}

// dropoutMasks builds inverted-dropout masks for each non-final layer and
// timestep. Nil when dropout is disabled or there is a single layer.
func (tr *Trainer) dropoutMasks(T int) [][][]float64 {
	p := tr.cfg.Dropout
	layers := len(tr.net.layers)
	if p <= 0 || layers < 2 {
		return nil
	}
	h := tr.net.params.HiddenSize
	keep := 1 - p
	masks := make([][][]float64, layers-1)
	for l := range masks {
		masks[l] = make([][]float64, T)
		for t := 0; t < T; t++ {
			m := make([]float64, h)
			for j := range m {
				if tr.rng.Float64() < keep {
					m[j] = 1 / keep
				}
			}
			masks[l][t] = m
		}
	}
	return masks
}

// backward runs BPTT for one sample, adding into the accumulated gradients.
func (tr *Trainer) backward(cache *forwardCache, masks [][][]float64, dout float64) {
	net := tr.net
	h := net.params.HiddenSize
	T := len(cache.layers[0].steps)
	last := len(net.layers) - 1

	// dxs carries the gradient flowing into the layer below, per timestep
	dxs := make([][]float64, T)

	for l := last; l >= 0; l-- {
		lp := net.layers[l]
		lg := tr.grads.layers[l]
		steps := cache.layers[l].steps

		dhNext := make([]float64, h)
		dcNext := make([]float64, h)
		newDxs := make([][]float64, T)

		for t := T - 1; t >= 0; t-- {
			st := steps[t]

			dh := make([]float64, h)
			copy(dh, dhNext)
			if l == last {
				if t == T-1 {
					for j := 0; j < h; j++ {
						dh[j] += dout * net.outW[j]
					}
				}
			} else if dxs[t] != nil {
				// gradient from the layer above, back through its dropout mask
				for j := 0; j < h; j++ {
					g := dxs[t][j]
					if masks != nil {
						g *= masks[l][t][j]
					}
					dh[j] += g
				}
			}

			var prevH, prevC []float64
			if t > 0 {
				prevH = steps[t-1].h
				prevC = steps[t-1].c
			} else {
				prevH = make([]float64, h)
				prevC = make([]float64, h)
			}

			dpre := make([]float64, 4*h)
			dhPrev := make([]float64, h)
			dcPrev := make([]float64, h)
			dx := make([]float64, lp.inSize)

			for j := 0; j < h; j++ {
				do := dh[j] * st.tanc[j]
				dc := dh[j]*st.o[j]*(1-st.tanc[j]*st.tanc[j]) + dcNext[j]

				di := dc * st.g[j]
				df := dc * prevC[j]
				dg := dc * st.i[j]
				dcPrev[j] = dc * st.f[j]

				dpre[0*h+j] = di * st.i[j] * (1 - st.i[j])
				dpre[1*h+j] = df * st.f[j] * (1 - st.f[j])
				dpre[2*h+j] = dg * (1 - st.g[j]*st.g[j])
				dpre[3*h+j] = do * st.o[j] * (1 - st.o[j])
			}

			for r := 0; r < 4*h; r++ {
				d := dpre[r]
				if d == 0 {
					continue
				}
				lg.b[r] += d
				for c := 0; c < lp.inSize; c++ {
					lg.wx[r*lp.inSize+c] += d * st.x[c]
					dx[c] += d * lp.wx[r*lp.inSize+c]
				}
				for c := 0; c < h; c++ {
					lg.wh[r*h+c] += d * prevH[c]
					dhPrev[c] += d * lp.wh[r*h+c]
				}
			}

			dhNext = dhPrev
			dcNext = dcPrev
			newDxs[t] = dx
		}
		dxs = newDxs
	}

	// output projection
	for j := 0; j < h; j++ {
		tr.grads.outW[j] += dout * cache.lastH[j]
	}
	tr.grads.outB += dout
}

// gradients mirrors the network's parameter layout.
type gradients struct {
	layers []layerGrads
	outW   []float64
	outB   float64
}

type layerGrads struct {
	wx, wh, b []float64
}

func newGradients(n *Network) *gradients {
	g := &gradients{outW: make([]float64, len(n.outW))}
	for _, lp := range n.layers {
		g.layers = append(g.layers, layerGrads{
			wx: make([]float64, len(lp.wx)),
			wh: make([]float64, len(lp.wh)),
			b:  make([]float64, len(lp.b)),
		})
	}
	return g
}

func (g *gradients) reset() {
	for _, lg := range g.layers {
		zero(lg.wx)
		zero(lg.wh)
		zero(lg.b)
	}
	zero(g.outW)
	g.outB = 0
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// adam keeps first/second moment estimates per parameter slice.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
	m     [][]float64
	v     [][]float64
	mOutB float64
	vOutB float64
}

func newAdam(n *Network, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, lp := range n.layers {
		for _, size := range []int{len(lp.wx), len(lp.wh), len(lp.b)} {
			a.m = append(a.m, make([]float64, size))
			a.v = append(a.v, make([]float64, size))
		}
	}
	a.m = append(a.m, make([]float64, len(n.outW)))
	a.v = append(a.v, make([]float64, len(n.outW)))
	return a
}

func (a *adam) step(n *Network, g *gradients) {
	a.t++
	idx := 0
	for l := range n.layers {
		a.update(n.layers[l].wx, g.layers[l].wx, idx)
		a.update(n.layers[l].wh, g.layers[l].wh, idx+1)
		a.update(n.layers[l].b, g.layers[l].b, idx+2)
		idx += 3
	}
	a.update(n.outW, g.outW, idx)

	// scalar bias follows the same schedule
	a.mOutB = a.beta1*a.mOutB + (1-a.beta1)*g.outB
	a.vOutB = a.beta2*a.vOutB + (1-a.beta2)*g.outB*g.outB
	mh := a.mOutB / (1 - math.Pow(a.beta1, float64(a.t)))
	vh := a.vOutB / (1 - math.Pow(a.beta2, float64(a.t)))
	n.outB -= a.lr * mh / (math.Sqrt(vh) + a.eps)
}

func (a *adam) update(params, grads []float64, slot int) {
	m, v := a.m[slot], a.v[slot]
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i := range params {
		g := grads[i]
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
		params[i] -= a.lr * (m[i] / bc1) / (math.Sqrt(v[i]/bc2) + a.eps)
	}
}
