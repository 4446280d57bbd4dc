package batch

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Accelerator is the out-of-scope accelerator-execution collaborator
// a batch worker invokes after packing inputs into a contiguous batch
// buffer. Neural network topology and trained weights stay external;
// Accelerator only owns the packed-batch calling convention.
type Accelerator interface {
	// ExecuteBatch runs n rows of a contiguous [n*inputSize]float32
	// buffer through the network, returning n rows of
	// [actionSpace]float32 policy plus n values.
	ExecuteBatch(packed []float32, n, inputSize, actionSpace int) (policies []float32, values []float32, err error)
}

// LocalTensorAccelerator is a genuinely-executed (not stubbed)
// accelerator built on gorgonia's tensor package: a single batched
// matmul over the whole packed buffer, the same shape of computation
// eval.Local runs per-request but amortized across a batch the way a
// real accelerator context would. Random weights stand in for trained
// ones; the production network is loaded elsewhere.
type LocalTensorAccelerator struct {
	weights *tensor.Dense // [actionSpace+1, inputSize]
	bias    []float32
}

// NewLocalTensorAccelerator builds a deterministic random-weight
// accelerator sized for inputSize features and actionSpace+1 policy
// rows (the +1 value head row), mirroring eval.Local's weight layout
// so both evaluator variants are comparable in a fallback chain.
func NewLocalTensorAccelerator(inputSize, actionSpace int, seed uint64) (*LocalTensorAccelerator, error) {
	if inputSize <= 0 || actionSpace <= 0 {
		return nil, errors.New("batch: invalid accelerator dimensions")
	}
	rows := actionSpace + 1
	backing := make([]float32, rows*inputSize)
	next := splitmix64(seed)
	for i := range backing {
		backing[i] = (next() - 0.5) / 8
	}
	w := tensor.New(tensor.WithBacking(backing), tensor.WithShape(rows, inputSize))
	return &LocalTensorAccelerator{weights: w, bias: make([]float32, rows)}, nil
}

func (a *LocalTensorAccelerator) ExecuteBatch(packed []float32, n, inputSize, actionSpace int) ([]float32, []float32, error) {
	rows := actionSpace + 1
	if len(packed) != n*inputSize {
		return nil, nil, errors.Errorf("batch: packed buffer has %d elements, want %d", len(packed), n*inputSize)
	}
	x := tensor.New(tensor.WithBacking(append([]float32(nil), packed...)), tensor.WithShape(n, inputSize))
	wT := a.weights.Clone().(*tensor.Dense)
	if err := wT.T(); err != nil {
		return nil, nil, errors.Wrap(err, "batch: transpose weights")
	}
	out, err := x.MatMul(wT) // [n, rows]
	if err != nil {
		return nil, nil, errors.Wrap(err, "batch: batched matmul")
	}
	logits, ok := out.Data().([]float32)
	if !ok {
		return nil, nil, errors.New("batch: unexpected tensor dtype")
	}

	policies := make([]float32, n*actionSpace)
	values := make([]float32, n)
	rowLogits := make([]float32, rows)
	for row := 0; row < n; row++ {
		base := row * rows
		copy(rowLogits, logits[base:base+rows])
		for i := range rowLogits {
			rowLogits[i] += a.bias[i]
		}
		softmaxInto(policies[row*actionSpace:(row+1)*actionSpace], rowLogits[:actionSpace])
		values[row] = math32.Tanh(rowLogits[actionSpace])
	}
	return policies, values, nil
}

func softmaxInto(dst, logits []float32) {
	maxv := logits[0]
	for _, v := range logits {
		if v > maxv {
			maxv = v
		}
	}
	exps := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		e := math32.Exp(v - maxv)
		exps[i] = e
		sum += e
	}
	if sum <= 0 {
		for i := range dst {
			dst[i] = 1 / float32(len(dst))
		}
		return
	}
	for i, e := range exps {
		dst[i] = e / sum
	}
}

// splitmix64 seeds LocalTensorAccelerator's weights deterministically
// without pulling in math/rand just for a handful of float32 draws.
func splitmix64(seed uint64) func() float32 {
	state := seed
	return func() float32 {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z = z ^ (z >> 31)
		return float32(z%1_000_000) / 1_000_000
	}
}
