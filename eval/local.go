package eval

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/sente-engine/sente/board"
)

// Config configures the local-CPU evaluator's feature encoding and the
// shape of its (small, real but not production-grade) forward pass.
type Config struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	Features    int `json:"features"`    // planes per position
	ActionSpace int `json:"action_space"` // Width*Height + 1
}

// DefaultConfig mirrors dualnet.DefaultConf's sizing heuristic.
func DefaultConfig(size int) Config {
	return Config{
		Width:       size,
		Height:      size,
		Features:    4,
		ActionSpace: size*size + 1,
	}
}

func (c Config) IsValid() bool {
	return c.Width > 0 && c.Height > 0 && c.Features > 0 &&
		c.ActionSpace == c.Width*c.Height+1
}

func (c Config) inputSize() int { return c.Features * c.Width * c.Height }

// Encoder turns a board.State into feature planes, the input-owned
// buffer an EvaluationRequest carries. Feature-plane
// semantics are an external collaborator concern; Local
// ships a minimal own-stone/opponent-stone/constant encoding sufficient
// to exercise the forward pass.
type Encoder func(state board.State, cfg Config) []float32

// DefaultEncoder cycles three plane kinds over cfg.Features planes:
// plane p holds own stones when p%3 == 0, opponent stones when
// p%3 == 1, and a constant 1 when p%3 == 2.
func DefaultEncoder(state board.State, cfg Config) []float32 {
	out := make([]float32, cfg.inputSize())
	n := cfg.Width * cfg.Height
	turn := state.Turn()
	for p := 0; p < cfg.Features; p++ {
		base := p * n
		switch p % 3 {
		case 0:
			for i := 0; i < n; i++ {
				if occupant(state, i) == turn {
					out[base+i] = 1
				}
			}
		case 1:
			opp := turn.Opponent()
			for i := 0; i < n; i++ {
				if occupant(state, i) == opp {
					out[base+i] = 1
				}
			}
		default:
			for i := 0; i < n; i++ {
				out[base+i] = 1
			}
		}
	}
	return out
}

// occupant reports the color at flat index i for any State that offers
// a CellColor method (as *board.SimpleBoard does) and falls back to
// Empty otherwise, so the encoder degrades gracefully against other
// State implementations.
func occupant(state board.State, i int) board.Color {
	type cellReader interface {
		CellColor(i int) board.Color
	}
	if cr, ok := state.(cellReader); ok {
		return cr.CellColor(i)
	}
	return board.Empty
}

// Local is a local-CPU Evaluator variant. It runs a small,
// genuinely-executed one-layer linear-plus-softmax/tanh forward pass
// over randomly initialized weights built with gorgonia's tensor
// package; the real network topology and trained weights stay
// an external collaborator. Local is useful as the
// always-available fallback path when BatchScheduler and
// distributed.Client both fail.
type Local struct {
	cfg     Config
	encode  Encoder
	weights *tensor.Dense // [ActionSpace+1, inputSize]
	bias    []float32
}

// NewLocal builds a Local evaluator with a deterministic random
// weight matrix, suitable for tests and as the forever-available
// degraded path in production.
func NewLocal(cfg Config, encode Encoder) (*Local, error) {
	if !cfg.IsValid() {
		return nil, errors.New("eval: invalid config")
	}
	if encode == nil {
		encode = DefaultEncoder
	}
	rows := cfg.ActionSpace + 1 // +1 row for value head
	backing := make([]float32, rows*cfg.inputSize())
	r := rand.New(rand.NewSource(1))
	for i := range backing {
		backing[i] = (r.Float32() - 0.5) / 8
	}
	w := tensor.New(tensor.WithBacking(backing), tensor.WithShape(rows, cfg.inputSize()))
	bias := make([]float32, rows)
	return &Local{cfg: cfg, encode: encode, weights: w, bias: bias}, nil
}

func (l *Local) Forward(state board.State) ([]float32, float32, error) {
	return l.ForwardRaw(l.encode(state, l.cfg))
}

// ForwardRaw runs the same forward pass directly over an already-
// encoded feature buffer, the eval.RawForwarder shape batch.Scheduler
// and distributed.Client also implement. This lets Local double as the
// always-available fallback those two fall back to.
func (l *Local) ForwardRaw(input []float32) ([]float32, float32, error) {
	if len(input) != l.cfg.inputSize() {
		return nil, 0, errors.Errorf("eval: expected %d input features, got %d", l.cfg.inputSize(), len(input))
	}
	x := tensor.New(tensor.WithBacking(append([]float32(nil), input...)), tensor.WithShape(l.cfg.inputSize(), 1))
	out, err := l.weights.MatMul(x)
	if err != nil {
		return nil, 0, errors.Wrap(err, "eval: forward matmul failed")
	}
	logits, ok := out.Data().([]float32)
	if !ok {
		return nil, 0, errors.New("eval: unexpected tensor dtype")
	}
	rows := l.cfg.ActionSpace + 1
	for i := 0; i < rows; i++ {
		logits[i] += l.bias[i]
	}
	policyLogits := logits[:l.cfg.ActionSpace]
	valueLogit := logits[l.cfg.ActionSpace]
	policy := softmax(policyLogits)
	value := math32.Tanh(valueLogit)
	return policy, value, nil
}

func softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	max := logits[0]
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	shifted := make([]float32, len(logits))
	for i, v := range logits {
		shifted[i] = v - max
	}
	exps := make([]float32, len(shifted))
	for i, v := range shifted {
		exps[i] = math32.Exp(v)
	}
	var sum float32
	for _, v := range exps {
		sum += v
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1 / float32(len(out))
		}
		return out
	}
	for i, v := range exps {
		out[i] = v / sum
	}
	return out
}
