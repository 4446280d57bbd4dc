// Package eval defines the Evaluator contract shared by the local-CPU,
// batched-accelerator and distributed variants. Neural-network topology and trained
// weights are out of scope; this package only owns the
// request/response shape and a small local reference implementation.
package eval

import "github.com/sente-engine/sente/board"

// Evaluator returns a (policy, value) pair for a position. policy has
// ActionSpace() entries, the last of which (index N) is the pass
// probability.
type Evaluator interface {
	Forward(state board.State) (policy []float32, value float32, err error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(state board.State) ([]float32, float32, error)

func (f Func) Forward(state board.State) ([]float32, float32, error) {
	return f(state)
}

// RawForwarder is a forward pass over an already-encoded feature
// buffer rather than a board.State. batch.Scheduler and
// distributed.Client both implement it instead of Evaluator directly,
// since neither owns an Encoder of its own.
type RawForwarder interface {
	ForwardRaw(input []float32) (policy []float32, value float32, err error)
}

// RawForwarderFunc adapts a plain function to RawForwarder.
type RawForwarderFunc func(input []float32) ([]float32, float32, error)

func (f RawForwarderFunc) ForwardRaw(input []float32) ([]float32, float32, error) {
	return f(input)
}

// Encoded adapts a RawForwarder into a full Evaluator by running the
// given Encoder first, the glue BatchScheduler and distributed.Client
// both need to be usable as SearchEngine's Eval.
type Encoded struct {
	Encoder Encoder
	Config  Config
	Raw     RawForwarder
}

func (e Encoded) Forward(state board.State) ([]float32, float32, error) {
	input := e.Encoder(state, e.Config)
	return e.Raw.ForwardRaw(input)
}
