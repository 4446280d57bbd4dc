package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig(9)
	require.True(t, cfg.IsValid())
	require.Equal(t, 82, cfg.ActionSpace)
}

func TestNewLocalRejectsInvalidConfig(t *testing.T) {
	_, err := NewLocal(Config{}, nil)
	require.Error(t, err)
}

func TestLocalForwardReturnsNormalizedPolicy(t *testing.T) {
	cfg := DefaultConfig(9)
	local, err := NewLocal(cfg, DefaultEncoder)
	require.NoError(t, err)

	state := board.NewSimpleBoard(9)
	policy, value, err := local.Forward(state)
	require.NoError(t, err)
	require.Len(t, policy, cfg.ActionSpace)

	var sum float32
	for _, p := range policy {
		require.GreaterOrEqual(t, p, float32(0))
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-3)
	require.GreaterOrEqual(t, value, float32(-1))
	require.LessOrEqual(t, value, float32(1))
}

func TestLocalForwardIsDeterministic(t *testing.T) {
	cfg := DefaultConfig(9)
	local, err := NewLocal(cfg, DefaultEncoder)
	require.NoError(t, err)
	state := board.NewSimpleBoard(9)

	p1, v1, err := local.Forward(state)
	require.NoError(t, err)
	p2, v2, err := local.Forward(state)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, v1, v2)
}

func TestLocalForwardRawRejectsWrongSizedInput(t *testing.T) {
	cfg := DefaultConfig(9)
	local, err := NewLocal(cfg, DefaultEncoder)
	require.NoError(t, err)
	_, _, err = local.ForwardRaw(make([]float32, 3))
	require.Error(t, err)
}

func TestLocalForwardAndForwardRawAgree(t *testing.T) {
	cfg := DefaultConfig(9)
	local, err := NewLocal(cfg, DefaultEncoder)
	require.NoError(t, err)
	state := board.NewSimpleBoard(9)

	viaForward, valueForward, err := local.Forward(state)
	require.NoError(t, err)
	input := DefaultEncoder(state, cfg)
	viaRaw, valueRaw, err := local.ForwardRaw(input)
	require.NoError(t, err)
	require.Equal(t, viaForward, viaRaw)
	require.Equal(t, valueForward, valueRaw)
}

func TestEncodedDelegatesThroughEncoderAndRawForwarder(t *testing.T) {
	cfg := DefaultConfig(9)
	var seen []float32
	raw := RawForwarderFunc(func(input []float32) ([]float32, float32, error) {
		seen = input
		policy := make([]float32, cfg.ActionSpace)
		policy[len(policy)-1] = 1
		return policy, 0.25, nil
	})
	encoded := Encoded{Encoder: DefaultEncoder, Config: cfg, Raw: raw}

	state := board.NewSimpleBoard(9)
	policy, value, err := encoded.Forward(state)
	require.NoError(t, err)
	require.Equal(t, DefaultEncoder(state, cfg), seen)
	require.Equal(t, float32(1), policy[len(policy)-1])
	require.Equal(t, float32(0.25), value)
}
