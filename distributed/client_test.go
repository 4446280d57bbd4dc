package distributed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/eval"
)

func localFallback() eval.RawForwarderFunc {
	return func(input []float32) ([]float32, float32, error) {
		policy := make([]float32, testActionSpace)
		policy[0] = 1
		return policy, 0.5, nil
	}
}

// TestClientFallsThroughToLocalWhenServerUnreachable: a configured
// server that is not running must leave the live socket count at 0,
// and forward must fall through to the local Evaluator.
func TestClientFallsThroughToLocalWhenServerUnreachable(t *testing.T) {
	cfg := DefaultConfig([]string{"127.0.0.1:1"}, testInputSize, testActionSpace, testModelHash)
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.ReprobeInterval = 100 * time.Millisecond

	client, err := NewClient(cfg, localFallback(), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		return client.ActiveSockets() == 0
	}, time.Second, 10*time.Millisecond)

	policy, value, err := client.ForwardRaw(make([]float32, testInputSize))
	require.NoError(t, err)
	require.Equal(t, float32(0.5), value)
	require.Len(t, policy, testActionSpace)
}

// TestNewClientRejectsMalformedServerAddress: malformed host:port
// configuration is fatal during initialization.
func TestNewClientRejectsMalformedServerAddress(t *testing.T) {
	cfg := DefaultConfig([]string{"not-an-address"}, testInputSize, testActionSpace, testModelHash)
	_, err := NewClient(cfg, localFallback(), nil)
	require.Error(t, err)

	cfg = DefaultConfig([]string{"127.0.0.1:8080", "missing-port"}, testInputSize, testActionSpace, testModelHash)
	_, err = NewClient(cfg, localFallback(), nil)
	require.Error(t, err)
}

func TestClientRoundTripsThroughRealServer(t *testing.T) {
	srv := startTestServer(t)

	cfg := DefaultConfig([]string{srv.Addr().String()}, testInputSize, testActionSpace, testModelHash)
	cfg.WorkersPerServer = 2
	client, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		return client.ActiveSockets() > 0
	}, time.Second, 10*time.Millisecond)

	policy, _, err := client.ForwardRaw(make([]float32, testInputSize))
	require.NoError(t, err)
	require.Len(t, policy, testActionSpace)
}

// TestRedispatchFallsBackWhenNoServerIsLive exercises the open-question
// resolution for dying workers: a request stranded on a server with no
// remaining sockets must be completed via the fallback evaluator
// rather than left to rot in the queue.
func TestRedispatchFallsBackWhenNoServerIsLive(t *testing.T) {
	cfg := DefaultConfig([]string{"127.0.0.1:1"}, testInputSize, testActionSpace, testModelHash)
	cfg.ConnectTimeout = 20 * time.Millisecond
	cfg.ReprobeInterval = time.Hour // keep the reprobe loop out of the way
	client, err := NewClient(cfg, localFallback(), nil)
	require.NoError(t, err)
	defer client.Close()

	req := newEvalRequest(make([]float32, testInputSize))
	client.redispatch(req)

	select {
	case <-req.done:
	case <-time.After(time.Second):
		t.Fatal("redispatched request never completed")
	}
	require.NoError(t, req.err)
	require.Len(t, req.policy, testActionSpace)
}

// TestDrainAndRedispatchEmptiesDeadServerQueue verifies that a server
// losing its last socket has its residual queue entries rescued, with
// poisoned entries dropped rather than recomputed.
func TestDrainAndRedispatchEmptiesDeadServerQueue(t *testing.T) {
	cfg := DefaultConfig([]string{"127.0.0.1:1"}, testInputSize, testActionSpace, testModelHash)
	cfg.ConnectTimeout = 20 * time.Millisecond
	cfg.ReprobeInterval = time.Hour
	client, err := NewClient(cfg, localFallback(), nil)
	require.NoError(t, err)
	defer client.Close()

	srv := client.servers[0]
	live := newEvalRequest(make([]float32, testInputSize))
	poisoned := newEvalRequest(make([]float32, testInputSize))
	poisoned.poisoned = 1
	srv.queue <- live
	srv.queue <- poisoned

	client.drainAndRedispatch(srv)
	require.Empty(t, srv.queue)

	select {
	case <-live.done:
	case <-time.After(time.Second):
		t.Fatal("live queue entry was not rescued")
	}
	select {
	case <-poisoned.done:
		t.Fatal("poisoned entry must be dropped, not completed")
	default:
	}
}

func TestClientDropsOnHashMismatch(t *testing.T) {
	cfg := ServerConfig{
		Addr:        "127.0.0.1:0",
		ModelHash:   testModelHash + 1, // deliberately different from the client's
		MaxConns:    2,
		InputSize:   testInputSize,
		ActionSpace: testActionSpace,
	}
	srv, err := NewServer(cfg, echoForwarder(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	go srv.Serve()
	defer srv.Close()

	ccfg := DefaultConfig([]string{srv.Addr().String()}, testInputSize, testActionSpace, testModelHash)
	ccfg.ReprobeInterval = 50 * time.Millisecond
	client, err := NewClient(ccfg, localFallback(), nil)
	require.NoError(t, err)
	defer client.Close()

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(0), client.ActiveSockets())
}
