// Package distributed implements the client and server halves of the
// remote-evaluator wire protocol: a client
// pool of persistent TCP workers across several InferenceServers, and
// the server accept loop they talk to.
package distributed

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// writeHash/readHash implement the 8-byte model-hash handshake. Host byte order is tolerated because hashes are compared,
// never interpreted, so little-endian is used consistently on both
// sides.
func writeHash(w io.Writer, hash uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], hash)
	_, err := w.Write(buf[:])
	return errors.Wrap(err, "distributed: write hash")
}

func readHash(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Wrap(err, "distributed: read hash")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// writePlanes writes the C*N raw feature-plane bytes, one byte per
// cell, value 0/1.
func writePlanes(w io.Writer, planes []byte) error {
	_, err := w.Write(planes)
	return errors.Wrap(err, "distributed: write request planes")
}

func readPlanes(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return errors.Wrap(err, "distributed: read request planes")
}

// writeResponse/readResponse carry (N+2)*4 bytes: f32 policy[0..N]
// (N+1 entries, the last being pass probability) then f32 value.
func writeResponse(w io.Writer, policy []float32, value float32) error {
	buf := make([]byte, 4*(len(policy)+1))
	for i, p := range policy {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(p))
	}
	binary.LittleEndian.PutUint32(buf[len(policy)*4:], math.Float32bits(value))
	_, err := w.Write(buf)
	return errors.Wrap(err, "distributed: write response")
}

func readResponse(r io.Reader, actionSpace int) (policy []float32, value float32, err error) {
	buf := make([]byte, 4*(actionSpace+1))
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, 0, errors.Wrap(err, "distributed: read response")
	}
	policy = make([]float32, actionSpace)
	for i := range policy {
		policy[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	value = math.Float32frombits(binary.LittleEndian.Uint32(buf[actionSpace*4:]))
	return policy, value, nil
}

// planesToFloat32/float32ToPlanes convert between the wire's one-byte-
// per-cell representation and the in-process []float32 feature buffer
// EvaluationRequest carries.
func planesToFloat32(planes []byte) []float32 {
	out := make([]float32, len(planes))
	for i, b := range planes {
		out[i] = float32(b)
	}
	return out
}

func float32ToPlanes(input []float32) []byte {
	out := make([]byte, len(input))
	for i, v := range input {
		if v != 0 {
			out[i] = 1
		}
	}
	return out
}
