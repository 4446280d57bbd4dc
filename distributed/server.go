package distributed

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sente-engine/sente/eval"
)

// ServerConfig configures an InferenceServer.
type ServerConfig struct {
	Addr        string
	ModelHash   uint64
	MaxConns    int32
	InputSize   int // C*N
	ActionSpace int // N+1
}

func (c ServerConfig) IsValid() bool {
	return c.Addr != "" && c.MaxConns > 0 && c.InputSize > 0 && c.ActionSpace > 0
}

// Server is the server half of the remote-evaluator protocol: accepts connections up to a thread cap, validates the
// handshake, and serves request/response pairs until the peer closes.
type Server struct {
	cfg    ServerConfig
	eval   eval.RawForwarder
	logger *log.Logger

	listener net.Listener
	active   int32 // atomic

	wg sync.WaitGroup
}

// NewServer wires a RawForwarder (typically eval.Local, or any other
// Evaluator adapted via eval.Encoded's inverse) to serve remote
// requests. logger defaults to a discarding logger so a busy server
// doesn't pay for logging under load.
func NewServer(cfg ServerConfig, forwarder eval.RawForwarder, logger *log.Logger) (*Server, error) {
	if !cfg.IsValid() {
		return nil, errors.New("distributed: invalid server config")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{cfg: cfg, eval: forwarder, logger: logger}, nil
}

// Listen binds the listening socket, so callers that need the bound
// address (tests against an ephemeral ":0" port) can read Addr()
// before Serve starts accepting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "distributed: listen")
	}
	s.listener = ln
	return nil
}

// Serve accepts connections until Close is called. It blocks the
// calling goroutine; call Listen first if the bound address is
// needed before serving starts.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return nil // listener closed: clean shutdown
		}
		s.acceptOne(conn)
	}
}

// Addr returns the bound listen address, useful once Serve has been
// started against an ephemeral ":0" port.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting new connections and waits until every open
// connection has ended. It does not close open connections itself: each
// one is served until its peer closes it or an I/O error occurs.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return errors.Wrap(err, "distributed: close listener")
}

// acceptOne enforces the per-process thread cap: a
// newcomer over the cap is shut down immediately without sending a
// hash.
func (s *Server) acceptOne(conn net.Conn) {
	for {
		cur := atomic.LoadInt32(&s.active)
		if cur >= s.cfg.MaxConns {
			conn.Close()
			return
		}
		if atomic.CompareAndSwapInt32(&s.active, cur, cur+1) {
			break
		}
	}
	s.wg.Add(1)
	go s.handleConn(conn)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer atomic.AddInt32(&s.active, -1)
	defer conn.Close()

	clientHash, err := readHash(conn)
	if err != nil {
		return
	}
	if err := writeHash(conn, s.cfg.ModelHash); err != nil {
		return
	}

	planes := make([]byte, s.cfg.InputSize)
	for {
		if err := readPlanes(conn, planes); err != nil {
			return // EOF or I/O error terminates the connection cleanly
		}
		input := planesToFloat32(planes)
		policy, value, err := s.eval.ForwardRaw(input)
		if err != nil {
			s.logger.Printf("distributed: server forward failed for client hash %x: %v", clientHash, err)
			return
		}
		if err := writeResponse(conn, policy, value); err != nil {
			return
		}
	}
}
