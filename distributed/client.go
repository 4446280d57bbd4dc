package distributed

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/sente-engine/sente/eval"
)

// Config configures a Client.
type Config struct {
	Servers          []string // "host:port" per remote server
	WorkersPerServer int      // N sockets spread across M servers
	ModelHash        uint64
	BatchSize        int // groups consecutive round-robin picks onto one server
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	ReprobeInterval  time.Duration
	InputSize        int
	ActionSpace      int
}

// DefaultConfig carries the production timeouts: 500ms connect and
// request, 1s reprobe.
func DefaultConfig(servers []string, inputSize, actionSpace int, modelHash uint64) Config {
	return Config{
		Servers:          servers,
		WorkersPerServer: 4,
		ModelHash:        modelHash,
		BatchSize:        1,
		ConnectTimeout:   500 * time.Millisecond,
		RequestTimeout:   500 * time.Millisecond,
		ReprobeInterval:  time.Second,
		InputSize:        inputSize,
		ActionSpace:      actionSpace,
	}
}

func (c Config) IsValid() bool {
	return len(c.Servers) > 0 && c.WorkersPerServer > 0 && c.InputSize > 0 && c.ActionSpace > 0
}

// evalRequest is one queued evaluation, specialized to
// the distributed path: an input-owned buffer, a one-shot done signal,
// and a back-pointer to the socket that accepted it, used solely for
// forced teardown on timeout.
type evalRequest struct {
	input []float32

	done  chan struct{}
	policy []float32
	value  float32
	err    error

	conn      atomic.Pointer[net.Conn]
	poisoned  int32 // atomic bool
	completed int32 // atomic bool: guards against a racing double-complete
}

func newEvalRequest(input []float32) *evalRequest {
	return &evalRequest{input: input, done: make(chan struct{})}
}

func (r *evalRequest) complete(policy []float32, value float32, err error) {
	if !atomic.CompareAndSwapInt32(&r.completed, 0, 1) {
		return
	}
	r.policy, r.value, r.err = policy, value, err
	close(r.done)
}

// serverRecord tracks one remote server's live sockets and its request
// FIFO.
type serverRecord struct {
	addr          string
	activeSockets int32 // atomic
	activePending int32 // atomic
	queue         chan *evalRequest
}

// Client is the client half of the remote-evaluator pool: N
// persistent TCP workers across M servers, with hash handshake,
// request queueing, liveness reprobing, and failure-driven fallback.
type Client struct {
	cfg     Config
	servers []*serverRecord

	activeSocketsTotal int32 // atomic
	activePendingTotal int32 // atomic
	ptr                int64 // atomic round-robin counter

	fallback eval.RawForwarder // local evaluator, consulted when every server is unreachable

	logger *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient wires M server records and starts the background reprobe
// task. fallback may be nil, in which case a fully-unreachable pool
// surfaces ErrUnavailable instead of silently degrading.
func NewClient(cfg Config, fallback eval.RawForwarder, logger *log.Logger) (*Client, error) {
	if !cfg.IsValid() {
		return nil, errors.New("distributed: invalid client config")
	}
	for _, addr := range cfg.Servers {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			// Malformed configuration is fatal at initialization; a typo
			// here must not silently degrade to local-only play.
			return nil, errors.Wrapf(err, "distributed: malformed server address %q, want host:port", addr)
		}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Client{cfg: cfg, fallback: fallback, logger: logger, stopCh: make(chan struct{})}
	for _, addr := range cfg.Servers {
		c.servers = append(c.servers, &serverRecord{
			addr:  addr,
			queue: make(chan *evalRequest, cfg.WorkersPerServer*8),
		})
	}
	c.initServers()
	c.wg.Add(1)
	go c.reprobeLoop()
	return c, nil
}

// ErrUnavailable is returned by ForwardRaw when every server is
// unreachable and no fallback evaluator was configured.
var ErrUnavailable = errors.New("distributed: no server reachable and no fallback configured")

// Close stops the reprobe task and every socket worker, aggregating
// any close errors the way agogo's Agent.Close does.
func (c *Client) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	var errs error
	for _, srv := range c.servers {
		if n := atomic.LoadInt32(&srv.activeSockets); n != 0 {
			errs = multierror.Append(errs, errors.Errorf("distributed: server %s left %d sockets open at close", srv.addr, n))
		}
	}
	return errs
}

// ActiveSockets reports the total live socket count across all
// servers, the quantity end-to-end scenario 3 observes.
func (c *Client) ActiveSockets() int32 { return atomic.LoadInt32(&c.activeSocketsTotal) }

// initServers tries to top every server up to WorkersPerServer active
// sockets.
func (c *Client) initServers() {
	for i, srv := range c.servers {
		deficit := c.cfg.WorkersPerServer - int(atomic.LoadInt32(&srv.activeSockets))
		for j := 0; j < deficit; j++ {
			c.wg.Add(1)
			go c.connectOne(i)
		}
	}
}

// connectOne performs the connect protocol: resolve,
// dial with a bounded timeout, exchange hashes, drop on mismatch.
func (c *Client) connectOne(idx int) {
	defer c.wg.Done()
	srv := c.servers[idx]

	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := d.Dial("tcp", srv.addr)
	if err != nil {
		return // transient connectivity error; the reprobe task retries
	}
	// The completion timeout covers the whole connect protocol: a peer
	// that accepts but stalls on the hash exchange is torn down too.
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return
	}
	if err := writeHash(conn, c.cfg.ModelHash); err != nil {
		conn.Close()
		return
	}
	remoteHash, err := readHash(conn)
	if err != nil {
		conn.Close()
		return
	}
	if remoteHash != c.cfg.ModelHash {
		conn.Close() // hash mismatch drop
		return
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return
	}

	atomic.AddInt32(&srv.activeSockets, 1)
	atomic.AddInt32(&c.activeSocketsTotal, 1)
	c.wg.Add(1)
	go c.socketWorker(srv, conn)
}

// socketWorker is the per-socket worker loop: pop one
// request from the server's FIFO, round-trip it, repeat until the
// socket errors or the client shuts down.
func (c *Client) socketWorker(srv *serverRecord, conn net.Conn) {
	defer c.wg.Done()
	defer conn.Close()
	dropSocket := func() {
		atomic.AddInt32(&srv.activeSockets, -1)
		atomic.AddInt32(&c.activeSocketsTotal, -1)
	}

	for {
		var req *evalRequest
		select {
		case <-c.stopCh:
			dropSocket()
			return
		case req = <-srv.queue:
		}

		connIface := conn
		req.conn.Store(&connIface)

		if err := writePlanes(conn, float32ToPlanes(req.input)); err != nil {
			dropSocket()
			c.abortRequest(srv, req)
			return
		}
		policy, value, err := readResponse(conn, c.cfg.ActionSpace)
		if err != nil {
			dropSocket()
			c.abortRequest(srv, req)
			return
		}

		atomic.AddInt32(&srv.activePending, -1)
		atomic.AddInt32(&c.activePendingTotal, -1)
		if atomic.LoadInt32(&req.poisoned) == 1 {
			continue // requester already abandoned this request; discard
		}
		req.complete(policy, value, nil)
	}
}

// abortRequest handles a write/read failure on req's socket: null the
// socket pointer, decrement pending counters, and requeue req elsewhere
// instead of leaving it to rot. The caller has already removed the
// dying socket from the live counts, so redispatch skips a server that
// has no socket left. If this was the server's last live socket, the
// rest of its queue is drained and redistributed too, since nothing
// would ever pop it otherwise.
func (c *Client) abortRequest(srv *serverRecord, req *evalRequest) {
	req.conn.Store(nil)
	atomic.AddInt32(&srv.activePending, -1)
	atomic.AddInt32(&c.activePendingTotal, -1)
	if atomic.LoadInt32(&req.poisoned) == 0 {
		c.redispatch(req)
	}
	if atomic.LoadInt32(&srv.activeSockets) == 0 {
		c.drainAndRedispatch(srv)
	}
}

func (c *Client) drainAndRedispatch(srv *serverRecord) {
	for {
		select {
		case r := <-srv.queue:
			atomic.AddInt32(&srv.activePending, -1)
			atomic.AddInt32(&c.activePendingTotal, -1)
			if atomic.LoadInt32(&r.poisoned) == 0 {
				c.redispatch(r)
			}
		default:
			return
		}
	}
}

// redispatch hands req to another live server, or completes it via the
// fallback evaluator if none is reachable.
func (c *Client) redispatch(req *evalRequest) {
	for _, srv := range c.servers {
		if atomic.LoadInt32(&srv.activeSockets) == 0 {
			continue
		}
		atomic.AddInt32(&srv.activePending, 1)
		atomic.AddInt32(&c.activePendingTotal, 1)
		select {
		case srv.queue <- req:
			return
		default:
			atomic.AddInt32(&srv.activePending, -1)
			atomic.AddInt32(&c.activePendingTotal, -1)
		}
	}
	c.completeViaFallback(req)
}

func (c *Client) completeViaFallback(req *evalRequest) {
	if c.fallback == nil {
		req.complete(nil, 0, ErrUnavailable)
		return
	}
	policy, value, err := c.fallback.ForwardRaw(req.input)
	req.complete(policy, value, err)
}

// reprobeLoop periodically tries to top the pool back up to its
// configured worker count.
func (c *Client) reprobeLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ReprobeInterval)
	defer ticker.Stop()
	want := int32(len(c.servers) * c.cfg.WorkersPerServer)
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.activeSocketsTotal) < want {
				c.initServers()
			}
		}
	}
}

// pickServerIndex implements the round-robin pick: "server =
// (ptr++ / batch_size) mod M", a lock-free round robin that groups
// batch_size consecutive requests onto the same server.
func (c *Client) pickServerIndex() int {
	p := atomic.AddInt64(&c.ptr, 1) - 1
	bs := int64(c.cfg.BatchSize)
	if bs < 1 {
		bs = 1
	}
	return int((p / bs) % int64(len(c.servers)))
}

// oversubscribed compares server load to the pool average with a cross-multiplied
// inequality so no division (and therefore no divide-by-zero
// surprises) ever runs in the hot path.
func (c *Client) oversubscribed(srv *serverRecord) bool {
	sockets := atomic.LoadInt32(&srv.activeSockets)
	pending := atomic.LoadInt32(&srv.activePending)
	if pending < sockets {
		return false
	}
	totalSockets := atomic.LoadInt32(&c.activeSocketsTotal)
	totalPending := atomic.LoadInt32(&c.activePendingTotal)
	if totalSockets == 0 {
		return false
	}
	return int64(pending)*int64(totalSockets) > int64(totalPending)*int64(sockets)
}

const maxForwardAttempts = 32

// ForwardRaw is the synchronous request path:
// "forward(input) -> (policy, value)".
func (c *Client) ForwardRaw(input []float32) ([]float32, float32, error) {
	return c.forwardAttempt(input, 0)
}

func (c *Client) forwardAttempt(input []float32, attempt int) ([]float32, float32, error) {
	if attempt >= maxForwardAttempts {
		return c.fallbackForward(input)
	}

	idx := c.pickServerIndex()
	srv := c.servers[idx]

	if atomic.LoadInt32(&srv.activeSockets) == 0 {
		if atomic.LoadInt32(&c.activeSocketsTotal) == 0 {
			return c.fallbackForward(input) // every server down; don't spin, degrade now
		}
		return c.forwardAttempt(input, attempt+1)
	}
	if c.oversubscribed(srv) {
		return c.forwardAttempt(input, attempt+1)
	}

	req := newEvalRequest(input)
	atomic.AddInt32(&srv.activePending, 1)
	atomic.AddInt32(&c.activePendingTotal, 1)
	select {
	case srv.queue <- req:
	case <-c.stopCh:
		return nil, 0, errors.New("distributed: client closed")
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-req.done:
		if req.err != nil {
			return c.forwardAttempt(input, attempt+1)
		}
		return req.policy, req.value, nil
	case <-timer.C:
		return c.onTimeout(req, srv, input, attempt)
	}
}

// onTimeout handles an expired wait: force-close the socket if
// the request was already picked up (the owning socketWorker then
// decrements pending itself via abortRequest), otherwise poison it so
// whichever worker later pops it discards the output, and decrement
// pending directly since no worker will.
func (c *Client) onTimeout(req *evalRequest, srv *serverRecord, input []float32, attempt int) ([]float32, float32, error) {
	if connPtr := req.conn.Load(); connPtr != nil && *connPtr != nil {
		(*connPtr).Close()
	} else {
		atomic.StoreInt32(&req.poisoned, 1)
		atomic.AddInt32(&srv.activePending, -1)
		atomic.AddInt32(&c.activePendingTotal, -1)
	}
	return c.forwardAttempt(input, attempt+1)
}

func (c *Client) fallbackForward(input []float32) ([]float32, float32, error) {
	if c.fallback == nil {
		return nil, 0, ErrUnavailable
	}
	return c.fallback.ForwardRaw(input)
}
