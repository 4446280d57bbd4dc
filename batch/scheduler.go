package batch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Config holds BatchScheduler's tunables: G accelerator
// contexts times I streams each, the fixed batch size, and the
// adaptive wait-time bounds.
type Config struct {
	Contexts    int // G
	Streams     int // I
	BatchSize   int
	MinWait     time.Duration
	MaxWait     time.Duration
	InitialWait time.Duration
	ReqTimeout  time.Duration // bound on the synchronous Forward path
	InputSize   int
	ActionSpace int
}

// DefaultConfig mirrors dualnet.DefaultConf's BatchSize=256 default,
// scaled down to a size that actually saturates on a handful of
// concurrent callers in tests.
func DefaultConfig(inputSize, actionSpace int) Config {
	return Config{
		Contexts:    1,
		Streams:     2,
		BatchSize:   8,
		MinWait:     100 * time.Microsecond,
		MaxWait:     20 * time.Millisecond,
		InitialWait: 2 * time.Millisecond,
		ReqTimeout:  2 * time.Second,
		InputSize:   inputSize,
		ActionSpace: actionSpace,
	}
}

func (c Config) IsValid() bool {
	return c.Contexts > 0 && c.Streams > 0 && c.BatchSize > 0 &&
		c.InputSize > 0 && c.ActionSpace > 0 && c.MinWait > 0 && c.MaxWait >= c.MinWait
}

// Scheduler is the single-host batch coalescing evaluator: G*I
// batch-worker goroutines drain a shared request queue, pack inputs
// into a contiguous buffer, and invoke an Accelerator.
type Scheduler struct {
	cfg   Config
	accel Accelerator

	queue    chan *Request
	waitTime int64 // atomic nanoseconds
	singleEval int32 // atomic bool: a synchronous Forward caller is waiting

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler starts Contexts*Streams batch workers against accel.
func NewScheduler(accel Accelerator, cfg Config) (*Scheduler, error) {
	if !cfg.IsValid() {
		return nil, errors.New("batch: invalid scheduler config")
	}
	s := &Scheduler{
		cfg:      cfg,
		accel:    accel,
		queue:    make(chan *Request, cfg.BatchSize*cfg.Contexts*cfg.Streams*4),
		waitTime: int64(cfg.InitialWait),
		stopCh:   make(chan struct{}),
	}
	workers := cfg.Contexts * cfg.Streams
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.batchWorker()
	}
	return s, nil
}

// Close stops all batch workers. In-flight requests are left
// unresolved; callers should already be bound by their own timeout.
func (s *Scheduler) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

// ForwardRaw is the synchronous request path.
// It sets the single-eval flag so batch workers prefer to drain sooner
// for a caller that is actively waiting.
func (s *Scheduler) ForwardRaw(input []float32) ([]float32, float32, error) {
	req := NewRequest(input)
	atomic.AddInt32(&s.singleEval, 1)
	defer atomic.AddInt32(&s.singleEval, -1)
	select {
	case s.queue <- req:
	case <-s.stopCh:
		return nil, 0, ErrClosed
	}
	if err := req.Wait(s.cfg.ReqTimeout); err != nil {
		return nil, 0, err
	}
	return req.Policy, req.Value, nil
}

// ForwardAsync enqueues req for asynchronous use by SearchEngine.
// The caller owns waiting on req.
func (s *Scheduler) ForwardAsync(req *Request) error {
	select {
	case s.queue <- req:
		return nil
	case <-s.stopCh:
		return ErrClosed
	}
}

// batchWorker is one of G*I accelerator-context workers: wait bounded on the shared queue, drain up to BatchSize
// (or fewer if a synchronous caller is waiting), execute, fan results
// back out.
func (s *Scheduler) batchWorker() {
	defer s.wg.Done()
	for {
		var first *Request
		select {
		case <-s.stopCh:
			return
		case first = <-s.queue:
		}

		batch := make([]*Request, 0, s.cfg.BatchSize)
		batch = append(batch, first)
		wait := time.Duration(atomic.LoadInt64(&s.waitTime))
		timer := time.NewTimer(wait)

	drain:
		for len(batch) < s.cfg.BatchSize {
			select {
			case r := <-s.queue:
				batch = append(batch, r)
				continue
			default:
			}
			if atomic.LoadInt32(&s.singleEval) > 0 {
				break drain
			}
			select {
			case r := <-s.queue:
				batch = append(batch, r)
			case <-timer.C:
				break drain
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		s.adjustWait(len(batch))
		s.execute(batch)
	}
}

// adjustWait converges wait_time toward steady state: underfilled
// batches push it up (more patience buys fuller batches next time),
// full batches push it down.
func (s *Scheduler) adjustWait(filled int) {
	cur := time.Duration(atomic.LoadInt64(&s.waitTime))
	var next time.Duration
	if filled >= s.cfg.BatchSize {
		next = cur - cur/10
		if next < s.cfg.MinWait {
			next = s.cfg.MinWait
		}
	} else {
		next = cur + cur/5 + time.Microsecond
		if next > s.cfg.MaxWait {
			next = s.cfg.MaxWait
		}
	}
	atomic.StoreInt64(&s.waitTime, int64(next))
}

// execute packs inputs into one contiguous buffer, invokes the
// accelerator, and writes each result back into its own request's
// slot. Requests already cancelled by their
// requester still get a completion signal; the completed output is
// simply never read.
func (s *Scheduler) execute(batch []*Request) {
	n := len(batch)
	packed := make([]float32, 0, n*s.cfg.InputSize)
	for _, r := range batch {
		packed = append(packed, r.Input...)
	}
	policies, values, err := s.accel.ExecuteBatch(packed, n, s.cfg.InputSize, s.cfg.ActionSpace)
	if err != nil {
		// Accelerator failure propagates to each entry as an error
		// flag; requestors retry on the fallback Evaluator.
		for _, r := range batch {
			r.complete(nil, 0, errors.Wrap(err, "batch: accelerator execution failed"))
		}
		return
	}
	for i, r := range batch {
		policy := policies[i*s.cfg.ActionSpace : (i+1)*s.cfg.ActionSpace]
		r.complete(policy, values[i], nil)
	}
}
