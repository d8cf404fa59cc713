package reducer

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Splitter fans one input out to n outputs, copying each element to every
// output. A single in-flight "fill" pulls one row from the input and
// appends a private clone to every still-open output's buffer; the fill
// itself blocks while any still-open output is suspended, so one
// suspended output halts delivery to every other output -- the
// "suspends when any output is suspended" contract of spec.md §4.7. This
// mirrors the wait-queue-plus-condition-variable shape of the teacher's
// ResourcePool.waitForResource/processWaitQueue pair, generalized from
// "block an acquirer until a resource frees up" to "block a broadcaster
// until every output is ready to receive".
type Splitter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      Node
	outs    []*splitOutput
	filling bool

	// limiter is optional; a nil limiter means fills run unpaced. Set via
	// SetLimiter to cap how fast this Splitter drains its input, independent
	// of the suspend/resume backpressure every output already applies.
	limiter *rate.Limiter
}

type splitOutput struct {
	buf       []Row
	suspended bool
	closed    bool
	err       error
}

// NewSplitter creates a Splitter with n outputs; call Outputs to obtain
// the per-output Nodes.
func NewSplitter(in Node, n int) *Splitter {
	s := &Splitter{in: in, outs: make([]*splitOutput, n)}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.outs {
		s.outs[i] = &splitOutput{}
	}
	return s
}

// SetLimiter paces fills against lim, the way
// gateway/middleware.rateLimitMiddleware paces requests against a
// per-client rate.Limiter: each fill must acquire one token from lim before
// pulling from the input, so a downstream consumer can cap ingest/reduce
// throughput without touching the suspend/resume wiring. A nil lim disables
// pacing (the default).
func (s *Splitter) SetLimiter(lim *rate.Limiter) {
	s.mu.Lock()
	s.limiter = lim
	s.mu.Unlock()
}

// Outputs returns the Splitter's n output Nodes, in the order passed to
// NewSplitter.
func (s *Splitter) Outputs() []Node {
	nodes := make([]Node, len(s.outs))
	for i := range s.outs {
		nodes[i] = &splitterOutputNode{s: s, idx: i}
	}
	return nodes
}

// fillLocked pulls exactly one row from the input (or propagates its
// terminal error) and hands a private clone to every still-open output.
// Must be called with s.mu held; it releases the lock only around the
// blocking call to s.in.Produce.
func (s *Splitter) fillLocked(ctx context.Context) {
	for s.filling {
		s.cond.Wait()
	}
	s.filling = true
	defer func() {
		s.filling = false
		s.cond.Broadcast()
	}()

	for _, o := range s.outs {
		for !o.closed && o.suspended {
			s.cond.Wait()
		}
	}
	// Another waiter may have already advanced the stream while we slept
	// on the suspend wait above; re-check isn't needed here since every
	// still-open output either already has buffered rows (caller's loop
	// will notice) or genuinely needs this fill.

	lim := s.limiter
	s.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			s.mu.Lock()
			for _, o := range s.outs {
				if !o.closed {
					o.err = err
					o.closed = true
				}
			}
			return
		}
	}
	row, err := s.in.Produce(ctx)
	s.mu.Lock()

	if err != nil {
		for _, o := range s.outs {
			if !o.closed {
				o.err = err
				o.closed = true
			}
		}
		return
	}
	for _, o := range s.outs {
		if !o.closed {
			o.buf = append(o.buf, row.clone())
		}
	}
}

type splitterOutputNode struct {
	s   *Splitter
	idx int
}

func (n *splitterOutputNode) Produce(ctx context.Context) (Row, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.outs[n.idx]
	for len(o.buf) == 0 && o.err == nil {
		s.fillLocked(ctx)
	}
	if len(o.buf) == 0 {
		return Row{}, o.err
	}
	row := o.buf[0]
	o.buf = o.buf[1:]
	return row, nil
}

func (n *splitterOutputNode) Suspend() {
	s := n.s
	s.mu.Lock()
	s.outs[n.idx].suspended = true
	s.mu.Unlock()
}

func (n *splitterOutputNode) Resume() {
	s := n.s
	s.mu.Lock()
	s.outs[n.idx].suspended = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (n *splitterOutputNode) CloseWithError(err error) {
	s := n.s
	s.mu.Lock()
	o := s.outs[n.idx]
	if !o.closed {
		o.closed = true
		o.err = err
		o.buf = nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}
