// Package fabric drives the fair arbiter cycle by cycle. It models N
// requesters, each with a FIFO of pending payloads and a Bernoulli
// arrival process, competing for one downstream consumer. Every cycle
// the fabric offers the queue heads to the arbiter, pops the winner's
// queue when the grant retires, and hands the payload to the consumer.
package fabric

import (
	"github.com/zeebo/pcg"

	"github.com/ehtshamulhassan-lm/arbsim/arbiter"
	"github.com/ehtshamulhassan-lm/arbsim/bitvec"
	"github.com/ehtshamulhassan-lm/arbsim/timing/sink"
)

// DefaultQueueDepth is the per-requester queue capacity used when no
// option overrides it.
const DefaultQueueDepth = 16

// Consumer is the downstream side of the fabric. Ready is sampled
// before arbitration each cycle; Accept is called at most once per
// cycle and only while Ready; Tick advances the consumer's clock at the
// end of the cycle.
type Consumer interface {
	Ready() bool
	Accept(index int, payload uint64)
	Tick()
}

// RequesterStats holds per-requester fabric counters.
type RequesterStats struct {
	// Offered is the number of payloads enqueued.
	Offered uint64
	// Dropped is the number of arrivals rejected by a full queue.
	Dropped uint64
	// Accepted is the number of payloads granted and consumed.
	Accepted uint64
	// MaxWait is the longest time, in cycles, a payload spent at the
	// head of the queue before being granted.
	MaxWait uint64
}

// Statistics holds fabric counters accumulated across cycles.
type Statistics struct {
	// Cycles is the number of Tick calls.
	Cycles uint64
	// Offered is the total number of payloads enqueued.
	Offered uint64
	// Dropped is the total number of arrivals rejected by full queues.
	Dropped uint64
	// Accepted is the total number of payloads granted and consumed.
	Accepted uint64
	// Retries is the number of cycles a selected winner had to wait
	// for the consumer.
	Retries uint64
	// PerRequester holds the per-requester breakdown.
	PerRequester []RequesterStats
}

// Option is a functional option for configuring the Fabric.
type Option func(*Fabric)

// WithConsumer sets the downstream consumer. The default is a
// sink.AlwaysReady with no backpressure.
func WithConsumer(c Consumer) Option {
	return func(f *Fabric) {
		f.consumer = c
	}
}

// WithSeed seeds the arrival process, making runs reproducible.
func WithSeed(seed uint64) Option {
	return func(f *Fabric) {
		f.rng = pcg.New(seed)
	}
}

// WithArrivalProbability sets the same per-cycle arrival probability
// for every requester. Zero disables generated arrivals, leaving only
// payloads injected with Enqueue.
func WithArrivalProbability(p float64) Option {
	return func(f *Fabric) {
		for i := range f.thresholds {
			f.thresholds[i] = arrivalThreshold(p)
		}
	}
}

// WithArrivalProbabilities sets a per-requester arrival probability.
// Entries beyond the requester count are ignored.
func WithArrivalProbabilities(ps []float64) Option {
	return func(f *Fabric) {
		for i, p := range ps {
			if i >= len(f.thresholds) {
				break
			}
			f.thresholds[i] = arrivalThreshold(p)
		}
	}
}

// WithQueueDepth sets the per-requester queue capacity.
func WithQueueDepth(depth int) Option {
	return func(f *Fabric) {
		if depth > 0 {
			f.queueDepth = depth
		}
	}
}

// arrivalThreshold converts a probability to a 33-bit comparison
// threshold for Uint32 draws, so that p = 1 always fires.
func arrivalThreshold(p float64) uint64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1 << 32
	}
	return uint64(p * (1 << 32))
}

// Fabric is a cycle-driven arbitration fabric. A Fabric must be stepped
// by exactly one driver.
type Fabric struct {
	arb      *arbiter.Arbiter
	consumer Consumer

	rng        pcg.T
	thresholds []uint64

	queues     [][]uint64
	headSince  []uint64
	queueDepth int

	requests *bitvec.Vector
	payloads []uint64

	cycle uint64
	stats Statistics
}

// New creates a fabric with n requesters carrying w-bit payloads.
func New(n, w int, opts ...Option) (*Fabric, error) {
	arb, err := arbiter.New(n, w)
	if err != nil {
		return nil, err
	}

	f := &Fabric{
		arb:        arb,
		consumer:   &sink.AlwaysReady{},
		rng:        pcg.New(1),
		thresholds: make([]uint64, n),
		queues:     make([][]uint64, n),
		headSince:  make([]uint64, n),
		queueDepth: DefaultQueueDepth,
		requests:   bitvec.New(n),
		payloads:   make([]uint64, n),
		stats: Statistics{
			PerRequester: make([]RequesterStats, n),
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// N returns the number of requesters.
func (f *Fabric) N() int {
	return f.arb.N()
}

// Enqueue adds a payload to a requester's queue, reporting whether it
// was admitted. Arrivals beyond the queue depth are dropped.
func (f *Fabric) Enqueue(index int, payload uint64) bool {
	q := f.queues[index]
	per := &f.stats.PerRequester[index]
	if len(q) >= f.queueDepth {
		f.stats.Dropped++
		per.Dropped++
		return false
	}
	if len(q) == 0 {
		f.headSince[index] = f.cycle
	}
	f.queues[index] = append(q, payload)
	f.stats.Offered++
	per.Offered++
	return true
}

// QueueLen returns the number of payloads pending for a requester.
func (f *Fabric) QueueLen(index int) int {
	return len(f.queues[index])
}

// Tick runs one fabric cycle: generate arrivals, arbitrate among the
// queue heads, retire the grant if the consumer is ready, and advance
// the consumer.
func (f *Fabric) Tick() {
	f.cycle++
	f.stats.Cycles++

	f.generateArrivals()

	f.requests.Zero()
	for i, q := range f.queues {
		if len(q) > 0 {
			f.requests.Set(i)
			f.payloads[i] = q[0]
		} else {
			f.payloads[i] = 0
		}
	}

	ready := f.consumer.Ready()
	d := f.arb.Arbitrate(f.requests, f.payloads, ready)

	switch {
	case d.Valid && ready:
		f.retire(d)
	case d.Valid:
		f.stats.Retries++
	}

	f.consumer.Tick()
}

func (f *Fabric) generateArrivals() {
	for i, threshold := range f.thresholds {
		if threshold == 0 {
			continue
		}
		if uint64(f.rng.Uint32()) < threshold {
			f.Enqueue(i, f.rng.Uint64())
		}
	}
}

func (f *Fabric) retire(d arbiter.Decision) {
	i := d.WinnerIndex
	per := &f.stats.PerRequester[i]

	if wait := f.cycle - f.headSince[i]; wait > per.MaxWait {
		per.MaxWait = wait
	}

	f.consumer.Accept(i, d.WinnerPayload)
	f.queues[i] = f.queues[i][1:]
	f.headSince[i] = f.cycle

	f.stats.Accepted++
	per.Accepted++
}

// Run executes the fabric for the given number of cycles.
func (f *Fabric) Run(cycles uint64) {
	for c := uint64(0); c < cycles; c++ {
		f.Tick()
	}
}

// Drain keeps ticking with arrivals disabled until every queue is
// empty, up to the given cycle limit. It reports whether the queues
// drained completely.
func (f *Fabric) Drain(limit uint64) bool {
	saved := make([]uint64, len(f.thresholds))
	copy(saved, f.thresholds)
	for i := range f.thresholds {
		f.thresholds[i] = 0
	}
	defer copy(f.thresholds, saved)

	for c := uint64(0); c < limit; c++ {
		if f.pending() == 0 {
			return true
		}
		f.Tick()
	}
	return f.pending() == 0
}

func (f *Fabric) pending() int {
	total := 0
	for _, q := range f.queues {
		total += len(q)
	}
	return total
}

// Stats returns a snapshot of the fabric counters.
func (f *Fabric) Stats() Statistics {
	s := f.stats
	s.PerRequester = make([]RequesterStats, len(f.stats.PerRequester))
	copy(s.PerRequester, f.stats.PerRequester)
	return s
}

// ArbiterStats returns a snapshot of the underlying arbiter's counters.
func (f *Fabric) ArbiterStats() arbiter.Statistics {
	return f.arb.Stats()
}
