// Package arbiter provides an N-way fair arbiter for scheduling access
// to a shared single-consumer resource.
//
// Each cycle the arbiter picks at most one winner among the pending
// requesters. Fairness is round-robin: a rotating priority mask
// deprioritizes the most recent winner and its predecessors until the
// rotation wraps. The winner is located with a prefix-OR over the
// eligible set followed by lowest-set-bit isolation, so tie-breaks
// within a rotation window always go to the lowest index.
package arbiter

import (
	"fmt"

	"github.com/ehtshamulhassan-lm/arbsim/bitvec"
)

// MaxPayloadBits is the widest supported payload. Payloads are carried
// as uint64 values truncated to the configured width.
const MaxPayloadBits = 64

// Decision is the per-cycle output bundle of Arbitrate.
type Decision struct {
	// Valid is true iff any requester asked this cycle, regardless of
	// masking or consumer readiness.
	Valid bool
	// WinnerIndex is the index of the selected requester. Zero when
	// Valid is false.
	WinnerIndex int
	// WinnerPayload is the winner's payload truncated to the configured
	// width. Zero when Valid is false.
	WinnerPayload uint64
	// Grant has at most one bit set, identifying the winner. It is
	// all-zero whenever the consumer is not ready, even if Valid is
	// true.
	Grant *bitvec.Vector
}

// Statistics holds arbitration counters accumulated across cycles.
type Statistics struct {
	// Cycles is the total number of Arbitrate calls.
	Cycles uint64
	// Grants is the number of cycles where a winner retired (valid and
	// consumer ready).
	Grants uint64
	// Retries is the number of cycles where a winner was selected but
	// the consumer could not accept it.
	Retries uint64
	// IdleCycles is the number of cycles with no pending request.
	IdleCycles uint64
	// GrantCounts is the number of retired grants per requester.
	GrantCounts []uint64
}

// GrantRate returns the fraction of cycles that retired a grant.
func (s Statistics) GrantRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Grants) / float64(s.Cycles)
}

// Arbiter is an N-way round-robin arbiter. The priority mask is the only
// state carried across cycles.
//
// An Arbiter must be stepped by exactly one driver; Arbitrate is not
// safe for concurrent use on the same instance.
type Arbiter struct {
	n           int
	w           int
	payloadMask uint64

	// mask holds the rotation point: the position immediately above the
	// most recently retired winner, or the frozen prefix while a winner
	// waits for the consumer. All-zero means priority starts at index 0.
	mask *bitvec.Vector

	// Scratch vectors reused across cycles.
	eff    *bitvec.Vector
	prefix *bitvec.Vector
	winner *bitvec.Vector

	stats Statistics
}

// New creates an arbiter for n requesters carrying w-bit payloads. The
// priority mask starts all-zero, so the first arbitration falls back to
// lowest-index-wins over the full request set.
func New(n, w int) (*Arbiter, error) {
	if n < 1 {
		return nil, fmt.Errorf("arbiter: number of requesters must be >= 1, got %d", n)
	}
	if w < 1 || w > MaxPayloadBits {
		return nil, fmt.Errorf("arbiter: payload width must be in [1, %d], got %d", MaxPayloadBits, w)
	}

	payloadMask := ^uint64(0)
	if w < MaxPayloadBits {
		payloadMask = 1<<w - 1
	}

	return &Arbiter{
		n:           n,
		w:           w,
		payloadMask: payloadMask,
		mask:        bitvec.New(n),
		eff:         bitvec.New(n),
		prefix:      bitvec.New(n),
		winner:      bitvec.New(n),
		stats:       Statistics{GrantCounts: make([]uint64, n)},
	}, nil
}

// N returns the number of requesters.
func (a *Arbiter) N() int { return a.n }

// W returns the payload width in bits.
func (a *Arbiter) W() int { return a.w }

// Mask returns a copy of the current priority mask.
func (a *Arbiter) Mask() *bitvec.Vector {
	return a.mask.Clone()
}

// Stats returns a snapshot of the arbitration counters.
func (a *Arbiter) Stats() Statistics {
	s := a.stats
	s.GrantCounts = make([]uint64, a.n)
	copy(s.GrantCounts, a.stats.GrantCounts)
	return s
}

// Reset clears the priority mask and all counters, returning the
// arbiter to its just-constructed state.
func (a *Arbiter) Reset() {
	a.mask.Zero()
	a.stats = Statistics{GrantCounts: make([]uint64, a.n)}
}

// Arbitrate runs one arbitration cycle.
//
// requests bit i means requester i has a pending request; payloads[i]
// is only read when that bit is set. consumerReady gates the grant, not
// the selection: when false, the winner is still computed and the mask
// freezes so the same requester wins the retry next cycle.
//
// Arbitrate panics if requests or payloads do not match the configured
// requester count.
func (a *Arbiter) Arbitrate(requests *bitvec.Vector, payloads []uint64, consumerReady bool) Decision {
	if requests.Len() != a.n {
		panic(fmt.Sprintf("arbiter: request set is %d bits, arbiter has %d requesters",
			requests.Len(), a.n))
	}
	if len(payloads) != a.n {
		panic(fmt.Sprintf("arbiter: payload array has %d entries, arbiter has %d requesters",
			len(payloads), a.n))
	}

	a.stats.Cycles++

	if a.n == 1 {
		return a.arbitrateSingle(requests, payloads, consumerReady)
	}

	// Restrict competition to the masked requesters; if none of them
	// is asking, the rotation has wrapped and the full set competes.
	a.eff.CopyFrom(a.mask)
	a.eff.And(requests)
	if !a.eff.Any() {
		a.eff.CopyFrom(requests)
	}

	a.prefix.CopyFrom(a.eff)
	a.prefix.PrefixOR()

	a.winner.CopyFrom(a.eff)
	a.winner.IsolateLowest()

	valid := requests.Any()
	d := Decision{
		Valid: valid,
		Grant: bitvec.New(a.n),
	}
	if valid {
		d.WinnerIndex = a.winner.FirstSet()
		d.WinnerPayload = payloads[d.WinnerIndex] & a.payloadMask
		if consumerReady {
			d.Grant.CopyFrom(a.winner)
		}
	}

	a.updateMask(d, consumerReady)
	return d
}

// arbitrateSingle handles the degenerate one-requester case, where the
// mask plays no role.
func (a *Arbiter) arbitrateSingle(requests *bitvec.Vector, payloads []uint64, consumerReady bool) Decision {
	valid := requests.Test(0)
	d := Decision{
		Valid: valid,
		Grant: bitvec.New(1),
	}
	if valid {
		d.WinnerPayload = payloads[0] & a.payloadMask
		if consumerReady {
			d.Grant.Set(0)
			a.stats.Grants++
			a.stats.GrantCounts[0]++
		} else {
			a.stats.Retries++
		}
	} else {
		a.stats.IdleCycles++
	}
	return d
}

// updateMask applies the per-cycle mask transition.
func (a *Arbiter) updateMask(d Decision, consumerReady bool) {
	switch {
	case d.Valid && consumerReady:
		// A winner retired: the position above it becomes the new
		// rotation start, making the winner lowest priority next round.
		a.mask.CopyFrom(a.winner)
		a.mask.RotateLeft1()
		a.stats.Grants++
		a.stats.GrantCounts[d.WinnerIndex]++
	case d.Valid:
		// The consumer stalled. Freezing the mask at the un-shifted
		// prefix keeps the same winner for the retry while leaving the
		// window open to every index from the winner upward.
		a.mask.CopyFrom(a.prefix)
		a.stats.Retries++
	default:
		// Nobody asked; the mask holds.
		a.stats.IdleCycles++
	}
}
