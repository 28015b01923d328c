// Package sink models the shared consumer that the arbiter grants
// access to. The sink behaves like a single-ported memory bank backed
// by Akita cache components: accepting a payload writes it into a
// per-requester slot, a directory hit keeps the bank available on the
// next cycle, and a miss keeps it busy for the configured miss latency.
// While the bank is busy the consumer is not ready and granted
// requesters must retry.
package sink

import (
	"encoding/binary"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds sink timing and capacity parameters.
type Config struct {
	// Size of the bank's cache in bytes.
	Size int `json:"size"`
	// Associativity (number of ways).
	Associativity int `json:"associativity"`
	// BlockSize in bytes (line size).
	BlockSize int `json:"block_size"`
	// SlotsPerRequester is the number of distinct lines a requester's
	// payloads spread across.
	SlotsPerRequester int `json:"slots_per_requester"`
	// HitLatency is the number of cycles the bank is occupied by an
	// accept that hits.
	HitLatency uint64 `json:"hit_latency"`
	// MissLatency is the number of cycles the bank is occupied by an
	// accept that misses.
	MissLatency uint64 `json:"miss_latency"`
}

// DefaultConfig returns a small single-bank configuration: with a hit
// latency of one cycle the bank accepts back-to-back grants as long as
// payloads stay within the cached working set.
func DefaultConfig() Config {
	return Config{
		Size:              4 * 1024,
		Associativity:     4,
		BlockSize:         64,
		SlotsPerRequester: 4,
		HitLatency:        1,
		MissLatency:       12,
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Associativity <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("sink: size, associativity, and block size must be > 0")
	}
	if c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("sink: size %d is not a multiple of associativity %d x block size %d",
			c.Size, c.Associativity, c.BlockSize)
	}
	if c.BlockSize < 8 {
		return fmt.Errorf("sink: block size must be at least 8 bytes, got %d", c.BlockSize)
	}
	if c.SlotsPerRequester <= 0 {
		return fmt.Errorf("sink: slots per requester must be > 0, got %d", c.SlotsPerRequester)
	}
	if c.HitLatency == 0 || c.MissLatency == 0 {
		return fmt.Errorf("sink: hit and miss latencies must be > 0")
	}
	return nil
}

// Statistics holds sink performance counters.
type Statistics struct {
	// Accepts is the number of payloads taken from the arbiter.
	Accepts uint64
	// Hits is the number of accepts that hit in the bank's cache.
	Hits uint64
	// Misses is the number of accepts that missed.
	Misses uint64
	// Evictions is the number of valid lines displaced by misses.
	Evictions uint64
	// BusyCycles is the number of cycles spent serving accepts.
	BusyCycles uint64
}

// Sink is a memory-bank consumer with cache-dependent occupancy.
type Sink struct {
	config Config

	// Akita cache directory for line state and LRU victim selection.
	directory *akitacache.DirectoryImpl

	// Line payload storage, indexed by setID*associativity + wayID.
	dataStore [][]byte

	// busy is the number of cycles before the bank can accept again.
	busy uint64

	stats Statistics
}

// New creates a sink with the given configuration.
func New(config Config) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity
	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Sink{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
	}, nil
}

// Config returns the sink configuration.
func (s *Sink) Config() Config {
	return s.config
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() Statistics {
	return s.stats
}

// Ready reports whether the bank can accept a payload this cycle.
func (s *Sink) Ready() bool {
	return s.busy == 0
}

// slotAddr maps a requester and payload to the line holding it. Each
// requester owns a contiguous run of SlotsPerRequester lines; the
// payload value selects the line within the run.
func (s *Sink) slotAddr(index int, payload uint64) uint64 {
	slots := uint64(s.config.SlotsPerRequester)
	base := uint64(index) * slots * uint64(s.config.BlockSize)
	return base + (payload%slots)*uint64(s.config.BlockSize)
}

func (s *Sink) blockIndex(block *akitacache.Block) int {
	return block.SetID*s.config.Associativity + block.WayID
}

// Accept stores a granted payload into the requester's slot and
// occupies the bank for the hit or miss latency. The caller must not
// call Accept while Ready reports false; doing so panics.
func (s *Sink) Accept(index int, payload uint64) {
	if s.busy != 0 {
		panic("sink: accept while the bank is busy")
	}

	s.stats.Accepts++
	addr := s.slotAddr(index, payload)

	block := s.directory.Lookup(0, addr)
	if block != nil && block.IsValid {
		s.stats.Hits++
		s.directory.Visit(block)
		binary.LittleEndian.PutUint64(s.dataStore[s.blockIndex(block)], payload)
		block.IsDirty = true
		s.busy = s.config.HitLatency
		return
	}

	s.stats.Misses++
	victim := s.directory.FindVictim(addr)
	if victim == nil {
		// Cannot happen with a validated configuration.
		s.busy = s.config.MissLatency
		return
	}
	if victim.IsValid {
		s.stats.Evictions++
	}
	line := s.dataStore[s.blockIndex(victim)]
	for i := range line {
		line[i] = 0
	}
	binary.LittleEndian.PutUint64(line, payload)
	victim.Tag = addr
	victim.IsValid = true
	victim.IsDirty = true
	s.directory.Visit(victim)
	s.busy = s.config.MissLatency
}

// Tick advances the bank by one cycle, counting down any in-flight
// accept. Drivers call it once per cycle, after arbitration.
func (s *Sink) Tick() {
	if s.busy > 0 {
		s.busy--
		s.stats.BusyCycles++
	}
}

// Peek returns the payload last stored in the line a requester/payload
// pair maps to, and whether that line is resident.
func (s *Sink) Peek(index int, payload uint64) (uint64, bool) {
	addr := s.slotAddr(index, payload)
	block := s.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		return 0, false
	}
	return binary.LittleEndian.Uint64(s.dataStore[s.blockIndex(block)]), true
}

// AlwaysReady is a consumer with no backpressure. It satisfies the same
// contract as Sink and simply counts accepted payloads.
type AlwaysReady struct {
	// Accepts is the number of payloads taken.
	Accepts uint64
}

// Ready always reports true.
func (c *AlwaysReady) Ready() bool { return true }

// Accept counts the payload and discards it.
func (c *AlwaysReady) Accept(index int, payload uint64) { c.Accepts++ }

// Tick is a no-op.
func (c *AlwaysReady) Tick() {}
