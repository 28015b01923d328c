package fabric_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ehtshamulhassan-lm/arbsim/timing/fabric"
	"github.com/ehtshamulhassan-lm/arbsim/timing/sink"
)

// recordingConsumer captures every accepted payload in order.
type recordingConsumer struct {
	indices  []int
	payloads []uint64
}

func (c *recordingConsumer) Ready() bool { return true }

func (c *recordingConsumer) Accept(index int, payload uint64) {
	c.indices = append(c.indices, index)
	c.payloads = append(c.payloads, payload)
}

func (c *recordingConsumer) Tick() {}

// stutterConsumer is ready only every other cycle.
type stutterConsumer struct {
	recordingConsumer
	cycle int
}

func (c *stutterConsumer) Ready() bool { return c.cycle%2 == 0 }

func (c *stutterConsumer) Tick() { c.cycle++ }

var _ = Describe("Fabric", func() {
	Describe("New", func() {
		It("should create a fabric with empty queues", func() {
			f, err := fabric.New(4, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.N()).To(Equal(4))
			for i := 0; i < 4; i++ {
				Expect(f.QueueLen(i)).To(Equal(0))
			}
		})

		It("should propagate arbiter construction errors", func() {
			_, err := fabric.New(0, 8)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enqueue", func() {
		It("should admit payloads up to the queue depth", func() {
			f, err := fabric.New(2, 8, fabric.WithQueueDepth(2))
			Expect(err).NotTo(HaveOccurred())

			Expect(f.Enqueue(0, 1)).To(BeTrue())
			Expect(f.Enqueue(0, 2)).To(BeTrue())
			Expect(f.Enqueue(0, 3)).To(BeFalse())
			Expect(f.QueueLen(0)).To(Equal(2))

			stats := f.Stats()
			Expect(stats.Offered).To(Equal(uint64(2)))
			Expect(stats.Dropped).To(Equal(uint64(1)))
		})
	})

	Describe("Tick", func() {
		It("should deliver queued payloads in FIFO order", func() {
			consumer := &recordingConsumer{}
			f, err := fabric.New(1, 16, fabric.WithConsumer(consumer))
			Expect(err).NotTo(HaveOccurred())

			f.Enqueue(0, 10)
			f.Enqueue(0, 11)
			f.Enqueue(0, 12)
			f.Run(3)

			Expect(consumer.payloads).To(Equal([]uint64{10, 11, 12}))
			Expect(f.QueueLen(0)).To(Equal(0))
		})

		It("should rotate grants among loaded requesters", func() {
			consumer := &recordingConsumer{}
			f, err := fabric.New(3, 16, fabric.WithConsumer(consumer))
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 3; i++ {
				f.Enqueue(i, uint64(100+i))
				f.Enqueue(i, uint64(200+i))
			}
			f.Run(6)

			Expect(consumer.indices).To(HaveLen(6))
			stats := f.Stats()
			for i := 0; i < 3; i++ {
				Expect(stats.PerRequester[i].Accepted).To(Equal(uint64(2)))
			}
		})

		It("should count retries while the consumer stalls", func() {
			consumer := &stutterConsumer{}
			f, err := fabric.New(2, 16, fabric.WithConsumer(consumer))
			Expect(err).NotTo(HaveOccurred())

			f.Enqueue(0, 1)
			f.Enqueue(1, 2)
			f.Run(4)

			// Cycle 1 retires requester 0, cycle 2 stalls requester 1,
			// cycle 3 retires it, cycle 4 is idle.
			Expect(consumer.payloads).To(Equal([]uint64{1, 2}))
			stats := f.Stats()
			Expect(stats.Accepted).To(Equal(uint64(2)))
			Expect(stats.Retries).To(Equal(uint64(1)))
		})

		It("should truncate payloads to the configured width", func() {
			consumer := &recordingConsumer{}
			f, err := fabric.New(1, 4, fabric.WithConsumer(consumer))
			Expect(err).NotTo(HaveOccurred())

			f.Enqueue(0, 0xFF)
			f.Run(1)
			Expect(consumer.payloads).To(Equal([]uint64{0xF}))
		})

		It("should track head-of-queue waiting time", func() {
			consumer := &stutterConsumer{}
			consumer.cycle = 1 // start not-ready
			f, err := fabric.New(1, 16, fabric.WithConsumer(consumer))
			Expect(err).NotTo(HaveOccurred())

			f.Enqueue(0, 7)
			f.Run(2)

			// Enqueued before cycle 1, stalled through it, granted in
			// cycle 2.
			stats := f.Stats()
			Expect(stats.Accepted).To(Equal(uint64(1)))
			Expect(stats.PerRequester[0].MaxWait).To(Equal(uint64(2)))
		})
	})

	Describe("Generated arrivals", func() {
		It("should produce identical runs for identical seeds", func() {
			run := func() (fabric.Statistics, sink.Statistics) {
				bank, err := sink.New(sink.DefaultConfig())
				Expect(err).NotTo(HaveOccurred())
				f, err := fabric.New(4, 32,
					fabric.WithConsumer(bank),
					fabric.WithSeed(42),
					fabric.WithArrivalProbability(0.2),
				)
				Expect(err).NotTo(HaveOccurred())
				f.Run(5000)
				return f.Stats(), bank.Stats()
			}

			fs1, ss1 := run()
			fs2, ss2 := run()
			Expect(fs1).To(Equal(fs2))
			Expect(ss1).To(Equal(ss2))
		})

		It("should deliver everything offered once drained", func() {
			f, err := fabric.New(4, 32,
				fabric.WithSeed(7),
				fabric.WithArrivalProbability(0.1),
			)
			Expect(err).NotTo(HaveOccurred())

			f.Run(2000)
			Expect(f.Drain(10000)).To(BeTrue())

			stats := f.Stats()
			Expect(stats.Accepted).To(Equal(stats.Offered - stats.Dropped))
		})

		It("should saturate to one grant per cycle under full load", func() {
			f, err := fabric.New(4, 32,
				fabric.WithSeed(9),
				fabric.WithArrivalProbability(1),
				fabric.WithQueueDepth(4),
			)
			Expect(err).NotTo(HaveOccurred())

			f.Run(1000)
			stats := f.Stats()
			Expect(stats.Accepted).To(Equal(uint64(1000)))

			// Round-robin keeps full-load grants within one of each other.
			counts := make([]uint64, 4)
			for i, per := range stats.PerRequester {
				counts[i] = per.Accepted
			}
			for i := 1; i < 4; i++ {
				diff := int64(counts[i]) - int64(counts[0])
				Expect(diff).To(BeNumerically("~", 0, 1))
			}
		})
	})

	Describe("Config", func() {
		It("should validate the default configuration", func() {
			Expect(fabric.DefaultConfig().Validate()).To(Succeed())
		})

		It("should reject invalid requester counts", func() {
			config := fabric.DefaultConfig()
			config.NumRequesters = 0
			Expect(config.Validate()).NotTo(Succeed())
		})

		It("should reject out-of-range arrival probabilities", func() {
			config := fabric.DefaultConfig()
			config.ArrivalProbability = 1.5
			Expect(config.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid sink configuration", func() {
			config := fabric.DefaultConfig()
			config.Sink.BlockSize = 0
			Expect(config.Validate()).NotTo(Succeed())
		})

		It("should skip sink validation when always ready", func() {
			config := fabric.DefaultConfig()
			config.Sink.BlockSize = 0
			config.AlwaysReady = true
			Expect(config.Validate()).To(Succeed())
		})

		It("should round-trip through JSON", func() {
			path := filepath.Join(GinkgoT().TempDir(), "fabric.json")

			config := fabric.DefaultConfig()
			config.NumRequesters = 16
			config.Seed = 99
			Expect(config.SaveConfig(path)).To(Succeed())

			loaded, err := fabric.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should fail to load a missing file", func() {
			_, err := fabric.LoadConfig("/nonexistent/fabric.json")
			Expect(err).To(HaveOccurred())
		})

		It("should build a fabric with a memory-bank sink", func() {
			config := fabric.DefaultConfig()
			config.Cycles = 100
			f, bank, err := config.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(f).NotTo(BeNil())
			Expect(bank).NotTo(BeNil())

			f.Run(config.Cycles)
			Expect(f.Stats().Cycles).To(Equal(uint64(100)))
		})

		It("should build an always-ready fabric without a sink", func() {
			config := fabric.DefaultConfig()
			config.AlwaysReady = true
			_, bank, err := config.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(bank).To(BeNil())
		})
	})
})
