package sink_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ehtshamulhassan-lm/arbsim/timing/sink"
)

var _ = Describe("Sink", func() {
	var (
		s      *sink.Sink
		config sink.Config
	)

	BeforeEach(func() {
		config = sink.Config{
			Size:              1024,
			Associativity:     2,
			BlockSize:         64,
			SlotsPerRequester: 4,
			HitLatency:        1,
			MissLatency:       10,
		}
		var err error
		s, err = sink.New(config)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("should reject a size that does not divide into sets", func() {
			config.Size = 1000
			_, err := sink.New(config)
			Expect(err).To(HaveOccurred())
		})

		It("should reject zero latencies", func() {
			config.MissLatency = 0
			_, err := sink.New(config)
			Expect(err).To(HaveOccurred())
		})

		It("should reject blocks too small for a payload", func() {
			config.BlockSize = 4
			_, err := sink.New(config)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Accept", func() {
		It("should start ready", func() {
			Expect(s.Ready()).To(BeTrue())
		})

		It("should miss on a cold bank and stay busy for the miss latency", func() {
			s.Accept(0, 42)

			stats := s.Stats()
			Expect(stats.Accepts).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))

			// Busy for MissLatency cycles counting the accept cycle.
			for i := uint64(0); i < config.MissLatency-1; i++ {
				s.Tick()
				Expect(s.Ready()).To(BeFalse())
			}
			s.Tick()
			Expect(s.Ready()).To(BeTrue())
		})

		It("should hit on a resident slot", func() {
			s.Accept(0, 42)
			for !s.Ready() {
				s.Tick()
			}

			// Same requester, same slot (42 % 4 == 2).
			s.Accept(0, 42)
			stats := s.Stats()
			Expect(stats.Hits).To(Equal(uint64(1)))

			s.Tick()
			Expect(s.Ready()).To(BeTrue())
		})

		It("should store the payload in the requester's slot", func() {
			s.Accept(3, 7)
			value, resident := s.Peek(3, 7)
			Expect(resident).To(BeTrue())
			Expect(value).To(Equal(uint64(7)))
		})

		It("should keep slots of different requesters separate", func() {
			s.Accept(0, 1)
			for !s.Ready() {
				s.Tick()
			}
			s.Accept(1, 1)

			value, resident := s.Peek(0, 1)
			Expect(resident).To(BeTrue())
			Expect(value).To(Equal(uint64(1)))
			_, resident = s.Peek(2, 1)
			Expect(resident).To(BeFalse())
		})

		It("should panic when accepting while busy", func() {
			s.Accept(0, 1)
			Expect(s.Ready()).To(BeFalse())
			Expect(func() { s.Accept(0, 2) }).To(Panic())
		})

		It("should count busy cycles", func() {
			s.Accept(0, 1)
			for !s.Ready() {
				s.Tick()
			}
			Expect(s.Stats().BusyCycles).To(Equal(config.MissLatency))
		})
	})

	Describe("AlwaysReady", func() {
		It("should accept everything without backpressure", func() {
			c := &sink.AlwaysReady{}
			for i := 0; i < 100; i++ {
				Expect(c.Ready()).To(BeTrue())
				c.Accept(i%4, uint64(i))
				c.Tick()
			}
			Expect(c.Accepts).To(Equal(uint64(100)))
		})
	})
})
