package fabric

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zeebo/errs"

	"github.com/ehtshamulhassan-lm/arbsim/arbiter"
	"github.com/ehtshamulhassan-lm/arbsim/timing/sink"
)

// Config describes a complete fabric run and can be loaded from JSON.
type Config struct {
	// NumRequesters is the number of competing requesters.
	NumRequesters int `json:"num_requesters"`

	// PayloadBits is the payload width in bits (1..64).
	PayloadBits int `json:"payload_bits"`

	// Cycles is the number of cycles to simulate.
	Cycles uint64 `json:"cycles"`

	// Seed seeds the arrival process.
	Seed uint64 `json:"seed"`

	// ArrivalProbability is the per-cycle probability that a requester
	// produces a new payload.
	ArrivalProbability float64 `json:"arrival_probability"`

	// QueueDepth is the per-requester queue capacity.
	QueueDepth int `json:"queue_depth"`

	// AlwaysReady replaces the memory-bank sink with a consumer that
	// never exerts backpressure.
	AlwaysReady bool `json:"always_ready"`

	// Sink configures the memory-bank consumer.
	Sink sink.Config `json:"sink"`
}

// DefaultConfig returns a moderately loaded 8-requester run.
func DefaultConfig() *Config {
	return &Config{
		NumRequesters:      8,
		PayloadBits:        32,
		Cycles:             100000,
		Seed:               1,
		ArrivalProbability: 0.1,
		QueueDepth:         DefaultQueueDepth,
		Sink:               sink.DefaultConfig(),
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errs.Wrap(err)
	}
	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrap(err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.NumRequesters < 1 {
		return fmt.Errorf("fabric: num_requesters must be >= 1, got %d", c.NumRequesters)
	}
	if c.PayloadBits < 1 || c.PayloadBits > arbiter.MaxPayloadBits {
		return fmt.Errorf("fabric: payload_bits must be in [1, %d], got %d",
			arbiter.MaxPayloadBits, c.PayloadBits)
	}
	if c.ArrivalProbability < 0 || c.ArrivalProbability > 1 {
		return fmt.Errorf("fabric: arrival_probability must be in [0, 1], got %g",
			c.ArrivalProbability)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("fabric: queue_depth must be >= 1, got %d", c.QueueDepth)
	}
	if !c.AlwaysReady {
		if err := c.Sink.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Build assembles a fabric and its consumer from the configuration.
// The returned sink is nil when AlwaysReady is set.
func (c *Config) Build() (*Fabric, *sink.Sink, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	opts := []Option{
		WithSeed(c.Seed),
		WithArrivalProbability(c.ArrivalProbability),
		WithQueueDepth(c.QueueDepth),
	}

	var bank *sink.Sink
	if !c.AlwaysReady {
		var err error
		bank, err = sink.New(c.Sink)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithConsumer(bank))
	}

	f, err := New(c.NumRequesters, c.PayloadBits, opts...)
	if err != nil {
		return nil, nil, err
	}
	return f, bank, nil
}
