// Package main provides the entry point for arbsim.
// arbsim runs an N-way fair arbiter against a synthetic workload and
// reports arbitration, fairness, and consumer statistics.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ehtshamulhassan-lm/arbsim/timing/fabric"
)

var (
	configPath  = flag.String("config", "", "Path to fabric configuration JSON file")
	requesters  = flag.Int("n", 0, "Number of requesters (overrides config)")
	payloadBits = flag.Int("w", 0, "Payload width in bits (overrides config)")
	cycles      = flag.Uint64("cycles", 0, "Number of cycles to simulate (overrides config)")
	seed        = flag.Uint64("seed", 0, "Arrival process seed (overrides config)")
	arrival     = flag.Float64("p", -1, "Per-cycle arrival probability (overrides config)")
	alwaysReady = flag.Bool("ready", false, "Use a consumer with no backpressure")
	dumpConfig  = flag.String("dump-config", "", "Write the effective configuration to a JSON file and exit")
	verbose     = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(config)

	if *dumpConfig != "" {
		if err := config.SaveConfig(*dumpConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, or falls back to defaults.
func loadConfig() (*fabric.Config, error) {
	if *configPath == "" {
		return fabric.DefaultConfig(), nil
	}
	return fabric.LoadConfig(*configPath)
}

// applyOverrides folds command-line flags into the configuration.
func applyOverrides(config *fabric.Config) {
	if *requesters > 0 {
		config.NumRequesters = *requesters
	}
	if *payloadBits > 0 {
		config.PayloadBits = *payloadBits
	}
	if *cycles > 0 {
		config.Cycles = *cycles
	}
	if *seed > 0 {
		config.Seed = *seed
	}
	if *arrival >= 0 {
		config.ArrivalProbability = *arrival
	}
	if *alwaysReady {
		config.AlwaysReady = true
	}
}

// run executes the configured fabric and prints the report.
func run(config *fabric.Config) error {
	f, bank, err := config.Build()
	if err != nil {
		return err
	}

	if *verbose {
		fmt.Printf("Requesters: %d\n", config.NumRequesters)
		fmt.Printf("Payload width: %d bits\n", config.PayloadBits)
		fmt.Printf("Cycles: %d\n", config.Cycles)
		fmt.Printf("Arrival probability: %g\n", config.ArrivalProbability)
		fmt.Printf("Seed: %d\n", config.Seed)
	}

	f.Run(config.Cycles)

	stats := f.Stats()
	arbStats := f.ArbiterStats()

	fmt.Printf("\n")
	fmt.Printf("Cycles:        %d\n", stats.Cycles)
	fmt.Printf("Offered:       %d\n", stats.Offered)
	fmt.Printf("Dropped:       %d\n", stats.Dropped)
	fmt.Printf("Accepted:      %d\n", stats.Accepted)
	fmt.Printf("Retries:       %d\n", stats.Retries)
	fmt.Printf("Idle cycles:   %d\n", arbStats.IdleCycles)
	fmt.Printf("Grant rate:    %.3f grants/cycle\n", arbStats.GrantRate())

	fmt.Printf("\nPer requester:\n")
	fmt.Printf("  %-5s %10s %10s %10s %10s\n",
		"idx", "offered", "accepted", "dropped", "max wait")
	for i, per := range stats.PerRequester {
		fmt.Printf("  %-5d %10d %10d %10d %10d\n",
			i, per.Offered, per.Accepted, per.Dropped, per.MaxWait)
	}

	if bank != nil {
		sinkStats := bank.Stats()
		fmt.Printf("\nConsumer bank:\n")
		fmt.Printf("  Accepts:     %d\n", sinkStats.Accepts)
		fmt.Printf("  Hits:        %d\n", sinkStats.Hits)
		fmt.Printf("  Misses:      %d\n", sinkStats.Misses)
		fmt.Printf("  Evictions:   %d\n", sinkStats.Evictions)
		fmt.Printf("  Busy cycles: %d\n", sinkStats.BusyCycles)
	}

	return nil
}
