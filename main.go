// Package main provides the entry point banner for arbsim.
// arbsim is an N-way fair round-robin arbiter with a cycle-accurate
// arbitration fabric simulation.
//
// For the full CLI, use: go run ./cmd/arbsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("arbsim - N-way fair arbiter simulator")
	fmt.Println("")
	fmt.Println("Usage: arbsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to fabric configuration JSON file")
	fmt.Println("  -n         Number of requesters")
	fmt.Println("  -cycles    Number of cycles to simulate")
	fmt.Println("  -ready     Use a consumer with no backpressure")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/arbsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/arbsim' instead.")
	}
}
