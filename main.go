// Package main provides the entry point for o3iq.
// o3iq is a cycle-accurate out-of-order instruction queue simulator
// built on Akita.
//
// For the full CLI, use: go run ./cmd/o3iq
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("o3iq - Out-of-Order Instruction Queue Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: o3iq [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config     Path to IQ configuration JSON file")
	fmt.Println("  -fu-config  Path to FU pool configuration JSON file")
	fmt.Println("  -insts      Instructions to dispatch per thread")
	fmt.Println("  -cycles     Maximum cycles to simulate")
	fmt.Println("  -threads    Override number of threads")
	fmt.Println("  -v          Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/o3iq' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/o3iq' instead.")
	}
}
