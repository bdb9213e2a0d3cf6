// Package main provides the o3iq command line driver. It builds the
// out-of-order backend, feeds it a synthetic dependence-heavy workload,
// and reports the instruction queue statistics.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/core"
	"github.com/sarchlab/o3iq/timing/fu"
	"github.com/sarchlab/o3iq/timing/iq"
)

var (
	iqConfigPath = flag.String("config", "", "Path to IQ configuration JSON file")
	fuConfigPath = flag.String("fu-config", "", "Path to FU pool configuration JSON file")
	numInsts     = flag.Uint64("insts", 10000, "Instructions to dispatch per thread")
	numCycles    = flag.Uint64("cycles", 1000000, "Maximum cycles to simulate")
	numThreads   = flag.Uint("threads", 0, "Override number of threads")
	seed         = flag.Int64("seed", 1, "Workload generation seed")
	verbose      = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	iqConfig := iq.DefaultConfig()
	if *iqConfigPath != "" {
		var err error
		iqConfig, err = iq.LoadConfig(*iqConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			atexit.Exit(1)
		}
	}
	if *numThreads > 0 {
		iqConfig.NumThreads = *numThreads
	}

	fuConfig := fu.DefaultConfig()
	if *fuConfigPath != "" {
		var err error
		fuConfig, err = fu.LoadConfig(*fuConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			atexit.Exit(1)
		}
	}

	backend, err := core.NewBackend(iqConfig, fuConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Register(func() { printStats(backend) })

	generateWorkload(backend, iqConfig, *numInsts, *seed)

	cycles, err := backend.Run(*numCycles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	if *verbose {
		fmt.Printf("Simulated %d cycles\n", cycles)
	}

	atexit.Exit(0)
}

// generateWorkload dispatches a pseudo-random mix of dependent ALU, FP
// and memory instructions for each thread. Registers are drawn from the
// whole integer or floating point physical register range, so dependence
// chains form where random picks repeat.
func generateWorkload(backend *core.Backend, config iq.Config, count uint64, seed int64) {
	rng := rand.New(rand.NewSource(seed))

	intRegs := int(config.NumPhysIntRegs)
	fpBase := intRegs
	fpRegs := int(config.NumPhysFloatRegs)

	seq := insts.SeqNum(1)
	for tid := 0; tid < int(config.NumThreads); tid++ {
		for i := uint64(0); i < count; i++ {
			var inst *insts.DynInst

			switch roll := rng.Intn(100); {
			case roll < 50:
				inst = insts.New(seq, tid, insts.IntALU,
					[]insts.PhysReg{randReg(rng, 0, intRegs), randReg(rng, 0, intRegs)},
					[]insts.PhysReg{randReg(rng, 0, intRegs)})
			case roll < 60:
				inst = insts.New(seq, tid, insts.IntMult,
					[]insts.PhysReg{randReg(rng, 0, intRegs), randReg(rng, 0, intRegs)},
					[]insts.PhysReg{randReg(rng, 0, intRegs)})
			case roll < 75:
				inst = insts.New(seq, tid, insts.FPAdd,
					[]insts.PhysReg{randReg(rng, fpBase, fpRegs), randReg(rng, fpBase, fpRegs)},
					[]insts.PhysReg{randReg(rng, fpBase, fpRegs)})
			case roll < 90:
				addr := uint64(rng.Intn(64)) * 8
				inst = insts.New(seq, tid, insts.MemRead,
					[]insts.PhysReg{randReg(rng, 0, intRegs)},
					[]insts.PhysReg{randReg(rng, 0, intRegs)})
				inst.PC = uint64(seq) * 4
				inst.ExecFn = func(d *insts.DynInst) { d.EffAddr = addr }
			default:
				addr := uint64(rng.Intn(64)) * 8
				inst = insts.New(seq, tid, insts.MemWrite,
					[]insts.PhysReg{randReg(rng, 0, intRegs), randReg(rng, 0, intRegs)},
					nil)
				inst.PC = uint64(seq) * 4
				inst.ExecFn = func(d *insts.DynInst) { d.EffAddr = addr }
			}

			backend.Dispatch(inst)
			seq++
		}
	}
}

func randReg(rng *rand.Rand, base, window int) insts.PhysReg {
	return insts.PhysReg(base + rng.Intn(window))
}

// printStats reports the run in the order the pipeline sees it: issue
// behavior first, then squash and memory ordering activity.
func printStats(backend *core.Backend) {
	stats := backend.Stats()
	iqStats := backend.Queue().Stats()

	fmt.Println("=== Backend ===")
	fmt.Printf("Cycles:            %d\n", stats.Cycles)
	fmt.Printf("Retired:           %d\n", stats.Retired)
	fmt.Printf("IPC:               %.3f\n", stats.IPC())
	fmt.Printf("Dispatch stalls:   %d\n", stats.DispatchStalls)
	fmt.Printf("Squashes:          %d\n", stats.Squashes)
	fmt.Printf("Violations:        %d\n", stats.Violations)

	fmt.Println("=== Instruction queue ===")
	fmt.Printf("Added:             %d (%d non-spec)\n",
		iqStats.InstsAdded, iqStats.NonSpecInstsAdded)
	fmt.Printf("Issued:            %d (rate %.3f)\n",
		iqStats.InstsIssued, iqStats.IssueRate(stats.Cycles))
	fmt.Printf("  Int:             %d\n", iqStats.IntInstsIssued)
	fmt.Printf("  FP:              %d\n", iqStats.FloatInstsIssued)
	fmt.Printf("  Branch:          %d\n", iqStats.BranchInstsIssued)
	fmt.Printf("  Mem:             %d\n", iqStats.MemInstsIssued)
	fmt.Printf("  Misc:            %d\n", iqStats.MiscInstsIssued)
	fmt.Printf("Squashed issued:   %d\n", iqStats.SquashedInstsIssued)
	fmt.Printf("Squash examined:   %d insts, %d operands\n",
		iqStats.SquashedInstsExamined, iqStats.SquashedOperandsExamined)
	fmt.Printf("FU busy rate:      %.3f\n", iqStats.FUBusyRate(stats.Cycles))
	fmt.Printf("Issued per cycle:  %.3f mean\n", iqStats.NIssued.Mean())

	for c := 0; c < insts.NumOpClasses; c++ {
		res := iqStats.QueueResidency[c]
		if res.Count == 0 {
			continue
		}
		fmt.Printf("  %-14s residency mean %.1f [%d, %d]\n",
			insts.OpClass(c), res.Mean(), res.Min, res.Max)
	}

	mduStats := backend.MemDep().Stats()
	fmt.Println("=== Memory dependence ===")
	fmt.Printf("Tracked:           %d (%d barriers)\n", mduStats.Inserts, mduStats.Barriers)
	fmt.Printf("Ordering edges:    %d\n", mduStats.Conflicts)
	fmt.Printf("Violations:        %d\n", mduStats.Violations)
}
