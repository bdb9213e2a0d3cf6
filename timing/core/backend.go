// Package core assembles the out-of-order backend: the instruction
// queue, the function unit pool, the memory dependence unit, and the time
// buffers between them, all driven by one akita event engine.
//
// The execute and commit sides are deliberately thin: issued instructions
// run their callbacks when their issue bundle arrives, retire in program
// order, and store→load ordering is checked against effective addresses.
// That is enough to close the loop around the queue for simulation and
// end-to-end tests.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/fu"
	"github.com/sarchlab/o3iq/timing/iq"
	"github.com/sarchlab/o3iq/timing/memdep"
	"github.com/sarchlab/o3iq/timing/timebuf"
)

// Stats holds backend-level counters. Queue-level counters live in the
// instruction queue's own statistics.
type Stats struct {
	// Cycles is the number of cycles simulated.
	Cycles uint64
	// Retired is the number of instructions retired in program order.
	Retired uint64
	// Squashes is the number of commit-initiated squashes.
	Squashes uint64
	// Violations is the number of store→load ordering violations caught.
	Violations uint64
	// DispatchStalls counts dispatch attempts rejected by a full queue.
	DispatchStalls uint64
}

// IPC returns retired instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Retired) / float64(s.Cycles)
}

// Backend is the assembled out-of-order execution backend.
type Backend struct {
	engine sim.Engine
	freq   sim.Freq
	ticker *sim.TickScheduler

	queue *iq.InstructionQueue
	pool  *fu.Pool
	mdu   *memdep.Unit

	issueToExec *timebuf.TimeBuffer[iq.IssueBundle]
	commitBuf   *timebuf.TimeBuffer[iq.CommitSignal]

	issueToExecDelay int
	dispatchWidth    uint

	pending   [iq.MaxThreads][]*insts.DynInst
	rob       [iq.MaxThreads][]*insts.DynInst
	liveLoads [iq.MaxThreads][]*insts.DynInst

	// nonSpecSignaled remembers the youngest non-spec release already
	// sent per thread, so the head is signaled once.
	nonSpecSignaled [iq.MaxThreads]insts.SeqNum

	stopCycle uint64
	stats     Stats
}

// NewBackend builds a backend from the queue and pool configurations.
func NewBackend(iqConfig iq.Config, fuConfig fu.Config) (*Backend, error) {
	engine := sim.NewSerialEngine()

	pool, err := fu.NewPool(fuConfig)
	if err != nil {
		return nil, err
	}

	delay := int(iqConfig.CommitToIEWDelay)
	if delay < 1 {
		delay = 1
	}

	b := &Backend{
		engine:           engine,
		freq:             1 * sim.GHz,
		pool:             pool,
		mdu:              memdep.NewUnit(memdep.DefaultPredictorConfig()),
		issueToExec:      timebuf.New[iq.IssueBundle](1, 0),
		commitBuf:        timebuf.New[iq.CommitSignal](delay, 0),
		issueToExecDelay: 1,
		dispatchWidth:    iqConfig.TotalWidth,
	}

	queue, err := iq.New(iqConfig, pool, engine, engine,
		iq.WithMemDep(b.mdu),
		iq.WithFreq(b.freq),
		iq.WithIssueBuffer(b.issueToExec),
		iq.WithCommitWire(b.commitBuf.Wire(-delay)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build instruction queue: %w", err)
	}
	b.mdu.SetWakeup(queue)
	b.queue = queue

	b.ticker = sim.NewSecondaryTickScheduler(b, engine, b.freq)

	return b, nil
}

// Queue returns the instruction queue.
func (b *Backend) Queue() *iq.InstructionQueue { return b.queue }

// Pool returns the function unit pool.
func (b *Backend) Pool() *fu.Pool { return b.pool }

// MemDep returns the memory dependence unit.
func (b *Backend) MemDep() *memdep.Unit { return b.mdu }

// Stats returns the backend counters.
func (b *Backend) Stats() Stats { return b.stats }

// Dispatch hands an instruction to the backend's dispatch stage. It
// enters the queue in a later cycle, subject to queue capacity.
func (b *Backend) Dispatch(inst *insts.DynInst) {
	b.pending[inst.ThreadID] = append(b.pending[inst.ThreadID], inst)
}

// Run simulates up to the given number of cycles, or until the backend
// drains. Returns the number of cycles actually simulated.
func (b *Backend) Run(cycles uint64) (uint64, error) {
	b.stopCycle = b.freq.Cycle(b.engine.CurrentTime()) + cycles
	b.ticker.TickLater()
	if err := b.engine.Run(); err != nil {
		return b.stats.Cycles, fmt.Errorf("engine error: %w", err)
	}
	return b.stats.Cycles, nil
}

// Handle runs one backend cycle per tick event.
func (b *Backend) Handle(e sim.Event) error {
	switch e.(type) {
	case sim.TickEvent:
		b.tick()
	}
	return nil
}

func (b *Backend) tick() {
	b.stats.Cycles++

	b.queue.ProcessCommitSignals()
	b.dispatch()
	b.queue.ScheduleReadyInsts()
	b.execute()
	b.retire()

	b.issueToExec.Advance()
	b.commitBuf.Advance()

	if b.busy() && b.freq.Cycle(b.engine.CurrentTime()) < b.stopCycle {
		b.ticker.TickLater()
	}
}

// busy reports whether any work remains in flight, including commit and
// squash signals the queue has not consumed yet.
func (b *Backend) busy() bool {
	for tid := range b.pending {
		if len(b.pending[tid]) > 0 || len(b.rob[tid]) > 0 {
			return true
		}
	}
	return b.queue.HasReadyInsts() || b.queue.NumInFlight() > 0
}

// dispatch inserts pending instructions, up to the dispatch width per
// thread, stalling the thread when the queue rejects one. Stores,
// barriers and instructions pre-marked non-speculative take the gated
// insert paths.
func (b *Backend) dispatch() {
	for tid := range b.pending {
		inserted := uint(0)
		for len(b.pending[tid]) > 0 && inserted < b.dispatchWidth {
			inst := b.pending[tid][0]

			var err error
			switch {
			case inst.IsMemBarrier():
				err = b.queue.InsertBarrier(inst)
			case inst.NonSpec() || inst.IsStore():
				err = b.queue.InsertNonSpec(inst)
			default:
				err = b.queue.Insert(inst)
			}
			if err != nil {
				b.stats.DispatchStalls++
				break
			}

			b.pending[tid] = b.pending[tid][1:]
			b.rob[tid] = append(b.rob[tid], inst)
			inserted++
		}
	}
}

// execute drains the issue bundle arriving this cycle, running each
// instruction's callback and checking stores against younger loads that
// already executed.
func (b *Backend) execute() {
	bundle := b.issueToExec.Access(-b.issueToExecDelay)
	for _, inst := range bundle.Insts {
		if inst.Squashed() {
			continue
		}

		inst.Execute()

		if inst.IsLoad() {
			b.liveLoads[inst.ThreadID] = append(b.liveLoads[inst.ThreadID], inst)
		}
		if inst.IsStore() {
			b.checkViolation(inst)
		}
	}
}

// checkViolation finds executed, unretired loads younger than the store
// that read the store's address. Such a load consumed a stale value; the
// violation is reported and everything from the load on is squashed.
func (b *Backend) checkViolation(store *insts.DynInst) {
	tid := store.ThreadID

	var victim *insts.DynInst
	for _, load := range b.liveLoads[tid] {
		if load.Squashed() || load.SeqNum <= store.SeqNum {
			continue
		}
		if load.EffAddr != store.EffAddr {
			continue
		}
		if victim == nil || load.SeqNum < victim.SeqNum {
			victim = load
		}
	}
	if victim == nil {
		return
	}

	b.stats.Violations++
	b.queue.Violation(store, victim)
	b.squashFrom(victim.SeqNum-1, tid)
}

// squashFrom raises a commit squash at the given boundary and flushes the
// backend's own program-order state above it.
func (b *Backend) squashFrom(boundary insts.SeqNum, tid int) {
	sig := b.commitBuf.Access(0)
	sig.Squash[tid] = true
	sig.SquashSeqNum[tid] = boundary
	b.stats.Squashes++

	rob := b.rob[tid]
	for len(rob) > 0 && rob[len(rob)-1].SeqNum > boundary {
		rob = rob[:len(rob)-1]
	}
	b.rob[tid] = rob

	loads := b.liveLoads[tid][:0]
	for _, load := range b.liveLoads[tid] {
		if load.SeqNum <= boundary {
			loads = append(loads, load)
		}
	}
	b.liveLoads[tid] = loads

	pending := b.pending[tid][:0]
	for _, inst := range b.pending[tid] {
		if inst.SeqNum <= boundary {
			pending = append(pending, inst)
		}
	}
	b.pending[tid] = pending
}

// retire drains executed instructions from the head of each thread's
// program order, publishing the done sequence number on the commit
// buffer. A non-speculative instruction reaching the head gets its
// release signal instead.
func (b *Backend) retire() {
	sig := b.commitBuf.Access(0)

	for tid := range b.rob {
		var done insts.SeqNum
		for len(b.rob[tid]) > 0 {
			head := b.rob[tid][0]

			if head.Squashed() {
				b.rob[tid] = b.rob[tid][1:]
				continue
			}

			if head.NonSpec() && !head.SpecCleared() {
				if b.nonSpecSignaled[tid] < head.SeqNum {
					sig.ScheduleNonSpec[tid] = true
					sig.NonSpecSeqNum[tid] = head.SeqNum
					b.nonSpecSignaled[tid] = head.SeqNum
				}
				break
			}

			if !head.Executed() {
				break
			}

			done = head.SeqNum
			b.rob[tid] = b.rob[tid][1:]
			b.stats.Retired++
		}

		if done > 0 {
			sig.DoneSeqNum[tid] = done
			b.retireLoads(tid, done)
		}
	}
}

// retireLoads drops retired loads from the violation window.
func (b *Backend) retireLoads(tid int, done insts.SeqNum) {
	loads := b.liveLoads[tid][:0]
	for _, load := range b.liveLoads[tid] {
		if load.SeqNum > done {
			loads = append(loads, load)
		}
	}
	b.liveLoads[tid] = loads
}
