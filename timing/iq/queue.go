// Package iq implements the instruction queue of the out-of-order
// backend. The queue holds renamed instructions after dispatch, tracks
// their register dependences, and each cycle issues the oldest ready
// instructions across op classes into the issue→execute time buffer.
package iq

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/memdep"
	"github.com/sarchlab/o3iq/timing/timebuf"
)

// ErrFull is returned by the insert family when the sharing policy rejects
// the instruction. The caller is expected to stall dispatch; no queue state
// is modified.
var ErrFull = errors.New("instruction queue full")

// FUPool is the function unit allocator the scheduler draws from.
type FUPool interface {
	// GetUnit allocates a free unit for the class, returning the unit
	// index, result latency, whether the unit is pipelined, and success.
	GetUnit(class insts.OpClass) (idx int, latency uint64, pipelined bool, ok bool)

	// FreeUnit returns a unit to the pool.
	FreeUnit(idx int)

	// FreeUnitsOf returns the number of free units for the class.
	FreeUnitsOf(class insts.OpClass) int

	// HasUnitsFor reports whether any unit executes the class.
	HasUnitsFor(class insts.OpClass) bool
}

// MemDep is the memory dependence unit the queue collaborates with for
// ordering of loads, stores and barriers.
type MemDep interface {
	Insert(inst *insts.DynInst)
	InsertNonSpec(inst *insts.DynInst)
	InsertBarrier(inst *insts.DynInst)
	RegsReady(inst *insts.DynInst)
	Reschedule(inst *insts.DynInst)
	Replay(inst *insts.DynInst)
	Completed(inst *insts.DynInst)
	CompleteBarrier(inst *insts.DynInst)
	Squash(seqNum insts.SeqNum, tid int)
	Violation(store, load *insts.DynInst)
}

// nonSpecItem keys the non-spec table by sequence number.
type nonSpecItem struct {
	seq  insts.SeqNum
	inst *insts.DynInst
}

// Less orders items by sequence number.
func (it nonSpecItem) Less(other btree.Item) bool {
	return it.seq < other.(nonSpecItem).seq
}

// InstructionQueue holds in-flight instructions between dispatch and
// execute and decides, cycle by cycle, which of them issue.
type InstructionQueue struct {
	config Config
	policy Policy

	scheduler  sim.EventScheduler
	timeTeller sim.TimeTeller
	freq       sim.Freq

	fuPool FUPool
	memDep MemDep

	issueToExec *timebuf.TimeBuffer[IssueBundle]
	commitWire  *timebuf.Wire[CommitSignal]

	graph         *dependGraph
	regScoreboard []bool

	readyQueues [insts.NumOpClasses]readyQueue
	listOrder   []listOrderEntry
	queueOnList [insts.NumOpClasses]bool

	nonSpecInsts *btree.BTree

	instList [MaxThreads][]*insts.DynInst

	freeEntries   uint
	count         [MaxThreads]uint
	maxEntries    [MaxThreads]uint
	activeThreads []int

	squashedSeqNum [MaxThreads]insts.SeqNum
	squashing      [MaxThreads]bool

	tailSeq [MaxThreads]insts.SeqNum

	stats Statistics
}

// Option configures optional collaborators of the queue.
type Option func(*InstructionQueue)

// WithMemDep installs a memory dependence unit. Without this option the
// queue builds a default memdep.Unit.
func WithMemDep(md MemDep) Option {
	return func(q *InstructionQueue) {
		q.memDep = md
	}
}

// WithFreq sets the clock frequency used to convert latencies into event
// times. Default is 1 GHz.
func WithFreq(f sim.Freq) Option {
	return func(q *InstructionQueue) {
		q.freq = f
	}
}

// WithIssueBuffer installs the issue→execute time buffer shared with the
// execute stage.
func WithIssueBuffer(buf *timebuf.TimeBuffer[IssueBundle]) Option {
	return func(q *InstructionQueue) {
		q.issueToExec = buf
	}
}

// WithCommitWire installs the backwards wire carrying commit signals. The
// wire's offset encodes the commit→IQ delay.
func WithCommitWire(w timebuf.Wire[CommitSignal]) Option {
	return func(q *InstructionQueue) {
		wire := w
		q.commitWire = &wire
	}
}

// WithActiveThreads sets the initially active thread list. Default is
// threads [0, NumThreads).
func WithActiveThreads(tids []int) Option {
	return func(q *InstructionQueue) {
		q.activeThreads = append([]int(nil), tids...)
	}
}

// New creates an InstructionQueue. The pool supplies function units; the
// scheduler and time teller (typically one engine) drive FU completion
// events.
func New(
	config Config,
	pool FUPool,
	scheduler sim.EventScheduler,
	timeTeller sim.TimeTeller,
	opts ...Option,
) (*InstructionQueue, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid IQ config: %w", err)
	}

	policy, _ := ParsePolicy(config.Policy)

	q := &InstructionQueue{
		config:        config,
		policy:        policy,
		scheduler:     scheduler,
		timeTeller:    timeTeller,
		freq:          1 * sim.GHz,
		fuPool:        pool,
		graph:         newDependGraph(config.NumPhysRegs()),
		regScoreboard: make([]bool, config.NumPhysRegs()),
		nonSpecInsts:  btree.New(2),
		freeEntries:   config.NumEntries,
	}

	// Every register starts with a defined value.
	for i := range q.regScoreboard {
		q.regScoreboard[i] = true
	}

	for _, opt := range opts {
		opt(q)
	}

	if q.memDep == nil {
		unit := memdep.NewUnit(memdep.DefaultPredictorConfig())
		unit.SetWakeup(q)
		q.memDep = unit
	}
	if q.issueToExec == nil {
		q.issueToExec = timebuf.New[IssueBundle](4, 0)
	}
	if q.activeThreads == nil {
		for tid := 0; tid < int(config.NumThreads); tid++ {
			q.activeThreads = append(q.activeThreads, tid)
		}
	}

	q.ResetEntries()

	return q, nil
}

// Config returns the queue configuration.
func (q *InstructionQueue) Config() Config { return q.config }

// Stats returns a copy of the queue counters.
func (q *InstructionQueue) Stats() Statistics { return q.stats }

// IssueBuffer returns the issue→execute time buffer.
func (q *InstructionQueue) IssueBuffer() *timebuf.TimeBuffer[IssueBundle] {
	return q.issueToExec
}

// cycle returns the current cycle number.
func (q *InstructionQueue) cycle() uint64 {
	return q.freq.Cycle(q.timeTeller.CurrentTime())
}

// isZeroReg reports whether r is the always-zero register.
func (q *InstructionQueue) isZeroReg(r insts.PhysReg) bool {
	return q.config.ZeroReg >= 0 && r == insts.PhysReg(q.config.ZeroReg)
}

//
// Entry accounting and SMT policy
//

// NumFreeEntries returns the global free entry count.
func (q *InstructionQueue) NumFreeEntries() uint { return q.freeEntries }

// NumFreeEntriesForThread returns how many more instructions the thread
// may insert under its cap.
func (q *InstructionQueue) NumFreeEntriesForThread(tid int) uint {
	if q.count[tid] >= q.maxEntries[tid] {
		return 0
	}
	headroom := q.maxEntries[tid] - q.count[tid]
	if headroom > q.freeEntries {
		return q.freeEntries
	}
	return headroom
}

// Count returns the number of unissued instructions the thread holds.
func (q *InstructionQueue) Count(tid int) uint { return q.count[tid] }

// IsFull reports whether the queue has no free entries at all.
func (q *InstructionQueue) IsFull() bool { return q.freeEntries == 0 }

// IsFullForThread reports whether the thread may not insert another
// instruction under the sharing policy.
func (q *InstructionQueue) IsFullForThread(tid int) bool {
	if q.freeEntries == 0 {
		return true
	}
	return q.count[tid] >= q.maxEntries[tid]
}

// EntryAmount returns the per-thread entry cap the policy would apply
// with n active threads.
func (q *InstructionQueue) EntryAmount(n int) uint {
	switch q.policy {
	case Partitioned:
		if n == 0 {
			return q.config.NumEntries
		}
		return q.config.NumEntries / uint(n)
	case Threshold:
		if q.config.Threshold < q.config.NumEntries {
			return q.config.Threshold
		}
		return q.config.NumEntries
	default:
		return q.config.NumEntries
	}
}

// SetActiveThreads replaces the active thread list and recomputes the
// per-thread caps.
func (q *InstructionQueue) SetActiveThreads(tids []int) {
	q.activeThreads = append([]int(nil), tids...)
	q.ResetEntries()
}

// ResetEntries recomputes per-thread entry caps from the sharing policy
// and the set of active threads.
func (q *InstructionQueue) ResetEntries() {
	amount := q.EntryAmount(len(q.activeThreads))
	for _, tid := range q.activeThreads {
		q.maxEntries[tid] = amount
	}
}

//
// Insertion
//

// Insert adds a renamed instruction to the queue. Sources whose values
// are already available are marked ready through the scoreboard fast
// path; the rest are parked on the dependency graph. Destinations reserve
// their registers. If the instruction is ready it enters its ready queue
// immediately.
func (q *InstructionQueue) Insert(inst *insts.DynInst) error {
	if err := q.reserveEntry(inst); err != nil {
		return err
	}

	q.createDependency(inst)
	q.addToDependents(inst)

	q.stats.InstsAdded++

	if inst.IsMemRef() {
		q.memDep.Insert(inst)
	}

	q.addIfReady(inst)
	return nil
}

// InsertNonSpec adds an instruction that must not issue until commit
// releases it via ScheduleNonSpec. Dependency bookkeeping is performed as
// usual, but the instruction stays out of the ready queues even with all
// operands available.
func (q *InstructionQueue) InsertNonSpec(inst *insts.DynInst) error {
	if err := q.reserveEntry(inst); err != nil {
		return err
	}

	inst.SetNonSpec()
	q.nonSpecInsts.ReplaceOrInsert(nonSpecItem{seq: inst.SeqNum, inst: inst})

	q.createDependency(inst)
	q.addToDependents(inst)

	q.stats.InstsAdded++
	q.stats.NonSpecInstsAdded++

	if inst.IsMemRef() {
		q.memDep.InsertNonSpec(inst)
	}

	return nil
}

// InsertBarrier adds a memory barrier. The memory dependence unit orders
// prior memory operations before it and later ones after it; queue
// accounting matches InsertNonSpec.
func (q *InstructionQueue) InsertBarrier(inst *insts.DynInst) error {
	if err := q.reserveEntry(inst); err != nil {
		return err
	}

	inst.MemBarrier = true
	inst.SetNonSpec()
	q.nonSpecInsts.ReplaceOrInsert(nonSpecItem{seq: inst.SeqNum, inst: inst})

	q.createDependency(inst)
	q.addToDependents(inst)

	q.stats.InstsAdded++
	q.stats.NonSpecInstsAdded++

	q.memDep.InsertBarrier(inst)

	return nil
}

// AdvanceTail records the sequence number of an instruction that bypasses
// the queue, keeping sequence continuity without consuming an entry.
func (q *InstructionQueue) AdvanceTail(inst *insts.DynInst) {
	if inst.SeqNum > q.tailSeq[inst.ThreadID] {
		q.tailSeq[inst.ThreadID] = inst.SeqNum
	}
}

// reserveEntry performs the shared full check and list/count bookkeeping
// of the insert family.
func (q *InstructionQueue) reserveEntry(inst *insts.DynInst) error {
	tid := inst.ThreadID
	if q.IsFullForThread(tid) {
		return fmt.Errorf("%w (thread %d)", ErrFull, tid)
	}

	q.instList[tid] = append(q.instList[tid], inst)
	q.freeEntries--
	q.count[tid]++
	if inst.SeqNum > q.tailSeq[tid] {
		q.tailSeq[tid] = inst.SeqNum
	}
	inst.IQEnterCycle = q.cycle()
	return nil
}

// createDependency marks already-available sources ready via the
// scoreboard and parks the instruction on the dependency chain of each
// pending source.
func (q *InstructionQueue) createDependency(inst *insts.DynInst) {
	for i, src := range inst.SrcRegs {
		if q.regScoreboard[src] {
			inst.MarkSrcRegReady(i)
			continue
		}
		q.graph.insertConsumer(src, inst)
	}
}

// addToDependents installs the instruction as producer of its destination
// registers and clears their scoreboard bits. The zero register is
// skipped. Returns whether any consumer was already waiting on a
// destination.
func (q *InstructionQueue) addToDependents(inst *insts.DynInst) bool {
	anyWaiting := false
	for _, dest := range inst.DestRegs {
		if q.isZeroReg(dest) {
			continue
		}
		if q.graph.setProducer(dest, inst) {
			anyWaiting = true
		}
		q.regScoreboard[dest] = false
	}
	return anyWaiting
}

// HasReadyInsts reports whether any ready queue holds instructions.
func (q *InstructionQueue) HasReadyInsts() bool {
	return len(q.listOrder) > 0
}

// NumInFlight returns the number of instructions still on the per-thread
// lists, issued or not.
func (q *InstructionQueue) NumInFlight() int {
	total := 0
	for tid := range q.instList {
		total += len(q.instList[tid])
	}
	return total
}
