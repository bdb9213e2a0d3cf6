// Package memdep tracks ordering between in-flight memory operations.
//
// The instruction queue clears a load or store for issue only after this
// unit agrees. Stores issue in program order among themselves, barriers
// order everything around them, and loads wait for older stores only when
// the dependence predictor has seen the pair violate ordering before.
package memdep

import (
	"fmt"

	"github.com/sarchlab/o3iq/insts"
)

// Wakeup is the callback surface back into the instruction queue. The
// unit invokes it when a memory operation's ordering constraints drain.
type Wakeup interface {
	AddReadyMemInst(inst *insts.DynInst)
}

// Stats holds counters for the unit.
type Stats struct {
	// Inserts counts memory operations tracked.
	Inserts uint64
	// Barriers counts barrier instructions tracked.
	Barriers uint64
	// Conflicts counts ordering edges created between operations.
	Conflicts uint64
	// Grants counts issue clearances handed to the instruction queue.
	Grants uint64
	// Replays counts reschedule/replay round trips.
	Replays uint64
	// Violations counts store→load ordering violations reported.
	Violations uint64
	// Squashed counts tracked operations removed by squashes.
	Squashed uint64
}

// entry is the tracking record for one in-flight memory op or barrier.
type entry struct {
	inst      *insts.DynInst
	isBarrier bool

	regsReady bool
	cleared   bool
	completed bool

	// memDeps counts older operations this entry still waits on.
	memDeps int

	// dependents are younger entries waiting on this one.
	dependents []*entry
}

// threadState holds per-thread ordering state.
type threadState struct {
	entries map[insts.SeqNum]*entry

	// order is the program-order list of outstanding entries.
	order []*entry

	// barrier is the youngest outstanding barrier, if any.
	barrier *entry

	// lastStore is the youngest outstanding store, if any.
	lastStore *entry
}

// Unit is the memory dependence unit.
type Unit struct {
	wakeup Wakeup
	pred   *Predictor

	threads map[int]*threadState

	stats Stats
}

// NewUnit creates a memory dependence unit with the given predictor
// configuration.
func NewUnit(config PredictorConfig) *Unit {
	return &Unit{
		pred:    NewPredictor(config),
		threads: make(map[int]*threadState),
	}
}

// SetWakeup wires the callback into the instruction queue. Must be called
// before any memory operation is inserted.
func (u *Unit) SetWakeup(w Wakeup) { u.wakeup = w }

// Predictor exposes the dependence predictor, mainly for stats reporting.
func (u *Unit) Predictor() *Predictor { return u.pred }

// Stats returns the unit counters.
func (u *Unit) Stats() Stats { return u.stats }

func (u *Unit) thread(tid int) *threadState {
	ts, ok := u.threads[tid]
	if !ok {
		ts = &threadState{entries: make(map[insts.SeqNum]*entry)}
		u.threads[tid] = ts
	}
	return ts
}

// addDep makes consumer wait for producer.
func (u *Unit) addDep(producer, consumer *entry) {
	producer.dependents = append(producer.dependents, consumer)
	consumer.memDeps++
	u.stats.Conflicts++
}

// Insert starts tracking a memory operation. Ordering edges are created
// against an outstanding barrier, against the previous store for stores,
// and against predicted-conflicting older stores for loads.
func (u *Unit) Insert(inst *insts.DynInst) {
	ts := u.thread(inst.ThreadID)
	e := &entry{inst: inst}

	if ts.barrier != nil && !ts.barrier.completed {
		u.addDep(ts.barrier, e)
	}

	if inst.IsLoad() {
		for _, older := range ts.order {
			if older.completed || !older.inst.IsStore() {
				continue
			}
			if u.pred.Conflicts(inst.PC, older.inst.PC) {
				u.addDep(older, e)
			}
		}
	}

	if inst.IsStore() {
		if ts.lastStore != nil && !ts.lastStore.completed {
			u.addDep(ts.lastStore, e)
		}
		ts.lastStore = e
	}

	ts.entries[inst.SeqNum] = e
	ts.order = append(ts.order, e)
	u.stats.Inserts++
}

// InsertNonSpec starts tracking a non-speculative memory operation. The
// commit gate is enforced by the instruction queue; ordering tracking here
// is identical to Insert.
func (u *Unit) InsertNonSpec(inst *insts.DynInst) {
	u.Insert(inst)
}

// InsertBarrier starts tracking a barrier. The barrier waits for every
// outstanding memory operation of its thread, and every younger operation
// waits for the barrier.
func (u *Unit) InsertBarrier(inst *insts.DynInst) {
	ts := u.thread(inst.ThreadID)
	e := &entry{inst: inst, isBarrier: true}

	for _, older := range ts.order {
		if !older.completed {
			u.addDep(older, e)
		}
	}

	ts.entries[inst.SeqNum] = e
	ts.order = append(ts.order, e)
	ts.barrier = e
	u.stats.Barriers++

	u.maybeReady(e)
}

// RegsReady records that all register operands of the operation are
// available. If its ordering constraints have drained too, the operation
// is cleared for issue.
func (u *Unit) RegsReady(inst *insts.DynInst) {
	e := u.lookup(inst)
	if e == nil {
		return
	}
	e.regsReady = true
	u.maybeReady(e)
}

// maybeReady grants issue clearance once both register and ordering
// constraints are satisfied. Barriers need no register operands.
func (u *Unit) maybeReady(e *entry) {
	if e.cleared || e.completed || e.inst.Squashed() {
		return
	}
	if e.memDeps > 0 {
		return
	}
	if !e.regsReady && !e.isBarrier {
		return
	}
	e.cleared = true
	u.stats.Grants++
	u.wakeup.AddReadyMemInst(e.inst)
}

// Reschedule takes back a previously granted clearance. The operation will
// not be cleared again until Replay is called.
func (u *Unit) Reschedule(inst *insts.DynInst) {
	e := u.lookup(inst)
	if e == nil {
		return
	}
	e.cleared = false
}

// Replay re-grants clearance to a rescheduled operation.
func (u *Unit) Replay(inst *insts.DynInst) {
	e := u.lookup(inst)
	if e == nil {
		return
	}
	u.stats.Replays++
	u.maybeReady(e)
}

// Completed retires a memory operation. Younger operations waiting on it
// lose one ordering constraint and may become issuable.
func (u *Unit) Completed(inst *insts.DynInst) {
	ts := u.thread(inst.ThreadID)
	e, ok := ts.entries[inst.SeqNum]
	if !ok {
		return
	}
	e.completed = true
	delete(ts.entries, inst.SeqNum)
	u.removeFromOrder(ts, e)

	for _, dep := range e.dependents {
		// A dependent may have been squashed out of the map already.
		if _, live := ts.entries[dep.inst.SeqNum]; !live {
			continue
		}
		dep.memDeps--
		u.maybeReady(dep)
	}

	if ts.lastStore == e {
		ts.lastStore = nil
	}
}

// CompleteBarrier retires a barrier, releasing the operations behind it.
func (u *Unit) CompleteBarrier(inst *insts.DynInst) {
	ts := u.thread(inst.ThreadID)
	if ts.barrier != nil && ts.barrier.inst == inst {
		ts.barrier = nil
	}
	u.Completed(inst)
}

// Squash drops every tracked operation of the thread younger than seqNum.
func (u *Unit) Squash(seqNum insts.SeqNum, tid int) {
	ts := u.thread(tid)

	for len(ts.order) > 0 {
		e := ts.order[len(ts.order)-1]
		if e.inst.SeqNum <= seqNum {
			break
		}
		ts.order = ts.order[:len(ts.order)-1]
		delete(ts.entries, e.inst.SeqNum)
		u.stats.Squashed++
	}

	// The youngest barrier or store may have been squashed; recover them
	// from the surviving suffix.
	ts.barrier = nil
	ts.lastStore = nil
	for i := len(ts.order) - 1; i >= 0; i-- {
		e := ts.order[i]
		if ts.barrier == nil && e.isBarrier && !e.completed {
			ts.barrier = e
		}
		if ts.lastStore == nil && e.inst.IsStore() && !e.completed {
			ts.lastStore = e
		}
		if ts.barrier != nil && ts.lastStore != nil {
			break
		}
	}
}

// Violation trains the predictor with a store that an already-executed
// younger load should have waited for.
func (u *Unit) Violation(store, load *insts.DynInst) {
	u.stats.Violations++
	u.pred.Train(load.PC, store.PC)
}

// Outstanding returns the number of tracked operations for the thread.
func (u *Unit) Outstanding(tid int) int {
	return len(u.thread(tid).entries)
}

func (u *Unit) lookup(inst *insts.DynInst) *entry {
	return u.thread(inst.ThreadID).entries[inst.SeqNum]
}

func (u *Unit) removeFromOrder(ts *threadState, e *entry) {
	for i, cur := range ts.order {
		if cur == e {
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			return
		}
	}
}

// Dump returns a human-readable description of the tracked state, for
// debugging only.
func (u *Unit) Dump() string {
	out := ""
	for tid, ts := range u.threads {
		out += fmt.Sprintf("thread %d: %d outstanding\n", tid, len(ts.entries))
		for _, e := range ts.order {
			out += fmt.Sprintf("  %v deps=%d cleared=%v completed=%v\n",
				e.inst, e.memDeps, e.cleared, e.completed)
		}
	}
	return out
}
