package iq

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/o3iq/insts"
)

// FUCompletion is the deferred wakeup scheduled when an instruction
// issues to a multi-cycle function unit. When it fires, the unit is
// released and the instruction's dependents are woken. If the instruction
// was squashed in the meantime the event only releases the unit.
type FUCompletion struct {
	*sim.EventBase

	inst  *insts.DynInst
	fuIdx int
}

// newFUCompletion creates a completion event firing at time t, handled by
// the queue that issued the instruction. fuIdx is -1 when no unit needs
// releasing (pipelined units free at issue).
func newFUCompletion(
	t sim.VTimeInSec,
	handler sim.Handler,
	inst *insts.DynInst,
	fuIdx int,
) *FUCompletion {
	return &FUCompletion{
		EventBase: sim.NewEventBase(t, handler),
		inst:      inst,
		fuIdx:     fuIdx,
	}
}

// Inst returns the completing instruction.
func (e *FUCompletion) Inst() *insts.DynInst { return e.inst }

// FUIdx returns the unit to release, or -1.
func (e *FUCompletion) FUIdx() int { return e.fuIdx }

// scheduleFUCompletion enqueues a completion event latency cycles ahead.
func (q *InstructionQueue) scheduleFUCompletion(
	inst *insts.DynInst,
	fuIdx int,
	latency uint64,
) {
	t := q.freq.NCyclesLater(int(latency), q.timeTeller.CurrentTime())
	q.scheduler.Schedule(newFUCompletion(t, q, inst, fuIdx))
}

// Handle dispatches events scheduled by the queue.
func (q *InstructionQueue) Handle(e sim.Event) error {
	switch evt := e.(type) {
	case *FUCompletion:
		q.processFUCompletion(evt.inst, evt.fuIdx)
	}
	return nil
}

// processFUCompletion releases the function unit and wakes the completed
// instruction's dependents. A squashed instruction releases the unit but
// wakes nobody.
func (q *InstructionQueue) processFUCompletion(inst *insts.DynInst, fuIdx int) {
	if fuIdx >= 0 {
		q.fuPool.FreeUnit(fuIdx)
	}

	if inst.Squashed() {
		q.stats.SquashedInstsIssued++
		return
	}

	// A memory op rescheduled while in flight produced no result; its
	// replay will issue again.
	if inst.IsMemRef() && !inst.MemOpCleared() {
		return
	}

	q.WakeDependents(inst)
}
