package iq

import "github.com/sarchlab/o3iq/insts"

// ScheduleReadyInsts runs one scheduling pass: it walks the age order
// list oldest-first across op classes, allocates function units, and
// issues up to TotalWidth instructions into the current slot of the
// issue→execute buffer. Instructions that find their function units busy
// stay queued for the next pass.
func (q *InstructionQueue) ScheduleReadyInsts() {
	bundle := q.issueToExec.Access(0)
	totalIssued := uint(0)

	// Instructions whose results are available within the issuing cycle
	// wake their dependents after the scan, so the age order list is not
	// mutated mid-walk.
	var wakeNow []*insts.DynInst

	// Pipelined units used this pass are released after the scan, so each
	// accepts at most one new operation per pass.
	var freeAfterScan []int

	i := 0
	for totalIssued < q.config.TotalWidth && i < len(q.listOrder) {
		class := q.listOrder[i].class
		rq := &q.readyQueues[class]

		if rq.Empty() {
			i = q.moveToYoungerInst(i)
			continue
		}

		inst := rq.Top()

		// Lazily drop entries squashed after they became ready.
		if inst.Squashed() {
			rq.Pop()
			q.stats.SquashedInstsIssued++
			i = q.moveToYoungerInst(i)
			continue
		}

		idx := -1
		latency := uint64(0)
		pipelined := false
		needsFU := inst.Class != insts.NoOpClass && q.fuPool.HasUnitsFor(inst.Class)
		if needsFU {
			var ok bool
			idx, latency, pipelined, ok = q.fuPool.GetUnit(inst.Class)
			if !ok {
				q.stats.FUBusy[class]++
				i++
				continue
			}
		}

		rq.Pop()
		i = q.moveToYoungerInst(i)

		inst.SetIssued()
		bundle.Insts = append(bundle.Insts, inst)

		now := q.cycle()
		q.stats.countIssued(inst)
		q.stats.QueueResidency[class].Add(now - inst.IQEnterCycle)
		q.stats.IssueDelay[class].Add(now - inst.ReadyCycle)
		totalIssued++

		// The entry frees at issue; the instruction stays on the thread
		// list until commit or squash so it can still be found by
		// sequence number.
		q.freeEntries++
		q.count[inst.ThreadID]--

		switch {
		case !needsFU || latency == 0:
			if idx >= 0 {
				q.fuPool.FreeUnit(idx)
			}
			wakeNow = append(wakeNow, inst)
		case pipelined:
			// A pipelined unit accepts a new operation next cycle; only
			// the completion wakeup is deferred.
			freeAfterScan = append(freeAfterScan, idx)
			q.scheduleFUCompletion(inst, -1, latency)
		default:
			q.scheduleFUCompletion(inst, idx, latency)
		}
	}

	q.stats.NIssued.Add(uint64(totalIssued))

	for _, idx := range freeAfterScan {
		q.fuPool.FreeUnit(idx)
	}

	for _, inst := range wakeNow {
		q.WakeDependents(inst)
	}
}

// moveToYoungerInst removes the age order entry at position i and, if the
// class's ready queue is still non-empty, re-inserts it at the position
// its new oldest instruction warrants. Returns the position at which the
// scan continues.
func (q *InstructionQueue) moveToYoungerInst(i int) int {
	class := q.listOrder[i].class
	q.listOrder = append(q.listOrder[:i], q.listOrder[i+1:]...)

	rq := &q.readyQueues[class]
	if rq.Empty() {
		q.queueOnList[class] = false
		return i
	}

	oldest := rq.Top().SeqNum
	pos := len(q.listOrder)
	for j := i; j < len(q.listOrder); j++ {
		if q.listOrder[j].oldest > oldest {
			pos = j
			break
		}
	}
	q.insertOrderEntry(pos, listOrderEntry{class: class, oldest: oldest})
	return i
}

// addToOrderList places the class on the age order list according to its
// oldest ready instruction.
func (q *InstructionQueue) addToOrderList(class insts.OpClass) {
	oldest := q.readyQueues[class].Top().SeqNum
	pos := len(q.listOrder)
	for j := range q.listOrder {
		if q.listOrder[j].oldest > oldest {
			pos = j
			break
		}
	}
	q.insertOrderEntry(pos, listOrderEntry{class: class, oldest: oldest})
	q.queueOnList[class] = true
}

func (q *InstructionQueue) insertOrderEntry(pos int, entry listOrderEntry) {
	q.listOrder = append(q.listOrder, listOrderEntry{})
	copy(q.listOrder[pos+1:], q.listOrder[pos:])
	q.listOrder[pos] = entry
}

// orderIndexOf returns the position of the class on the age order list,
// or -1.
func (q *InstructionQueue) orderIndexOf(class insts.OpClass) int {
	for j := range q.listOrder {
		if q.listOrder[j].class == class {
			return j
		}
	}
	return -1
}

// addIfReady moves an instruction into its ready queue if every issue
// condition holds. Register-ready memory operations and barriers that
// still lack ordering clearance are routed to the memory dependence unit
// instead; it calls AddReadyMemInst once ordering allows.
func (q *InstructionQueue) addIfReady(inst *insts.DynInst) {
	if inst.Issued() || inst.Squashed() {
		return
	}
	if !inst.ReadyToIssue() {
		return
	}
	if inst.NonSpec() && !inst.SpecCleared() {
		return
	}
	if (inst.IsMemRef() || inst.IsMemBarrier()) && !inst.MemOpCleared() {
		q.memDep.RegsReady(inst)
		return
	}
	q.enqueueReady(inst)
}

// enqueueReady pushes the instruction onto its op class ready queue and
// updates the age order list.
func (q *InstructionQueue) enqueueReady(inst *insts.DynInst) {
	class := inst.Class
	inst.ReadyCycle = q.cycle()
	q.readyQueues[class].Push(inst)

	if !q.queueOnList[class] {
		q.addToOrderList(class)
		return
	}

	// A new oldest instruction moves the class forward on the list.
	idx := q.orderIndexOf(class)
	if idx >= 0 && inst.SeqNum < q.listOrder[idx].oldest {
		q.listOrder = append(q.listOrder[:idx], q.listOrder[idx+1:]...)
		q.addToOrderList(class)
	}
}

// WakeDependents makes the results of a completed instruction visible:
// its destination registers become available and every consumer chained
// on them is re-evaluated for readiness. Returns the number of dependents
// woken. Memory operations completing for the first time are reported to
// the memory dependence unit.
func (q *InstructionQueue) WakeDependents(completed *insts.DynInst) int {
	if completed.IsMemBarrier() {
		q.memDep.CompleteBarrier(completed)
	} else if completed.IsMemRef() && !completed.MemOpDone() {
		q.CompleteMemInst(completed)
	}

	dependents := 0
	for _, dest := range completed.DestRegs {
		if q.isZeroReg(dest) {
			continue
		}

		q.regScoreboard[dest] = true

		dependents += q.graph.drainConsumers(dest, func(consumer *insts.DynInst) {
			consumer.MarkOneSrcRegReady(dest)
			q.addIfReady(consumer)
		})

		if q.graph.producer(dest) == completed {
			q.graph.clearProducer(dest)
		}
	}
	return dependents
}

// ScheduleNonSpec releases the commit gate of the non-speculative
// instruction with the given sequence number. Returns whether the
// instruction was found.
func (q *InstructionQueue) ScheduleNonSpec(seqNum insts.SeqNum) bool {
	item := q.nonSpecInsts.Get(nonSpecItem{seq: seqNum})
	if item == nil {
		return false
	}
	inst := item.(nonSpecItem).inst
	q.nonSpecInsts.Delete(item)

	inst.SetSpecCleared()
	q.addIfReady(inst)
	return true
}

// Commit drains instructions up to and including doneSeqNum from the
// front of the thread's instruction list. They have issued and no longer
// need to be found by sequence number.
func (q *InstructionQueue) Commit(doneSeqNum insts.SeqNum, tid int) {
	list := q.instList[tid]
	n := 0
	for n < len(list) && list[n].SeqNum <= doneSeqNum {
		n++
	}
	q.instList[tid] = list[n:]
}

// ProcessCommitSignals consumes the commit wire, if configured: squashes
// first, then non-spec releases, then commits.
func (q *InstructionQueue) ProcessCommitSignals() {
	if q.commitWire == nil {
		return
	}
	sig := q.commitWire.Read()
	for _, tid := range q.activeThreads {
		if sig.Squash[tid] {
			q.SquashFrom(sig.SquashSeqNum[tid], tid)
		} else if q.squashing[tid] {
			q.ContinueSquash(tid)
		}
		if sig.ScheduleNonSpec[tid] {
			q.ScheduleNonSpec(sig.NonSpecSeqNum[tid])
		}
		if sig.DoneSeqNum[tid] > 0 {
			q.Commit(sig.DoneSeqNum[tid], tid)
		}
	}
}

//
// Memory operation protocol
//

// AddReadyMemInst is the memory dependence unit's wakeup callback: the
// operation's ordering constraints have drained and it may enter its
// ready queue.
func (q *InstructionQueue) AddReadyMemInst(inst *insts.DynInst) {
	if inst.Issued() || inst.Squashed() {
		return
	}
	inst.SetMemOpCleared(true)
	q.addIfReady(inst)
}

// RescheduleMemInst takes an issued memory operation back: it reoccupies
// a queue entry and loses its ordering clearance until ReplayMemInst.
func (q *InstructionQueue) RescheduleMemInst(inst *insts.DynInst) {
	inst.ClearIssued()
	inst.SetMemOpCleared(false)
	q.freeEntries--
	q.count[inst.ThreadID]++
	q.memDep.Reschedule(inst)
}

// ReplayMemInst re-arms a rescheduled memory operation; the memory
// dependence unit re-grants clearance when ordering allows.
func (q *InstructionQueue) ReplayMemInst(inst *insts.DynInst) {
	q.memDep.Replay(inst)
}

// CompleteMemInst records the completion of a memory access and notifies
// the memory dependence unit so operations ordered behind it can proceed.
func (q *InstructionQueue) CompleteMemInst(inst *insts.DynInst) {
	inst.SetMemOpDone()
	q.memDep.Completed(inst)
}

// Violation forwards a store→load ordering violation to the memory
// dependence unit for predictor training. The squash itself arrives later
// through the commit wire.
func (q *InstructionQueue) Violation(store, load *insts.DynInst) {
	q.memDep.Violation(store, load)
}
