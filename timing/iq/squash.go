package iq

import "github.com/sarchlab/o3iq/insts"

// Squash reads the thread's squash boundary from the commit wire and
// begins squashing.
func (q *InstructionQueue) Squash(tid int) {
	if q.commitWire == nil {
		return
	}
	sig := q.commitWire.Read()
	q.SquashFrom(sig.SquashSeqNum[tid], tid)
}

// SquashFrom removes every instruction of the thread strictly younger
// than seqNum. Removal is bounded per cycle by SquashWidth; if the
// boundary is not reached, ContinueSquash resumes on later cycles.
func (q *InstructionQueue) SquashFrom(seqNum insts.SeqNum, tid int) {
	q.squashedSeqNum[tid] = seqNum
	q.squashing[tid] = true

	q.memDep.Squash(seqNum, tid)

	q.doSquash(tid)
}

// SquashInProgress reports whether the thread still has instructions
// above its squash boundary.
func (q *InstructionQueue) SquashInProgress(tid int) bool {
	return q.squashing[tid]
}

// ContinueSquash resumes a width-bounded squash on a later cycle.
func (q *InstructionQueue) ContinueSquash(tid int) {
	if q.squashing[tid] {
		q.doSquash(tid)
	}
}

// doSquash walks the thread's instruction list newest-first, removing
// instructions younger than the squash boundary. Unissued instructions
// give back their queue entry and are unlinked from the dependency
// graph; ready queue entries are dropped lazily by the scheduler.
func (q *InstructionQueue) doSquash(tid int) {
	boundary := q.squashedSeqNum[tid]
	width := q.config.SquashWidth
	removed := uint(0)

	list := q.instList[tid]
	for len(list) > 0 {
		if width > 0 && removed >= width {
			// Width exhausted; ContinueSquash picks up from here.
			q.instList[tid] = list
			return
		}

		inst := list[len(list)-1]
		if inst.SeqNum <= boundary {
			break
		}

		q.stats.SquashedInstsExamined++

		if !inst.Issued() && !inst.SquashedInIQ() {
			q.unlinkSquashed(inst)
			q.count[tid]--
			q.freeEntries++
		}

		if inst.NonSpec() {
			if q.nonSpecInsts.Delete(nonSpecItem{seq: inst.SeqNum}) != nil {
				q.stats.SquashedNonSpecRemoved++
			}
		}

		inst.SetSquashed()
		inst.SetSquashedInIQ()
		inst.SetCanCommit()

		list = list[:len(list)-1]
		removed++
	}

	q.instList[tid] = list
	q.squashing[tid] = false
}

// unlinkSquashed removes an unissued instruction from the dependency
// graph: it leaves the consumer chain of every pending source, and its
// destination reservations are released with the registers marked
// available again. The squash is strictly a suffix, so any surviving
// producer of those registers has already delivered its value.
func (q *InstructionQueue) unlinkSquashed(inst *insts.DynInst) {
	for i, src := range inst.SrcRegs {
		if inst.SrcRegReady(i) {
			continue
		}
		if q.graph.removeConsumer(src, inst) {
			q.stats.SquashedOperandsExamined++
		}
	}

	for _, dest := range inst.DestRegs {
		if q.isZeroReg(dest) {
			continue
		}
		if q.graph.producer(dest) == inst {
			q.graph.clearProducer(dest)
			q.regScoreboard[dest] = true
		}
	}
}
