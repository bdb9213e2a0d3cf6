package iq

import (
	"fmt"
	"strings"

	"github.com/google/btree"

	"github.com/sarchlab/o3iq/insts"
)

// DumpInsts returns a description of every instruction on the per-thread
// lists. Debug only; do not call on hot paths.
func (q *InstructionQueue) DumpInsts() string {
	var b strings.Builder
	for _, tid := range q.activeThreads {
		fmt.Fprintf(&b, "thread %d (%d unissued):\n", tid, q.count[tid])
		for _, inst := range q.instList[tid] {
			fmt.Fprintf(&b, "  %v issued=%v squashed=%v\n",
				inst, inst.Issued(), inst.Squashed())
		}
	}
	return b.String()
}

// DumpDependGraph returns the registers that have pending producers or
// waiting consumers. Debug only.
func (q *InstructionQueue) DumpDependGraph() string {
	var b strings.Builder
	for r := insts.PhysReg(0); r < insts.PhysReg(len(q.regScoreboard)); r++ {
		producer := q.graph.producer(r)
		waiting := q.graph.consumers(r)
		if producer == nil && len(waiting) == 0 {
			continue
		}
		fmt.Fprintf(&b, "r%d avail=%v", r, q.regScoreboard[r])
		if producer != nil {
			fmt.Fprintf(&b, " producer=%v", producer)
		}
		for _, c := range waiting {
			fmt.Fprintf(&b, " <- %v", c)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpLists returns the ready queue sizes, the age order list, and the
// non-spec table contents. Debug only.
func (q *InstructionQueue) DumpLists() string {
	var b strings.Builder
	for c := 0; c < insts.NumOpClasses; c++ {
		if q.readyQueues[c].Len() == 0 {
			continue
		}
		fmt.Fprintf(&b, "%v ready: %d\n", insts.OpClass(c), q.readyQueues[c].Len())
	}
	b.WriteString("age order:")
	for _, entry := range q.listOrder {
		fmt.Fprintf(&b, " %v@%d", entry.class, entry.oldest)
	}
	b.WriteByte('\n')
	b.WriteString("non-spec:")
	q.nonSpecInsts.Ascend(func(item btree.Item) bool {
		fmt.Fprintf(&b, " %d", item.(nonSpecItem).seq)
		return true
	})
	b.WriteByte('\n')
	return b.String()
}

// countInsts walks the thread lists counting unissued instructions. Debug
// only; linear in queue occupancy.
func (q *InstructionQueue) countInsts() uint {
	total := uint(0)
	for _, tid := range q.activeThreads {
		for _, inst := range q.instList[tid] {
			if !inst.Issued() && !inst.Squashed() {
				total++
			}
		}
	}
	return total
}

// AssertSane cross-checks the queue's redundant structures and returns an
// error describing the first inconsistency found. Intended for tests and
// debug builds.
func (q *InstructionQueue) AssertSane() error {
	counted := uint(0)
	for _, tid := range q.activeThreads {
		counted += q.count[tid]
	}
	if q.freeEntries+counted != q.config.NumEntries {
		return fmt.Errorf("entry accounting: free=%d + counts=%d != %d",
			q.freeEntries, counted, q.config.NumEntries)
	}

	if walked := q.countInsts(); walked != counted {
		return fmt.Errorf("instruction lists hold %d unissued, counters say %d",
			walked, counted)
	}

	for c := 0; c < insts.NumOpClasses; c++ {
		onList := q.orderIndexOf(insts.OpClass(c)) >= 0
		if onList != q.queueOnList[c] {
			return fmt.Errorf("%v: queueOnList=%v but list membership=%v",
				insts.OpClass(c), q.queueOnList[c], onList)
		}
		if q.queueOnList[c] && q.readyQueues[c].Empty() {
			return fmt.Errorf("%v: on age order list with empty ready queue",
				insts.OpClass(c))
		}
	}

	for i := 1; i < len(q.listOrder); i++ {
		if q.listOrder[i-1].oldest > q.listOrder[i].oldest {
			return fmt.Errorf("age order list unsorted at %d", i)
		}
	}

	return nil
}
