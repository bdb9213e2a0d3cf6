package iq

import "github.com/sarchlab/o3iq/insts"

// MaxThreads is the maximum number of hardware threads the queue supports.
const MaxThreads = 4

// IssueBundle is one slot of the issue→execute time buffer. Each cycle the
// scheduler appends up to TotalWidth issued instructions to the current
// slot; the execute stage drains the slot when it arrives.
type IssueBundle struct {
	// Insts holds the instructions issued in the slot's cycle.
	Insts []*insts.DynInst
}

// Clear empties the bundle.
func (b *IssueBundle) Clear() {
	b.Insts = nil
}

// CommitSignal is one slot of the backwards commit→IQ time buffer. The
// queue reads it through a wire delayed by CommitToIEWDelay.
type CommitSignal struct {
	// Squash requests a squash of the thread's instructions younger than
	// SquashSeqNum.
	Squash [MaxThreads]bool

	// SquashSeqNum is the exclusive squash boundary per thread.
	SquashSeqNum [MaxThreads]insts.SeqNum

	// DoneSeqNum is the youngest committed sequence number per thread;
	// issued instructions up to it may leave the queue's instruction list.
	DoneSeqNum [MaxThreads]insts.SeqNum

	// NonSpecSeqNum requests release of the commit gate for the given
	// non-speculative instruction, when ScheduleNonSpec is non-zero.
	NonSpecSeqNum [MaxThreads]insts.SeqNum

	// ScheduleNonSpec indicates NonSpecSeqNum is valid for the thread.
	ScheduleNonSpec [MaxThreads]bool
}
