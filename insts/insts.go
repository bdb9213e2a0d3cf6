// Package insts provides the dynamic instruction model used by the
// out-of-order backend.
//
// A DynInst is an instruction after decode and rename: its operands are
// physical register indices, it carries a globally unique sequence number,
// and it exposes the readiness and status flags the instruction queue
// operates on. The queue never looks inside the instruction body; execution
// semantics are supplied by the creator through an ExecFn callback.
package insts

import "fmt"

// SeqNum is a global, monotonically increasing instruction sequence number
// assigned in dispatch order.
type SeqNum uint64

// PhysReg is a flat physical register index. Integer registers occupy
// [0, numPhysIntRegs) and floating point registers follow them.
type PhysReg int

// OpClass tags an instruction with the class of function unit that can
// execute it.
type OpClass int

// The supported op classes. NoOpClass instructions need no function unit.
const (
	NoOpClass OpClass = iota
	IntALU
	IntMult
	IntDiv
	FPAdd
	FPCmp
	FPCvt
	FPMult
	FPDiv
	FPSqrt
	MemRead
	MemWrite
	IprAccess
	InstPrefetch

	// NumOpClasses is the number of op classes, usable as an array bound.
	NumOpClasses int = iota
)

var opClassNames = [NumOpClasses]string{
	"No_OpClass",
	"IntAlu",
	"IntMult",
	"IntDiv",
	"FloatAdd",
	"FloatCmp",
	"FloatCvt",
	"FloatMult",
	"FloatDiv",
	"FloatSqrt",
	"MemRead",
	"MemWrite",
	"IprAccess",
	"InstPrefetch",
}

// String returns the op class name.
func (c OpClass) String() string {
	if c < 0 || int(c) >= NumOpClasses {
		return fmt.Sprintf("OpClass(%d)", int(c))
	}
	return opClassNames[c]
}

// IsMemRef returns true for classes that access memory.
func (c OpClass) IsMemRef() bool {
	return c == MemRead || c == MemWrite
}

// ExecFn is the execution callback invoked when the instruction reaches the
// execute stage.
type ExecFn func(*DynInst)

// DynInst is a decoded, renamed, in-flight instruction.
type DynInst struct {
	// SeqNum is the global dispatch-order sequence number.
	SeqNum SeqNum

	// ThreadID is the hardware thread the instruction belongs to.
	ThreadID int

	// PC is the instruction address, used by the memory dependence
	// predictor.
	PC uint64

	// Class selects the function unit type.
	Class OpClass

	// Control marks branches and other control transfers.
	Control bool

	// MemBarrier marks memory barrier instructions.
	MemBarrier bool

	// SrcRegs and DestRegs are the renamed operands.
	SrcRegs  []PhysReg
	DestRegs []PhysReg

	// EffAddr is the effective address of a memory operation, filled in at
	// execute time. Used by the backend for ordering violation checks.
	EffAddr uint64

	// ExecFn is called when the instruction executes. May be nil.
	ExecFn ExecFn

	// IQEnterCycle and ReadyCycle are bookkeeping timestamps maintained by
	// the instruction queue for residency and issue delay statistics.
	IQEnterCycle uint64
	ReadyCycle   uint64

	srcReady     []bool
	numSrcReady  int
	issued       bool
	executed     bool
	squashed     bool
	squashedInIQ bool
	canCommit    bool
	nonSpec      bool
	specCleared  bool
	memOpCleared bool
	memOpDone    bool
}

// New creates a DynInst with the given identity and renamed operands.
func New(seq SeqNum, tid int, class OpClass, srcs, dests []PhysReg) *DynInst {
	return &DynInst{
		SeqNum:   seq,
		ThreadID: tid,
		Class:    class,
		SrcRegs:  srcs,
		DestRegs: dests,
		srcReady: make([]bool, len(srcs)),
	}
}

// NumSrcRegs returns the number of source operands.
func (d *DynInst) NumSrcRegs() int { return len(d.SrcRegs) }

// NumDestRegs returns the number of destination operands.
func (d *DynInst) NumDestRegs() int { return len(d.DestRegs) }

// MarkSrcRegReady records that source operand i has its value available.
// Marking the same operand twice has no effect.
func (d *DynInst) MarkSrcRegReady(i int) {
	if d.srcReady[i] {
		return
	}
	d.srcReady[i] = true
	d.numSrcReady++
}

// MarkOneSrcRegReady marks the first not-yet-ready source operand that
// reads physical register r. An instruction reading a register through
// several operands holds one dependency graph node per operand, so each
// wakeup accounts for exactly one of them. Returns whether an operand was
// marked.
func (d *DynInst) MarkOneSrcRegReady(r PhysReg) bool {
	for i, src := range d.SrcRegs {
		if src == r && !d.srcReady[i] {
			d.MarkSrcRegReady(i)
			return true
		}
	}
	return false
}

// SrcRegReady reports whether source operand i has its value available.
func (d *DynInst) SrcRegReady(i int) bool { return d.srcReady[i] }

// ReadyToIssue reports whether all register sources are available.
func (d *DynInst) ReadyToIssue() bool { return d.numSrcReady == len(d.SrcRegs) }

// CanIssue reports whether the instruction may enter a ready queue: all
// sources available, not issued, not squashed, not gated behind commit, and
// (for memory operations) cleared by the memory dependence unit.
func (d *DynInst) CanIssue() bool {
	if !d.ReadyToIssue() || d.issued || d.squashed {
		return false
	}
	if d.nonSpec && !d.specCleared {
		return false
	}
	if (d.IsMemRef() || d.MemBarrier) && !d.memOpCleared {
		return false
	}
	return true
}

// IsMemRef returns true for loads and stores.
func (d *DynInst) IsMemRef() bool { return d.Class.IsMemRef() }

// IsLoad returns true for loads.
func (d *DynInst) IsLoad() bool { return d.Class == MemRead }

// IsStore returns true for stores.
func (d *DynInst) IsStore() bool { return d.Class == MemWrite }

// IsMemBarrier returns true for memory barrier instructions.
func (d *DynInst) IsMemBarrier() bool { return d.MemBarrier }

// IsControl returns true for branches and other control transfers.
func (d *DynInst) IsControl() bool { return d.Control }

// SetIssued marks the instruction as issued to a function unit.
func (d *DynInst) SetIssued() { d.issued = true }

// ClearIssued takes back the issued mark when a memory operation must be
// rescheduled.
func (d *DynInst) ClearIssued() { d.issued = false }

// Issued reports whether the instruction has issued.
func (d *DynInst) Issued() bool { return d.issued }

// SetExecuted marks the instruction as having produced its result.
func (d *DynInst) SetExecuted() { d.executed = true }

// Executed reports whether the instruction has produced its result.
func (d *DynInst) Executed() bool { return d.executed }

// SetSquashed marks the instruction as squashed.
func (d *DynInst) SetSquashed() { d.squashed = true }

// Squashed reports whether the instruction is squashed.
func (d *DynInst) Squashed() bool { return d.squashed }

// SetSquashedInIQ records that the instruction queue has processed the
// squash for this instruction.
func (d *DynInst) SetSquashedInIQ() { d.squashedInIQ = true }

// SquashedInIQ reports whether the queue has processed this instruction's
// squash.
func (d *DynInst) SquashedInIQ() bool { return d.squashedInIQ }

// SetCanCommit marks the instruction as eligible for commit.
func (d *DynInst) SetCanCommit() { d.canCommit = true }

// CanCommit reports whether the instruction is eligible for commit.
func (d *DynInst) CanCommit() bool { return d.canCommit }

// SetNonSpec marks the instruction as one that must wait for a commit
// signal before issuing.
func (d *DynInst) SetNonSpec() { d.nonSpec = true }

// NonSpec reports whether the instruction is gated on commit.
func (d *DynInst) NonSpec() bool { return d.nonSpec }

// SetSpecCleared releases the commit gate of a non-speculative instruction.
func (d *DynInst) SetSpecCleared() { d.specCleared = true }

// SpecCleared reports whether the commit gate has been released.
func (d *DynInst) SpecCleared() bool { return d.specCleared }

// SetMemOpCleared records whether the memory dependence unit allows the
// operation to issue.
func (d *DynInst) SetMemOpCleared(cleared bool) { d.memOpCleared = cleared }

// MemOpCleared reports whether the memory dependence unit allows issue.
func (d *DynInst) MemOpCleared() bool { return d.memOpCleared }

// SetMemOpDone records that the memory access has completed.
func (d *DynInst) SetMemOpDone() { d.memOpDone = true }

// MemOpDone reports whether the memory access has completed.
func (d *DynInst) MemOpDone() bool { return d.memOpDone }

// Execute runs the instruction's execution callback, if any.
func (d *DynInst) Execute() {
	if d.ExecFn != nil {
		d.ExecFn(d)
	}
	d.executed = true
}

// String returns a short description for debug dumps.
func (d *DynInst) String() string {
	return fmt.Sprintf("[sn:%d t%d %s]", d.SeqNum, d.ThreadID, d.Class)
}
