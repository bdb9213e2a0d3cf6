package iq

import "github.com/sarchlab/o3iq/insts"

// Distribution accumulates summary statistics of a sampled quantity.
type Distribution struct {
	// Count is the number of samples.
	Count uint64
	// Sum is the total of all samples.
	Sum uint64
	// Min and Max are the extreme samples seen. Valid only if Count > 0.
	Min uint64
	Max uint64
}

// Add records one sample.
func (d *Distribution) Add(v uint64) {
	if d.Count == 0 || v < d.Min {
		d.Min = v
	}
	if d.Count == 0 || v > d.Max {
		d.Max = v
	}
	d.Count++
	d.Sum += v
}

// Mean returns the average sample, or 0 with no samples.
func (d Distribution) Mean() float64 {
	if d.Count == 0 {
		return 0
	}
	return float64(d.Sum) / float64(d.Count)
}

// Statistics holds the instruction queue counters.
type Statistics struct {
	// InstsAdded counts instructions inserted into the queue.
	InstsAdded uint64
	// NonSpecInstsAdded counts non-speculative instructions inserted.
	NonSpecInstsAdded uint64

	// InstsIssued counts instructions issued, with per-kind breakdowns.
	InstsIssued       uint64
	IntInstsIssued    uint64
	FloatInstsIssued  uint64
	BranchInstsIssued uint64
	MemInstsIssued    uint64
	MiscInstsIssued   uint64

	// SquashedInstsIssued counts squashed instructions found at the head
	// of a ready queue or completing on a function unit.
	SquashedInstsIssued uint64
	// SquashedInstsExamined counts instructions walked during squashes.
	SquashedInstsExamined uint64
	// SquashedOperandsExamined counts dependency graph edges removed
	// during squashes.
	SquashedOperandsExamined uint64
	// SquashedNonSpecRemoved counts non-speculative instructions removed
	// by squashes.
	SquashedNonSpecRemoved uint64

	// FUBusy counts issue attempts per op class that found no free unit.
	FUBusy [insts.NumOpClasses]uint64

	// QueueResidency samples insert-to-issue cycles per op class.
	QueueResidency [insts.NumOpClasses]Distribution

	// IssueDelay samples ready-to-issue cycles per op class.
	IssueDelay [insts.NumOpClasses]Distribution

	// NIssued samples the number of instructions issued each cycle.
	NIssued Distribution

	// IssuedByThread breaks issues down by thread and op class.
	IssuedByThread [MaxThreads][insts.NumOpClasses]uint64
}

// IssueRate returns instructions issued per cycle.
func (s Statistics) IssueRate(cycles uint64) float64 {
	if cycles == 0 {
		return 0
	}
	return float64(s.InstsIssued) / float64(cycles)
}

// TotalFUBusy returns the total number of busy denials across classes.
func (s Statistics) TotalFUBusy() uint64 {
	total := uint64(0)
	for _, v := range s.FUBusy {
		total += v
	}
	return total
}

// FUBusyRate returns busy denials per cycle.
func (s Statistics) FUBusyRate(cycles uint64) float64 {
	if cycles == 0 {
		return 0
	}
	return float64(s.TotalFUBusy()) / float64(cycles)
}

// countIssued updates the per-kind issue counters for one instruction.
func (s *Statistics) countIssued(inst *insts.DynInst) {
	s.InstsIssued++
	s.IssuedByThread[inst.ThreadID][inst.Class]++

	switch {
	case inst.IsControl():
		s.BranchInstsIssued++
	case inst.Class == insts.IntALU || inst.Class == insts.IntMult ||
		inst.Class == insts.IntDiv:
		s.IntInstsIssued++
	case inst.Class == insts.FPAdd || inst.Class == insts.FPCmp ||
		inst.Class == insts.FPCvt || inst.Class == insts.FPMult ||
		inst.Class == insts.FPDiv || inst.Class == insts.FPSqrt:
		s.FloatInstsIssued++
	case inst.IsMemRef():
		s.MemInstsIssued++
	default:
		s.MiscInstsIssued++
	}
}
