package iq

import (
	"container/heap"

	"github.com/sarchlab/o3iq/insts"
)

// readyQueue is a priority queue of issuable instructions, oldest sequence
// number first. Squashed entries are removed lazily at pop time by the
// scheduler.
type readyQueue struct {
	h instHeap
}

// instHeap implements heap.Interface with older instructions on top.
type instHeap []*insts.DynInst

func (h instHeap) Len() int            { return len(h) }
func (h instHeap) Less(i, j int) bool  { return h[i].SeqNum < h[j].SeqNum }
func (h instHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *instHeap) Push(x interface{}) { *h = append(*h, x.(*insts.DynInst)) }
func (h *instHeap) Pop() interface{} {
	old := *h
	n := len(old)
	inst := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return inst
}

// Push adds an instruction to the queue.
func (q *readyQueue) Push(inst *insts.DynInst) {
	heap.Push(&q.h, inst)
}

// Pop removes and returns the oldest instruction.
func (q *readyQueue) Pop() *insts.DynInst {
	return heap.Pop(&q.h).(*insts.DynInst)
}

// Top returns the oldest instruction without removing it.
func (q *readyQueue) Top() *insts.DynInst {
	return q.h[0]
}

// Len returns the number of queued instructions.
func (q *readyQueue) Len() int { return len(q.h) }

// Empty reports whether the queue has no instructions.
func (q *readyQueue) Empty() bool { return len(q.h) == 0 }

// listOrderEntry pairs a non-empty ready queue with the sequence number of
// its oldest instruction. The age order list keeps these sorted so the
// scheduler visits op classes oldest-first.
type listOrderEntry struct {
	class  insts.OpClass
	oldest insts.SeqNum
}
