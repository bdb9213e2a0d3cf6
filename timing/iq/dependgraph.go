package iq

import "github.com/sarchlab/o3iq/insts"

// nilNode marks the end of a consumer chain or an empty free list.
const nilNode = int32(-1)

// depNode is one consumer link in a register's dependency chain. Nodes
// live in a slab and refer to each other by index so chains hold no
// ownership over instructions.
type depNode struct {
	inst *insts.DynInst
	next int32
}

// dependGraph tracks, per physical register, the producing instruction
// and the chain of consumers waiting for its value.
type dependGraph struct {
	// producers[r] is the in-flight instruction that will write r, if any.
	producers []*insts.DynInst

	// heads[r] is the slab index of the first consumer waiting on r.
	heads []int32

	nodes    []depNode
	freeList int32

	// allocated tracks live consumer nodes, for invariant checks.
	allocated int
}

func newDependGraph(numRegs uint) *dependGraph {
	g := &dependGraph{
		producers: make([]*insts.DynInst, numRegs),
		heads:     make([]int32, numRegs),
		freeList:  nilNode,
	}
	for i := range g.heads {
		g.heads[i] = nilNode
	}
	return g
}

func (g *dependGraph) alloc(inst *insts.DynInst, next int32) int32 {
	g.allocated++
	if g.freeList != nilNode {
		idx := g.freeList
		g.freeList = g.nodes[idx].next
		g.nodes[idx] = depNode{inst: inst, next: next}
		return idx
	}
	g.nodes = append(g.nodes, depNode{inst: inst, next: next})
	return int32(len(g.nodes) - 1)
}

func (g *dependGraph) release(idx int32) {
	g.allocated--
	g.nodes[idx] = depNode{next: g.freeList}
	g.freeList = idx
}

// setProducer installs inst as the pending producer of r. Returns whether
// consumers were already chained on r.
func (g *dependGraph) setProducer(r insts.PhysReg, inst *insts.DynInst) bool {
	g.producers[r] = inst
	return g.heads[r] != nilNode
}

// producer returns the pending producer of r, or nil.
func (g *dependGraph) producer(r insts.PhysReg) *insts.DynInst {
	return g.producers[r]
}

// clearProducer removes the pending producer of r.
func (g *dependGraph) clearProducer(r insts.PhysReg) {
	g.producers[r] = nil
}

// insertConsumer prepends inst to r's consumer chain.
func (g *dependGraph) insertConsumer(r insts.PhysReg, inst *insts.DynInst) {
	g.heads[r] = g.alloc(inst, g.heads[r])
}

// removeConsumer unlinks inst from r's consumer chain. Returns whether the
// instruction was found.
func (g *dependGraph) removeConsumer(r insts.PhysReg, inst *insts.DynInst) bool {
	prev := nilNode
	for cur := g.heads[r]; cur != nilNode; cur = g.nodes[cur].next {
		if g.nodes[cur].inst != inst {
			prev = cur
			continue
		}
		if prev == nilNode {
			g.heads[r] = g.nodes[cur].next
		} else {
			g.nodes[prev].next = g.nodes[cur].next
		}
		g.release(cur)
		return true
	}
	return false
}

// drainConsumers empties r's consumer chain, calling visit on each waiting
// instruction in chain order. Returns the number of consumers visited.
func (g *dependGraph) drainConsumers(r insts.PhysReg, visit func(*insts.DynInst)) int {
	n := 0
	cur := g.heads[r]
	g.heads[r] = nilNode
	for cur != nilNode {
		node := g.nodes[cur]
		visit(node.inst)
		g.release(cur)
		cur = node.next
		n++
	}
	return n
}

// hasConsumers reports whether any instruction waits on r.
func (g *dependGraph) hasConsumers(r insts.PhysReg) bool {
	return g.heads[r] != nilNode
}

// consumers returns r's waiting instructions, for dumps and tests.
func (g *dependGraph) consumers(r insts.PhysReg) []*insts.DynInst {
	var out []*insts.DynInst
	for cur := g.heads[r]; cur != nilNode; cur = g.nodes[cur].next {
		out = append(out, g.nodes[cur].inst)
	}
	return out
}
