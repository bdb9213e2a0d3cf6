// Package fu models the pool of function units the instruction queue
// issues into. Units are grouped by capability; the pool hands out a free
// unit for an op class together with the class's execution timing.
package fu

import (
	"fmt"

	"github.com/sarchlab/o3iq/insts"
)

// Stats holds usage counters for the pool.
type Stats struct {
	// Allocations counts successful unit grants.
	Allocations uint64

	// Denials counts grant requests that found all capable units busy.
	Denials uint64
}

type unit struct {
	group int
	busy  bool
}

// Pool is a set of function units built from a Config.
type Pool struct {
	config Config
	units  []unit

	// byClass maps each op class to the indices of units that execute it.
	byClass [insts.NumOpClasses][]int

	// timing maps each op class to its execution timing. A class served by
	// several groups takes the timing of the first group that lists it.
	timing  [insts.NumOpClasses]OpTiming
	capable [insts.NumOpClasses]bool

	stats Stats
}

// NewPool builds a pool from the given configuration.
func NewPool(config Config) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid FU pool config: %w", err)
	}

	p := &Pool{config: config.Clone()}
	for g, desc := range p.config.Units {
		for i := 0; i < desc.Count; i++ {
			idx := len(p.units)
			p.units = append(p.units, unit{group: g})
			for _, op := range desc.Ops {
				p.byClass[op.Class] = append(p.byClass[op.Class], idx)
			}
		}
		for _, op := range desc.Ops {
			if !p.capable[op.Class] {
				p.capable[op.Class] = true
				p.timing[op.Class] = op
			}
		}
	}
	return p, nil
}

// NumUnits returns the total number of units in the pool.
func (p *Pool) NumUnits() int { return len(p.units) }

// HasUnitsFor reports whether any unit in the pool executes the class.
func (p *Pool) HasUnitsFor(class insts.OpClass) bool {
	return p.capable[class]
}

// GetUnit allocates a free unit for the op class. It returns the unit
// index, the class's result latency, whether the unit is pipelined, and
// whether the allocation succeeded. Pipelined units are expected to be
// freed by the caller at issue; non-pipelined units stay busy until
// FreeUnit is called at completion.
func (p *Pool) GetUnit(class insts.OpClass) (idx int, latency uint64, pipelined bool, ok bool) {
	for _, u := range p.byClass[class] {
		if !p.units[u].busy {
			p.units[u].busy = true
			p.stats.Allocations++
			t := p.timing[class]
			return u, t.Latency, t.Pipelined, true
		}
	}
	p.stats.Denials++
	return -1, 0, false, false
}

// FreeUnit marks the unit as available again.
func (p *Pool) FreeUnit(idx int) {
	if idx < 0 || idx >= len(p.units) {
		panic(fmt.Sprintf("fu: freeing invalid unit index %d", idx))
	}
	p.units[idx].busy = false
}

// FreeUnitsOf returns the number of free units that can execute the class.
func (p *Pool) FreeUnitsOf(class insts.OpClass) int {
	free := 0
	for _, u := range p.byClass[class] {
		if !p.units[u].busy {
			free++
		}
	}
	return free
}

// Latency returns the configured result latency for the class. It returns
// 0 for classes no unit executes.
func (p *Pool) Latency(class insts.OpClass) uint64 {
	return p.timing[class].Latency
}

// Stats returns the pool usage counters.
func (p *Pool) Stats() Stats { return p.stats }

// Reset frees all units and clears the usage counters.
func (p *Pool) Reset() {
	for i := range p.units {
		p.units[i].busy = false
	}
	p.stats = Stats{}
}
