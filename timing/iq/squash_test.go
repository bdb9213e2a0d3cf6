package iq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/iq"
)

var _ = Describe("Squashing", func() {
	It("should unlink a squashed consumer from the dependency graph", func() {
		q, clock, _ := newTestIQ(nil)

		producer := alu(1, 0, nil, []insts.PhysReg{3})
		consumer := alu(2, 0, []insts.PhysReg{3}, []insts.PhysReg{5})
		Expect(q.Insert(producer)).To(Succeed())
		Expect(q.Insert(consumer)).To(Succeed())

		countBefore := q.Count(0)

		// Squash from the consumer's sequence number, inclusive.
		q.SquashFrom(consumer.SeqNum-1, 0)

		Expect(q.Count(0)).To(Equal(countBefore - 1))
		Expect(consumer.Squashed()).To(BeTrue())
		Expect(q.Stats().SquashedInstsExamined).To(Equal(uint64(1)))
		Expect(q.Stats().SquashedOperandsExamined).To(Equal(uint64(1)))

		// The producer completes and finds nobody waiting on r3.
		Expect(cycle(q, clock)).To(ConsistOf(producer))
		Expect(q.WakeDependents(producer)).To(BeZero())

		// The consumer never issues.
		for i := 0; i < 4; i++ {
			Expect(cycle(q, clock)).To(BeEmpty())
		}
	})

	It("should drop a squashed ready instruction at the queue head", func() {
		q, clock, _ := newTestIQ(nil)

		inst := alu(1, 0, nil, nil)
		Expect(q.Insert(inst)).To(Succeed())
		Expect(q.HasReadyInsts()).To(BeTrue())

		q.SquashFrom(0, 0)

		Expect(cycle(q, clock)).To(BeEmpty())
		Expect(q.Stats().SquashedInstsIssued).To(Equal(uint64(1)))
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should leave instructions at or below the boundary untouched", func() {
		q, clock, _ := newTestIQ(nil)

		keep := alu(5, 0, nil, nil)
		drop := alu(6, 0, nil, nil)
		Expect(q.Insert(keep)).To(Succeed())
		Expect(q.Insert(drop)).To(Succeed())

		q.SquashFrom(5, 0)

		Expect(keep.Squashed()).To(BeFalse())
		Expect(drop.Squashed()).To(BeTrue())
		Expect(cycle(q, clock)).To(ConsistOf(keep))
	})

	It("should only squash the signaled thread", func() {
		q, clock, _ := newTestIQ(func(c *iq.Config) {
			c.NumThreads = 2
		})

		mine := alu(10, 0, nil, nil)
		other := alu(11, 1, nil, nil)
		Expect(q.Insert(mine)).To(Succeed())
		Expect(q.Insert(other)).To(Succeed())

		q.SquashFrom(0, 0)

		Expect(mine.Squashed()).To(BeTrue())
		Expect(other.Squashed()).To(BeFalse())
		Expect(cycle(q, clock)).To(ConsistOf(other))
	})

	It("should restore the scoreboard for a squashed producer", func() {
		q, _, _ := newTestIQ(nil)

		producer := alu(1, 0, nil, []insts.PhysReg{3})
		Expect(q.Insert(producer)).To(Succeed())

		q.SquashFrom(0, 0)

		// A later reader of r3 does not wait for the squashed producer.
		reader := alu(2, 0, []insts.PhysReg{3}, nil)
		Expect(q.Insert(reader)).To(Succeed())
		Expect(reader.ReadyToIssue()).To(BeTrue())
	})

	It("should bound squash work per cycle and resume", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.SquashWidth = 2
		})

		var all []*insts.DynInst
		for seq := insts.SeqNum(1); seq <= 5; seq++ {
			inst := alu(seq, 0, nil, nil)
			all = append(all, inst)
			Expect(q.Insert(inst)).To(Succeed())
		}

		q.SquashFrom(0, 0)

		// Two removed this cycle, newest first.
		Expect(q.SquashInProgress(0)).To(BeTrue())
		Expect(all[4].Squashed()).To(BeTrue())
		Expect(all[3].Squashed()).To(BeTrue())
		Expect(all[2].Squashed()).To(BeFalse())

		q.ContinueSquash(0)
		Expect(q.SquashInProgress(0)).To(BeTrue())

		q.ContinueSquash(0)
		Expect(q.SquashInProgress(0)).To(BeFalse())
		for _, inst := range all {
			Expect(inst.Squashed()).To(BeTrue())
		}
		Expect(q.Count(0)).To(BeZero())
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should release the unit but wake nobody for a squashed issue", func() {
		q, clock, pool := newTestIQ(nil)

		producer := insts.New(1, 0, insts.IntDiv, nil, []insts.PhysReg{3})
		consumer := alu(2, 0, []insts.PhysReg{3}, nil)
		Expect(q.Insert(producer)).To(Succeed())
		Expect(q.Insert(consumer)).To(Succeed())

		// The divide issues and occupies its non-pipelined unit.
		Expect(cycle(q, clock)).To(ConsistOf(producer))
		Expect(pool.FreeUnitsOf(insts.IntDiv)).To(Equal(1))

		// Squash both while the divide is in flight.
		q.SquashFrom(0, 0)

		// Let the 20-cycle completion fire.
		for i := 0; i < 25; i++ {
			clock.tick()
		}

		Expect(pool.FreeUnitsOf(insts.IntDiv)).To(Equal(2))
		Expect(q.Stats().SquashedInstsIssued).To(Equal(uint64(1)))
		Expect(consumer.ReadyToIssue()).To(BeFalse())
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should remove squashed instructions from every structure", func() {
		q, clock, _ := newTestIQ(nil)

		ready := alu(1, 0, nil, []insts.PhysReg{3})
		waiting := alu(2, 0, []insts.PhysReg{3}, nil)
		store := insts.New(3, 0, insts.MemWrite, nil, nil)
		Expect(q.Insert(ready)).To(Succeed())
		Expect(q.Insert(waiting)).To(Succeed())
		Expect(q.InsertNonSpec(store)).To(Succeed())

		q.SquashFrom(0, 0)

		Expect(q.Count(0)).To(BeZero())
		Expect(q.NumFreeEntries()).To(Equal(uint(64)))
		Expect(q.Stats().SquashedNonSpecRemoved).To(Equal(uint64(1)))

		// Nothing issues afterwards, even after the gate would open.
		q.ScheduleNonSpec(store.SeqNum)
		for i := 0; i < 4; i++ {
			Expect(cycle(q, clock)).To(BeEmpty())
		}
		Expect(q.AssertSane()).To(Succeed())
	})
})
