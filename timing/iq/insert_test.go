package iq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/iq"
)

var _ = Describe("Insertion", func() {
	It("should account entries on insert", func() {
		q, _, _ := newTestIQ(nil)

		inst := alu(1, 0, []insts.PhysReg{1, 2}, []insts.PhysReg{3})
		Expect(q.Insert(inst)).To(Succeed())

		Expect(q.NumFreeEntries()).To(Equal(uint(63)))
		Expect(q.Count(0)).To(Equal(uint(1)))
		Expect(q.Stats().InstsAdded).To(Equal(uint64(1)))
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should make an instruction with available sources ready at insert", func() {
		q, clock, _ := newTestIQ(nil)

		inst := alu(1, 0, []insts.PhysReg{1, 2}, []insts.PhysReg{3})
		Expect(q.Insert(inst)).To(Succeed())

		Expect(q.HasReadyInsts()).To(BeTrue())
		Expect(cycle(q, clock)).To(ContainElement(inst))
	})

	It("should make an instruction with no sources ready at insert", func() {
		q, clock, _ := newTestIQ(nil)

		inst := alu(1, 0, nil, []insts.PhysReg{3})
		Expect(q.Insert(inst)).To(Succeed())

		Expect(cycle(q, clock)).To(ContainElement(inst))
	})

	It("should park a consumer of a pending register", func() {
		q, clock, _ := newTestIQ(nil)

		producer := alu(1, 0, nil, []insts.PhysReg{3})
		consumer := alu(2, 0, []insts.PhysReg{3}, []insts.PhysReg{5})
		Expect(q.Insert(producer)).To(Succeed())
		Expect(q.Insert(consumer)).To(Succeed())

		Expect(consumer.ReadyToIssue()).To(BeFalse())

		issued := cycle(q, clock)
		Expect(issued).To(ContainElement(producer))
		Expect(issued).NotTo(ContainElement(consumer))
	})

	It("should do no dependency work for a zero register destination", func() {
		q, clock, _ := newTestIQ(nil)

		// Register 31 is the zero register in the default config.
		writer := alu(1, 0, nil, []insts.PhysReg{31})
		reader := alu(2, 0, []insts.PhysReg{31}, []insts.PhysReg{5})
		Expect(q.Insert(writer)).To(Succeed())
		Expect(q.Insert(reader)).To(Succeed())

		// The reader hits the scoreboard fast path and issues without
		// waiting for the writer.
		Expect(reader.ReadyToIssue()).To(BeTrue())
		issued := cycle(q, clock)
		Expect(issued).To(ContainElement(writer))
		Expect(issued).To(ContainElement(reader))
	})

	It("should leave no trace after insert followed by squash", func() {
		q, clock, _ := newTestIQ(nil)

		producer := alu(1, 0, nil, []insts.PhysReg{3})
		Expect(q.Insert(producer)).To(Succeed())

		freeBefore := q.NumFreeEntries()
		countBefore := q.Count(0)

		consumer := alu(2, 0, []insts.PhysReg{3}, []insts.PhysReg{5})
		Expect(q.Insert(consumer)).To(Succeed())
		q.SquashFrom(1, 0)

		Expect(q.NumFreeEntries()).To(Equal(freeBefore))
		Expect(q.Count(0)).To(Equal(countBefore))
		Expect(q.AssertSane()).To(Succeed())

		// The producer wakes nobody: the squashed consumer left the
		// dependency chain.
		Expect(cycle(q, clock)).To(ContainElement(producer))
		Expect(q.WakeDependents(producer)).To(BeZero())

		// A later reader of the squashed instruction's destination sees
		// the register available again.
		reader := alu(3, 0, []insts.PhysReg{5}, nil)
		Expect(q.Insert(reader)).To(Succeed())
		Expect(reader.ReadyToIssue()).To(BeTrue())
	})

	It("should track the tail without consuming an entry on AdvanceTail", func() {
		q, _, _ := newTestIQ(nil)

		bypassed := alu(7, 0, nil, nil)
		q.AdvanceTail(bypassed)

		Expect(q.NumFreeEntries()).To(Equal(uint(64)))
		Expect(q.Count(0)).To(BeZero())
	})
})

var _ = Describe("SMT policies", func() {
	It("should share all entries under the dynamic policy", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.NumThreads = 2
			c.Policy = "dynamic"
		})

		Expect(q.EntryAmount(2)).To(Equal(uint(64)))

		for seq := insts.SeqNum(1); seq <= 64; seq++ {
			Expect(q.Insert(alu(seq, 0, nil, nil))).To(Succeed())
		}
		Expect(q.IsFull()).To(BeTrue())
		Expect(q.Insert(alu(65, 1, nil, nil))).NotTo(Succeed())
	})

	It("should split entries evenly under the partitioned policy", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.NumThreads = 2
			c.Policy = "partitioned"
		})

		Expect(q.EntryAmount(2)).To(Equal(uint(32)))

		for seq := insts.SeqNum(1); seq <= 32; seq++ {
			Expect(q.Insert(alu(seq, 0, nil, nil))).To(Succeed())
		}

		Expect(q.IsFullForThread(0)).To(BeTrue())
		Expect(q.Insert(alu(33, 0, nil, nil))).To(MatchError(iq.ErrFull))

		// The other thread's partition is untouched.
		Expect(q.IsFullForThread(1)).To(BeFalse())
		Expect(q.Insert(alu(34, 1, nil, nil))).To(Succeed())
	})

	It("should cap threads at the threshold", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.NumThreads = 2
			c.Policy = "threshold"
			c.Threshold = 8
		})

		Expect(q.EntryAmount(2)).To(Equal(uint(8)))

		for seq := insts.SeqNum(1); seq <= 8; seq++ {
			Expect(q.Insert(alu(seq, 0, nil, nil))).To(Succeed())
		}
		Expect(q.Insert(alu(9, 0, nil, nil))).To(MatchError(iq.ErrFull))
		Expect(q.Insert(alu(10, 1, nil, nil))).To(Succeed())
	})

	It("should recompute caps when active threads change", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.NumThreads = 2
			c.Policy = "partitioned"
		})

		q.SetActiveThreads([]int{0})
		Expect(q.NumFreeEntriesForThread(0)).To(Equal(uint(64)))

		q.SetActiveThreads([]int{0, 1})
		Expect(q.NumFreeEntriesForThread(0)).To(Equal(uint(32)))
	})

	It("should not mutate state on a rejected insert", func() {
		q, _, _ := newTestIQ(func(c *iq.Config) {
			c.NumEntries = 1
			c.SquashWidth = 1
		})

		Expect(q.Insert(alu(1, 0, nil, []insts.PhysReg{3}))).To(Succeed())

		rejected := alu(2, 0, []insts.PhysReg{3}, []insts.PhysReg{5})
		Expect(q.Insert(rejected)).NotTo(Succeed())

		Expect(q.Count(0)).To(Equal(uint(1)))
		Expect(rejected.ReadyToIssue()).To(BeFalse())
		Expect(q.AssertSane()).To(Succeed())
	})
})
