package iq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/fu"
	"github.com/sarchlab/o3iq/timing/iq"
	"github.com/sarchlab/o3iq/timing/timebuf"
)

var _ = Describe("Non-speculative gate", func() {
	It("should hold a ready store out of the ready queues", func() {
		q, clock, _ := newTestIQ(nil)

		store := insts.New(5, 0, insts.MemWrite, []insts.PhysReg{1}, nil)
		Expect(q.InsertNonSpec(store)).To(Succeed())

		Expect(q.Stats().NonSpecInstsAdded).To(Equal(uint64(1)))

		// Operands are available, but the gate holds.
		Expect(store.ReadyToIssue()).To(BeTrue())
		for i := 0; i < 4; i++ {
			Expect(cycle(q, clock)).To(BeEmpty())
		}

		// Commit releases the store; it issues on the next pass.
		Expect(q.ScheduleNonSpec(5)).To(BeTrue())
		Expect(cycle(q, clock)).To(ConsistOf(store))
		Expect(q.Stats().MemInstsIssued).To(Equal(uint64(1)))
	})

	It("should gate even when operands become ready later", func() {
		q, clock, _ := newTestIQ(nil)

		producer := alu(4, 0, nil, []insts.PhysReg{7})
		store := insts.New(5, 0, insts.MemWrite, []insts.PhysReg{7}, nil)
		Expect(q.Insert(producer)).To(Succeed())
		Expect(q.InsertNonSpec(store)).To(Succeed())

		// The producer completes; the store's operands are now ready but
		// it stays gated.
		Expect(cycle(q, clock)).To(ConsistOf(producer))
		Expect(cycle(q, clock)).To(BeEmpty())
		Expect(store.ReadyToIssue()).To(BeTrue())

		Expect(q.ScheduleNonSpec(5)).To(BeTrue())
		Expect(cycle(q, clock)).To(ConsistOf(store))
	})

	It("should report an unknown sequence number", func() {
		q, _, _ := newTestIQ(nil)

		Expect(q.ScheduleNonSpec(99)).To(BeFalse())
	})

	It("should order memory operations around a barrier", func() {
		q, clock, _ := newTestIQ(nil)

		before := insts.New(1, 0, insts.MemRead, nil, nil)
		barrier := insts.New(2, 0, insts.NoOpClass, nil, nil)
		after := insts.New(3, 0, insts.MemRead, nil, nil)

		Expect(q.Insert(before)).To(Succeed())
		Expect(q.InsertBarrier(barrier)).To(Succeed())
		Expect(q.Insert(after)).To(Succeed())

		// The load behind the barrier stays blocked even though the
		// earlier one issues.
		issued := cycle(q, clock)
		Expect(issued).To(ConsistOf(before))

		// The barrier waits for the commit gate, then for the first
		// load's completion.
		Expect(q.ScheduleNonSpec(2)).To(BeTrue())
		issued = cycle(q, clock)
		Expect(issued).To(ConsistOf(barrier))

		// With the barrier complete, the second load proceeds.
		issued = cycle(q, clock)
		Expect(issued).To(ConsistOf(after))
	})
})

var _ = Describe("Commit wire", func() {
	var (
		buf   *timebuf.TimeBuffer[iq.CommitSignal]
		q     *iq.InstructionQueue
		clock *testClock
	)

	BeforeEach(func() {
		buf = timebuf.New[iq.CommitSignal](2, 0)

		pool, err := fu.NewPool(fu.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		clock = newTestClock()
		q, err = iq.New(iq.DefaultConfig(), pool, clock, clock,
			iq.WithCommitWire(buf.Wire(-2)))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should act on a squash signal after the wire delay", func() {
		inst := alu(3, 0, nil, nil)
		Expect(q.Insert(inst)).To(Succeed())

		sig := buf.Access(0)
		sig.Squash[0] = true
		sig.SquashSeqNum[0] = 0

		q.ProcessCommitSignals()
		Expect(inst.Squashed()).To(BeFalse())

		buf.Advance()
		q.ProcessCommitSignals()
		Expect(inst.Squashed()).To(BeFalse())

		buf.Advance()
		q.ProcessCommitSignals()
		Expect(inst.Squashed()).To(BeTrue())
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should release a non-spec instruction through the wire", func() {
		store := insts.New(5, 0, insts.MemWrite, nil, nil)
		Expect(q.InsertNonSpec(store)).To(Succeed())

		sig := buf.Access(0)
		sig.ScheduleNonSpec[0] = true
		sig.NonSpecSeqNum[0] = 5

		buf.Advance()
		buf.Advance()
		q.ProcessCommitSignals()

		Expect(cycle(q, clock)).To(ConsistOf(store))
	})

	It("should drain committed instructions from the thread list", func() {
		inst := alu(1, 0, nil, nil)
		Expect(q.Insert(inst)).To(Succeed())
		cycle(q, clock)

		sig := buf.Access(0)
		sig.DoneSeqNum[0] = 1

		buf.Advance()
		buf.Advance()
		q.ProcessCommitSignals()

		Expect(q.AssertSane()).To(Succeed())
	})
})
