package iq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3iq/insts"
	"github.com/sarchlab/o3iq/timing/fu"
	"github.com/sarchlab/o3iq/timing/iq"
	"github.com/sarchlab/o3iq/timing/memdep"
)

// newMemTestIQ builds a queue with an explicitly wired memory dependence
// unit so tests can inspect it.
func newMemTestIQ() (*iq.InstructionQueue, *testClock, *memdep.Unit) {
	pool, err := fu.NewPool(fu.DefaultConfig())
	Expect(err).NotTo(HaveOccurred())

	mdu := memdep.NewUnit(memdep.DefaultPredictorConfig())
	clock := newTestClock()
	q, err := iq.New(iq.DefaultConfig(), pool, clock, clock,
		iq.WithMemDep(mdu))
	Expect(err).NotTo(HaveOccurred())
	mdu.SetWakeup(q)

	return q, clock, mdu
}

func load(seq insts.SeqNum, pc uint64, srcs []insts.PhysReg) *insts.DynInst {
	inst := insts.New(seq, 0, insts.MemRead, srcs, nil)
	inst.PC = pc
	return inst
}

var _ = Describe("Memory operation protocol", func() {
	It("should route register-ready memory ops through the dependence unit", func() {
		q, clock, mdu := newMemTestIQ()

		l := load(1, 0x100, []insts.PhysReg{4})
		Expect(q.Insert(l)).To(Succeed())

		Expect(mdu.Stats().Grants).To(Equal(uint64(1)))
		Expect(cycle(q, clock)).To(ConsistOf(l))
	})

	It("should hold a memory op until its address registers resolve", func() {
		q, clock, _ := newMemTestIQ()

		producer := alu(1, 0, nil, []insts.PhysReg{4})
		l := load(2, 0x100, []insts.PhysReg{4})
		Expect(q.Insert(producer)).To(Succeed())
		Expect(q.Insert(l)).To(Succeed())

		Expect(cycle(q, clock)).To(ConsistOf(producer))
		Expect(cycle(q, clock)).To(ConsistOf(l))
	})

	It("should round-trip reschedule and replay", func() {
		q, clock, _ := newMemTestIQ()

		l := load(1, 0x100, nil)
		Expect(q.Insert(l)).To(Succeed())

		q.ScheduleReadyInsts()
		Expect(q.IssueBuffer().Access(0).Insts).To(ConsistOf(l))
		q.IssueBuffer().Advance()
		Expect(q.Count(0)).To(BeZero())

		// Execute found the access blocked this cycle; take it back
		// before the function unit completion fires.
		q.RescheduleMemInst(l)
		Expect(l.Issued()).To(BeFalse())
		Expect(q.Count(0)).To(Equal(uint(1)))
		Expect(q.AssertSane()).To(Succeed())

		// The in-flight completion releases the unit without completing
		// the access.
		clock.tick()
		Expect(l.MemOpDone()).To(BeFalse())

		// Nothing issues until the replay.
		Expect(cycle(q, clock)).To(BeEmpty())

		q.ReplayMemInst(l)
		Expect(cycle(q, clock)).To(ConsistOf(l))
		Expect(q.Count(0)).To(BeZero())
		Expect(l.MemOpDone()).To(BeTrue())
		Expect(q.AssertSane()).To(Succeed())
	})

	It("should record completion with the dependence unit", func() {
		q, _, mdu := newMemTestIQ()

		l := load(1, 0x100, nil)
		Expect(q.Insert(l)).To(Succeed())
		Expect(mdu.Outstanding(0)).To(Equal(1))

		q.CompleteMemInst(l)

		Expect(l.MemOpDone()).To(BeTrue())
		Expect(mdu.Outstanding(0)).To(BeZero())
	})

	It("should train the predictor and squash on a violation", func() {
		q, clock, mdu := newMemTestIQ()

		// An older store and a younger load to the same address; the
		// untrained predictor lets the load issue first.
		store := insts.New(15, 0, insts.MemWrite, []insts.PhysReg{4}, nil)
		store.PC = 0x40
		victim := load(20, 0x80, nil)

		Expect(q.InsertNonSpec(store)).To(Succeed())
		Expect(q.Insert(victim)).To(Succeed())

		Expect(cycle(q, clock)).To(ConsistOf(victim))

		// The store reaches execute and detects the alias.
		q.Violation(store, victim)
		Expect(mdu.Stats().Violations).To(Equal(uint64(1)))
		Expect(mdu.Predictor().Stats().Trainings).To(Equal(uint64(1)))

		// Commit squashes everything from the load on.
		q.SquashFrom(19, 0)
		Expect(victim.Squashed()).To(BeTrue())
		Expect(q.AssertSane()).To(Succeed())

		// Commit releases the older store; it issues and completes.
		Expect(q.ScheduleNonSpec(15)).To(BeTrue())
		Expect(cycle(q, clock)).To(ConsistOf(store))

		// On the next encounter the trained pair holds the load behind
		// the store.
		store2 := insts.New(30, 0, insts.MemWrite, nil, nil)
		store2.PC = 0x40
		retry := load(31, 0x80, nil)
		Expect(q.InsertNonSpec(store2)).To(Succeed())
		Expect(q.Insert(retry)).To(Succeed())

		Expect(cycle(q, clock)).To(BeEmpty())

		// Releasing the store lets it issue, and its completion finally
		// frees the load.
		Expect(q.ScheduleNonSpec(30)).To(BeTrue())
		Expect(cycle(q, clock)).To(ConsistOf(store2))
		Expect(cycle(q, clock)).To(ConsistOf(retry))
	})
})
