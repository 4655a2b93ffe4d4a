package sched_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/natak-mesh/relayd/internal/sched"
)

var _ = Describe("Scheduler", func() {
	var s *sched.Scheduler
	var stop chan struct{}

	BeforeEach(func() {
		s = sched.New()
		stop = make(chan struct{})
		go s.Run(stop)
		s.WaitStarted()
	})

	AfterEach(func() {
		close(stop)
	})

	It("runs a registered task repeatedly at its interval", func() {
		count := make(chan struct{}, 16)
		s.Reg("tick", 10*time.Millisecond, func() time.Duration {
			count <- struct{}{}
			return 0
		})

		Eventually(count, time.Second).Should(Receive())
		Eventually(count, time.Second).Should(Receive())
	})

	It("stops rescheduling a task once it returns a negative duration", func() {
		runs := 0
		done := make(chan struct{})
		s.Reg("once", 5*time.Millisecond, func() time.Duration {
			runs++
			close(done)
			return -1
		})

		Eventually(done, time.Second).Should(BeClosed())
		time.Sleep(50 * time.Millisecond)
		Expect(runs).To(Equal(1))
	})

	It("lets a task change its own interval", func() {
		runs := make(chan time.Time, 4)
		first := true
		s.Reg("adaptive", 5*time.Millisecond, func() time.Duration {
			runs <- time.Now()
			if first {
				first = false
				return 200 * time.Millisecond
			}
			return -1
		})

		var firstRun, secondRun time.Time
		Eventually(runs, time.Second).Should(Receive(&firstRun))
		Eventually(runs, time.Second).Should(Receive(&secondRun))
		Expect(secondRun.Sub(firstRun)).To(BeNumerically(">=", 150*time.Millisecond))
	})

	It("Unreg removes a task before it fires", func() {
		fired := false
		s.Reg("cancelme", 20*time.Millisecond, func() time.Duration {
			fired = true
			return -1
		})
		s.Unreg("cancelme")
		time.Sleep(60 * time.Millisecond)
		Expect(fired).To(BeFalse())
	})
})
