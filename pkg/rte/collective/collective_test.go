package collective_test

import (
	"sync"
	"time"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/arya-analytics/gauge/pkg/rte/collective"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemRuntime", func() {
	var group []*collective.MemRuntime

	BeforeEach(func() { group = collective.NewMemGroup(3) })
	AfterEach(func() { Expect(group[0].Close()).To(Succeed()) })

	It("Should assign dense ranks within the group", func() {
		for i, m := range group {
			Expect(m.Size()).To(Equal(uint(3)))
			Expect(m.Rank()).To(Equal(uint(i)))
		}
	})

	Describe("Send and Recv", func() {
		It("Should deliver bytes between distinct ranks in FIFO order", func() {
			Expect(group[0].Send(2, []byte("abc"))).To(Succeed())
			Expect(group[0].Send(2, []byte("def"))).To(Succeed())
			buf := make([]byte, 4)
			Expect(group[2].Recv(0, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("abcd"))
			buf = make([]byte, 2)
			Expect(group[2].Recv(0, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("ef"))
		})
		It("Should keep per-sender queues independent", func() {
			Expect(group[0].Send(2, []byte("from0"))).To(Succeed())
			Expect(group[1].Send(2, []byte("from1"))).To(Succeed())
			buf := make([]byte, 5)
			Expect(group[2].Recv(1, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("from1"))
			Expect(group[2].Recv(0, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("from0"))
		})
		It("Should serve rank-to-self traffic locally", func() {
			Expect(group[1].Send(1, []byte("self"))).To(Succeed())
			buf := make([]byte, 4)
			Expect(group[1].Recv(1, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("self"))
		})
		It("Should block a receive until enough bytes arrive", func() {
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				buf := make([]byte, 6)
				Expect(group[1].Recv(0, buf)).To(Succeed())
				Expect(string(buf)).To(Equal("halves"))
			}()
			Expect(group[0].Send(1, []byte("hal"))).To(Succeed())
			Consistently(done, 50*time.Millisecond).ShouldNot(BeClosed())
			Expect(group[0].Send(1, []byte("ves"))).To(Succeed())
			Eventually(done).Should(BeClosed())
		})
		It("Should reject ranks outside the group", func() {
			err := group[0].Send(3, []byte{1})
			Expect(errors.Is(err, rte.InvalidParameter)).To(BeTrue())
			err = group[0].Recv(9, make([]byte, 1))
			Expect(errors.Is(err, rte.InvalidParameter)).To(BeTrue())
		})
	})

	Describe("Barrier", func() {
		It("Should release every rank only once all have arrived", func() {
			started := make(chan uint, 3)
			var wg sync.WaitGroup
			for _, m := range group[1:] {
				wg.Add(1)
				go func(m *collective.MemRuntime) {
					defer GinkgoRecover()
					defer wg.Done()
					started <- m.Rank()
					Expect(m.Barrier()).To(Succeed())
				}(m)
			}
			Eventually(started).Should(HaveLen(2))
			Expect(group[0].Barrier()).To(Succeed())
			wg.Wait()
		})
		It("Should support repeated generations", func() {
			var wg sync.WaitGroup
			for _, m := range group {
				wg.Add(1)
				go func(m *collective.MemRuntime) {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < 5; i++ {
						Expect(m.Barrier()).To(Succeed())
					}
				}(m)
			}
			wg.Wait()
		})
	})

	Describe("Close", func() {
		It("Should unblock waiting ranks with TransferFailed", func() {
			errC := make(chan error, 1)
			go func() {
				errC <- group[1].Recv(0, make([]byte, 1))
			}()
			time.Sleep(20 * time.Millisecond)
			Expect(group[0].Close()).To(Succeed())
			Expect(errors.Is(<-errC, rte.TransferFailed)).To(BeTrue())
		})
	})
})

var _ = Describe("Group", func() {
	It("Should pass size, rank, and traffic through to the runtime", func() {
		runtimes := collective.NewMemGroup(2)
		defer func() { Expect(runtimes[0].Close()).To(Succeed()) }()
		a := collective.Wrap(runtimes[0], nil)
		b := collective.Wrap(runtimes[1], nil)

		Expect(a.Size()).To(Equal(uint(2)))
		Expect(a.Index()).To(Equal(uint(0)))
		Expect(b.Index()).To(Equal(uint(1)))

		Expect(a.Send(1, []byte("ping"))).To(Succeed())
		buf := make([]byte, 4)
		Expect(b.Recv(0, buf)).To(Succeed())
		Expect(string(buf)).To(Equal("ping"))
	})
	It("Should deliver reports to the sink and tolerate its absence", func() {
		runtimes := collective.NewMemGroup(1)
		defer func() { Expect(runtimes[0].Close()).To(Succeed()) }()
		var got []rte.Result
		sunk := collective.Wrap(runtimes[0], rte.SinkFunc(func(r rte.Result) {
			got = append(got, r)
		}))
		sunk.Report(rte.Result{Iters: 7})
		Expect(got).To(HaveLen(1))
		Expect(got[0].Iters).To(Equal(uint64(7)))

		quiet := collective.Wrap(runtimes[0], nil)
		quiet.Report(rte.Result{Iters: 7})
	})
})
