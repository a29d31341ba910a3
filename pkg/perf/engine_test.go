package perf_test

import (
	"context"

	"github.com/arya-analytics/gauge/pkg/perf"
	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/arya-analytics/gauge/pkg/rte/collective"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func engineParams(testType perf.TestType) perf.Params {
	p := perf.Default()
	p.Command = perf.CmdPutShort
	p.TestType = testType
	p.WarmupIters = 10
	p.MaxIters = 200
	p.MessageSize = 8
	// Keep the run free of timer-driven progress reports.
	p.ReportInterval = 0
	return p
}

// runPair executes the engine on both ranks of an in-process group and
// returns the per-rank final results.
func runPair(p perf.Params) (results [2]rte.Result, finals [2][]rte.Result) {
	runtimes := collective.NewMemGroup(2)
	defer func() { _ = runtimes[0].Close() }()

	engine, err := perf.New(p)
	Expect(err).ToNot(HaveOccurred())

	errs := make(chan error, 2)
	done := make(chan struct{})
	go func() {
		defer GinkgoRecover()
		defer close(done)
		group := collective.Wrap(runtimes[0], rte.SinkFunc(func(r rte.Result) {
			finals[0] = append(finals[0], r)
		}))
		var err error
		results[0], err = engine.Run(context.Background(), p, group)
		errs <- err
	}()
	group := collective.Wrap(runtimes[1], rte.SinkFunc(func(r rte.Result) {
		finals[1] = append(finals[1], r)
	}))
	var runErr error
	results[1], runErr = engine.Run(context.Background(), p, group)
	errs <- runErr
	<-done

	Expect(<-errs).ToNot(HaveOccurred())
	Expect(<-errs).ToNot(HaveOccurred())
	return results, finals
}

var _ = Describe("Engine", func() {
	Describe("New", func() {
		It("Should reject parameters without a test type", func() {
			_, err := perf.New(perf.Default())
			Expect(errors.Is(err, rte.InvalidParameter)).To(BeTrue())
		})
	})

	Describe("PingPong", func() {
		It("Should run the full iteration count on both ranks", func() {
			results, finals := runPair(engineParams(perf.TypePingPong))
			for rank, r := range results {
				Expect(r.Final).To(BeTrue())
				Expect(r.Iters).To(Equal(uint64(200)), "rank %d", rank)
				Expect(r.Elapsed).To(BeNumerically(">", 0))
			}
			// The initiating rank measures latency; the echoing rank does not.
			Expect(results[1].Latency.TotalAverage).To(BeNumerically(">", 0))
			Expect(results[1].Latency.Typical).To(BeNumerically(">", 0))
			Expect(results[0].Latency.TotalAverage).To(BeZero())

			for rank, reported := range finals {
				Expect(reported).ToNot(BeEmpty(), "rank %d", rank)
				last := reported[len(reported)-1]
				Expect(last.Final).To(BeTrue())
				Expect(last).To(Equal(results[rank]))
			}
		})
	})

	Describe("UniStream", func() {
		It("Should measure bandwidth and message rate on both ranks", func() {
			results, _ := runPair(engineParams(perf.TypeStreamUni))
			for rank, r := range results {
				Expect(r.Final).To(BeTrue())
				Expect(r.Iters).To(Equal(uint64(200)), "rank %d", rank)
				Expect(r.Bandwidth.TotalAverage).To(BeNumerically(">", 0))
				Expect(r.MsgRate.TotalAverage).To(BeNumerically(">", 0))
				Expect(r.Latency.TotalAverage).To(BeZero())
			}
		})
	})

	Describe("Cancellation", func() {
		It("Should stop a measured run when the context is cancelled", func() {
			p := engineParams(perf.TypePingPong)
			runtimes := collective.NewMemGroup(2)
			defer func() { _ = runtimes[0].Close() }()
			engine, err := perf.New(p)
			Expect(err).ToNot(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				// The echoing rank unblocks once the initiator stops; closing
				// the group below releases it either way.
				_, _ = engine.Run(context.Background(), p, collective.Wrap(runtimes[0], nil))
			}()
			_, err = engine.Run(ctx, p, collective.Wrap(runtimes[1], nil))
			Expect(err).To(MatchError(context.Canceled))
			Expect(runtimes[0].Close()).To(Succeed())
			<-done
		})
	})
})
