package report

import (
	"fmt"
	"io"

	"github.com/arya-analytics/gauge/pkg/perf"
	"github.com/arya-analytics/gauge/pkg/rte"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer renders results as the classic perftest table. By convention the
// server prints the test header and the client prints result rows, but both
// are plain flags so callers may assign responsibility however they like.
type Printer struct {
	// Writer receives all output.
	Writer io.Writer
	// PrintTest enables the test-configuration header.
	PrintTest bool
	// PrintResults enables per-report result rows and the overall footer.
	PrintResults bool
	// Numeric formats counters with a thousands separator.
	Numeric bool
}

var _ rte.Sink = (*Printer)(nil)

// Header prints the test-configuration banner and, when result rows are
// enabled, the column headings.
func (p *Printer) Header(params perf.Params) {
	if p.PrintTest {
		fmt.Fprintf(p.Writer, "+------------------------------------------------------------------------------------------+\n")
		fmt.Fprintf(p.Writer, "| API:          %-60s               |\n", params.Command)
		fmt.Fprintf(p.Writer, "| Test type:    %-60s               |\n", params.TestType)
		fmt.Fprintf(p.Writer, "| Message size: %-60d               |\n", params.MessageSize)
	}
	if p.PrintResults {
		fmt.Fprintf(p.Writer, "+--------------+-----------------------------+---------------------+-----------------------+\n")
		fmt.Fprintf(p.Writer, "|              |       latency (usec)        |   bandwidth (MB/s)  |  message rate (msg/s) |\n")
		fmt.Fprintf(p.Writer, "+--------------+---------+---------+---------+----------+----------+-----------+-----------+\n")
		fmt.Fprintf(p.Writer, "| # iterations | typical | average | overall |  average |  overall |   average |   overall |\n")
		fmt.Fprintf(p.Writer, "+--------------+---------+---------+---------+----------+----------+-----------+-----------+\n")
	} else if p.PrintTest {
		fmt.Fprintf(p.Writer, "+------------------------------------------------------------------------------------------+\n")
	}
}

// Report prints one result row. Final snapshots are preceded by the overall
// divider.
func (p *Printer) Report(r rte.Result) {
	if !p.PrintResults {
		return
	}
	if r.Final {
		fmt.Fprintf(p.Writer, "+Overall-------+---------+---------+---------+----------+----------+-----------+-----------+\n")
	}
	const layout = "%14.0f %9.3f %9.3f %9.3f %10.2f %10.2f %11.0f %11.0f\n"
	args := []any{
		float64(r.Iters),
		r.Latency.Typical * 1e6,
		r.Latency.MomentAverage * 1e6,
		r.Latency.TotalAverage * 1e6,
		r.Bandwidth.MomentAverage / (1024.0 * 1024.0),
		r.Bandwidth.TotalAverage / (1024.0 * 1024.0),
		r.MsgRate.MomentAverage,
		r.MsgRate.TotalAverage,
	}
	if p.Numeric {
		message.NewPrinter(language.English).Fprintf(p.Writer, layout, args...)
		return
	}
	fmt.Fprintf(p.Writer, layout, args...)
}
