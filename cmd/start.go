package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/arya-analytics/gauge/pkg/perf"
	"github.com/arya-analytics/gauge/pkg/report"
	reportfiber "github.com/arya-analytics/gauge/pkg/report/fiber"
	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/arya-analytics/gauge/pkg/rte/collective"
	"github.com/arya-analytics/gauge/pkg/rte/mesh"
	"github.com/arya-analytics/gauge/pkg/rte/sockrte"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// startCmd runs one benchmark session as one peer of the exchange group.
var startCmd = &cobra.Command{
	Use:   "start [server-hostname]",
	Short: "Run a benchmark as one peer of the exchange group",
	Long: `Start runs one benchmark session. Without a server hostname the
process acts as the server: it binds the configured port, waits for a single
peer, and adopts the peer's test parameters. With a server hostname it acts
as the client: it validates the device and transport names, connects out,
and seeds the group's parameters.

With --mesh-peers the process instead joins a libp2p mesh group of arbitrary
size, using the rank-ordered membership list for discovery.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := configureLogging()
		if err != nil {
			return err
		}

		params, err := newParams()
		if err != nil {
			return err
		}

		serverAddr := ""
		if len(args) > 0 {
			serverAddr = args[0]
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, os.Interrupt)
		go func() {
			<-sigC
			cancel()
		}()

		meshPeers := viper.GetStringSlice("mesh-peers")
		printer := newPrinter(serverAddr, len(meshPeers) > 0)
		sink, shutdownHTTP, err := configureSinks(printer, logger)
		if err != nil {
			return err
		}
		defer shutdownHTTP()

		var group rte.Group
		if len(meshPeers) > 0 {
			if err := params.Validate(); err != nil {
				return err
			}
			runtime, err := mesh.Join(ctx, mesh.Config{
				Rank:        viper.GetUint("mesh-rank"),
				Peers:       meshPeers,
				ListenAddrs: viper.GetStringSlice("mesh-listen"),
				Logger:      logger.Named("mesh"),
			})
			if err != nil {
				return err
			}
			defer func() { _ = runtime.Close() }()
			group = collective.Wrap(runtime, sink)
		} else {
			sockGroup, err := sockrte.Setup(sockrte.Config{
				ServerAddr:      serverAddr,
				Port:            viper.GetInt("port"),
				Params:          params,
				DevName:         viper.GetString("device"),
				TLName:          viper.GetString("transport"),
				Sink:            sink,
				BarrierDeadline: viper.GetDuration("barrier-deadline"),
				Logger:          logger.Named("sockrte"),
			})
			if err != nil {
				return err
			}
			defer func() { _ = sockGroup.Close() }()
			// The server adopts the parameters seeded by the client.
			params = sockGroup.Params()
			group = sockGroup
		}

		engine, err := perf.New(params)
		if err != nil {
			return err
		}

		printer.Header(params)
		result, err := engine.Run(ctx, params, group)
		if err != nil {
			return err
		}
		logger.Info("benchmark complete",
			zap.Uint64("iters", result.Iters),
			zap.Duration("elapsed", result.Elapsed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().IntP("port", "p", 13337, "TCP port to use for data exchange.")
	startCmd.Flags().StringP("device", "d", "", "Device to use for testing.")
	startCmd.Flags().StringP("transport", "x", "", "Transport to use for testing.")
	startCmd.Flags().StringP(
		"test", "t", "",
		"Test to run: put_lat, put_bw, or am_lat.",
	)
	startCmd.Flags().Uint64P("iters", "n", 1000000, "Number of iterations to run.")
	startCmd.Flags().Uint64P("size", "s", 8, "Message size in bytes.")
	startCmd.Flags().Uint64P("warmup", "w", 10000, "Number of warm-up iterations.")
	startCmd.Flags().Float64("report-interval", 1.0, "Seconds between progress reports.")
	startCmd.Flags().BoolP("numeric", "N", false, "Use a thousands separator in results.")
	startCmd.Flags().Duration(
		"barrier-deadline", 0,
		"Optional bound on each barrier exchange. Zero blocks forever.",
	)
	startCmd.Flags().String(
		"http-address", "",
		"Serve the latest result as JSON on this address.",
	)
	startCmd.Flags().StringSlice(
		"mesh-peers", nil,
		"Rank-ordered multiaddrs of every mesh group member.",
	)
	startCmd.Flags().Uint("mesh-rank", 0, "This process's rank in the mesh group.")
	startCmd.Flags().StringSlice(
		"mesh-listen", nil,
		"Multiaddrs the mesh node listens on.",
	)

	if err := viper.BindPFlags(startCmd.Flags()); err != nil {
		panic(err)
	}
}

func configureLogging() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newParams() (perf.Params, error) {
	params := perf.Default()
	if name := viper.GetString("test"); name != "" {
		command, testType, err := perf.ParseTest(name)
		if err != nil {
			return params, err
		}
		params.Command = command
		params.TestType = testType
	}
	params.MaxIters = viper.GetUint64("iters")
	params.MessageSize = viper.GetUint64("size")
	params.WarmupIters = viper.GetUint64("warmup")
	params.ReportInterval = viper.GetFloat64("report-interval")
	return params, nil
}

// newPrinter assigns the default presentation responsibilities: the socket
// server prints the test header, the socket client prints result rows, and
// mesh rank 0 prints result rows.
func newPrinter(serverAddr string, meshMode bool) *report.Printer {
	printer := &report.Printer{Writer: os.Stdout, Numeric: viper.GetBool("numeric")}
	switch {
	case meshMode:
		printer.PrintResults = viper.GetUint("mesh-rank") == 0
	case serverAddr == "":
		printer.PrintTest = true
	default:
		printer.PrintResults = true
	}
	return printer
}

func configureSinks(
	printer *report.Printer,
	logger *zap.Logger,
) (rte.Sink, func(), error) {
	sink := report.Fanout{printer}
	addr := viper.GetString("http-address")
	if addr == "" {
		return sink, func() {}, nil
	}

	service := &reportfiber.Service{RunID: uuid.New()}
	sink = append(sink, service)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	service.BindTo(app)
	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Error("result server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving results",
		zap.String("address", addr),
		zap.Stringer("run", service.RunID),
	)
	shutdown := func() { _ = app.Shutdown() }
	return sink, shutdown, nil
}
