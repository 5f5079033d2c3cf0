package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"iox16/core"
	"iox16/host/config"
	"iox16/host/logging"
	"iox16/host/metrics"
	"iox16/host/serial"
	"iox16/host/sim"
)

var (
	simAddress  int
	simMetrics  string
	simLoopback bool
	simSettings string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "run a simulated board on a serial port",
	Long: `Run the board firmware against a simulated I/O bank, answering on the
given serial port like a real board. Counters are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Port.Device == "" {
			return errNoPort
		}
		sc := cfg.Simulate
		flags := cmd.Flags()
		if flags.Changed("address") {
			sc.Address = simAddress
		}
		if flags.Changed("metrics") {
			sc.MetricsAddr = simMetrics
		}
		if flags.Changed("loopback") {
			sc.Loopback = simLoopback
		}
		if flags.Changed("settings") {
			sc.SettingsFile = simSettings
		}
		cfg.Simulate = sc
		if err := cfg.Validate(); err != nil {
			return err
		}

		port, err := serial.Open(cfg.SerialConfig())
		if err != nil {
			return err
		}
		line := serial.NewLine(port, cfg.Port.Baud)
		defer line.Close()

		return simulate(cmd.Context(), line, cfg, logger)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simAddress, "address", core.AddressFromSettings, "fixed bus address, -1 uses the stored settings")
	simulateCmd.Flags().StringVar(&simMetrics, "metrics", ":9116", "listen address of the metrics endpoint, empty disables it")
	simulateCmd.Flags().BoolVar(&simLoopback, "loopback", false, "feed output duty cycles back into the inputs")
	simulateCmd.Flags().StringVar(&simSettings, "settings", "", "file that keeps the board settings across runs")
	rootCmd.AddCommand(simulateCmd)
}

// lineBoard is a simulated I/O bank answering on a real serial line.
type lineBoard struct {
	*sim.Board
	line *serial.Line
}

func (b *lineBoard) TryReadByte() (byte, bool)     { return b.line.TryReadByte() }
func (b *lineBoard) WriteBytes(p []byte) error     { return b.line.WriteBytes(p) }
func (b *lineBoard) SetDirection(d core.Direction) { b.line.SetDirection(d) }
func (b *lineBoard) TransmitComplete() bool        { return b.line.TransmitComplete() }

// simulate runs the firmware and the metrics endpoint until ctx ends.
func simulate(ctx context.Context, line *serial.Line, c *config.Config, log *zap.Logger) error {
	sc := c.Simulate
	if sc.Debug || log.Core().Enabled(zap.DebugLevel) {
		core.SetDebugWriter(logging.DebugWriter(log))
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	reg := metrics.NewRegistry()
	collector := metrics.NewFirmwareCollector()
	reg.MustRegister(collector)

	g, ctx := errgroup.WithContext(ctx)
	if sc.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: sc.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", sc.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	board := &lineBoard{Board: sim.NewRealtime(), line: line}
	board.SetLoopback(sc.Loopback)

	var storage core.Storage = &core.MemoryStorage{}
	if sc.SettingsFile != "" {
		storage = &config.FileStorage{Path: sc.SettingsFile}
	}

	g.Go(func() error {
		err := runBoard(ctx, board, storage, c.FirmwareConfig(), collector, log)
		logging.LogEvents(log.Named("events"))
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runBoard polls the firmware and starts a fresh instance after every
// reboot, the way a board comes back up with its stored settings.
func runBoard(ctx context.Context, board *lineBoard, storage core.Storage, fwCfg core.Config, collector *metrics.FirmwareCollector, log *zap.Logger) error {
	reboot := make(chan struct{}, 1)
	board.OnReboot(func() {
		select {
		case reboot <- struct{}{}:
		default:
		}
	})

	const snapshotEvery = 250 * time.Millisecond
	for {
		fw := core.New(board, storage, fwCfg)
		log.Info("board started",
			zap.Uint8("address", fw.Address()),
			zap.Uint32("baud", fw.ActiveConfig().Baud),
			zap.String("name", fwCfg.Name))

		last := time.Now()
	poll:
		for {
			select {
			case <-ctx.Done():
				collector.Update(metrics.TakeSnapshot(fw))
				return ctx.Err()
			case <-reboot:
				log.Info("board rebooting")
				break poll
			default:
			}

			fw.Poll()
			if time.Since(last) >= snapshotEvery {
				collector.Update(metrics.TakeSnapshot(fw))
				last = time.Now()
			}
			time.Sleep(20 * time.Microsecond)
		}
	}
}
