// Package cmd implements the iox16-host command tree.
package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"iox16/host/bus"
	"iox16/host/config"
	"iox16/host/logging"
)

var rootCmd = &cobra.Command{
	Use:   "iox16-host",
	Short: "IOX16 bus master tool",
	Long: `Talk to IOX16 boards on a half-duplex serial bus: discover boards,
read inputs, drive outputs and manage calibration, thresholds and addresses.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup interupt handler for ctrl-c
	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt)
	go func() {
		s := <-quitChan
		log.Printf("got %v, exiting", s)
		cancel()
		// Failsafe if there is deadlocks
		<-time.After(10 * time.Second)
		log.Fatal("took to long to shutdown, forcefully exiting")
	}()

	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

var (
	comPort    string
	baudRate   int
	backend    string
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var errNoPort = errors.New("no serial port given, use --port (iox16-host ports lists them)")

func init() {
	log.SetFlags(0)
	rootCmd.PersistentFlags().StringVarP(&comPort, "port", "p", "", "serial port of the bus adapter")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baudrate", "b", 115200, "bus baud rate")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "serial driver: tarm or bugst")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "JSON or YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, op := range operations {
		rootCmd.AddCommand(op.command())
	}
}

// setup loads the configuration file and applies flag overrides.
func setup(cmd *cobra.Command, args []string) error {
	c := config.Default()
	if configFile != "" {
		var err error
		if c, err = config.LoadFile(configFile); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port.Device = comPort
	}
	if flags.Changed("baudrate") {
		c.Port.Baud = baudRate
	}
	if flags.Changed("backend") {
		c.Port.Backend = backend
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Logging)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// openMaster opens the configured port.
func openMaster() (*bus.Master, error) {
	if cfg.Port.Device == "" {
		return nil, errNoPort
	}
	return bus.Open(cfg.SerialConfig(), cfg.MasterConfig(), logger)
}
