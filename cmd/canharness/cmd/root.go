package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:               "canharness",
	Short:             "Periodic CAN bus exchange tester",
	Long:              `Fires a transmitter and a receiver task against a bus controller at a fixed period and reports every classified transmit and receive.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

var logger = zap.NewNop()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagPort     = "port"
	flagBaudrate = "baudrate"
	flagDebug    = "debug"
	flagAdapter  = "adapter"

	defaultAdapter = "Loopback"
	promptAdapter  = "?"
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP(flagPort, "p", "", "com-port or CAN interface")
	pf.IntP(flagBaudrate, "b", 115200, "com-port baudrate")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.StringP(flagAdapter, "a", defaultAdapter, "what adapter to use, ? to pick from a list")
}

func setupLogger(cmd *cobra.Command, _ []string) error {
	debug, err := cmd.Flags().GetBool(flagDebug)
	if err != nil {
		return err
	}
	var l *zap.Logger
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(l)
	return nil
}
