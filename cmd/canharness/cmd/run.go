package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devboard/canharness"
	"github.com/devboard/canharness/pkg/bar"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagPeriod       = "period"
	flagID           = "id"
	flagCount        = "count"
	flagDelay        = "delay"
	flagTxTimeout    = "tx-timeout"
	flagRxTimeout    = "rx-timeout"
	flagTxPolicy     = "tx-policy"
	flagRxPolicy     = "rx-policy"
	flagCycles       = "cycles"
	flagSlots        = "slots"
	flagRate         = "rate"
	flagMode         = "mode"
	flagTxPin        = "tx-pin"
	flagRxPin        = "rx-pin"
	flagNoLoopback   = "no-loopback"
	flagStartupDelay = "startup-delay"
	flagProgress     = "progress"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic transmit/receive exchange",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags()
		if err != nil {
			return err
		}
		ctl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer ctl.Close()

		progress := runFlags.progress
		var hub *canharness.Hub
		if progress {
			hub = canharness.NewHub(canharness.NewZapSink(logger))
		} else {
			hub = canharness.NewHub(canharness.NewConsoleSink(cmd.OutOrStdout(), !color.NoColor))
		}

		ctx := cmd.Context()
		h, err := canharness.New(ctx, ctl, cfg, canharness.WithLogger(logger), canharness.WithSink(hub))
		if err != nil {
			return err
		}

		if progress {
			sub := hub.Subscribe(256, canharness.TaskReceive)
			defer sub.Close()
			go showProgress(ctx, sub, cfg)
		}

		err = h.Run(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), h.Stats())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func showProgress(ctx context.Context, sub *canharness.Subscriber, cfg canharness.Config) {
	total := 0
	if cfg.Cycles > 0 {
		total = int(cfg.Cycles) * cfg.Exchange.MessageCount
	}
	pb := bar.New(total, cfg.Exchange.Identifier)
	defer pb.Finish()
	for {
		r, ok := sub.Wait(ctx)
		if !ok {
			return
		}
		pb.Received(r.Outcome == canharness.Success)
	}
}

var runFlags struct {
	cfg        canharness.Config
	txPolicy   string
	rxPolicy   string
	mode       string
	noLoopback bool
	progress   bool
}

func init() {
	runFlags.cfg = canharness.DefaultConfig()
	cfg := &runFlags.cfg
	f := runCmd.Flags()
	f.DurationVar(&cfg.Period, flagPeriod, cfg.Period, "dispatcher period")
	f.Uint32Var(&cfg.Exchange.Identifier, flagID, cfg.Exchange.Identifier, "11 bit message identifier")
	f.IntVar(&cfg.Exchange.MessageCount, flagCount, cfg.Exchange.MessageCount, "messages per cycle")
	f.DurationVar(&cfg.Exchange.Delay, flagDelay, cfg.Exchange.Delay, "delay between transmitted messages")
	f.DurationVar(&cfg.Exchange.TransmitTimeout, flagTxTimeout, cfg.Exchange.TransmitTimeout, "transmit timeout, negative waits forever")
	f.DurationVar(&cfg.Exchange.ReceiveTimeout, flagRxTimeout, cfg.Exchange.ReceiveTimeout, "receive timeout, negative waits forever")
	f.StringVar(&runFlags.txPolicy, flagTxPolicy, cfg.Exchange.TransmitPolicy.String(), "on transmit failure: continue|abort")
	f.StringVar(&runFlags.rxPolicy, flagRxPolicy, cfg.Exchange.ReceivePolicy.String(), "on receive failure: continue|abort")
	f.Uint64Var(&cfg.Cycles, flagCycles, cfg.Cycles, "stop after this many cycles, 0 runs until interrupted")
	f.IntVar(&cfg.Slots, flagSlots, cfg.Slots, "concurrent task slots")
	f.Float64Var(&cfg.Bus.CANRate, flagRate, cfg.Bus.CANRate, "CAN rate in kbit/s")
	f.StringVar(&runFlags.mode, flagMode, cfg.Bus.Mode.String(), "controller mode: normal|no-ack|listen-only")
	f.IntVar(&cfg.Bus.TxPin, flagTxPin, cfg.Bus.TxPin, "controller tx pin")
	f.IntVar(&cfg.Bus.RxPin, flagRxPin, cfg.Bus.RxPin, "controller rx pin")
	f.BoolVar(&runFlags.noLoopback, flagNoLoopback, false, "disable self reception")
	f.DurationVar(&cfg.StartupDelay, flagStartupDelay, 0, "wait before configuring the controller")
	f.BoolVar(&runFlags.progress, flagProgress, false, "show a progress bar instead of per frame output")
	rootCmd.AddCommand(runCmd)
}

func configFromFlags() (canharness.Config, error) {
	cfg := runFlags.cfg
	var err error
	if cfg.Exchange.TransmitPolicy, err = canharness.ParseErrorPolicy(runFlags.txPolicy); err != nil {
		return cfg, err
	}
	if cfg.Exchange.ReceivePolicy, err = canharness.ParseErrorPolicy(runFlags.rxPolicy); err != nil {
		return cfg, err
	}
	if cfg.Bus.Mode, err = canharness.ParseMode(runFlags.mode); err != nil {
		return cfg, err
	}
	cfg.Exchange.TransmitTimeout = normalizeTimeout(cfg.Exchange.TransmitTimeout)
	cfg.Exchange.ReceiveTimeout = normalizeTimeout(cfg.Exchange.ReceiveTimeout)
	cfg.Bus.Loopback = !runFlags.noLoopback
	logger.Debug("configuration", zap.Any("config", cfg))
	return cfg, cfg.Validate()
}

func normalizeTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return canharness.Forever
	}
	return d
}
