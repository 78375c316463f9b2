// escd is the supervisory control daemon for the brushless motor driver
// board. It owns the control loop, exposes nothing upward besides the
// motorctl API (linked in by whoever embeds it) and optionally broadcasts
// status frames on a CAN bus.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/kestrel-team/kestrel/go-escd/pkg/canstatus"
	"github.com/kestrel-team/kestrel/go-escd/pkg/config"
	"github.com/kestrel-team/kestrel/go-escd/pkg/escdrv"
	"github.com/kestrel-team/kestrel/go-escd/pkg/motorctl"
	"github.com/kestrel-team/kestrel/go-escd/pkg/picoesc"
)

func main() {
	configPath := flag.String("config", "/etc/escd.yaml", "path to the daemon config")
	dummy := flag.Bool("dummy", false, "use the software fake driver instead of the I2C board")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer zl.Sync() //nolint:errcheck
	logger := zl.Sugar()

	if err := run(logger, *configPath, *dummy); err != nil {
		logger.Errorf("escd: %v", err)
		os.Exit(1)
	}
}

func run(logger *zap.SugaredLogger, configPath string, dummy bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel, logger)

	drv, err := openDriver(cfg, dummy, logger)
	if err != nil {
		return err
	}
	defer drv.Close() //nolint:errcheck

	ctl, err := motorctl.New(drv, motorctl.Params{
		SpinupVoltage:   cfg.Motor.SpinupVoltage,
		DCStepMax:       cfg.Motor.DCStepMax,
		DCSlope:         cfg.Motor.DCSlope,
		LowpassTau:      cfg.Motor.LowpassTau,
		Poles:           cfg.Motor.Poles,
		Reverse:         cfg.Motor.Reverse,
		RPMMin:          cfg.Motor.RPMMin,
		ControlPeriod:   cfg.Motor.ControlPeriod(),
		MinValidVoltage: cfg.Motor.MinValidVoltage,
		MaxValidVoltage: cfg.Motor.MaxValidVoltage,
	}, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go ctl.Loop(ctx, &wg)

	if cfg.CAN.Enabled {
		writer, err := canstatus.NewSocketCANWriter(ctx, cfg.CAN.Interface)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		defer writer.Close() //nolint:errcheck

		pub := canstatus.NewPublisher(ctl, writer, cfg.CAN.FrameID, cfg.CAN.Interval(), logger)
		wg.Add(1)
		go pub.Loop(ctx, &wg)
		logger.Infof("CAN status on %s, frame 0x%X every %v",
			cfg.CAN.Interface, cfg.CAN.FrameID, cfg.CAN.Interval())
	}

	logger.Info("escd up")
	<-ctx.Done()
	wg.Wait()
	return nil
}

func openDriver(cfg *config.Config, dummy bool, logger *zap.SugaredLogger) (escdrv.Interface, error) {
	if dummy || cfg.Driver.Kind == "fake" {
		logger.Info("using the software fake driver")
		return escdrv.NewFake(), nil
	}
	return picoesc.New(cfg.Driver.I2CDevice, cfg.Driver.I2CAddr, logger)
}

func registerSignalHandlers(cancel context.CancelFunc, logger *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logger.Infof("received %v, shutting down", s)
		cancel()
	}()
}
