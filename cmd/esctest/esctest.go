// esctest exercises the driver board directly, bypassing the supervisory
// controller: it spins the motor up at a fixed duty cycle and prints
// telemetry until interrupted. Bench use only.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-team/kestrel/go-escd/pkg/motorctl"
	"github.com/kestrel-team/kestrel/go-escd/pkg/picoesc"
)

func main() {
	device := flag.String("device", picoesc.DefaultDevice, "I2C device file")
	addr := flag.Int("addr", picoesc.DefaultAddr, "I2C address of the board")
	dc := flag.Float64("dc", 0.2, "duty cycle to hold")
	poles := flag.Int("poles", 14, "motor pole count, for the RPM readout")
	reverse := flag.Bool("reverse", false, "spin in reverse")
	flag.Parse()

	fmt.Println("ESC board test program")

	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	board, err := picoesc.New(*device, *addr, zl.Sugar())
	if err != nil {
		panic(err)
	}
	if err := board.Init(); err != nil {
		panic(err)
	}
	defer board.Close() //nolint:errcheck

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Starting motor at dc=%.2f...\n", *dc)
	if err := board.Start(*dc, *dc, *reverse); err != nil {
		panic(err)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigs:
			fmt.Println("Stopping motor.")
			return
		case <-ticker.C:
		}

		if err := board.SetDutyCycle(*dc); err != nil {
			fmt.Println("Failed to set duty cycle:", err)
			continue
		}
		volts, amps := board.InputVoltageCurrent()
		cp := board.CommPeriod()
		fmt.Printf("%v %.2fV %.3fA cp=%d rpm=%d\n",
			board.State(), volts, amps, cp, motorctl.CommPeriodToRPM(cp, *poles))
	}
}
