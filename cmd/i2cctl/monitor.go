package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cmaster/cmd/i2cctl/console"
	"github.com/mklimuk/i2cmaster/tmphm"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "continuously sample the sensor and print measurements",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "sim, mock, mcp2221, host or nanopi",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "stop after this many measurements (0 runs until interrupted)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("adapter") {
			cfg.adapter = c.String("adapter")
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.adapter == "sim" {
			return monitorSim(ctx, cfg, c.Int("count"))
		}
		return monitorSource(ctx, cfg, c.Int("count"))
	},
}

// monitorSim runs the full asynchronous stack the way the firmware does:
// one super loop pumping the interrupt controller, the timer service, the
// sampler and the engine.
func monitorSim(ctx context.Context, cfg config, count int) error {
	rig := newSimRig(cfg)
	sampler := tmphm.NewSampler(rig.bus, rig.timers, cfg.sensor)
	if err := sampler.Start(); err != nil {
		return console.Exit(1, "sampler start error: %s", console.Red(err))
	}
	printed := 0
	var lastAt time.Time
	for ctx.Err() == nil {
		rig.Pump()
		sampler.Run()
		if err := rig.bus.Run(); err != nil {
			console.Errorf("engine error: %s", console.Red(err))
		}
		if meas, age, err := sampler.LastMeasurement(); err == nil {
			at := rig.timers.Now().Add(-age)
			if at.After(lastAt) {
				lastAt = at
				printMeasurement(meas)
				printed++
				if count > 0 && printed >= count {
					return nil
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// monitorSource polls a measurement source synchronously at the sample period.
func monitorSource(ctx context.Context, cfg config, count int) error {
	source, cleanup, err := newSource(cfg)
	if err != nil {
		return console.Exit(1, "adapter initialization error: %s", console.Red(err))
	}
	defer cleanup()
	ticker := time.NewTicker(cfg.sensor.SamplePeriod)
	defer ticker.Stop()
	printed := 0
	for {
		meas, err := source.Measure(ctx)
		if err != nil {
			console.Errorf("measurement error: %s", console.Red(err))
		} else {
			printMeasurement(meas)
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printMeasurement(meas tmphm.Measurement) {
	console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(meas.Temperature), console.PictoHumidity, console.White(meas.Humidity))
}
