package main

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/cmd/i2cctl/console"
)

var testCmd = cli.Command{
	Name:  "test",
	Usage: "exercise the transaction engine against the simulated sensor",
	Subcommands: []*cli.Command{
		{
			Name:  "auto",
			Usage: "run the full reserve/write/read/release self test",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "fault-nack",
					Usage: "classify any error as an ack failure (unplugged sensor)",
				},
				&cli.BoolFlag{
					Name:  "fault-wrong-addr",
					Usage: "address a device that is not there",
				},
				&cli.BoolFlag{
					Name:  "fault-timeout",
					Usage: "shrink the guard time below the transaction length",
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c.String("config"))
				if err != nil {
					return console.Exit(1, "configuration error: %s", console.Red(err))
				}
				rig := newSimRig(cfg)
				rig.faults.ForceNack = c.Bool("fault-nack")
				rig.faults.WrongAddress = c.Bool("fault-wrong-addr")
				rig.faults.ShortGuard = c.Bool("fault-timeout")
				if err := runAutoTest(rig, cfg.sensor.Addr); err != nil {
					return console.Exit(1, "%s auto test failed: %s", console.PictoStop, console.Red(err))
				}
				console.Printf("%s auto test completed\n", console.PictoFinish)
				return nil
			},
		},
		{
			Name:  "not-reserved",
			Usage: "verify operations are rejected without a reservation",
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c.String("config"))
				if err != nil {
					return console.Exit(1, "configuration error: %s", console.Red(err))
				}
				if err := runNotReservedTest(newSimRig(cfg), cfg.sensor.Addr); err != nil {
					return console.Exit(1, "%s test failed: %s", console.PictoStop, console.Red(err))
				}
				console.Printf("%s all checks passed\n", console.PictoFinish)
				return nil
			},
		},
	},
}

// runAutoTest drives the attached self test to completion through the
// periodic pump, the same way the firmware super loop does.
func runAutoTest(rig *simRig, addr byte) error {
	rig.bus.StartSelfTest(addr)
	deadline := time.Now().Add(5 * time.Second)
	for rig.bus.SelfTestActive() {
		if time.Now().After(deadline) {
			return errors.New("self test did not finish in time")
		}
		rig.Pump()
		if err := rig.bus.Run(); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// runNotReservedTest checks the rejection paths and that the proper sequence
// still works afterwards.
func runNotReservedTest(rig *simRig, addr byte) error {
	buf := []byte{0x2C, 0x06}

	console.Info("calling write without a reservation")
	if err := rig.bus.Write(addr, buf); !errors.Is(err, i2cmaster.ErrNotReserved) {
		return errors.New("write did not report a missing reservation")
	}
	console.Printf("  %s write rejected\n", console.Green("PASS"))

	console.Info("calling read without a reservation")
	if err := rig.bus.Read(addr, buf); !errors.Is(err, i2cmaster.ErrNotReserved) {
		return errors.New("read did not report a missing reservation")
	}
	console.Printf("  %s read rejected\n", console.Green("PASS"))

	console.Info("verifying reserve/write still works")
	if err := rig.bus.Reserve(); err != nil {
		return err
	}
	defer func() { _ = rig.bus.Release() }()
	if err := rig.bus.Write(addr, buf); err != nil {
		return err
	}
	for rig.bus.OpStatus() == i2cmaster.StatusInProgress {
		rig.Pump()
	}
	if rig.bus.OpStatus() != i2cmaster.StatusOK {
		return errors.New("write after reserve failed: " + rig.bus.LastError().String())
	}
	console.Printf("  %s proper sequence works\n", console.Green("PASS"))
	return nil
}
