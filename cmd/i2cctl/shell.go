package main

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cmaster/cmd/i2cctl/console"
	"github.com/mklimuk/i2cmaster/tmphm"
)

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive console over the simulated engine",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		rig := newSimRig(cfg)
		rl, err := readline.New("i2c> ")
		if err != nil {
			return console.Exit(1, "console initialization error: %s", console.Red(err))
		}
		defer func() { _ = rl.Close() }()

		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return console.Exit(1, "console error: %s", console.Red(err))
			}
			if done := dispatch(rig, cfg, strings.Fields(line)); done {
				return nil
			}
		}
	},
}

func dispatch(rig *simRig, cfg config, args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "exit", "quit":
		return true

	case "help":
		console.Printf("commands:\n" +
			"  status                     engine state and last error\n" +
			"  test auto                  run the full self test\n" +
			"  test not_reserved          verify rejection paths\n" +
			"  fault nack|wrong_addr|timeout   toggle fault injection\n" +
			"  read                       blocking measurement\n" +
			"  exit\n")

	case "status":
		console.Printf("state: %s  status: %s  last error: %s\n",
			console.White(rig.bus.State()), console.White(rig.bus.OpStatus()), console.White(rig.bus.LastError()))

	case "test":
		if len(args) < 2 {
			console.Warn("usage: test auto|not_reserved")
			return false
		}
		var err error
		switch args[1] {
		case "auto":
			err = runAutoTest(rig, cfg.sensor.Addr)
		case "not_reserved":
			err = runNotReservedTest(rig, cfg.sensor.Addr)
		default:
			console.Warnf("unknown test %q", args[1])
			return false
		}
		if err != nil {
			console.Errorf("test failed: %s", console.Red(err))
			return false
		}
		console.Printf("%s test completed\n", console.PictoFinish)

	case "fault":
		if len(args) < 2 {
			console.Warn("usage: fault nack|wrong_addr|timeout")
			return false
		}
		switch args[1] {
		case "nack":
			rig.faults.ForceNack = !rig.faults.ForceNack
			console.Infof("force nack: %s", onOff(rig.faults.ForceNack))
		case "wrong_addr":
			rig.faults.WrongAddress = !rig.faults.WrongAddress
			console.Infof("wrong address: %s", onOff(rig.faults.WrongAddress))
		case "timeout":
			rig.faults.ShortGuard = !rig.faults.ShortGuard
			console.Infof("short guard time: %s", onOff(rig.faults.ShortGuard))
		default:
			console.Warnf("unknown fault %q", args[1])
		}

	case "read":
		if rig.faults.ForceNack || rig.faults.WrongAddress || rig.faults.ShortGuard {
			resp, err := console.YesOrNo("faults are enabled, measure anyway?")
			if err != nil || resp != console.Yes {
				return false
			}
		}
		meas, err := tmphm.NewReader(rig.Transport(), cfg.sensor).Measure(context.Background())
		if err != nil {
			console.Errorf("measurement error: %s", console.Red(err))
			return false
		}
		printMeasurement(meas)

	default:
		console.Warnf("unknown command %q, try help", args[0])
	}
	return false
}

func onOff(v bool) string {
	if v {
		return console.Green("enabled")
	}
	return console.Yellow("disabled")
}
