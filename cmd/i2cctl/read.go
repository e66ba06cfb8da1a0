package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cmaster/cmd/i2cctl/console"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"temp"},
	Usage:   "perform a single temperature/humidity measurement",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "sim, mock, mcp2221, host or nanopi",
		},
		&cli.BoolFlag{Name: "verbose"},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		console.Trace = console.IsVerbose(ctx)
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("adapter") {
			cfg.adapter = c.String("adapter")
		}
		console.Debugf("using adapter %q", cfg.adapter)
		source, cleanup, err := newSource(cfg)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer cleanup()
		meas, err := source.Measure(ctx)
		if err != nil {
			return console.Exit(1, "error getting measurement: %s", console.Red(err))
		}
		console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(meas.Temperature), console.PictoHumidity, console.White(meas.Humidity))
		return nil
	},
}
