package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/tmphm"
)

// fileConfig is the on-disk shape of the tool configuration. Durations are
// expressed in milliseconds; zero values fall back to the library defaults.
type fileConfig struct {
	GuardTimeMs    int    `yaml:"guard_time_ms"`
	SensorAddr     byte   `yaml:"sensor_addr"`
	SamplePeriodMs int    `yaml:"sample_period_ms"`
	MeasTimeMs     int    `yaml:"meas_time_ms"`
	Adapter        string `yaml:"adapter"`
	Device         string `yaml:"device"`
	GobotBus       int    `yaml:"gobot_bus"`
}

type config struct {
	bus      i2cmaster.Config
	sensor   tmphm.Config
	adapter  string
	device   string
	gobotBus int
}

func loadConfig(path string) (config, error) {
	cfg := config{
		bus:     i2cmaster.DefaultConfig(),
		sensor:  tmphm.DefaultConfig(),
		adapter: "sim",
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, fmt.Errorf("could not parse config file: %w", err)
	}
	if fc.GuardTimeMs > 0 {
		cfg.bus.GuardTime = time.Duration(fc.GuardTimeMs) * time.Millisecond
	}
	if fc.SensorAddr != 0 {
		cfg.sensor.Addr = fc.SensorAddr
	}
	if fc.SamplePeriodMs > 0 {
		cfg.sensor.SamplePeriod = time.Duration(fc.SamplePeriodMs) * time.Millisecond
	}
	if fc.MeasTimeMs > 0 {
		cfg.sensor.MeasTime = time.Duration(fc.MeasTimeMs) * time.Millisecond
	}
	if fc.Adapter != "" {
		cfg.adapter = fc.Adapter
	}
	cfg.device = fc.Device
	cfg.gobotBus = fc.GobotBus
	return cfg, nil
}
