// Package config loads the daemon configuration from a yaml file, filling
// in firmware defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Motor  MotorConfig  `yaml:"motor"`
	Driver DriverConfig `yaml:"driver"`
	CAN    CANConfig    `yaml:"can"`
}

type MotorConfig struct {
	SpinupVoltage   float64 `yaml:"spinup_voltage"`
	DCStepMax       float64 `yaml:"dc_step_max"`
	DCSlope         float64 `yaml:"dc_slope"`
	LowpassTau      float64 `yaml:"lowpass_tau"`
	Poles           int     `yaml:"poles"`
	Reverse         bool    `yaml:"reverse"`
	RPMMin          uint    `yaml:"rpm_min"`
	ControlPeriodUS int     `yaml:"control_period_us"`
	MinValidVoltage float64 `yaml:"min_valid_voltage"`
	MaxValidVoltage float64 `yaml:"max_valid_voltage"`
}

// ControlPeriod returns the control period as a time.Duration.
func (m MotorConfig) ControlPeriod() time.Duration {
	return time.Duration(m.ControlPeriodUS) * time.Microsecond
}

type DriverConfig struct {
	// Kind is "pico" for the I2C board or "fake" for the software driver.
	Kind      string `yaml:"kind"`
	I2CDevice string `yaml:"i2c_device"`
	I2CAddr   int    `yaml:"i2c_addr"`
}

type CANConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Interface  string `yaml:"interface"`
	FrameID    uint32 `yaml:"frame_id"`
	IntervalMS int    `yaml:"interval_ms"`
}

// Interval returns the status broadcast interval as a time.Duration.
func (c CANConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Default returns the configuration the board ships with.
func Default() *Config {
	return &Config{
		Motor: MotorConfig{
			SpinupVoltage:   2.0,
			DCStepMax:       0.2,
			DCSlope:         1.0,
			LowpassTau:      2.0,
			Poles:           14,
			RPMMin:          500,
			ControlPeriodUS: 1000,
			MinValidVoltage: 4.0,
			MaxValidVoltage: 40.0,
		},
		Driver: DriverConfig{
			Kind:      "pico",
			I2CDevice: "/dev/i2c-1",
			I2CAddr:   0x52,
		},
		CAN: CANConfig{
			Enabled:    false,
			Interface:  "can0",
			FrameID:    0x101,
			IntervalMS: 100,
		},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	m := c.Motor
	if m.SpinupVoltage <= 0 {
		return fmt.Errorf("spinup_voltage must be positive, got %v", m.SpinupVoltage)
	}
	if m.DCStepMax <= 0 || m.DCStepMax > 1 {
		return fmt.Errorf("dc_step_max must be in (0, 1], got %v", m.DCStepMax)
	}
	if m.DCSlope <= 0 {
		return fmt.Errorf("dc_slope must be positive, got %v", m.DCSlope)
	}
	if m.LowpassTau <= 0 {
		return fmt.Errorf("lowpass_tau must be positive, got %v", m.LowpassTau)
	}
	if m.Poles <= 0 {
		return fmt.Errorf("poles must be positive, got %d", m.Poles)
	}
	if m.ControlPeriodUS <= 0 {
		return fmt.Errorf("control_period_us must be positive, got %d", m.ControlPeriodUS)
	}
	if m.MinValidVoltage >= m.MaxValidVoltage {
		return fmt.Errorf("voltage band [%v, %v] is empty", m.MinValidVoltage, m.MaxValidVoltage)
	}
	switch c.Driver.Kind {
	case "pico", "fake":
	default:
		return fmt.Errorf("unknown driver kind %q", c.Driver.Kind)
	}
	if c.CAN.Enabled && c.CAN.IntervalMS <= 0 {
		return fmt.Errorf("can interval_ms must be positive, got %d", c.CAN.IntervalMS)
	}
	return nil
}
