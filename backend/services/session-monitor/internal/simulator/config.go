package simulator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "sparx/backend/libs/config"
)

// Config defines the session simulator configuration.
type Config struct {
	Port      string        `yaml:"port" toml:"port" env:"SIM_HTTP_PORT"`
	Token     string        `yaml:"token" toml:"token" env:"SIM_TOKEN"`
	Tick      time.Duration `yaml:"tick" toml:"tick" env:"SIM_TICK"`
	Voltage   float64       `yaml:"voltage" toml:"voltage" env:"SIM_VOLTAGE"`
	Current   float64       `yaml:"current" toml:"current" env:"SIM_CURRENT"`
	Step      float64       `yaml:"energyPerStep" toml:"energy_per_step" env:"SIM_ENERGY_PER_STEP"`
	Jitter    float64       `yaml:"jitter" toml:"jitter" env:"SIM_JITTER"`
	Seed      int64         `yaml:"seed" toml:"seed" env:"SIM_SEED"`
	AutoStart AutoStart     `yaml:"autoStart" toml:"auto_start"`
}

// AutoStart starts a session at boot when SessionID is set.
type AutoStart struct {
	SessionID      string  `yaml:"sessionId" toml:"session_id" env:"SIM_SESSION_ID"`
	DeviceID       string  `yaml:"deviceId" toml:"device_id" env:"SIM_DEVICE_ID"`
	AmountPaid     float64 `yaml:"amountPaid" toml:"amount_paid" env:"SIM_AMOUNT_PAID"`
	EnergySelected float64 `yaml:"energySelected" toml:"energy_selected" env:"SIM_ENERGY_SELECTED"`
}

// LoadConfig reads the simulator configuration via the shared helper.
func LoadConfig() (*Config, error) {
	cfg := &Config{Port: "8082", Tick: time.Second, Voltage: 230, Current: 16, Step: 0.01}
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Tick <= 0 {
		return nil, errors.New("simulator: tick must be positive")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8082"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// MeterOptions maps the config onto the meter.
func (c *Config) MeterOptions() MeterOptions {
	return MeterOptions{
		Voltage:       c.Voltage,
		Current:       c.Current,
		EnergyPerStep: c.Step,
		Jitter:        c.Jitter,
		Seed:          c.Seed,
	}
}
