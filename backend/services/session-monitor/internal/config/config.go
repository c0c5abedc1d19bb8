package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "sparx/backend/libs/config"
	"sparx/backend/services/session-monitor/internal/pause"
	"sparx/backend/services/session-monitor/internal/telemetry"
)

// HTTPConfig is the monitor's own listener.
type HTTPConfig struct {
	Port      string `yaml:"port" toml:"port" env:"MONITOR_HTTP_PORT"`
	JWTSecret string `yaml:"jwtSecret" toml:"jwt_secret" env:"MONITOR_JWT_SECRET"`
}

// BackendConfig points at the session service being polled.
type BackendConfig struct {
	BaseURL   string        `yaml:"baseUrl" toml:"base_url" env:"MONITOR_BACKEND_URL"`
	Token     string        `yaml:"token" toml:"token" env:"MONITOR_BACKEND_TOKEN"`
	TokenFile string        `yaml:"tokenFile" toml:"token_file" env:"MONITOR_BACKEND_TOKEN_FILE"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout" env:"MONITOR_BACKEND_TIMEOUT"`
}

// MonitorConfig tunes the reconciliation loop.
type MonitorConfig struct {
	PollInterval       time.Duration     `yaml:"pollInterval" toml:"poll_interval" env:"MONITOR_POLL_INTERVAL"`
	StaleCheckInterval time.Duration     `yaml:"staleCheckInterval" toml:"stale_check_interval" env:"MONITOR_STALE_CHECK_INTERVAL"`
	DeadTime           time.Duration     `yaml:"deadTime" toml:"dead_time" env:"MONITOR_DEAD_TIME"`
	CountdownSeconds   int               `yaml:"countdownSeconds" toml:"countdown_seconds" env:"MONITOR_COUNTDOWN_SECONDS"`
	NoiseTolerance     float64           `yaml:"noiseTolerance" toml:"noise_tolerance" env:"MONITOR_NOISE_TOLERANCE"`
	ResetTolerance     float64           `yaml:"resetTolerance" toml:"reset_tolerance" env:"MONITOR_RESET_TOLERANCE"`
	VoltageThreshold   float64           `yaml:"voltageThreshold" toml:"voltage_threshold" env:"MONITOR_VOLTAGE_THRESHOLD"`
	CurrentThreshold   float64           `yaml:"currentThreshold" toml:"current_threshold" env:"MONITOR_CURRENT_THRESHOLD"`
	EnergyThreshold    float64           `yaml:"energyThreshold" toml:"energy_threshold" env:"MONITOR_ENERGY_THRESHOLD"`
	PowerThreshold     float64           `yaml:"powerThreshold" toml:"power_threshold" env:"MONITOR_POWER_THRESHOLD"`
	ButtonVoltageMin   float64           `yaml:"buttonVoltageMin" toml:"button_voltage_min" env:"MONITOR_BUTTON_VOLTAGE_MIN"`
	ButtonVoltageMax   float64           `yaml:"buttonVoltageMax" toml:"button_voltage_max" env:"MONITOR_BUTTON_VOLTAGE_MAX"`
	RelayOffReason     string            `yaml:"relayOffReason" toml:"relay_off_reason" env:"MONITOR_RELAY_OFF_REASON"`
	StaleReason        string            `yaml:"staleReason" toml:"stale_reason" env:"MONITOR_STALE_REASON"`
	StatusReasons      map[string]string `yaml:"statusReasons" toml:"status_reasons" env:"MONITOR_STATUS_REASONS"`
}

// RedisConfig is optional; without an address snapshots and the terminal claim are skipped.
type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr" env:"MONITOR_REDIS_ADDR"`
	Password string        `yaml:"password" toml:"password" env:"MONITOR_REDIS_PASSWORD"`
	DB       int           `yaml:"db" toml:"db" env:"MONITOR_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl" env:"MONITOR_REDIS_TTL"`
}

// JournalConfig selects the event journal database. An empty DSN disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver" toml:"driver" env:"MONITOR_JOURNAL_DRIVER"`
	DSN    string `yaml:"dsn" toml:"dsn" env:"MONITOR_JOURNAL_DSN"`
	// Buffer is how many entries may wait for the writer before new ones are dropped.
	Buffer int `yaml:"buffer" toml:"buffer" env:"MONITOR_JOURNAL_BUFFER"`
}

// Config defines session monitor configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Monitor MonitorConfig `yaml:"monitor" toml:"monitor"`
	Redis   RedisConfig   `yaml:"redis" toml:"redis"`
	Journal JournalConfig `yaml:"journal" toml:"journal"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	th := telemetry.DefaultThresholds()
	rules := pause.DefaultRules()
	return &Config{
		HTTP: HTTPConfig{Port: "8090"},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:       5 * time.Second,
			StaleCheckInterval: telemetry.DefaultCheckInterval,
			DeadTime:           telemetry.DefaultDeadTime,
			CountdownSeconds:   pause.DefaultCountdownSeconds,
			NoiseTolerance:     telemetry.DefaultNoiseTolerance,
			ResetTolerance:     telemetry.DefaultResetTolerance,
			VoltageThreshold:   th.Voltage,
			CurrentThreshold:   th.Current,
			EnergyThreshold:    th.Energy,
			PowerThreshold:     th.Power,
			ButtonVoltageMin:   rules.ButtonVoltageMin,
			ButtonVoltageMax:   rules.ButtonVoltageMax,
			RelayOffReason:     string(rules.RelayOffReason),
			StaleReason:        string(rules.StaleReason),
		},
		Redis: RedisConfig{TTL: 24 * time.Hour},
		Journal: JournalConfig{
			Driver: "sqlite",
			Buffer: 256,
		},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and the pause rule names.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("config: backend base url required")
	}
	if c.Monitor.PollInterval <= 0 {
		return errors.New("config: poll interval must be positive")
	}
	if c.Monitor.StaleCheckInterval <= 0 {
		return errors.New("config: stale check interval must be positive")
	}
	if c.Monitor.ButtonVoltageMax < c.Monitor.ButtonVoltageMin {
		return errors.New("config: button voltage band is inverted")
	}
	if _, err := c.PauseRules(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Thresholds returns the change-detection thresholds.
func (c *Config) Thresholds() telemetry.Thresholds {
	return telemetry.Thresholds{
		Voltage: c.Monitor.VoltageThreshold,
		Current: c.Monitor.CurrentThreshold,
		Energy:  c.Monitor.EnergyThreshold,
		Power:   c.Monitor.PowerThreshold,
	}
}

// PauseRules builds the classifier rules. A configured status table replaces the default one.
func (c *Config) PauseRules() (pause.Rules, error) {
	rules := pause.DefaultRules()
	rules.ButtonVoltageMin = c.Monitor.ButtonVoltageMin
	rules.ButtonVoltageMax = c.Monitor.ButtonVoltageMax

	if raw := strings.TrimSpace(c.Monitor.RelayOffReason); raw != "" {
		r, err := pause.ParseReason(raw)
		if err != nil {
			return pause.Rules{}, fmt.Errorf("config: relay off reason: %w", err)
		}
		rules.RelayOffReason = r
	}
	if raw := strings.TrimSpace(c.Monitor.StaleReason); raw != "" {
		r, err := pause.ParseReason(raw)
		if err != nil {
			return pause.Rules{}, fmt.Errorf("config: stale reason: %w", err)
		}
		rules.StaleReason = r
	}
	if len(c.Monitor.StatusReasons) > 0 {
		table, err := pause.ParseStatusReasons(c.Monitor.StatusReasons)
		if err != nil {
			return pause.Rules{}, fmt.Errorf("config: status reasons: %w", err)
		}
		rules.StatusReasons = table
	}
	return rules, nil
}
