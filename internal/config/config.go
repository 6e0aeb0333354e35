// Package config loads the controller configuration from defaults, an
// optional YAML file and VENDO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/gpio"
)

// Config is the full controller configuration.
type Config struct {
	GPIO        GPIOConfig      `mapstructure:"gpio"`
	Coin        CoinConfig      `mapstructure:"coin"`
	Channels    []ChannelConfig `mapstructure:"channels"`
	Dispense    DispenseConfig  `mapstructure:"dispense"`
	Monitor     MonitorConfig   `mapstructure:"monitor"`
	Buttons     ButtonsConfig   `mapstructure:"buttons"`
	ReadyLEDPin int             `mapstructure:"ready_led_pin"`
	Remote      RemoteConfig    `mapstructure:"remote"`
	Display     DisplayConfig   `mapstructure:"display"`
	Journal     JournalConfig   `mapstructure:"journal"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Console     ConsoleConfig   `mapstructure:"console"`
	Log         LogConfig       `mapstructure:"log"`

	settings map[string]interface{}
}

// GPIOConfig selects the GPIO chip. Fake runs without hardware.
type GPIOConfig struct {
	Chip string `mapstructure:"chip"`
	Fake bool   `mapstructure:"fake"`
}

// CoinConfig describes the coin acceptor line and its pulse signatures.
type CoinConfig struct {
	Pin           int                  `mapstructure:"pin"`
	ActiveLow     bool                 `mapstructure:"active_low"`
	Mode          string               `mapstructure:"mode"`
	Poll          time.Duration        `mapstructure:"poll"`
	Debounce      time.Duration        `mapstructure:"debounce"`
	BurstGap      time.Duration        `mapstructure:"burst_gap"`
	Tolerance     int                  `mapstructure:"tolerance"`
	Denominations []DenominationConfig `mapstructure:"denominations"`
}

// DenominationConfig is one coin. Value is a decimal string.
type DenominationConfig struct {
	Name   string `mapstructure:"name"`
	Pulses int    `mapstructure:"pulses"`
	Value  string `mapstructure:"value"`
}

// ChannelConfig is one dispensing mechanism. Cost is a decimal string;
// a negative ButtonPin means the channel has no front-panel button.
type ChannelConfig struct {
	ID              string   `mapstructure:"id"`
	Name            string   `mapstructure:"name"`
	Aliases         []string `mapstructure:"aliases"`
	ButtonPin       int      `mapstructure:"button_pin"`
	ActuatorPin     int      `mapstructure:"actuator_pin"`
	SensorPin       int      `mapstructure:"sensor_pin"`
	Cost            string   `mapstructure:"cost"`
	Inventory       int      `mapstructure:"inventory"`
	ActiveLow       bool     `mapstructure:"active_low"`
	SensorActiveLow bool     `mapstructure:"sensor_active_low"`
}

type DispenseConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Settle  time.Duration `mapstructure:"settle"`
	Poll    time.Duration `mapstructure:"poll"`
}

type MonitorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Poll    time.Duration `mapstructure:"poll"`
}

type ButtonsConfig struct {
	Poll      time.Duration `mapstructure:"poll"`
	Debounce  time.Duration `mapstructure:"debounce"`
	ActiveLow bool          `mapstructure:"active_low"`
}

// RemoteConfig configures the MQTT-backed remote store.
type RemoteConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Broker     string        `mapstructure:"broker"`
	ClientID   string        `mapstructure:"client_id"`
	Prefix     string        `mapstructure:"prefix"`
	Interval   time.Duration `mapstructure:"interval"`
	BufferSize int           `mapstructure:"buffer_size"`
}

// DisplayConfig selects the display sink: "log" or "serial".
type DisplayConfig struct {
	Kind        string        `mapstructure:"kind"`
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	MessageHold time.Duration `mapstructure:"message_hold"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig configures the zap logger. Output is stdout, file or both.
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Output string        `mapstructure:"output"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures lumberjack rotation.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration. An empty path searches ./vendo.yaml and
// /etc/vendo/vendo.yaml; a missing file there is not an error, but an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vendo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vendo")
	}

	v.SetEnvPrefix("VENDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.settings = v.AllSettings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.fake", false)

	v.SetDefault("coin.pin", gpio.DefaultCoinPin)
	v.SetDefault("coin.active_low", true)
	v.SetDefault("coin.mode", "poll")
	v.SetDefault("coin.poll", "5ms")
	v.SetDefault("coin.debounce", "50ms")
	v.SetDefault("coin.burst_gap", "1s")
	v.SetDefault("coin.tolerance", 0)
	v.SetDefault("coin.denominations", []map[string]interface{}{
		{"name": "1 peso", "pulses": 1, "value": "1"},
		{"name": "5 peso", "pulses": 5, "value": "5"},
		{"name": "10 peso", "pulses": 10, "value": "10"},
	})

	v.SetDefault("channels", []map[string]interface{}{
		{
			"id": "wings", "name": "Wings", "aliases": []string{"nap-1"},
			"button_pin": 2, "actuator_pin": 4, "sensor_pin": 6,
			"cost": "10", "inventory": 20, "active_low": true, "sensor_active_low": true,
		},
		{
			"id": "regular", "name": "Regular", "aliases": []string{"nap-2"},
			"button_pin": 3, "actuator_pin": 5, "sensor_pin": 7,
			"cost": "10", "inventory": 20, "active_low": true, "sensor_active_low": true,
		},
	})

	v.SetDefault("dispense.timeout", "10s")
	v.SetDefault("dispense.settle", "500ms")
	v.SetDefault("dispense.poll", "100ms")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.poll", "20ms")

	v.SetDefault("buttons.poll", "20ms")
	v.SetDefault("buttons.debounce", "50ms")
	v.SetDefault("buttons.active_low", true)

	v.SetDefault("ready_led_pin", gpio.DefaultReadyLEDPin)

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.broker", "tcp://localhost:1883")
	v.SetDefault("remote.client_id", "vendo")
	v.SetDefault("remote.prefix", "vendo/{client_id}/")
	v.SetDefault("remote.interval", "5s")
	v.SetDefault("remote.buffer_size", 256)

	v.SetDefault("display.kind", "log")
	v.SetDefault("display.port", "/dev/ttyUSB0")
	v.SetDefault("display.baud", 9600)
	v.SetDefault("display.message_hold", "3s")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "vendo.db")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("console.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "vendo.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// maxCoinPoll bounds the coin line sampling interval; slower polling
// misses pulses.
const maxCoinPoll = 10 * time.Millisecond

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Coin.Mode {
	case "poll", "edge":
	default:
		errs = append(errs, fmt.Errorf("coin.mode must be poll or edge, got %q", c.Coin.Mode))
	}
	if c.Coin.Mode == "poll" && (c.Coin.Poll <= 0 || c.Coin.Poll > maxCoinPoll) {
		errs = append(errs, fmt.Errorf("coin.poll must be in (0, %s], got %s", maxCoinPoll, c.Coin.Poll))
	}
	if c.Coin.BurstGap <= 0 {
		errs = append(errs, errors.New("coin.burst_gap must be positive"))
	}
	if c.Coin.Debounce < 0 || c.Coin.Debounce >= c.Coin.BurstGap {
		errs = append(errs, fmt.Errorf("coin.debounce (%s) must be shorter than coin.burst_gap (%s)", c.Coin.Debounce, c.Coin.BurstGap))
	}
	if _, err := c.CoinTable(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("at least one channel is required"))
	}
	ids := make(map[string]bool)
	for i, ch := range c.Channels {
		id := strings.ToLower(ch.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("channels[%d]: id is required", i))
		case ids[id]:
			errs = append(errs, fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID))
		}
		ids[id] = true
		if _, err := ch.CostDecimal(); err != nil {
			errs = append(errs, fmt.Errorf("channels[%d]: %w", i, err))
		}
		if ch.Inventory < 0 {
			errs = append(errs, fmt.Errorf("channels[%d]: inventory must not be negative", i))
		}
	}

	if c.Dispense.Timeout <= 0 {
		errs = append(errs, errors.New("dispense.timeout must be positive"))
	}
	if c.Dispense.Settle < 0 {
		errs = append(errs, errors.New("dispense.settle must not be negative"))
	}
	if c.Dispense.Poll <= 0 || c.Buttons.Poll <= 0 {
		errs = append(errs, errors.New("dispense.poll and buttons.poll must be positive"))
	}
	if c.Monitor.Enabled && c.Monitor.Poll <= 0 {
		errs = append(errs, errors.New("monitor.poll must be positive"))
	}
	if c.Remote.Enabled && c.Remote.Interval <= 0 {
		errs = append(errs, errors.New("remote.interval must be positive"))
	}

	switch c.Display.Kind {
	case "log", "serial":
	default:
		errs = append(errs, fmt.Errorf("display.kind must be log or serial, got %q", c.Display.Kind))
	}

	return errors.Join(errs...)
}

// CoinTable builds the denomination table.
func (c *Config) CoinTable() (*coin.Table, error) {
	denoms := make([]coin.Denomination, 0, len(c.Coin.Denominations))
	for _, d := range c.Coin.Denominations {
		value, err := decimal.NewFromString(d.Value)
		if err != nil {
			return nil, fmt.Errorf("coin %q: value %q: %w", d.Name, d.Value, err)
		}
		denoms = append(denoms, coin.Denomination{Name: d.Name, Pulses: d.Pulses, Value: value})
	}
	table, err := coin.NewTable(c.Coin.Tolerance, denoms...)
	if err != nil {
		return nil, fmt.Errorf("coin table: %w", err)
	}
	return table, nil
}

// CostDecimal parses the channel cost.
func (c ChannelConfig) CostDecimal() (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(c.Cost)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cost %q: %w", c.Cost, err)
	}
	if !cost.IsPositive() {
		return decimal.Zero, fmt.Errorf("cost %q must be positive", c.Cost)
	}
	return cost, nil
}

// RemotePrefix returns the topic prefix with {client_id} expanded.
func (c *Config) RemotePrefix() string {
	return strings.ReplaceAll(c.Remote.Prefix, "{client_id}", c.Remote.ClientID)
}

// Layout returns every GPIO line the controller requests.
func (c *Config) Layout() gpio.Layout {
	var l gpio.Layout
	l.Inputs = append(l.Inputs, gpio.Line{Pin: c.Coin.Pin, ActiveLow: c.Coin.ActiveLow, PullUp: true})
	for _, ch := range c.Channels {
		l.Inputs = append(l.Inputs, gpio.Line{Pin: ch.SensorPin, ActiveLow: ch.SensorActiveLow, PullUp: true})
		if ch.ButtonPin >= 0 {
			l.Inputs = append(l.Inputs, gpio.Line{Pin: ch.ButtonPin, ActiveLow: c.Buttons.ActiveLow, PullUp: true})
		}
		l.Outputs = append(l.Outputs, gpio.Line{Pin: ch.ActuatorPin, ActiveLow: ch.ActiveLow})
	}
	if c.ReadyLEDPin >= 0 {
		l.Outputs = append(l.Outputs, gpio.Line{Pin: c.ReadyLEDPin})
	}
	return l
}

// WriteTOML writes the effective settings as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c.settings)
}
