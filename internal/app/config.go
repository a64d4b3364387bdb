package app

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rfidgate/internal/access"
	"rfidgate/internal/capture"
	"rfidgate/internal/diag"
	"rfidgate/internal/events"
	"rfidgate/internal/metrics"
	"rfidgate/internal/tag"
)

// Capture modes
const (
	CaptureSerial = "serial"
	CaptureReplay = "replay"
)

// Actuator kinds
const (
	ActuatorNone   = "none"
	ActuatorLog    = "log"
	ActuatorSerial = "serial"
)

// Default configuration constants
const (
	DefaultStatsInterval = 30 * time.Second
	DefaultLogDir        = "./logs"
	DefaultLogPrefix     = "cards"
	DefaultMetricsAddr   = ":9110"
	EnvPrefix            = "RFIDGATE"
)

// Config holds application configuration
type Config struct {
	Capture       CaptureConfig `mapstructure:"capture"`
	Decoder       DecoderConfig `mapstructure:"decoder"`
	Access        AccessConfig  `mapstructure:"access"`
	Diag          DiagConfig    `mapstructure:"diag"`
	Metrics       MetricsConfig `mapstructure:"metrics"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	Verbose       bool          `mapstructure:"verbose"`
}

// CaptureConfig selects where period blocks come from.
type CaptureConfig struct {
	Mode       string              `mapstructure:"mode"`
	Device     string              `mapstructure:"device"`
	Port       capture.PortOptions `mapstructure:"port"`
	ReplayFile string              `mapstructure:"replay_file"`
}

// DecoderConfig holds the calibrated quantizer periods. They are decoded
// wider than a sample so out-of-range values are rejected instead of wrapped.
type DecoderConfig struct {
	ShortPulse     uint `mapstructure:"short_pulse"`
	LongPulse      uint `mapstructure:"long_pulse"`
	AmbiguousPulse uint `mapstructure:"ambiguous_pulse"`
}

// Validate checks that every period fits in a sample and that together they
// form usable thresholds.
func (d DecoderConfig) Validate() error {
	for name, p := range map[string]uint{
		"short_pulse":     d.ShortPulse,
		"long_pulse":      d.LongPulse,
		"ambiguous_pulse": d.AmbiguousPulse,
	} {
		if p > math.MaxUint8 {
			return fmt.Errorf("%s %d does not fit in a sample (max %d)", name, p, math.MaxUint8)
		}
	}
	return d.Thresholds().Validate()
}

// Thresholds converts the configured periods for the decoder. Call Validate
// first; out-of-range periods are truncated here.
func (d DecoderConfig) Thresholds() tag.Thresholds {
	return tag.Thresholds{
		Short:     tag.RawSample(d.ShortPulse),
		Long:      tag.RawSample(d.LongPulse),
		Ambiguous: tag.RawSample(d.AmbiguousPulse),
	}
}

// AccessConfig holds the allow list and actuation settings.
type AccessConfig struct {
	AllowList    []uint              `mapstructure:"allow_list"`
	Actuator     string              `mapstructure:"actuator"`
	Device       string              `mapstructure:"device"`
	Port         capture.PortOptions `mapstructure:"port"`
	OpenDuration time.Duration       `mapstructure:"open_duration"`
	SettleDelay  time.Duration       `mapstructure:"settle_delay"`
}

// UniqueIDs returns the allow list as card unique ids, rejecting entries that
// do not fit in 16 bits.
func (a AccessConfig) UniqueIDs() ([]uint16, error) {
	ids := make([]uint16, 0, len(a.AllowList))
	for _, v := range a.AllowList {
		if v > math.MaxUint16 {
			return nil, fmt.Errorf("access.allow_list: unique id %d does not fit in 16 bits", v)
		}
		ids = append(ids, uint16(v))
	}
	return ids, nil
}

// Enabled reports whether decoded ids drive an actuator.
func (a AccessConfig) Enabled() bool {
	return a.Actuator != ActuatorNone
}

// DiagConfig controls diagnostics output of decoded codes.
type DiagConfig struct {
	Formats   []string `mapstructure:"formats"`
	Stdout    bool     `mapstructure:"stdout"`
	LogDir    string   `mapstructure:"log_dir"`
	LogPrefix string   `mapstructure:"log_prefix"`
	RotateUTC bool     `mapstructure:"rotate_utc"`
	MaxDays   int      `mapstructure:"max_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// MQTTConfig controls access event publishing.
type MQTTConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	events.Config `mapstructure:",squash"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Capture: CaptureConfig{
			Mode: CaptureSerial,
			Port: capture.PortOptions{BaudRate: capture.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		Decoder: DecoderConfig{
			ShortPulse:     tag.DefaultShortPulse,
			LongPulse:      tag.DefaultLongPulse,
			AmbiguousPulse: tag.DefaultAmbiguousPulse,
		},
		Access: AccessConfig{
			Actuator:     ActuatorLog,
			Port:         capture.PortOptions{BaudRate: capture.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
			OpenDuration: access.DefaultOpenDuration,
			SettleDelay:  access.DefaultSettleDelay,
		},
		Diag: DiagConfig{
			Formats:   []string{string(diag.FormatBinary)},
			Stdout:    true,
			LogDir:    DefaultLogDir,
			LogPrefix: DefaultLogPrefix,
			RotateUTC: true,
			MaxDays:   30,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
			Path: metrics.DefaultPath,
		},
		MQTT: MQTTConfig{
			Config: events.Config{
				Topic:   events.DefaultTopic,
				QoS:     1,
				Timeout: events.DefaultPublishTimeout,
			},
		},
		StatsInterval: DefaultStatsInterval,
	}
}

// setDefaults registers every key so environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("capture.mode", d.Capture.Mode)
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.replay_file", "")
	v.SetDefault("capture.port.baud_rate", d.Capture.Port.BaudRate)
	v.SetDefault("capture.port.data_bits", d.Capture.Port.DataBits)
	v.SetDefault("capture.port.stop_bits", d.Capture.Port.StopBits)
	v.SetDefault("capture.port.parity", d.Capture.Port.Parity)

	v.SetDefault("decoder.short_pulse", d.Decoder.ShortPulse)
	v.SetDefault("decoder.long_pulse", d.Decoder.LongPulse)
	v.SetDefault("decoder.ambiguous_pulse", d.Decoder.AmbiguousPulse)

	v.SetDefault("access.allow_list", []uint{})
	v.SetDefault("access.actuator", d.Access.Actuator)
	v.SetDefault("access.device", "")
	v.SetDefault("access.port.baud_rate", d.Access.Port.BaudRate)
	v.SetDefault("access.port.data_bits", d.Access.Port.DataBits)
	v.SetDefault("access.port.stop_bits", d.Access.Port.StopBits)
	v.SetDefault("access.port.parity", d.Access.Port.Parity)
	v.SetDefault("access.open_duration", d.Access.OpenDuration)
	v.SetDefault("access.settle_delay", d.Access.SettleDelay)

	v.SetDefault("diag.formats", d.Diag.Formats)
	v.SetDefault("diag.stdout", d.Diag.Stdout)
	v.SetDefault("diag.log_dir", d.Diag.LogDir)
	v.SetDefault("diag.log_prefix", d.Diag.LogPrefix)
	v.SetDefault("diag.rotate_utc", d.Diag.RotateUTC)
	v.SetDefault("diag.max_days", d.Diag.MaxDays)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.timeout", d.MQTT.Timeout)

	v.SetDefault("stats_interval", d.StatsInterval)
	v.SetDefault("verbose", false)
}

// LoadConfig reads configuration from an optional YAML file and the
// environment. Environment keys use the RFIDGATE_ prefix with dots replaced
// by underscores, e.g. RFIDGATE_CAPTURE_DEVICE. The result is not validated.
func LoadConfig(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s not found", configFile)
			}
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}

// Validate checks the configuration before any component is built.
func (c Config) Validate() error {
	switch c.Capture.Mode {
	case CaptureSerial:
		if c.Capture.Device == "" {
			return fmt.Errorf("capture.device is required in serial mode")
		}
		if _, err := c.Capture.Port.Normalize(); err != nil {
			return fmt.Errorf("capture.port: %w", err)
		}
	case CaptureReplay:
		if c.Capture.ReplayFile == "" {
			return fmt.Errorf("capture.replay_file is required in replay mode")
		}
	default:
		return fmt.Errorf("invalid capture.mode %q (must be %s or %s)", c.Capture.Mode, CaptureSerial, CaptureReplay)
	}

	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if _, err := c.Access.UniqueIDs(); err != nil {
		return err
	}

	switch c.Access.Actuator {
	case ActuatorNone, ActuatorLog:
	case ActuatorSerial:
		if c.Access.Device == "" {
			return fmt.Errorf("access.device is required for the serial actuator")
		}
		if _, err := c.Access.Port.Normalize(); err != nil {
			return fmt.Errorf("access.port: %w", err)
		}
	default:
		return fmt.Errorf("invalid access.actuator %q (must be %s, %s or %s)", c.Access.Actuator, ActuatorNone, ActuatorLog, ActuatorSerial)
	}
	if c.Access.Enabled() {
		if len(c.Access.AllowList) == 0 {
			return fmt.Errorf("access.allow_list must not be empty when an actuator is configured")
		}
		if c.Access.OpenDuration <= 0 {
			return fmt.Errorf("access.open_duration must be positive")
		}
		if c.Access.SettleDelay <= 0 {
			return fmt.Errorf("access.settle_delay must be positive")
		}
	}

	if _, err := diag.ParseFormats(c.Diag.Formats); err != nil {
		return fmt.Errorf("diag.formats: %w", err)
	}
	if c.Diag.LogDir != "" && c.Diag.LogPrefix == "" {
		return fmt.Errorf("diag.log_prefix is required when diag.log_dir is set")
	}
	if c.Diag.MaxDays < 0 {
		return fmt.Errorf("diag.max_days must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive")
	}

	return nil
}
