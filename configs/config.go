package configs

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format" json:"output_format"`
	ConfigDir    string `mapstructure:"config_dir" yaml:"config_dir" json:"config_dir"`
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`

	// Playback session configuration
	Player PlayerConfig `mapstructure:"player" yaml:"player" json:"player"`

	// Adaptation strategy and tuning
	Adaptation AdaptationConfig `mapstructure:"adaptation" yaml:"adaptation" json:"adaptation"`

	// Manifest and segment transport configuration
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" json:"transport"`

	// Prometheus and collector metrics
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
}

// PlayerConfig contains playback session settings
type PlayerConfig struct {
	SegmentBufferSize int           `mapstructure:"segment_buffer_size" yaml:"segment_buffer_size" json:"segment_buffer_size"`
	Looping           bool          `mapstructure:"looping" yaml:"looping" json:"looping"`
	LiveStartOffset   bool          `mapstructure:"live_start_offset" yaml:"live_start_offset" json:"live_start_offset"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval" json:"refresh_interval"`
	PlaybackSpeed     float64       `mapstructure:"playback_speed" yaml:"playback_speed" json:"playback_speed"`
	Drain             bool          `mapstructure:"drain" yaml:"drain" json:"drain"`
	AbortOnStall      bool          `mapstructure:"abort_on_stall" yaml:"abort_on_stall" json:"abort_on_stall"`
	MaxDuration       time.Duration `mapstructure:"max_duration" yaml:"max_duration" json:"max_duration"`
	MediaTypes        []string      `mapstructure:"media_types" yaml:"media_types" json:"media_types"`
}

// AdaptationConfig selects the strategy and holds the tuning of each one
type AdaptationConfig struct {
	Logic          string               `mapstructure:"logic" yaml:"logic" json:"logic"`
	Rate           RateConfig           `mapstructure:"rate" yaml:"rate" json:"rate"`
	Buffer         BufferConfig         `mapstructure:"buffer" yaml:"buffer" json:"buffer"`
	ThreeThreshold ThreeThresholdConfig `mapstructure:"three_threshold" yaml:"three_threshold" json:"three_threshold"`
	AdapTech       AdapTechConfig       `mapstructure:"adaptech" yaml:"adaptech" json:"adaptech"`
	Panda          PandaConfig          `mapstructure:"panda" yaml:"panda" json:"panda"`
	Bola           BolaConfig           `mapstructure:"bola" yaml:"bola" json:"bola"`
}

type RateConfig struct {
	Alpha float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
}

type BufferConfig struct {
	ReservoirThreshold int `mapstructure:"reservoir_threshold" yaml:"reservoir_threshold" json:"reservoir_threshold"`
	MaxThreshold       int `mapstructure:"max_threshold" yaml:"max_threshold" json:"max_threshold"`
}

type ThreeThresholdConfig struct {
	FirstThreshold  int `mapstructure:"first_threshold" yaml:"first_threshold" json:"first_threshold"`
	SecondThreshold int `mapstructure:"second_threshold" yaml:"second_threshold" json:"second_threshold"`
	ThirdThreshold  int `mapstructure:"third_threshold" yaml:"third_threshold" json:"third_threshold"`
}

type AdapTechConfig struct {
	FirstThreshold  int     `mapstructure:"first_threshold" yaml:"first_threshold" json:"first_threshold"`
	SecondThreshold int     `mapstructure:"second_threshold" yaml:"second_threshold" json:"second_threshold"`
	SwitchUpMargin  int     `mapstructure:"switch_up_margin" yaml:"switch_up_margin" json:"switch_up_margin"`
	Slack           float64 `mapstructure:"slack" yaml:"slack" json:"slack"`
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
}

// PandaConfig w is in bits per second and bmin in seconds
type PandaConfig struct {
	Alpha   float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
	Beta    float64 `mapstructure:"beta" yaml:"beta" json:"beta"`
	Bmin    float64 `mapstructure:"bmin" yaml:"bmin" json:"bmin"`
	K       float64 `mapstructure:"k" yaml:"k" json:"k"`
	W       float64 `mapstructure:"w" yaml:"w" json:"w"`
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon"`
}

type BolaConfig struct {
	Alpha        float64       `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
	BufferTarget time.Duration `mapstructure:"buffer_target" yaml:"buffer_target" json:"buffer_target"`
}

// TransportConfig contains manifest and segment download settings
type TransportConfig struct {
	ConnectionTimeout time.Duration     `mapstructure:"connection_timeout" yaml:"connection_timeout" json:"connection_timeout"`
	ReadTimeout       time.Duration     `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	MaxRetries        int               `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration     `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	UserAgent         string            `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	BufferSize        int               `mapstructure:"buffer_size" yaml:"buffer_size" json:"buffer_size"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers" json:"headers"`
}

// MetricsConfig contains the Prometheus endpoint and collector settings
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr" json:"listen_addr"`
	Collector  bool   `mapstructure:"collector" yaml:"collector" json:"collector"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`
}

// OutputConfig contains report output settings
type OutputConfig struct {
	IncludeTrace bool `mapstructure:"include_trace" yaml:"include_trace" json:"include_trace"`
	PrettyPrint  bool `mapstructure:"pretty_print" yaml:"pretty_print" json:"pretty_print"`
	Timestamps   bool `mapstructure:"timestamps" yaml:"timestamps" json:"timestamps"`
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom fills unset keys of v with defaults and decodes it
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if _, ok := adaptation.ParseKind(config.Adaptation.Logic); !ok {
		return fmt.Errorf("unknown adaptation logic %q", config.Adaptation.Logic)
	}

	if err := config.AdaptationParams().Validate(); err != nil {
		return fmt.Errorf("invalid adaptation parameters: %w", err)
	}

	if config.Player.PlaybackSpeed < 0 {
		return fmt.Errorf("playback speed cannot be negative")
	}

	if config.Player.MaxDuration < 0 {
		return fmt.Errorf("max duration cannot be negative")
	}

	for _, name := range config.Player.MediaTypes {
		if common.ParseMediaType(name) == common.MediaTypeUnsupported {
			return fmt.Errorf("unsupported media type %q", name)
		}
	}

	if config.Transport.MaxRetries < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}

	if config.Transport.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}

	if config.Metrics.Enabled && config.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	switch config.OutputFormat {
	case "json", "yaml", "csv", "table":
	default:
		return fmt.Errorf("unsupported output format %q", config.OutputFormat)
	}

	return nil
}

// AdaptationParams converts the adaptation section into strategy parameters
func (c *Config) AdaptationParams() *adaptation.Params {
	a := c.Adaptation
	params := adaptation.DefaultParams()
	params.SegmentBufferSize = c.Player.SegmentBufferSize
	params.Rate = adaptation.RateParams{Alpha: a.Rate.Alpha}
	params.Buffer = adaptation.BufferParams{
		ReservoirThreshold: a.Buffer.ReservoirThreshold,
		MaxThreshold:       a.Buffer.MaxThreshold,
	}
	params.ThreeThreshold = adaptation.ThreeThresholdParams{
		FirstThreshold:  a.ThreeThreshold.FirstThreshold,
		SecondThreshold: a.ThreeThreshold.SecondThreshold,
		ThirdThreshold:  a.ThreeThreshold.ThirdThreshold,
	}
	params.AdapTech = adaptation.AdapTechParams{
		FirstThreshold:  a.AdapTech.FirstThreshold,
		SecondThreshold: a.AdapTech.SecondThreshold,
		SwitchUpMargin:  a.AdapTech.SwitchUpMargin,
		Slack:           a.AdapTech.Slack,
		Alpha:           a.AdapTech.Alpha,
	}
	params.Panda = adaptation.PandaParams{
		Alpha:   a.Panda.Alpha,
		Beta:    a.Panda.Beta,
		Bmin:    a.Panda.Bmin,
		K:       a.Panda.K,
		W:       a.Panda.W,
		Epsilon: a.Panda.Epsilon,
	}
	params.Bola = adaptation.BolaParams{
		Alpha:        a.Bola.Alpha,
		BufferTarget: a.Bola.BufferTarget,
	}
	return params
}

// TransportConfig converts the transport section for the transport factory
func (c *Config) TransportConfig() *transport.Config {
	t := c.Transport
	headers := make(map[string]string, len(t.Headers))
	for k, v := range t.Headers {
		headers[k] = v
	}

	return &transport.Config{
		ConnectionTimeout: t.ConnectionTimeout,
		ReadTimeout:       t.ReadTimeout,
		MaxRetries:        t.MaxRetries,
		RetryDelay:        t.RetryDelay,
		UserAgent:         t.UserAgent,
		BufferSize:        t.BufferSize,
		Headers:           headers,
	}
}
