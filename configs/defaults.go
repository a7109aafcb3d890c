package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	// Application defaults
	if !v.IsSet("verbose") {
		v.Set("verbose", false)
	}
	if !v.IsSet("log_level") {
		v.Set("log_level", "info")
	}
	if !v.IsSet("output_format") {
		v.Set("output_format", "table")
	}

	setPlayerDefaults(v)
	setAdaptationDefaults(v)
	setTransportDefaults(v)

	// Metrics defaults
	if !v.IsSet("metrics.enabled") {
		v.Set("metrics.enabled", false)
	}
	if !v.IsSet("metrics.listen_addr") {
		v.Set("metrics.listen_addr", ":9102")
	}
	if !v.IsSet("metrics.collector") {
		v.Set("metrics.collector", false)
	}
	if !v.IsSet("metrics.log_file") {
		v.Set("metrics.log_file", "/tmp/abr-client.log")
	}

	// Output defaults
	if !v.IsSet("output.include_trace") {
		v.Set("output.include_trace", false)
	}
	if !v.IsSet("output.pretty_print") {
		v.Set("output.pretty_print", true)
	}
	if !v.IsSet("output.timestamps") {
		v.Set("output.timestamps", true)
	}
}

// setPlayerDefaults sets playback session defaults
func setPlayerDefaults(v *viper.Viper) {
	if !v.IsSet("player.segment_buffer_size") {
		v.Set("player.segment_buffer_size", 20)
	}
	if !v.IsSet("player.looping") {
		v.Set("player.looping", false)
	}
	if !v.IsSet("player.live_start_offset") {
		v.Set("player.live_start_offset", true)
	}
	if !v.IsSet("player.refresh_interval") {
		v.Set("player.refresh_interval", 2*time.Second)
	}
	if !v.IsSet("player.playback_speed") {
		v.Set("player.playback_speed", 1.0)
	}
	if !v.IsSet("player.drain") {
		v.Set("player.drain", false)
	}
	if !v.IsSet("player.abort_on_stall") {
		v.Set("player.abort_on_stall", true)
	}
	if !v.IsSet("player.max_duration") {
		v.Set("player.max_duration", time.Duration(0))
	}
	if !v.IsSet("player.media_types") {
		v.Set("player.media_types", []string{})
	}
}

// setAdaptationDefaults sets the stock tuning of every strategy
func setAdaptationDefaults(v *viper.Viper) {
	if !v.IsSet("adaptation.logic") {
		v.Set("adaptation.logic", "Bola")
	}

	// Rate based
	if !v.IsSet("adaptation.rate.alpha") {
		v.Set("adaptation.rate.alpha", 0.8)
	}

	// Buffer based
	if !v.IsSet("adaptation.buffer.reservoir_threshold") {
		v.Set("adaptation.buffer.reservoir_threshold", 20)
	}
	if !v.IsSet("adaptation.buffer.max_threshold") {
		v.Set("adaptation.buffer.max_threshold", 80)
	}

	// Three threshold
	if !v.IsSet("adaptation.three_threshold.first_threshold") {
		v.Set("adaptation.three_threshold.first_threshold", 15)
	}
	if !v.IsSet("adaptation.three_threshold.second_threshold") {
		v.Set("adaptation.three_threshold.second_threshold", 35)
	}
	if !v.IsSet("adaptation.three_threshold.third_threshold") {
		v.Set("adaptation.three_threshold.third_threshold", 75)
	}

	// AdapTech
	if !v.IsSet("adaptation.adaptech.first_threshold") {
		v.Set("adaptation.adaptech.first_threshold", 30)
	}
	if !v.IsSet("adaptation.adaptech.second_threshold") {
		v.Set("adaptation.adaptech.second_threshold", 70)
	}
	if !v.IsSet("adaptation.adaptech.switch_up_margin") {
		v.Set("adaptation.adaptech.switch_up_margin", 5)
	}
	if !v.IsSet("adaptation.adaptech.slack") {
		v.Set("adaptation.adaptech.slack", 0.8)
	}
	if !v.IsSet("adaptation.adaptech.alpha") {
		v.Set("adaptation.adaptech.alpha", 0.8)
	}

	// PANDA
	if !v.IsSet("adaptation.panda.alpha") {
		v.Set("adaptation.panda.alpha", 0.4)
	}
	if !v.IsSet("adaptation.panda.beta") {
		v.Set("adaptation.panda.beta", 0.6)
	}
	if !v.IsSet("adaptation.panda.bmin") {
		v.Set("adaptation.panda.bmin", 67.0)
	}
	if !v.IsSet("adaptation.panda.k") {
		v.Set("adaptation.panda.k", 0.5)
	}
	if !v.IsSet("adaptation.panda.w") {
		v.Set("adaptation.panda.w", 270000.0)
	}
	if !v.IsSet("adaptation.panda.epsilon") {
		v.Set("adaptation.panda.epsilon", 0.19)
	}

	// BOLA
	if !v.IsSet("adaptation.bola.alpha") {
		v.Set("adaptation.bola.alpha", 0.8)
	}
	if !v.IsSet("adaptation.bola.buffer_target") {
		v.Set("adaptation.bola.buffer_target", 23*time.Second)
	}
}

// setTransportDefaults sets download defaults
func setTransportDefaults(v *viper.Viper) {
	if !v.IsSet("transport.connection_timeout") {
		v.Set("transport.connection_timeout", 5*time.Second)
	}
	if !v.IsSet("transport.read_timeout") {
		v.Set("transport.read_timeout", 30*time.Second)
	}
	if !v.IsSet("transport.max_retries") {
		v.Set("transport.max_retries", 2)
	}
	if !v.IsSet("transport.retry_delay") {
		v.Set("transport.retry_delay", time.Second)
	}
	if !v.IsSet("transport.user_agent") {
		v.Set("transport.user_agent", "DASH-ABR-Client/1.0")
	}
	if !v.IsSet("transport.buffer_size") {
		v.Set("transport.buffer_size", 32*1024)
	}
	if !v.IsSet("transport.headers") {
		v.Set("transport.headers", map[string]string{})
	}
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: "table",
		ConfigDir:    filepath.Join(home, ".config", "abr-client"),
		DataDir:      filepath.Join(home, ".local", "share", "abr-client"),

		Player:     GetDefaultPlayerConfig(),
		Adaptation: GetDefaultAdaptationConfig(),
		Transport:  GetDefaultTransportConfig(),
		Metrics:    GetDefaultMetricsConfig(),
		Output:     GetDefaultOutputConfig(),
	}
}

// GetDefaultPlayerConfig returns default playback session settings
func GetDefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SegmentBufferSize: 20,
		Looping:           false,
		LiveStartOffset:   true,
		RefreshInterval:   2 * time.Second,
		PlaybackSpeed:     1,
		Drain:             false,
		AbortOnStall:      true,
		MediaTypes:        []string{},
	}
}

// GetDefaultAdaptationConfig returns the stock tuning of every strategy
func GetDefaultAdaptationConfig() AdaptationConfig {
	return AdaptationConfig{
		Logic: "Bola",
		Rate:  RateConfig{Alpha: 0.8},
		Buffer: BufferConfig{
			ReservoirThreshold: 20,
			MaxThreshold:       80,
		},
		ThreeThreshold: ThreeThresholdConfig{
			FirstThreshold:  15,
			SecondThreshold: 35,
			ThirdThreshold:  75,
		},
		AdapTech: AdapTechConfig{
			FirstThreshold:  30,
			SecondThreshold: 70,
			SwitchUpMargin:  5,
			Slack:           0.8,
			Alpha:           0.8,
		},
		Panda: PandaConfig{
			Alpha:   0.4,
			Beta:    0.6,
			Bmin:    67,
			K:       0.5,
			W:       270000,
			Epsilon: 0.19,
		},
		Bola: BolaConfig{
			Alpha:        0.8,
			BufferTarget: 23 * time.Second,
		},
	}
}

// GetDefaultTransportConfig returns default download settings
func GetDefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectionTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		MaxRetries:        2,
		RetryDelay:        time.Second,
		UserAgent:         "DASH-ABR-Client/1.0",
		BufferSize:        32 * 1024,
		Headers:           make(map[string]string),
	}
}

// GetDefaultMetricsConfig returns default metrics settings
func GetDefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    false,
		ListenAddr: ":9102",
		Collector:  false,
		LogFile:    "/tmp/abr-client.log",
	}
}

// GetDefaultOutputConfig returns default output formatting settings
func GetDefaultOutputConfig() OutputConfig {
	return OutputConfig{
		IncludeTrace: false,
		PrettyPrint:  true,
		Timestamps:   true,
	}
}

// GetDefaultOutputConfigForFormat returns output config optimized for specific format
func GetDefaultOutputConfigForFormat(format string) OutputConfig {
	base := GetDefaultOutputConfig()

	switch format {
	case "json", "yaml":
		base.IncludeTrace = true
	case "csv":
		base.PrettyPrint = false
		base.Timestamps = false
	case "table":
		base.IncludeTrace = false
	}

	return base
}

// LowLatencyPlayerConfig returns settings for live streams played close to the edge
func LowLatencyPlayerConfig() PlayerConfig {
	cfg := GetDefaultPlayerConfig()
	cfg.SegmentBufferSize = 4
	cfg.LiveStartOffset = false
	cfg.RefreshInterval = 500 * time.Millisecond
	return cfg
}

// DrainPlayerConfig returns settings that download as fast as the network allows
func DrainPlayerConfig() PlayerConfig {
	cfg := GetDefaultPlayerConfig()
	cfg.Drain = true
	return cfg
}
