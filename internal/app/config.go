package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/dash-abr-client/configs"
	"github.com/RyanBlaney/dash-abr-client/internal/player"
	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"gopkg.in/yaml.v3"
)

// SessionProfile describes one playback session: what to play and how. Zero values keep
// the application configuration.
type SessionProfile struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Manifest    string            `yaml:"manifest" json:"manifest"`
	Logic       string            `yaml:"logic,omitempty" json:"logic,omitempty"`
	MediaTypes  []string          `yaml:"media_types,omitempty" json:"media_types,omitempty"`
	BufferSize  int               `yaml:"segment_buffer_size,omitempty" json:"segment_buffer_size,omitempty"`
	MaxDuration time.Duration     `yaml:"max_duration,omitempty" json:"max_duration,omitempty"`
	Speed       float64           `yaml:"playback_speed,omitempty" json:"playback_speed,omitempty"`
	Looping     bool              `yaml:"looping,omitempty" json:"looping,omitempty"`
	Drain       bool              `yaml:"drain,omitempty" json:"drain,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Validate checks the fields a session cannot start without
func (p *SessionProfile) Validate() error {
	if p.Manifest == "" {
		return fmt.Errorf("profile %q has no manifest", p.Name)
	}
	if p.Logic != "" {
		if _, ok := adaptation.ParseKind(p.Logic); !ok {
			return fmt.Errorf("profile %q: unknown adaptation logic %q", p.Name, p.Logic)
		}
	}
	for _, mt := range p.MediaTypes {
		if common.ParseMediaType(mt) == common.MediaTypeUnsupported {
			return fmt.Errorf("profile %q: unsupported media type %q", p.Name, mt)
		}
	}
	if p.BufferSize < 0 || p.Speed < 0 || p.MaxDuration < 0 {
		return fmt.Errorf("profile %q: buffer size, speed and duration cannot be negative", p.Name)
	}
	return nil
}

// loadProfileFromFile loads a session profile, picking the decoder by extension
func loadProfileFromFile(filePath string) (*SessionProfile, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("profile file does not exist: %s", filePath)
	}

	data, err := readFile(filePath)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		return parseProfileYAML(data)
	case ".json":
		return parseProfileJSON(data)
	default:
		// Try YAML first, then JSON
		if profile, err := parseProfileYAML(data); err == nil {
			return profile, nil
		}
		return parseProfileJSON(data)
	}
}

func readFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return data, nil
}

func parseProfileYAML(data []byte) (*SessionProfile, error) {
	var profile SessionProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML profile: %w", err)
	}
	return &profile, nil
}

func parseProfileJSON(data []byte) (*SessionProfile, error) {
	var profile SessionProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse JSON profile: %w", err)
	}
	return &profile, nil
}

// mergeConfig applies the profile and then the CLI flags on top of the base configuration.
// base is not modified.
func mergeConfig(base *configs.Config, profile *SessionProfile, ctx *Context) *configs.Config {
	merged := *base
	merged.Player.MediaTypes = append([]string(nil), base.Player.MediaTypes...)

	if profile != nil {
		if profile.Logic != "" {
			merged.Adaptation.Logic = profile.Logic
		}
		if len(profile.MediaTypes) > 0 {
			merged.Player.MediaTypes = append([]string(nil), profile.MediaTypes...)
		}
		if profile.BufferSize > 0 {
			merged.Player.SegmentBufferSize = profile.BufferSize
		}
		if profile.MaxDuration > 0 {
			merged.Player.MaxDuration = profile.MaxDuration
		}
		if profile.Speed > 0 {
			merged.Player.PlaybackSpeed = profile.Speed
		}
		merged.Player.Looping = merged.Player.Looping || profile.Looping
		merged.Player.Drain = merged.Player.Drain || profile.Drain
	}

	// Override with CLI flags
	if ctx.Logic != "" {
		merged.Adaptation.Logic = ctx.Logic
	}
	if len(ctx.MediaTypes) > 0 {
		merged.Player.MediaTypes = append([]string(nil), ctx.MediaTypes...)
	}
	if ctx.BufferSize > 0 {
		merged.Player.SegmentBufferSize = ctx.BufferSize
	}
	if ctx.Duration > 0 {
		merged.Player.MaxDuration = ctx.Duration
	}
	if ctx.Speed > 0 {
		merged.Player.PlaybackSpeed = ctx.Speed
	}
	if ctx.OutputFormat != "" {
		merged.OutputFormat = ctx.OutputFormat
	}
	if ctx.MetricsAddr != "" {
		merged.Metrics.Enabled = true
		merged.Metrics.ListenAddr = ctx.MetricsAddr
	}
	merged.Player.Looping = merged.Player.Looping || ctx.Looping
	merged.Player.Drain = merged.Player.Drain || ctx.Drain
	merged.Output.IncludeTrace = merged.Output.IncludeTrace || ctx.IncludeTrace
	merged.Verbose = merged.Verbose || ctx.Verbose

	return &merged
}

// playerConfig converts the merged configuration for the session manager
func playerConfig(cfg *configs.Config) (*player.Config, error) {
	kind, ok := adaptation.ParseKind(cfg.Adaptation.Logic)
	if !ok {
		return nil, fmt.Errorf("unknown adaptation logic %q", cfg.Adaptation.Logic)
	}

	pc := &player.Config{
		Logic:             kind,
		Params:            cfg.AdaptationParams(),
		SegmentBufferSize: cfg.Player.SegmentBufferSize,
		Looping:           cfg.Player.Looping,
		LiveStartOffset:   cfg.Player.LiveStartOffset,
		RefreshInterval:   cfg.Player.RefreshInterval,
		PlaybackSpeed:     cfg.Player.PlaybackSpeed,
		Drain:             cfg.Player.Drain,
		AbortOnStall:      cfg.Player.AbortOnStall,
		MaxDuration:       cfg.Player.MaxDuration,
	}
	for _, name := range cfg.Player.MediaTypes {
		pc.MediaTypes = append(pc.MediaTypes, common.ParseMediaType(name))
	}
	return pc, nil
}

// GenerateExampleProfile writes an example session profile
func GenerateExampleProfile(outputFile string) error {
	example := &SessionProfile{
		Name:        "vod-bola",
		Description: "Play a static presentation with BOLA",
		Manifest:    "https://dash.example.com/vod/manifest.mpd",
		Logic:       string(adaptation.KindBola),
		MediaTypes:  []string{string(common.MediaTypeVideo), string(common.MediaTypeAudio)},
		BufferSize:  20,
		MaxDuration: 5 * time.Minute,
		Speed:       1,
		Tags: map[string]string{
			"env": "example",
		},
	}

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example profile: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	fmt.Printf("✅ Example session profile written to: %s\n", outputFile)
	return nil
}

// ValidateProfile validates a session profile file against the default configuration
func ValidateProfile(profileFile string) error {
	profile, err := loadProfileFromFile(profileFile)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}

	merged := mergeConfig(configs.GetDefaultConfig(), profile, &Context{})
	if err := configs.ValidateConfig(merged); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Printf("✅ Session profile is valid: %s\n", profileFile)
	fmt.Printf("   - Manifest: %s\n", profile.Manifest)
	fmt.Printf("   - Adaptation logic: %s\n", merged.Adaptation.Logic)

	return nil
}
