package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/dash-abr-client/configs"
	"github.com/RyanBlaney/dash-abr-client/internal/app"
	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

var configShowRaw bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and validate configuration and session profiles",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Load the configuration (defaults, config file, ABR_CLIENT_* environment and
flags) and display every value.

Examples:
  # Display with default config file
  abr-client config show

  # Dump as YAML, ready to be used as a config file
  abr-client --config /path/to/config.yaml config show --yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [profile-file]",
	Short: "Validate the configuration, and a session profile if given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configs.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := configs.ValidateConfig(config); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		fmt.Println("✅ Application configuration is valid")

		if len(args) == 1 {
			return app.ValidateProfile(args[0])
		}
		return nil
	},
}

var configExampleCmd = &cobra.Command{
	Use:   "example [output-file]",
	Short: "Write an example session profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.GenerateExampleProfile(args[0])
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd, configExampleCmd)

	configShowCmd.Flags().BoolVar(&configShowRaw, "yaml", false,
		"dump the configuration as YAML")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if configShowRaw {
		data, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	fmt.Println("ABR CLIENT CONFIGURATION")
	fmt.Println(strings.Repeat("=", 80))

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Config Directory", config.ConfigDir)
	printKeyValue("Data Directory", config.DataDir)

	printSection("PLAYER")
	printKeyValue("Segment Buffer Size", fmt.Sprintf("%d segments", config.Player.SegmentBufferSize))
	printKeyValue("Looping", fmt.Sprintf("%t", config.Player.Looping))
	printKeyValue("Live Start Offset", fmt.Sprintf("%t", config.Player.LiveStartOffset))
	printKeyValue("Refresh Interval", config.Player.RefreshInterval.String())
	printKeyValue("Playback Speed", fmt.Sprintf("%.2f", config.Player.PlaybackSpeed))
	printKeyValue("Drain", fmt.Sprintf("%t", config.Player.Drain))
	printKeyValue("Abort On Stall", fmt.Sprintf("%t", config.Player.AbortOnStall))
	printKeyValue("Max Duration", config.Player.MaxDuration.String())
	printKeyValue("Media Types", fmt.Sprintf("(%d) %v", len(config.Player.MediaTypes), config.Player.MediaTypes))

	a := config.Adaptation
	printSection("ADAPTATION")
	printKeyValue("Logic", a.Logic)
	printSubsection("Rate Based")
	printKeyValue("  Alpha", fmt.Sprintf("%.2f", a.Rate.Alpha))
	printSubsection("Buffer Based")
	printKeyValue("  Reservoir Threshold", fmt.Sprintf("%d%%", a.Buffer.ReservoirThreshold))
	printKeyValue("  Max Threshold", fmt.Sprintf("%d%%", a.Buffer.MaxThreshold))
	printSubsection("Three Threshold")
	printKeyValue("  Thresholds", fmt.Sprintf("%d%% / %d%% / %d%%",
		a.ThreeThreshold.FirstThreshold, a.ThreeThreshold.SecondThreshold, a.ThreeThreshold.ThirdThreshold))
	printSubsection("AdapTech")
	printKeyValue("  Thresholds", fmt.Sprintf("%d%% / %d%%", a.AdapTech.FirstThreshold, a.AdapTech.SecondThreshold))
	printKeyValue("  Switch Up Margin", fmt.Sprintf("%d", a.AdapTech.SwitchUpMargin))
	printKeyValue("  Slack", fmt.Sprintf("%.2f", a.AdapTech.Slack))
	printKeyValue("  Alpha", fmt.Sprintf("%.2f", a.AdapTech.Alpha))
	printSubsection("Panda")
	printKeyValue("  Alpha / Beta", fmt.Sprintf("%.2f / %.2f", a.Panda.Alpha, a.Panda.Beta))
	printKeyValue("  Bmin", fmt.Sprintf("%.1f s", a.Panda.Bmin))
	printKeyValue("  K", fmt.Sprintf("%.2f", a.Panda.K))
	printKeyValue("  W", common.FormatBitrate(a.Panda.W)+"bps")
	printKeyValue("  Epsilon", fmt.Sprintf("%.2f", a.Panda.Epsilon))
	printSubsection("Bola")
	printKeyValue("  Alpha", fmt.Sprintf("%.2f", a.Bola.Alpha))
	printKeyValue("  Buffer Target", a.Bola.BufferTarget.String())

	printSection("TRANSPORT")
	printKeyValue("Connection Timeout", config.Transport.ConnectionTimeout.String())
	printKeyValue("Read Timeout", config.Transport.ReadTimeout.String())
	printKeyValue("Max Retries", fmt.Sprintf("%d", config.Transport.MaxRetries))
	printKeyValue("Retry Delay", config.Transport.RetryDelay.String())
	printKeyValue("User Agent", config.Transport.UserAgent)
	printKeyValue("Buffer Size", fmt.Sprintf("%d bytes", config.Transport.BufferSize))
	if len(config.Transport.Headers) > 0 {
		printSubsection(fmt.Sprintf("Headers (%d)", len(config.Transport.Headers)))
		for key, value := range config.Transport.Headers {
			printKeyValue("  "+key, value)
		}
	}

	printSection("METRICS")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Listen Address", config.Metrics.ListenAddr)
	printKeyValue("Collector", fmt.Sprintf("%t", config.Metrics.Collector))
	printKeyValue("Log File", config.Metrics.LogFile)

	printSection("OUTPUT")
	printKeyValue("Include Trace", fmt.Sprintf("%t", config.Output.IncludeTrace))
	printKeyValue("Pretty Print", fmt.Sprintf("%t", config.Output.PrettyPrint))
	printKeyValue("Timestamps", fmt.Sprintf("%t", config.Output.Timestamps))

	fmt.Println()
	fmt.Println(colorGreen + strings.Repeat("-", 80))
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n", used)
	} else {
		fmt.Println("Config file: none (defaults and environment)")
	}
	fmt.Println(strings.Repeat("=", 80) + colorReset)

	return nil
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", title)
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}
