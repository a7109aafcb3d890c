package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/dash-abr-client/internal/app"
)

var (
	playProfile    string
	playLogic      string
	playMedia      []string
	playBufferSize int
	playDuration   time.Duration
	playSpeed      float64
	playLooping    bool
	playDrain      bool
	playTrace      bool
	playMetrics    string
	playOutputFile string
	playQuiet      bool
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [flags] [manifest-url]",
	Short: "Play a DASH presentation headlessly and report the session",
	Long: `Play an MPEG-DASH presentation without decoding it. Segments are downloaded
as a player would download them, the selected adaptation logic picks the
representation of every segment and the buffered media is played out in real
time (or faster with --speed, or discarded at once with --drain).

When the session ends a report with throughput, bitrate, quality, buffer level,
switch and stall statistics is printed.

Examples:
  # Play a static presentation with the default logic (Bola)
  abr-client play https://dash.example.com/vod/manifest.mpd

  # Compare logics on the same content, as fast as the network allows
  abr-client play --logic RateBased --drain -o json https://dash.example.com/vod/manifest.mpd
  abr-client play --logic Panda --drain -o json https://dash.example.com/vod/manifest.mpd

  # Follow a live stream for five minutes and expose Prometheus metrics
  abr-client play --duration 5m --metrics-addr :9102 https://live.example.com/manifest.mpd

  # Run a session profile
  abr-client play --profile sessions/live-panda.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVarP(&playProfile, "profile", "p", "",
		"session profile file (YAML or JSON)")
	playCmd.Flags().StringVarP(&playLogic, "logic", "l", "",
		"adaptation logic (see the strategies command)")
	playCmd.Flags().StringSliceVar(&playMedia, "media", nil,
		"media types to play (video, audio); default plays every stream")
	playCmd.Flags().IntVar(&playBufferSize, "buffer-size", 0,
		"playback buffer capacity in segments")
	playCmd.Flags().DurationVarP(&playDuration, "duration", "d", 0,
		"stop the session after this long (0 plays to the end)")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 0,
		"playback speed of the headless consumer (1 is real time)")
	playCmd.Flags().BoolVar(&playLooping, "loop", false,
		"restart static content from the beginning when it ends")
	playCmd.Flags().BoolVar(&playDrain, "drain", false,
		"discard segments as soon as they are buffered")
	playCmd.Flags().BoolVar(&playTrace, "trace", false,
		"include the per segment trace in the report")
	playCmd.Flags().StringVar(&playMetrics, "metrics-addr", "",
		"serve Prometheus metrics and session status on this address")
	playCmd.Flags().StringVar(&playOutputFile, "output-file", "",
		"write the report to a file instead of stdout")
	playCmd.Flags().BoolVarP(&playQuiet, "quiet", "q", false,
		"do not print the report")
}

func runPlay(cmd *cobra.Command, args []string) error {
	appCtx := &app.Context{
		ProfileFile:  playProfile,
		OutputFile:   playOutputFile,
		OutputFormat: viper.GetString("output_format"),
		Logic:        playLogic,
		MediaTypes:   playMedia,
		BufferSize:   playBufferSize,
		Duration:     playDuration,
		Speed:        playSpeed,
		Looping:      playLooping,
		Drain:        playDrain,
		IncludeTrace: playTrace,
		MetricsAddr:  playMetrics,
		Verbose:      viper.GetBool("verbose"),
		Quiet:        playQuiet,
	}
	if len(args) > 0 {
		appCtx.ManifestURL = args[0]
	}

	playerApp, err := app.NewPlayerApp(appCtx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return playerApp.Run(ctx)
}
