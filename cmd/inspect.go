package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/dash-abr-client/internal/app"
)

var inspectTimeout time.Duration

var inspectCmd = &cobra.Command{
	Use:   "inspect [manifest-url]",
	Short: "Show the streams and representations of an MPD",
	Long: `Load an MPD and print, per media type, the addressing mode, the segment
duration and count, the first init and media segment URLs and the bitrate
ladder the adaptation logics would choose from.

Examples:
  abr-client inspect https://dash.example.com/vod/manifest.mpd
  abr-client inspect -o yaml file:///srv/dash/manifest.mpd`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second,
		"operation timeout")
}

func runInspect(cmd *cobra.Command, args []string) error {
	playerApp, err := app.NewPlayerApp(&app.Context{
		ManifestURL:  args[0],
		OutputFormat: viper.GetString("output_format"),
		Verbose:      viper.GetBool("verbose"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), inspectTimeout)
	defer cancel()

	return playerApp.Inspect(ctx)
}
