package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/dash-abr-client/pkg/adaptation"
)

var strategyDescriptions = map[adaptation.Kind]string{
	adaptation.KindAlwaysLowest:              "always selects the lowest representation",
	adaptation.KindRateBased:                 "smoothed throughput (EWMA) picks the highest affordable bitrate",
	adaptation.KindBufferBased:               "linear map of buffer fill between reservoir and cushion",
	adaptation.KindBufferBasedThreeThreshold: "steps quality on three buffer thresholds",
	adaptation.KindAdapTech:                  "hybrid of throughput and buffer level with switch up margin",
	adaptation.KindPanda:                     "probe and adapt: additive increase, multiplicative decrease, paced requests",
	adaptation.KindBola:                      "Lyapunov buffer utility maximisation with throughput startup",
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the available adaptation logics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		factory := adaptation.NewFactory(adaptation.DefaultParams(), nil)
		out := cmd.OutOrStdout()
		for _, kind := range factory.SupportedKinds() {
			fmt.Fprintf(out, "  %-27s %s\n", kind, strategyDescriptions[kind])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
