package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Identify the person in a photo",
	Long: `Match the first face in a photo against all enrolled identities.

The closest identity is reported when its distance is within the
tolerance (MATCH_TOLERANCE, default 0.6); otherwise the person is
reported as Unknown.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Float64("tolerance", 0, "Override the match tolerance")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := openApp(ctx, cmd, false, func(cfg *config.Config) {
		if cmd.Flags().Changed("tolerance") {
			cfg.Match.Tolerance = mustGetFloat64(cmd, "tolerance")
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.verifier.Verify(ctx, data)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}
	if !result.Matched {
		if result.Distance != nil {
			fmt.Printf("Unknown (closest distance %.4f, tolerance %.2f)\n", *result.Distance, a.verifier.Tolerance())
		} else {
			fmt.Println("Unknown (no enrolled identities to compare)")
		}
		return nil
	}
	fmt.Printf("Match: %s (distance %.4f)\n", result.Name, *result.Distance)
	if result.Description != "" {
		fmt.Printf("  %s\n", result.Description)
	}
	if result.Affiliation != "" {
		fmt.Printf("  %s\n", result.Affiliation)
	}
	return nil
}
