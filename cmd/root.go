package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-registry",
	Short: "Enroll people from photos and verify faces against them",
	Long: `Face Registry keeps one averaged face embedding per enrolled person
and answers "who is this?" for a query photo by nearest-neighbour search
over the enrolled embeddings.

Configuration is read from the environment (and an optional .env file).
See STORE_DRIVER, DATABASE_URL, VISION_URL, MATCH_TOLERANCE and
CACHE_DURATION.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (overrides LOG_DEBUG)")
	rootCmd.PersistentFlags().String("store", "", "Store driver: postgres, sqlite or redis (overrides STORE_DRIVER)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
