package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-registry/internal/dataset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import <dataset-dir>",
	Short: "Enroll every person folder of a dataset",
	Long: `Enroll identities from a directory with one sub-folder per person.

Each folder's photos (.jpg, .jpeg, .png, .bmp, .webp) are averaged into one
embedding. Names and metadata come from an optional people.yaml at the
dataset root:

  imran_khan:
    name: Imran Khan
    description: Former Prime Minister
    affiliation: Pakistan Tehreek-e-Insaf (PTI)

Folders without an entry are skipped unless --derive-names is given, in
which case "imran_khan" is enrolled as "Imran Khan".

With --watch the command keeps running and re-enrolls a folder whenever
its photos change.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("derive-names", false, "Enroll folders missing from people.yaml under their title-cased name")
	importCmd.Flags().Bool("watch", false, "Keep watching the dataset and re-enroll changed folders")
	importCmd.Flags().Bool("json", false, "Output the summary as JSON")
}

// importOutcomeJSON is the JSON form of a folder outcome.
type importOutcomeJSON struct {
	Folder     string      `json:"folder"`
	Name       string      `json:"name,omitempty"`
	Status     string      `json:"status"`
	ImagesSeen int         `json:"images_seen"`
	ImagesUsed int         `json:"images_used"`
	Duplicates [][2]string `json:"duplicates,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func outcomeToJSON(o dataset.Outcome) importOutcomeJSON {
	out := importOutcomeJSON{
		Folder:     o.Folder,
		Name:       o.Name,
		Status:     string(o.Status),
		ImagesSeen: o.ImagesSeen,
		ImagesUsed: o.ImagesUsed,
		Duplicates: o.Duplicates,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

func printOutcome(o dataset.Outcome) {
	switch o.Status {
	case dataset.StatusEnrolled:
		fmt.Printf("  %-24s enrolled as %s (%d/%d images)\n", o.Folder, o.Name, o.ImagesUsed, o.ImagesSeen)
		for _, pair := range o.Duplicates {
			fmt.Printf("  %-24s   near-duplicates: %s, %s\n", "", pair[0], pair[1])
		}
	case dataset.StatusUnmapped:
		fmt.Printf("  %-24s skipped: no entry in %s\n", o.Folder, dataset.ManifestFile)
	case dataset.StatusNoImages:
		fmt.Printf("  %-24s skipped: no images\n", o.Folder)
	case dataset.StatusNoFace:
		fmt.Printf("  %-24s failed: no face in %d images\n", o.Folder, o.ImagesSeen)
	default:
		fmt.Printf("  %-24s %s: %v\n", o.Folder, o.Status, o.Err)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	root := args[0]
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("dataset directory not found: %s", root)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	jsonOutput := mustGetBool(cmd, "json")
	opts := dataset.Options{
		DeriveNames: mustGetBool(cmd, "derive-names"),
		Logger:      a.logger.Named("import"),
	}
	if !jsonOutput {
		opts.Progress = os.Stderr
	}

	summary, err := dataset.NewImporter(root, a.enroller, opts).Run(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		outcomes := make([]importOutcomeJSON, len(summary.Outcomes))
		for i, o := range summary.Outcomes {
			outcomes[i] = outcomeToJSON(o)
		}
		if err := outputJSON(map[string]any{
			"outcomes": outcomes,
			"enrolled": summary.Enrolled,
			"skipped":  summary.Skipped,
			"failed":   summary.Failed,
		}); err != nil {
			return err
		}
	} else {
		fmt.Println()
		for _, o := range summary.Outcomes {
			printOutcome(o)
		}
		fmt.Printf("\nEnrolled: %d, skipped: %d, failed: %d\n", summary.Enrolled, summary.Skipped, summary.Failed)
	}

	if !mustGetBool(cmd, "watch") {
		return nil
	}

	// Re-imports print one line each, without a progress bar.
	opts.Progress = nil
	watcher := dataset.NewWatcher(dataset.NewImporter(root, a.enroller, opts), func(o dataset.Outcome) {
		if jsonOutput {
			outputJSON(outcomeToJSON(o))
			return
		}
		printOutcome(o)
	})
	fmt.Fprintf(os.Stderr, "Watching %s for changes, press Ctrl+C to stop\n", root)
	if err := watcher.Run(ctx); err != nil {
		a.logger.Error("watcher stopped", zap.Error(err))
		return err
	}
	return nil
}
