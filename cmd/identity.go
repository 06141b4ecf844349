package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>...",
	Short: "Enroll or replace an identity from photos",
	Long: `Enroll a person from one or more photos.

The first face of every photo is embedded and the embeddings are averaged
into one stored embedding. Photos without a face are skipped. An existing
identity with the same name is replaced.

Examples:
  face-registry enroll "Imran Khan" imran1.jpg imran2.jpg \
    --description "Former Prime Minister" --affiliation "PTI"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

var editCmd = &cobra.Command{
	Use:   "edit <name> [image...]",
	Short: "Rename an identity, change its metadata or replace its photos",
	Long: `Edit an enrolled identity.

Only the flags that are given change. When photos are given and at least
one of them contains a face, the stored embedding is replaced; otherwise
it is kept.

Examples:
  face-registry edit "Imran Khan" --affiliation "Independent"
  face-registry edit "Bob" --new-name "Robert"
  face-registry edit "Bob" new1.jpg new2.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEdit,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(enrollCmd, editCmd, deleteCmd, listCmd, showCmd)

	enrollCmd.Flags().String("description", "", "Description of the person")
	enrollCmd.Flags().String("affiliation", "", "Affiliation (party, team, organisation)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")

	editCmd.Flags().String("new-name", "", "Rename the identity")
	editCmd.Flags().String("description", "", "New description")
	editCmd.Flags().String("affiliation", "", "New affiliation")
	editCmd.Flags().Bool("json", false, "Output as JSON")

	listCmd.Flags().Bool("json", false, "Output as JSON")
	showCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	images, err := readImageFiles(args[1:])
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.enroller.Enroll(ctx, recognition.EnrollRequest{
		Name:        args[0],
		Description: mustGetString(cmd, "description"),
		Affiliation: mustGetString(cmd, "affiliation"),
		Images:      images,
	})
	if err != nil {
		return fmt.Errorf("enrolling %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(identity)
	}
	fmt.Printf("Enrolled %s from %d of %d images\n", identity.Name, identity.ImageCount, len(images))
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	images, err := readImageFiles(args[1:])
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.enroller.Get(ctx, args[0])
	if err != nil {
		return err
	}

	req := recognition.EditRequest{
		OldName:     args[0],
		NewName:     mustGetString(cmd, "new-name"),
		Description: current.Description,
		Affiliation: current.Affiliation,
		Images:      images,
	}
	if cmd.Flags().Changed("description") {
		req.Description = mustGetString(cmd, "description")
	}
	if cmd.Flags().Changed("affiliation") {
		req.Affiliation = mustGetString(cmd, "affiliation")
	}

	result, err := a.enroller.Edit(ctx, req)
	if err != nil {
		return fmt.Errorf("editing %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}
	fmt.Printf("Updated %s\n", result.Identity.Name)
	switch {
	case result.EmbeddingReplaced:
		fmt.Printf("Embedding replaced from %d images\n", result.Identity.ImageCount)
	case len(images) > 0:
		fmt.Println("No face found in the new images, embedding kept")
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.enroller.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.enroller.List(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(identities)
	}
	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAFFILIATION\tIMAGES\tUPDATED")
	for _, id := range identities {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", id.Name, id.Affiliation, id.ImageCount, id.UpdatedAt.Format("2006-01-02"))
	}
	w.Flush()
	fmt.Printf("\n%d identities\n", len(identities))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.enroller.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(identity)
	}
	printIdentity(identity)
	return nil
}
