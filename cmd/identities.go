package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled people",
	Long: `List enrolled people with their embedding counts.

--name filters by display name, ignoring case and diacritics.

Examples:
  face-registry identities
  face-registry identities --name tomas`,
	Args: cobra.NoArgs,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().String("name", "", "Filter by display name")
	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentityOutput is one listed person
type IdentityOutput struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	EmbeddingCount int       `json:"embedding_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func runIdentities(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.engine.ListIdentities(ctx, mustGetString(cmd, "name"))
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}

	out := make([]IdentityOutput, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, IdentityOutput{
			UserID:         s.ID,
			Name:           s.DisplayName,
			Email:          s.Contact,
			EmbeddingCount: s.EmbeddingCount,
			UpdatedAt:      s.UpdatedAt,
		})
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}

	if len(out) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tNAME\tEMAIL\tEMBEDDINGS\tUPDATED")
	for _, o := range out {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.UserID, o.Name, o.Email, o.EmbeddingCount,
			o.UpdatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d identities\n", len(out))
	return nil
}
