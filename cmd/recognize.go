package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/recognition"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize IMAGE",
	Short: "Match the face in an image against enrolled people",
	Long: `Match the largest face in IMAGE against every enrolled person and print
the best matches above the similarity threshold (MATCH_THRESHOLD).

Examples:
  face-registry recognize photo.jpg
  face-registry recognize photo.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizeOutput is the JSON output of the recognize command
type RecognizeOutput struct {
	Matches       []RecognizeMatch `json:"matches"`
	TopSimilarity *float32         `json:"top_similarity,omitempty"`
}

// RecognizeMatch is one matched person
type RecognizeMatch struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Similarity float32 `json:"similarity"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Rebuild(ctx); err != nil {
		return fmt.Errorf("loading index: %w", err)
	}

	candidates, err := a.engine.Recognize(ctx, image)
	var noMatch *recognition.NoMatchError
	if errors.As(err, &noMatch) {
		if jsonOutput {
			return outputJSON(RecognizeOutput{Matches: []RecognizeMatch{}, TopSimilarity: &noMatch.TopSimilarity})
		}
		fmt.Printf("No matching person found (top similarity %.4f)\n", noMatch.TopSimilarity)
		return nil
	}
	if err != nil {
		return err
	}

	out := RecognizeOutput{Matches: make([]RecognizeMatch, 0, len(candidates))}
	for _, c := range candidates {
		out.Matches = append(out.Matches, RecognizeMatch{
			UserID:     c.IdentityID,
			Name:       c.DisplayName,
			Email:      c.Contact,
			Similarity: c.Similarity,
		})
	}
	if jsonOutput {
		return outputJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tNAME\tEMAIL\tSIMILARITY")
	for _, m := range out.Matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\n", m.UserID, m.Name, m.Email, m.Similarity)
	}
	return w.Flush()
}
