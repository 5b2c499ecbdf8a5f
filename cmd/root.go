package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-registry",
	Short: "Enroll faces and recognize people by face embeddings",
	Long: `Face Registry stores face embeddings for enrolled people and matches
new photos against them. Embeddings come from an external face embedding
server; identities and embeddings live in SQLite, PostgreSQL or MariaDB.

Run "face-registry serve" for the HTTP API, or use the enroll, recognize
and identities commands directly.`,
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
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
