package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "casectl",
	Short: "Run case analyses from the command line",
	Long: `casectl runs the case analysis pipeline locally: documents are read from
text files, sessions live in SQLite and reports are written to the local
filesystem. Model backends are configured through the same environment
variables as the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				log.Printf("Warning: No .env file found, using environment variables")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log pipeline details to stderr")
	rootCmd.PersistentFlags().String("rules", "", "YAML rule corpus (defaults to the bundled corpus)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
