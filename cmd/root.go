package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "localpiece",
	Short: "Travel blog backend with AI content generation",
	Long: `localpiece serves the travel blog API and runs the background
worker that turns submitted trip photos into generated blog posts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
