package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "v1.0.0" // Overwritten at build time

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "peek",
		Short: "Presentation feedback from a video",
		Long: `peek scores a presentation video for posture, confidence and eye contact
and prints a feedback report. Without a vision model API key it prints
sample scores so the report format can still be previewed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "peek %s\n", version)
		},
	})

	return rootCmd
}
