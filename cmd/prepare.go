package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var Prepare = &cobra.Command{
	Use:   "prepare [sitePath]",
	Short: "Prepare a site snapshot by running clean and mark",
	Long: `This command automates the preparation of a site snapshot:
1. Clean - Removes unnecessary HTML elements
2. Mark - Adds unique identifiers to content nodes`,
	Example: "sitetrans prepare path/to/site",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("sitePath is required")
		}
		return nil
	},
	RunE: runPrepare,
}

func runPrepare(cmd *cobra.Command, args []string) error {
	root := args[0]

	if err := Clean.RunE(cmd, []string{root}); err != nil {
		return fmt.Errorf("failed to clean HTML files: %w", err)
	}

	if err := Mark.RunE(cmd, []string{root}); err != nil {
		return fmt.Errorf("failed to mark content: %w", err)
	}

	fmt.Printf("Successfully prepared site at: %s\n", root)
	return nil
}
