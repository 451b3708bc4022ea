package cmd

import (
	"github.com/spf13/cobra"
)

var Root = &cobra.Command{
	Use: "sitetrans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	Root.AddCommand(Clean)
	Root.AddCommand(Mark)
	Root.AddCommand(Prepare)
	Root.AddCommand(Translate)
	Root.AddCommand(Serve)
}
