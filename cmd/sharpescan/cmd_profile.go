package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/sharpescan/internal/config"
)

// profileCmd prints a run profile as YAML
var profileCmd = &cobra.Command{
	Use:   "profile [FILE]",
	Short: "Print the default run profile, or validate and normalize FILE",
	Long: `Without arguments, print the built-in Dow 30 profile as YAML; redirect it
to a file to start a new study. With FILE, load it (omitted fields take
their defaults), validate it and print the result.

Examples:
  sharpescan profile > study.yaml
  sharpescan profile study.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	profile := config.DefaultProfile()
	if len(args) == 1 {
		var err error
		if profile, err = config.LoadProfile(args[0]); err != nil {
			return err
		}
	}

	data, err := profile.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
