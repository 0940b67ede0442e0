package main

import (
	"github.com/spf13/cobra"
)

type options struct {
	mock    bool
	envFile string
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "bot",
		Short:         "Discord bot that turns prompts into short AI videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().BoolVar(&opts.mock, "mock", false, "Answer generation requests with canned render responses")
	rootCmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	return rootCmd
}
