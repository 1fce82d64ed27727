package main

import (
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/commitreview/internal/config"
)

// cli holds state shared by every subcommand.
type cli struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "commitreview",
		Short: "AI review of every commit pushed to your repositories",
		Long: `commitreview mirrors registered git repositories, reviews new commits
with a reasoning model, records a risk-scored review per commit and notifies
a DingTalk robot when a review is risky enough.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(c.envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Optional file of COMMITREVIEW_* variables")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newReviewCmd(c),
		newRepoCmd(c),
		newScheduleCmd(c),
		newCredentialCmd(c),
	)
	return root
}
