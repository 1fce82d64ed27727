package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled reviews",
	}
	cmd.AddCommand(newScheduleAddCmd(c))
	return cmd
}

func newScheduleAddCmd(c *cli) *cobra.Command {
	var (
		repoIDs     []int64
		branches    []string
		allBranches bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> <cron-expression>",
		Short: "Review a set of repositories on a cron schedule",
		Example: `  commitreview schedule add nightly "0 2 * * *" --repos 1,2 --branches main,develop
  commitreview schedule add weekly @weekly --repos 3 --all-branches`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scheduleConfig(args[0], args[1], repoIDs, branches, allBranches)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			id, err := newStores(db, c.cfg.SecretKey).schedules.Create(ctx, cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schedule %d created for %d repositories\n", id, len(cfg.RepositoryIDs))
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&repoIDs, "repos", nil, "Repository ids to review")
	cmd.Flags().StringSliceVar(&branches, "branches", nil, "Branches to review (default: each repository's review branch)")
	cmd.Flags().BoolVar(&allBranches, "all-branches", false, "Review every branch")
	cmd.MarkFlagsMutuallyExclusive("branches", "all-branches")
	_ = cmd.MarkFlagRequired("repos")
	return cmd
}

func scheduleConfig(name, expr string, repoIDs []int64, branches []string, allBranches bool) (model.ScheduledReviewConfig, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return model.ScheduledReviewConfig{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if len(repoIDs) == 0 {
		return model.ScheduledReviewConfig{}, fmt.Errorf("at least one repository id is required")
	}
	for _, id := range repoIDs {
		if id <= 0 {
			return model.ScheduledReviewConfig{}, fmt.Errorf("invalid repository id %d", id)
		}
	}
	return model.ScheduledReviewConfig{
		Name:           name,
		CronExpression: expr,
		Branches:       branches,
		AllBranches:    allBranches,
		RepositoryIDs:  repoIDs,
		IsActive:       true,
	}, nil
}
