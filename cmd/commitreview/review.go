package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

func newReviewCmd(c *cli) *cobra.Command {
	var (
		branch      string
		allBranches bool
	)

	cmd := &cobra.Command{
		Use:   "review <repository-id>",
		Short: "Review a repository's recent commits in the foreground",
		Long: `Runs one manual review to completion without the worker pool and prints the
resulting task. Commits that already have a review are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || repoID <= 0 {
				return fmt.Errorf("invalid repository id %q", args[0])
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			st := newStores(db, c.cfg.SecretKey)
			svc, err := newServices(ctx, c.cfg, st, true)
			if err != nil {
				return err
			}

			taskID, runErr := svc.triggers.Manual(ctx, application.ManualRequest{
				RepositoryID: repoID,
				Branch:       branch,
				AllBranches:  allBranches,
				TriggeredBy:  "cli",
			})
			if taskID == "" {
				return runErr
			}

			task, err := st.tasks.Get(ctx, taskID)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), *task)
			return runErr
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to review (default: the repository's review branch)")
	cmd.Flags().BoolVar(&allBranches, "all", false, "Review every branch")
	cmd.MarkFlagsMutuallyExclusive("branch", "all")
	return cmd
}

func printTask(w io.Writer, t model.ReviewTask) {
	_, _ = fmt.Fprintf(w, "task %s: %s\n", t.TaskID, t.Status.Label())
	_, _ = fmt.Fprintf(w, "  commits:  %d/%d\n", t.ProcessedCommits, t.TotalCommits)
	_, _ = fmt.Fprintf(w, "  risk:     high=%d medium=%d low=%d\n", t.Counts.High, t.Counts.Medium, t.Counts.Low)
	_, _ = fmt.Fprintf(w, "  notified: %d\n", t.Counts.Notified)
	if t.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "  error:    %s\n", t.ErrorMessage)
	}
}
