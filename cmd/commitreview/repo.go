package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// repoFlags are the options accepted by "repo add".
type repoFlags struct {
	authMode       string
	username       string
	password       string
	branch         string
	critical       []string
	ignore         []string
	high           float64
	medium         float64
	manual         bool
	cronExpr       string
	realtime       bool
	pollInterval   time.Duration
	monitored      []string
	autoReview     bool
	notify         bool
	minNotifyLevel string
	webhookURL     string
	webhookSecret  string
}

func newRepoCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage monitored repositories",
	}
	cmd.AddCommand(newRepoAddCmd(c))
	return cmd
}

func newRepoAddCmd(c *cli) *cobra.Command {
	var f repoFlags

	cmd := &cobra.Command{
		Use:   "add <name> <git-url>",
		Short: "Register a repository for review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := f.repository(args[0], args[1], c.cfg.MirrorRoot)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			st := newStores(db, c.cfg.SecretKey)

			id, err := st.repos.Create(ctx, repo)
			if err != nil {
				return err
			}

			if repo.RealtimeEnabled {
				if err := st.monitors.Upsert(ctx, model.RealtimeMonitorConfig{
					RepositoryID:      id,
					IsActive:          true,
					MonitoredBranches: repo.MonitoredBranches,
					CheckInterval:     repo.PollInterval,
					AutoReview:        repo.AutoReview,
				}); err != nil {
					return fmt.Errorf("create realtime monitor: %w", err)
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "repository %d registered, mirror at %s\n", id, repo.LocalPath)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.authMode, "auth-mode", string(model.AuthModePassword), "Authentication mode: password or ssh_key")
	fl.StringVar(&f.username, "username", "", "Username for password authentication")
	fl.StringVar(&f.password, "password", "", "Password or access token (stored encrypted, requires COMMITREVIEW_SECRET_KEY)")
	fl.StringVar(&f.branch, "branch", "master", "Default review branch")
	fl.StringSliceVar(&f.critical, "critical", nil, "Glob patterns of critical files")
	fl.StringSliceVar(&f.ignore, "ignore", nil, "Glob patterns of files left out of reviews")
	fl.Float64Var(&f.high, "high-threshold", model.HighRiskScore, "Score at which notifications treat a review as HIGH")
	fl.Float64Var(&f.medium, "medium-threshold", model.MediumRiskScore, "Score at which notifications treat a review as MEDIUM")
	fl.BoolVar(&f.manual, "manual", true, "Allow manual triggers")
	fl.StringVar(&f.cronExpr, "cron", "", "Cron expression for scheduled reviews of this repository")
	fl.BoolVar(&f.realtime, "realtime", false, "Poll monitored branches for new commits")
	fl.DurationVar(&f.pollInterval, "poll-interval", 5*time.Minute, "Realtime check interval")
	fl.StringSliceVar(&f.monitored, "monitor", nil, "Branches watched by the poller and scheduler (default: the review branch)")
	fl.BoolVar(&f.autoReview, "auto-review", true, "Review new commits found by the poller")
	fl.BoolVar(&f.notify, "notify", true, "Send DingTalk notifications (needs --webhook-url)")
	fl.StringVar(&f.minNotifyLevel, "min-notify-level", string(model.RiskMedium), "Lowest risk level that notifies: LOW, MEDIUM or HIGH")
	fl.StringVar(&f.webhookURL, "webhook-url", "", "DingTalk robot webhook URL")
	fl.StringVar(&f.webhookSecret, "webhook-secret", "", "DingTalk robot signing secret")
	return cmd
}

// repository validates the flags and builds the repository to create.
func (f repoFlags) repository(name, gitURL, mirrorRoot string) (model.Repository, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Repository{}, fmt.Errorf("repository name is required")
	}

	auth := model.AuthMode(f.authMode)
	if auth != model.AuthModePassword && auth != model.AuthModeSSHKey {
		return model.Repository{}, fmt.Errorf("invalid auth mode %q", f.authMode)
	}
	if f.high < 0 || f.high > 1 || f.medium < 0 || f.medium > 1 {
		return model.Repository{}, fmt.Errorf("risk thresholds must be within [0,1]")
	}
	if f.medium > f.high {
		return model.Repository{}, fmt.Errorf("medium threshold %.2f exceeds high threshold %.2f", f.medium, f.high)
	}
	level := model.RiskLevel(strings.ToUpper(f.minNotifyLevel))
	if !level.Valid() {
		return model.Repository{}, fmt.Errorf("invalid minimum notify level %q", f.minNotifyLevel)
	}
	if f.cronExpr != "" {
		if _, err := cron.ParseStandard(f.cronExpr); err != nil {
			return model.Repository{}, fmt.Errorf("invalid cron expression %q: %w", f.cronExpr, err)
		}
	}
	return model.Repository{
		Name:                name,
		GitURL:              gitURL,
		AuthMode:            auth,
		Username:            f.username,
		Password:            f.password,
		LocalPath:           mirrorPath(mirrorRoot, name),
		DefaultBranch:       f.branch,
		HighRiskThreshold:   f.high,
		MediumRiskThreshold: f.medium,
		CriticalPatterns:    f.critical,
		IgnorePatterns:      f.ignore,
		ManualEnabled:       f.manual,
		ScheduledEnabled:    f.cronExpr != "",
		RealtimeEnabled:     f.realtime,
		CronExpression:      f.cronExpr,
		PollInterval:        f.pollInterval,
		MonitoredBranches:   f.monitored,
		AutoReview:          f.autoReview,
		NotifyOnComplete:    f.notify && f.webhookURL != "",
		MinNotifyLevel:      level,
		WebhookURL:          f.webhookURL,
		WebhookSecret:       f.webhookSecret,
		IsActive:            true,
	}, nil
}

// mirrorPath returns the mirror directory for a repository name.
func mirrorPath(root, name string) string {
	safe := strings.Trim(unsafePathChars.ReplaceAllString(name, "-"), "-.")
	if safe == "" {
		safe = "repo"
	}
	return filepath.Join(root, safe)
}
