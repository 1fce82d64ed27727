package application_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

func TestScheduler_ReloadReconcilesEntries(t *testing.T) {
	scheduledRepo := testRepo()
	scheduledRepo.ScheduledEnabled = true
	scheduledRepo.CronExpression = "0 3 * * *"

	schedules := &fakeScheduleStore{configs: []model.ScheduledReviewConfig{
		{ID: 1, Name: "nightly", CronExpression: "0 2 * * *", RepositoryIDs: []int64{7}, IsActive: true},
		{ID: 2, Name: "broken", CronExpression: "not a cron", RepositoryIDs: []int64{7}, IsActive: true},
	}}
	repos := newFakeRepoStore(scheduledRepo)
	s := application.NewScheduler(schedules, repos, &fakeDispatcher{}, 0)
	ctx := context.Background()

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 2, s.EntryCount(), "valid schedule plus repository cron")

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 2, s.EntryCount(), "reload is idempotent")

	schedules.configs = schedules.configs[:0]
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 1, s.EntryCount(), "removed schedule is dropped")

	scheduledRepo.CronExpression = "*/15 * * * *"
	require.NoError(t, repos.Update(ctx, scheduledRepo))
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 1, s.EntryCount(), "changed expression replaces the entry")
}

func TestScheduler_FireScheduleFansOutPerBranch(t *testing.T) {
	other := testRepo()
	other.ID = 8
	other.DefaultBranch = "develop"
	inactive := testRepo()
	inactive.ID = 9
	inactive.IsActive = false

	schedules := &fakeScheduleStore{}
	dispatcher := &fakeDispatcher{}
	s := application.NewScheduler(schedules, newFakeRepoStore(testRepo(), other, inactive), dispatcher, 0)

	cfg := model.ScheduledReviewConfig{
		ID:            3,
		Name:          "hourly",
		Branches:      []string{"main", "release/1.x"},
		RepositoryIDs: []int64{7, 9, 42},
	}
	s.FireSchedule(context.Background(), cfg)

	invs := dispatcher.dispatched()
	require.Len(t, invs, 2)
	for _, inv := range invs {
		assert.Equal(t, int64(7), inv.RepositoryID)
		assert.Equal(t, model.ScopeBranch, inv.Scope)
		assert.Equal(t, model.TriggerScheduled, inv.TriggerMode)
		assert.Equal(t, "system", inv.TriggeredBy)
		require.NoError(t, inv.Validate())
	}
	assert.Equal(t, "main", invs[0].Branch)
	assert.True(t, strings.HasPrefix(invs[0].TaskID, "scheduled_7_main_"), invs[0].TaskID)
	assert.True(t, strings.HasPrefix(invs[1].TaskID, "scheduled_7_release-1.x_"), invs[1].TaskID)
	assert.Equal(t, 1, schedules.runs[3])

	s.FireSchedule(context.Background(), model.ScheduledReviewConfig{ID: 4, RepositoryIDs: []int64{8}})
	invs = dispatcher.dispatched()
	require.Len(t, invs, 3)
	assert.Equal(t, "develop", invs[2].Branch, "falls back to the default branch")
}

func TestScheduler_FireScheduleAllBranches(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := application.NewScheduler(&fakeScheduleStore{}, newFakeRepoStore(testRepo()), dispatcher, 0)

	s.FireSchedule(context.Background(), model.ScheduledReviewConfig{
		ID:            5,
		AllBranches:   true,
		Branches:      []string{"ignored"},
		RepositoryIDs: []int64{7},
	})

	invs := dispatcher.dispatched()
	require.Len(t, invs, 1)
	assert.Equal(t, model.ScopeAllBranches, invs[0].Scope)
	assert.True(t, invs[0].AllBranches)
	assert.True(t, strings.HasPrefix(invs[0].TaskID, "scheduled_7_all_"), invs[0].TaskID)
}

func TestScheduler_FireRepository(t *testing.T) {
	repo := testRepo()
	repo.ScheduledEnabled = true
	repo.MonitoredBranches = []string{"main", "hotfix"}
	disabled := testRepo()
	disabled.ID = 8

	dispatcher := &fakeDispatcher{}
	s := application.NewScheduler(&fakeScheduleStore{}, newFakeRepoStore(repo, disabled), dispatcher, 0)

	s.FireRepository(context.Background(), 7)
	s.FireRepository(context.Background(), 8)

	invs := dispatcher.dispatched()
	require.Len(t, invs, 2)
	assert.Equal(t, "main", invs[0].Branch)
	assert.Equal(t, "hotfix", invs[1].Branch)
}
