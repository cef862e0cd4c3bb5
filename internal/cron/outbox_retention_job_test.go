package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

func TestOutboxRetentionJobDeletesPublishedAndTerminalRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	assert.True(t, repo.publishedCutoff.Equal(expectedCutoff))
	assert.True(t, repo.terminalCutoff.Equal(expectedCutoff))
	assert.Equal(t, outboxMaxAttempts, repo.maxAttempts)
}

func TestOutboxRetentionJobRunsBothDeletesBeforeFailing(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{publishedErr: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, repo.terminalCutoff.IsZero(), "terminal cleanup still runs")
}

func TestNewOutboxRetentionJobRequiresRepository(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger()})
	require.Error(t, err)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "expected outboxRetentionJob, got %T", jobIface)
	return job
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeOutboxRetentionRepo struct {
	publishedCutoff time.Time
	terminalCutoff  time.Time
	maxAttempts     int
	publishedErr    error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.publishedCutoff = cutoff
	if f.publishedErr != nil {
		return 0, f.publishedErr
	}
	return 7, nil
}

func (f *fakeOutboxRetentionRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	f.terminalCutoff = cutoff
	f.maxAttempts = maxAttempts
	return 2, nil
}
