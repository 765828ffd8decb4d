package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/notifhub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func scheduledEmail(t *testing.T, f *fixture, at time.Time) *model.Notification {
	t.Helper()
	channels := []model.Channel{model.ChannelInApp, model.ChannelEmail}
	n := &model.Notification{
		UserID:           f.recipient,
		Type:             "MENTION",
		Title:            "You were mentioned",
		Message:          "Budi Santoso mentioned you",
		Priority:         model.PriorityHigh,
		DeliveryChannels: datatypes.NewJSONSlice(channels),
		DeliveryStatus:   datatypes.NewJSONType(model.NewDeliveryStatus(channels, time.Now())),
		ScheduledFor:     &at,
		BatchCount:       1,
	}
	require.NoError(t, f.notifs.Create(context.Background(), n))
	return n
}

func failedEmail(t *testing.T, f *fixture, errorAt time.Time, retryCount int) *model.Notification {
	t.Helper()
	channels := []model.Channel{model.ChannelEmail}
	status := model.NewDeliveryStatus(channels, time.Now())
	status[model.ChannelEmail].Error = "email bounced"
	status[model.ChannelEmail].ErrorAt = &errorAt
	status[model.ChannelEmail].RetryCount = retryCount

	n := &model.Notification{
		UserID:           f.recipient,
		Type:             "MENTION",
		Title:            "You were mentioned",
		Message:          "Budi Santoso mentioned you",
		DeliveryChannels: datatypes.NewJSONSlice(channels),
		DeliveryStatus:   datatypes.NewJSONType(status),
		BatchCount:       1,
	}
	require.NoError(t, f.notifs.Create(context.Background(), n))
	return n
}

func TestSweepScheduledDispatchesDueNotifications(t *testing.T) {
	f := newFixture(t)

	due := scheduledEmail(t, f, time.Now().Add(-time.Minute))
	notDue := scheduledEmail(t, f, time.Now().Add(time.Hour))

	n, err := f.sweeps.SweepScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Nil(t, f.notifs.get(due.ID).ScheduledFor)
	assert.NotNil(t, f.notifs.get(notDue.ID).ScheduledFor)
	assert.Equal(t, 1, f.sender.count())
}

func TestSweepScheduledIsIdempotent(t *testing.T) {
	f := newFixture(t)
	scheduledEmail(t, f, time.Now().Add(-time.Minute))

	first, err := f.sweeps.SweepScheduled(context.Background())
	require.NoError(t, err)
	second, err := f.sweeps.SweepScheduled(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, 1, f.sender.count())
}

func TestSweepBatchesFlushesDueAndStale(t *testing.T) {
	f := newFixture(t)

	// Due: two members, window elapsed.
	a := addLike(t, f, f.actor)
	addLike(t, f, f.actor)
	dueID := *a.BatchID
	f.batchRepo.get(dueID).CreatedAt = time.Now().Add(-6 * time.Minute)

	// Under minimum and inside the stale horizon: left open.
	lone := addLike(t, f, f.actor)
	f.batchRepo.get(*lone.BatchID).CreatedAt = time.Now().Add(-6 * time.Minute)
	loneID := *lone.BatchID

	n, err := f.sweeps.SweepBatches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.batchRepo.get(dueID).Processed)
	assert.False(t, f.batchRepo.get(loneID).Processed)

	// Past the stale age the lone batch is flushed regardless of count.
	f.batchRepo.get(loneID).CreatedAt = time.Now().Add(-25 * time.Hour)
	n, err = f.sweeps.SweepBatches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.batchRepo.get(loneID).Processed)
}

func TestSweepBatchesSkipsAlreadyProcessed(t *testing.T) {
	f := newFixture(t)

	a := addLike(t, f, f.actor)
	addLike(t, f, f.actor)
	batchID := *a.BatchID
	f.batchRepo.get(batchID).CreatedAt = time.Now().Add(-6 * time.Minute)

	require.NoError(t, f.batches.Flush(context.Background(), batchID))

	n, err := f.sweeps.SweepBatches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRetryFailedEmailsHonorsBackoff(t *testing.T) {
	f := newFixture(t)

	// First failure 30 minutes ago: 2^0 = 1h backoff still running.
	young := failedEmail(t, f, time.Now().Add(-30*time.Minute), 0)
	// Second failure 3 hours ago: 2^1 = 2h backoff elapsed.
	ripe := failedEmail(t, f, time.Now().Add(-3*time.Hour), 1)

	n, err := f.sweeps.RetryFailedEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, f.sender.count())

	st := f.notifs.get(ripe.ID).ChannelStatusFor(model.ChannelEmail)
	assert.Equal(t, "pm-1", st.MessageID)
	assert.Empty(t, st.Error)
	assert.Nil(t, st.ErrorAt)

	st = f.notifs.get(young.ID).ChannelStatusFor(model.ChannelEmail)
	assert.Equal(t, "email bounced", st.Error)
}

func TestRetryFailedEmailsStopsAtCeiling(t *testing.T) {
	f := newFixture(t)
	failedEmail(t, f, time.Now().Add(-20*time.Hour), 3)

	n, err := f.sweeps.RetryFailedEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.sender.count())
}

func TestRetryFailedEmailsIgnoresOldFailures(t *testing.T) {
	f := newFixture(t)
	failedEmail(t, f, time.Now().Add(-30*time.Hour), 1)

	n, err := f.sweeps.RetryFailedEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCleanupRemovesOldRows(t *testing.T) {
	f := newFixture(t)

	old := scheduledEmail(t, f, time.Now().Add(time.Hour))
	f.notifs.get(old.ID).CreatedAt = time.Now().Add(-91 * 24 * time.Hour)
	f.notifs.get(old.ID).ScheduledFor = nil
	keep := scheduledEmail(t, f, time.Now().Add(time.Hour))

	b := &model.NotificationBatch{
		UserID:       f.recipient,
		Type:         "CONTENT_LIKED",
		BatchCount:   2,
		BatchingMode: model.BatchingBatched,
		Processed:    true,
		CreatedAt:    time.Now().Add(-31 * 24 * time.Hour),
	}
	require.NoError(t, f.batchRepo.Create(context.Background(), b))

	removedNotifs, err := f.sweeps.CleanupNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removedNotifs)
	assert.Nil(t, f.notifs.get(old.ID))
	assert.NotNil(t, f.notifs.get(keep.ID))

	removedBatches, err := f.sweeps.CleanupBatches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removedBatches)
	assert.Nil(t, f.batchRepo.get(b.ID))
}

func TestSweepScheduledLeavesFutureUntouched(t *testing.T) {
	f := newFixture(t)
	future := scheduledEmail(t, f, time.Now().Add(time.Hour))

	n, err := f.sweeps.SweepScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NotNil(t, f.notifs.get(future.ID).ScheduledFor)
}
