package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// addLike creates a CONTENT_LIKED notification directly in the repo and runs
// it through the batching engine, bypassing event validation.
func addLike(t *testing.T, f *fixture, actorID uuid.UUID) *model.Notification {
	t.Helper()
	channels := []model.Channel{model.ChannelInApp, model.ChannelEmail}
	n := &model.Notification{
		UserID:           f.recipient,
		Type:             "CONTENT_LIKED",
		Title:            "New like",
		Message:          "someone liked your content",
		Category:         model.CategoryEngagement,
		Priority:         model.PriorityLow,
		ActorID:          &actorID,
		DeliveryChannels: datatypes.NewJSONSlice(channels),
		DeliveryStatus:   datatypes.NewJSONType(model.NewDeliveryStatus(channels, time.Now())),
		BatchCount:       1,
	}
	require.NoError(t, f.notifs.Create(context.Background(), n))
	require.NoError(t, f.batches.Add(context.Background(), n, model.BatchingBatched))
	return n
}

func TestAddStartsBatchThenMerges(t *testing.T) {
	f := newFixture(t)

	first := addLike(t, f, f.actor)
	require.NotNil(t, first.BatchID)
	anchor := f.batchRepo.get(*first.BatchID).CreatedAt

	second := addLike(t, f, f.actor)
	require.NotNil(t, second.BatchID)
	assert.Equal(t, *first.BatchID, *second.BatchID)

	b := f.batchRepo.get(*first.BatchID)
	assert.Equal(t, 2, b.BatchCount)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, []uuid.UUID(b.Notifications))
	// The window anchor is set by the first member and never moves on merge.
	assert.Equal(t, anchor, b.CreatedAt)
}

func TestAddKeepsTypesInSeparateBatches(t *testing.T) {
	f := newFixture(t)

	like := addLike(t, f, f.actor)

	channels := []model.Channel{model.ChannelInApp}
	follow := &model.Notification{
		UserID:           f.recipient,
		Type:             "NEW_FOLLOWER",
		DeliveryChannels: datatypes.NewJSONSlice(channels),
		DeliveryStatus:   datatypes.NewJSONType(model.NewDeliveryStatus(channels, time.Now())),
		BatchCount:       1,
	}
	require.NoError(t, f.notifs.Create(context.Background(), follow))
	require.NoError(t, f.batches.Add(context.Background(), follow, model.BatchingBatched))

	require.NotNil(t, follow.BatchID)
	assert.NotEqual(t, *like.BatchID, *follow.BatchID)
}

func TestAddFullBatchFlushesThenStartsNew(t *testing.T) {
	f := newFixture(t)

	var members []*model.Notification
	for i := 0; i < 10; i++ {
		members = append(members, addLike(t, f, f.actor))
	}
	fullID := *members[0].BatchID
	assert.Equal(t, 10, f.batchRepo.get(fullID).BatchCount)

	overflow := addLike(t, f, f.actor)

	old := f.batchRepo.get(fullID)
	assert.True(t, old.Processed)
	require.NotNil(t, old.SummaryNotificationID)

	summary := f.notifs.get(*old.SummaryNotificationID)
	require.NotNil(t, summary)
	assert.Equal(t, "CONTENT_LIKED_BATCH", summary.Type)
	assert.Equal(t, 10, summary.BatchCount)

	require.NotNil(t, overflow.BatchID)
	assert.NotEqual(t, fullID, *overflow.BatchID)
	fresh := f.batchRepo.get(*overflow.BatchID)
	assert.Equal(t, 1, fresh.BatchCount)
	assert.False(t, fresh.Processed)
}

func TestAddIgnoresExpiredWindow(t *testing.T) {
	f := newFixture(t)

	first := addLike(t, f, f.actor)
	// Age the open batch past the merge window.
	f.batchRepo.get(*first.BatchID).CreatedAt = time.Now().Add(-10 * time.Minute)

	second := addLike(t, f, f.actor)
	assert.NotEqual(t, *first.BatchID, *second.BatchID)
}

func TestFlushBuildsSummaryAndFoldsMembers(t *testing.T) {
	f := newFixture(t)
	third := f.users.add(model.User{Username: "citra", Email: "citra@example.com", FullName: "Citra Dewi"})

	a := addLike(t, f, f.actor)
	b := addLike(t, f, third)
	c := addLike(t, f, third)
	batchID := *a.BatchID

	require.NoError(t, f.batches.Flush(context.Background(), batchID))

	batch := f.batchRepo.get(batchID)
	assert.True(t, batch.Processed)
	require.NotNil(t, batch.SummaryNotificationID)

	summary := f.notifs.get(*batch.SummaryNotificationID)
	require.NotNil(t, summary)
	assert.Equal(t, "3 new likes", summary.Title)
	assert.Equal(t, "Budi Santoso, Citra Dewi and 1 others liked your content", summary.Message)
	assert.Equal(t, 3, summary.BatchCount)
	assert.False(t, summary.HiddenFromFeed)

	for _, m := range []*model.Notification{a, b, c} {
		got := f.notifs.get(m.ID)
		assert.True(t, got.HiddenFromFeed)
		require.NotNil(t, got.BatchedInto)
		assert.Equal(t, summary.ID, *got.BatchedInto)
	}

	// The summary's in_app delivery shows up in the analytics stream.
	delivered := f.analytics.byEvent("delivered")
	require.Len(t, delivered, 1)
	assert.Equal(t, summary.ID, delivered[0].NotificationID)
	assert.Equal(t, model.ChannelInApp, delivered[0].Channel)

	// One summary email, recorded on every email-channel member.
	require.Equal(t, 1, f.sender.count())
	for _, m := range []*model.Notification{a, b, c} {
		st := f.notifs.get(m.ID).ChannelStatusFor(model.ChannelEmail)
		require.NotNil(t, st)
		assert.Equal(t, "pm-1", st.MessageID)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	f := newFixture(t)

	a := addLike(t, f, f.actor)
	addLike(t, f, f.actor)
	batchID := *a.BatchID

	require.NoError(t, f.batches.Flush(context.Background(), batchID))
	err := f.batches.Flush(context.Background(), batchID)
	assert.ErrorIs(t, err, apperror.ErrBatchProcessed)

	// Exactly one summary despite the double flush.
	summaries := 0
	for _, id := range f.notifs.order {
		if f.notifs.items[id].Type == "CONTENT_LIKED_BATCH" {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)
}

func TestFlushClosesBatchWithNoSurvivingMembers(t *testing.T) {
	f := newFixture(t)

	a := addLike(t, f, f.actor)
	batchID := *a.BatchID
	require.NoError(t, f.notifs.Delete(context.Background(), a.ID, f.recipient))

	require.NoError(t, f.batches.Flush(context.Background(), batchID))

	batch := f.batchRepo.get(batchID)
	assert.True(t, batch.Processed)
	assert.Nil(t, batch.SummaryNotificationID)
	assert.Equal(t, 0, f.sender.count())
}

func TestFlushNamesLoneActor(t *testing.T) {
	f := newFixture(t)

	a := addLike(t, f, f.actor)
	require.NoError(t, f.batches.Flush(context.Background(), *a.BatchID))

	batch := f.batchRepo.get(*a.BatchID)
	summary := f.notifs.get(*batch.SummaryNotificationID)
	assert.Equal(t, "New like", summary.Title)
	assert.Equal(t, "Budi Santoso liked your content", summary.Message)
}
