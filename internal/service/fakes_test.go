package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/apperror"
	"anoa.com/notifhub/pkg/mailer"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// In-memory doubles for the repository and provider boundaries. They mirror
// the conditional-write semantics of the real gorm implementations so the
// concurrency guards are exercised for real.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (r *fakeUserRepo) add(u model.User) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = &u
	return u.ID
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return u, nil
}

type fakeSettingsRepo struct {
	mu   sync.Mutex
	rows map[string]*model.NotificationSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{rows: make(map[string]*model.NotificationSettings)}
}

func settingsKey(userID uuid.UUID, notificationType string) string {
	return userID.String() + "/" + notificationType
}

func (r *fakeSettingsRepo) put(s model.NotificationSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.rows[settingsKey(s.UserID, s.NotificationType)] = &s
}

func (r *fakeSettingsRepo) Get(_ context.Context, userID uuid.UUID, notificationType string) (*model.NotificationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[settingsKey(userID, notificationType)]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return s, nil
}

func (r *fakeSettingsRepo) GetOrCreate(_ context.Context, defaults model.NotificationSettings) (*model.NotificationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := settingsKey(defaults.UserID, defaults.NotificationType)
	if s, ok := r.rows[key]; ok {
		return s, nil
	}
	defaults.ID = uuid.New()
	r.rows[key] = &defaults
	return &defaults, nil
}

func (r *fakeSettingsRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.NotificationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.NotificationSettings
	for _, s := range r.rows {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSettingsRepo) Save(_ context.Context, settings *model.NotificationSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *settings
	r.rows[settingsKey(settings.UserID, settings.NotificationType)] = &cp
	return nil
}

func (r *fakeSettingsRepo) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.rows {
		if s.UserID == userID {
			delete(r.rows, k)
		}
	}
	return nil
}

type fakeNotifRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Notification
	order []uuid.UUID
	dup   *model.Notification
}

func newFakeNotifRepo() *fakeNotifRepo {
	return &fakeNotifRepo{items: make(map[uuid.UUID]*model.Notification)}
}

func (r *fakeNotifRepo) get(id uuid.UUID) *model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *fakeNotifRepo) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.items[n.ID] = n
	r.order = append(r.order, n.ID)
	return nil
}

func (r *fakeNotifRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return n, nil
}

func (r *fakeNotifRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Notification
	for _, id := range r.order {
		if want[id] {
			out = append(out, *r.items[id])
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) Patch(_ context.Context, id uuid.UUID, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return apperror.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "batch_id":
			b := v.(uuid.UUID)
			n.BatchID = &b
		case "batched_into":
			b := v.(uuid.UUID)
			n.BatchedInto = &b
		case "hidden_from_feed":
			n.HiddenFromFeed = v.(bool)
		case "scheduled_for":
			t := v.(time.Time)
			n.ScheduledFor = &t
		case "delivery_status":
			n.DeliveryStatus = v.(datatypes.JSONType[model.DeliveryStatusMap])
		case "is_read":
			n.IsRead = v.(bool)
		default:
			return fmt.Errorf("fakeNotifRepo: unsupported patch key %q", k)
		}
	}
	return nil
}

func (r *fakeNotifRepo) FindRecentDuplicate(_ context.Context, _ uuid.UUID, _ string, _, _ *uuid.UUID, _ time.Time) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dup == nil {
		return nil, apperror.ErrNotFound
	}
	return r.dup, nil
}

func (r *fakeNotifRepo) ListByUser(_ context.Context, userID uuid.UUID, opts repository.ListOptions) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, id := range r.order {
		n := r.items[id]
		if n.UserID != userID || n.HiddenFromFeed {
			continue
		}
		if opts.UnreadOnly && n.IsRead {
			continue
		}
		if opts.Category != "" && n.Category != opts.Category {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *fakeNotifRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead && !n.HiddenFromFeed {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotifRepo) MarkAsRead(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return apperror.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (r *fakeNotifRepo) MarkAllAsRead(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (r *fakeNotifRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return apperror.ErrNotFound
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeNotifRepo) FindDueScheduled(_ context.Context, now time.Time, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, id := range r.order {
		n := r.items[id]
		if n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			out = append(out, *n)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) ClearScheduledFor(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.ScheduledFor == nil {
		return false, nil
	}
	n.ScheduledFor = nil
	return true, nil
}

func (r *fakeNotifRepo) FindByEmailMessageID(_ context.Context, messageID string) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, id := range r.order {
		n := r.items[id]
		if st := n.DeliveryStatus.Data()[model.ChannelEmail]; st != nil && st.MessageID == messageID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) FindFailedEmail(_ context.Context, errorAfter time.Time, maxRetries, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, id := range r.order {
		n := r.items[id]
		st := n.DeliveryStatus.Data()[model.ChannelEmail]
		if st == nil || st.Delivered || st.Error == "" || st.ErrorAt == nil {
			continue
		}
		if st.RetryCount >= maxRetries || st.ErrorAt.Before(errorAfter) {
			continue
		}
		out = append(out, *n)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	var kept []uuid.UUID
	for _, id := range r.order {
		n := r.items[id]
		if n.CreatedAt.Before(cutoff) {
			delete(r.items, id)
			removed++
		} else {
			kept = append(kept, id)
		}
	}
	r.order = kept
	return removed, nil
}

func (r *fakeNotifRepo) Stats(_ context.Context, _, _ time.Time) (*repository.Stats, error) {
	return &repository.Stats{}, nil
}

type fakeBatchRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.NotificationBatch
	order []uuid.UUID
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{items: make(map[uuid.UUID]*model.NotificationBatch)}
}

func (r *fakeBatchRepo) get(id uuid.UUID) *model.NotificationBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *fakeBatchRepo) Create(_ context.Context, b *model.NotificationBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	r.items[b.ID] = b
	r.order = append(r.order, b.ID)
	return nil
}

func (r *fakeBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) FindOpen(_ context.Context, userID uuid.UUID, notificationType string, windowStart time.Time) (*model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		b := r.items[r.order[i]]
		if b.UserID == userID && b.Type == notificationType && !b.Processed && !b.CreatedAt.Before(windowStart) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r *fakeBatchRepo) AppendMember(_ context.Context, batchID uuid.UUID, expectedCount int, members []uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[batchID]
	if !ok {
		return false, apperror.ErrNotFound
	}
	if b.Processed || b.BatchCount != expectedCount {
		return false, nil
	}
	b.Notifications = datatypes.NewJSONSlice(members)
	b.BatchCount = len(members)
	return true, nil
}

func (r *fakeBatchRepo) MarkProcessed(_ context.Context, batchID uuid.UUID, summaryID *uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[batchID]
	if !ok {
		return false, apperror.ErrNotFound
	}
	if b.Processed {
		return false, nil
	}
	b.Processed = true
	b.ProcessedAt = &at
	b.SummaryNotificationID = summaryID
	return true, nil
}

func (r *fakeBatchRepo) FindDue(_ context.Context, batchedCutoff, digestCutoff time.Time, minCount, limit int) ([]model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.NotificationBatch
	for _, id := range r.order {
		b := r.items[id]
		if b.Processed || b.BatchCount < minCount {
			continue
		}
		cutoff := batchedCutoff
		if b.BatchingMode == model.BatchingDigest {
			cutoff = digestCutoff
		}
		if b.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, *b)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) FindStale(_ context.Context, cutoff time.Time, limit int) ([]model.NotificationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.NotificationBatch
	for _, id := range r.order {
		b := r.items[id]
		if b.Processed || b.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, *b)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) DeleteProcessedOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, b := range r.items {
		if b.Processed && b.CreatedAt.Before(cutoff) {
			delete(r.items, id)
			removed++
		}
	}
	return removed, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	ids    []string
	err    error
	nextID int
}

func (s *fakeSender) Send(_ context.Context, msg mailer.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.nextID++
	id := fmt.Sprintf("pm-%d", s.nextID)
	s.sent = append(s.sent, msg)
	s.ids = append(s.ids, id)
	return id, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeAnalytics struct {
	mu     sync.Mutex
	events []AnalyticsEvent
}

func (a *fakeAnalytics) Record(_ context.Context, event AnalyticsEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *fakeAnalytics) byEvent(name string) []AnalyticsEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AnalyticsEvent
	for _, e := range a.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeOracle struct {
	at  time.Time
	err error
}

func (o *fakeOracle) OptimalDeliveryTime(context.Context, uuid.UUID, model.Priority, model.BatchingMode) (time.Time, error) {
	if o.err != nil {
		return time.Time{}, o.err
	}
	if o.at.IsZero() {
		return time.Now(), nil
	}
	return o.at, nil
}
