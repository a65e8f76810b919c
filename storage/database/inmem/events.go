package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

var (
	auditKeys = map[string]func(audit.Entry) interface{}{
		"timestamp":   func(e audit.Entry) interface{} { return e.Timestamp },
		"entity_type": func(e audit.Entry) interface{} { return e.EntityType },
		"action":      func(e audit.Entry) interface{} { return e.Action },
	}
	reminderKeys = map[string]func(reminder.Reminder) interface{}{
		"envoye_le": func(r reminder.Reminder) interface{} { return r.SentAt },
	}
)

// Audit

type AuditRepository struct {
	db *DB
}

var _ audit.Repository = (*AuditRepository)(nil)

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (repo *AuditRepository) Append(_ context.Context, entry audit.Entry, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.audit = append(repo.db.audit, entry)
	return nil
}

func (repo *AuditRepository) Query(_ context.Context, filter audit.QueryFilter, orderings ...core.DBOrdering) ([]audit.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := lo.Filter(repo.db.audit, func(e audit.Entry, _ int) bool { return filter.Match(e) })
	sort.SliceStable(entries, func(i, j int) bool {
		for _, ord := range orderings {
			key, ok := auditKeys[ord.Field]
			if !ok {
				continue
			}
			c := compare(key(entries[i]), key(entries[j]))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return entries, nil
}

// Outbox

type OutboxRepository struct {
	db *DB
}

var _ outbox.Repository = (*OutboxRepository)(nil)

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (repo *OutboxRepository) Enqueue(_ context.Context, evt outbox.Event, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.outbox, evt.ID, evt)
	return nil
}

func (repo *OutboxRepository) ClaimPending(_ context.Context, limit int) ([]outbox.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	pending := selectRows(repo.db.outbox, func(e outbox.Event) bool { return e.Status == outbox.StatusPending }, nil, nil)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	now := time.Now().UTC()
	for i := range pending {
		pending[i].Status = outbox.StatusProcessing
		pending[i].Attempts++
		pending[i].UpdatedAt = now
		replace(repo.db.outbox, pending[i].ID, pending[i])
	}
	return pending, nil
}

func (repo *OutboxRepository) setStatus(id, status, reason string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	r, ok := repo.db.outbox[id]
	if !ok {
		return core.NewNotFoundError("outbox event")
	}
	r.val.Status = status
	r.val.LastError = reason
	r.val.UpdatedAt = time.Now().UTC()
	repo.db.outbox[id] = r
	return nil
}

func (repo *OutboxRepository) MarkProcessed(_ context.Context, id string) error {
	return repo.setStatus(id, outbox.StatusProcessed, "")
}

func (repo *OutboxRepository) MarkFailed(_ context.Context, id, reason string) error {
	return repo.setStatus(id, outbox.StatusFailed, reason)
}

func (repo *OutboxRepository) ReleaseStale(_ context.Context, before time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	count := 0
	for id, r := range repo.db.outbox {
		if r.val.Status == outbox.StatusProcessing && r.val.UpdatedAt.Before(before) {
			r.val.Status = outbox.StatusPending
			repo.db.outbox[id] = r
			count++
		}
	}
	return count, nil
}

func (repo *OutboxRepository) Query(_ context.Context, status string) ([]outbox.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.outbox, func(e outbox.Event) bool { return status == "" || e.Status == status }, nil, nil), nil
}

// Webhook subscriptions

type WebhookRepository struct {
	db *DB
}

var _ webhook.Repository = (*WebhookRepository)(nil)

func NewWebhookRepository(db *DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func cloneSubscription(s webhook.Subscription) webhook.Subscription {
	s.Events = cloneStrings(s.Events)
	return s
}

func (repo *WebhookRepository) CreateSubscription(_ context.Context, sub webhook.Subscription, _ ...core.DBExecutor) (webhook.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	sub = cloneSubscription(sub)
	insert(repo.db, repo.db.webhooks, sub.ID, sub)
	return cloneSubscription(sub), nil
}

func (repo *WebhookRepository) QuerySubscriptions(_ context.Context, filter webhook.QueryFilter) ([]webhook.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	subs := selectRows(repo.db.webhooks, filter.Match, nil, nil)
	return lo.Map(subs, func(s webhook.Subscription, _ int) webhook.Subscription { return cloneSubscription(s) }), nil
}

func (repo *WebhookRepository) GetSubscriptionByID(_ context.Context, id string) (webhook.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if r, ok := repo.db.webhooks[id]; ok && r.val.DeletedAt == nil {
		return cloneSubscription(r.val), nil
	}
	return webhook.Subscription{}, webhook.ErrNotFound
}

func (repo *WebhookRepository) UpdateSubscription(_ context.Context, sub webhook.Subscription, _ ...core.DBExecutor) (webhook.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	sub = cloneSubscription(sub)
	if !replace(repo.db.webhooks, sub.ID, sub) {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	return cloneSubscription(sub), nil
}

// Reminders

type ReminderRepository struct {
	db *DB
}

var _ reminder.Repository = (*ReminderRepository)(nil)

func NewReminderRepository(db *DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (repo *ReminderRepository) CreateReminder(_ context.Context, r reminder.Reminder, _ ...core.DBExecutor) (reminder.Reminder, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	insert(repo.db, repo.db.reminders, r.ID, r)
	return r, nil
}

func (repo *ReminderRepository) QueryReminders(_ context.Context, filter reminder.QueryFilter, orderings ...core.DBOrdering) ([]reminder.Reminder, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return selectRows(repo.db.reminders, filter.Match, orderings, reminderKeys), nil
}

func (repo *ReminderRepository) LastSentAt(_ context.Context, studentID, parentID string) (time.Time, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	var last time.Time
	for _, r := range repo.db.reminders {
		if r.val.StudentID == studentID && r.val.ParentID == parentID && r.val.SentAt.After(last) {
			last = r.val.SentAt
		}
	}
	return last, nil
}
