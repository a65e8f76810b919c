package sqlxrepos

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

// Audit

var auditColumns = []string{"id", "user_id", "action", "entity_type", "entity_id", "timestamp", "details"}

type auditRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	Action     string      `db:"action"`
	EntityType string      `db:"entity_type"`
	EntityID   string      `db:"entity_id"`
	Timestamp  time.Time   `db:"timestamp"`
	Details    null.String `db:"details"` // JSONB
}

type AuditRepository struct {
	repo
}

var _ audit.Repository = (*AuditRepository)(nil)

func NewAuditRepository(exec core.DBExecutor) *AuditRepository {
	return &AuditRepository{repo{exec: exec}}
}

func (r *AuditRepository) Append(ctx context.Context, entry audit.Entry, exec ...core.DBExecutor) error {
	row := auditRow{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Timestamp:  entry.Timestamp.UTC(),
		Details:    null.NewString(string(entry.Details), len(entry.Details) > 0),
	}
	return errors.Wrap(insertRow(ctx, r.getExec(exec), "audit_logs", auditColumns, row), "appending audit entry")
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.QueryFilter, orderings ...core.DBOrdering) ([]audit.Entry, error) {
	b := psql.Select(auditColumns...).From("audit_logs")
	if filter.EntityType != "" {
		b = b.Where(sq.Eq{"entity_type": filter.EntityType})
	}
	if filter.EntityID != "" {
		b = b.Where(sq.Eq{"entity_id": filter.EntityID})
	}
	if filter.UserID != "" {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Action != "" {
		b = b.Where(sq.Eq{"action": filter.Action})
	}
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"timestamp": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"timestamp": filter.To.UTC()})
	}
	b = orderBy(b, orderings, map[string]string{
		"timestamp":   "timestamp",
		"entity_type": "entity_type",
		"action":      "action",
	}, "timestamp ASC")

	var rows []auditRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := audit.Entry{
			ID:         row.ID,
			UserID:     row.UserID,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Timestamp:  row.Timestamp,
		}
		if row.Details.Valid {
			e.Details = json.RawMessage(row.Details.String)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Outbox

var outboxColumns = []string{
	"id", "type", "entity_type", "entity_id", "actor_id", "payload", "status", "attempts", "last_error", "created_at", "updated_at",
}

type outboxRow struct {
	ID         string    `db:"id"`
	Type       string    `db:"type"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	ActorID    string    `db:"actor_id"`
	Payload    string    `db:"payload"` // JSONB
	Status     string    `db:"status"`
	Attempts   int       `db:"attempts"`
	LastError  string    `db:"last_error"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row outboxRow) event() outbox.Event {
	return outbox.Event{
		ID:         row.ID,
		Type:       row.Type,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		ActorID:    row.ActorID,
		Payload:    json.RawMessage(row.Payload),
		Status:     row.Status,
		Attempts:   row.Attempts,
		LastError:  row.LastError,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func eventsOf(rows []outboxRow) []outbox.Event {
	events := make([]outbox.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.event())
	}
	return events
}

func sortEvents(events []outbox.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
}

type OutboxRepository struct {
	repo
}

var _ outbox.Repository = (*OutboxRepository)(nil)

func NewOutboxRepository(exec core.DBExecutor) *OutboxRepository {
	return &OutboxRepository{repo{exec: exec}}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, evt outbox.Event, exec ...core.DBExecutor) error {
	payload := string(evt.Payload)
	if payload == "" {
		payload = "null"
	}
	row := outboxRow{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
		Status:     evt.Status,
		Attempts:   evt.Attempts,
		LastError:  evt.LastError,
		CreatedAt:  evt.CreatedAt.UTC(),
		UpdatedAt:  evt.UpdatedAt.UTC(),
	}
	return errors.Wrap(insertRow(ctx, r.getExec(exec), "outbox_events", outboxColumns, row), "enqueuing event")
}

// ClaimPending locks the claimed rows so that concurrent workers never claim the same event.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	// question placeholders: the outer statement numbers them
	claimable := sq.Select("id").From("outbox_events").
		Where(sq.Eq{"status": outbox.StatusPending}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")
	sub, subArgs, err := claimable.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	b := psql.Update("outbox_events").
		Set("status", outbox.StatusProcessing).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Expr("id IN ("+sub+")", subArgs...)).
		Suffix("RETURNING " + joinColumns(outboxColumns))

	var rows []outboxRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "claiming events")
	}
	events := eventsOf(rows)
	sortEvents(events)
	return events, nil
}

func (r *OutboxRepository) setStatus(ctx context.Context, id, status, reason string) error {
	n, err := r.run(ctx, r.exec, psql.Update("outbox_events").
		Set("status", status).
		Set("last_error", reason).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	if n == 0 {
		return core.NewNotFoundError("outbox event")
	}
	return nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, outbox.StatusProcessed, "")
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.setStatus(ctx, id, outbox.StatusFailed, reason)
}

func (r *OutboxRepository) ReleaseStale(ctx context.Context, before time.Time) (int, error) {
	n, err := r.run(ctx, r.exec, psql.Update("outbox_events").
		Set("status", outbox.StatusPending).
		Where(sq.Eq{"status": outbox.StatusProcessing}).
		Where(sq.Lt{"updated_at": before.UTC()}))
	return n, errors.Wrap(err, "releasing stale events")
}

func (r *OutboxRepository) Query(ctx context.Context, status string) ([]outbox.Event, error) {
	b := psql.Select(outboxColumns...).From("outbox_events").OrderBy("created_at ASC")
	if status != "" {
		b = b.Where(sq.Eq{"status": status})
	}
	var rows []outboxRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	return eventsOf(rows), nil
}

// Webhook subscriptions

var webhookColumns = []string{"id", "url", "events", "secret", "actif", "deleted_at", "created_at", "updated_at"}

type webhookRow struct {
	ID        string         `db:"id"`
	URL       string         `db:"url"`
	Events    pq.StringArray `db:"events"`
	Secret    string         `db:"secret"`
	Active    bool           `db:"actif"`
	DeletedAt null.Time      `db:"deleted_at"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row webhookRow) subscription() webhook.Subscription {
	return webhook.Subscription{
		ID:        row.ID,
		URL:       row.URL,
		Events:    append([]string{}, row.Events...),
		Secret:    row.Secret,
		Active:    row.Active,
		DeletedAt: row.DeletedAt.Ptr(),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func newWebhookRow(s webhook.Subscription) webhookRow {
	return webhookRow{
		ID:        s.ID,
		URL:       s.URL,
		Events:    append(pq.StringArray{}, s.Events...),
		Secret:    s.Secret,
		Active:    s.Active,
		DeletedAt: nullTime(s.DeletedAt),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

type WebhookRepository struct {
	repo
}

var _ webhook.Repository = (*WebhookRepository)(nil)

func NewWebhookRepository(exec core.DBExecutor) *WebhookRepository {
	return &WebhookRepository{repo{exec: exec}}
}

func (r *WebhookRepository) CreateSubscription(ctx context.Context, sub webhook.Subscription, exec ...core.DBExecutor) (webhook.Subscription, error) {
	if err := insertRow(ctx, r.getExec(exec), "webhook_subscriptions", webhookColumns, newWebhookRow(sub)); err != nil {
		return webhook.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (r *WebhookRepository) QuerySubscriptions(ctx context.Context, filter webhook.QueryFilter) ([]webhook.Subscription, error) {
	b := psql.Select(webhookColumns...).From("webhook_subscriptions").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("created_at ASC")
	if filter.Active != nil {
		b = b.Where(sq.Eq{"actif": *filter.Active})
	}
	if filter.Event != "" {
		b = b.Where("(? = ANY(events) OR ? = ANY(events))", filter.Event, outbox.AllEvents)
	}

	var rows []webhookRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]webhook.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.subscription())
	}
	return subs, nil
}

func (r *WebhookRepository) GetSubscriptionByID(ctx context.Context, id string) (webhook.Subscription, error) {
	if !validID(id) {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	var row webhookRow
	b := psql.Select(webhookColumns...).From("webhook_subscriptions").Where(sq.Eq{"id": id, "deleted_at": nil})
	if err := r.get(ctx, r.exec, &row, b); err != nil {
		return webhook.Subscription{}, trapNoRows(err, webhook.ErrNotFound, "getting subscription")
	}
	return row.subscription(), nil
}

func (r *WebhookRepository) UpdateSubscription(ctx context.Context, sub webhook.Subscription, exec ...core.DBExecutor) (webhook.Subscription, error) {
	found, err := updateRow(ctx, r.getExec(exec), "webhook_subscriptions", webhookColumns, newWebhookRow(sub))
	if err != nil {
		return webhook.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if !found {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	return sub, nil
}

// Reminders

var reminderColumns = []string{"id", "etudiant_id", "parent_id", "email", "montant_restant", "annee_scolaire", "envoye_le"}

type reminderRow struct {
	ID           string          `db:"id"`
	StudentID    string          `db:"etudiant_id"`
	ParentID     string          `db:"parent_id"`
	Email        string          `db:"email"`
	Remaining    decimal.Decimal `db:"montant_restant"`
	AcademicYear string          `db:"annee_scolaire"`
	SentAt       time.Time       `db:"envoye_le"`
}

type ReminderRepository struct {
	repo
}

var _ reminder.Repository = (*ReminderRepository)(nil)

func NewReminderRepository(exec core.DBExecutor) *ReminderRepository {
	return &ReminderRepository{repo{exec: exec}}
}

func (r *ReminderRepository) CreateReminder(ctx context.Context, rem reminder.Reminder, exec ...core.DBExecutor) (reminder.Reminder, error) {
	row := reminderRow(rem)
	row.SentAt = row.SentAt.UTC()
	if err := insertRow(ctx, r.getExec(exec), "reminders", reminderColumns, row); err != nil {
		return reminder.Reminder{}, errors.Wrap(err, "inserting reminder")
	}
	return rem, nil
}

func (r *ReminderRepository) QueryReminders(ctx context.Context, filter reminder.QueryFilter, orderings ...core.DBOrdering) ([]reminder.Reminder, error) {
	b := psql.Select(reminderColumns...).From("reminders")
	if filter.StudentID != "" {
		b = b.Where(eqID("etudiant_id", filter.StudentID))
	}
	if filter.ParentID != "" {
		b = b.Where(eqID("parent_id", filter.ParentID))
	}
	b = orderBy(b, orderings, map[string]string{"envoye_le": "envoye_le"}, "envoye_le ASC")

	var rows []reminderRow
	if err := r.selectAll(ctx, r.exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying reminders")
	}
	reminders := make([]reminder.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, reminder.Reminder(row))
	}
	return reminders, nil
}

func (r *ReminderRepository) LastSentAt(ctx context.Context, studentID, parentID string) (time.Time, error) {
	var last null.Time
	b := psql.Select("MAX(envoye_le)").From("reminders").
		Where(eqID("etudiant_id", studentID)).
		Where(eqID("parent_id", parentID))
	if err := r.get(ctx, r.exec, &last, b); err != nil {
		return time.Time{}, errors.Wrap(err, "getting last reminder")
	}
	return last.Time, nil
}
