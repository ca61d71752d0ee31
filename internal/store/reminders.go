package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// ReminderService owns the reminders table. Obtain via [Store.Reminders].
// Queue interaction lives in the reminder scheduler; this service only
// persists state transitions.
type ReminderService struct {
	pool *pgxpool.Pool
}

const reminderColumns = `id, customer_id, amount, scheduled_time, channels, message, notes, status, retry_count, last_attempt, sent_at, created_at`

// Create inserts a pending reminder row.
func (s *ReminderService) Create(ctx context.Context, r *Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReminderPending
	}
	const q = `
		INSERT INTO reminders (id, customer_id, amount, scheduled_time, channels, message, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, q,
		r.ID, r.CustomerID, r.Amount, r.ScheduledTime, r.Channels, r.Message, r.Notes, r.Status,
	).Scan(&r.CreatedAt)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "create reminder", err)
	}
	return nil
}

// GetByID fetches a reminder.
func (s *ReminderService) GetByID(ctx context.Context, id string) (*Reminder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	return scanReminder(row)
}

// ListForCustomer returns a customer's reminders ordered by scheduled time.
// When pendingOnly is set, only pending rows are returned.
func (s *ReminderService) ListForCustomer(ctx context.Context, customerID string, pendingOnly bool) ([]Reminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE customer_id = $1`
	args := []any{customerID}
	if pendingOnly {
		q += ` AND status = $2`
		args = append(args, ReminderPending)
	}
	q += ` ORDER BY scheduled_time`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "list reminders", err)
	}
	return collectReminders(rows)
}

// Reschedule moves a pending reminder to a new time and optionally replaces
// amount and message.
func (s *ReminderService) Reschedule(ctx context.Context, id string, when time.Time, amount money.Amount, message string) (*Reminder, error) {
	const q = `
		UPDATE reminders
		SET scheduled_time = $2,
		    amount  = CASE WHEN $3::numeric > 0 THEN $3 ELSE amount END,
		    message = CASE WHEN $4 <> '' THEN $4 ELSE message END
		WHERE id = $1 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, q, id, when, amount, message)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "reschedule reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, engineerr.Newf(engineerr.KindNotFound, "", "no pending reminder %s", id)
	}
	return s.GetByID(ctx, id)
}

// Cancel flips a pending reminder to cancelled. Cancelling a non-pending
// reminder is a conflict.
func (s *ReminderService) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET status = $2 WHERE id = $1 AND status = $3`,
		id, ReminderCancelled, ReminderPending)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "cancel reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.Newf(engineerr.KindConflict, engineerr.CodeAlreadyCancelled,
			"reminder %s is not pending", id)
	}
	return nil
}

// MarkSent records successful delivery. Idempotent on reminder id: a
// reminder already marked sent is left untouched so duplicate queue delivery
// never double-writes.
func (s *ReminderService) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE reminders SET status = $2, sent_at = $3 WHERE id = $1 AND status <> $2`,
		id, ReminderSent, at)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "mark reminder sent", err)
	}
	return nil
}

// MarkFailed records a delivery failure, bumping the retry count.
func (s *ReminderService) MarkFailed(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE reminders
		 SET status = $2, retry_count = retry_count + 1, last_attempt = $3
		 WHERE id = $1`,
		id, ReminderFailed, at)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "mark reminder failed", err)
	}
	return nil
}

// MarkAttempt records a retryable delivery failure without flipping the
// status, so the queue can redeliver.
func (s *ReminderService) MarkAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE reminders SET retry_count = retry_count + 1, last_attempt = $2 WHERE id = $1`,
		id, at)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "mark reminder attempt", err)
	}
	return nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	err := row.Scan(&r.ID, &r.CustomerID, &r.Amount, &r.ScheduledTime, &r.Channels,
		&r.Message, &r.Notes, &r.Status, &r.RetryCount, &r.LastAttempt, &r.SentAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.New(engineerr.KindNotFound, "", "reminder not found")
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan reminder", err)
	}
	return &r, nil
}

func collectReminders(rows pgx.Rows) ([]Reminder, error) {
	reminders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Reminder, error) {
		var r Reminder
		err := row.Scan(&r.ID, &r.CustomerID, &r.Amount, &r.ScheduledTime, &r.Channels,
			&r.Message, &r.Notes, &r.Status, &r.RetryCount, &r.LastAttempt, &r.SentAt, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan reminders", err)
	}
	if reminders == nil {
		reminders = []Reminder{}
	}
	return reminders, nil
}
