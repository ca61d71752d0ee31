// Package reminder schedules payment reminders and delivers them through
// the delayed job queue. A reminder is one database row plus at most one
// queued job with the deterministic id "reminder-{rowID}"; the row is the
// source of truth and the queue only decides when delivery runs.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/queue"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/internal/timeparse"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// JobTypeSendReminder routes reminder jobs to this package's handler.
const JobTypeSendReminder = "send-reminder"

// jobPayload is the queue body for a reminder delivery.
type jobPayload struct {
	ReminderID string `json:"reminderId"`
}

// jobID derives the deterministic queue id for a reminder row.
func jobID(reminderID string) string { return "reminder-" + reminderID }

// Scheduler creates, modifies, cancels, and delivers reminders.
type Scheduler struct {
	store  *store.Store
	queue  *queue.Queue
	sender mailer.Sender
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

// NewScheduler creates a Scheduler. loc is the business timezone used to
// interpret spoken time phrases; sender may be nil, degrading delivery to a
// logged no-op.
func NewScheduler(st *store.Store, q *queue.Queue, sender mailer.Sender, loc *time.Location, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:  st,
		queue:  q,
		sender: sender,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// Schedule validates and persists a reminder, then enqueues its delivery
// job. If the enqueue fails after the row committed, the row is flipped to
// failed in a compensating write and the error propagates.
func (s *Scheduler) Schedule(ctx context.Context, customerID string, amount money.Amount, whenText, customMessage string) (*store.Reminder, error) {
	if !amount.IsPositive() {
		return nil, engineerr.New(engineerr.KindValidation, "", "reminder amount must be positive")
	}
	if strings.TrimSpace(whenText) == "" {
		return nil, engineerr.New(engineerr.KindValidation, "", "reminder needs a time")
	}

	customer, err := s.store.Customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.Phone == "" {
		return nil, engineerr.Newf(engineerr.KindValidation, engineerr.CodeMissingPhone,
			"%s has no phone number on file", customer.Name)
	}

	when := timeparse.Parse(whenText, s.now(), s.loc)

	message := customMessage
	if message == "" {
		message = fmt.Sprintf("Namaste %s, aapka %s baki hai. Kripya jald se jald bhugtan karein.",
			customer.Name, amount.Rupees())
	}

	r := &store.Reminder{
		CustomerID:    customerID,
		Amount:        amount,
		ScheduledTime: when,
		Channels:      []string{"whatsapp", "email"},
		Message:       message,
		Notes:         amount.String(),
	}
	if err := s.store.Reminders.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, r.ID, when); err != nil {
		if ferr := s.store.Reminders.MarkFailed(ctx, r.ID, s.now()); ferr != nil {
			s.log.Error("compensating reminder failure write failed", "reminder", r.ID, "error", ferr)
		}
		return nil, engineerr.Wrap(engineerr.KindExternalService, "", "enqueue reminder delivery", err)
	}
	return r, nil
}

// Modify reschedules a pending reminder. The queue entry is replaced under
// the same deterministic id.
func (s *Scheduler) Modify(ctx context.Context, reminderID, whenText string, amount money.Amount, message string) (*store.Reminder, error) {
	current, err := s.store.Reminders.GetByID(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	when := current.ScheduledTime
	if strings.TrimSpace(whenText) != "" {
		when = timeparse.Parse(whenText, s.now(), s.loc)
	}

	r, err := s.store.Reminders.Reschedule(ctx, reminderID, when, amount, message)
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Remove(ctx, jobID(reminderID)); err != nil {
		return nil, engineerr.Wrap(engineerr.KindExternalService, "", "unschedule reminder job", err)
	}
	if err := s.enqueue(ctx, reminderID, when); err != nil {
		return nil, engineerr.Wrap(engineerr.KindExternalService, "", "reschedule reminder job", err)
	}
	return r, nil
}

// Cancel flips a pending reminder to cancelled and removes its queued job
// if delivery has not started yet.
func (s *Scheduler) Cancel(ctx context.Context, reminderID string) error {
	if err := s.store.Reminders.Cancel(ctx, reminderID); err != nil {
		return err
	}
	if _, err := s.queue.Remove(ctx, jobID(reminderID)); err != nil {
		// The row is already cancelled; the handler skips non-pending rows,
		// so a stale job is harmless. Log and move on.
		s.log.Warn("removing cancelled reminder job failed", "reminder", reminderID, "error", err)
	}
	return nil
}

// List returns a customer's reminders.
func (s *Scheduler) List(ctx context.Context, customerID string, pendingOnly bool) ([]store.Reminder, error) {
	return s.store.Reminders.ListForCustomer(ctx, customerID, pendingOnly)
}

func (s *Scheduler) enqueue(ctx context.Context, reminderID string, when time.Time) error {
	body, err := json.Marshal(jobPayload{ReminderID: reminderID})
	if err != nil {
		return fmt.Errorf("reminder: marshal payload: %w", err)
	}
	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}
	_, err = s.queue.Enqueue(ctx, queue.Job{
		ID:      jobID(reminderID),
		Type:    JobTypeSendReminder,
		Payload: body,
	}, delay)
	return err
}

// HandleJob is the queue worker handler. Delivery is at-least-once at the
// channel; the database transition is idempotent, so a duplicate job never
// double-writes.
func (s *Scheduler) HandleJob(ctx context.Context, job queue.Job) error {
	var payload jobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("reminder: decode job %s: %w", job.ID, err)
	}

	r, err := s.store.Reminders.GetByID(ctx, payload.ReminderID)
	if err != nil {
		return err
	}
	if r.Status != store.ReminderPending {
		s.log.Debug("skipping reminder in terminal state", "reminder", r.ID, "status", r.Status)
		return nil
	}

	customer, err := s.store.Customers.GetByID(ctx, r.CustomerID)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, customer, r); err != nil {
		if aerr := s.store.Reminders.MarkAttempt(ctx, r.ID, s.now()); aerr != nil {
			s.log.Error("recording reminder attempt failed", "reminder", r.ID, "error", aerr)
		}
		return err
	}
	return s.store.Reminders.MarkSent(ctx, r.ID, s.now())
}

// HandleFailure is the queue's terminal failure callback.
func (s *Scheduler) HandleFailure(ctx context.Context, job queue.Job, lastErr error) {
	var payload jobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.Error("decoding failed reminder job", "job", job.ID, "error", err)
		return
	}
	s.log.Error("reminder delivery exhausted retries",
		"reminder", payload.ReminderID, "error", lastErr)
	if err := s.store.Reminders.MarkFailed(ctx, payload.ReminderID, s.now()); err != nil {
		s.log.Error("marking reminder failed", "reminder", payload.ReminderID, "error", err)
	}
}

// deliver pushes the reminder out on its channels. Email needs an address
// and a sender; the WhatsApp channel is announced to the channel gateway via
// the log until that integration lands.
func (s *Scheduler) deliver(ctx context.Context, customer *store.Customer, r *store.Reminder) error {
	delivered := false
	for _, ch := range r.Channels {
		switch ch {
		case "email":
			if customer.Email == "" || s.sender == nil {
				continue
			}
			subject := fmt.Sprintf("Payment reminder: %s due", r.Amount.Rupees())
			if err := s.sender.Send(ctx, customer.Email, subject, r.Message); err != nil {
				return err
			}
			delivered = true
		case "whatsapp":
			s.log.Info("whatsapp reminder ready for gateway",
				"reminder", r.ID, "phone", customer.Phone)
			delivered = true
		}
	}
	if !delivered {
		return fmt.Errorf("reminder: no usable delivery channel for %s", r.ID)
	}
	return nil
}
