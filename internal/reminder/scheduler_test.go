package reminder_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/queue"
	"github.com/nileshdk/bolikhata/internal/reminder"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// The scheduler spans postgres and redis; like the store tests, these run
// only when BOLIKHATA_TEST_POSTGRES_DSN points at a disposable database.

func newTestScheduler(t *testing.T) (*reminder.Scheduler, *store.Store, *queue.Queue, *mailer.Recorder) {
	t.Helper()
	dsn := os.Getenv("BOLIKHATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOLIKHATA_TEST_POSTGRES_DSN not set — skipping scheduler integration tests")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS deletion_otps CASCADE",
		"DROP TABLE IF EXISTS reminders CASCADE",
		"DROP TABLE IF EXISTS ledger_entries CASCADE",
		"DROP TABLE IF EXISTS line_items CASCADE",
		"DROP TABLE IF EXISTS invoices CASCADE",
		"DROP TABLE IF EXISTS products CASCADE",
		"DROP TABLE IF EXISTS customers CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	st, err := store.New(ctx, dsn, 0)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(st.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.New(client)

	rec := &mailer.Recorder{}
	loc := time.FixedZone("IST", 5*3600+1800)
	return reminder.NewScheduler(st, q, rec, loc, nil), st, q, rec
}

func mustCustomer(t *testing.T, st *store.Store, name, phone, email string) *store.Customer {
	t.Helper()
	c, err := st.Customers.Create(context.Background(), store.CustomerInput{
		Name: name, Phone: phone, Email: email,
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func TestSchedule_CreatesRowAndJob(t *testing.T) {
	sched, st, q, _ := newTestScheduler(t)
	ctx := context.Background()
	c := mustCustomer(t, st, "Ramesh", "9876543210", "ramesh@example.com")

	r, err := sched.Schedule(ctx, c.ID, money.FromInt(500), "kal 7 baje", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if r.Status != store.ReminderPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if pending, _ := q.Pending(ctx, "reminder-"+r.ID); !pending {
		t.Error("delivery job should be queued under the deterministic id")
	}

	// Scheduling again creates a new row and its own job; the first job
	// stays untouched.
	r2, err := sched.Schedule(ctx, c.ID, money.FromInt(200), "parso", "")
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if r2.ID == r.ID {
		t.Error("second reminder must get its own id")
	}
}

func TestSchedule_RequiresPhone(t *testing.T) {
	sched, st, _, _ := newTestScheduler(t)
	c := mustCustomer(t, st, "Bina", "", "")

	_, err := sched.Schedule(context.Background(), c.ID, money.FromInt(100), "kal", "")
	if engineerr.CodeOf(err) != engineerr.CodeMissingPhone {
		t.Errorf("code = %q, want MISSING_PHONE", engineerr.CodeOf(err))
	}
}

func TestCancel_RemovesQueuedJob(t *testing.T) {
	sched, st, q, _ := newTestScheduler(t)
	ctx := context.Background()
	c := mustCustomer(t, st, "Sunita", "9000000002", "")

	r, err := sched.Schedule(ctx, c.ID, money.FromInt(300), "tomorrow 7 pm", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := sched.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := st.Reminders.GetByID(ctx, r.ID)
	if got.Status != store.ReminderCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if pending, _ := q.Pending(ctx, "reminder-"+r.ID); pending {
		t.Error("cancelled reminder must have no queued job")
	}
}

func TestHandleJob_DeliversAndIsIdempotent(t *testing.T) {
	sched, st, _, rec := newTestScheduler(t)
	ctx := context.Background()
	c := mustCustomer(t, st, "Mohan", "9222222222", "mohan@example.com")

	r, err := sched.Schedule(ctx, c.ID, money.FromInt(750), "aaj", "Apna hisaab dekh lijiye")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	job := queue.Job{
		ID:      "reminder-" + r.ID,
		Type:    reminder.JobTypeSendReminder,
		Payload: []byte(`{"reminderId":"` + r.ID + `"}`),
	}
	if err := sched.HandleJob(ctx, job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	sent := rec.Sent()
	if len(sent) != 1 || sent[0].To != "mohan@example.com" {
		t.Fatalf("sent = %+v, want one mail to mohan@example.com", sent)
	}
	got, _ := st.Reminders.GetByID(ctx, r.ID)
	if got.Status != store.ReminderSent || got.SentAt == nil {
		t.Fatalf("reminder = %+v, want sent with timestamp", got)
	}

	// Duplicate queue delivery: channel send may repeat at-least-once, but
	// the row must not be rewritten.
	firstSentAt := *got.SentAt
	if err := sched.HandleJob(ctx, job); err != nil {
		t.Fatalf("duplicate handle: %v", err)
	}
	got, _ = st.Reminders.GetByID(ctx, r.ID)
	if !got.SentAt.Equal(firstSentAt) {
		t.Error("duplicate delivery must not move sentAt")
	}
	if len(rec.Sent()) != 1 {
		t.Error("terminal-state reminder must not be re-delivered")
	}
}

func TestModify_ReschedulesSameJobID(t *testing.T) {
	sched, st, q, _ := newTestScheduler(t)
	ctx := context.Background()
	c := mustCustomer(t, st, "Kiran", "9333333333", "")

	r, err := sched.Schedule(ctx, c.ID, money.FromInt(400), "kal", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	updated, err := sched.Modify(ctx, r.ID, "parso 6 baje", money.FromInt(450), "")
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if !updated.Amount.Equal(money.FromInt(450)) {
		t.Errorf("amount = %s, want 450", updated.Amount)
	}
	if !updated.ScheduledTime.After(r.ScheduledTime) {
		t.Errorf("scheduledTime should move later: %v -> %v", r.ScheduledTime, updated.ScheduledTime)
	}
	if pending, _ := q.Pending(ctx, "reminder-"+r.ID); !pending {
		t.Error("rescheduled job must be queued under the same id")
	}
}
