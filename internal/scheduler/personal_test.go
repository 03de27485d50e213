package scheduler

import (
	"context"
	"testing"
	"time"

	"courseflow/internal/types"
)

type fakePersonalReminders struct {
	reminders []*types.PersonalReminder
}

func (f *fakePersonalReminders) ListActive(_ context.Context) ([]*types.PersonalReminder, error) {
	var out []*types.PersonalReminder
	for _, r := range f.reminders {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func newPersonalFixture() (*PersonalScheduler, *fakeOutbox, *fakePersonalReminders) {
	outbox := newFakeOutbox()
	reminders := &fakePersonalReminders{}
	users := &fakeUsers{timezones: map[int64]string{}}
	sched := NewPersonalScheduler(testConfig(), outbox, reminders, users, nil)
	return sched, outbox, reminders
}

func TestPersonalScheduler_ScheduleDueJobs(t *testing.T) {
	sched, outbox, reminders := newPersonalFixture()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	startAt := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	reminders.reminders = append(reminders.reminders, &types.PersonalReminder{
		ID: 3, UserID: 42, Text: "Call the dentist", StartAt: startAt, IsActive: true,
	})

	created, err := sched.ScheduleDueJobs(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	job := outbox.created[0]
	if job.JobKey != "personal_once:3:2026-03-12T15:00:00Z" {
		t.Errorf("job key = %q", job.JobKey)
	}
	if !job.RunAt.Equal(startAt) {
		t.Errorf("run_at = %v, want %v", job.RunAt, startAt)
	}
	if job.Payload.Personal == nil || job.Payload.Personal.Text != "Call the dentist" {
		t.Errorf("payload = %+v", job.Payload)
	}
	if job.Payload.Personal.ForLocalTime != "15:00" {
		t.Errorf("for_local_time = %q", job.Payload.Personal.ForLocalTime)
	}

	// A second pass must not duplicate the job.
	again, err := sched.ScheduleDueJobs(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != 0 {
		t.Errorf("second pass created %d, want 0", again)
	}
}

func TestPersonalScheduler_ScheduleDueJobs_SkipsPastStart(t *testing.T) {
	sched, outbox, reminders := newPersonalFixture()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	reminders.reminders = append(reminders.reminders, &types.PersonalReminder{
		ID: 3, UserID: 42, Text: "Too late", StartAt: now.Add(-time.Hour), IsActive: true,
	})

	created, err := sched.ScheduleDueJobs(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 || len(outbox.created) != 0 {
		t.Errorf("created = %d, want 0 (one-shots never catch up)", created)
	}
}

func TestPersonalScheduler_CancelForReminder(t *testing.T) {
	sched, outbox, reminders := newPersonalFixture()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	r := &types.PersonalReminder{
		ID: 3, UserID: 42, Text: "Call", StartAt: now.Add(48 * time.Hour), IsActive: true,
	}
	reminders.reminders = append(reminders.reminders, r)

	if _, err := sched.ScheduleDueJobs(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := sched.CancelForReminder(context.Background(), r, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled = %d, want 1", n)
	}
	if len(outbox.pendingByKind(types.KindPersonal)) != 0 {
		t.Error("personal job left pending after cancel")
	}
}
