package sweep

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivcare/clinic/internal/domain/treatment"
	"github.com/fivcare/clinic/internal/platform/notification"
)

var sweepNow = time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// mocks
// ---------------------------------------------------------------------------

type mockLifecycle struct {
	active      []*treatment.Treatment
	listErr     error
	closeErr    map[uuid.UUID]error
	closed      []uuid.UUID
	contacts    map[uuid.UUID]*treatment.Contacts
	contactsErr error
}

func (m *mockLifecycle) ListActive(context.Context) ([]*treatment.Treatment, error) {
	return m.active, m.listErr
}

func (m *mockLifecycle) CloseForInactivity(_ context.Context, id uuid.UUID, _ int) (*treatment.Treatment, error) {
	if err := m.closeErr[id]; err != nil {
		return nil, err
	}
	m.closed = append(m.closed, id)
	reason := treatment.InactivityClosureReason
	return &treatment.Treatment{ID: id, Status: treatment.StatusClosed, ClosureReason: &reason}, nil
}

func (m *mockLifecycle) Contacts(_ context.Context, id uuid.UUID) (*treatment.Contacts, error) {
	if m.contactsErr != nil {
		return nil, m.contactsErr
	}
	if c, ok := m.contacts[id]; ok {
		return c, nil
	}
	return &treatment.Contacts{PatientName: "Ana", PatientEmail: "ana@example.com", DoctorEmail: "dr@example.com"}, nil
}

type mockActivity struct {
	last   map[uuid.UUID]*time.Time
	err    map[uuid.UUID]error
	panics map[uuid.UUID]bool
}

func (m *mockActivity) LastActivity(_ context.Context, id uuid.UUID) (*time.Time, error) {
	if m.panics[id] {
		panic("boom")
	}
	if err := m.err[id]; err != nil {
		return nil, err
	}
	return m.last[id], nil
}

type fixtureOpt struct {
	lifecycle *mockLifecycle
	activity  *mockActivity
	email     *notification.MockEmailSender
	alert     *notification.MockAlertSender
	sweeper   *Sweeper
}

func newFixture() *fixtureOpt {
	f := &fixtureOpt{
		lifecycle: &mockLifecycle{closeErr: map[uuid.UUID]error{}, contacts: map[uuid.UUID]*treatment.Contacts{}},
		activity:  &mockActivity{last: map[uuid.UUID]*time.Time{}, err: map[uuid.UUID]error{}, panics: map[uuid.UUID]bool{}},
		email:     &notification.MockEmailSender{},
		alert:     &notification.MockAlertSender{},
	}
	notifier := notification.NewDispatcher(f.email, f.alert, time.Second, zerolog.Nop())
	f.sweeper = NewSweeper(f.lifecycle, f.activity, notifier, zerolog.Nop())
	f.sweeper.Now = func() time.Time { return sweepNow }
	return f
}

// addTreatment registers an active treatment whose last activity is the given
// number of whole days before sweepNow.
func (f *fixtureOpt) addTreatment(daysAgo int) uuid.UUID {
	id := uuid.New()
	f.lifecycle.active = append(f.lifecycle.active, &treatment.Treatment{ID: id, Status: treatment.StatusActive})
	last := sweepNow.AddDate(0, 0, -daysAgo)
	f.activity.last[id] = &last
	return id
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestSweepBoundaries(t *testing.T) {
	cases := []struct {
		daysAgo    int
		wantWarned int
		wantClosed int
	}{
		{daysAgo: 49},
		{daysAgo: 50, wantWarned: 1},
		{daysAgo: 59, wantWarned: 1},
		{daysAgo: 60, wantClosed: 1},
		{daysAgo: 61, wantClosed: 1},
		{daysAgo: 200, wantClosed: 1},
	}
	for _, tc := range cases {
		f := newFixture()
		f.addTreatment(tc.daysAgo)

		res, err := f.sweeper.Run(context.Background())
		if err != nil {
			t.Fatalf("days=%d: Run: %v", tc.daysAgo, err)
		}
		if res.Warned != tc.wantWarned || res.Closed != tc.wantClosed {
			t.Errorf("days=%d: warned=%d closed=%d, want warned=%d closed=%d",
				tc.daysAgo, res.Warned, res.Closed, tc.wantWarned, tc.wantClosed)
		}
	}
}

func TestSweepPartialDayDoesNotCount(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.lifecycle.active = append(f.lifecycle.active, &treatment.Treatment{ID: id})
	// 59 days and 23 hours ago floors to 59 days: warn, don't close
	last := sweepNow.Add(-(59*24 + 23) * time.Hour)
	f.activity.last[id] = &last

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Warned != 1 || res.Closed != 0 {
		t.Fatalf("warned=%d closed=%d, want 1/0", res.Warned, res.Closed)
	}
}

func TestSweepClosesAndNotifiesAllChannels(t *testing.T) {
	f := newFixture()
	id := f.addTreatment(75)

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Closed != 1 {
		t.Fatalf("closed = %d, want 1", res.Closed)
	}
	if len(f.lifecycle.closed) != 1 || f.lifecycle.closed[0] != id {
		t.Fatalf("closed treatments = %v, want [%s]", f.lifecycle.closed, id)
	}

	// one email to the patient, one to the doctor, one alert
	emails := f.email.Calls()
	if len(emails) != 2 {
		t.Fatalf("sent %d emails, want 2", len(emails))
	}
	if len(f.alert.Calls()) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(f.alert.Calls()))
	}
}

func TestSweepWarningMentionsDaysRemaining(t *testing.T) {
	f := newFixture()
	f.addTreatment(57)

	if _, err := f.sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// patient and doctor warning emails plus one alert
	emails := f.email.Calls()
	if len(emails) != 2 {
		t.Fatalf("sent %d emails, want 2", len(emails))
	}
	for _, e := range emails {
		if !strings.Contains(e.Body, "3 day(s)") {
			t.Errorf("warning body %q does not mention 3 remaining days", e.Body)
		}
	}
	if len(f.alert.Calls()) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(f.alert.Calls()))
	}
}

func TestSweepSkipsTreatmentsWithoutActivity(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.lifecycle.active = append(f.lifecycle.active, &treatment.Treatment{ID: id})
	// no activity timestamp registered at all

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Skipped != 1 || res.Closed != 0 || res.Warned != 0 {
		t.Fatalf("result = %+v, want skipped=1", res)
	}
}

func TestSweepNotificationFailureDoesNotPreventClosure(t *testing.T) {
	f := newFixture()
	f.email.ShouldFail = true
	f.alert.ShouldFail = true
	id := f.addTreatment(70)

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Closed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want closed=1 failed=0", res)
	}
	if len(f.lifecycle.closed) != 1 || f.lifecycle.closed[0] != id {
		t.Fatalf("treatment %s was not closed", id)
	}
}

func TestSweepOneFailureDoesNotAbortLoop(t *testing.T) {
	f := newFixture()
	broken := f.addTreatment(70)
	f.lifecycle.closeErr[broken] = errors.New("db down")
	healthy := f.addTreatment(70)

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Closed != 1 {
		t.Fatalf("result = %+v, want failed=1 closed=1", res)
	}
	if len(f.lifecycle.closed) != 1 || f.lifecycle.closed[0] != healthy {
		t.Fatalf("closed = %v, want [%s]", f.lifecycle.closed, healthy)
	}
}

func TestSweepRecoversFromPanic(t *testing.T) {
	f := newFixture()
	bad := f.addTreatment(70)
	f.activity.panics[bad] = true
	f.addTreatment(70)

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Closed != 1 {
		t.Fatalf("result = %+v, want failed=1 closed=1", res)
	}
}

func TestSweepActivityErrorCountsAsFailed(t *testing.T) {
	f := newFixture()
	id := f.addTreatment(70)
	f.activity.err[id] = errors.New("stream broken")

	res, err := f.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Closed != 0 {
		t.Fatalf("result = %+v, want failed=1 closed=0", res)
	}
}

func TestSweepListErrorPropagates(t *testing.T) {
	f := newFixture()
	f.lifecycle.listErr = errors.New("db down")

	if _, err := f.sweeper.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// scheduler
// ---------------------------------------------------------------------------

type mockLease struct {
	granted  bool
	err      error
	acquires int
	recorded []Result
}

func (m *mockLease) Acquire(context.Context, time.Time) (bool, error) {
	m.acquires++
	return m.granted, m.err
}

func (m *mockLease) RecordResult(_ context.Context, _ time.Time, res Result) error {
	m.recorded = append(m.recorded, res)
	return nil
}

func TestRunOnceHonorsLease(t *testing.T) {
	f := newFixture()
	f.addTreatment(70)

	lease := &mockLease{granted: false}
	sched := NewScheduler(f.sweeper, lease, 0, zerolog.Nop())

	sched.RunOnce(context.Background())
	if lease.acquires != 1 {
		t.Fatalf("acquires = %d, want 1", lease.acquires)
	}
	if len(f.lifecycle.closed) != 0 {
		t.Fatal("sweep must not run when the lease is held elsewhere")
	}

	lease.granted = true
	sched.RunOnce(context.Background())
	if len(f.lifecycle.closed) != 1 {
		t.Fatal("sweep should run after winning the lease")
	}
	if len(lease.recorded) != 1 || lease.recorded[0].Closed != 1 {
		t.Fatalf("recorded results = %+v, want one with closed=1", lease.recorded)
	}
}

func TestSchedulerNextRun(t *testing.T) {
	sched := NewScheduler(newFixture().sweeper, &mockLease{}, 2, zerolog.Nop())

	now := time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC)
	if got := sched.nextRun(now); !got.Equal(time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("nextRun before hour = %v", got)
	}

	now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	if got := sched.nextRun(now); !got.Equal(time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("nextRun after hour = %v", got)
	}
}
