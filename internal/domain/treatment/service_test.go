package treatment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivcare/clinic/internal/domain/audit"
)

// ---------------------------------------------------------------------------
// mocks
// ---------------------------------------------------------------------------

type mockRepo struct {
	treatments map[uuid.UUID]*Treatment
	contacts   map[uuid.UUID]*Contacts
	updateErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		treatments: map[uuid.UUID]*Treatment{},
		contacts:   map[uuid.UUID]*Contacts{},
	}
}

func (m *mockRepo) Create(_ context.Context, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.treatments[t.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Treatment, error) {
	t, ok := m.treatments[id]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, _, _ int) ([]*Treatment, int, error) {
	out := make([]*Treatment, 0, len(m.treatments))
	for _, t := range m.treatments {
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListActive(_ context.Context) ([]*Treatment, error) {
	var out []*Treatment
	for _, t := range m.treatments {
		if t.Status == StatusActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, t *Treatment) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.treatments[t.ID]; !ok {
		return ErrTreatmentNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	m.treatments[t.ID] = &cp
	return nil
}

func (m *mockRepo) Contacts(_ context.Context, id uuid.UUID) (*Contacts, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return c, nil
}

type mockAuditRepo struct {
	entries []*audit.Entry
}

func (m *mockAuditRepo) Insert(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByRecord(_ context.Context, _ string, _ uuid.UUID, _, _ int) ([]*audit.Entry, int, error) {
	return m.entries, len(m.entries), nil
}

func newService(repo *mockRepo) (*Service, *mockAuditRepo) {
	auditRepo := &mockAuditRepo{}
	return NewService(repo, audit.NewRecorder(auditRepo), zerolog.Nop()), auditRepo
}

func activeTreatment(repo *mockRepo) *Treatment {
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	t := &Treatment{
		ID:               uuid.New(),
		MedicalHistoryID: uuid.New(),
		Status:           StatusActive,
		StartDate:        &start,
		CreatedAt:        time.Now().UTC(),
	}
	repo.treatments[t.ID] = t
	return t
}

func findEntry(t *testing.T, entries []*audit.Entry, field string) *audit.Entry {
	t.Helper()
	for _, e := range entries {
		if e.FieldName == field {
			return e
		}
	}
	t.Fatalf("no audit entry for field %q", field)
	return nil
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestCreateSeedsAuditTrail(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)

	notes := "first cycle"
	tr := &Treatment{MedicalHistoryID: uuid.New(), Notes: &notes}
	if err := svc.Create(context.Background(), tr, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tr.Status != StatusActive {
		t.Fatalf("status = %q, want %q", tr.Status, StatusActive)
	}

	// status + notes are set; start date, closure fields and doctor are
	// null and must not be seeded.
	if len(auditRepo.entries) != 2 {
		t.Fatalf("seeded %d entries, want 2", len(auditRepo.entries))
	}
	for _, e := range auditRepo.entries {
		if e.OldValue != nil {
			t.Errorf("seed entry %s has non-null old value", e.FieldName)
		}
	}
	status := findEntry(t, auditRepo.entries, "status")
	if status.NewValue == nil || *status.NewValue != string(StatusActive) {
		t.Errorf("status seed = %v", status.NewValue)
	}
}

func TestCreateRequiresMedicalHistory(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)

	err := svc.Create(context.Background(), &Treatment{}, nil)
	if !errors.Is(err, ErrMissingMedicalHistory) {
		t.Fatalf("err = %v, want ErrMissingMedicalHistory", err)
	}
}

func TestCloseTransitionsAndAudits(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)
	actor := uuid.New()

	got, err := svc.Close(context.Background(), tr.ID, "patient moved abroad", &actor)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got.Status != StatusClosed {
		t.Fatalf("status = %q, want %q", got.Status, StatusClosed)
	}
	if got.ClosureDate == nil || got.ClosureReason == nil {
		t.Fatal("closure date and reason must be set")
	}

	status := findEntry(t, auditRepo.entries, "status")
	if status.OldValue == nil || *status.OldValue != string(StatusActive) {
		t.Errorf("status old value = %v, want vigente", status.OldValue)
	}
	if status.NewValue == nil || *status.NewValue != string(StatusClosed) {
		t.Errorf("status new value = %v, want closed", status.NewValue)
	}
	if status.ActingUser == nil || *status.ActingUser != actor {
		t.Errorf("acting user = %v, want %s", status.ActingUser, actor)
	}
	findEntry(t, auditRepo.entries, "closure_date")
	findEntry(t, auditRepo.entries, "closure_reason")
}

func TestCloseRequiresReason(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)
	tr := activeTreatment(repo)

	_, err := svc.Close(context.Background(), tr.ID, "", nil)
	if !errors.Is(err, ErrInvalidClosureReason) {
		t.Fatalf("err = %v, want ErrInvalidClosureReason", err)
	}
}

func TestTerminalTreatmentsRejectTransitions(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)

	for _, status := range []Status{StatusClosed, StatusCompleted} {
		tr := activeTreatment(repo)
		tr.Status = status
		repo.treatments[tr.ID] = tr

		if _, err := svc.Close(context.Background(), tr.ID, "again", nil); !errors.Is(err, ErrTreatmentNotActive) {
			t.Errorf("Close on %s: err = %v, want ErrTreatmentNotActive", status, err)
		}
		if _, err := svc.Complete(context.Background(), tr.ID, nil); !errors.Is(err, ErrTreatmentNotActive) {
			t.Errorf("Complete on %s: err = %v, want ErrTreatmentNotActive", status, err)
		}
		if _, err := svc.CloseForInactivity(context.Background(), tr.ID, 72); !errors.Is(err, ErrTreatmentNotActive) {
			t.Errorf("CloseForInactivity on %s: err = %v, want ErrTreatmentNotActive", status, err)
		}
	}
}

func TestCloseForInactivityUsesFixedReason(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)

	got, err := svc.CloseForInactivity(context.Background(), tr.ID, 72)
	if err != nil {
		t.Fatalf("CloseForInactivity: %v", err)
	}
	if got.ClosureReason == nil || *got.ClosureReason != InactivityClosureReason {
		t.Fatalf("closure reason = %v, want %q", got.ClosureReason, InactivityClosureReason)
	}

	// automatic closures carry no acting user
	for _, e := range auditRepo.entries {
		if e.ActingUser != nil {
			t.Errorf("entry %s has acting user on automatic closure", e.FieldName)
		}
	}
}

func TestCompleteLeavesClosureFieldsNil(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)

	got, err := svc.Complete(context.Background(), tr.ID, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
	}

	// closure fields are set iff status is closed
	if got.ClosureDate != nil {
		t.Fatalf("closure date = %v on a completed treatment, want nil", *got.ClosureDate)
	}
	if got.ClosureReason != nil {
		t.Fatalf("closure reason = %q on a completed treatment, want nil", *got.ClosureReason)
	}

	// only the status change is audited; closure fields did not move
	if len(auditRepo.entries) != 1 || auditRepo.entries[0].FieldName != "status" {
		t.Fatalf("audit entries = %+v, want a single status entry", auditRepo.entries)
	}
}

func TestUpdateAuditsOnlyChangedFields(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)

	// same start date, new notes: only notes should be audited
	patch := Patch{
		StartDate: audit.Some("2025-01-10"),
		Notes:     audit.Some("responding well"),
	}
	got, err := svc.Update(context.Background(), tr.ID, patch, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Notes == nil || *got.Notes != "responding well" {
		t.Fatalf("notes = %v", got.Notes)
	}
	if len(auditRepo.entries) != 1 {
		t.Fatalf("wrote %d audit entries, want 1", len(auditRepo.entries))
	}
	if auditRepo.entries[0].FieldName != "notes" {
		t.Fatalf("audited field = %q, want notes", auditRepo.entries[0].FieldName)
	}
}

func TestUpdateExplicitNullClearsField(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)

	got, err := svc.Update(context.Background(), tr.ID, Patch{StartDate: audit.Null()}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.StartDate != nil {
		t.Fatalf("start date = %v, want nil", got.StartDate)
	}

	e := findEntry(t, auditRepo.entries, "start_date")
	if e.OldValue == nil || *e.OldValue != "2025-01-10" {
		t.Errorf("old value = %v, want 2025-01-10", e.OldValue)
	}
	if e.NewValue != nil {
		t.Errorf("new value = %v, want nil", e.NewValue)
	}
}

func TestUpdateRejectsBadDate(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)
	tr := activeTreatment(repo)

	_, err := svc.Update(context.Background(), tr.ID, Patch{StartDate: audit.Some("10/01/2025")}, nil)
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("error = %v, want ErrInvalidPatch", err)
	}
}

func TestUpdateRejectsBadDoctorID(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newService(repo)
	tr := activeTreatment(repo)

	_, err := svc.Update(context.Background(), tr.ID, Patch{DoctorID: audit.Some("not-a-uuid")}, nil)
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("error = %v, want ErrInvalidPatch", err)
	}
}

func TestReassignDoctorAuditsOldAndNew(t *testing.T) {
	repo := newMockRepo()
	svc, auditRepo := newService(repo)
	tr := activeTreatment(repo)
	oldDoctor := uuid.New()
	tr.DoctorID = &oldDoctor
	repo.treatments[tr.ID] = tr
	newDoctor := uuid.New()

	got, err := svc.ReassignDoctor(context.Background(), tr.ID, newDoctor, nil)
	if err != nil {
		t.Fatalf("ReassignDoctor: %v", err)
	}
	if got.DoctorID == nil || *got.DoctorID != newDoctor {
		t.Fatalf("doctor = %v, want %s", got.DoctorID, newDoctor)
	}

	e := findEntry(t, auditRepo.entries, "doctor_id")
	if e.OldValue == nil || *e.OldValue != oldDoctor.String() {
		t.Errorf("old value = %v, want %s", e.OldValue, oldDoctor)
	}
	if e.NewValue == nil || *e.NewValue != newDoctor.String() {
		t.Errorf("new value = %v, want %s", e.NewValue, newDoctor)
	}
}
