package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	created *time.Time
	updated *time.Time
	tsErr   error
	streams map[string]*time.Time
	failing map[string]error
}

func (m *mockRepo) TreatmentTimestamps(context.Context, uuid.UUID) (*time.Time, *time.Time, error) {
	return m.created, m.updated, m.tsErr
}

func (m *mockRepo) stream(name string) (*time.Time, error) {
	if err := m.failing[name]; err != nil {
		return nil, err
	}
	return m.streams[name], nil
}

func (m *mockRepo) LatestMonitoringVisit(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("monitoring_visit")
}
func (m *mockRepo) LatestDoctorNote(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("doctor_note")
}
func (m *mockRepo) LatestProtocolUpdate(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("protocol_update")
}
func (m *mockRepo) LatestMilestone(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("milestone")
}
func (m *mockRepo) LatestMedicalOrder(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("medical_order")
}
func (m *mockRepo) LatestPuncture(context.Context, uuid.UUID) (*time.Time, error) {
	return m.stream("puncture")
}

func day(d int) *time.Time {
	ts := time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
	return &ts
}

func TestLastActivityPicksMaxAcrossStreams(t *testing.T) {
	repo := &mockRepo{
		created: day(1),
		streams: map[string]*time.Time{
			"doctor_note":   day(5),
			"medical_order": day(9),
			"puncture":      day(3),
		},
	}
	agg := NewAggregator(repo, zerolog.Nop())

	got, err := agg.LastActivity(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LastActivity: %v", err)
	}
	if got == nil || !got.Equal(*day(9)) {
		t.Fatalf("last activity = %v, want %v", got, day(9))
	}
}

func TestLastActivityFallsBackToTreatmentRecord(t *testing.T) {
	repo := &mockRepo{created: day(1), updated: day(2)}
	agg := NewAggregator(repo, zerolog.Nop())

	got, err := agg.LastActivity(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LastActivity: %v", err)
	}
	if got == nil || !got.Equal(*day(2)) {
		t.Fatalf("last activity = %v, want %v", got, day(2))
	}
}

func TestLastActivityTreatmentLookupError(t *testing.T) {
	repo := &mockRepo{tsErr: errors.New("boom")}
	agg := NewAggregator(repo, zerolog.Nop())

	if _, err := agg.LastActivity(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLastActivityToleratesFailingStream(t *testing.T) {
	repo := &mockRepo{
		created: day(1),
		streams: map[string]*time.Time{"doctor_note": day(7)},
		failing: map[string]error{"puncture": errors.New("timeout")},
	}
	agg := NewAggregator(repo, zerolog.Nop())

	got, err := agg.LastActivity(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LastActivity: %v", err)
	}
	if got == nil || !got.Equal(*day(7)) {
		t.Fatalf("last activity = %v, want %v", got, day(7))
	}
}

func TestLastActivityNilWhenNoTimestamps(t *testing.T) {
	repo := &mockRepo{}
	agg := NewAggregator(repo, zerolog.Nop())

	got, err := agg.LastActivity(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LastActivity: %v", err)
	}
	if got != nil {
		t.Fatalf("last activity = %v, want nil", got)
	}
}
