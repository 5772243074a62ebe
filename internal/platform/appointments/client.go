// Package appointments wraps the external appointment-booking service. Only
// the two operations the monitoring plan generator needs are exposed; the
// booking backend itself is out of scope.
package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OvertimeRequest describes the monitoring visit an overtime slot is needed for.
type OvertimeRequest struct {
	TreatmentID uuid.UUID `json:"treatment_id"`
	Sequence    int       `json:"sequence"`
	MinDate     time.Time `json:"min_date"`
	MaxDate     time.Time `json:"max_date"`
}

// Service is the call contract against the external appointment service.
type Service interface {
	// CreateOvertimeAppointment requests a new overtime slot and returns its id.
	CreateOvertimeAppointment(ctx context.Context, req OvertimeRequest) (string, error)
	// AssignExternalAppointment links an existing appointment to a monitoring plan.
	AssignExternalAppointment(ctx context.Context, planID uuid.UUID, appointmentID string) error
}

// Local issues appointment ids without an external service. It backs dev
// environments where no booking backend is configured; assignments are a
// no-op because the plan row already stores the id.
type Local struct {
	mu     sync.Mutex
	nextID int
}

func (l *Local) CreateOvertimeAppointment(_ context.Context, _ OvertimeRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return fmt.Sprintf("local-%d", l.nextID), nil
}

func (l *Local) AssignExternalAppointment(context.Context, uuid.UUID, string) error {
	return nil
}

// HTTPClient talks JSON to the appointment service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) CreateOvertimeAppointment(ctx context.Context, req OvertimeRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal overtime request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/appointments/overtime", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build overtime request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create overtime appointment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("appointment service returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode overtime response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("appointment service returned empty id")
	}
	return out.ID, nil
}

func (c *HTTPClient) AssignExternalAppointment(ctx context.Context, planID uuid.UUID, appointmentID string) error {
	payload, err := json.Marshal(map[string]string{"plan_id": planID.String()})
	if err != nil {
		return fmt.Errorf("marshal assign request: %w", err)
	}

	url := fmt.Sprintf("%s/appointments/%s/assign", c.baseURL, appointmentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build assign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("assign appointment %s: %w", appointmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("appointment service returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mock (test double)
// ---------------------------------------------------------------------------

// AssignCall records a single call to AssignExternalAppointment.
type AssignCall struct {
	PlanID        uuid.UUID
	AppointmentID string
}

// Mock is a test double for Service.
type Mock struct {
	mu        sync.Mutex
	overtime  []OvertimeRequest
	assigns   []AssignCall
	nextID    int
	CreateErr error
	AssignErr error
}

func (m *Mock) CreateOvertimeAppointment(_ context.Context, req OvertimeRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.overtime = append(m.overtime, req)
	m.nextID++
	return fmt.Sprintf("ovt-%d", m.nextID), nil
}

func (m *Mock) AssignExternalAppointment(_ context.Context, planID uuid.UUID, appointmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AssignErr != nil {
		return m.AssignErr
	}
	m.assigns = append(m.assigns, AssignCall{PlanID: planID, AppointmentID: appointmentID})
	return nil
}

// OvertimeCalls returns a copy of recorded overtime-slot requests.
func (m *Mock) OvertimeCalls() []OvertimeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OvertimeRequest, len(m.overtime))
	copy(out, m.overtime)
	return out
}

// AssignCalls returns a copy of recorded assignment calls.
func (m *Mock) AssignCalls() []AssignCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AssignCall, len(m.assigns))
	copy(out, m.assigns)
	return out
}
