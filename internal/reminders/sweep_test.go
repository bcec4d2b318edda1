package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicpulse/internal/mail"
	"clinicpulse/internal/types"
)

// --- In-package mocks ---

type mockAppointments struct {
	candidates []types.ReminderCandidate
	listErr    error

	listedFrom time.Time
	listedTo   time.Time
	marked     []string
	markErr    error
}

func (m *mockAppointments) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]types.ReminderCandidate, error) {
	m.listedFrom, m.listedTo = from, to
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.candidates, nil
}

func (m *mockAppointments) MarkReminderSent(ctx context.Context, appointmentID string, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, appointmentID)
	return nil
}

type mockEmailLog struct {
	entries  []types.EmailLogEntry
	counts   map[string]int // orgID -> existing rows this month
	countErr error

	countedSince time.Time
}

func (m *mockEmailLog) Append(ctx context.Context, entry *types.EmailLogEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockEmailLog) CountForOrganizationSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	m.countedSince = since
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.counts[orgID], nil
}

type mockSender struct {
	sent    []string // recipient emails
	failFor map[string]error
}

func (m *mockSender) Send(ctx context.Context, input types.SendInput) (string, error) {
	if err, ok := m.failFor[input.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, input.To)
	return "msg_" + input.To, nil
}

type mockRenderer struct {
	err error
}

func (m *mockRenderer) RenderReminder(c types.ReminderCandidate) (mail.Rendered, error) {
	if m.err != nil {
		return mail.Rendered{}, m.err
	}
	return mail.Rendered{
		Subject:  "Appointment reminder",
		BodyHTML: "<p>see you soon, " + c.PatientName + "</p>",
		BodyText: "see you soon, " + c.PatientName,
	}, nil
}

// --- Fixtures ---

var sweepNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type sweepFixture struct {
	appointments *mockAppointments
	emailLog     *mockEmailLog
	sender       *mockSender
	renderer     *mockRenderer
	sweeper      *Sweeper
}

func newSweepFixture(t *testing.T, monthlyLimit int) *sweepFixture {
	t.Helper()

	f := &sweepFixture{
		appointments: &mockAppointments{},
		emailLog:     &mockEmailLog{counts: map[string]int{}},
		sender:       &mockSender{},
		renderer:     &mockRenderer{},
	}
	f.sweeper = NewSweeper(SweeperConfig{
		Appointments: f.appointments,
		EmailLog:     f.emailLog,
		Sender:       f.sender,
		Renderer:     f.renderer,
		From:         types.EmailAddress{Address: "reports@clinicpulse.io"},
		Window:       24 * time.Hour,
		MonthlyLimit: monthlyLimit,
	}).WithClock(func() time.Time { return sweepNow })

	return f
}

func candidate(id, orgID, email string) types.ReminderCandidate {
	return types.ReminderCandidate{
		AppointmentID:  id,
		OrganizationID: orgID,
		PatientName:    "Pat",
		PatientEmail:   email,
		StartsAt:       sweepNow.Add(6 * time.Hour),
	}
}

// --- Tests ---

func TestRun_SendsAndMarks(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "pat1@mail.com"),
		candidate("appt_2", "org_1", "pat2@mail.com"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)

	assert.Equal(t, []string{"pat1@mail.com", "pat2@mail.com"}, f.sender.sent)
	assert.Equal(t, []string{"appt_1", "appt_2"}, f.appointments.marked)

	require.Len(t, f.emailLog.entries, 2)
	assert.Equal(t, types.EmailLogReminder, f.emailLog.entries[0].Kind)
	assert.Equal(t, types.DispatchSent, f.emailLog.entries[0].Status)
}

func TestRun_WindowBounds(t *testing.T) {
	f := newSweepFixture(t, 1000)

	_, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sweepNow, f.appointments.listedFrom)
	assert.Equal(t, sweepNow.Add(24*time.Hour), f.appointments.listedTo)
}

func TestRun_SkipsCandidatesWithoutEmailOrOrg(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_no_email", "org_1", ""),
		{AppointmentID: "appt_orphan", PatientEmail: "pat@mail.com", StartsAt: sweepNow.Add(time.Hour)},
		candidate("appt_ok", "org_1", "pat@mail.com"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []string{"appt_ok"}, f.appointments.marked)
	// Skipped candidates never touch the email log.
	assert.Len(t, f.emailLog.entries, 1)
}

func TestRun_FailedSendLeavesReminderUnset(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "fail@mail.com"),
		candidate("appt_2", "org_1", "ok@mail.com"),
	}
	f.sender.failFor = map[string]error{
		"fail@mail.com": errors.New("smtp timeout"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "appt_1")

	// The failed appointment stays unmarked so the next sweep retries it.
	assert.Equal(t, []string{"appt_2"}, f.appointments.marked)

	// Both attempts are logged, failure included.
	require.Len(t, f.emailLog.entries, 2)
	assert.Equal(t, types.DispatchFailed, f.emailLog.entries[0].Status)
	assert.Equal(t, types.DispatchSent, f.emailLog.entries[1].Status)
}

func TestRun_MonthlyQuota(t *testing.T) {
	f := newSweepFixture(t, 10)
	f.emailLog.counts = map[string]int{"org_full": 10, "org_free": 3}
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_full", "pat1@mail.com"),
		candidate("appt_2", "org_free", "pat2@mail.com"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"pat2@mail.com"}, f.sender.sent)

	// The quota counts from the first of the current calendar month.
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), f.emailLog.countedSince)
}

func TestRun_QuotaTracksSendsWithinSweep(t *testing.T) {
	f := newSweepFixture(t, 2)
	f.emailLog.counts = map[string]int{"org_1": 0}
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "a@mail.com"),
		candidate("appt_2", "org_1", "b@mail.com"),
		candidate("appt_3", "org_1", "c@mail.com"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	// The third candidate hits the ceiling raised by this sweep's own sends.
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"a@mail.com", "b@mail.com"}, f.sender.sent)
}

func TestRun_QuotaCheckFailureIsIsolated(t *testing.T) {
	f := newSweepFixture(t, 10)
	f.emailLog.countErr = errors.New("db down")
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "pat@mail.com"),
	}

	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, f.sender.sent)
}

func TestRun_ListFailure(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.listErr = errors.New("db down")

	result, err := f.sweeper.Run(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
}

func TestRun_MarkFailureDoesNotFailSweep(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "pat@mail.com"),
	}
	f.appointments.markErr = errors.New("db down")

	// The email went out; the flag write failure is logged, not counted as a
	// failed send.
	result, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Failed)
}

func TestPreview_NoMutation(t *testing.T) {
	f := newSweepFixture(t, 1000)
	f.appointments.candidates = []types.ReminderCandidate{
		candidate("appt_1", "org_1", "pat@mail.com"),
	}

	candidates, err := f.sweeper.Preview(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.appointments.marked)
	assert.Empty(t, f.emailLog.entries)
}

func TestMonthStart(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		monthStart(time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)),
	)
	assert.Equal(t,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		monthStart(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	)
}
