package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seasonmail/internal/db"
	"seasonmail/internal/types"
)

// mockSessionStore serves canned sessions keyed by target date.
type mockSessionStore struct {
	byDate  map[string][]db.SessionWithTeam
	byID    map[string]*types.Session
	listErr error

	listCalls []string
}

func (m *mockSessionStore) ListStartingOn(_ context.Context, target time.Time, excludedIDs []string, limit int) ([]db.SessionWithTeam, error) {
	m.listCalls = append(m.listCalls, target.Format("2006-01-02"))
	if m.listErr != nil {
		return nil, m.listErr
	}
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	var out []db.SessionWithTeam
	for _, s := range m.byDate[target.Format("2006-01-02")] {
		if excluded[s.ID] {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSessionStore) GetByID(_ context.Context, id string) (*types.Session, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("session %s not found", id)
}

// mockRosterStore serves a fixed enrollment graph. Errors can be injected
// per call site.
type mockRosterStore struct {
	enrollmentsByTeam map[string][]types.Enrollment
	students          map[string]types.Student
	parents           map[string]types.Parent

	enrollErrByTeam map[string]error
}

func (m *mockRosterStore) ListActiveEnrollments(_ context.Context, teamID string) ([]types.Enrollment, error) {
	if err := m.enrollErrByTeam[teamID]; err != nil {
		return nil, err
	}
	return m.enrollmentsByTeam[teamID], nil
}

func (m *mockRosterStore) ListStudentsByIDs(_ context.Context, ids []string) ([]types.Student, error) {
	var out []types.Student
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRosterStore) ListParentsByIDs(_ context.Context, ids []string) ([]types.Parent, error) {
	var out []types.Parent
	for _, id := range ids {
		if p, ok := m.parents[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// memAttemptStore is an in-memory ledger mirroring the repository's upsert
// and close-out semantics closely enough for job and sweeper tests.
type memAttemptStore struct {
	mu   sync.Mutex
	rows map[types.AttemptKey]*types.EmailAttempt
	seq  int

	registerErr error
	overdueErr  error
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{rows: make(map[types.AttemptKey]*types.EmailAttempt)}
}

func (m *memAttemptStore) Register(_ context.Context, key types.AttemptKey, scheduledTime time.Time) (*types.EmailAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	if row, ok := m.rows[key]; ok {
		if row.Status == types.AttemptRetrying {
			row.AttemptNumber++
		}
		row.Status = types.AttemptPending
		row.ScheduledTime = scheduledTime
		row.ErrorMessage = ""
		cp := *row
		return &cp, nil
	}
	m.seq++
	row := &types.EmailAttempt{
		ID:            fmt.Sprintf("attempt-%04d", m.seq),
		SessionID:     key.SessionID,
		ParentID:      key.ParentID,
		EmailType:     key.EmailType,
		AttemptNumber: 1,
		Status:        types.AttemptPending,
		ScheduledTime: scheduledTime,
	}
	m.rows[key] = row
	cp := *row
	return &cp, nil
}

func (m *memAttemptStore) GetByKey(_ context.Context, key types.AttemptKey) (*types.EmailAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *memAttemptStore) MarkSent(_ context.Context, key types.AttemptKey, messageID string, executedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return fmt.Errorf("no row for %v", key)
	}
	row.Status = types.AttemptSent
	row.EmailSentID = messageID
	row.ExecutedTime = &executedAt
	row.ErrorMessage = ""
	return nil
}

func (m *memAttemptStore) MarkFailed(_ context.Context, key types.AttemptKey, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return fmt.Errorf("no row for %v", key)
	}
	row.Status = types.AttemptFailed
	row.ErrorMessage = errMsg
	return nil
}

func (m *memAttemptStore) ListOverdue(_ context.Context, cutoff time.Time, maxAttempts, limit int) ([]types.EmailAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overdueErr != nil {
		return nil, m.overdueErr
	}
	var out []types.EmailAttempt
	for _, row := range m.rows {
		if row.Status != types.AttemptFailed && row.Status != types.AttemptPending {
			continue
		}
		if !row.ScheduledTime.Before(cutoff) || row.AttemptNumber > maxAttempts {
			continue
		}
		out = append(out, *row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAttemptStore) MarkRetrying(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, row := range m.rows {
		if want[row.ID] {
			row.Status = types.AttemptRetrying
		}
	}
	return nil
}

func (m *memAttemptStore) CloseOutRetrying(_ context.Context, sessionID string, emailType types.EmailType, maxAttempts int, reStatus types.AttemptStatus, nextScheduled time.Time, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.SessionID != sessionID || row.EmailType != emailType || row.Status != types.AttemptRetrying {
			continue
		}
		row.AttemptNumber++
		if row.AttemptNumber > maxAttempts {
			row.Status = types.AttemptFailed
		} else {
			row.Status = reStatus
		}
		row.ScheduledTime = nextScheduled
		if errMsg != "" {
			row.ErrorMessage = errMsg
		}
		n++
	}
	return n, nil
}

func (m *memAttemptStore) get(key types.AttemptKey) *types.EmailAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

// mockMailSender records sends and can fail selected recipients.
type mockMailSender struct {
	mu     sync.Mutex
	sent   []types.SendInput
	failTo map[string]error
	seq    int
}

func (m *mockMailSender) Send(_ context.Context, input types.SendInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failTo[input.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, input)
	m.seq++
	return fmt.Sprintf("msg-%04d", m.seq), nil
}

func (m *mockMailSender) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.To)
	}
	return out
}

// mockJobRunner counts Run invocations for sweeper and lifecycle tests.
type mockJobRunner struct {
	mu        sync.Mutex
	emailType types.EmailType
	runErr    error
	asOfSeen  []time.Time
	onRun     func()
}

func (m *mockJobRunner) EmailType() types.EmailType { return m.emailType }

func (m *mockJobRunner) Run(_ context.Context, asOf time.Time) (*RunStats, error) {
	m.mu.Lock()
	m.asOfSeen = append(m.asOfSeen, asOf)
	onRun := m.onRun
	m.mu.Unlock()
	if onRun != nil {
		onRun()
	}
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &RunStats{EmailType: m.emailType}, nil
}

func (m *mockJobRunner) runs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.asOfSeen...)
}
