package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seasonmail/internal/types"
)

func newSweeper(t *testing.T, f *fixture, jobs []JobRunner, cfg SweepConfig) *RetrySweeper {
	t.Helper()
	return NewRetrySweeper(f.sessions, f.attempts, jobs, nil, testLogger(), cfg)
}

// seedFailed plants a failed ledger row scheduled in the past.
func seedFailed(t *testing.T, f *fixture, key types.AttemptKey, attempt int, scheduled time.Time) {
	t.Helper()
	_, err := f.attempts.Register(context.Background(), key, scheduled)
	require.NoError(t, err)
	require.NoError(t, f.attempts.MarkFailed(context.Background(), key, "smtp 451"))
	f.attempts.mu.Lock()
	f.attempts.rows[key].AttemptNumber = attempt
	f.attempts.mu.Unlock()
}

func TestSweep_NothingOverdueIsANoOp(t *testing.T) {
	f := newFixture(t)
	sweeper := newSweeper(t, f, nil, SweepConfig{})

	stats, err := sweeper.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RowsSelected)
	assert.Equal(t, 0, stats.Groups)
}

func TestSweep_RerunsGroupWithBackdatedClock(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)
	key := types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonStart}
	seedFailed(t, f, key, 1, now.Add(-2*time.Hour))

	job := &mockJobRunner{emailType: types.EmailSeasonStart}
	sweeper := newSweeper(t, f, []JobRunner{job}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	stats, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.RowsSelected)
	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 1, stats.GroupsRerun)

	// asOf is the session start minus the campaign look-ahead, so the rerun
	// resolves the original target date.
	runs := job.runs()
	require.Len(t, runs, 1)
	start := f.sessions.byID["sess-1"].StartDate
	assert.True(t, runs[0].Equal(start.AddDate(0, 0, -1)), "asOf = %v, want %v", runs[0], start.AddDate(0, 0, -1))

	// The mock job sent nothing, so the row closed out as failed again with
	// its attempt count advanced.
	row := f.attempts.get(key)
	require.NotNil(t, row)
	assert.Equal(t, types.AttemptFailed, row.Status)
	assert.Equal(t, 2, row.AttemptNumber)
	assert.Equal(t, 1, stats.RowsClosedOut)
}

func TestSweep_JobErrorRequeuesRowsAsPending(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)
	key := types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonStart}
	seedFailed(t, f, key, 1, now.Add(-2*time.Hour))

	job := &mockJobRunner{emailType: types.EmailSeasonStart, runErr: errors.New("db unavailable")}
	sweeper := newSweeper(t, f, []JobRunner{job}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	stats, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GroupsFailed)
	assert.Equal(t, 0, stats.GroupsRerun)

	// The run never reached the rows; they go back to pending one interval
	// out, still with the attempt count advanced so the cap holds.
	row := f.attempts.get(key)
	require.NotNil(t, row)
	assert.Equal(t, types.AttemptPending, row.Status)
	assert.Equal(t, 2, row.AttemptNumber)
	assert.True(t, row.ScheduledTime.Equal(now.Add(20*time.Minute)))
	assert.Contains(t, row.ErrorMessage, "db unavailable")
}

func TestSweep_RetryCapTerminates(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)
	key := types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonStart}
	seedFailed(t, f, key, 3, now.Add(-2*time.Hour))

	job := &mockJobRunner{emailType: types.EmailSeasonStart}
	sweeper := newSweeper(t, f, []JobRunner{job}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	// The row sits at the cap: one last rerun, then permanent failure.
	stats, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsSelected)

	row := f.attempts.get(key)
	require.NotNil(t, row)
	assert.Equal(t, types.AttemptFailed, row.Status)
	assert.Equal(t, 4, row.AttemptNumber)

	// A later sweep no longer selects it.
	stats2, err := sweeper.Sweep(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats2.RowsSelected)
	assert.Len(t, job.runs(), 1)
}

func TestSweep_GroupsBySessionAndEmailType(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)

	// Two parents in the same (session, type) group plus one row of the
	// week campaign.
	seedFailed(t, f, types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonStart}, 1, old)
	seedFailed(t, f, types.AttemptKey{SessionID: "sess-1", ParentID: "p2", EmailType: types.EmailSeasonStart}, 1, old)
	seedFailed(t, f, types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonWeek}, 1, old)

	startJob := &mockJobRunner{emailType: types.EmailSeasonStart}
	weekJob := &mockJobRunner{emailType: types.EmailSeasonWeek}
	sweeper := newSweeper(t, f, []JobRunner{startJob, weekJob}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	stats, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.RowsSelected)
	assert.Equal(t, 2, stats.Groups)
	assert.Len(t, startJob.runs(), 1, "one rerun covers both parents of the group")
	assert.Len(t, weekJob.runs(), 1)

	// The week rerun is backdated by its own look-ahead.
	start := f.sessions.byID["sess-1"].StartDate
	assert.True(t, weekJob.runs()[0].Equal(start.AddDate(0, 0, -7)))
}

func TestSweep_UnknownEmailTypeFailsGroup(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)
	seedFailed(t, f, types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonWeek}, 1, now.Add(-time.Hour))

	sweeper := newSweeper(t, f, []JobRunner{&mockJobRunner{emailType: types.EmailSeasonStart}}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	stats, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GroupsFailed)
}

// TestSweep_RecoversFailedSendEndToEnd drives a real SeasonJob through the
// sweeper: first run fails one parent's send, the transport recovers, and
// the sweep re-delivers exactly the failed reminder.
func TestSweep_RecoversFailedSendEndToEnd(t *testing.T) {
	f := newFixture(t)
	loc := mustLocation(t, "America/New_York")
	f.mailer.failTo = map[string]error{"maria@example.com": errors.New("throttled")}

	job := f.job(t, types.EmailSeasonStart)
	asOf := time.Date(2025, time.September, 17, 6, 0, 0, 0, loc)
	stats, err := job.Run(context.Background(), asOf)
	require.NoError(t, err)
	require.Equal(t, 1, stats.SendFailures)

	// Transport recovers before the sweep.
	f.mailer.failTo = nil

	sweeper := newSweeper(t, f, []JobRunner{job}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})
	sweepStats, err := sweeper.Sweep(context.Background(), time.Now().Add(30*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, sweepStats.RowsSelected)
	assert.Equal(t, 1, sweepStats.GroupsRerun)

	// p2 was already sent and is not re-emailed; p1 gets exactly one more.
	assert.Equal(t, []string{"denis@example.com", "maria@example.com"}, f.mailer.sentTo())

	row := f.attempts.get(types.AttemptKey{SessionID: "sess-1", ParentID: "p1", EmailType: types.EmailSeasonStart})
	require.NotNil(t, row)
	assert.Equal(t, types.AttemptSent, row.Status)
	// The delivered row left retrying before close-out, so nothing closed.
	assert.Equal(t, 0, sweepStats.RowsClosedOut)
}

// TestSweep_PersistentSendFailureTerminatesAtCap drives a real SeasonJob
// through repeated sweeps against a transport that never recovers. Each
// rerun re-registers the retrying rows, which must consume an attempt, so
// the rows reach terminal failure after MaxRetries reruns instead of being
// re-selected forever.
func TestSweep_PersistentSendFailureTerminatesAtCap(t *testing.T) {
	f := newFixture(t)
	loc := mustLocation(t, "America/New_York")
	f.mailer.failTo = map[string]error{
		"maria@example.com": errors.New("mailbox unavailable"),
		"denis@example.com": errors.New("mailbox unavailable"),
	}

	job := f.job(t, types.EmailSeasonStart)
	asOf := time.Date(2025, time.September, 17, 6, 0, 0, 0, loc)
	stats, err := job.Run(context.Background(), asOf)
	require.NoError(t, err)
	require.Equal(t, 2, stats.SendFailures)

	sweeper := newSweeper(t, f, []JobRunner{job}, SweepConfig{RetryInterval: 20 * time.Minute, MaxRetries: 3})

	// Attempts 1..3 are each re-driven once; the rerun's re-registration
	// advances the counter past the cap, after which nothing is selected.
	now := time.Now()
	var selected []int
	for i := 0; i < 4; i++ {
		now = now.Add(30 * time.Minute)
		sweepStats, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)
		selected = append(selected, sweepStats.RowsSelected)
	}
	assert.Equal(t, []int{2, 2, 2, 0}, selected)
	assert.Empty(t, f.mailer.sentTo())

	for _, parentID := range []string{"p1", "p2"} {
		row := f.attempts.get(types.AttemptKey{SessionID: "sess-1", ParentID: parentID, EmailType: types.EmailSeasonStart})
		require.NotNil(t, row)
		assert.Equal(t, types.AttemptFailed, row.Status)
		assert.Equal(t, 4, row.AttemptNumber)
	}
}
