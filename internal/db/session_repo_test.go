package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"seasonmail/internal/types"
)

// Note: mockDBTX and mockRow are defined in attempt_repo_test.go.

// sessionMockRows implements pgx.Rows over canned session rows in the
// ListStartingOn column order.
type sessionMockRows struct {
	data    []SessionWithTeam
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newSessionMockRows(data ...SessionWithTeam) *sessionMockRows {
	return &sessionMockRows{data: data, idx: -1}
}

func (r *sessionMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *sessionMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	*dest[0].(*string) = row.ID
	*dest[1].(*string) = row.TeamID
	*dest[2].(*time.Time) = row.StartDate
	*dest[3].(**time.Time) = row.EndDate
	*dest[4].(*string) = row.StartTime
	*dest[5].(*string) = row.EndTime
	*dest[6].(*string) = row.DaysOfWeek
	*dest[7].(*string) = row.CanceledDates
	*dest[8].(*string) = row.Location
	*dest[9].(*string) = row.CoachName
	*dest[10].(*string) = row.Timezone
	*dest[11].(*string) = row.TeamName
	return nil
}

func (r *sessionMockRows) Close()                                       { r.closed = true }
func (r *sessionMockRows) Err() error                                   { return r.errVal }
func (r *sessionMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *sessionMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *sessionMockRows) RawValues() [][]byte                          { return nil }
func (r *sessionMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *sessionMockRows) Conn() *pgx.Conn                              { return nil }

// ============================================================
// ListStartingOn Tests
// ============================================================

func TestSessionRepository_ListStartingOn_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var captured []any
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]any) }).
		Return(newSessionMockRows(SessionWithTeam{
			Session: types.Session{
				ID:         "sess_1",
				TeamID:     "team_1",
				StartDate:  start,
				EndDate:    &end,
				StartTime:  "18:00",
				EndTime:    "19:30",
				DaysOfWeek: "Wed",
			},
			TeamName: "Thunderbolts U10",
		}), nil)

	out, err := repo.ListStartingOn(ctx, start, []string{"sess_skip"}, 200)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sess_1", out[0].ID)
	assert.Equal(t, "Thunderbolts U10", out[0].TeamName)
	require.NotNil(t, out[0].EndDate)

	// The date is compared as a plain ISO string, never a timestamp.
	assert.Equal(t, "2025-09-18", captured[0])
	assert.Equal(t, []string{"sess_skip"}, captured[1])
	assert.Equal(t, 200, captured[2])
}

func TestSessionRepository_ListStartingOn_NilExcludedBecomesEmptySlice(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	var captured []any
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]any) }).
		Return(newSessionMockRows(), nil)

	_, err := repo.ListStartingOn(ctx, time.Now(), nil, 10)
	require.NoError(t, err)
	// != ALL(NULL) filters every row; the repo must pass an empty array.
	assert.Equal(t, []string{}, captured[1])
}

func TestSessionRepository_ListStartingOn_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListStartingOn(ctx, time.Now(), nil, 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

// ============================================================
// GetByID Tests
// ============================================================

func TestSessionRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sess_1"
			*dest[1].(*string) = "team_1"
			*dest[2].(*time.Time) = start
			*dest[3].(**time.Time) = nil
			*dest[4].(*string) = "18:00"
			*dest[5].(*string) = "19:30"
			*dest[6].(*string) = "Mon,Wed"
			*dest[7].(*string) = ""
			*dest[8].(*string) = "Field 2"
			*dest[9].(*string) = "Coach Dana"
			*dest[10].(*string) = ""
			return nil
		}})

	sess, err := repo.GetByID(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", sess.ID)
	assert.True(t, sess.StartDate.Equal(start))
	assert.Nil(t, sess.EndDate)
	assert.Equal(t, "Mon,Wed", sess.DaysOfWeek)
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(ctx, "sess_missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFound, types.CodeOf(err))
}

func TestSessionRepository_GetByID_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("broken pipe")})

	_, err := repo.GetByID(ctx, "sess_1")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
