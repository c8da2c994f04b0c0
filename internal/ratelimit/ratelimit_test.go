package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	count   int
	getErr  error
	execErr error
	queries []string
	args    [][]any
}

func (f *fakeDB) GetContext(_ context.Context, dest any, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.getErr != nil {
		return f.getErr
	}
	*dest.(*int) = f.count
	return nil
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, f.execErr
}

func TestCheck(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{count: 4}
	r := New(db, 5, time.Hour)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Check(context.Background(), "10.0.0.1"))
	assert.Equal(t, []any{"10.0.0.1", now.Add(-time.Hour)}, db.args[0])

	db.count = 5
	assert.ErrorIs(t, r.Check(context.Background(), "10.0.0.1"), ErrTooManyFailures)
}

func TestCheckErrors(t *testing.T) {
	r := New(&fakeDB{getErr: sql.ErrNoRows}, 1, time.Minute)
	assert.NoError(t, r.Check(context.Background(), "ip"))

	r = New(&fakeDB{getErr: errors.New("conn reset")}, 1, time.Minute)
	err := r.Check(context.Background(), "ip")
	assert.ErrorContains(t, err, "conn reset")
	assert.NotErrorIs(t, err, ErrTooManyFailures)
}

func TestRecordAndCleanup(t *testing.T) {
	db := &fakeDB{}
	r := New(db, 1, time.Minute)

	require.NoError(t, r.RecordFailure(context.Background(), "ip"))
	require.NoError(t, r.CleanupOldAttempts(context.Background()))
	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], "INSERT INTO auth_failures")
	assert.Contains(t, db.queries[1], "DELETE FROM auth_failures")

	db.execErr = errors.New("read only")
	assert.ErrorContains(t, r.RecordFailure(context.Background(), "ip"), "read only")
}
