package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordStart(ctx, SessionRecord{
		SessionID: "session_a",
		Workspace: "/work/project",
		Agent:     "default",
		Model:     "claude-sonnet-4.5",
		StartedAt: started,
		LogDir:    "/logs/session_a",
	}))

	rec, err := s.Get(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, "/work/project", rec.Workspace)
	assert.Equal(t, "claude-sonnet-4.5", rec.Model)
	assert.Nil(t, rec.EndedAt)
	assert.Nil(t, rec.CostUSD)

	cost := 0.42
	ended := started.Add(5 * time.Minute)
	require.NoError(t, s.RecordEnd(ctx, "session_a", ended, 3, 15000, &cost, "all done"))

	rec, err = s.Get(ctx, "session_a")
	require.NoError(t, err)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, 3, rec.Prompts)
	assert.Equal(t, 15000, rec.TotalTokens)
	require.NotNil(t, rec.CostUSD)
	assert.Equal(t, 0.42, *rec.CostUSD)
	assert.Equal(t, "all done", rec.FinalResponse)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordEndMissing(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordEnd(context.Background(), "nope", time.Now(), 0, 0, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i, rec := range []SessionRecord{
		{SessionID: "session_1", Workspace: "/work/a", Agent: "default", Model: "m"},
		{SessionID: "session_2", Workspace: "/work/b", Agent: "default", Model: "m"},
		{SessionID: "session_3", Workspace: "/work/a", Agent: "default", Model: "m"},
	} {
		rec.StartedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.RecordStart(ctx, rec))
	}

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "session_3", all[0].SessionID)
	assert.Equal(t, "session_1", all[2].SessionID)

	scoped, err := s.List(ctx, "/work/a", 10)
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, "session_3", scoped[0].SessionID)

	limited, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_DuplicateStartRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := SessionRecord{SessionID: "session_dup", Workspace: "/w", Agent: "default", Model: "m", StartedAt: time.Now()}
	require.NoError(t, s.RecordStart(ctx, rec))
	assert.Error(t, s.RecordStart(ctx, rec))
}

func TestStore_QueryErrorsSurface(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("disk full"))
	err = s.RecordStart(context.Background(), SessionRecord{SessionID: "x", StartedAt: time.Now()})
	assert.ErrorContains(t, err, "record session start")

	mock.ExpectQuery("SELECT session_id").
		WillReturnError(errors.New("db closed"))
	_, err = s.List(context.Background(), "", 5)
	assert.ErrorContains(t, err, "list sessions")

	assert.NoError(t, mock.ExpectationsWereMet())
}
