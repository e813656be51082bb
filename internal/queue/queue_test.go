package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/queue"
	"github.com/inful/docgen/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueClaimComplete(t *testing.T) {
	s := newTestStore(t)
	q := queue.New(s, nil)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, domain.JobParse, map[string]any{"template_version_id": "tv-1"})
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-1", domain.JobParse)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.Equal(t, domain.JobRunning, job.Status)

	require.NoError(t, q.Complete(ctx, job.ID, map[string]any{"ok": true}))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, got.Status)
}

func TestClaimNeverReturnsSameJobTwice(t *testing.T) {
	s := newTestStore(t)
	q := queue.New(s, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobClassify, nil)
	require.NoError(t, err)

	job1, err := q.Claim(ctx, "worker-a", domain.JobClassify)
	require.NoError(t, err)

	_, err = q.Claim(ctx, "worker-b", domain.JobClassify)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Equal(t, "worker-a", func() string {
		got, err := q.Get(ctx, job1.ID)
		require.NoError(t, err)
		return got.WorkerID
	}())
}

func TestCancelTerminalJobReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	q := queue.New(s, nil)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, domain.JobGenerate, nil)
	require.NoError(t, err)
	job, err := q.Claim(ctx, "w1", domain.JobGenerate)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, nil))

	ok, err := q.Cancel(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFailRecordsError(t *testing.T) {
	s := newTestStore(t)
	q := queue.New(s, nil)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, domain.JobGenerate, nil)
	require.NoError(t, err)
	job, err := q.Claim(ctx, "w1", domain.JobGenerate)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, assertError("boom")))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.Status)
	require.Equal(t, "boom", got.Error)
}

type assertError string

func (e assertError) Error() string { return string(e) }
