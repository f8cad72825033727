package schedule

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/errors"
	prismtest "github.com/teranos/prism/internal/testing"
)

func TestSQLMarkerLifecycle(t *testing.T) {
	ctx := context.Background()
	marker := NewSQLMarker(prismtest.CreateTestDB(t), "")

	wm, err := marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.IsZero(), "fresh marker has no watermark")

	require.NoError(t, marker.Acquire(ctx, "host-a", time.Minute))

	// A second run skips instead of waiting
	err = marker.Acquire(ctx, "host-b", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMarkerHeld))

	runStart := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, marker.Release(ctx, "host-a", runStart))

	wm, err = marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(runStart), "got %s", wm)

	// Free again
	require.NoError(t, marker.Acquire(ctx, "host-b", time.Minute))
}

func TestSQLMarkerFailedRunKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	marker := NewSQLMarker(prismtest.CreateTestDB(t), DefaultMarkerName)
	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, marker.Acquire(ctx, "a", time.Minute))
	require.NoError(t, marker.Release(ctx, "a", first))

	require.NoError(t, marker.Acquire(ctx, "a", time.Minute))
	require.NoError(t, marker.Release(ctx, "a", time.Time{}))

	wm, err := marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(first))
}

func TestSQLMarkerExpiredLeaseIsFree(t *testing.T) {
	ctx := context.Background()
	marker := NewSQLMarker(prismtest.CreateTestDB(t), "")

	require.NoError(t, marker.Acquire(ctx, "crashed", -time.Second))
	require.NoError(t, marker.Acquire(ctx, "next", time.Minute), "an expired lease can be taken over")

	// The crashed holder has lost it
	err := marker.Release(ctx, "crashed", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMarkerHeld))
	assert.NotEmpty(t, errors.GetAllHints(err))

	require.NoError(t, marker.Release(ctx, "next", time.Time{}))
}

func TestSQLMarkerNamesAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := prismtest.CreateTestDB(t)

	require.NoError(t, NewSQLMarker(db, "reconcile").Acquire(ctx, "a", time.Minute))
	require.NoError(t, NewSQLMarker(db, "reindex").Acquire(ctx, "a", time.Minute))
}

func TestSQLMarkerAcquireIsConditionalUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO reconcile_markers (name) VALUES (?)")).
		WithArgs("reconcile").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("AND (holder IS NULL OR held_until IS NULL OR held_until < ?)")).
		WithArgs("host-a", sqlmock.AnyArg(), sqlmock.AnyArg(), "reconcile", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSQLMarker(db, "").Acquire(context.Background(), "host-a", time.Minute)
	assert.True(t, errors.Is(err, errors.ErrMarkerHeld))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMarkerDatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT watermark FROM reconcile_markers")).
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewSQLMarker(db, "").Watermark(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read watermark of reconcile")
	assert.False(t, errors.Is(err, errors.ErrMarkerHeld))
}
