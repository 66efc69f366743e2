package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
	"github.com/alejandroruanova/dupflatten/internal/pkg/logger"
)

func TestStart_Success(t *testing.T) {
	want := &Result{Run: domain.IngestRun{GroupCount: 3}}

	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		return want, nil
	})

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	got, err := run.Wait()
	require.NoError(t, err)
	assert.Same(t, want, got)

	// Wait can be called again and reports the same outcome
	again, err := run.Wait()
	require.NoError(t, err)
	assert.Same(t, want, again)
}

func TestStart_Failure(t *testing.T) {
	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		return nil, apperrors.StructuralMessage("report has no root element")
	})

	result, err := run.Wait()
	assert.Nil(t, result)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStructural))
}

func TestStart_PanicBecomesError(t *testing.T) {
	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		panic("boom")
	})

	result, err := run.Wait()
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInternal))
	assert.Contains(t, err.Error(), "boom")
}

func TestStart_NilResultIsAnError(t *testing.T) {
	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		return nil, nil
	})

	_, err := run.Wait()
	assert.Error(t, err)
}

func TestStart_Cancel(t *testing.T) {
	started := make(chan struct{})
	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, apperrors.Canceled(ctx.Err())
	})

	<-started
	run.Cancel()

	_, err := run.Wait()
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeCanceled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStart_FlattensInBackground(t *testing.T) {
	source := writeReport(t, "report.xml", buildReport(6))
	target := filepath.Join(t.TempDir(), "xml_data.db")

	var last update
	run := Start(context.Background(), func(ctx context.Context) (*Result, error) {
		return RunLargeSource(ctx, source, target, func(processed, total int) {
			last = update{processed, total}
		}, WithLogger(logger.Discard()))
	})

	result, err := run.Wait()
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Run.GroupCount)
	assert.Equal(t, update{6, 6}, last)

	_, err = os.Stat(target)
	assert.NoError(t, err)

	db, err := database.Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, Path: target}, logger.Discard())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, int64(18), countTable(t, db.DB, &domain.GroupFile{}))
	assert.Equal(t, int64(12), countTable(t, db.DB, &domain.Match{}))
}
