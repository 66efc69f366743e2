package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/dupflatten/internal/core/services/progress"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
	"github.com/alejandroruanova/dupflatten/internal/pkg/logger"
)

func TestNewIngestTask(t *testing.T) {
	task, payload, err := NewIngestTask(IngestPayload{
		SourcePath: "/reports/dups.xml",
		TargetPath: "/stores/xml_data.db",
		BatchSize:  500,
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, TaskTypeIngestReport, task.Type())
	_, err = uuid.Parse(payload.RunKey)
	require.NoError(t, err, "a run key is generated")

	parsed, err := ParseIngestPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload, parsed)
}

func TestNewIngestTask_KeepsRunKey(t *testing.T) {
	key := uuid.NewString()
	_, payload, err := NewIngestTask(IngestPayload{SourcePath: "a.xml", RunKey: key}, 0)
	require.NoError(t, err)
	assert.Equal(t, key, payload.RunKey)
}

func TestNewIngestTask_Invalid(t *testing.T) {
	_, _, err := NewIngestTask(IngestPayload{TargetPath: "x.db"}, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))

	_, _, err = NewIngestTask(IngestPayload{SourcePath: "a.xml", RunKey: "not-a-uuid"}, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))

	_, _, err = NewIngestTask(IngestPayload{SourcePath: "a.xml", BatchSize: -1}, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))
}

func TestProcessTask_MalformedPayloadSkipsRetry(t *testing.T) {
	h := newIngestHandler(func(ctx context.Context, p IngestPayload, fn progress.Func) error {
		t.Fatal("runner must not be called")
		return nil
	}, nil, logger.Discard())

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeIngestReport, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTask_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"structural", apperrors.StructuralMessage("bad markup"), true},
		{"missing source", apperrors.SourceNotFound("a.xml"), true},
		{"configuration", apperrors.Configuration("bad"), true},
		{"storage", apperrors.Storage(errors.New("disk full"), "failed to insert"), false},
		{"plain error", errors.New("unexpected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newIngestHandler(func(ctx context.Context, p IngestPayload, fn progress.Func) error {
				return tt.err
			}, nil, logger.Discard())

			task, _, err := NewIngestTask(IngestPayload{SourcePath: "a.xml"}, 1)
			require.NoError(t, err)

			err = h.ProcessTask(context.Background(), task)
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestProcessTask_PassesPayloadToRunner(t *testing.T) {
	var got IngestPayload
	var updates int
	h := newIngestHandler(func(ctx context.Context, p IngestPayload, fn progress.Func) error {
		got = p
		fn(1, 2)
		fn(2, 2)
		updates = 2
		return nil
	}, nil, logger.Discard())

	task, payload, err := NewIngestTask(IngestPayload{SourcePath: "a.xml", TargetPath: "b.db", BatchSize: 10}, 1)
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, payload, got)
	assert.Equal(t, 2, updates)
}

func TestIngestHandler_FlattensIntoTarget(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "report.xml")
	require.NoError(t, os.WriteFile(source, []byte(`<duplicates><group>
		<file path="a.jpg"/><file path="b.jpg"/>
		<match first="0" second="1" percentage="100"/>
	</group></duplicates>`), 0644))
	target := filepath.Join(dir, "out", "xml_data.db")

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: "ignored.db"},
		Ingest:   config.DefaultIngestConfig(),
	}
	h := NewIngestHandler(cfg, nil, logger.Discard())

	task, _, err := NewIngestTask(IngestPayload{SourcePath: source, TargetPath: target}, 0)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	_, err = os.Stat(target)
	assert.NoError(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(apperrors.Storage(errors.New("x"), "y")))
	assert.True(t, Retryable(apperrors.Canceled(context.Canceled)))
	assert.False(t, Retryable(apperrors.StructuralMessage("x")))
	assert.False(t, Retryable(apperrors.FileTooLarge(1)))
}

func TestIngestPayload_JSON(t *testing.T) {
	data, err := json.Marshal(IngestPayload{SourcePath: "a.xml", TargetPath: "b.db", RunKey: "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source_path":"a.xml","target_path":"b.db","run_key":"k"}`, string(data))
}
