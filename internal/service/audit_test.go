package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/mocks"
	"github.com/target/waypoint/internal/mocks/directory"
	"go.uber.org/mock/gomock"
)

func newBufferedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestAuditRecorder_Modes(t *testing.T) {
	tests := []struct {
		mode    config.AuditMode
		wantDB  bool
		wantLog bool
	}{
		{config.AuditModeAll, true, true},
		{config.AuditModeDB, true, false},
		{config.AuditModeLog, false, true},
		{config.AuditModeOff, false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			sink := directory.NewAuditLog()
			logger, buf := newBufferedLogger()
			r := NewAuditRecorder(AuditRecorderOptions{
				Sink:   sink,
				Config: config.AuditConfig{Mode: tt.mode},
				Logger: logger,
			})

			r.Record(context.Background(), model.AuditEvent{UserID: "u1", Action: "test.action"})

			if tt.wantDB {
				assert.Len(t, sink.Events(), 1)
			} else {
				assert.Empty(t, sink.Events())
			}
			assert.Equal(t, tt.wantLog, bytes.Contains(buf.Bytes(), []byte(`"msg":"audit event"`)))
		})
	}
}

func TestAuditRecorder_StampsEvents(t *testing.T) {
	sink := directory.NewAuditLog()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewAuditRecorder(AuditRecorderOptions{
		Sink:   sink,
		Config: config.AuditConfig{Mode: config.AuditModeDB},
	}).WithClock(data.NewFixedTimeProvider(fixed))

	r.Record(context.Background(), model.AuditEvent{Action: "a"})
	r.Record(context.Background(), model.AuditEvent{ID: "keep", Action: "b", OccurredAt: fixed.Add(-time.Hour)})

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Len(t, events[0].ID, 36)
	assert.Equal(t, fixed, events[0].OccurredAt)
	assert.Equal(t, "keep", events[1].ID)
	assert.Equal(t, fixed.Add(-time.Hour), events[1].OccurredAt)
}

func TestAuditRecorder_NilIsNoop(t *testing.T) {
	var r *AuditRecorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), model.AuditEvent{Action: "x"})
	})
	assert.Nil(t, r.WithClock(data.NewFixedTimeProvider(time.Now())))
}

func TestAuditRecorder_LogOnlyWithoutSink(t *testing.T) {
	logger, buf := newBufferedLogger()
	r := NewAuditRecorder(AuditRecorderOptions{Config: config.AuditConfig{Mode: config.AuditModeAll}, Logger: logger})

	r.Record(context.Background(), model.AuditEvent{UserID: "u1", Action: "session.login"})

	assert.Contains(t, buf.String(), `"action":"session.login"`)
	assert.Contains(t, buf.String(), `"component":"audit"`)
}

func TestAuditRecorder_SinkFailuresAreSwallowed(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		sink := directory.NewAuditLog()
		sink.AppendErr = errors.New("disk full")
		logger, buf := newBufferedLogger()
		r := NewAuditRecorder(AuditRecorderOptions{Sink: sink, Config: config.AuditConfig{Mode: config.AuditModeDB}, Logger: logger})

		r.Record(context.Background(), model.AuditEvent{Action: "x"})

		assert.Contains(t, buf.String(), "audit append failed")
		assert.Contains(t, buf.String(), "disk full")
	})

	t.Run("panic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockAuditStore(ctrl)
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, model.AuditEvent) error { panic("driver bug") },
		)
		logger, buf := newBufferedLogger()
		r := NewAuditRecorder(AuditRecorderOptions{Sink: sink, Config: config.AuditConfig{Mode: config.AuditModeDB}, Logger: logger})

		assert.NotPanics(t, func() {
			r.Record(context.Background(), model.AuditEvent{Action: "x"})
		})
		assert.Contains(t, buf.String(), "audit sink panicked")
	})
}

func TestAuditRecorder_WriteTimeout(t *testing.T) {
	sink := directory.NewAuditLog()
	sink.Block = true
	r := NewAuditRecorder(AuditRecorderOptions{
		Sink:   sink,
		Config: config.AuditConfig{Mode: config.AuditModeDB, WriteTimeout: 20 * time.Millisecond},
	})

	start := time.Now()
	r.Record(context.Background(), model.AuditEvent{Action: "x"})

	assert.Less(t, time.Since(start), time.Second)
}

func TestAuditRecorder_SurvivesCanceledRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockAuditStore(ctrl)
	sink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ model.AuditEvent) error {
			assert.NoError(t, ctx.Err())
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		},
	)
	r := NewAuditRecorder(AuditRecorderOptions{Sink: sink, Config: config.AuditConfig{Mode: config.AuditModeDB}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, model.AuditEvent{Action: "x"})
}
