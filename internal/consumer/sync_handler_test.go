package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
)

type stubRunner struct {
	jobs []domain.SyncJob
	err  error
}

func (r *stubRunner) HandleJob(_ context.Context, job domain.SyncJob) (events.SyncCompleted, error) {
	r.jobs = append(r.jobs, job)
	return events.SyncCompleted{SyncRunID: job.SyncRunID}, r.err
}

func requestMessage(payload string) Message {
	return Message{Topic: "sync_requests", EventType: events.SyncRequestedType, Payload: []byte(payload)}
}

func TestSyncJobHandlerRunsDecodedJob(t *testing.T) {
	runner := &stubRunner{}
	handler := NewSyncJobHandler(runner, nil)

	err := handler.Handle(context.Background(), requestMessage(
		`{"sync_run_id":"run-1","athlete_id":"athlete-1","provider":"strava","after":"2024-05-01T00:00:00Z","external_activity_id":"991"}`))
	require.NoError(t, err)

	require.Len(t, runner.jobs, 1)
	job := runner.jobs[0]
	require.Equal(t, "run-1", job.SyncRunID)
	require.Equal(t, "athlete-1", job.AthleteID)
	require.Equal(t, "strava", job.Provider)
	require.Equal(t, "991", job.ExternalActivityID)
	require.NotNil(t, job.After)
	require.Equal(t, 2024, job.After.Year())
}

func TestSyncJobHandlerCommitPolicy(t *testing.T) {
	cases := map[string]struct {
		err      error
		retained bool
	}{
		"success":            {err: nil},
		"provider outage":    {err: fmt.Errorf("fetch page 1: %w", domain.ErrProviderRequest), retained: true},
		"store failure":      {err: errors.New("connection refused"), retained: true},
		"reconnect required": {err: domain.ErrProviderUnauthorized},
		"token missing":      {err: domain.ErrTokenMissing},
		"unsupported":        {err: domain.ErrUnsupportedProvider},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewSyncJobHandler(&stubRunner{err: tc.err}, nil)
			err := handler.Handle(context.Background(), requestMessage(`{"sync_run_id":"r","athlete_id":"a","provider":"strava"}`))
			if tc.retained {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSyncJobHandlerSkipsOtherEvents(t *testing.T) {
	runner := &stubRunner{}
	handler := NewSyncJobHandler(runner, nil)

	require.NoError(t, handler.Handle(context.Background(), Message{EventType: events.SyncCompletedType, Payload: []byte(`{}`)}))
	require.NoError(t, handler.Handle(context.Background(), requestMessage(`not json`)))
	require.NoError(t, handler.Handle(context.Background(), requestMessage(`{"sync_run_id":"r"}`)))
	require.Empty(t, runner.jobs)
}
