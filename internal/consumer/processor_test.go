package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/activitysync/internal/outbox"
)

func framed(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func syncRecord(offset int64, payload []byte) kafka.Message {
	return kafka.Message{
		Topic:  "sync_requests",
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("sync.requested")},
			{Key: "athlete_id", Value: []byte("athlete-1")},
			{Key: "schema_subject", Value: []byte("sync_requests-value")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"sync_run_id":"run-1","athlete_id":"athlete-1","provider":"strava"}`)
	reader := &stubReader{messages: []kafka.Message{syncRecord(10, payload)}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "sync.requested", handler.last.EventType)
	require.Equal(t, "athlete-1", handler.last.AthleteID)
	require.Equal(t, "sync_requests-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{syncRecord(20, []byte(`{}`))}}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorRetriesBeforeGivingUp(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{syncRecord(30, []byte(`{}`))}}
	handler := &stubHandler{err: errors.New("transient"), succeedOn: 3}

	err := NewProcessor(reader, handler, WithRetry(3, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	noHeader := syncRecord(40, []byte(`{}`))
	noHeader.Headers = nil
	badMagic := syncRecord(41, []byte(`{}`))
	badMagic.Value[0] = 7
	short := syncRecord(42, nil)
	short.Value = []byte{0, 1}

	reader := &stubReader{messages: []kafka.Message{noHeader, badMagic, short}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls     int
	err       error
	succeedOn int
	last      Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if h.succeedOn > 0 && h.calls >= h.succeedOn {
		return nil
	}
	return h.err
}

func TestDecodeMessageSharesOutboxFraming(t *testing.T) {
	msg := syncRecord(50, []byte(`{"sync_run_id":"run-9"}`))
	schemaID, payload, err := outbox.DecodeWireFormat(msg.Value)
	require.NoError(t, err)

	decoded, err := decodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, schemaID, decoded.SchemaID)
	require.JSONEq(t, string(payload), string(decoded.Payload))

	msg.Value[0] = 1
	_, _, wantErr := outbox.DecodeWireFormat(msg.Value)
	_, err = decodeMessage(msg)
	require.EqualError(t, err, wantErr.Error())
}
