package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

type fakeSender struct {
	calls []sentDM
	err   error
}

type sentDM struct {
	receiverID    int64
	content       string
	correlationID string
}

func (f *fakeSender) SendDM(receiverID int64, content, correlationID string) error {
	f.calls = append(f.calls, sentDM{receiverID, content, correlationID})
	return f.err
}

func newTestSession(sender Sender, at time.Time) *Session {
	s := NewSession(1, sender)
	s.now = func() time.Time { return at }
	return s
}

func dmEvent(t *testing.T, eventType string, msg models.Message) ServerEvent {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return ServerEvent{Type: eventType, Message: raw}
}

func TestSendAppendsBeforeTransport(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender, time.Now())

	corr, err := s.Send(2, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, corr)

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Pending)
	assert.Equal(t, PendingCreated, entries[0].Pending.Status)
	assert.Equal(t, "hello", entries[0].Pending.Content)
	assert.False(t, entries[0].Confirmed())

	require.Len(t, sender.calls, 1)
	assert.Equal(t, sentDM{2, "hello", corr}, sender.calls[0])
}

func TestSendTransportDownFailsSynchronously(t *testing.T) {
	sender := &fakeSender{err: ErrNotConnected}
	s := newTestSession(sender, time.Now())

	corr, err := s.Send(2, "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
	require.NotEmpty(t, corr)

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.Equal(t, PendingFailed, entries[0].Pending.Status)
}

func TestReconcileByCorrelationIDMergesInPlace(t *testing.T) {
	sender := &fakeSender{}
	base := time.Now()
	s := newTestSession(sender, base)

	corr, err := s.Send(2, "hello")
	require.NoError(t, err)

	require.NoError(t, s.HandleEvent(dmEvent(t, models.EventDMSent, models.Message{
		ID: 10, SenderID: 1, ReceiverID: 2, Content: "hello",
		CorrelationID: &corr, CreatedAt: base,
	})))

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Confirmed())
	assert.Equal(t, PendingConfirmed, entries[0].Pending.Status)
	assert.Equal(t, int64(10), entries[0].Message.ID)
}

func TestReconcileHeuristicWithinWindow(t *testing.T) {
	sender := &fakeSender{}
	base := time.Now()
	s := newTestSession(sender, base)

	_, err := s.Send(2, "hello")
	require.NoError(t, err)

	// No correlation id on the record; timestamp one second off.
	s.Reconcile(models.Message{
		ID: 11, SenderID: 1, ReceiverID: 2, Content: "hello",
		CreatedAt: base.Add(time.Second),
	})

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Confirmed())
	assert.Equal(t, int64(11), entries[0].Message.ID)
}

func TestReconcileHeuristicOutsideWindowAppends(t *testing.T) {
	sender := &fakeSender{}
	base := time.Now()
	s := newTestSession(sender, base)

	_, err := s.Send(2, "hello")
	require.NoError(t, err)

	s.Reconcile(models.Message{
		ID: 12, SenderID: 1, ReceiverID: 2, Content: "hello",
		CreatedAt: base.Add(3 * time.Second),
	})

	entries := s.Transcript(2)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Confirmed())
	assert.True(t, entries[1].Confirmed())
}

func TestReconcileForeignMessageAppends(t *testing.T) {
	s := newTestSession(&fakeSender{}, time.Now())

	require.NoError(t, s.HandleEvent(dmEvent(t, models.EventNewDM, models.Message{
		ID: 13, SenderID: 2, ReceiverID: 1, Content: "hi there",
	})))

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Confirmed())
	assert.Nil(t, entries[0].Pending)
}

func TestDMFailedMarksPending(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender, time.Now())

	corr, err := s.Send(2, "hello")
	require.NoError(t, err)

	require.NoError(t, s.HandleEvent(ServerEvent{
		Type: models.EventDMFailed, Error: "empty content", CorrelationID: corr,
	}))

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.Equal(t, PendingFailed, entries[0].Pending.Status)
}

func TestRetrySendReusesCorrelationID(t *testing.T) {
	sender := &fakeSender{err: ErrNotConnected}
	s := newTestSession(sender, time.Now())

	corr, err := s.Send(2, "hello")
	require.Error(t, err)

	sender.err = nil
	require.NoError(t, s.RetrySend(2, corr))

	require.Len(t, sender.calls, 2)
	assert.Equal(t, sender.calls[0].correlationID, sender.calls[1].correlationID)

	entries := s.Transcript(2)
	require.Len(t, entries, 1)
	assert.Equal(t, PendingCreated, entries[0].Pending.Status)
}

func TestRetrySendUnknownCorrelationID(t *testing.T) {
	s := newTestSession(&fakeSender{}, time.Now())
	assert.ErrorIs(t, s.RetrySend(2, "nope"), ErrNoPendingSend)
}

func TestRetrySendOnlyAppliesToFailedEntries(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender, time.Now())

	corr, err := s.Send(2, "hello")
	require.NoError(t, err)

	assert.ErrorIs(t, s.RetrySend(2, corr), ErrNoPendingSend)
	assert.Len(t, sender.calls, 1)
}

func TestLoadHistoryResolvesPendingByCorrelationID(t *testing.T) {
	sender := &fakeSender{}
	base := time.Now()
	s := newTestSession(sender, base)

	corr, err := s.Send(2, "hello")
	require.NoError(t, err)

	s.LoadHistory(2, []models.Message{
		{ID: 1, SenderID: 2, ReceiverID: 1, Content: "hey"},
		{ID: 2, SenderID: 1, ReceiverID: 2, Content: "hello", CorrelationID: &corr},
	})

	entries := s.Transcript(2)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Confirmed())
	require.NotNil(t, entries[1].Pending)
	assert.Equal(t, PendingConfirmed, entries[1].Pending.Status)
	assert.Equal(t, int64(2), entries[1].Message.ID)
}

func TestLoadHistoryFailsUnmatchedPending(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSession(sender, time.Now())

	_, err := s.Send(2, "lost in transit")
	require.NoError(t, err)

	s.LoadHistory(2, []models.Message{
		{ID: 1, SenderID: 2, ReceiverID: 1, Content: "hey"},
	})

	entries := s.Transcript(2)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[1].Pending)
	assert.Equal(t, PendingFailed, entries[1].Pending.Status)
	assert.False(t, entries[1].Confirmed())
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	s := newTestSession(&fakeSender{}, time.Now())
	assert.NoError(t, s.HandleEvent(ServerEvent{Type: "presence"}))
	assert.NoError(t, s.HandleEvent(ServerEvent{Type: models.EventAuth, Message: json.RawMessage(`"ok"`)}))
}

func TestHandleEventBadPayload(t *testing.T) {
	s := newTestSession(&fakeSender{}, time.Now())
	err := s.HandleEvent(ServerEvent{Type: models.EventNewDM, Message: json.RawMessage(`"not an object"`)})
	assert.Error(t, err)
}

func TestPartnersListsCachedConversations(t *testing.T) {
	s := newTestSession(&fakeSender{}, time.Now())
	_, _ = s.Send(2, "a")
	_, _ = s.Send(3, "b")
	assert.ElementsMatch(t, []int64{2, 3}, s.Partners())
}
