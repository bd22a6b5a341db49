package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/registry"
)

type fakeReceiver struct {
	events  []models.Event
	sendErr error
	closed  bool
	onSend  func()
}

func (f *fakeReceiver) SendJSON(v any) error {
	if f.onSend != nil {
		f.onSend()
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, v.(models.Event))
	return nil
}

func (f *fakeReceiver) Close(code int, reason string) {
	f.closed = true
}

func TestSendPersistsAndPushes(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	reg := registry.New()
	receiver := &fakeReceiver{}
	reg.Register(2, receiver)

	var order []string
	stored := models.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hello", CreatedAt: time.Now()}
	repo.On("Append", mock.Anything, int64(1), int64(2), "hello", (*string)(nil)).
		Run(func(mock.Arguments) { order = append(order, "persist") }).
		Return(stored, nil).Once()
	receiver.onSend = func() { order = append(order, "push") }

	msg, err := New(repo, reg, nil).Send(context.Background(), 1, 2, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, stored, msg)

	// Durability precedes any push the receiver can observe.
	assert.Equal(t, []string{"persist", "push"}, order)
	require.Len(t, receiver.events, 1)
	assert.Equal(t, models.EventNewDM, receiver.events[0].Type)
	assert.Equal(t, "hello", receiver.events[0].Message.Content)
	assert.Equal(t, int64(1), receiver.events[0].Message.SenderID)
	repo.AssertExpectations(t)
}

func TestSendReceiverOffline(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	reg := registry.New()

	stored := models.Message{ID: 11, SenderID: 1, ReceiverID: 2, Content: "hi"}
	repo.On("Append", mock.Anything, int64(1), int64(2), "hi", (*string)(nil)).Return(stored, nil).Once()

	msg, err := New(repo, reg, nil).Send(context.Background(), 1, 2, "hi", "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)
	repo.AssertExpectations(t)
}

func TestSendValidation(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	r := New(repo, registry.New(), nil)

	_, err := r.Send(context.Background(), 1, 0, "hi", "")
	assert.ErrorIs(t, err, ErrMissingReceiver)

	_, err = r.Send(context.Background(), 1, 1, "hi", "")
	assert.ErrorIs(t, err, ErrSelfMessage)

	_, err = r.Send(context.Background(), 1, 2, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendPersistenceError(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	reg := registry.New()
	receiver := &fakeReceiver{}
	reg.Register(2, receiver)

	repo.On("Append", mock.Anything, int64(1), int64(2), "hi", (*string)(nil)).
		Return(models.Message{}, assert.AnError).Once()

	_, err := New(repo, reg, nil).Send(context.Background(), 1, 2, "hi", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	// No ack, no push: the receiver never observes a failed write.
	assert.Empty(t, receiver.events)
}

func TestSendCarriesCorrelationID(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	corr := "corr-123"
	stored := models.Message{ID: 12, SenderID: 1, ReceiverID: 2, Content: "hi", CorrelationID: &corr}
	repo.On("Append", mock.Anything, int64(1), int64(2), "hi", mock.MatchedBy(func(p *string) bool {
		return p != nil && *p == corr
	})).Return(stored, nil).Twice()

	r := New(repo, registry.New(), nil)

	first, err := r.Send(context.Background(), 1, 2, "hi", corr)
	require.NoError(t, err)

	// Replaying the same logical send yields the same record.
	second, err := r.Send(context.Background(), 1, 2, "hi", corr)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	repo.AssertExpectations(t)
}

func TestSendPushFailureEvictsConnection(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	reg := registry.New()
	receiver := &fakeReceiver{sendErr: errors.New("broken pipe")}
	reg.Register(2, receiver)

	stored := models.Message{ID: 13, SenderID: 1, ReceiverID: 2, Content: "hi"}
	repo.On("Append", mock.Anything, int64(1), int64(2), "hi", (*string)(nil)).Return(stored, nil).Once()

	msg, err := New(repo, reg, nil).Send(context.Background(), 1, 2, "hi", "")
	require.NoError(t, err)
	assert.Equal(t, int64(13), msg.ID)

	assert.True(t, receiver.closed)
	_, ok := reg.Lookup(2)
	assert.False(t, ok)
}
