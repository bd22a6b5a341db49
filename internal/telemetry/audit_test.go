package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/telemetry"
)

func capturingPublisher(t *testing.T, envelope *telemetry.AuditEnvelope) *mocks.PublisherMock {
	t.Helper()
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.dm", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) {
			*envelope = args.Get(2).(telemetry.AuditEnvelope)
		}).Return(nil).Once()
	return pub
}

func TestEmitPublishesEnvelope(t *testing.T) {
	var envelope telemetry.AuditEnvelope
	pub := capturingPublisher(t, &envelope)
	emitter := telemetry.NewAuditEmitter(pub, "audit.dm", "dm-service", "test")

	senderID := int64(42)
	emitter.Emit(context.Background(), "INFO", "dm persisted id=7 receiver=2", "req-1", &senderID)

	require.Equal(t, 1, envelope.SchemaVersion)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "dm-service", envelope.Service)
	assert.Equal(t, "test", envelope.Environment)
	assert.Equal(t, "req-1", envelope.RequestID)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, "42", *envelope.UserID)
	assert.Equal(t, "INFO", envelope.Payload.Level)
	assert.Equal(t, "dm persisted id=7 receiver=2", envelope.Payload.Text)

	_, err := time.Parse(time.RFC3339Nano, envelope.OccurredAt)
	assert.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestEmitWithoutUserID(t *testing.T) {
	var envelope telemetry.AuditEnvelope
	pub := capturingPublisher(t, &envelope)
	emitter := telemetry.NewAuditEmitter(pub, "audit.dm", "dm-service", "test")

	emitter.Emit(context.Background(), "INFO", "ws connect", "req-2", nil)

	assert.Nil(t, envelope.UserID)
	pub.AssertExpectations(t)
}

func TestEmitNilSafety(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "dropped", "req", nil)
	})

	noPublisher := telemetry.NewAuditEmitter(nil, "audit.dm", "dm-service", "test")
	assert.NotPanics(t, func() {
		noPublisher.Emit(context.Background(), "INFO", "dropped", "req", nil)
	})
}

func TestEmitSwallowsPublishError(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.dm", mock.Anything).Return(assert.AnError).Once()
	emitter := telemetry.NewAuditEmitter(pub, "audit.dm", "dm-service", "test")

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "broker down", "req-3", nil)
	})
	pub.AssertExpectations(t)
}
