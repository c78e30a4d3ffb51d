package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pos-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProducer struct {
	keys   []string
	events []interface{}
}

func (p *recordingProducer) PublishEvent(_ context.Context, key string, event interface{}) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestEventPublisher_Keys(t *testing.T) {
	producer := &recordingProducer{}
	ep := NewEventPublisher(producer)
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderCompleted(ctx, &models.OrderCompletedEvent{OrderID: 12}))
	require.NoError(t, ep.PublishCommissionComputed(ctx, &models.CommissionComputedEvent{UserID: 3, Month: 4, Year: 2024}))

	assert.Equal(t, []string{"order-12", "commission-3-2024-04"}, producer.keys)
}

func TestEventHandler_RoutesOrderCompleted(t *testing.T) {
	event := models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderCompleted,
			Timestamp: time.Now(),
		},
		OrderID:     42,
		TotalAmount: decimal.RequireFromString("19.90"),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.OrderCompletedEvent
	eh := NewEventHandler()
	eh.OnOrderCompleted(func(_ context.Context, e *models.OrderCompletedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, "evt-1", got.EventID)
	assert.True(t, event.TotalAmount.Equal(got.TotalAmount))
}

func TestEventHandler_IgnoresUnknownTypes(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnOrderCompleted(func(context.Context, *models.OrderCompletedEvent) error {
		called = true
		return nil
	})

	msg := kafka.Message{Value: []byte(`{"event_id":"x","event_type":"ORDER_CREATED"}`)}
	require.NoError(t, eh.HandleMessage(context.Background(), msg))
	assert.False(t, called)
}

func TestEventHandler_BadPayload(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestConsumer_HandleRetriesThenSucceeds(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 3, backoff: time.Millisecond}

	calls := 0
	err := c.handle(context.Background(), func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}, kafka.Message{Offset: 4})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConsumer_HandleGivesUpAfterLastAttempt(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 2, backoff: time.Millisecond}
	failure := errors.New("bad payload")

	calls := 0
	err := c.handle(context.Background(), func(context.Context, kafka.Message) error {
		calls++
		return failure
	}, kafka.Message{Offset: 9})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 2, calls)
}

func TestConsumer_HandleStopsOnCancel(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), attempts: 3, backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	err := c.handle(ctx, func(context.Context, kafka.Message) error {
		cancel()
		return errors.New("store unavailable")
	}, kafka.Message{})

	assert.ErrorIs(t, err, context.Canceled)
}
