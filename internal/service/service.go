package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"pos-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher is the outbound side of the order lifecycle. Events are
// published after the transaction commits; a failed publish never undoes it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderReturned(ctx context.Context, event *models.OrderReturnedEvent) error
	PublishCommissionComputed(ctx context.Context, event *models.CommissionComputedEvent) error
}

// Clock returns the current time
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}

// failureReason is the metric label for err
func failureReason(err error) string {
	if code := models.ErrorCode(err); code != "" {
		return strings.ToLower(code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}
