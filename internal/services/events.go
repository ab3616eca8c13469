package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fitgoals/apiserver/internal/mq"
	"github.com/fitgoals/apiserver/types"
)

// Goal lifecycle event types.
const (
	EventGoalCreated          = "goal.created"
	EventGoalUpdated          = "goal.updated"
	EventGoalDeleted          = "goal.deleted"
	EventGoalProgressRecorded = "goal.progress_recorded"
)

// Publisher sends a payload to a named channel on a message broker.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// GoalEvent is the payload published for goal lifecycle changes.
type GoalEvent struct {
	Type       string    `json:"type"`
	GoalID     string    `json:"goalId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// GoalEvents publishes goal lifecycle events. A nil publisher disables it.
// Publication is best effort: failures are logged and never returned.
// Events for one goal share an ordering key so brokers that support it
// deliver them in order.
type GoalEvents struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
	now       func() time.Time
}

func NewGoalEvents(publisher Publisher, topic string, logger *slog.Logger) *GoalEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalEvents{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *GoalEvents) emit(ctx context.Context, eventType, goalID, userID string) {
	if e == nil || e.publisher == nil {
		return
	}

	data, err := json.Marshal(GoalEvent{
		Type:       eventType,
		GoalID:     goalID,
		UserID:     userID,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "encode goal event", "event_type", eventType, "error", err)
		return
	}

	attrs := map[string]string{
		"event_type":         eventType,
		mq.OrderingAttribute: goalID,
	}
	id, err := e.publisher.Publish(ctx, e.topic, data, attrs)
	if err != nil {
		e.logger.WarnContext(ctx, "publish goal event failed", "event_type", eventType, "goal_id", goalID, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "goal event published", "event_type", eventType, "goal_id", goalID, "message_id", id)
}

func (e *GoalEvents) goalChanged(ctx context.Context, eventType string, goal types.Goal) {
	e.emit(ctx, eventType, goal.ID, goal.UserID)
}
