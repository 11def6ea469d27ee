// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue publishes alert matches and processing outcomes to Redis
// as Celery-compatible tasks for the notification workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/watchfeed/internal/models"
)

// Task names consumed by the Python workers.
const (
	TaskSendAlert     = "notifier.tasks.send_alert"
	TaskRecordOutcome = "notifier.tasks.record_outcome"
)

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Publisher sends tasks to Redis in Celery task format.
type Publisher struct {
	rdb          redisClient
	alertQueue   string
	outcomeQueue string
}

// NewPublisher creates a publisher. An empty outcomeQueue disables outcome
// events.
func NewPublisher(rdb redisClient, alertQueue, outcomeQueue string) *Publisher {
	return &Publisher{
		rdb:          rdb,
		alertQueue:   alertQueue,
		outcomeQueue: outcomeQueue,
	}
}

// celeryTask represents a Celery-compatible task message.
type celeryTask struct {
	ID      string        `json:"id"`
	Task    string        `json:"task"`
	Args    []interface{} `json:"args"`
	Kwargs  interface{}   `json:"kwargs"`
	Retries int           `json:"retries"`
	ETA     *string       `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// alertPayload is the task argument for TaskSendAlert.
type alertPayload struct {
	AlertID   int64               `json:"alert_id"`
	Target    string              `json:"notification_target"`
	Listing   models.WatchListing `json:"listing"`
	MatchedAt time.Time           `json:"matched_at"`
}

// Notify publishes an alert match.
func (p *Publisher) Notify(ctx context.Context, m models.AlertMatch) error {
	taskID, err := p.publish(ctx, p.alertQueue, TaskSendAlert, alertPayload{
		AlertID:   m.Alert.ID,
		Target:    m.Alert.NotificationTarget,
		Listing:   m.Listing,
		MatchedAt: m.MatchedAt,
	})
	if err != nil {
		return err
	}
	slog.Info("published alert match",
		"task_id", taskID,
		"alert_id", m.Alert.ID,
		"pid", m.Listing.PID,
		"message_id", m.Listing.MessageID,
		"queue", p.alertQueue,
	)
	return nil
}

// PublishOutcome publishes a processing outcome.
func (p *Publisher) PublishOutcome(ctx context.Context, o models.Outcome) error {
	if p.outcomeQueue == "" {
		return nil
	}
	taskID, err := p.publish(ctx, p.outcomeQueue, TaskRecordOutcome, o)
	if err != nil {
		return err
	}
	slog.Debug("published outcome",
		"task_id", taskID,
		"message_id", o.MessageID,
		"status", o.Status,
		"queue", p.outcomeQueue,
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, queueName, taskName string, payload interface{}) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	taskID := uuid.New().String()

	task := celeryTask{
		ID:     taskID,
		Task:   taskName,
		Args:   []interface{}{string(payloadJSON)},
		Kwargs: map[string]interface{}{},
	}

	taskBody, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal celery task: %w", err)
	}

	msg := celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]interface{}{
			"lang":    "py",
			"task":    taskName,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]interface{}{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       queueName,
			"routing_key":    queueName,
			"delivery_info": map[string]string{
				"exchange":    queueName,
				"routing_key": queueName,
			},
		},
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal celery message: %w", err)
	}

	// Celery consumes with BRPOP, so producers LPUSH.
	if err := p.rdb.LPush(ctx, queueName, string(msgJSON)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}
	return taskID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
