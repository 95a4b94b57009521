// Package events publishes progress domain events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectLessonCompleted = "progress.lesson_completed"
	SubjectProgressReset   = "progress.lesson_reset"
)

// Event is the envelope sent on every progress.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is fire-and-forget. A nil receiver or nil connection is a no-op.
type Publisher struct {
	conn Conn
	log  *zap.Logger
}

func NewPublisher(conn Conn, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{conn: conn, log: log}
}

func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.conn == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("event_marshal_failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("event_publish_failed", zap.String("subject", subject), zap.Error(err))
	}
}

// LessonCompleted announces that a learner finished a lesson.
func (p *Publisher) LessonCompleted(userID, lessonID string, durationSeconds float64) {
	p.Publish(SubjectLessonCompleted, "lesson_completed", userID, map[string]any{
		"lesson_id":        lessonID,
		"duration_seconds": durationSeconds,
	})
}

func (p *Publisher) ProgressReset(userID, lessonID string) {
	p.Publish(SubjectProgressReset, "lesson_reset", userID, map[string]any{
		"lesson_id": lessonID,
	})
}

// Connect dials NATS with a bounded reconnect policy. An empty url means
// events are disabled and (nil, nil) is returned.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("coursehub"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && log != nil {
				log.Warn("nats_disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
