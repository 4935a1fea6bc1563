// Package events publishes domain events to Kafka. Publishing is best-effort:
// callers log failures and never fail the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	UserRegistered    = "user_registered"
	CoursePublished   = "course_published"
	EnrollmentCreated = "enrollment_created"
	EnrollmentDeleted = "enrollment_deleted"
	LessonCompleted   = "lesson_completed"

	PasswordResetRequested = "password_reset_requested"
)

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

func New(eventType, key string, payload any) Event {
	return Event{Type: eventType, Key: key, OccurredAt: time.Now().UTC(), Payload: payload}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher writes to topic, hashing on the event key so events about
// one entity stay ordered.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

func message(ev Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal %s: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:     []byte(ev.Key),
		Value:   data,
		Time:    ev.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	}, nil
}

// FromBrokers returns a Kafka publisher, or Nop when no brokers are configured.
func FromBrokers(brokers []string, topic string) Publisher {
	clean := brokers[:0:0]
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			clean = append(clean, b)
		}
	}
	if len(clean) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(clean, topic)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory. Tests use it to assert on side effects.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
