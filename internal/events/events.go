// Package events publishes intent lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"YONASettlement/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const (
	TypeStatusChanged   = "intent.status_changed"
	TypePaymentObserved = "intent.payment_observed"
)

var published = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yona_events_published_total",
	Help: "Intent events handed to the broker",
}, []string{"driver", "outcome"})

type Event struct {
	Type           string              `json:"type"`
	IntentID       string              `json:"intent_id"`
	Status         models.IntentStatus `json:"status,omitempty"`
	PreviousStatus models.IntentStatus `json:"previous_status,omitempty"`
	TxHash         string              `json:"tx_hash,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

func StatusChanged(intentID string, from, to models.IntentStatus) Event {
	return Event{
		Type:           TypeStatusChanged,
		IntentID:       intentID,
		Status:         to,
		PreviousStatus: from,
		Timestamp:      time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Config struct {
	Driver  string
	Brokers []string
	Topic   string
	NATSURL string
	Subject string
}

// New builds the publisher selected by cfg.Driver: kafka, nats, or none.
func New(cfg Config) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "kafka":
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("events: kafka driver needs brokers")
		}
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("events: connect nats: %w", err)
		}
		return &NATSPublisher{Conn: nc, Subject: cfg.Subject}, nil
	case "", "none", "noop":
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("events: unknown driver %q", cfg.Driver)
	}
}

type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.IntentID),
		Value: body,
	})
	observe("kafka", err)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

type NATSPublisher struct {
	Conn    *nats.Conn
	Subject string
}

func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = p.Conn.Publish(p.Subject+"."+e.Type, body)
	observe("nats", err)
	return err
}

func (p *NATSPublisher) Close() error {
	return p.Conn.Drain()
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

func observe(driver string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	published.WithLabelValues(driver, outcome).Inc()
}
