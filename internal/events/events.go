// Package events publishes ledger changes to downstream consumers. Publishing
// is best effort: the ledger is the source of truth and a lost event never
// rolls back a committed entry.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
)

type Type string

const (
	EntryOpened  Type = "entry_opened"
	EntryClosed  Type = "entry_closed"
	EntryRenewed Type = "entry_renewed"
)

type Event struct {
	Type     Type             `json:"type"`
	EntryID  string           `json:"entryId"`
	UnitID   string           `json:"unitId"`
	HolderID string           `json:"holderId"`
	Kind     domain.EntryKind `json:"kind"`
	OpenedAt time.Time        `json:"openedAt"`
	DueAt    time.Time        `json:"dueAt"`
	ClosedAt *time.Time       `json:"closedAt,omitempty"`
	Renewals int              `json:"renewals"`
	ActorID  string           `json:"actorId"`
	At       time.Time        `json:"at"`
}

// FromEntry builds the event for a change to e made by actor at at.
func FromEntry(t Type, e domain.LedgerEntry, actor domain.Identity, at time.Time) Event {
	return Event{
		Type:     t,
		EntryID:  e.ID,
		UnitID:   e.UnitID,
		HolderID: e.HolderID,
		Kind:     e.Kind,
		OpenedAt: e.OpenedAt,
		DueAt:    e.DueAt,
		ClosedAt: e.ClosedAt,
		Renewals: e.Renewals,
		ActorID:  actor.ID,
		At:       at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type nopPublisher struct{}

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher writes JSON events keyed by unit ID, so all changes to
// one unit land on one partition in order.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	logger.ExternalServiceCall("Kafka", "WriteMessages", "topic", p.topic, "type", ev.Type, "entry_id", ev.EntryID)
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UnitID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
	logger.ExternalServiceResult("Kafka", "WriteMessages", err, "topic", p.topic)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
