// Package archive ships expired audit events to Kafka before the retention
// sweeper deletes them.
package archive

//go:generate mockgen -source=kafka.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"auditpipe/internal/platform/kafka/producer"
	audit "auditpipe/pkg/platform/audit"
)

// Producer publishes a batch of messages synchronously.
type Producer interface {
	ProduceBatch(ctx context.Context, msgs []*producer.Message) error
}

// Record is the archived form of an event.
type Record struct {
	ContractVersion int `json:"contract_version"`
	audit.EventDetail
}

// KafkaArchiver implements retention.Archiver.
type KafkaArchiver struct {
	producer Producer
	topic    string
}

func NewKafkaArchiver(p Producer, topic string) *KafkaArchiver {
	return &KafkaArchiver{producer: p, topic: topic}
}

// Archive publishes one message per event, keyed by event id, and returns
// only after the broker acknowledged all of them.
func (a *KafkaArchiver) Archive(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*producer.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(Record{
			ContractVersion: audit.ActionContractVersion,
			EventDetail:     audit.ProjectDetail(e),
		})
		if err != nil {
			return fmt.Errorf("marshal archived event %s: %w", e.ID, err)
		}
		msgs[i] = &producer.Message{
			Topic: a.topic,
			Key:   []byte(e.ID.String()),
			Value: value,
			Headers: map[string]string{
				"action":           e.Action.String(),
				"category":         string(e.Category()),
				"contract_version": strconv.Itoa(audit.ActionContractVersion),
			},
		}
	}
	if err := a.producer.ProduceBatch(ctx, msgs); err != nil {
		return fmt.Errorf("archive audit events: %w", err)
	}
	return nil
}
