package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/strikersplash/Striker-Splash-sub001/internal/config"
	"github.com/strikersplash/Striker-Splash-sub001/internal/models"
)

// Producer streams queue and ledger events to downstream reporting
// consumers. Publishing is best effort and always happens after the store
// transaction committed.
type Producer struct {
	ticketIssued   *kafka.Writer
	ticketExpired  *kafka.Writer
	kicksPurchased *kafka.Writer
	goalLogged     *kafka.Writer
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	newWriter := func(topic string) *kafka.Writer {
		return kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topic,
		})
	}
	return &Producer{
		ticketIssued:   newWriter(topics.TicketIssued),
		ticketExpired:  newWriter(topics.TicketExpired),
		kicksPurchased: newWriter(topics.KicksPurchased),
		goalLogged:     newWriter(topics.GoalLogged),
	}
}

func (p *Producer) publish(writer *kafka.Writer, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// PublishTicketIssued streams a ticket issuance event.
func (p *Producer) PublishTicketIssued(ticket models.QueueTicket) error {
	return p.publish(p.ticketIssued, ticket.TicketID, ticket)
}

// PublishTicketExpired streams a ticket expiry event.
func (p *Producer) PublishTicketExpired(ticket models.QueueTicket) error {
	return p.publish(p.ticketExpired, ticket.TicketID, ticket)
}

// PublishKicksPurchased streams a ledger credit event.
func (p *Producer) PublishKicksPurchased(tx models.LedgerTransaction) error {
	return p.publish(p.kicksPurchased, tx.PlayerID, tx)
}

// PublishGoalLogged streams a completed play.
func (p *Producer) PublishGoalLogged(stat models.GameStat) error {
	return p.publish(p.goalLogged, stat.PlayerID, stat)
}

// Close flushes and closes all writers.
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []*kafka.Writer{p.ticketIssued, p.ticketExpired, p.kicksPurchased, p.goalLogged} {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing kafka writer: %w", err)
		}
	}
	return firstErr
}
