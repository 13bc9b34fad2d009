package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/campo-vida/order-engine/orders"
)

// TopicOrderStatus carries one event per committed status transition.
const TopicOrderStatus = "order.status.changed"

// StatusEvent is the wire payload published to Kafka.
type StatusEvent struct {
	EventID     string          `json:"event_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
}

// Kafka publishes status events to a topic. Messages for one order share a
// partition key so its events keep their order.
type Kafka struct {
	w *kafka.Writer
}

func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicOrderStatus,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *Kafka) NotifyStatus(ctx context.Context, o orders.Order, s orders.Status) error {
	payload, err := json.Marshal(StatusEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		OrderID:     string(o.ID),
		OrderNumber: o.Number,
		CustomerID:  string(o.CustomerID),
		Status:      string(s),
		Total:       o.Summary.Total,
	})
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.ID),
		Value: payload,
		Time:  time.Now(),
	})
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
