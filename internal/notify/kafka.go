package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/service"
)

// KafkaNotifier publishes notifications as JSON events keyed by recipient, so a
// recipient's events stay ordered within one partition. Delivery failures are
// reported asynchronously and only logged.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
	wg       sync.WaitGroup
	onError  func(*sarama.ProducerError)
}

var _ service.Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier connects an async producer to brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "listinginbox"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newKafkaNotifier(producer, topic, nil), nil
}

func newKafkaNotifier(producer sarama.AsyncProducer, topic string, onError func(*sarama.ProducerError)) *KafkaNotifier {
	n := &KafkaNotifier{producer: producer, topic: topic, onError: onError}
	n.wg.Add(1)
	go n.drainErrors()
	return n
}

func (n *KafkaNotifier) drainErrors() {
	defer n.wg.Done()
	for perr := range n.producer.Errors() {
		slog.Warn("notification delivery failed", "topic", perr.Msg.Topic, "error", perr.Err)
		if n.onError != nil {
			n.onError(perr)
		}
	}
}

// Notify enqueues the event. It fails only when the event cannot be encoded or
// ctx ends before the producer accepts it.
func (n *KafkaNotifier) Notify(ctx context.Context, note model.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(note.RecipientID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(note.Kind)},
		},
	}
	select {
	case n.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered events and waits for the error drain to finish.
func (n *KafkaNotifier) Close() error {
	n.producer.AsyncClose()
	n.wg.Wait()
	return nil
}
