package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
)

const (
	// RetryCountHeader carries the redelivery attempt count for payloads
	// republished by other services.
	RetryCountHeader = "Nft-Retry-Count"

	MaxMsgSize = 512 * 1024 // 512KB
)

// Message is a consumed broker message. Exactly one of Ack, NakWithDelay
// or Term must be called per delivery.
type Message interface {
	Data() []byte
	Subject() string
	Headers() nats.Header
	// NumDelivered is the broker's delivery count for this message,
	// starting at 1.
	NumDelivered() int
	Ack() error
	// NakWithDelay schedules a broker-side redelivery after the given
	// delay. The consumer does not block.
	NakWithDelay(delay time.Duration) error
	// Term rejects the message without requeue, triggering dead-letter
	// routing.
	Term() error
}

// MessageQueue is one durable consumer bound to a single logical stream.
type MessageQueue interface {
	Enqueue(subject string, payload []byte, options *EnqueueOptions) error
	// Consume delivers messages serially to handler until Close.
	// The handler owns acknowledgment.
	Consume(handler func(Message)) error
	Close()
}

type EnqueueOptions struct {
	IdempotentKey string
	RetryCount    int
}

type JetStreamQueueManager struct {
	streamName string
	js         jetstream.JetStream
}

func NewJetStreamQueueManager(streamName string, subjects []string, nc *nats.Conn) (*JetStreamQueueManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx := context.Background()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Stream for " + streamName,
		Subjects:    subjects,
		MaxMsgSize:  int32(MaxMsgSize),
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      2 * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("create jetstream stream %s: %w", streamName, err)
	}
	logger.Info("JetStream stream ready", "stream", streamName, "subjects", subjects)

	return &JetStreamQueueManager{streamName: streamName, js: js}, nil
}

// NewConsumer creates a durable consumer for one subject. MaxAckPending
// is pinned to 1: within a stream, messages are handled one at a time in
// delivery order.
func (m *JetStreamQueueManager) NewConsumer(consumerName, subject string, maxDeliver int) (MessageQueue, error) {
	cfg := jetstream.ConsumerConfig{
		Name:           consumerName,
		Durable:        consumerName,
		MaxAckPending:  1,
		FilterSubjects: []string{subject},
		MaxDeliver:     maxDeliver,
	}
	consumer, err := m.js.CreateOrUpdateConsumer(context.Background(), m.streamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("create jetstream consumer %s: %w", consumerName, err)
	}
	logger.Info("Consumer ready", "name", consumerName, "subject", subject, "max_deliver", maxDeliver)

	return &msgQueue{consumerName: consumerName, js: m.js, consumer: consumer}, nil
}

// Publisher returns a publish-only queue bound to this stream's context.
func (m *JetStreamQueueManager) Publisher() MessageQueue {
	return &msgQueue{js: m.js}
}

type msgQueue struct {
	consumerName    string
	js              jetstream.JetStream
	consumer        jetstream.Consumer
	consumerContext jetstream.ConsumeContext
}

func (mq *msgQueue) Enqueue(subject string, payload []byte, options *EnqueueOptions) error {
	header := nats.Header{}
	if options != nil {
		if options.IdempotentKey != "" {
			header.Add("Nats-Msg-Id", options.IdempotentKey)
		}
		if options.RetryCount > 0 {
			header.Add(RetryCountHeader, fmt.Sprintf("%d", options.RetryCount))
		}
	}

	_, err := mq.js.PublishMsg(context.Background(), &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("enqueue message on %s: %w", subject, err)
	}
	return nil
}

func (mq *msgQueue) Consume(handler func(Message)) error {
	if mq.consumer == nil {
		return fmt.Errorf("queue %s is publish-only", mq.consumerName)
	}
	c, err := mq.consumer.Consume(func(msg jetstream.Msg) {
		handler(&jsMessage{msg: msg})
	})
	if err != nil {
		return err
	}
	mq.consumerContext = c
	return nil
}

func (mq *msgQueue) Close() {
	if mq.consumerContext != nil {
		mq.consumerContext.Stop()
	}
}

type jsMessage struct {
	msg jetstream.Msg
}

func (m *jsMessage) Data() []byte { return m.msg.Data() }

func (m *jsMessage) Subject() string { return m.msg.Subject() }

func (m *jsMessage) Headers() nats.Header { return nats.Header(m.msg.Headers()) }

func (m *jsMessage) NumDelivered() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (m *jsMessage) Ack() error { return m.msg.Ack() }

func (m *jsMessage) NakWithDelay(delay time.Duration) error { return m.msg.NakWithDelay(delay) }

func (m *jsMessage) Term() error { return m.msg.Term() }
