package consumer

import (
	"log/slog"
	"strconv"

	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/infra"
	"github.com/fystack/nft-activity-indexer/pkg/retry"
	"github.com/fystack/nft-activity-indexer/pkg/store/deadletterstore"
)

// Processor settles one decoded ledger message. A nil return means the
// message must be acknowledged; an error requests redelivery.
type Processor interface {
	Process(msg *types.LedgerMessage) error
}

// DLQSubject is where exhausted payloads are announced after archival.
const DLQSubject = "nft.ingest.dlq"

// Consumer binds one stream's queue to the processor and owns the retry
// state machine: ack on success, delayed redelivery while the budget
// lasts, dead-letter archival when it runs out. Retry scheduling lives
// in the broker, not in this process.
type Consumer struct {
	stream     enum.StreamName
	queue      infra.MessageQueue
	processor  Processor
	deadLetter deadletterstore.Store
	dlq        infra.MessageQueue
	cfg        config.ConsumerConfig
	logger     *slog.Logger
}

func New(stream enum.StreamName, queue infra.MessageQueue, processor Processor, deadLetter deadletterstore.Store, dlq infra.MessageQueue, cfg config.ConsumerConfig) *Consumer {
	return &Consumer{
		stream:     stream,
		queue:      queue,
		processor:  processor,
		deadLetter: deadLetter,
		dlq:        dlq,
		cfg:        cfg,
		logger:     logger.With("component", "consumer", "stream", stream),
	}
}

// Start begins serial consumption. It returns once the subscription is
// established; delivery happens on the queue's callback.
func (c *Consumer) Start() error {
	return c.queue.Consume(c.handle)
}

// Stop unsubscribes. In-flight redeliveries stay scheduled in the broker
// and arrive on the next start.
func (c *Consumer) Stop() {
	c.queue.Close()
}

func (c *Consumer) handle(msg infra.Message) {
	var lm types.LedgerMessage
	if err := lm.UnmarshalBinary(msg.Data()); err != nil {
		// undecodable payloads cannot name themselves; key by subject
		// and delivery so the archive entry is still findable
		c.settle(msg, "undecodable:"+msg.Subject(), err)
		return
	}

	if err := c.processor.Process(&lm); err != nil {
		c.settle(msg, lm.DedupKey(), err)
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Error("Ack failed", "error", err)
	}
}

// settle decides the failed message's fate from its delivery count.
func (c *Consumer) settle(msg infra.Message, key string, cause error) {
	attempt := c.attempt(msg)

	if attempt < c.cfg.MaxRetryAttempts {
		delay := retry.BackoffDelay(attempt, c.cfg.RetryBaseDelay, c.cfg.MaxRetryDelay)
		c.logger.Warn("Processing failed, scheduling redelivery",
			"key", key, "attempt", attempt, "delay", delay, "error", cause)
		if err := msg.NakWithDelay(delay); err != nil {
			c.logger.Error("Nak failed", "key", key, "error", err)
		}
		return
	}

	c.logger.Error("Retry budget exhausted, dead-lettering",
		"key", key, "attempts", attempt, "error", cause)

	if err := c.deadLetter.StoreMessage(c.stream, key, msg.Data(), attempt, cause); err != nil {
		c.logger.Error("Dead-letter archive failed", "key", key, "error", err)
	}
	if c.dlq != nil {
		if err := c.dlq.Enqueue(DLQSubject, msg.Data(), &infra.EnqueueOptions{
			IdempotentKey: key,
			RetryCount:    attempt,
		}); err != nil {
			c.logger.Error("DLQ publish failed", "key", key, "error", err)
		}
	}

	if err := msg.Term(); err != nil {
		c.logger.Error("Term failed", "key", key, "error", err)
	}
}

// attempt is the broker's delivery count, falling back to the retry
// header for payloads republished by another service.
func (c *Consumer) attempt(msg infra.Message) int {
	if n := msg.NumDelivered(); n > 1 {
		return n
	}
	if h := msg.Headers().Get(infra.RetryCountHeader); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n > 1 {
			return n
		}
	}
	return 1
}
