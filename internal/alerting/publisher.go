package alerting

import (
	"encoding/json"
	"time"

	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/infra"
)

const (
	// CommittedSubject carries batches of durably committed activities
	// for downstream alerting and notification services.
	CommittedSubject = "nft.activity.committed"

	eventTypeActivityBatch = "activity_batch"
)

// ActivityEvent is the published envelope. Consumers key off Type.
type ActivityEvent struct {
	Type       string                 `json:"type"`
	Activities []types.ActivityRecord `json:"activities"`
	Count      int                    `json:"count"`
	Timestamp  int64                  `json:"timestamp"`
}

// Publisher hands committed activity batches to downstream consumers.
// Callers treat it as fire-and-forget: a publish failure never unwinds
// a commit.
type Publisher interface {
	ProcessActivityBatch(records []types.ActivityRecord) error
}

type natsPublisher struct {
	queue   infra.MessageQueue
	subject string
}

func NewNATSPublisher(queue infra.MessageQueue, subject string) Publisher {
	if subject == "" {
		subject = CommittedSubject
	}
	return &natsPublisher{queue: queue, subject: subject}
}

func (p *natsPublisher) ProcessActivityBatch(records []types.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	data, err := json.Marshal(ActivityEvent{
		Type:       eventTypeActivityBatch,
		Activities: records,
		Count:      len(records),
		Timestamp:  time.Now().UTC().Unix(),
	})
	if err != nil {
		return err
	}
	return p.queue.Enqueue(p.subject, data, nil)
}
