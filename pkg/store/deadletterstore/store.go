package deadletterstore

import (
	"fmt"
	"time"

	"github.com/fystack/nft-activity-indexer/pkg/common/constant"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/infra"
)

// DeadLetterMessage is a message that exhausted its retry budget, kept
// for manual inspection instead of being discarded.
type DeadLetterMessage struct {
	Stream    enum.StreamName `json:"stream"`
	Key       string          `json:"key"`
	Payload   []byte          `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	Resolved  bool            `json:"resolved"`
}

type Store interface {
	StoreMessage(stream enum.StreamName, key string, payload []byte, attempts int, cause error) error
	Get(stream enum.StreamName, key string) (*DeadLetterMessage, error)
	List(stream enum.StreamName) ([]*DeadLetterMessage, error)
	MarkResolved(stream enum.StreamName, key string) error
	Delete(stream enum.StreamName, key string) error
}

type store struct {
	kv infra.KVStore
}

func New(kv infra.KVStore) Store {
	return &store{kv: kv}
}

func (s *store) messageKey(stream enum.StreamName, key string) string {
	return fmt.Sprintf("%s/%s/%s", constant.DeadLetterKeyPrefix, stream, key)
}

func (s *store) StoreMessage(stream enum.StreamName, key string, payload []byte, attempts int, cause error) error {
	msg := &DeadLetterMessage{
		Stream:    stream,
		Key:       key,
		Payload:   payload,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	if err := s.kv.SetAny(s.messageKey(stream, key), msg); err != nil {
		return fmt.Errorf("store dead letter %s: %w", key, err)
	}
	return nil
}

func (s *store) Get(stream enum.StreamName, key string) (*DeadLetterMessage, error) {
	var msg DeadLetterMessage
	found, err := s.kv.GetAny(s.messageKey(stream, key), &msg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &msg, nil
}

func (s *store) List(stream enum.StreamName) ([]*DeadLetterMessage, error) {
	prefix := fmt.Sprintf("%s/%s/", constant.DeadLetterKeyPrefix, stream)
	pairs, err := s.kv.List(prefix)
	if err != nil {
		return nil, err
	}

	messages := make([]*DeadLetterMessage, 0, len(pairs))
	for _, pair := range pairs {
		var msg DeadLetterMessage
		if err := infra.JSON.Unmarshal(pair.Value, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter %s: %w", pair.Key, err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

func (s *store) MarkResolved(stream enum.StreamName, key string) error {
	msg, err := s.Get(stream, key)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("dead letter not found: stream=%s key=%s", stream, key)
	}
	msg.Resolved = true
	return s.kv.SetAny(s.messageKey(stream, key), msg)
}

func (s *store) Delete(stream enum.StreamName, key string) error {
	return s.kv.Delete(s.messageKey(stream, key))
}
