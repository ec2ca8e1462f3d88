package xrpl

import (
	"encoding/json"
	"fmt"

	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// streamMessage is the upstream transaction-stream envelope. Only the
// fields the pipeline consumes are pinned down.
type streamMessage struct {
	Type         string                 `json:"type"`
	Transaction  types.RawTransaction   `json:"transaction"`
	Meta         *types.TransactionMeta `json:"meta"`
	LedgerIndex  uint64                 `json:"ledger_index"`
	EngineResult string                 `json:"engine_result"`
	Validated    bool                   `json:"validated"`
	CloseTime    int64                  `json:"close_time,omitempty"`
}

// Normalize converts one raw stream message into the pipeline's
// LedgerMessage. This is the only place upstream field spellings are
// interpreted; everything after consumes the normalized tuple.
func Normalize(data []byte) (*types.LedgerMessage, error) {
	var raw streamMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stream message: %w", err)
	}
	if raw.Transaction.Hash == "" {
		return nil, fmt.Errorf("stream message has no transaction hash")
	}

	msg := &types.LedgerMessage{
		Transaction:  raw.Transaction,
		Meta:         raw.Meta,
		LedgerIndex:  raw.LedgerIndex,
		EngineResult: raw.EngineResult,
		Validated:    raw.Validated,
		CloseTime:    raw.CloseTime,
	}
	if msg.CloseTime == 0 {
		msg.CloseTime = raw.Transaction.Date
	}
	if msg.EngineResult == "" && raw.Meta != nil {
		msg.EngineResult = raw.Meta.TransactionResult
	}
	return msg, nil
}
