package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fystack/nft-activity-indexer/internal/classifier"
	"github.com/fystack/nft-activity-indexer/internal/dedup"
	"github.com/fystack/nft-activity-indexer/internal/scorer"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// Processor runs one ledger message through the full ingest path:
// dedup check, admission scoring, classification, accumulation. A nil
// error means the message is settled, whether committed-to-batch or
// deliberately skipped.
type Processor struct {
	dedup       *dedup.Store
	scorer      *scorer.Scorer
	classifier  *classifier.Classifier
	accumulator *Accumulator
	logger      *slog.Logger
}

func NewProcessor(dedupStore *dedup.Store, sc *scorer.Scorer, cl *classifier.Classifier, acc *Accumulator) *Processor {
	return &Processor{
		dedup:       dedupStore,
		scorer:      sc,
		classifier:  cl,
		accumulator: acc,
		logger:      logger.With("component", "processor"),
	}
}

func (p *Processor) Process(msg *types.LedgerMessage) error {
	if msg == nil {
		return fmt.Errorf("nil ledger message")
	}

	key := msg.DedupKey()
	if p.dedup.IsDuplicate(key) {
		p.logger.Debug("Skipping duplicate", "key", key)
		return nil
	}

	result := p.scorer.Score(msg)
	if !p.scorer.Accept(result) {
		p.logger.Debug("Rejected by admission gate",
			"key", key,
			"relevant", result.IsRelevant,
			"confidence", result.Confidence,
			"quality", result.DataQuality.Overall)
		return nil
	}

	record, err := p.classifier.Classify(msg)
	if err != nil {
		if errors.Is(err, classifier.ErrParse) {
			// malformed data does not improve on redelivery
			p.logger.Warn("Skipping unparseable transaction", "key", key, "error", err)
			return nil
		}
		return err
	}
	if record == nil {
		return nil
	}

	p.accumulator.Add(*record)
	return nil
}
