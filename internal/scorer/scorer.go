package scorer

import (
	"regexp"
	"strings"

	"github.com/fystack/nft-activity-indexer/internal/classifier"
	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// Factor weights of the confidence composite. The relative proportions
// are the contract; absolute values only matter through normalization.
const (
	weightType        = 0.40
	weightMetadata    = 0.25
	weightResult      = 0.20
	weightConsistency = 0.15
)

const (
	resultSuccess      = "tesSUCCESS"
	resultSuccessClass = "tes"
)

var hashPattern = regexp.MustCompile(`^[0-9A-F]{64}$`)

// Scorer is a read-only second pass over the raw message, independent of
// field extraction. It gates admission; it never shapes records.
type Scorer struct {
	cfg config.ScorerConfig
}

func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the weighted confidence composite and the unweighted
// data-quality assessment for one message.
func (s *Scorer) Score(msg *types.LedgerMessage) *types.ClassificationResult {
	result := &types.ClassificationResult{}
	if msg == nil {
		return result
	}

	tx := &msg.Transaction
	hasMeta := msg.Meta != nil
	hasPage := hasMeta && msg.Meta.HasNode(types.EntryNFTokenPage)

	result.IsRelevant = classifier.AllowedTypes[tx.TransactionType] ||
		(tx.TransactionType == classifier.TxPayment && hasPage)
	if result.IsRelevant {
		result.ActivityType = activityHint(tx.TransactionType)
	}

	consistency := s.consistency(msg, hasMeta, hasPage)

	// Non-evaluable factors drop out of numerator and denominator both,
	// so a meta-less message is not punished for what it cannot show.
	var sum, total float64

	switch {
	case classifier.DirectTypes[tx.TransactionType]:
		sum += weightType
	case classifier.AllowedTypes[tx.TransactionType]:
		sum += 0.30
	}
	total += weightType

	if hasMeta {
		if hasPage {
			sum += weightMetadata
		} else {
			sum += 0.10
		}
		total += weightMetadata
	}

	if msg.EngineResult != "" {
		switch {
		case msg.EngineResult == resultSuccess:
			sum += weightResult
		case strings.HasPrefix(msg.EngineResult, resultSuccessClass):
			sum += 0.10
		}
		total += weightResult
	}

	if hasMeta {
		sum += weightConsistency * consistency
		total += weightConsistency
	}

	if total > 0 {
		result.Confidence = sum / total
	}

	result.DataQuality = s.quality(msg, result.IsRelevant, consistency)
	return result
}

// Accept applies the configured admission gate to a scored message.
func (s *Scorer) Accept(result *types.ClassificationResult) bool {
	if result == nil || !result.IsRelevant {
		return false
	}
	if result.Confidence < s.cfg.MinConfidence && !s.cfg.AllowAmbiguous {
		return false
	}
	if s.cfg.StrictValidation && result.DataQuality.Overall < s.cfg.MinQuality {
		return false
	}
	return true
}

// consistency starts from a perfect sub-score and subtracts the
// configured penalty for each observable mismatch.
func (s *Scorer) consistency(msg *types.LedgerMessage, hasMeta, hasPage bool) float64 {
	score := 1.0
	if !hasMeta {
		return score
	}

	successFamily := strings.HasPrefix(msg.EngineResult, resultSuccessClass)
	if successFamily && len(msg.Meta.AffectedNodes) == 0 {
		score -= s.cfg.PenaltySuccessWithoutNodes
	}
	if msg.Transaction.TransactionType == classifier.TxNFTokenMint && !hasPage {
		score -= s.cfg.PenaltyMintWithoutToken
	}

	if score < 0 {
		return 0
	}
	return score
}

func (s *Scorer) quality(msg *types.LedgerMessage, relevant bool, consistency float64) types.DataQuality {
	q := types.DataQuality{Consistency: consistency}

	q.Completeness = s.completeness(msg, relevant, &q)
	q.Validity = s.validity(msg, &q)
	q.Overall = (q.Completeness + q.Validity + q.Consistency) / 3
	return q
}

type fieldCheck struct {
	name string
	ok   bool
}

// completeness is the presence ratio of the required field set. Relevant
// messages are held to the stricter set.
func (s *Scorer) completeness(msg *types.LedgerMessage, relevant bool, q *types.DataQuality) float64 {
	tx := &msg.Transaction

	checks := []fieldCheck{
		{"hash", tx.Hash != ""},
		{"transaction_type", tx.TransactionType != ""},
		{"account", tx.Account != ""},
		{"ledger_index", msg.LedgerIndex > 0},
	}
	if relevant {
		checks = append(checks,
			fieldCheck{"meta", msg.Meta != nil},
			fieldCheck{"engine_result", msg.EngineResult != ""},
			fieldCheck{"close_time", msg.CloseTime > 0},
		)
	}

	present := 0
	for _, c := range checks {
		if c.ok {
			present++
		} else {
			q.Issues = append(q.Issues, "missing "+c.name)
		}
	}
	return float64(present) / float64(len(checks))
}

// validity runs format checks over the fields that are present. Absent
// optional fields are not counted against the message.
func (s *Scorer) validity(msg *types.LedgerMessage, q *types.DataQuality) float64 {
	tx := &msg.Transaction

	passed, total := 0, 0
	check := func(name string, ok bool) {
		total++
		if ok {
			passed++
		} else {
			q.Issues = append(q.Issues, "invalid "+name)
		}
	}

	check("hash", hashPattern.MatchString(tx.Hash))
	check("ledger_index", msg.LedgerIndex > 0)
	check("account", ValidAddress(tx.Account))
	if tx.Destination != "" {
		check("destination", ValidAddress(tx.Destination))
	}
	if tx.Owner != "" {
		check("owner", ValidAddress(tx.Owner))
	}
	if tx.Issuer != "" {
		check("issuer", ValidAddress(tx.Issuer))
	}

	return float64(passed) / float64(total)
}

func activityHint(txType string) enum.ActivityType {
	switch txType {
	case classifier.TxNFTokenMint:
		return enum.ActivityMint
	case classifier.TxNFTokenBurn:
		return enum.ActivityBurn
	case classifier.TxNFTokenCreateOffer:
		return enum.ActivityOfferCreated
	case classifier.TxNFTokenAcceptOffer:
		return enum.ActivityOfferAccepted
	case classifier.TxNFTokenCancelOffer:
		return enum.ActivityOfferCancelled
	case classifier.TxPayment:
		return enum.ActivitySale
	}
	return ""
}
