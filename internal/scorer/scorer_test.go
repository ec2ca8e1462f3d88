package scorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fystack/nft-activity-indexer/internal/classifier"
	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

const (
	genesisAccount = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	accountZero    = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
)

var validHash = strings.Repeat("AB", 32)

func pageMeta() *types.TransactionMeta {
	return &types.TransactionMeta{
		AffectedNodes: []types.AffectedNode{{
			NodeType:        types.NodeModified,
			LedgerEntryType: types.EntryNFTokenPage,
		}},
		TransactionResult: "tesSUCCESS",
	}
}

func scoredMsg(txType string, meta *types.TransactionMeta) *types.LedgerMessage {
	return &types.LedgerMessage{
		Transaction: types.RawTransaction{
			Hash:            validHash,
			TransactionType: txType,
			Account:         genesisAccount,
		},
		Meta:         meta,
		LedgerIndex:  81000000,
		CloseTime:    700000000,
		EngineResult: "tesSUCCESS",
	}
}

func defaultScorer() *Scorer {
	return New(config.Defaults().Scorer)
}

func TestScoreCleanDirectType(t *testing.T) {
	result := defaultScorer().Score(scoredMsg(classifier.TxNFTokenAcceptOffer, pageMeta()))

	assert.True(t, result.IsRelevant)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.InDelta(t, 1.0, result.DataQuality.Overall, 1e-9)
	assert.Empty(t, result.DataQuality.Issues)
}

func TestScoreAllowListedButNotDirect(t *testing.T) {
	result := defaultScorer().Score(scoredMsg(classifier.TxNFTokenCancelOffer, pageMeta()))

	// 0.30 + 0.25 + 0.20 + 0.15, all weights evaluable
	assert.InDelta(t, 0.90, result.Confidence, 1e-9)
	assert.True(t, result.IsRelevant)
}

func TestScoreDropsNonEvaluableFactors(t *testing.T) {
	msg := scoredMsg(classifier.TxNFTokenMint, nil)
	msg.EngineResult = ""

	result := defaultScorer().Score(msg)

	// only the type factor is evaluable; it carries the full weight
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestScoreMintWithoutTokenPagePenalized(t *testing.T) {
	meta := &types.TransactionMeta{
		AffectedNodes: []types.AffectedNode{{
			NodeType:        types.NodeModified,
			LedgerEntryType: "AccountRoot",
		}},
	}
	result := defaultScorer().Score(scoredMsg(classifier.TxNFTokenMint, meta))

	// 0.40 + 0.10 + 0.20 + 0.15*(1-0.3)
	assert.InDelta(t, 0.805, result.Confidence, 1e-9)
	assert.InDelta(t, 0.7, result.DataQuality.Consistency, 1e-9)
}

func TestScoreSuccessWithoutNodesPenalized(t *testing.T) {
	meta := &types.TransactionMeta{TransactionResult: "tesSUCCESS"}
	result := defaultScorer().Score(scoredMsg(classifier.TxNFTokenAcceptOffer, meta))

	// 0.40 + 0.10 + 0.20 + 0.15*(1-0.4)
	assert.InDelta(t, 0.79, result.Confidence, 1e-9)
	assert.InDelta(t, 0.6, result.DataQuality.Consistency, 1e-9)
}

func TestScoreSuccessFamilyResult(t *testing.T) {
	msg := scoredMsg(classifier.TxNFTokenBurn, pageMeta())
	msg.EngineResult = "tesPARTIAL"

	result := defaultScorer().Score(msg)

	// execution factor degrades to 0.10
	assert.InDelta(t, 0.90, result.Confidence, 1e-9)
}

func TestScoreFailedResult(t *testing.T) {
	msg := scoredMsg(classifier.TxNFTokenBurn, pageMeta())
	msg.EngineResult = "tecUNFUNDED_OFFER"

	result := defaultScorer().Score(msg)

	// execution contributes zero but stays in the denominator
	assert.InDelta(t, 0.80, result.Confidence, 1e-9)
}

func TestScorePaymentRelevantOnlyWithTokenPage(t *testing.T) {
	withPage := defaultScorer().Score(scoredMsg(classifier.TxPayment, pageMeta()))
	assert.True(t, withPage.IsRelevant)

	withoutPage := defaultScorer().Score(scoredMsg(classifier.TxPayment, nil))
	assert.False(t, withoutPage.IsRelevant)
}

func TestScoreNilMessage(t *testing.T) {
	result := defaultScorer().Score(nil)
	assert.False(t, result.IsRelevant)
	assert.Zero(t, result.Confidence)
}

func TestQualityFlagsMissingAndInvalidFields(t *testing.T) {
	msg := scoredMsg(classifier.TxNFTokenMint, pageMeta())
	msg.Transaction.Hash = "nothex"
	msg.Transaction.Destination = "not-an-address"
	msg.EngineResult = ""

	result := defaultScorer().Score(msg)

	assert.Less(t, result.DataQuality.Validity, 1.0)
	assert.Less(t, result.DataQuality.Completeness, 1.0)
	assert.Contains(t, result.DataQuality.Issues, "invalid hash")
	assert.Contains(t, result.DataQuality.Issues, "invalid destination")
	assert.Contains(t, result.DataQuality.Issues, "missing engine_result")
}

func TestAcceptGate(t *testing.T) {
	cfg := config.Defaults().Scorer
	s := New(cfg)

	good := s.Score(scoredMsg(classifier.TxNFTokenMint, pageMeta()))
	assert.True(t, s.Accept(good))

	irrelevant := s.Score(scoredMsg("AccountSet", nil))
	assert.False(t, s.Accept(irrelevant))

	assert.False(t, s.Accept(nil))
}

func TestAcceptRejectsLowConfidenceUnlessAmbiguousAllowed(t *testing.T) {
	cfg := config.Defaults().Scorer
	low := &types.ClassificationResult{IsRelevant: true, Confidence: 0.5}
	low.DataQuality.Overall = 1.0

	assert.False(t, New(cfg).Accept(low))

	cfg.AllowAmbiguous = true
	assert.True(t, New(cfg).Accept(low))
}

func TestAcceptStrictValidationUsesQualityFloor(t *testing.T) {
	cfg := config.Defaults().Scorer
	result := &types.ClassificationResult{IsRelevant: true, Confidence: 0.95}
	result.DataQuality.Overall = 0.5

	// quality floor only binds under strict validation
	assert.True(t, New(cfg).Accept(result))

	cfg.StrictValidation = true
	assert.False(t, New(cfg).Accept(result))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(genesisAccount))
	assert.True(t, ValidAddress(accountZero))

	assert.False(t, ValidAddress(""))
	assert.False(t, ValidAddress("rShort"))
	assert.False(t, ValidAddress("xHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"), "wrong prefix")
	assert.False(t, ValidAddress("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTx"), "bad checksum")
	// '0' and 'l' are not in the ripple dictionary
	assert.False(t, ValidAddress("r0000000000000000000000000000000000"))
}
