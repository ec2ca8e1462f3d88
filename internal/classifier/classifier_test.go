package classifier

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

const (
	tokenA = "000800003CD66E1F0290E4038F8C4BCF3EAC8E6B0000099B00000000"
	tokenB = "000800003CD66E1F0290E4038F8C4BCF3EAC8E6B0000099B00000001"
)

func tokenEntry(id string) map[string]any {
	return map[string]any{"NFToken": map[string]any{"NFTokenID": id}}
}

func pageNode(nodeType string, previous, final []string) types.AffectedNode {
	toEntries := func(ids []string) []any {
		entries := make([]any, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, tokenEntry(id))
		}
		return entries
	}

	node := types.AffectedNode{
		NodeType:        nodeType,
		LedgerEntryType: types.EntryNFTokenPage,
		LedgerIndex:     "PAGE01",
	}
	switch nodeType {
	case types.NodeCreated:
		node.NewFields = map[string]any{"NFTokens": toEntries(final)}
	case types.NodeDeleted:
		node.FinalFields = map[string]any{"NFTokens": toEntries(previous)}
	default:
		node.PreviousFields = map[string]any{"NFTokens": toEntries(previous)}
		node.FinalFields = map[string]any{"NFTokens": toEntries(final)}
	}
	return node
}

func deletedOfferNode(owner, tokenID string, amount any, flags uint32) types.AffectedNode {
	return types.AffectedNode{
		NodeType:        types.NodeDeleted,
		LedgerEntryType: types.EntryNFTokenOffer,
		LedgerIndex:     "OFFER01",
		FinalFields: map[string]any{
			"Owner":     owner,
			"NFTokenID": tokenID,
			"Amount":    amount,
			"Flags":     float64(flags),
		},
	}
}

func newMsg(txType string, nodes ...types.AffectedNode) *types.LedgerMessage {
	return &types.LedgerMessage{
		Transaction: types.RawTransaction{
			Hash:            "AB12CD34",
			TransactionType: txType,
			Account:         "rSender",
		},
		Meta: &types.TransactionMeta{
			AffectedNodes:     nodes,
			TransactionResult: "tesSUCCESS",
		},
		LedgerIndex:  81000000,
		CloseTime:    700000000,
		EngineResult: "tesSUCCESS",
	}
}

func TestClassifyMintWithURIAndPageDiff(t *testing.T) {
	msg := newMsg(TxNFTokenMint, pageNode(types.NodeModified, []string{tokenA}, []string{tokenA, tokenB}))
	msg.Transaction.URI = "68747470733a2f2f6578616d706c652e636f6d2f6e66742e6a736f6e"
	msg.Transaction.NFTokenTaxon = 7

	record, err := New().Classify(msg)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, enum.ActivityMint, record.ActivityType)
	assert.Equal(t, "rSender", record.ToAddress)
	assert.Equal(t, tokenB, record.TokenID, "must recover the added id, not a pre-existing one")
	assert.Equal(t, "https://example.com/nft.json", record.Extra["uri"])
	assert.NotContains(t, record.Extra, "uri_decode_warning")
	assert.Equal(t, uint32(7), record.Extra["taxon"])
	assert.Equal(t, "rSender", record.Extra["issuer"])
}

func TestClassifyMintBadURIKeepsRawHex(t *testing.T) {
	msg := newMsg(TxNFTokenMint, pageNode(types.NodeModified, nil, []string{tokenA}))
	msg.Transaction.URI = "ZZNOTHEX"

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, "ZZNOTHEX", record.Extra["uri"])
	assert.Equal(t, true, record.Extra["uri_decode_warning"])
}

func TestClassifyMintPrefersMetaConvenienceField(t *testing.T) {
	msg := newMsg(TxNFTokenMint)
	msg.Meta.NFTokenID = tokenA

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, tokenA, record.TokenID)
}

func TestClassifyMintWithoutMetaLeavesTokenAbsent(t *testing.T) {
	msg := newMsg(TxNFTokenMint)
	msg.Meta = nil

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Empty(t, record.TokenID, "diff-dependent fields are left absent, not guessed")
	assert.Equal(t, "rSender", record.ToAddress)
}

func TestClassifyBurnFromPageDiff(t *testing.T) {
	msg := newMsg(TxNFTokenBurn, pageNode(types.NodeModified, []string{tokenA, tokenB}, []string{tokenA}))

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, enum.ActivityBurn, record.ActivityType)
	assert.Equal(t, tokenB, record.TokenID)
	assert.Equal(t, "rSender", record.FromAddress)
}

func TestClassifyBurnFallsBackToBody(t *testing.T) {
	// a fully consumed page leaves no modified page node
	msg := newMsg(TxNFTokenBurn)
	msg.Transaction.NFTokenID = tokenA

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, tokenA, record.TokenID)
}

func TestClassifyBurnWithoutAnyTokenIDFails(t *testing.T) {
	msg := newMsg(TxNFTokenBurn)

	_, err := New().Classify(msg)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestClassifyAcceptSellOffer(t *testing.T) {
	msg := newMsg(TxNFTokenAcceptOffer, deletedOfferNode("rSeller", tokenA, "5000000", 1))

	record, err := New().Classify(msg)
	require.NoError(t, err)

	// sell flag set: offer owner sells, sender buys
	assert.Equal(t, enum.ActivitySale, record.ActivityType)
	assert.Equal(t, "rSeller", record.FromAddress)
	assert.Equal(t, "rSender", record.ToAddress)
	assert.Equal(t, "5000000", record.PriceAmount)
	assert.Equal(t, "XRP", record.CurrencyCode)
	assert.Empty(t, record.IssuerAddress)
	assert.Equal(t, tokenA, record.TokenID)
}

func TestClassifyAcceptBuyOffer(t *testing.T) {
	msg := newMsg(TxNFTokenAcceptOffer, deletedOfferNode("rBuyer", tokenA, "5000000", 0))

	record, err := New().Classify(msg)
	require.NoError(t, err)

	// sell flag clear: sender sells, offer owner buys
	assert.Equal(t, "rSender", record.FromAddress)
	assert.Equal(t, "rBuyer", record.ToAddress)
}

func TestClassifyAcceptOfferIssuedCurrency(t *testing.T) {
	amount := map[string]any{"value": "25.5", "currency": "USD", "issuer": "rIssuer"}
	msg := newMsg(TxNFTokenAcceptOffer, deletedOfferNode("rSeller", tokenA, amount, 1))

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, "25.5", record.PriceAmount)
	assert.Equal(t, "USD", record.CurrencyCode)
	assert.Equal(t, "rIssuer", record.IssuerAddress)
}

func TestClassifyAcceptOfferZeroAmountIsTransfer(t *testing.T) {
	msg := newMsg(TxNFTokenAcceptOffer, deletedOfferNode("rGiver", tokenA, "0", 1))

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, enum.ActivityTransfer, record.ActivityType)
}

func TestClassifyBrokeredAccept(t *testing.T) {
	msg := newMsg(TxNFTokenAcceptOffer,
		deletedOfferNode("rSeller", tokenA, "4000000", 1),
		deletedOfferNode("rBuyer", tokenA, "5000000", 0),
	)
	msg.Transaction.NFTokenBrokerFee = json.RawMessage(`"1000000"`)

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, "rSeller", record.FromAddress)
	assert.Equal(t, "rBuyer", record.ToAddress)
	assert.Equal(t, "5000000", record.PriceAmount, "buy side carries what the buyer paid")
	assert.Equal(t, "1000000", record.Extra["broker_fee"])
}

func TestClassifyCreateOffer(t *testing.T) {
	msg := newMsg(TxNFTokenCreateOffer)
	msg.Transaction.NFTokenID = tokenA
	msg.Transaction.Amount = json.RawMessage(`"2000000"`)
	msg.Transaction.Flags = 1

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, enum.ActivityOfferCreated, record.ActivityType)
	assert.Equal(t, "2000000", record.PriceAmount)
	assert.Equal(t, "sell", record.Extra["offer_kind"])
}

func TestClassifyCancelOffer(t *testing.T) {
	msg := newMsg(TxNFTokenCancelOffer)
	msg.Transaction.NFTokenOffers = []string{"OFFER01", "OFFER02"}

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, enum.ActivityOfferCancelled, record.ActivityType)
	assert.Equal(t, []string{"OFFER01", "OFFER02"}, record.Extra["cancelled_offer_ids"])

	msg.Transaction.NFTokenOffers = nil
	_, err = New().Classify(msg)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestClassifyPaymentWithTokenPageIsSale(t *testing.T) {
	msg := newMsg(TxPayment, pageNode(types.NodeModified, nil, []string{tokenB}))
	msg.Transaction.Destination = "rReceiver"
	msg.Transaction.Amount = json.RawMessage(`"9000000"`)

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, enum.ActivitySale, record.ActivityType)
	assert.Equal(t, tokenB, record.TokenID)
	assert.Equal(t, "rReceiver", record.ToAddress)
	assert.Equal(t, "9000000", record.PriceAmount)
}

func TestClassifyPlainPaymentIsIrrelevant(t *testing.T) {
	msg := newMsg(TxPayment)
	msg.Transaction.Amount = json.RawMessage(`"9000000"`)

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestClassifyUnknownTypeIsIrrelevant(t *testing.T) {
	msg := newMsg("AccountSet")

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestClassifyMalformedInput(t *testing.T) {
	_, err := New().Classify(nil)
	assert.True(t, errors.Is(err, ErrParse))

	msg := newMsg(TxNFTokenMint)
	msg.Transaction.Hash = ""
	_, err = New().Classify(msg)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestClassifyTimestampUsesRippleEpoch(t *testing.T) {
	msg := newMsg(TxNFTokenCancelOffer)
	msg.Transaction.NFTokenOffers = []string{"OFFER01"}
	msg.CloseTime = 0

	record, err := New().Classify(msg)
	require.NoError(t, err)
	assert.Equal(t, int64(946684800), record.Timestamp.Unix())
}

func TestPageDiffRebalancedPages(t *testing.T) {
	// a page split moves tokenA to another page while tokenB is minted:
	// the union-level diff must report only tokenB as added
	first := pageNode(types.NodeModified, []string{tokenA}, nil)
	second := pageNode(types.NodeCreated, nil, []string{tokenA, tokenB})
	second.LedgerIndex = "PAGE02"

	meta := &types.TransactionMeta{AffectedNodes: []types.AffectedNode{first, second}}
	added, removed := pageDiff(meta)
	assert.Equal(t, []string{tokenB}, added)
	assert.Empty(t, removed)
}

func TestPageDiffUnchangedPageContributesNothing(t *testing.T) {
	node := types.AffectedNode{
		NodeType:        types.NodeModified,
		LedgerEntryType: types.EntryNFTokenPage,
		FinalFields:     map[string]any{"NFTokens": []any{tokenEntry(tokenA)}},
		// PreviousFields has no NFTokens key: the list did not change
		PreviousFields: map[string]any{"PreviousTxnID": "XX"},
	}
	meta := &types.TransactionMeta{AffectedNodes: []types.AffectedNode{node}}
	added, removed := pageDiff(meta)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
