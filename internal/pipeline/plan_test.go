package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/model"
)

func TestSortedByLedgerIsStableCopy(t *testing.T) {
	records := []types.ActivityRecord{
		{TransactionHash: "C", LedgerIndex: 30},
		{TransactionHash: "A", LedgerIndex: 10},
		{TransactionHash: "B1", LedgerIndex: 20},
		{TransactionHash: "B2", LedgerIndex: 20},
	}

	ordered := sortedByLedger(records)

	assert.Equal(t, "A", ordered[0].TransactionHash)
	assert.Equal(t, "B1", ordered[1].TransactionHash, "equal indexes keep arrival order")
	assert.Equal(t, "B2", ordered[2].TransactionHash)
	assert.Equal(t, "C", ordered[3].TransactionHash)
	assert.Equal(t, "C", records[0].TransactionHash, "input batch untouched")
}

func TestCollectionKeyOf(t *testing.T) {
	mint := types.ActivityRecord{
		ActivityType: enum.ActivityMint,
		Extra:        map[string]any{"issuer": "rIssuer", "taxon": uint32(7)},
	}
	key, ok := collectionKeyOf(&mint)
	require.True(t, ok)
	assert.Equal(t, model.CollectionKey{Issuer: "rIssuer", Taxon: 7}, key)

	// taxon arrives as float64 after a JSON roundtrip
	mint.Extra["taxon"] = float64(9)
	key, _ = collectionKeyOf(&mint)
	assert.Equal(t, uint32(9), key.Taxon)

	sale := types.ActivityRecord{ActivityType: enum.ActivitySale}
	_, ok = collectionKeyOf(&sale)
	assert.False(t, ok)

	mint.Extra = map[string]any{"taxon": uint32(7)}
	_, ok = collectionKeyOf(&mint)
	assert.False(t, ok, "no issuer means no collection identity")
}

func TestBuildActivityRow(t *testing.T) {
	record := types.ActivityRecord{
		TransactionHash: "HASH1",
		LedgerIndex:     81000001,
		ActivityType:    enum.ActivitySale,
		TokenID:         "TOKEN1",
		FromAddress:     "rSeller",
		ToAddress:       "rBuyer",
		PriceAmount:     "5000000",
		CurrencyCode:    "XRP",
		Extra:           map[string]any{"broker_fee": "1000000"},
	}
	tokenIDs := map[string]string{"TOKEN1": "9f0c3b2a-uuid"}

	row, err := buildActivityRow(&record, tokenIDs)
	require.NoError(t, err)

	assert.Equal(t, "9f0c3b2a-uuid", row.NFTokenID)
	assert.Equal(t, enum.ActivitySale, row.ActivityType)
	assert.JSONEq(t, `{"broker_fee":"1000000"}`, string(row.Extra))
}

func TestBuildActivityRowWithoutTokenOrExtra(t *testing.T) {
	record := types.ActivityRecord{TransactionHash: "HASH2", LedgerIndex: 1, ActivityType: enum.ActivityOfferCancelled}

	row, err := buildActivityRow(&record, nil)
	require.NoError(t, err)
	assert.Empty(t, row.NFTokenID)
	assert.Empty(t, row.Extra)
}

func TestMaxLedgerIndex(t *testing.T) {
	assert.Zero(t, maxLedgerIndex(nil))
	assert.Equal(t, uint64(30), maxLedgerIndex([]types.ActivityRecord{
		{LedgerIndex: 10}, {LedgerIndex: 30}, {LedgerIndex: 20},
	}))
}

func TestDedupKeys(t *testing.T) {
	keys := dedupKeys([]types.ActivityRecord{
		{TransactionHash: "A", LedgerIndex: 1},
		{TransactionHash: "B", LedgerIndex: 2},
	})
	assert.Equal(t, []string{"A:1", "B:2"}, keys)
}
