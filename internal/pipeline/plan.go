package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/datatypes"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/model"
)

// sortedByLedger returns a copy of the batch in ledger order, so token
// ownership mutations replay in the order the ledger applied them.
func sortedByLedger(records []types.ActivityRecord) []types.ActivityRecord {
	out := make([]types.ActivityRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LedgerIndex < out[j].LedgerIndex
	})
	return out
}

// collectionKeyOf extracts the (issuer, taxon) identity from a mint
// record. Only mints carry it; everything else resolves through the
// token row.
func collectionKeyOf(record *types.ActivityRecord) (model.CollectionKey, bool) {
	if record.ActivityType != enum.ActivityMint {
		return model.CollectionKey{}, false
	}
	issuer := extraString(record.Extra, "issuer")
	if issuer == "" {
		return model.CollectionKey{}, false
	}
	return model.CollectionKey{Issuer: issuer, Taxon: extraUint32(record.Extra, "taxon")}, true
}

// dedupKeys returns the dedup store keys of the batch.
func dedupKeys(records []types.ActivityRecord) []string {
	keys := make([]string, len(records))
	for i := range records {
		keys[i] = records[i].DedupKey()
	}
	return keys
}

// maxLedgerIndex returns the highest ledger index in the batch.
func maxLedgerIndex(records []types.ActivityRecord) uint64 {
	var max uint64
	for i := range records {
		if records[i].LedgerIndex > max {
			max = records[i].LedgerIndex
		}
	}
	return max
}

// buildActivityRow converts a classified record into its storage row.
// tokenIDs maps ledger token ids to token row uuids for batch tokens
// already persisted.
func buildActivityRow(record *types.ActivityRecord, tokenIDs map[string]string) (model.NFTActivity, error) {
	row := model.NFTActivity{
		TransactionHash: record.TransactionHash,
		LedgerIndex:     record.LedgerIndex,
		ActivityType:    record.ActivityType,
		TokenID:         record.TokenID,
		FromAddress:     record.FromAddress,
		ToAddress:       record.ToAddress,
		PriceAmount:     record.PriceAmount,
		CurrencyCode:    record.CurrencyCode,
		IssuerAddress:   record.IssuerAddress,
		Timestamp:       record.Timestamp,
	}
	if record.TokenID != "" {
		row.NFTokenID = tokenIDs[record.TokenID]
	}
	if len(record.Extra) > 0 {
		extra, err := json.Marshal(record.Extra)
		if err != nil {
			return row, fmt.Errorf("marshal extra of %s: %w", record.TransactionHash, err)
		}
		row.Extra = datatypes.JSON(extra)
	}
	return row, nil
}

func extraString(extra map[string]any, key string) string {
	s, _ := extra[key].(string)
	return s
}

// extraUint32 tolerates both in-process uint32 values and float64 from a
// JSON roundtrip.
func extraUint32(extra map[string]any, key string) uint32 {
	switch v := extra[key].(type) {
	case uint32:
		return v
	case float64:
		return uint32(v)
	case int:
		return uint32(v)
	}
	return 0
}
