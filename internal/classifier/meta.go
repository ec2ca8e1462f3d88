package classifier

import (
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// fieldString reads a string field from a diff field map.
func fieldString(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return s
}

// fieldUint32 reads a numeric field from a diff field map. JSON numbers
// surface as float64.
func fieldUint32(fields map[string]any, key string) uint32 {
	if fields == nil {
		return 0
	}
	switch v := fields[key].(type) {
	case float64:
		return uint32(v)
	case int:
		return uint32(v)
	case uint32:
		return v
	}
	return 0
}

// pageTokenIDs extracts the token identifiers from an NFTokenPage field
// map. Entries are wrapped: {"NFTokens": [{"NFToken": {"NFTokenID": ...}}]}.
func pageTokenIDs(fields map[string]any) map[string]bool {
	ids := make(map[string]bool)
	if fields == nil {
		return ids
	}
	entries, _ := fields["NFTokens"].([]any)
	for _, entry := range entries {
		wrapper, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		token, ok := wrapper["NFToken"].(map[string]any)
		if !ok {
			continue
		}
		if id, ok := token["NFTokenID"].(string); ok && id != "" {
			ids[id] = true
		}
	}
	return ids
}

// pageTokenURI returns the URI recorded on the page entry for a token id,
// if present.
func pageTokenURI(fields map[string]any, tokenID string) string {
	if fields == nil {
		return ""
	}
	entries, _ := fields["NFTokens"].([]any)
	for _, entry := range entries {
		wrapper, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		token, ok := wrapper["NFToken"].(map[string]any)
		if !ok {
			continue
		}
		if id, _ := token["NFTokenID"].(string); id == tokenID {
			uri, _ := token["URI"].(string)
			return uri
		}
	}
	return ""
}

// pageDiff computes the set difference of token ids across every
// NFTokenPage node in the diff. A mint may rebalance pages without
// changing any single page's count by exactly one, so the union-level
// set difference is authoritative, not position or count.
func pageDiff(meta *types.TransactionMeta) (added, removed []string) {
	if meta == nil {
		return nil, nil
	}

	before := make(map[string]bool)
	after := make(map[string]bool)

	for _, node := range meta.FindNodes(types.EntryNFTokenPage) {
		switch node.NodeType {
		case types.NodeCreated:
			for id := range pageTokenIDs(node.NewFields) {
				after[id] = true
			}
		case types.NodeDeleted:
			// final fields hold the page state at deletion
			for id := range pageTokenIDs(node.FinalFields) {
				before[id] = true
			}
		case types.NodeModified:
			// a modified page without NFTokens in PreviousFields did not
			// change its token list
			if node.PreviousFields == nil {
				continue
			}
			if _, changed := node.PreviousFields["NFTokens"]; !changed {
				continue
			}
			for id := range pageTokenIDs(node.PreviousFields) {
				before[id] = true
			}
			for id := range pageTokenIDs(node.FinalFields) {
				after[id] = true
			}
		}
	}

	for id := range after {
		if !before[id] {
			added = append(added, id)
		}
	}
	for id := range before {
		if !after[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// deletedOffer is an NFTokenOffer recovered from the metadata diff of an
// accept-offer transaction.
type deletedOffer struct {
	Owner     string
	TokenID   string
	Amount    any
	IsSell    bool
	Index     string
	Completed bool // has both owner and token id
}

// deletedOffers extracts every deleted NFTokenOffer node. Broker-mode
// accepts delete two offers (one sell, one buy).
func deletedOffers(meta *types.TransactionMeta) []deletedOffer {
	if meta == nil {
		return nil
	}

	var offers []deletedOffer
	for _, node := range meta.FindNodes(types.EntryNFTokenOffer) {
		if node.NodeType != types.NodeDeleted {
			continue
		}
		fields := node.FinalFields
		offer := deletedOffer{
			Owner:   fieldString(fields, "Owner"),
			TokenID: fieldString(fields, "NFTokenID"),
			IsSell:  fieldUint32(fields, "Flags")&sellOfferFlag != 0,
			Index:   node.LedgerIndex,
		}
		if fields != nil {
			offer.Amount = fields["Amount"]
		}
		offer.Completed = offer.Owner != "" && offer.TokenID != ""
		offers = append(offers, offer)
	}
	return offers
}
