package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/nft-activity-indexer/pkg/common/constant"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
)

// RawTransaction is the normalized XRPL transaction body. The upstream
// payload tolerates many optional field spellings; everything the pipeline
// reads is pinned down here at the stream boundary.
type RawTransaction struct {
	Hash            string `json:"hash"`
	TransactionType string `json:"TransactionType"`
	Account         string `json:"Account"`
	Destination     string `json:"Destination,omitempty"`
	Issuer          string `json:"Issuer,omitempty"`
	Owner           string `json:"Owner,omitempty"`
	Flags           uint32 `json:"Flags,omitempty"`
	Date            int64  `json:"date,omitempty"`

	// NFT-native fields
	NFTokenID    string `json:"NFTokenID,omitempty"`
	NFTokenTaxon uint32 `json:"NFTokenTaxon,omitempty"`
	TransferFee  uint32 `json:"TransferFee,omitempty"`
	URI          string `json:"URI,omitempty"`

	// Amount is either a drops string or an issued-currency object.
	// Kept raw and parsed on demand.
	Amount           json.RawMessage `json:"Amount,omitempty"`
	NFTokenSellOffer string          `json:"NFTokenSellOffer,omitempty"`
	NFTokenBuyOffer  string          `json:"NFTokenBuyOffer,omitempty"`
	NFTokenBrokerFee json.RawMessage `json:"NFTokenBrokerFee,omitempty"`
	NFTokenOffers    []string        `json:"NFTokenOffers,omitempty"`
}

// NodeType values of an affected node.
const (
	NodeCreated  = "CreatedNode"
	NodeModified = "ModifiedNode"
	NodeDeleted  = "DeletedNode"
)

// Ledger entry types the pipeline cares about.
const (
	EntryNFTokenPage  = "NFTokenPage"
	EntryNFTokenOffer = "NFTokenOffer"
)

// AffectedNode is one before/after snapshot from the transaction's
// metadata diff, unwrapped from the XRPL envelope shape.
type AffectedNode struct {
	NodeType        string         `json:"node_type"`
	LedgerEntryType string         `json:"ledger_entry_type"`
	LedgerIndex     string         `json:"ledger_index"`
	NewFields       map[string]any `json:"new_fields,omitempty"`
	FinalFields     map[string]any `json:"final_fields,omitempty"`
	PreviousFields  map[string]any `json:"previous_fields,omitempty"`
}

// Fields returns the node's effective final state: FinalFields for
// modified/deleted entries, NewFields for created ones.
func (n *AffectedNode) Fields() map[string]any {
	if n.NodeType == NodeCreated {
		return n.NewFields
	}
	return n.FinalFields
}

// TransactionMeta is the transaction's ledger-metadata diff.
type TransactionMeta struct {
	AffectedNodes     []AffectedNode `json:"affected_nodes"`
	TransactionResult string         `json:"transaction_result"`
	// NFTokenID is the convenience field added by the XLS-20 amendment.
	NFTokenID string `json:"nftoken_id,omitempty"`
}

// UnmarshalJSON accepts the XRPL wire shape, where each affected node is
// wrapped in a single-key object naming its node type.
func (m *TransactionMeta) UnmarshalJSON(data []byte) error {
	var raw struct {
		AffectedNodes []struct {
			CreatedNode  *rawAffectedNode `json:"CreatedNode"`
			ModifiedNode *rawAffectedNode `json:"ModifiedNode"`
			DeletedNode  *rawAffectedNode `json:"DeletedNode"`
		} `json:"AffectedNodes"`
		TransactionResult string `json:"TransactionResult"`
		NFTokenID         string `json:"nftoken_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.TransactionResult = raw.TransactionResult
	m.NFTokenID = raw.NFTokenID
	m.AffectedNodes = make([]AffectedNode, 0, len(raw.AffectedNodes))
	for _, w := range raw.AffectedNodes {
		switch {
		case w.CreatedNode != nil:
			m.AffectedNodes = append(m.AffectedNodes, w.CreatedNode.normalize(NodeCreated))
		case w.ModifiedNode != nil:
			m.AffectedNodes = append(m.AffectedNodes, w.ModifiedNode.normalize(NodeModified))
		case w.DeletedNode != nil:
			m.AffectedNodes = append(m.AffectedNodes, w.DeletedNode.normalize(NodeDeleted))
		}
	}
	return nil
}

type rawAffectedNode struct {
	LedgerEntryType string         `json:"LedgerEntryType"`
	LedgerIndex     string         `json:"LedgerIndex"`
	NewFields       map[string]any `json:"NewFields"`
	FinalFields     map[string]any `json:"FinalFields"`
	PreviousFields  map[string]any `json:"PreviousFields"`
}

func (r *rawAffectedNode) normalize(nodeType string) AffectedNode {
	return AffectedNode{
		NodeType:        nodeType,
		LedgerEntryType: r.LedgerEntryType,
		LedgerIndex:     r.LedgerIndex,
		NewFields:       r.NewFields,
		FinalFields:     r.FinalFields,
		PreviousFields:  r.PreviousFields,
	}
}

// FindNodes returns all affected nodes with the given ledger entry type,
// in diff order.
func (m *TransactionMeta) FindNodes(entryType string) []*AffectedNode {
	var nodes []*AffectedNode
	for i := range m.AffectedNodes {
		if m.AffectedNodes[i].LedgerEntryType == entryType {
			nodes = append(nodes, &m.AffectedNodes[i])
		}
	}
	return nodes
}

// HasNode reports whether the diff touches any entry of the given type.
func (m *TransactionMeta) HasNode(entryType string) bool {
	for i := range m.AffectedNodes {
		if m.AffectedNodes[i].LedgerEntryType == entryType {
			return true
		}
	}
	return false
}

// LedgerMessage is the callback-delivered tuple consumed by the pipeline:
// a transaction body, its metadata diff, and ledger provenance.
type LedgerMessage struct {
	Transaction  RawTransaction   `json:"transaction"`
	Meta         *TransactionMeta `json:"meta,omitempty"`
	LedgerIndex  uint64           `json:"ledger_index"`
	CloseTime    int64            `json:"close_time,omitempty"`
	EngineResult string           `json:"engine_result,omitempty"`
	Validated    bool             `json:"validated,omitempty"`
}

func (m LedgerMessage) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

func (m *LedgerMessage) UnmarshalBinary(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	if m.CloseTime == 0 {
		m.CloseTime = m.Transaction.Date
	}
	if m.EngineResult == "" && m.Meta != nil {
		m.EngineResult = m.Meta.TransactionResult
	}
	return nil
}

// DedupKey identifies a transaction within its ledger.
func (m LedgerMessage) DedupKey() string {
	return fmt.Sprintf("%s:%d", m.Transaction.Hash, m.LedgerIndex)
}

// CloseTimeUTC converts the ripple-epoch close time to wall-clock time.
func (m LedgerMessage) CloseTimeUTC() time.Time {
	return time.Unix(m.CloseTime+constant.RippleEpochOffset, 0).UTC()
}

// ActivityRecord is the canonical output unit of classification. Which of
// the optional fields are meaningful is fully determined by ActivityType.
type ActivityRecord struct {
	TransactionHash string            `json:"transactionHash"`
	LedgerIndex     uint64            `json:"ledgerIndex"`
	Timestamp       time.Time         `json:"timestamp"`
	ActivityType    enum.ActivityType `json:"activityType"`
	TokenID         string            `json:"tokenId,omitempty"`
	FromAddress     string            `json:"fromAddress,omitempty"`
	ToAddress       string            `json:"toAddress,omitempty"`
	PriceAmount     string            `json:"priceAmount,omitempty"`
	CurrencyCode    string            `json:"currencyCode,omitempty"`
	IssuerAddress   string            `json:"issuerAddress,omitempty"`
	Extra           map[string]any    `json:"extra,omitempty"`
}

func (r ActivityRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *ActivityRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

func (r ActivityRecord) DedupKey() string {
	return fmt.Sprintf("%s:%d", r.TransactionHash, r.LedgerIndex)
}

func (r ActivityRecord) String() string {
	return fmt.Sprintf("{Hash: %s, Ledger: %d, Type: %s, Token: %s, From: %s, To: %s, Price: %s %s}",
		r.TransactionHash, r.LedgerIndex, r.ActivityType, r.TokenID,
		r.FromAddress, r.ToAddress, r.PriceAmount, r.CurrencyCode)
}

// DataQuality is the unweighted quality assessment of a raw message.
type DataQuality struct {
	Completeness float64  `json:"completeness"`
	Validity     float64  `json:"validity"`
	Consistency  float64  `json:"consistency"`
	Overall      float64  `json:"overall"`
	Issues       []string `json:"issues,omitempty"`
}

// ClassificationResult is the scorer's verdict used for acceptance
// gating. Never persisted.
type ClassificationResult struct {
	ActivityType enum.ActivityType `json:"activityType"`
	Confidence   float64           `json:"confidence"`
	DataQuality  DataQuality       `json:"dataQuality"`
	IsRelevant   bool              `json:"isRelevant"`
}
