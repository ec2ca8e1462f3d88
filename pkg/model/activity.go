package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
)

// NFTActivity is one committed activity row. The (hash, ledger index)
// unique constraint is the durable at-most-once guard behind the
// in-memory dedup store.
type NFTActivity struct {
	BaseModel
	TransactionHash string            `gorm:"not null;type:varchar(64);uniqueIndex:idx_activity_identity" json:"transaction_hash"`
	LedgerIndex     uint64            `gorm:"not null;uniqueIndex:idx_activity_identity"                  json:"ledger_index"`
	ActivityType    enum.ActivityType `gorm:"not null;type:varchar(32);index"                             json:"activity_type"`
	NFTokenID       string            `gorm:"type:uuid;index"                                             json:"nftoken_id"`
	TokenID         string            `gorm:"type:varchar(64);index"                                      json:"token_id"`
	FromAddress     string            `gorm:"type:varchar(64)"                                            json:"from_address"`
	ToAddress       string            `gorm:"type:varchar(64)"                                            json:"to_address"`
	PriceAmount     string            `gorm:"type:varchar(64)"                                            json:"price_amount"`
	CurrencyCode    string            `gorm:"type:varchar(64)"                                            json:"currency_code"`
	IssuerAddress   string            `gorm:"type:varchar(64)"                                            json:"issuer_address"`
	Extra           datatypes.JSON    `gorm:"type:jsonb"                                                  json:"extra"`
	Timestamp       time.Time         `gorm:"index"                                                       json:"timestamp"`
}
