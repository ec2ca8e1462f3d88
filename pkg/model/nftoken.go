package model

// NFToken is one tracked token. Ownership mutates on transfer and sale;
// burn is recorded rather than deleted so activity history stays intact.
type NFToken struct {
	BaseModel
	TokenID           string `gorm:"not null;type:varchar(64);uniqueIndex:idx_nftoken_token_id" json:"token_id"`
	CollectionID      string `gorm:"type:uuid;index"                                            json:"collection_id"`
	Owner             string `gorm:"type:varchar(64);index"                                     json:"owner"`
	URI               string `gorm:"type:text"                                                  json:"uri"`
	Burned            bool   `gorm:"not null;default:false"                                     json:"burned"`
	MintedLedgerIndex uint64 `json:"minted_ledger_index"`
}
