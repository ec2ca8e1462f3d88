package model

// LedgerWatermark records the last-committed ledger index per stream.
// Read once at startup to resume, written once per successful flush.
type LedgerWatermark struct {
	BaseModel
	Stream      string `gorm:"not null;type:varchar(64);uniqueIndex:idx_watermark_stream" json:"stream"`
	LedgerIndex uint64 `gorm:"not null"                                                   json:"ledger_index"`
}
