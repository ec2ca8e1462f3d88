package constant

import "time"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// XRPL close times are seconds since 2000-01-01T00:00:00Z,
	// not the unix epoch.
	RippleEpochOffset = 946684800

	// tfSellNFToken on NFTokenCreateOffer / lsfSellNFToken on NFTokenOffer
	// ledger entries. Set means the offer owner is selling the token.
	NFTokenSellOfferFlag = 0x00000001

	WatermarkStreamDefault = "xrpl_nft"

	DeadLetterKeyPrefix = "dead_letter"
)

const (
	DefaultMaxBatchSize    = 100
	DefaultFlushInterval   = 5 * time.Second
	DefaultCommitChunkSize = 50

	DefaultDedupMaxSize = 10000
	DefaultDedupTTL     = time.Hour

	DefaultMaxRetryAttempts = 3
	DefaultRetryBaseDelay   = 5 * time.Second
	DefaultMaxRetryDelay    = 5 * time.Minute

	DefaultMinConfidence = 0.8
	DefaultMinQuality    = 0.7
)
