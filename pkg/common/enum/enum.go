package enum

type ActivityType string
type DedupOutcome string
type KVStoreType string
type StreamName string

const (
	ActivityMint           ActivityType = "MINT"
	ActivityBurn           ActivityType = "BURN"
	ActivityTransfer       ActivityType = "TRANSFER"
	ActivitySale           ActivityType = "SALE"
	ActivityOfferCreated   ActivityType = "OFFER_CREATED"
	ActivityOfferAccepted  ActivityType = "OFFER_ACCEPTED"
	ActivityOfferCancelled ActivityType = "OFFER_CANCELLED"
)

const (
	DedupOutcomeProcessed DedupOutcome = "processed"
	DedupOutcomeFailed    DedupOutcome = "failed"
)

const (
	KVStoreTypeBadger KVStoreType = "badger"
)

// Each stream is consumed independently; retry state never crosses streams.
const (
	StreamTransactions StreamName = "transactions"
	StreamTokenEvents  StreamName = "token_events"
	StreamLedgerEvents StreamName = "ledger_events"
)

func (s StreamName) IsValid() bool {
	return s == StreamTransactions || s == StreamTokenEvents || s == StreamLedgerEvents
}

func (a ActivityType) IsValid() bool {
	switch a {
	case ActivityMint, ActivityBurn, ActivityTransfer, ActivitySale,
		ActivityOfferCreated, ActivityOfferAccepted, ActivityOfferCancelled:
		return true
	}
	return false
}
