package infra

import "github.com/fystack/nft-activity-indexer/pkg/common/enum"

// Subjects of the ingest work queues. Each logical stream gets its own
// JetStream stream so retry state never bleeds across them.
const (
	SubjectTransactions = "nft.ingest.transactions"
	SubjectTokenEvents  = "nft.ingest.token_events"
	SubjectLedgerEvents = "nft.ingest.ledger_events"
)

var streamSubjects = map[enum.StreamName]string{
	enum.StreamTransactions: SubjectTransactions,
	enum.StreamTokenEvents:  SubjectTokenEvents,
	enum.StreamLedgerEvents: SubjectLedgerEvents,
}

// StreamSubject returns the subject a logical stream consumes from.
func StreamSubject(stream enum.StreamName) string {
	return streamSubjects[stream]
}

// JetStreamName returns the broker stream name for a logical stream.
func JetStreamName(stream enum.StreamName) string {
	return "nft_" + string(stream)
}
