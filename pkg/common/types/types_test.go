package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionMetaUnmarshal(t *testing.T) {
	raw := []byte(`{
		"AffectedNodes": [
			{"ModifiedNode": {
				"LedgerEntryType": "NFTokenPage",
				"LedgerIndex": "ABC123",
				"FinalFields": {"NFTokens": []},
				"PreviousFields": {"NFTokens": []}
			}},
			{"DeletedNode": {
				"LedgerEntryType": "NFTokenOffer",
				"LedgerIndex": "DEF456",
				"FinalFields": {"Amount": "5000000", "Owner": "rSeller"}
			}},
			{"CreatedNode": {
				"LedgerEntryType": "DirectoryNode",
				"LedgerIndex": "FFF000",
				"NewFields": {"Owner": "rSomeone"}
			}}
		],
		"TransactionResult": "tesSUCCESS"
	}`)

	var meta TransactionMeta
	require.NoError(t, meta.UnmarshalJSON(raw))

	assert.Equal(t, "tesSUCCESS", meta.TransactionResult)
	require.Len(t, meta.AffectedNodes, 3)
	assert.Equal(t, NodeModified, meta.AffectedNodes[0].NodeType)
	assert.Equal(t, EntryNFTokenPage, meta.AffectedNodes[0].LedgerEntryType)
	assert.Equal(t, NodeDeleted, meta.AffectedNodes[1].NodeType)
	assert.Equal(t, "rSeller", meta.AffectedNodes[1].FinalFields["Owner"])
	assert.Equal(t, NodeCreated, meta.AffectedNodes[2].NodeType)
	assert.Equal(t, "rSomeone", meta.AffectedNodes[2].Fields()["Owner"])

	assert.True(t, meta.HasNode(EntryNFTokenPage))
	assert.False(t, meta.HasNode("RippleState"))
	assert.Len(t, meta.FindNodes(EntryNFTokenOffer), 1)
}

func TestLedgerMessageUnmarshalBinary(t *testing.T) {
	raw := []byte(`{
		"transaction": {"hash": "AA11", "TransactionType": "NFTokenMint", "Account": "rMinter", "date": 700000000},
		"meta": {"AffectedNodes": [], "TransactionResult": "tesSUCCESS"},
		"ledger_index": 81000000,
		"validated": true
	}`)

	var msg LedgerMessage
	require.NoError(t, msg.UnmarshalBinary(raw))

	// close time and engine result fall back to transaction/meta fields
	assert.Equal(t, int64(700000000), msg.CloseTime)
	assert.Equal(t, "tesSUCCESS", msg.EngineResult)
	assert.Equal(t, "AA11:81000000", msg.DedupKey())
}

func TestCloseTimeUTC(t *testing.T) {
	msg := LedgerMessage{CloseTime: 0}
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), msg.CloseTimeUTC())

	msg.CloseTime = 86400
	assert.Equal(t, time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC), msg.CloseTimeUTC())
}

func TestParseAmountDrops(t *testing.T) {
	amt, err := ParseAmount([]byte(`"5000000"`))
	require.NoError(t, err)
	assert.True(t, amt.IsNative)
	assert.Equal(t, "XRP", amt.Currency)
	assert.Equal(t, "5000000", amt.Value)
	assert.Empty(t, amt.Issuer)
}

func TestParseAmountIssued(t *testing.T) {
	amt, err := ParseAmount([]byte(`{"value": "12.5", "currency": "USD", "issuer": "rIssuer"}`))
	require.NoError(t, err)
	assert.False(t, amt.IsNative)
	assert.Equal(t, "USD", amt.Currency)
	assert.Equal(t, "12.5", amt.Value)
	assert.Equal(t, "rIssuer", amt.Issuer)
}

func TestParseAmountInvalid(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(`"not-a-number"`),
		[]byte(`"-100"`),
		[]byte(`{"currency": "USD"}`),
		[]byte(`[1, 2]`),
	}
	for _, raw := range cases {
		_, err := ParseAmount(raw)
		assert.Error(t, err, "input %s", raw)
	}
}

func TestParseAmountValueFromDiff(t *testing.T) {
	amt, err := ParseAmountValue("5000000")
	require.NoError(t, err)
	assert.True(t, amt.IsNative)

	amt, err = ParseAmountValue(map[string]any{"value": "3", "currency": "EUR", "issuer": "rI"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", amt.Currency)

	_, err = ParseAmountValue(42.0)
	assert.Error(t, err)
}

func TestDecodeCurrency(t *testing.T) {
	// 40-char hex for "SOLO" padded with zeros
	hexCode := "534F4C4F00000000000000000000000000000000"
	assert.Equal(t, "SOLO", DecodeCurrency(hexCode))

	// plain three-letter codes pass through upper-cased
	assert.Equal(t, "USD", DecodeCurrency("usd"))

	// non-printable payloads are kept as raw hex
	raw := "0000000000000000000000000000000000000001"
	assert.Equal(t, raw, DecodeCurrency(raw))
}
