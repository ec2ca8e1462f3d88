package xrpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTransactionMessage(t *testing.T) {
	data := []byte(`{
		"type": "transaction",
		"engine_result": "tesSUCCESS",
		"ledger_index": 81000001,
		"validated": true,
		"transaction": {
			"hash": "ABC123",
			"TransactionType": "NFTokenMint",
			"Account": "rSender",
			"date": 700000000
		},
		"meta": {
			"TransactionResult": "tesSUCCESS",
			"AffectedNodes": [
				{"ModifiedNode": {"LedgerEntryType": "NFTokenPage", "LedgerIndex": "PAGE01"}}
			]
		}
	}`)

	msg, err := Normalize(data)
	require.NoError(t, err)

	assert.Equal(t, "ABC123", msg.Transaction.Hash)
	assert.Equal(t, uint64(81000001), msg.LedgerIndex)
	assert.Equal(t, "tesSUCCESS", msg.EngineResult)
	assert.True(t, msg.Validated)
	assert.Equal(t, int64(700000000), msg.CloseTime, "close time falls back to the body date")

	require.NotNil(t, msg.Meta)
	require.Len(t, msg.Meta.AffectedNodes, 1)
	assert.Equal(t, "NFTokenPage", msg.Meta.AffectedNodes[0].LedgerEntryType)
}

func TestNormalizeEngineResultFallsBackToMeta(t *testing.T) {
	data := []byte(`{
		"type": "transaction",
		"transaction": {"hash": "ABC123", "TransactionType": "Payment", "Account": "rS"},
		"meta": {"TransactionResult": "tecDIR_FULL", "AffectedNodes": []}
	}`)

	msg, err := Normalize(data)
	require.NoError(t, err)
	assert.Equal(t, "tecDIR_FULL", msg.EngineResult)
}

func TestNormalizeRejectsHashlessMessages(t *testing.T) {
	_, err := Normalize([]byte(`{"type": "transaction", "transaction": {}}`))
	assert.Error(t, err)

	_, err = Normalize([]byte(`not json`))
	assert.Error(t, err)
}
