package classifier

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fystack/nft-activity-indexer/pkg/common/constant"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// ErrParse marks malformed input the classifier cannot reasonably
// interpret. The offending transaction is skipped and logged; the stream
// continues.
var ErrParse = errors.New("parse transaction")

const sellOfferFlag = constant.NFTokenSellOfferFlag

// XRPL transaction type tags.
const (
	TxNFTokenMint        = "NFTokenMint"
	TxNFTokenBurn        = "NFTokenBurn"
	TxNFTokenCreateOffer = "NFTokenCreateOffer"
	TxNFTokenAcceptOffer = "NFTokenAcceptOffer"
	TxNFTokenCancelOffer = "NFTokenCancelOffer"
	TxPayment            = "Payment"
)

// AllowedTypes is the NFT-native allow-list. Payment is handled
// separately: it is only relevant when its diff touches a token page.
var AllowedTypes = map[string]bool{
	TxNFTokenMint:        true,
	TxNFTokenBurn:        true,
	TxNFTokenCreateOffer: true,
	TxNFTokenAcceptOffer: true,
	TxNFTokenCancelOffer: true,
}

// DirectTypes is the subset whose type tag alone is a strong relevance
// signal, used by the confidence scorer.
var DirectTypes = map[string]bool{
	TxNFTokenMint:        true,
	TxNFTokenBurn:        true,
	TxNFTokenCreateOffer: true,
	TxNFTokenAcceptOffer: true,
}

type Classifier struct {
	logger *slog.Logger
}

func New() *Classifier {
	return &Classifier{logger: logger.With("component", "classifier")}
}

// Classify decides whether the transaction is NFT-relevant and extracts a
// typed activity record from the body and the metadata diff. Returns
// (nil, nil) for irrelevant transactions.
func (c *Classifier) Classify(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrParse)
	}
	tx := &msg.Transaction
	if tx.Hash == "" || tx.TransactionType == "" {
		return nil, fmt.Errorf("%w: missing hash or transaction type", ErrParse)
	}

	switch tx.TransactionType {
	case TxNFTokenMint:
		return c.classifyMint(msg)
	case TxNFTokenBurn:
		return c.classifyBurn(msg)
	case TxNFTokenCreateOffer:
		return c.classifyCreateOffer(msg)
	case TxNFTokenAcceptOffer:
		return c.classifyAcceptOffer(msg)
	case TxNFTokenCancelOffer:
		return c.classifyCancelOffer(msg)
	case TxPayment:
		if msg.Meta != nil && msg.Meta.HasNode(types.EntryNFTokenPage) {
			return c.classifyTokenPayment(msg)
		}
		return nil, nil
	default:
		if AllowedTypes[tx.TransactionType] {
			// allow-list grew upstream before this build learned the type
			c.logger.Warn("Skipping unhandled NFT transaction type",
				"type", tx.TransactionType, "hash", tx.Hash)
		}
		return nil, nil
	}
}

func (c *Classifier) newRecord(msg *types.LedgerMessage, activity enum.ActivityType) *types.ActivityRecord {
	return &types.ActivityRecord{
		TransactionHash: msg.Transaction.Hash,
		LedgerIndex:     msg.LedgerIndex,
		Timestamp:       msg.CloseTimeUTC(),
		ActivityType:    activity,
		Extra:           map[string]any{},
	}
}

func (c *Classifier) classifyMint(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	record := c.newRecord(msg, enum.ActivityMint)
	record.ToAddress = tx.Account

	issuer := tx.Issuer
	if issuer == "" {
		issuer = tx.Account
	}
	record.Extra["issuer"] = issuer
	record.Extra["taxon"] = tx.NFTokenTaxon
	if tx.TransferFee > 0 {
		record.Extra["transfer_fee"] = tx.TransferFee
	}

	// The token id is not on the transaction body. The convenience meta
	// field is used when present; the page diff is the fallback source.
	if msg.Meta != nil {
		if msg.Meta.NFTokenID != "" {
			record.TokenID = msg.Meta.NFTokenID
		} else {
			added, _ := pageDiff(msg.Meta)
			if len(added) == 1 {
				record.TokenID = added[0]
			} else if len(added) > 1 {
				c.logger.Warn("Mint diff added more than one token, leaving token id unset",
					"hash", tx.Hash, "added", len(added))
			}
		}
	}

	uri := tx.URI
	if uri == "" && record.TokenID != "" && msg.Meta != nil {
		for _, node := range msg.Meta.FindNodes(types.EntryNFTokenPage) {
			if u := pageTokenURI(node.Fields(), record.TokenID); u != "" {
				uri = u
				break
			}
		}
	}
	if uri != "" {
		decoded, warn := decodeHexURI(uri)
		record.Extra["uri"] = decoded
		if warn {
			record.Extra["uri_raw"] = uri
			record.Extra["uri_decode_warning"] = true
		}
	}

	return record, nil
}

func (c *Classifier) classifyBurn(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	record := c.newRecord(msg, enum.ActivityBurn)

	owner := tx.Owner
	if owner == "" {
		owner = tx.Account
	}
	record.FromAddress = owner

	_, removed := pageDiff(msg.Meta)
	switch {
	case len(removed) == 1:
		record.TokenID = removed[0]
	case tx.NFTokenID != "":
		// a fully consumed page yields no diff; the body carries the id
		record.TokenID = tx.NFTokenID
	}
	if record.TokenID == "" {
		return nil, fmt.Errorf("%w: burn %s has no token id in diff or body", ErrParse, tx.Hash)
	}

	return record, nil
}

func (c *Classifier) classifyCreateOffer(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	record := c.newRecord(msg, enum.ActivityOfferCreated)
	record.TokenID = tx.NFTokenID
	record.FromAddress = tx.Account

	amount, err := types.ParseAmount(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: create offer %s: %v", ErrParse, tx.Hash, err)
	}
	applyAmount(record, amount)

	if tx.Flags&sellOfferFlag != 0 {
		record.Extra["offer_kind"] = "sell"
	} else {
		record.Extra["offer_kind"] = "buy"
		if tx.Owner != "" {
			record.Extra["owner"] = tx.Owner
		}
	}
	if tx.Destination != "" {
		record.Extra["destination"] = tx.Destination
	}

	return record, nil
}

// classifyAcceptOffer recovers parties and price from the deleted offer
// node(s): neither is on the transaction body.
func (c *Classifier) classifyAcceptOffer(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	offers := deletedOffers(msg.Meta)
	if len(offers) == 0 {
		if msg.Meta == nil {
			// without metadata only body-derived fields can be trusted
			record := c.newRecord(msg, enum.ActivityOfferAccepted)
			record.ToAddress = tx.Account
			return record, nil
		}
		return nil, fmt.Errorf("%w: accept offer %s deleted no offer node", ErrParse, tx.Hash)
	}

	record := c.newRecord(msg, enum.ActivitySale)

	var sell, buy *deletedOffer
	for i := range offers {
		if offers[i].IsSell {
			sell = &offers[i]
		} else {
			buy = &offers[i]
		}
	}

	var priceSource *deletedOffer
	switch {
	case sell != nil && buy != nil:
		// brokered: both parties are offer owners, the buy side carries
		// what the buyer actually paid
		record.FromAddress = sell.Owner
		record.ToAddress = buy.Owner
		record.TokenID = sell.TokenID
		priceSource = buy
		if len(tx.NFTokenBrokerFee) > 0 {
			if fee, err := types.ParseAmount(tx.NFTokenBrokerFee); err == nil {
				record.Extra["broker_fee"] = fee.Value
				record.Extra["broker_fee_currency"] = fee.Currency
			}
		}
	case sell != nil:
		// sell offer accepted: owner sells, sender buys
		record.FromAddress = sell.Owner
		record.ToAddress = tx.Account
		record.TokenID = sell.TokenID
		priceSource = sell
	default:
		// buy offer accepted: sender sells, owner buys
		record.FromAddress = tx.Account
		record.ToAddress = buy.Owner
		record.TokenID = buy.TokenID
		priceSource = buy
	}

	if priceSource.Amount != nil {
		amount, err := types.ParseAmountValue(priceSource.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: accept offer %s amount: %v", ErrParse, tx.Hash, err)
		}
		applyAmount(record, amount)
		if isZeroAmount(amount.Value) {
			record.ActivityType = enum.ActivityTransfer
		}
	}

	if record.TokenID == "" && tx.NFTokenID != "" {
		record.TokenID = tx.NFTokenID
	}

	return record, nil
}

func (c *Classifier) classifyCancelOffer(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	if len(tx.NFTokenOffers) == 0 {
		return nil, fmt.Errorf("%w: cancel offer %s names no offers", ErrParse, tx.Hash)
	}

	record := c.newRecord(msg, enum.ActivityOfferCancelled)
	record.FromAddress = tx.Account
	record.Extra["cancelled_offer_ids"] = tx.NFTokenOffers
	return record, nil
}

// classifyTokenPayment handles a generic payment whose diff moves a token
// between pages: reclassified as a sale.
func (c *Classifier) classifyTokenPayment(msg *types.LedgerMessage) (*types.ActivityRecord, error) {
	tx := &msg.Transaction
	record := c.newRecord(msg, enum.ActivitySale)
	record.FromAddress = tx.Account
	record.ToAddress = tx.Destination

	added, _ := pageDiff(msg.Meta)
	if len(added) == 1 {
		record.TokenID = added[0]
	}

	if len(tx.Amount) > 0 {
		amount, err := types.ParseAmount(tx.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: payment %s amount: %v", ErrParse, tx.Hash, err)
		}
		applyAmount(record, amount)
	}

	return record, nil
}

func applyAmount(record *types.ActivityRecord, amount *types.ParsedAmount) {
	record.PriceAmount = amount.Value
	record.CurrencyCode = amount.Currency
	record.IssuerAddress = amount.Issuer
}

func isZeroAmount(value string) bool {
	d, err := decimal.NewFromString(value)
	return err == nil && d.IsZero()
}

// decodeHexURI converts a hex-encoded URI to UTF-8. When the bytes do not
// decode cleanly the raw hex is kept and the caller flags a warning.
func decodeHexURI(raw string) (string, bool) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return raw, true
	}
	s := string(b)
	if !utf8.ValidString(s) || strings.ContainsRune(s, utf8.RuneError) {
		return raw, true
	}
	return s, false
}
