package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/model"
)

var (
	ErrDuplicate        = errors.New("duplicate row")
	ErrRelationNotExist = errors.New("relation does not exist")
)

// Class 23 integrity constraint violations.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// CommitResult summarizes one successful flush.
type CommitResult struct {
	Records        int
	MaxLedgerIndex uint64
}

// Committer durably persists a batch of classified activities.
type Committer interface {
	Commit(ctx context.Context, records []types.ActivityRecord) (*CommitResult, error)
}

// GormCommitter writes each batch in a single database transaction:
// collections first, then token ownership mutations, then activity rows,
// then the watermark. Either the whole flush lands or none of it does.
type GormCommitter struct {
	db        *gorm.DB
	chunkSize int
	stream    string
	logger    *slog.Logger
}

func NewGormCommitter(db *gorm.DB, chunkSize int, stream string) *GormCommitter {
	return &GormCommitter{
		db:        db,
		chunkSize: chunkSize,
		stream:    stream,
		logger:    logger.With("component", "committer"),
	}
}

func (c *GormCommitter) Commit(ctx context.Context, records []types.ActivityRecord) (*CommitResult, error) {
	if len(records) == 0 {
		return &CommitResult{}, nil
	}

	ordered := sortedByLedger(records)
	maxLedger := maxLedgerIndex(ordered)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collections, err := c.resolveCollections(tx, ordered)
		if err != nil {
			return err
		}
		tokenIDs, err := c.applyTokenMutations(tx, ordered, collections)
		if err != nil {
			return err
		}
		if err := c.insertActivities(tx, ordered, tokenIDs); err != nil {
			return err
		}
		return c.advanceWatermark(tx, maxLedger)
	})
	if err != nil {
		return nil, wrapDBError(err)
	}

	c.logger.Info("Committed activity batch", "records", len(ordered), "max_ledger", maxLedger)
	return &CommitResult{Records: len(ordered), MaxLedgerIndex: maxLedger}, nil
}

// resolveCollections maps each mint's (issuer, taxon) identity to a
// collection row id, creating rows for identities seen for the first
// time. The in-flush map keeps one batch from racing itself.
func (c *GormCommitter) resolveCollections(tx *gorm.DB, records []types.ActivityRecord) (map[model.CollectionKey]string, error) {
	resolved := make(map[model.CollectionKey]string)

	for i := range records {
		key, ok := collectionKeyOf(&records[i])
		if !ok {
			continue
		}
		if _, done := resolved[key]; done {
			continue
		}

		var collection model.Collection
		err := tx.Where("issuer = ? AND taxon = ?", key.Issuer, key.Taxon).First(&collection).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			collection = model.Collection{Issuer: key.Issuer, Taxon: key.Taxon}
			if err := tx.Create(&collection).Error; err != nil {
				return nil, fmt.Errorf("create collection %s/%d: %w", key.Issuer, key.Taxon, err)
			}
		default:
			return nil, fmt.Errorf("lookup collection %s/%d: %w", key.Issuer, key.Taxon, err)
		}
		resolved[key] = collection.ID
	}
	return resolved, nil
}

// applyTokenMutations replays ownership changes in ledger order and
// returns the token row ids touched by the batch.
func (c *GormCommitter) applyTokenMutations(tx *gorm.DB, records []types.ActivityRecord, collections map[model.CollectionKey]string) (map[string]string, error) {
	touched := make(map[string]bool)

	for i := range records {
		record := &records[i]
		if record.TokenID == "" {
			continue
		}

		switch record.ActivityType {
		case enum.ActivityMint:
			token := model.NFToken{
				TokenID:           record.TokenID,
				Owner:             record.ToAddress,
				URI:               extraString(record.Extra, "uri"),
				MintedLedgerIndex: record.LedgerIndex,
			}
			if key, ok := collectionKeyOf(record); ok {
				token.CollectionID = collections[key]
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "token_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"owner", "collection_id", "uri", "minted_ledger_index"}),
			}).Create(&token).Error
			if err != nil {
				return nil, fmt.Errorf("upsert minted token %s: %w", record.TokenID, err)
			}

		case enum.ActivityTransfer, enum.ActivitySale:
			// tokens minted before indexing began get a row on first sight
			token := model.NFToken{TokenID: record.TokenID, Owner: record.ToAddress}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "token_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"owner"}),
			}).Create(&token).Error
			if err != nil {
				return nil, fmt.Errorf("update owner of token %s: %w", record.TokenID, err)
			}

		case enum.ActivityBurn:
			token := model.NFToken{TokenID: record.TokenID, Owner: record.FromAddress, Burned: true}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "token_id"}},
				DoUpdates: clause.Assignments(map[string]any{"burned": true}),
			}).Create(&token).Error
			if err != nil {
				return nil, fmt.Errorf("mark token %s burned: %w", record.TokenID, err)
			}

		default:
			// offers do not move ownership
			continue
		}
		touched[record.TokenID] = true
	}

	return c.lookupTokenIDs(tx, touched)
}

func (c *GormCommitter) lookupTokenIDs(tx *gorm.DB, touched map[string]bool) (map[string]string, error) {
	ids := make(map[string]string, len(touched))
	if len(touched) == 0 {
		return ids, nil
	}

	keys := make([]string, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}

	var tokens []model.NFToken
	if err := tx.Where("token_id IN ?", keys).Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("lookup token rows: %w", err)
	}
	for i := range tokens {
		ids[tokens[i].TokenID] = tokens[i].ID
	}
	return ids, nil
}

// insertActivities bulk-inserts the batch in chunks inside the open
// transaction. Conflicts on (hash, ledger index) are redeliveries the
// dedup store already forgot; they are skipped, not failed.
func (c *GormCommitter) insertActivities(tx *gorm.DB, records []types.ActivityRecord, tokenIDs map[string]string) error {
	rows := make([]model.NFTActivity, 0, len(records))
	for i := range records {
		row, err := buildActivityRow(&records[i], tokenIDs)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_hash"}, {Name: "ledger_index"}},
		DoNothing: true,
	}).CreateInBatches(rows, c.chunkSize).Error
	if err != nil {
		return fmt.Errorf("insert activities: %w", err)
	}
	return nil
}

// advanceWatermark records the batch's high ledger index, never moving
// backwards.
func (c *GormCommitter) advanceWatermark(tx *gorm.DB, ledgerIndex uint64) error {
	mark := model.LedgerWatermark{Stream: c.stream, LedgerIndex: ledgerIndex}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stream"}},
		DoUpdates: clause.Assignments(map[string]any{
			"ledger_index": gorm.Expr("GREATEST(ledger_watermarks.ledger_index, EXCLUDED.ledger_index)"),
		}),
	}).Create(&mark).Error
	if err != nil {
		return fmt.Errorf("advance watermark %s: %w", c.stream, err)
	}
	return nil
}

// Watermark reads the last committed ledger index for this stream.
// Returns zero when no flush has landed yet.
func (c *GormCommitter) Watermark(ctx context.Context) (uint64, error) {
	var mark model.LedgerWatermark
	err := c.db.WithContext(ctx).Where("stream = ?", c.stream).First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark %s: %w", c.stream, err)
	}
	return mark.LedgerIndex, nil
}

// wrapDBError maps integrity-constraint violations onto sentinel errors
// callers can test with errors.Is.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %v", ErrRelationNotExist, err)
		}
	}
	return err
}
