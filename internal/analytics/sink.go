package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

const insertActivities = `INSERT INTO nft_activities
	(transaction_hash, ledger_index, activity_type, token_id,
	 from_address, to_address, price_amount, currency_code,
	 issuer_address, timestamp)`

// Sink streams committed activities into ClickHouse for analytical
// queries. It is strictly best-effort: rows ride behind the durable
// commit and a sink failure only costs analytics, never correctness.
type Sink struct {
	conn      driver.Conn
	batchSize int
	logger    *slog.Logger

	mu    sync.Mutex
	rows  []types.ActivityRecord
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	flush time.Duration
}

func Connect(cfg *config.ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", cfg.Address, err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping clickhouse %s: %w", cfg.Address, err)
	}
	return conn, nil
}

func NewSink(conn driver.Conn, batchSize int, flushInterval time.Duration) *Sink {
	s := &Sink{
		conn:      conn,
		batchSize: batchSize,
		flush:     flushInterval,
		logger:    logger.With("component", "analytics"),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

// Enqueue buffers committed records. Never blocks on the database.
func (s *Sink) Enqueue(records []types.ActivityRecord) {
	s.mu.Lock()
	s.rows = append(s.rows, records...)
	full := len(s.rows) >= s.batchSize
	s.mu.Unlock()

	if full {
		go s.Flush(context.Background())
	}
}

// Flush sends the buffered rows. Failed rows are dropped with a log
// line; analytics lag is recoverable from the primary store.
func (s *Sink) Flush(ctx context.Context) {
	s.mu.Lock()
	rows := s.rows
	s.rows = nil
	s.mu.Unlock()
	if len(rows) == 0 {
		return
	}

	if err := s.send(ctx, rows); err != nil {
		s.logger.Warn("Analytics insert failed, rows dropped", "rows", len(rows), "error", err)
		return
	}
	s.logger.Debug("Analytics batch sent", "rows", len(rows))
}

func (s *Sink) send(ctx context.Context, rows []types.ActivityRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, insertActivities)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		err := batch.Append(
			r.TransactionHash,
			r.LedgerIndex,
			string(r.ActivityType),
			r.TokenID,
			r.FromAddress,
			r.ToAddress,
			r.PriceAmount,
			r.CurrencyCode,
			r.IssuerAddress,
			r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append row %s: %w", r.TransactionHash, err)
		}
	}
	return batch.Send()
}

// Close flushes the tail and stops the ticker.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
		s.Flush(context.Background())
	})
}

func (s *Sink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.Flush(context.Background())
		}
	}
}
