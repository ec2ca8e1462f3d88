package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/fystack/nft-activity-indexer/internal/alerting"
	"github.com/fystack/nft-activity-indexer/internal/analytics"
	"github.com/fystack/nft-activity-indexer/internal/classifier"
	"github.com/fystack/nft-activity-indexer/internal/consumer"
	"github.com/fystack/nft-activity-indexer/internal/dedup"
	"github.com/fystack/nft-activity-indexer/internal/pipeline"
	"github.com/fystack/nft-activity-indexer/internal/scorer"
	"github.com/fystack/nft-activity-indexer/internal/xrpl"
	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
	"github.com/fystack/nft-activity-indexer/pkg/infra"
	"github.com/fystack/nft-activity-indexer/pkg/kvstore"
	"github.com/fystack/nft-activity-indexer/pkg/model"
	"github.com/fystack/nft-activity-indexer/pkg/store/deadletterstore"
)

type CLI struct {
	Ingest IngestCmd `cmd:"" help:"Run the NFT activity ingestor."`
	DLQ    DLQCmd    `cmd:"" name:"dlq" help:"Inspect and manage dead-lettered messages."`
}

type IngestCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type DLQCmd struct {
	List    DLQListCmd    `cmd:"" help:"List dead-lettered messages for a stream."`
	Resolve DLQResolveCmd `cmd:"" help:"Mark a dead-lettered message resolved."`
	Delete  DLQDeleteCmd  `cmd:"" help:"Delete a dead-lettered message."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ingestor"),
		kong.Description("XRPL NFT activity ingestion pipeline."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

func (c *IngestCmd) Run() error {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{Level: level})
	logger.Info("Config loaded", "environment", cfg.Environment)

	app, err := buildApp(&cfg)
	if err != nil {
		return err
	}

	if err := app.Start(); err != nil {
		app.Shutdown()
		return err
	}

	logger.Info("Ingestor is running... Press Ctrl+C to stop")
	waitForShutdown()
	app.Shutdown()
	logger.Info("Ingestor stopped")
	return nil
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

// ---- dlq subcommands ----

type DLQListCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Stream     string `help:"Stream name (transactions, token_events, ledger_events)." required:""`
	All        bool   `help:"Include resolved messages." name:"all"`
}

func (c *DLQListCmd) Run() error {
	store, cleanup, err := openDeadLetterStore(c.ConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()

	stream := enum.StreamName(c.Stream)
	if !stream.IsValid() {
		return fmt.Errorf("unknown stream %q", c.Stream)
	}

	messages, err := store.List(stream)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if msg.Resolved && !c.All {
			continue
		}
		status := "open"
		if msg.Resolved {
			status = "resolved"
		}
		fmt.Printf("%s\t%s\tattempts=%d\t%s\t%s\n",
			msg.Key, status, msg.Attempts, msg.Timestamp.Format(time.RFC3339), msg.Error)
	}
	fmt.Printf("%d message(s)\n", len(messages))
	return nil
}

type DLQResolveCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Stream     string `help:"Stream name." required:""`
	Key        string `help:"Message key." required:""`
}

func (c *DLQResolveCmd) Run() error {
	store, cleanup, err := openDeadLetterStore(c.ConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()
	return store.MarkResolved(enum.StreamName(c.Stream), c.Key)
}

type DLQDeleteCmd struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Stream     string `help:"Stream name." required:""`
	Key        string `help:"Message key." required:""`
}

func (c *DLQDeleteCmd) Run() error {
	store, cleanup, err := openDeadLetterStore(c.ConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()
	return store.Delete(enum.StreamName(c.Stream), c.Key)
}

func openDeadLetterStore(configPath string) (deadletterstore.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(&logger.Options{Level: slog.LevelWarn})

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, nil, err
	}
	return deadletterstore.New(kv), func() { kv.Close() }, nil
}

// ---- application wiring ----

type app struct {
	cfg *config.Config

	kv          infra.KVStore
	dedupStore  *dedup.Store
	accumulator *pipeline.Accumulator
	sink        *analytics.Sink
	consumers   []*consumer.Consumer
	xrplClient  *xrpl.Client
	httpServer  *httpServer
}

func buildApp(cfg *config.Config) (*app, error) {
	nc, err := infra.GetNATSConnection(cfg.NATS, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	db, err := infra.NewDBConnection(cfg.DB.URL, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	err = db.AutoMigrate(
		&model.Collection{},
		&model.NFToken{},
		&model.NFTActivity{},
		&model.LedgerWatermark{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}

	committer := pipeline.NewGormCommitter(db, cfg.Pipeline.CommitChunkSize, cfg.Pipeline.WatermarkStream)
	watermark, err := committer.Watermark(context.Background())
	if err != nil {
		return nil, err
	}
	logger.Info("Resuming after last committed ledger", "ledger_index", watermark)

	var sink *analytics.Sink
	if cfg.ClickHouse != nil && cfg.ClickHouse.Address != "" {
		conn, err := analytics.Connect(cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		sink = analytics.NewSink(conn, cfg.ClickHouse.BatchSize, cfg.ClickHouse.Flush)
	}

	alertManager, err := infra.NewJetStreamQueueManager("nft_alerts", []string{"nft.activity.>"}, nc)
	if err != nil {
		return nil, err
	}
	publisher := alerting.NewNATSPublisher(alertManager.Publisher(), alerting.CommittedSubject)

	dedupStore := dedup.New(cfg.Dedup.MaxSize, cfg.Dedup.TTL)
	accumulator := pipeline.NewAccumulator(cfg.Pipeline, committer, dedupStore, publisher, sinkOrNil(sink))
	processor := pipeline.NewProcessor(dedupStore, scorer.New(cfg.Scorer), classifier.New(), accumulator)
	deadLetters := deadletterstore.New(kv)

	dlqManager, err := infra.NewJetStreamQueueManager("nft_dlq", []string{consumer.DLQSubject}, nc)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		kv:          kv,
		dedupStore:  dedupStore,
		accumulator: accumulator,
		sink:        sink,
	}

	streams := []enum.StreamName{enum.StreamTransactions, enum.StreamTokenEvents, enum.StreamLedgerEvents}
	for _, stream := range streams {
		manager, err := infra.NewJetStreamQueueManager(
			infra.JetStreamName(stream), []string{infra.StreamSubject(stream)}, nc)
		if err != nil {
			return nil, err
		}
		queue, err := manager.NewConsumer(
			"ingest_"+string(stream), infra.StreamSubject(stream), cfg.Consumer.MaxRetryAttempts)
		if err != nil {
			return nil, err
		}
		a.consumers = append(a.consumers,
			consumer.New(stream, queue, processor, deadLetters, dlqManager.Publisher(), cfg.Consumer))
	}

	if cfg.XRPL.URL != "" {
		txManager, err := infra.NewJetStreamQueueManager(
			infra.JetStreamName(enum.StreamTransactions), []string{infra.StreamSubject(enum.StreamTransactions)}, nc)
		if err != nil {
			return nil, err
		}
		txQueue := txManager.Publisher()
		a.xrplClient = xrpl.NewClient(cfg.XRPL.URL, xrpl.DefaultClientConfig(), func(msg *types.LedgerMessage) {
			data, err := msg.MarshalBinary()
			if err != nil {
				logger.Error("Marshal ledger message failed", "hash", msg.Transaction.Hash, "error", err)
				return
			}
			err = txQueue.Enqueue(infra.SubjectTransactions, data, &infra.EnqueueOptions{
				IdempotentKey: msg.DedupKey(),
			})
			if err != nil {
				logger.Error("Publish ledger message failed", "key", msg.DedupKey(), "error", err)
			}
		})
	}

	a.httpServer = startHTTPServer(cfg.HTTP.Port, accumulator)
	return a, nil
}

// sinkOrNil keeps a nil *Sink from becoming a non-nil interface.
func sinkOrNil(s *analytics.Sink) pipeline.AnalyticsSink {
	if s == nil {
		return nil
	}
	return s
}

func (a *app) Start() error {
	for _, c := range a.consumers {
		if err := c.Start(); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
	}
	if a.xrplClient != nil {
		if err := a.xrplClient.Start(context.Background()); err != nil {
			return fmt.Errorf("start xrpl client: %w", err)
		}
	}
	return nil
}

// Shutdown stops intake first, then drains the batch, so nothing
// accepted is lost.
func (a *app) Shutdown() {
	if a.xrplClient != nil {
		a.xrplClient.Close()
	}
	for _, c := range a.consumers {
		c.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errs := &types.MultiError{}
	if err := a.accumulator.Flush(ctx); err != nil {
		errs.Add(fmt.Errorf("final flush: %w", err))
	}
	a.accumulator.Stop()

	if a.sink != nil {
		a.sink.Close()
	}
	a.dedupStore.Stop()
	if a.httpServer != nil {
		a.httpServer.Stop(ctx)
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			errs.Add(fmt.Errorf("close kvstore: %w", err))
		}
	}

	if !errs.IsEmpty() {
		logger.Error("Shutdown completed with errors", "error", errs.Error())
	}
}
