package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"

	"github.com/fystack/nft-activity-indexer/pkg/common/constant"
	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
)

var validate = validator.New()

type Config struct {
	Environment string            `yaml:"environment" validate:"required,oneof=production development"`
	NATS        NATSConfig        `yaml:"nats"        validate:"required"`
	DB          DBConfig          `yaml:"db"          validate:"required"`
	ClickHouse  *ClickHouseConfig `yaml:"clickhouse,omitempty"`
	KVStore     KVStoreConfig     `yaml:"kvstore"`
	XRPL        XRPLConfig        `yaml:"xrpl"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Scorer      ScorerConfig      `yaml:"scorer"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type NATSConfig struct {
	URL           string        `yaml:"url" validate:"required"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TLS           NATSTLSConfig `yaml:"tls"`
}

type NATSTLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type DBConfig struct {
	URL string `yaml:"url" validate:"required"`
}

type ClickHouseConfig struct {
	Address   string        `yaml:"address"`
	Database  string        `yaml:"database"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	BatchSize int           `yaml:"batch_size"`
	Flush     time.Duration `yaml:"flush"`
}

type KVStoreConfig struct {
	Type   enum.KVStoreType `yaml:"type" validate:"omitempty,oneof=badger"`
	Badger BadgerConfig     `yaml:"badger"`
}

type BadgerConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

type XRPLConfig struct {
	URL string `yaml:"url"`
}

type PipelineConfig struct {
	MaxBatchSize    int           `yaml:"max_batch_size"    validate:"omitempty,min=1"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	CommitChunkSize int           `yaml:"commit_chunk_size" validate:"omitempty,min=1"`
	WatermarkStream string        `yaml:"watermark_stream"`
}

type DedupConfig struct {
	MaxSize int           `yaml:"max_size" validate:"omitempty,min=1"`
	TTL     time.Duration `yaml:"ttl"`
}

// ScorerConfig carries the acceptance thresholds and the empirical
// consistency penalties. These are tuning knobs, not protocol facts.
type ScorerConfig struct {
	MinConfidence              float64 `yaml:"min_confidence"   validate:"omitempty,min=0,max=1"`
	MinQuality                 float64 `yaml:"min_quality"      validate:"omitempty,min=0,max=1"`
	AllowAmbiguous             bool    `yaml:"allow_ambiguous"`
	StrictValidation           bool    `yaml:"strict_validation"`
	PenaltySuccessWithoutNodes float64 `yaml:"penalty_success_without_nodes"`
	PenaltyMintWithoutToken    float64 `yaml:"penalty_mint_without_token"`
}

type ConsumerConfig struct {
	MaxRetryAttempts int           `yaml:"max_retry_attempts" validate:"omitempty,min=1"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	MaxRetryDelay    time.Duration `yaml:"max_retry_delay"`
}

type HTTPConfig struct {
	Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Defaults returns the baseline configuration merged under every loaded
// config file.
func Defaults() Config {
	return Config{
		Environment: constant.EnvDevelopment,
		KVStore: KVStoreConfig{
			Type:   enum.KVStoreTypeBadger,
			Badger: BadgerConfig{Directory: "data/badger", Prefix: "nftidx"},
		},
		Pipeline: PipelineConfig{
			MaxBatchSize:    constant.DefaultMaxBatchSize,
			FlushInterval:   constant.DefaultFlushInterval,
			CommitChunkSize: constant.DefaultCommitChunkSize,
			WatermarkStream: constant.WatermarkStreamDefault,
		},
		Dedup: DedupConfig{
			MaxSize: constant.DefaultDedupMaxSize,
			TTL:     constant.DefaultDedupTTL,
		},
		Scorer: ScorerConfig{
			MinConfidence:              constant.DefaultMinConfidence,
			MinQuality:                 constant.DefaultMinQuality,
			PenaltySuccessWithoutNodes: 0.4,
			PenaltyMintWithoutToken:    0.3,
		},
		Consumer: ConsumerConfig{
			MaxRetryAttempts: constant.DefaultMaxRetryAttempts,
			RetryBaseDelay:   constant.DefaultRetryBaseDelay,
			MaxRetryDelay:    constant.DefaultMaxRetryDelay,
		},
		HTTP: HTTPConfig{Port: 8091},
	}
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	// merge defaults
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return cfg, err
	}

	// validate
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
