package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamhouse/kafka-jdbc-sink/pkg/jdbcsink"

	// Database drivers matching the bundled dialects.
	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// fileConfig is the YAML connector configuration. The sink section shares
// its field names with the sink's JSON config.
type fileConfig struct {
	Brokers     []string   `yaml:"brokers"`
	Topics      []string   `yaml:"topics"`
	Group       string     `yaml:"group"`
	MetricsAddr string     `yaml:"metricsAddr"`
	Sink        sinkConfig `yaml:"sink"`
}

type sinkConfig struct {
	Driver          string   `yaml:"driver" json:"driver,omitempty"`
	DSN             string   `yaml:"dsn" json:"dsn,omitempty"`
	Dialect         string   `yaml:"dialect" json:"dialect,omitempty"`
	TableNameFormat string   `yaml:"tableNameFormat" json:"tableNameFormat,omitempty"`
	BatchSize       int      `yaml:"batchSize" json:"batchSize,omitempty"`
	InsertMode      string   `yaml:"insertMode" json:"insertMode,omitempty"`
	PKMode          string   `yaml:"pkMode" json:"pkMode,omitempty"`
	PKFields        []string `yaml:"pkFields" json:"pkFields,omitempty"`
	FieldsWhitelist []string `yaml:"fieldsWhitelist" json:"fieldsWhitelist,omitempty"`
	DeleteEnabled   bool     `yaml:"deleteEnabled" json:"deleteEnabled,omitempty"`
	TombstonePolicy string   `yaml:"tombstonePolicy" json:"tombstonePolicy,omitempty"`
	AutoCreate      bool     `yaml:"autoCreate" json:"autoCreate,omitempty"`
	AutoEvolve      bool     `yaml:"autoEvolve" json:"autoEvolve,omitempty"`
	MaxRetries      uint     `yaml:"maxRetries" json:"maxRetries,omitempty"`
	RetryBackoff    string   `yaml:"retryBackoff" json:"retryBackoff,omitempty"`
}

func main() {
	configPath := flag.String("config", "jdbc-sink.yaml", "path to the connector configuration file")
	flag.Parse()

	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Fatal("Connector failed", zap.Error(err))
	}
}

func run(ctx context.Context, configPath string, logger *zap.Logger) error {
	fileCfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	sinkJSON, err := json.Marshal(fileCfg.Sink)
	if err != nil {
		return err
	}
	cfg, err := jdbcsink.ParseConfig(sinkJSON)
	if err != nil {
		return err
	}

	sink, err := jdbcsink.NewSinkWithLogger(cfg, logger)
	if err != nil {
		return err
	}
	if err := sink.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sink.Stop() }()
	logger.Info("Sink started", zap.String("description", sink.Description()))

	if fileCfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              fileCfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = server.Close() }()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(fileCfg.Brokers...),
		kgo.ConsumeTopics(fileCfg.Topics...),
		kgo.ConsumerGroup(fileCfg.Group),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka client: %w", err)
	}
	defer client.Close()

	logger.Info("Consuming",
		zap.Strings("topics", fileCfg.Topics),
		zap.String("group", fileCfg.Group))

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			logger.Info("Shutting down")
			return nil
		}
		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.Canceled) {
				return nil
			}
			logger.Error("Fetch error",
				zap.String("topic", fetchErr.Topic),
				zap.Int32("partition", fetchErr.Partition),
				zap.Error(fetchErr.Err))
		}

		var records []jdbcsink.Record
		var fetched []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			rec, err := decodeRecord(r)
			if err != nil {
				// Undecodable records are skipped but still committed so
				// the group does not stall on them.
				logger.Error("Skipping undecodable record",
					zap.String("topic", r.Topic),
					zap.Int32("partition", r.Partition),
					zap.Int64("offset", r.Offset),
					zap.Error(err))
				fetched = append(fetched, r)
				return
			}
			records = append(records, rec)
			fetched = append(fetched, r)
		})

		if len(records) > 0 {
			if _, err := sink.Put(ctx, records); err != nil {
				return err
			}
		}
		if len(fetched) > 0 {
			if err := client.CommitRecords(ctx, fetched...); err != nil {
				logger.Error("Failed to commit offsets", zap.Error(err))
			}
		}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &fileConfig{Group: "jdbc-sink"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("config: at least one broker is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("config: at least one topic is required")
	}
	return cfg, nil
}

func decodeRecord(r *kgo.Record) (jdbcsink.Record, error) {
	keySchema, key, err := jdbcsink.DecodeEnvelope(r.Key)
	if err != nil {
		return jdbcsink.Record{}, fmt.Errorf("key: %w", err)
	}
	valueSchema, value, err := jdbcsink.DecodeEnvelope(r.Value)
	if err != nil {
		return jdbcsink.Record{}, fmt.Errorf("value: %w", err)
	}
	if value != nil && valueSchema == nil {
		return jdbcsink.Record{}, fmt.Errorf("value envelope carries no schema")
	}
	return jdbcsink.Record{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		KeySchema:   keySchema,
		Key:         key,
		ValueSchema: valueSchema,
		Value:       value,
	}, nil
}
