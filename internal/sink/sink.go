package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// DefaultWriteTimeout bounds a single write when the configuration does
// not. The scheduler never blocks on a sink longer than this; the next
// tick is the retry for anything not yet durable.
const DefaultWriteTimeout = 10 * time.Second

// Sink is the write-only destination for emitted records. Implementations
// must honor context cancellation so a write can never stall a tick
// indefinitely.
type Sink interface {
	// Write persists a single record.
	Write(ctx context.Context, rec types.Record) error

	// Ping verifies the destination is reachable.
	Ping(ctx context.Context) error

	// Close flushes and releases resources.
	Close(ctx context.Context) error

	// Name returns the sink type name.
	Name() string
}

// Config selects and configures the sink backend.
type Config struct {
	Type          string               `yaml:"type"` // mongodb, kafka, elasticsearch, s3, stdout
	Timeout       time.Duration        `yaml:"timeout,omitempty"`
	MongoDB       *MongoConfig         `yaml:"mongodb,omitempty"`
	Kafka         *KafkaConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch,omitempty"`
	S3            *S3Config            `yaml:"s3,omitempty"`
}

// WriteTimeout returns the configured per-write timeout or the default.
func (c Config) WriteTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultWriteTimeout
}

// New creates the sink selected by cfg.Type.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (Sink, error) {
	switch cfg.Type {
	case "mongodb", "":
		if cfg.MongoDB == nil {
			return nil, fmt.Errorf("mongodb sink selected but not configured")
		}
		return NewMongoSink(ctx, *cfg.MongoDB)
	case "kafka":
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("kafka sink selected but not configured")
		}
		return NewKafkaSink(*cfg.Kafka)
	case "elasticsearch":
		if cfg.Elasticsearch == nil {
			return nil, fmt.Errorf("elasticsearch sink selected but not configured")
		}
		return NewElasticsearchSink(*cfg.Elasticsearch)
	case "s3":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 sink selected but not configured")
		}
		return NewS3Sink(ctx, *cfg.S3, logger)
	case "stdout":
		return NewStdoutSink(nil), nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
}
