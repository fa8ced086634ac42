package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

// S3Config contains S3 archive configuration.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix,omitempty"`
	Compression  string `yaml:"compression,omitempty"` // none, gzip, snappy
	BatchSize    int    `yaml:"batch_size,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// DefaultS3Config returns default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:      "us-east-1",
		Prefix:      "vpn-events/",
		Compression: "gzip",
		BatchSize:   100,
	}
}

// S3Sink archives records as JSON Lines objects, one object per batch,
// keyed by date so downstream jobs can scan by day. Records buffer in
// memory until the batch fills or the sink closes.
type S3Sink struct {
	config     S3Config
	client     *s3.Client
	compressor Compressor
	logger     *logging.Logger

	mu      sync.Mutex
	pending bytes.Buffer
	count   int
}

// NewS3Sink creates an S3 archive sink and verifies the bucket exists.
func NewS3Sink(ctx context.Context, cfg S3Config, logger *logging.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultS3Config().Region
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultS3Config().BatchSize
	}

	compressor, err := NewCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, opts...)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to reach bucket %s: %w", cfg.Bucket, err)
	}

	return &S3Sink{
		config:     cfg,
		client:     client,
		compressor: compressor,
		logger:     logger.WithComponent("s3"),
	}, nil
}

// Write buffers the record, flushing when the batch is full. A buffered
// record is not durable until its batch uploads; the archive sink trades
// durability for object count.
func (s *S3Sink) Write(ctx context.Context, rec types.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.Kind(), err)
	}

	s.mu.Lock()
	s.pending.Write(line)
	s.pending.WriteByte('\n')
	s.count++
	full := s.count >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush uploads the pending batch, if any.
func (s *S3Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.count == 0 {
		s.mu.Unlock()
		return nil
	}
	payload := make([]byte, s.pending.Len())
	copy(payload, s.pending.Bytes())
	count := s.count
	s.pending.Reset()
	s.count = 0
	s.mu.Unlock()

	body, ext, err := s.compressor.Compress(payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s%s/%d-%09d.jsonl%s",
		s.config.Prefix, now.Format("2006/01/02"), now.Unix(), now.Nanosecond(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to upload batch of %d: %w", count, err)
	}

	s.logger.Debug().Str("key", key).Int("records", count).Msg("Uploaded archive batch")
	return nil
}

// Ping implements Sink.
func (s *S3Sink) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.config.Bucket)})
	return err
}

// Close flushes the pending batch.
func (s *S3Sink) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// Name implements Sink.
func (s *S3Sink) Name() string { return "s3" }
