package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/vpntrail/vpntrail/pkg/types"
)

// ElasticsearchConfig contains Elasticsearch-specific configuration.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	CloudID   string   `yaml:"cloud_id,omitempty"`
	APIKey    string   `yaml:"api_key,omitempty"`
}

// ElasticsearchSink indexes records into a daily-rotated index.
// Connection events use their dedup identifier as document ID, so
// re-delivery overwrites the same document instead of duplicating it.
type ElasticsearchSink struct {
	config ElasticsearchConfig
	client *elasticsearch.Client
}

// NewElasticsearchSink creates an Elasticsearch sink and verifies the
// cluster is reachable.
func NewElasticsearchSink(cfg ElasticsearchConfig) (*ElasticsearchSink, error) {
	if len(cfg.Addresses) == 0 && cfg.CloudID == "" {
		return nil, fmt.Errorf("no addresses or cloud ID specified")
	}
	if cfg.Index == "" {
		cfg.Index = "vpn-events"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		CloudID:   cfg.CloudID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	return &ElasticsearchSink{config: cfg, client: client}, nil
}

// Write implements Sink.
func (e *ElasticsearchSink) Write(ctx context.Context, rec types.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.Kind(), err)
	}

	req := esapi.IndexRequest{
		Index: fmt.Sprintf("%s-%s", e.config.Index, time.Now().UTC().Format("2006.01.02")),
		Body:  bytes.NewReader(body),
	}
	if ev, ok := rec.(*types.ConnectionEvent); ok {
		req.DocumentID = ev.DedupID()
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", rec.Kind(), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch rejected %s: %s", rec.Kind(), res.Status())
	}
	return nil
}

// Ping implements Sink.
func (e *ElasticsearchSink) Ping(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}
	return nil
}

// Close implements Sink.
func (e *ElasticsearchSink) Close(ctx context.Context) error { return nil }

// Name implements Sink.
func (e *ElasticsearchSink) Name() string { return "elasticsearch" }
