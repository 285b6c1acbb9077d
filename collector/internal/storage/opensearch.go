package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/logship/common/batch"
	"github.com/telhawk-systems/logship/common/syslog"
)

// SearchConfig holds OpenSearch connection and bulk settings.
type SearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	FlushBytes    int
	FlushInterval time.Duration
}

// SearchIndexer writes parsed records to daily OpenSearch indices
// (<prefix>-YYYY.MM.DD) so they can be queried by device and severity.
type SearchIndexer struct {
	client *opensearch.Client
	config SearchConfig

	mu          sync.Mutex
	initialized bool
}

// Document is the indexed form of one record.
type Document struct {
	Timestamp    time.Time `json:"@timestamp"`
	SentAt       time.Time `json:"sent_at"`
	DeviceID     string    `json:"device_id"`
	PartitionKey string    `json:"partition_key"`
	Hostname     string    `json:"hostname"`
	Facility     string    `json:"facility"`
	Severity     string    `json:"severity"`
	SeverityCode int       `json:"severity_code"`
	Process      string    `json:"process"`
	Message      string    `json:"message"`
	Unusual      bool      `json:"unusual"`
}

// IndexResult counts the outcome of one bulk request.
type IndexResult struct {
	Indexed int
	Failed  int
	Errors  []string
}

func NewSearchIndexer(cfg SearchConfig) (*SearchIndexer, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "logship"
	}

	return &SearchIndexer{client: client, config: cfg}, nil
}

// Initialize verifies the connection and installs the index template.
func (s *SearchIndexer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	info, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	body, err := json.Marshal(s.indexTemplate())
	if err != nil {
		return err
	}

	res, err := s.client.Indices.PutIndexTemplate(
		s.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		s.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(bodyBytes))
	}

	s.initialized = true
	slog.Info("OpenSearch index template installed", slog.String("index_prefix", s.config.IndexPrefix))
	return nil
}

// IndexName returns the daily index a batch sent at ts is written to.
func (s *SearchIndexer) IndexName(ts time.Time) string {
	return s.config.IndexPrefix + "-" + ts.Format("2006.01.02")
}

// IndexBatch bulk-indexes every record of b. Per-item failures are
// counted in the result rather than returned as an error.
func (s *SearchIndexer) IndexBatch(ctx context.Context, partitionKey string, b *batch.Batch, classifier syslog.Classifier) (*IndexResult, error) {
	result := &IndexResult{}
	if len(b.Records) == 0 {
		return result, nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:        s.client,
		Index:         s.IndexName(b.Timestamp),
		NumWorkers:    1,
		FlushBytes:    s.config.FlushBytes,
		FlushInterval: s.config.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var mu sync.Mutex
	for _, rec := range b.Records {
		data, err := json.Marshal(newDocument(b, partitionKey, rec, classifier.IsUnusual(rec.Severity)))
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("marshal record: %v", err))
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action: "index",
			Body:   bytes.NewReader(data),
			OnSuccess: func(context.Context, opensearchutil.BulkIndexerItem, opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				result.Indexed++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				result.Failed++
				if err != nil {
					result.Errors = append(result.Errors, err.Error())
				} else {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason))
				}
			},
		})
		if err != nil {
			mu.Lock()
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("add to bulk indexer: %v", err))
			mu.Unlock()
		}
	}

	if err := bi.Close(ctx); err != nil {
		return result, fmt.Errorf("bulk indexer close: %w", err)
	}
	return result, nil
}

// newDocument dates a record by its own timestamp when it carries a
// year, otherwise by the batch send time.
func newDocument(b *batch.Batch, partitionKey string, rec syslog.Record, unusual bool) Document {
	ts := rec.Timestamp
	if ts.Year() == 0 {
		ts = b.Timestamp
	}
	return Document{
		Timestamp:    ts,
		SentAt:       b.Timestamp,
		DeviceID:     b.DeviceID,
		PartitionKey: partitionKey,
		Hostname:     rec.Hostname,
		Facility:     rec.Facility,
		Severity:     rec.Severity.String(),
		SeverityCode: int(rec.Severity),
		Process:      rec.Process,
		Message:      rec.Message,
		Unusual:      unusual,
	}
}

func (s *SearchIndexer) indexTemplate() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	date := map[string]interface{}{"type": "date"}
	return map[string]interface{}{
		"index_patterns": []string{s.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 0,
				"codec":              "best_compression",
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"@timestamp":    date,
					"sent_at":       date,
					"device_id":     keyword,
					"partition_key": keyword,
					"hostname":      keyword,
					"facility":      keyword,
					"severity":      keyword,
					"severity_code": map[string]interface{}{"type": "byte"},
					"process":       keyword,
					"message":       map[string]interface{}{"type": "text"},
					"unusual":       map[string]interface{}{"type": "boolean"},
				},
			},
		},
		"priority": 100,
	}
}
