package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
)

// ElasticIndexer upserts documents into an Elasticsearch-compatible index
// over its REST API
type ElasticIndexer struct {
	baseURL string
	index   string
	client  *http.Client
	text    *utils.TextProcessor
	logger  *zap.Logger
}

// NewElasticIndexer creates an indexer for the given endpoint and index name
func NewElasticIndexer(baseURL, index string, timeout time.Duration, text *utils.TextProcessor, logger *zap.Logger) *ElasticIndexer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &ElasticIndexer{
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		client:  &http.Client{Timeout: timeout},
		text:    text,
		logger:  logger,
	}
}

// Index upserts one document
func (e *ElasticIndexer) Index(ctx context.Context, msg *core.Message) error {
	body, err := json.Marshal(NewDocument(msg, e.text))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_doc/%s", e.baseURL, url.PathEscape(e.index), url.PathEscape(msg.CanonicalID))
	return e.do(ctx, http.MethodPut, endpoint, "application/json", body, nil)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// BulkIndex upserts many documents in one request
func (e *ElasticIndexer) BulkIndex(ctx context.Context, msgs []*core.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range msgs {
		action := map[string]map[string]string{"index": {"_index": e.index, "_id": msg.CanonicalID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(NewDocument(msg, e.text)); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	var resp bulkResponse
	if err := e.do(ctx, http.MethodPost, e.baseURL+"/_bulk", "application/x-ndjson", buf.Bytes(), &resp); err != nil {
		return err
	}
	if !resp.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error != nil {
				failed++
				if first == "" {
					first = fmt.Sprintf("%s: %s", result.ID, result.Error.Reason)
				}
			}
		}
	}
	return fmt.Errorf("bulk index rejected %d of %d documents (first: %s)", failed, len(msgs), first)
}

func (e *ElasticIndexer) do(ctx context.Context, method, endpoint, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build index request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach search index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search index returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode index response: %w", err)
	}
	return nil
}
