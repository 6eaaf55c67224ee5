package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/fathom/internal/domain/types"
	"github.com/okian/fathom/pkg/logger"
)

// Client talks to the analytics HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Healthy reports whether /healthz answers 200.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Ingest posts one batch of decisions.
func (c *Client) Ingest(ctx context.Context, batch []types.Decision) (types.IngestResponse, error) {
	var out types.IngestResponse
	err := c.call(ctx, http.MethodPost, "/v1/decisions", types.IngestRequest{Decisions: batch}, http.StatusAccepted, &out)
	return out, err
}

// StoredDecisions reads the stored record count from /stats.
func (c *Client) StoredDecisions(ctx context.Context) (int, error) {
	var stats struct {
		StoredDecisions int `json:"storedDecisions"`
	}
	if err := c.call(ctx, http.MethodGet, "/stats", nil, http.StatusOK, &stats); err != nil {
		return 0, err
	}
	return stats.StoredDecisions, nil
}

// Patterns queries /v1/patterns. days 0 means all records.
func (c *Client) Patterns(ctx context.Context, module, decisionType string, days int) (types.PatternsResponse, error) {
	q := url.Values{}
	q.Set("module", module)
	q.Set("decision_type", decisionType)
	q.Set("days", fmt.Sprint(days))
	var out types.PatternsResponse
	err := c.call(ctx, http.MethodGet, "/v1/patterns?"+q.Encode(), nil, http.StatusOK, &out)
	return out, err
}

// Trends queries /v1/trends.
func (c *Client) Trends(ctx context.Context, subject string, days int) (types.TrendResponse, error) {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("days", fmt.Sprint(days))
	var out types.TrendResponse
	err := c.call(ctx, http.MethodGet, "/v1/trends?"+q.Encode(), nil, http.StatusOK, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, body any, want int, dst any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// submitRecords posts records in batches from a pool of workers.
func submitRecords(ctx context.Context, cfg *Config, client *Client, records []types.Decision, stats *Stats) {
	log := logger.Get().Named("seed")
	all := batches(records, cfg.BatchSize)
	log.Info(ctx, "submitting decisions",
		logger.Int("records", len(records)),
		logger.Int("batches", len(all)),
		logger.Int("workers", cfg.Workers))

	var submitted, accepted, duplicate, failed int64

	batchCh := make(chan []types.Decision, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				resp, err := client.Ingest(ctx, batch)
				atomic.AddInt64(&submitted, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "batch failed", logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&accepted, int64(resp.Accepted))
				atomic.AddInt64(&duplicate, int64(resp.Duplicates))
			}
		}()
	}

	go func() {
		defer close(batchCh)
		for _, b := range all {
			select {
			case <-ctx.Done():
				return
			case batchCh <- b:
			}
		}
	}()
	wg.Wait()

	stats.BatchesSubmitted = int(submitted)
	stats.RecordsAccepted = int(accepted)
	stats.RecordsDuplicate = int(duplicate)
	stats.BatchesFailed = int(failed)

	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.RecordsAccepted),
		logger.Int("duplicate", stats.RecordsDuplicate),
		logger.Int("failedBatches", stats.BatchesFailed))
}
