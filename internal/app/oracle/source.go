package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPSource reads scores from a metrics service:
//
//	GET <base>/scores?challenge=&participant=&metric=&from=&to=  →  {"score": N}
//
// Transient failures (connection errors, 5xx, 429) are retried with
// backoff.
type HTTPSource struct {
	base   string
	client *retryablehttp.Client
}

// NewHTTPSource creates a source for the service at baseURL.
func NewHTTPSource(baseURL string, retries int, logger *slog.Logger) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid score source url %q", baseURL)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = logger.With("component", "score-source")
	}
	return &HTTPSource{base: strings.TrimRight(baseURL, "/"), client: client}, nil
}

type scoreResponse struct {
	Score *uint64 `json:"score"`
}

// Score implements Source.
func (s *HTTPSource) Score(ctx context.Context, q Query) (uint64, error) {
	params := url.Values{}
	params.Set("challenge", strconv.FormatUint(q.ChallengeID, 10))
	params.Set("participant", q.Participant)
	params.Set("metric", q.Metric)
	params.Set("from", strconv.FormatInt(q.From, 10))
	params.Set("to", strconv.FormatInt(q.To, 10))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.base+"/scores?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch score: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("score service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode score: %w", err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("score missing from response")
	}
	return *out.Score, nil
}
