package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/internal/httpclient"
)

const (
	// defaultCostEstimate is charged against the bucket before a request
	// whose real cost is unknown; reconciled from the response's cost
	// extension afterwards.
	defaultCostEstimate = 10

	// Shopify standard plan bucket: 1000 points, restored at 50/s.
	defaultBucketSize  = 1000
	defaultRestoreRate = 50

	maxAttempts = 5
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 10 * time.Second
)

// Executor runs a GraphQL query and decodes the data payload into out.
// Satisfied by Client; sync and webhook handlers take the interface so
// tests can substitute canned responses.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]any, out any) error
}

// Client talks to the Shopify Admin GraphQL API. Requests are paced by a
// cost bucket mirroring Shopify's: each call waits until the estimated
// query cost is available, then the bucket is reconciled from the actual
// cost and throttle status the API reports back.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	backoff     time.Duration
	logger      *zap.SugaredLogger
}

func NewClient(cfg *config.ShopifyConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		endpoint:    fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.ShopDomain, cfg.APIVersion),
		accessToken: cfg.AccessToken,
		httpClient:  httpclient.New(30 * time.Second),
		limiter:     rate.NewLimiter(rate.Limit(defaultRestoreRate), defaultBucketSize),
		backoff:     baseBackoff,
		logger:      logger,
	}
}

// Execute runs one GraphQL query with retries. Transport failures, HTTP
// 429/5xx, and THROTTLED GraphQL errors are retried with exponential
// backoff and jitter; other GraphQL errors fail immediately.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.WaitN(ctx, defaultCostEstimate); err != nil {
		return errors.Wrap(err, "failed to acquire query cost")
	}

	body, err := json.Marshal(GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return errors.Wrap(err, "failed to marshal GraphQL request")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		resp, retryable, err := c.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if !retryable {
				return err
			}
			c.logger.Warnw("shopify request failed, retrying",
				"attempt", attempt+1, "error", err)
			continue
		}

		c.reconcileCost(resp.Extensions.Cost)

		if throttled(resp.Errors) {
			lastErr = errors.Wrap(errors.ErrServiceUnavailable, "shopify query throttled")
			c.logger.Warnw("shopify query throttled, retrying", "attempt", attempt+1)
			continue
		}
		if len(resp.Errors) > 0 {
			return errors.Newf("shopify query failed: %s", resp.Errors[0].Message)
		}

		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return errors.Wrap(err, "failed to decode GraphQL data")
			}
		}
		return nil
	}

	return errors.Wrapf(lastErr, "shopify query failed after %d attempts", maxAttempts)
}

// doRequest performs one HTTP round trip. The bool reports whether a
// failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, body []byte) (*GraphQLResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, "request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		io.Copy(io.Discard, httpResp.Body)
		return nil, true, errors.Wrapf(errors.ErrServiceUnavailable, "shopify returned %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, false, errors.Newf("shopify returned %d: %s", httpResp.StatusCode, string(data))
	}

	var resp GraphQLResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, true, errors.Wrap(err, "failed to decode response")
	}
	return &resp, false, nil
}

// reconcileCost adjusts the local bucket to match what the API actually
// charged and reported. An actual cost above the pre-charged estimate is
// reserved immediately so the next caller waits for it.
func (c *Client) reconcileCost(cost *QueryCost) {
	if cost == nil {
		return
	}

	ts := cost.ThrottleStatus
	if ts.RestoreRate > 0 {
		c.limiter.SetLimit(rate.Limit(ts.RestoreRate))
	}
	if ts.MaximumAvailable > 0 {
		c.limiter.SetBurst(int(ts.MaximumAvailable))
	}

	if extra := int(cost.ActualQueryCost) - defaultCostEstimate; extra > 0 {
		c.limiter.ReserveN(time.Now(), extra)
	}
}

func throttled(errs []GraphQLError) bool {
	for _, e := range errs {
		if e.Throttled() {
			return true
		}
	}
	return false
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := c.backoff << (attempt - 1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	// Full jitter keeps concurrent retries from synchronizing
	delay := time.Duration(rand.Int63n(int64(backoff))) + backoff/2

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
