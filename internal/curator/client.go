package curator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ShawnEdgell/gfn-availability-go/internal/telemetry"
)

const (
	// DefaultBaseURL is the Steam store host serving curator pages.
	DefaultBaseURL = "https://store.steampowered.com"

	pageSize       = 100
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
	requestDelay   = 500 * time.Millisecond
	initialBackoff = 1 * time.Second
	maxBackoff     = 4 * time.Second
	maxBodyBytes   = 8 << 20
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Client struct {
	httpClient *http.Client
	baseURL    string
	newBackOff func() backoff.BackOff
	sleep      SleepFunc
	metrics    *telemetry.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBackOff replaces the per-page retry policy. newBackOff is called once per page.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// WithSleep replaces the throttle between successful pages.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithMetrics records page outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		newBackOff: defaultBackOff,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultBackOff waits 1s, 2s, 4s between attempts, without jitter.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchAll pages through every game of a curator. It never fails: when a page
// cannot be fetched after all retries, pagination stops and whatever was
// collected so far is returned.
func (c *Client) FetchAll(ctx context.Context, src Source) map[string]GameRecord {
	games := make(map[string]GameRecord)
	start := 0
	slog.Info("Fetching games from curator", "curator_id", src.CuratorID, "name", src.Name)

	for {
		page, err := c.fetchPageWithRetry(ctx, src.CuratorID, start)
		if err != nil {
			slog.Error("All retries exhausted for curator page, keeping partial results",
				"curator_id", src.CuratorID, "offset", start, "games_so_far", len(games), "error", err)
			break
		}

		if len(page.AppIDs) == 0 {
			slog.Debug("Curator page returned no games, stopping", "curator_id", src.CuratorID, "offset", start)
			break
		}
		slog.Info("Fetched curator page", "curator_id", src.CuratorID, "games", len(page.AppIDs),
			"offset", start, "total_count", page.TotalCount)

		for _, id := range page.AppIDs {
			games[id] = GameRecord{AppID: id, Available: true, CuratorID: src.CuratorID}
		}

		start += pageSize
		if start >= page.TotalCount {
			break
		}

		if err := c.sleep(ctx, requestDelay); err != nil {
			slog.Warn("Curator pagination interrupted", "curator_id", src.CuratorID, "error", err)
			break
		}
	}

	slog.Info("Finished fetching curator", "curator_id", src.CuratorID, "total_games", len(games))
	return games
}

func (c *Client) fetchPageWithRetry(ctx context.Context, curatorID, start int) (*Page, error) {
	attempt := 0
	op := func() (*Page, error) {
		attempt++
		page, err := c.FetchPage(ctx, curatorID, start)
		c.metrics.PageFetched(curatorID, err == nil)
		return page, err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.PageRetried(curatorID)
		slog.Warn("Curator page attempt failed, retrying",
			"curator_id", curatorID, "offset", start, "attempt", attempt, "max_attempts", maxAttempts,
			"retry_in", wait, "error", err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(notify),
	)
}

// FetchPage requests a single page of a curator's recommendations starting at offset start.
func (c *Client) FetchPage(ctx context.Context, curatorID, start int) (*Page, error) {
	queryParams := url.Values{}
	queryParams.Set("query", "")
	queryParams.Set("start", strconv.Itoa(start))
	queryParams.Set("count", strconv.Itoa(pageSize))
	u := fmt.Sprintf("%s/curator/%d/ajaxgetfilteredrecommendations/render/?%s",
		c.baseURL, curatorID, queryParams.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %w", ErrTransport, u, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s: %w", ErrTransport, u, err)
	}
	return ParsePage(body)
}
