package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// listPageSize is the page size used for list_children and search requests.
const listPageSize = 200

// Config holds the tunables spec.md §4.2/§5 requires: per-drive RPS,
// bounded in-flight concurrency, connect/read timeouts, and retry budget.
type Config struct {
	RequestsPerSecond float64
	MaxInFlight       int
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	MaxRetries        int
}

// Client is a stateless (per-credential) wrapper over the upstream HTTP API
// (spec.md §4.2, C2). The only state it carries is the per-drive rate
// limiter/semaphore pair — every other call is parameterized explicitly by
// credential, matching "every call takes a credential".
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*driveLimiter
}

// driveLimiter pairs a token-bucket rate limiter with a bounded in-flight
// semaphore, one per drive (spec.md §4.2).
type driveLimiter struct {
	tokens *rate.Limiter
	sem    chan struct{}
}

// NewClient creates an upstream Client. baseURL is the upstream API root
// for the drive kind this client instance serves (the Provider Pool
// instantiates one Client per drive kind, per spec.md §4.4).
func NewClient(baseURL string, httpClient *http.Client, cfg Config, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.ConnectTimeout + cfg.ReadTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}

	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		limiters:   make(map[string]*driveLimiter),
	}
}

func (c *Client) limiterFor(driveID ids.DriveID) *driveLimiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()

	key := driveID.String()

	l, ok := c.limiters[key]
	if !ok {
		l = &driveLimiter{
			tokens: rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), 1),
			sem:    make(chan struct{}, c.cfg.MaxInFlight),
		}
		c.limiters[key] = l
	}

	return l
}

// authHeader turns an opaque Credential into the header value the upstream
// expects — "Bearer <token>" for bearer credentials, the raw payload as a
// Cookie header for cookie-like ones (spec.md §3 "Two shapes are supported").
func authHeader(cred credstore.Credential) (string, string) {
	switch cred.Kind {
	case credstore.KindBearer:
		return "Authorization", "Bearer " + string(cred.Payload)
	case credstore.KindCookie:
		return "Cookie", string(cred.Payload)
	default:
		return "", ""
	}
}

// do executes one authenticated request against the upstream, applying only
// the drive's rate limit + in-flight bound. It does not retry: spec.md §4.2
// is explicit that "retry on transport is the caller's responsibility; this
// layer does not retry." Callers that want retries wrap their call through
// Retry below.
func (c *Client) do(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential,
	method, path string, query url.Values, body io.Reader,
) (*http.Response, error) {
	dl := c.limiterFor(driveID)

	select {
	case dl.sem <- struct{}{}:
		defer func() { <-dl.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("upstream: %w", ctx.Err())
	}

	if err := dl.tokens.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream: waiting for rate limiter: %w", err)
	}

	return c.doOnce(ctx, driveID, cred, method, path, query, body)
}

// Retry applies the retry-with-backoff policy for rate_limited/transport
// errors (spec.md §4.2, §7) around fn. This lives on Client rather than
// inside do/doOnce because the retry decision belongs to whichever
// component calls a C2 operation, not to the client itself — callers
// (the Sync Engine's walker, the Event Watcher's poll) wrap their own
// client calls with it explicitly.
func (c *Client) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(200 * time.Millisecond)
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxRetries), backoff) //nolint:gosec // MaxRetries validated non-negative

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if IsRetryable(err) {
			c.logger.Warn("retrying upstream call", slog.String("error", err.Error()))

			return retry.RetryableError(err)
		}

		return err
	})
}

func (c *Client) doOnce(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential,
	method, path string, query url.Values, body io.Reader,
) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout+c.cfg.ReadTimeout)
	defer cancel()

	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, full, body)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: ErrTransport}
	}

	if key, value := authHeader(cred); key != "" {
		req.Header.Set(key, value)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: ErrTransport}
	}

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		defer resp.Body.Close()

		return nil, c.buildError(resp, sentinel)
	}

	return resp, nil
}

// buildError drains and best-effort-parses the response body for an
// upstream-domain message, then wraps it with the classified sentinel.
func (c *Client) buildError(resp *http.Response, sentinel error) error {
	const maxErrorBody = 64 * 1024

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &body)

	if body.Message == "" {
		body.Message = string(data)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, convErr := strconv.Atoi(ra); convErr == nil {
				c.logger.Debug("rate limited, retry-after", slog.Int("seconds", secs))
			}
		}
	}

	code := CodeUnknown
	if body.Code != "" {
		code = UpstreamCode(body.Code)
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    body.Message,
		Err:        sentinel,
	}
}

// decodeJSON reads and closes resp.Body, decoding into v. Empty or
// malformed bodies are classified as transport errors (spec.md §4.2 "On
// empty or malformed responses it returns transport").
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &Error{Message: fmt.Sprintf("decoding response: %v", err), Err: ErrTransport}
	}

	return nil
}
