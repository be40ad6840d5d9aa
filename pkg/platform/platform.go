// Package platform defines the abstract URL request/cancel contract the
// scene and tile pipeline consumes, plus a default net/http-backed
// implementation. The core never talks to net/http directly: it depends
// only on the Requester interface, so it can run against a platform's own
// URL transport in the real engine.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
	"github.com/NERVsystems/vectorscene/pkg/tracing"
)

// Response is delivered to a Callback exactly once.
type Response struct {
	Bytes []byte
	Err   error
}

// Callback receives the outcome of a StartRequest call.
type Callback func(Response)

// Handle identifies an in-flight request for cancellation.
type Handle uint64

// Requester is the abstract URL request/cancel contract the core consumes.
// Cancellation is advisory: the callback may still fire after Cancel, with
// an error set.
type Requester interface {
	StartRequest(u sceneurl.URL, cb Callback) Handle
	CancelRequest(h Handle)
	RequestRender()
	SetContinuousRendering(continuous bool)
	Shutdown()
}

// HTTPRequester is the default Requester, built on net/http with a
// connection-pooled client, a retry-with-backoff policy, and a per-host
// rate limiter.
type HTTPRequester struct {
	client    *http.Client
	userAgent string

	retryOpts RetryOptions

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	defaultRPS float64
	defaultBurst int

	handlesMu sync.Mutex
	handles   map[Handle]context.CancelFunc

	nextHandle atomic.Uint64

	onRequestRender func()
	continuous      atomic.Bool
}

// RetryOptions configures HTTPRequester's exponential backoff retry policy.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions mirrors the teacher's HTTP client defaults.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// Config configures a new HTTPRequester.
type Config struct {
	UserAgent       string
	RetryOptions    RetryOptions
	DefaultRPS      float64
	DefaultBurst    int
	OnRequestRender func()
}

// NewHTTPRequester builds an HTTPRequester with a pooled client and the
// given per-host rate limits.
func NewHTTPRequester(cfg Config) *HTTPRequester {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vectorscene/0.1"
	}
	if cfg.RetryOptions.MaxAttempts == 0 {
		cfg.RetryOptions = DefaultRetryOptions
	}
	if cfg.DefaultRPS == 0 {
		cfg.DefaultRPS = 8
	}
	if cfg.DefaultBurst == 0 {
		cfg.DefaultBurst = 8
	}

	return &HTTPRequester{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:    cfg.UserAgent,
		retryOpts:    cfg.RetryOptions,
		limiters:     make(map[string]*rate.Limiter),
		defaultRPS:   cfg.DefaultRPS,
		defaultBurst: cfg.DefaultBurst,
		handles:      make(map[Handle]context.CancelFunc),
		onRequestRender: cfg.OnRequestRender,
	}
}

func (h *HTTPRequester) limiterFor(host string) *rate.Limiter {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.defaultRPS), h.defaultBurst)
		h.limiters[host] = l
	}
	return l
}

// StartRequest issues an HTTP GET for u and delivers the outcome to cb
// exactly once, on a worker goroutine.
func (h *HTTPRequester) StartRequest(u sceneurl.URL, cb Callback) Handle {
	ctx, cancel := context.WithCancel(context.Background())

	handle := Handle(h.nextHandle.Add(1))
	h.handlesMu.Lock()
	h.handles[handle] = cancel
	h.handlesMu.Unlock()

	go func() {
		defer func() {
			h.handlesMu.Lock()
			delete(h.handles, handle)
			h.handlesMu.Unlock()
		}()

		bytes, err := h.fetch(ctx, u)
		cb(Response{Bytes: bytes, Err: err})
	}()

	return handle
}

// CancelRequest cancels the request associated with h, if still in flight.
// The callback may still fire afterward, with an error set.
func (h *HTTPRequester) CancelRequest(handle Handle) {
	h.handlesMu.Lock()
	cancel, ok := h.handles[handle]
	h.handlesMu.Unlock()
	if ok {
		cancel()
	}
}

// RequestRender asks the platform to schedule a render pass.
func (h *HTTPRequester) RequestRender() {
	if h.onRequestRender != nil {
		h.onRequestRender()
	}
}

// SetContinuousRendering toggles whether the platform should render every
// frame versus only on RequestRender.
func (h *HTTPRequester) SetContinuousRendering(continuous bool) {
	h.continuous.Store(continuous)
}

// ContinuousRendering reports the current continuous-rendering setting.
func (h *HTTPRequester) ContinuousRendering() bool {
	return h.continuous.Load()
}

// Shutdown cancels every outstanding request.
func (h *HTTPRequester) Shutdown() {
	h.handlesMu.Lock()
	defer h.handlesMu.Unlock()
	for handle, cancel := range h.handles {
		cancel()
		delete(h.handles, handle)
	}
}

func (h *HTTPRequester) fetch(ctx context.Context, u sceneurl.URL) ([]byte, error) {
	start := time.Now()
	bytes, err := h.fetchWithRetry(ctx, u)
	monitoring.RecordTileFetch(u.String(), time.Since(start), err == nil)
	return bytes, err
}

func (h *HTTPRequester) fetchWithRetry(ctx context.Context, u sceneurl.URL) ([]byte, error) {
	parsed, err := url.Parse(u.String())
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeFetch, "invalid request URL", err).WithURL(u.String())
	}

	limiter := h.limiterFor(parsed.Host)
	delay := h.retryOpts.InitialDelay
	var lastErr error

	for attempt := 0; attempt < h.retryOpts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "request canceled", ctx.Err()).WithURL(u.String())
			}
			delay = time.Duration(float64(delay) * h.retryOpts.Multiplier)
			if delay > h.retryOpts.MaxDelay {
				delay = h.retryOpts.MaxDelay
			}
		}

		waitStart := time.Now()
		if err := limiter.Wait(ctx); err != nil {
			return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "rate limit wait canceled", err).WithURL(u.String())
		}
		monitoring.RecordRateLimitWait(parsed.Host, time.Since(waitStart))

		ctx, span := tracing.StartSpan(ctx, "platform.fetch")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			span.End()
			return nil, sceneerr.Wrap(sceneerr.CodeFetch, "building request", err).WithURL(u.String())
		}
		req.Header.Set("User-Agent", h.userAgent)

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
			tracing.RecordError(ctx, err)
			span.End()
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			resp.Body.Close()
			lastErr = fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
			span.End()
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		span.End()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}

	return nil, sceneerr.Wrap(sceneerr.CodeFetch, "max retries reached", lastErr).WithURL(u.String())
}
