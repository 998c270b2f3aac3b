// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to external Redfish services. Each Client is bound
// to one service and layers, from the outside in: a rate limiter, a circuit
// breaker, retryablehttp, and a cache of GET bodies used when the service
// fails.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/LeeDigitalWorks/podm/pkg/cache"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
)

const maxBodySize = 16 << 20

type Config struct {
	// Timeout bounds each attempt.
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`

	// RPS limits requests per second to one service. Zero disables it.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`

	// CacheTTL is how long an unused GET body stays cached.
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`

	// PollInterval is the delay between task monitor polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// BreakerFailures consecutive failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		RetryMax:        3,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		RPS:             50,
		Burst:           10,
		CacheTTL:        10 * time.Minute,
		CacheSize:       10000,
		PollInterval:    time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Client is a Redfish client bound to one external service.
type Client struct {
	serviceUUID string
	baseURL     *url.URL

	// idempotent requests are retried, POSTs are not
	retrying *retryablehttp.Client
	single   *retryablehttp.Client

	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	cache        *cache.Cache[string, []byte]
	pollInterval time.Duration
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// New creates a client for the service at baseURL. The response cache lives
// until ctx is done or Close is called.
func New(ctx context.Context, serviceUUID, baseURL string, cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("service url %q must be absolute", baseURL)
	}

	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	label := model.ShortID(serviceUUID)
	if label == "" {
		label = u.Host
	}

	c := &Client{
		serviceUUID:  serviceUUID,
		baseURL:      u,
		retrying:     newHTTPClient(cfg, cfg.RetryMax, label),
		single:       newHTTPClient(cfg, 0, label),
		limiter:      rate.NewLimiter(rate.Inf, 0),
		pollInterval: cfg.PollInterval,
		cache: cache.New(ctx,
			cache.WithExpiry[string, []byte](cfg.CacheTTL),
			cache.WithMaxSize[string, []byte](cfg.CacheSize),
		),
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        label,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return !serverSide(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("service", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("client: circuit breaker state changed")
		},
	})
	return c, nil
}

func newHTTPClient(cfg Config, retryMax int, label string) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = retryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = leveledLogger{service: label}
	// hand the last response back so its status becomes an HTTPError
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func (c *Client) ServiceUUID() string { return c.serviceUUID }

func (c *Client) BaseURL() string { return c.baseURL.String() }

// Close releases the response cache.
func (c *Client) Close() {
	c.cache.Stop()
}

type freshKey struct{}

// Fresh returns a context in which Get never falls back to a cached body.
// Successful responses still refresh the cache.
func Fresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

func isFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}

// Get fetches path into v. When the service fails with a 5xx, a transport
// error or an open circuit, the last good body for path is used instead,
// unless ctx came from Fresh.
func (c *Client) Get(ctx context.Context, path string, v any) error {
	key := c.cacheKey(path)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if IsNotFound(err) {
			c.cache.Delete(key)
			return err
		}
		body, ok := c.cache.Get(key)
		if !ok || !fallbackable(err) || isFresh(ctx) {
			return err
		}
		CacheFallbacks.Inc()
		logger.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("client: serving cached response")
		return decode(body, v, path)
	}
	c.cache.Set(key, resp.body)
	return decode(resp.body, v, path)
}

// Members lists the member paths of the collection at path.
func (c *Client) Members(ctx context.Context, path string) ([]string, error) {
	var coll struct {
		Members []model.Link `json:"Members"`
	}
	if err := c.Get(ctx, path, &coll); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(coll.Members))
	for _, m := range coll.Members {
		if m.ODataID != "" {
			out = append(out, m.ODataID.String())
		}
	}
	return out, nil
}

// Post creates a resource and returns the path from its Location header.
func (c *Client) Post(ctx context.Context, path string, body any) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	c.invalidate(path)
	if err != nil {
		return "", err
	}
	return locationPath(resp.header.Get("Location")), nil
}

func (c *Client) Patch(ctx context.Context, path string, body any) error {
	_, err := c.do(ctx, http.MethodPatch, path, body)
	c.invalidate(path)
	return err
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	c.invalidate(path)
	return err
}

// PostAction invokes a Redfish action. A 202 with a Location header is an
// asynchronous task; its monitor is polled until it stops answering 202.
// An error status from the monitor fails the action.
func (c *Client) PostAction(ctx context.Context, path string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	monitor := resp.header.Get("Location")
	if resp.status != http.StatusAccepted || monitor == "" {
		return nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("action %s: waiting for task %s: %w", path, monitor, ctx.Err())
		case <-ticker.C:
		}
		TaskMonitorPolls.Inc()
		r, err := c.do(ctx, http.MethodGet, monitor, nil)
		if err != nil {
			return fmt.Errorf("action %s: %w", path, err)
		}
		if r.status != http.StatusAccepted {
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, c.baseURL.Host, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*response), nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*response, error) {
	target := c.resolve(path)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.retrying
	if method == http.MethodPost {
		hc = c.single
	}

	start := time.Now()
	resp, err := hc.Do(req)
	RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	RequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, target, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Method: method, URL: target, Body: data}
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() {
		return path
	}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Client) cacheKey(path string) string {
	return strings.TrimRight(locationPath(path), "/")
}

// invalidate drops the cached body for path and its parent collection.
func (c *Client) invalidate(path string) {
	key := c.cacheKey(path)
	c.cache.Delete(key)
	if i := strings.LastIndexByte(key, '/'); i > 0 {
		c.cache.Delete(key[:i])
	}
}

// locationPath strips scheme and host from an absolute URL.
func locationPath(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || !u.IsAbs() {
		return loc
	}
	return u.Path
}

func decode(body []byte, v any, path string) error {
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetAs fetches path into a new T.
func GetAs[T any](ctx context.Context, c *Client, path string) (*T, error) {
	v := new(T)
	if err := c.Get(ctx, path, v); err != nil {
		return nil, err
	}
	return v, nil
}
