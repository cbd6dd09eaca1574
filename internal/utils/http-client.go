package utils

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type HTTPClientConfig struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	UserAgent      string
	Headers        map[string]string
	// RequestsPerSecond throttles outgoing requests; 0 means unlimited.
	RequestsPerSecond float64
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
	SetHeader(key, value string)
}

type HTTPClient struct {
	client  *http.Client
	config  HTTPClientConfig
	limiter *rate.Limiter
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:  cfg,
		limiter: limiter,
	}
}

func (c *HTTPClient) SetHeader(key, value string) {
	c.config.Headers[key] = value
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", GetRandomUserAgent())
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}
