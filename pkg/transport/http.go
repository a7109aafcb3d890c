package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// HTTPTransport fetches segments with HTTP GET requests, optionally with a byte range
type HTTPTransport struct {
	client *http.Client
	config *Config
	logger logging.Logger
}

// NewHTTPTransport creates an HTTP transport. A nil client gets one built from config.
func NewHTTPTransport(client *http.Client, config *Config, logger logging.Logger) *HTTPTransport {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: config.ConnectionTimeout,
				}).DialContext,
				ResponseHeaderTimeout: config.ReadTimeout,
				MaxIdleConnsPerHost:   4,
			},
		}
	}

	return &HTTPTransport{
		client: client,
		config: config,
		logger: logger.WithFields(logging.Fields{
			"component": "http_transport",
		}),
	}
}

// Type returns the transport name
func (t *HTTPTransport) Type() string {
	return "http"
}

// Open issues the request, retrying connection failures and 5xx responses
func (t *HTTPTransport) Open(ctx context.Context, req Request) (Connection, error) {
	var lastErr error

	for retry := 0; retry <= t.config.MaxRetries; retry++ {
		conn, err := t.open(ctx, req)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
				common.ErrCodeAborted, "request cancelled", ctx.Err())
		}

		var streamErr *common.StreamError
		if errors.As(err, &streamErr) && streamErr.Code == common.ErrCodeInvalidFormat {
			return nil, err
		}

		if retry < t.config.MaxRetries {
			waitTime := time.Duration(retry+1) * t.config.RetryDelay
			t.logger.Debug("Retrying request", logging.Fields{
				"url":   req.URL,
				"retry": retry + 1,
				"wait":  waitTime.String(),
				"error": err.Error(),
			})

			select {
			case <-ctx.Done():
				return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
					common.ErrCodeAborted, "request cancelled", ctx.Err())
			case <-time.After(waitTime):
			}
		}
	}

	return nil, lastErr
}

func (t *HTTPTransport) open(parent context.Context, req Request) (Connection, error) {
	ctx, cancel := context.WithCancel(parent)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		cancel()
		return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
			common.ErrCodeInvalidFormat, "failed to create request", err)
	}

	httpReq.Header.Set("User-Agent", t.config.UserAgent)
	httpReq.Header.Set("Accept", "*/*")
	if req.Range != "" {
		httpReq.Header.Set("Range", "bytes="+req.Range)
	}
	for key, value := range t.config.Headers {
		httpReq.Header.Set(key, value)
	}

	m := newMeter()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		code := common.ErrCodeConnection
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = common.ErrCodeTimeout
		}
		return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL, code, "request failed", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		code := common.ErrCodeConnection
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = common.ErrCodeInvalidFormat
		}
		return nil, common.NewStreamErrorWithFields(common.MediaTypeUnsupported, req.URL, code,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status), nil,
			logging.Fields{"status_code": resp.StatusCode})
	}

	var reader io.Reader = resp.Body
	if t.config.BufferSize > 0 {
		reader = bufio.NewReaderSize(resp.Body, t.config.BufferSize)
	}

	return &httpConnection{
		body:   resp.Body,
		reader: reader,
		cancel: cancel,
		meter:  m,
		url:    req.URL,
	}, nil
}

type httpConnection struct {
	body   io.ReadCloser
	reader io.Reader
	cancel context.CancelFunc
	meter  *meter
	url    string

	mu      sync.Mutex
	aborted bool
}

func (c *httpConnection) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.meter.add(n)

	if err != nil {
		c.meter.finish()
		c.mu.Lock()
		aborted := c.aborted
		c.mu.Unlock()
		if aborted && !errors.Is(err, io.EOF) {
			return n, common.NewStreamError(common.MediaTypeUnsupported, c.url,
				common.ErrCodeAborted, "download aborted", err)
		}
	}
	return n, err
}

// Abort cancels the request; a blocked Read returns promptly with ErrCodeAborted
func (c *httpConnection) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.mu.Unlock()
	c.cancel()
}

func (c *httpConnection) AverageSpeed() float64 {
	return c.meter.bitsPerSecond()
}

func (c *httpConnection) ElapsedTime() time.Duration {
	return c.meter.elapsed()
}

func (c *httpConnection) Close() error {
	c.meter.finish()
	defer c.cancel()
	return c.body.Close()
}
