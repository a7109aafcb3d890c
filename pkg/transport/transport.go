package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Request describes one segment or manifest fetch
type Request struct {
	URL   string `json:"url"`
	Range string `json:"range,omitempty"`
}

// Connection is an open download. Read returns io.EOF once the payload is complete.
// AverageSpeed and ElapsedTime describe the transfer so far and are frozen when it ends.
type Connection interface {
	io.Reader
	Abort()
	AverageSpeed() float64
	ElapsedTime() time.Duration
	Close() error
}

// Transport opens connections for one family of URLs
type Transport interface {
	Open(ctx context.Context, req Request) (Connection, error)
	Type() string
}

// Config contains transport settings shared by all implementations
type Config struct {
	ConnectionTimeout time.Duration     `json:"connection_timeout"`
	ReadTimeout       time.Duration     `json:"read_timeout"`
	MaxRetries        int               `json:"max_retries"`
	RetryDelay        time.Duration     `json:"retry_delay"`
	UserAgent         string            `json:"user_agent"`
	BufferSize        int               `json:"buffer_size"`
	Headers           map[string]string `json:"headers,omitempty"`
}

// DefaultConfig returns the default transport configuration
func DefaultConfig() *Config {
	return &Config{
		ConnectionTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		MaxRetries:        2,
		RetryDelay:        time.Second,
		UserAgent:         "DASH-ABR-Client/1.0",
		BufferSize:        32 * 1024,
		Headers:           make(map[string]string),
	}
}

// ReadAll opens req and reads the whole payload
func ReadAll(ctx context.Context, t Transport, req Request) ([]byte, error) {
	conn, err := t.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.URL, err)
	}
	return data, nil
}

// meter tracks bytes and wall time of a transfer
type meter struct {
	mu       sync.Mutex
	start    time.Time
	end      time.Time
	bytes    int64
	finished bool
}

func newMeter() *meter {
	return &meter{start: time.Now()}
}

func (m *meter) add(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finished {
		m.bytes += int64(n)
	}
}

func (m *meter) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finished {
		m.finished = true
		m.end = time.Now()
	}
}

func (m *meter) elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

// bitsPerSecond returns the average speed, or 0 before any time has passed
func (m *meter) bitsPerSecond() float64 {
	elapsed := m.elapsed()
	m.mu.Lock()
	defer m.mu.Unlock()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.bytes*8) / elapsed.Seconds()
}
