package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

func testConfig() *Config {
	config := DefaultConfig()
	config.RetryDelay = time.Millisecond
	return config
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 5*time.Second, config.ConnectionTimeout)
	assert.Equal(t, 30*time.Second, config.ReadTimeout)
	assert.Equal(t, 2, config.MaxRetries)
	assert.Equal(t, time.Second, config.RetryDelay)
	assert.Equal(t, "DASH-ABR-Client/1.0", config.UserAgent)
	assert.Equal(t, 32*1024, config.BufferSize)
	assert.NotNil(t, config.Headers)
}

func TestHTTPTransportRead(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DASH-ABR-Client/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Write([]byte(payload))
	}))
	defer server.Close()

	config := testConfig()
	config.Headers["X-Test"] = "yes"
	tr := NewHTTPTransport(server.Client(), config, nil)
	assert.Equal(t, "http", tr.Type())

	conn, err := tr.Open(context.Background(), Request{URL: server.URL + "/seg.m4s"})
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, len(payload), len(data))
	assert.Greater(t, conn.AverageSpeed(), 0.0)
	assert.Greater(t, conn.ElapsedTime(), time.Duration(0))

	elapsed := conn.ElapsedTime()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, elapsed, conn.ElapsedTime(), "elapsed time is frozen once the body is consumed")
}

func TestHTTPTransportRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=100-199", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), testConfig(), nil)
	data, err := ReadAll(context.Background(), tr, Request{URL: server.URL, Range: "100-199"})
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestHTTPTransportRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), testConfig(), nil)
	data, err := ReadAll(context.Background(), tr, Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPTransportClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.Client(), testConfig(), nil)
	_, err := tr.Open(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeInvalidFormat))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPTransportAbort(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first chunk"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	config := testConfig()
	config.BufferSize = 0
	tr := NewHTTPTransport(server.Client(), config, nil)
	conn, err := tr.Open(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 11)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		conn.Abort()
	}()

	_, err = io.ReadAll(conn)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeAborted))
}

func TestHTTPTransportCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewHTTPTransport(server.Client(), testConfig(), nil)
	_, err := tr.Open(ctx, Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeAborted))
}

func TestFileTransport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.m4s")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	tr := NewFileTransport()
	assert.Equal(t, "file", tr.Type())

	data, err := ReadAll(context.Background(), tr, Request{URL: "file://" + path})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	data, err = ReadAll(context.Background(), tr, Request{URL: "file://" + path, Range: "2-4"})
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))

	data, err = ReadAll(context.Background(), tr, Request{URL: "file://" + path, Range: "7-"})
	require.NoError(t, err)
	assert.Equal(t, "789", string(data))

	_, err = tr.Open(context.Background(), Request{URL: "file://" + filepath.Join(dir, "missing")})
	assert.True(t, common.HasCode(err, common.ErrCodeInvalidFormat))

	_, err = tr.Open(context.Background(), Request{URL: "file://" + path, Range: "5-1"})
	assert.True(t, common.HasCode(err, common.ErrCodeInvalidFormat))

	_, err = tr.Open(context.Background(), Request{URL: "http://example.com/seg.m4s"})
	assert.True(t, common.HasCode(err, common.ErrCodeInvalidFormat))
}

func TestFileTransportAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.m4s")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	conn, err := NewFileTransport().Open(context.Background(), Request{URL: "file://" + path})
	require.NoError(t, err)
	defer conn.Close()

	conn.Abort()
	_, err = conn.Read(make([]byte, 4))
	assert.True(t, common.HasCode(err, common.ErrCodeAborted))
}

func TestFactory(t *testing.T) {
	f := NewFactory(testConfig(), nil)
	assert.Equal(t, []string{"file", "http", "https"}, f.SupportedSchemes())

	tr, err := f.ForURL("https://cdn.example.com/a.mpd")
	require.NoError(t, err)
	assert.Equal(t, "http", tr.Type())

	tr, err = f.ForURL("FILE:///tmp/a.mpd")
	require.NoError(t, err)
	assert.Equal(t, "file", tr.Type())

	_, err = f.ForURL("icn:/prefix/a.mpd")
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeUnsupported))

	f.RegisterTransportFactory("icn", func() Transport { return NewFileTransport() })
	_, err = f.ForURL("icn:/prefix/a.mpd")
	assert.NoError(t, err)
}

func TestFactoryOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("via factory"))
	}))
	defer server.Close()

	data, err := ReadAll(context.Background(), NewFactory(testConfig(), nil), Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "via factory", string(data))
}
