package transport

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Factory picks a transport by URL scheme
type Factory struct {
	transports map[string]func() Transport
	mu         sync.RWMutex
}

// NewFactory creates a factory with the http, https and file transports registered
func NewFactory(config *Config, logger logging.Logger) *Factory {
	f := &Factory{
		transports: make(map[string]func() Transport),
	}

	httpTransport := NewHTTPTransport(nil, config, logger)
	f.RegisterTransportFactory("http", func() Transport { return httpTransport })
	f.RegisterTransportFactory("https", func() Transport { return httpTransport })
	f.RegisterTransportFactory("file", func() Transport { return NewFileTransport() })

	return f
}

// RegisterTransportFactory registers the transport used for a URL scheme
func (f *Factory) RegisterTransportFactory(scheme string, factory func() Transport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transports[strings.ToLower(scheme)] = factory
}

// ForURL returns the transport registered for the scheme of rawURL
func (f *Factory) ForURL(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, rawURL,
			common.ErrCodeInvalidFormat, "invalid URL", err)
	}

	f.mu.RLock()
	factory, exists := f.transports[strings.ToLower(u.Scheme)]
	f.mu.RUnlock()

	if !exists {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, rawURL,
			common.ErrCodeUnsupported, fmt.Sprintf("unsupported URL scheme: %q", u.Scheme), nil)
	}

	return factory(), nil
}

// Open dispatches to the transport registered for the request's scheme
func (f *Factory) Open(ctx context.Context, req Request) (Connection, error) {
	t, err := f.ForURL(req.URL)
	if err != nil {
		return nil, err
	}
	return t.Open(ctx, req)
}

// Type returns the transport name
func (f *Factory) Type() string {
	return "scheme"
}

// SupportedSchemes returns the registered URL schemes, sorted
func (f *Factory) SupportedSchemes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	schemes := make([]string, 0, len(f.transports))
	for scheme := range f.transports {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}
