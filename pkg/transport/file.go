package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
)

// FileTransport reads file:// URLs from the local filesystem
type FileTransport struct{}

// NewFileTransport creates a file transport
func NewFileTransport() *FileTransport {
	return &FileTransport{}
}

// Type returns the transport name
func (t *FileTransport) Type() string {
	return "file"
}

// Open opens the file behind a file:// URL, honouring a byte range of the form "first-last"
func (t *FileTransport) Open(ctx context.Context, req Request) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
			common.ErrCodeAborted, "request cancelled", err)
	}

	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme != "file" {
		return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
			common.ErrCodeInvalidFormat, "not a file URL", err)
	}

	m := newMeter()
	f, err := os.Open(u.Path)
	if err != nil {
		code := common.ErrCodeConnection
		if errors.Is(err, os.ErrNotExist) {
			code = common.ErrCodeInvalidFormat
		}
		return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL, code, "failed to open file", err)
	}

	var reader io.Reader = f
	if req.Range != "" {
		first, last, err := parseRange(req.Range)
		if err != nil {
			f.Close()
			return nil, common.NewStreamError(common.MediaTypeUnsupported, req.URL,
				common.ErrCodeInvalidFormat, "invalid byte range", err)
		}
		if last < 0 {
			reader = io.NewSectionReader(f, first, 1<<62)
		} else {
			reader = io.NewSectionReader(f, first, last-first+1)
		}
	}

	return &fileConnection{file: f, reader: reader, meter: m, ctx: ctx, url: req.URL}, nil
}

// parseRange parses "first-last" or "first-". A missing last returns -1.
func parseRange(r string) (int64, int64, error) {
	firstStr, lastStr, found := strings.Cut(r, "-")
	if !found {
		return 0, 0, errors.New("range must be first-last")
	}
	first, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if lastStr == "" {
		return first, -1, nil
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if last < first {
		return 0, 0, errors.New("range end before start")
	}
	return first, last, nil
}

type fileConnection struct {
	file   *os.File
	reader io.Reader
	meter  *meter
	ctx    context.Context
	url    string

	mu      sync.Mutex
	aborted bool
}

func (c *fileConnection) Read(p []byte) (int, error) {
	c.mu.Lock()
	aborted := c.aborted
	c.mu.Unlock()

	if aborted || c.ctx.Err() != nil {
		c.meter.finish()
		return 0, common.NewStreamError(common.MediaTypeUnsupported, c.url,
			common.ErrCodeAborted, "download aborted", c.ctx.Err())
	}

	n, err := c.reader.Read(p)
	c.meter.add(n)
	if err != nil {
		c.meter.finish()
	}
	return n, err
}

func (c *fileConnection) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
}

func (c *fileConnection) AverageSpeed() float64 {
	return c.meter.bitsPerSecond()
}

func (c *fileConnection) ElapsedTime() time.Duration {
	return c.meter.elapsed()
}

func (c *fileConnection) Close() error {
	c.meter.finish()
	return c.file.Close()
}
