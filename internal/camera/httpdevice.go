package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPDevice captures from an IP camera gateway exposing JPEG snapshots at
// /snapshot and a chunked media stream at /stream.
type HTTPDevice struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPDevice creates a device for the given gateway URL.
func NewHTTPDevice(baseURL string) *HTTPDevice {
	return &HTTPDevice{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Open probes the gateway and returns a live stream handle. Failures are
// classified so the caller can report a specific reason.
func (d *HTTPDevice) Open(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/snapshot", nil)
	if err != nil {
		return nil, &Error{Reason: ReasonDeviceUnavailable, Err: err}
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return nil, &Error{Reason: ReasonDeviceUnavailable, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Reason: ReasonPermissionDenied, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusNotImplemented:
		return nil, &Error{Reason: ReasonUnsupported, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	case resp.StatusCode >= 300:
		return nil, &Error{Reason: ReasonDeviceUnavailable, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &httpStream{
		base:   d.BaseURL,
		http:   d.HTTP,
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan []byte, 16),
	}, nil
}

type httpStream struct {
	base   string
	http   *http.Client
	ctx    context.Context
	cancel context.CancelFunc
	chunks chan []byte
	once   sync.Once
}

func (s *httpStream) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/snapshot", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera snapshot failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("camera snapshot failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Chunks lazily starts the media pull on first use so a session that never
// records costs no stream bandwidth.
func (s *httpStream) Chunks() <-chan []byte {
	s.once.Do(func() { go s.pull() })
	return s.chunks
}

func (s *httpStream) pull() {
	defer close(s.chunks)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.base+"/stream", nil)
	if err != nil {
		return
	}
	// the pull runs for the stream's whole lifetime; the shared client
	// timeout would cut it short
	client := &http.Client{Transport: s.http.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *httpStream) Close() error {
	s.cancel()
	// make sure the chunk channel exists and gets closed even if recording
	// never started
	s.once.Do(func() { close(s.chunks) })
	return nil
}
