package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Reason classifies why the capture device could not be acquired.
type Reason string

const (
	ReasonPermissionDenied  Reason = "permission-denied"
	ReasonDeviceUnavailable Reason = "device-unavailable"
	ReasonUnsupported       Reason = "unsupported"
)

// Error is a device acquisition failure with a specific reason.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %s: %v", e.Reason, e.Err)
	}
	return "camera " + string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Stream is a live audio+video capture handle. The manager is its only
// owner; the detection scheduler and the recording session observe it
// read-only.
type Stream interface {
	// Capture returns the current frame as an encoded image.
	Capture(ctx context.Context) ([]byte, error)
	// Chunks delivers encoded media chunks for recording. The channel is
	// closed when the stream is released.
	Chunks() <-chan []byte
	Close() error
}

// Device opens capture streams from the host environment.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Finalizer is forced to completion before the manager releases a stream,
// so a recording is never left dangling on an unreferenced stream.
type Finalizer interface {
	Stop(ctx context.Context) error
}

// Manager owns the capture device lifecycle. States: Idle, Active.
type Manager struct {
	mu        sync.Mutex
	device    Device
	stream    Stream
	finalizer Finalizer
}

// NewManager creates an idle manager for the given device.
func NewManager(device Device) *Manager {
	return &Manager{device: device}
}

// SetFinalizer registers the recording session to force-finalize on Stop.
func (m *Manager) SetFinalizer(f Finalizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizer = f
}

// Start acquires the capture stream and transitions Idle -> Active. When the
// manager is already active the current stream is returned unchanged. On
// failure the manager stays Idle and the returned error carries the reason.
func (m *Manager) Start(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.stream, nil
	}
	stream, err := m.device.Open(ctx)
	if err != nil {
		return nil, err
	}
	m.stream = stream
	return stream, nil
}

// Stop force-finalizes any in-progress recording, releases the stream and
// transitions Active -> Idle. Stopping while Idle is a no-op. The call is
// synchronous from the caller's perspective.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return
	}
	if m.finalizer != nil {
		// finalize-before-release: the recorder must flush its buffer while
		// the stream is still referenced
		if err := m.finalizer.Stop(context.Background()); err != nil {
			log.Printf("camera: recording finalize on stop failed: %v", err)
		}
	}
	if err := m.stream.Close(); err != nil {
		log.Printf("camera: stream release failed: %v", err)
	}
	m.stream = nil
}

// Active reports whether a stream is live.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Stream returns the live stream, or nil while Idle.
func (m *Manager) Stream() Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}
