package detection

import (
	"context"
	"log"
	"sync"
	"time"

	"scanstudents/internal/camera"
	"scanstudents/internal/faceclient"
	"scanstudents/internal/metrics"
)

// DefaultInterval is the recognition sampling cadence.
const DefaultInterval = 1500 * time.Millisecond

// Matcher turns a frame into labeled face matches against a built model.
type Matcher interface {
	DetectAndMatch(ctx context.Context, frame []byte, m *faceclient.Model) ([]faceclient.Match, error)
}

// Offerer receives recognized students for dedup and persistence.
type Offerer interface {
	Offer(ctx context.Context, studentID string, ts time.Time, snapshot []byte) error
}

// Scheduler samples the live stream at a fixed cadence and runs one
// recognition pass per tick. Cycles execute inline in the loop goroutine, so
// they can never overlap: when a cycle outlasts the interval the backed-up
// tick is coalesced by the ticker rather than starting a concurrent pass.
type Scheduler struct {
	interval  time.Duration
	matcher   Matcher
	registry  Offerer
	onMatches func([]faceclient.Match)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler. onMatches receives every cycle's
// matches (including unknowns) for overlay rendering; it may be nil.
func NewScheduler(interval time.Duration, matcher Matcher, registry Offerer, onMatches func([]faceclient.Match)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval:  interval,
		matcher:   matcher,
		registry:  registry,
		onMatches: onMatches,
	}
}

// Start begins the recognition loop over the given stream and model. It is a
// no-op while already running, and refuses to run without a model: no model
// means recognition is disabled, not broken.
func (s *Scheduler) Start(stream camera.Stream, model *faceclient.Model) {
	if stream == nil || model == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, stream, model, s.done)
}

// Stop cancels the loop and waits for any in-flight cycle to finish, so no
// cycle fires after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, stream camera.Stream, model *faceclient.Model, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, stream, model)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, stream camera.Stream, model *faceclient.Model) {
	frame, err := stream.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("detection: frame capture failed: %v", err)
			metrics.CyclesSkipped.WithLabelValues("capture_error").Inc()
		}
		return
	}
	metrics.FramesScanned.Inc()

	matches, err := s.matcher.DetectAndMatch(ctx, frame, model)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("detection: match skipped: %v", err)
			metrics.CyclesSkipped.WithLabelValues("service_error").Inc()
		}
		return
	}
	// a result that lands after the camera stopped is stale: discard it
	// instead of applying it to state
	if ctx.Err() != nil {
		metrics.CyclesSkipped.WithLabelValues("stopped").Inc()
		return
	}

	if s.onMatches != nil {
		s.onMatches(matches)
	}

	now := time.Now()
	for _, m := range matches {
		if !m.Known() {
			metrics.FacesMatched.WithLabelValues("unknown").Inc()
			continue
		}
		metrics.FacesMatched.WithLabelValues("known").Inc()
		if err := s.registry.Offer(ctx, m.Label, now, frame); err != nil {
			log.Printf("detection: attendance offer for %s failed: %v", m.Label, err)
		}
	}
}
