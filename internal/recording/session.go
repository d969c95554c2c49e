package recording

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanstudents/internal/camera"
	"scanstudents/internal/model"
)

// Store is the slice of the persistence layer the session needs.
type Store interface {
	InsertRecording(ctx context.Context, rec model.CourseRecording) error
}

// Session buffers media chunks from the live camera stream and finalizes
// them into one CourseRecording. States: Idle, Recording. The session never
// owns the stream; it only observes it.
type Session struct {
	mu      sync.Mutex
	store   Store
	stream  camera.Stream
	chunks  [][]byte
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	now     func() time.Time
}

// NewSession creates an idle session writing finalized videos to store.
func NewSession(store Store) *Session {
	return &Session{store: store, now: time.Now}
}

// Start begins buffering from the given stream. Starting without an active
// stream, or while already Recording, is a no-op that leaves state
// unchanged.
func (s *Session) Start(stream camera.Stream) {
	if stream == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	chunks := stream.Chunks()
	// media queued while no session was recording predates this session;
	// drop it so the blob starts at the session start time
	discardPending(chunks)
	ctx, cancel := context.WithCancel(context.Background())
	s.stream = stream
	s.chunks = nil
	s.started = s.now().UTC()
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.drain(ctx, chunks, s.done)
}

func discardPending(chunks <-chan []byte) {
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) drain(ctx context.Context, chunks <-chan []byte, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.mu.Unlock()
		}
	}
}

// Stop finalizes the buffered chunks into a single blob, persists exactly
// one CourseRecording stamped with the session start time, clears the
// buffer, and returns to Idle. Stopping while Idle is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	var size int
	for _, c := range s.chunks {
		size += len(c)
	}
	video := make([]byte, 0, size)
	for _, c := range s.chunks {
		video = append(video, c...)
	}
	rec := model.CourseRecording{
		ID:        uuid.NewString(),
		Timestamp: s.started,
		Video:     video,
		Size:      int64(size),
	}
	s.chunks = nil
	s.stream = nil
	s.mu.Unlock()

	return s.store.InsertRecording(ctx, rec)
}

// Recording reports whether a session is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
