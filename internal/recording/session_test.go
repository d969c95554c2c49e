package recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"scanstudents/internal/model"
)

type chunkStream struct {
	ch chan []byte
}

func newChunkStream() *chunkStream { return &chunkStream{ch: make(chan []byte, 8)} }

func (s *chunkStream) Capture(ctx context.Context) ([]byte, error) { return nil, nil }
func (s *chunkStream) Chunks() <-chan []byte                       { return s.ch }
func (s *chunkStream) Close() error                                { close(s.ch); return nil }

type recordingStore struct {
	mu   sync.Mutex
	recs []model.CourseRecording
}

func (s *recordingStore) InsertRecording(ctx context.Context, rec model.CourseRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	store := &recordingStore{}
	sess := NewSession(store)
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("idle stop returned error: %v", err)
	}
	if store.count() != 0 {
		t.Error("idle stop created a recording")
	}
}

func TestStartWithoutStreamIsNoop(t *testing.T) {
	sess := NewSession(&recordingStore{})
	sess.Start(nil)
	if sess.Recording() {
		t.Error("session recording without a stream")
	}
}

func TestDoubleStartIsNoop(t *testing.T) {
	store := &recordingStore{}
	sess := NewSession(store)
	stream := newChunkStream()

	sess.Start(stream)
	sess.Start(stream) // second start must not open a second session
	if !sess.Recording() {
		t.Fatal("session not recording")
	}
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("expected exactly 1 recording, got %d", store.count())
	}
}

func TestStopFinalizesBufferedChunks(t *testing.T) {
	store := &recordingStore{}
	sess := NewSession(store)
	sess.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	stream := newChunkStream()

	sess.Start(stream)
	stream.ch <- []byte("chunk1-")
	stream.ch <- []byte("chunk2")

	// give the drain goroutine a beat to pick the chunks up
	deadline := time.Now().Add(time.Second)
	for {
		sess.mu.Lock()
		n := len(sess.chunks)
		sess.mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 recording, got %d", store.count())
	}
	rec := store.recs[0]
	if string(rec.Video) != "chunk1-chunk2" {
		t.Errorf("unexpected video blob %q", rec.Video)
	}
	if !rec.Timestamp.Equal(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp is not session start: %v", rec.Timestamp)
	}
	if sess.Recording() {
		t.Error("session still recording after stop")
	}
}

func TestRestartAfterStopBuffersFresh(t *testing.T) {
	store := &recordingStore{}
	sess := NewSession(store)
	stream := newChunkStream()

	sess.Start(stream)
	stream.ch <- []byte("first")
	waitForChunks(t, sess, 1)
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// media produced while no session is recording must not end up in the
	// next session's blob
	stream.ch <- []byte("between-sessions")

	sess.Start(stream)
	stream.ch <- []byte("second")
	waitForChunks(t, sess, 1)
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	if store.count() != 2 {
		t.Fatalf("expected 2 recordings, got %d", store.count())
	}
	if string(store.recs[1].Video) != "second" {
		t.Errorf("second session leaked earlier chunks: %q", store.recs[1].Video)
	}
}

func waitForChunks(t *testing.T, sess *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sess.mu.Lock()
		got := len(sess.chunks)
		sess.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("chunks never reached %d", n)
}
