package combatlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camlog/camlog/pkg/event"
	"github.com/camlog/camlog/pkg/metrics"
)

// memorySink collects everything the watcher emits.
type memorySink struct {
	mu       sync.Mutex
	sessions []Session
	closed   []string
	events   []Event
}

func (s *memorySink) CreateSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *memorySink) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, sessionID)
	return nil
}

func (s *memorySink) InsertEvent(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) snapshot() ([]Session, []string, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Session(nil), s.sessions...),
		append([]string(nil), s.closed...),
		append([]Event(nil), s.events...)
}

// memoryPublisher collects published event types.
type memoryPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *memoryPublisher) Publish(eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func (p *memoryPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return cancel
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestWatcherParsesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	content := "[01:00:00] You hit a goblin for 25 points of slash damage!\n" +
		"[01:00:01] You say, \"charge!\"\n" +
		"[01:00:02] You hit a goblin for 30 points of slash damage!\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sink := &memorySink{}
	pub := &memoryPublisher{}
	w := NewWatcher(path, sink, pub,
		FromStart(),
		WithPollInterval(20*time.Millisecond),
	)
	startWatcher(t, w)

	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 2
	})

	sessions, _, events := sink.snapshot()
	require.Len(t, sessions, 1)
	for _, ev := range events {
		assert.Equal(t, sessions[0].ID, ev.SessionID)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, EventDamage, ev.Type)
	}
	assert.Contains(t, pub.published(), event.TypeSessionStarted)
	assert.Contains(t, pub.published(), EventDamage)
}

func TestWatcherTailsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	require.NoError(t, os.WriteFile(path, []byte("[01:00:00] old line ignored\n"), 0o644))

	sink := &memorySink{}
	w := NewWatcher(path, sink, nil, WithPollInterval(20*time.Millisecond))
	startWatcher(t, w)

	// Give the watcher a moment to record the starting offset.
	time.Sleep(50 * time.Millisecond)

	appendLine(t, path, "[01:00:05] You heal the knight for 80 hit points!\n")

	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 1
	})

	_, _, events := sink.snapshot()
	assert.Equal(t, EventHeal, events[0].Type)
	assert.Equal(t, "knight", events[0].Target)
	assert.Equal(t, 80, events[0].Amount)
}

func TestWatcherFollowsRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	sink := &memorySink{}
	w := NewWatcher(path, sink, nil, WithPollInterval(20*time.Millisecond))
	startWatcher(t, w)

	time.Sleep(50 * time.Millisecond)

	appendLine(t, path, "[01:00:00] You hit a goblin for 25 points of slash damage!\n")
	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 1
	})

	// Rotate: rename the live file away and recreate it at the same path.
	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, os.WriteFile(path,
		[]byte("[01:00:05] You heal the knight for 80 hit points!\n"), 0o644))

	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 2
	})

	_, _, events := sink.snapshot()
	assert.Equal(t, EventHeal, events[1].Type)
	assert.Equal(t, "knight", events[1].Target)
}

func TestWatcherCountsGarbledCombatLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	content := "[01:00:00] You hit a goblin for\n" +
		"[01:00:01] You say, \"just chatter\"\n" +
		"[01:00:02] You hit a goblin for 25 points of slash damage!\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sink := &memorySink{}
	m := metrics.New()
	w := NewWatcher(path, sink, nil,
		FromStart(),
		WithPollInterval(20*time.Millisecond),
		WithMetrics(m),
	)
	startWatcher(t, w)

	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 1
	})

	// The clipped damage line counts as a parse error; the chat line
	// does not.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsParsed.WithLabelValues(EventDamage)))
}

func TestWatcherClosesIdleSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	require.NoError(t, os.WriteFile(path,
		[]byte("[01:00:00] You hit a goblin for 5 points of damage.\n"), 0o644))

	sink := &memorySink{}
	pub := &memoryPublisher{}
	w := NewWatcher(path, sink, pub,
		FromStart(),
		WithPollInterval(20*time.Millisecond),
		WithIdleGap(80*time.Millisecond),
	)
	startWatcher(t, w)

	waitFor(t, func() bool {
		_, closed, _ := sink.snapshot()
		return len(closed) == 1
	})

	sessions, closed, _ := sink.snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, sessions[0].ID, closed[0])
	assert.Contains(t, pub.published(), event.TypeSessionEnded)
}

func TestWatcherClosesSessionOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	require.NoError(t, os.WriteFile(path,
		[]byte("[01:00:00] You hit a goblin for 5 points of damage.\n"), 0o644))

	sink := &memorySink{}
	w := NewWatcher(path, sink, nil,
		FromStart(),
		WithPollInterval(20*time.Millisecond),
	)
	cancel := startWatcher(t, w)

	waitFor(t, func() bool {
		_, _, events := sink.snapshot()
		return len(events) == 1
	})

	cancel()

	waitFor(t, func() bool {
		_, closed, _ := sink.snapshot()
		return len(closed) == 1
	})
}

func TestWatcherMissingFile(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope.log"), &memorySink{}, nil)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
