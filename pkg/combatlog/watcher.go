package combatlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/camlog/camlog/internal/id"
	"github.com/camlog/camlog/pkg/event"
	"github.com/camlog/camlog/pkg/logging"
	"github.com/camlog/camlog/pkg/metrics"
)

// Defaults for the watcher's timing knobs.
const (
	DefaultIdleGap      = 30 * time.Second
	DefaultPollInterval = 1 * time.Second
)

// Sink receives sessions and events as the watcher produces them.
type Sink interface {
	CreateSession(ctx context.Context, s Session) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
	InsertEvent(ctx context.Context, e Event) error
}

// Publisher puts events on the live bus.
type Publisher interface {
	Publish(eventType string, payload any) error
}

// Watcher tails a combat log file, parses new lines as they are appended,
// groups events into sessions by idle gap, and forwards everything to a
// sink and a publisher.
type Watcher struct {
	path   string
	parser *Parser
	sink   Sink
	pub    Publisher
	log    *slog.Logger
	stats  *metrics.Metrics

	idleGap   time.Duration
	poll      time.Duration
	fromStart bool

	// Tail state, touched only by Run's goroutine.
	offset  int64
	partial []byte

	// Session state, touched only by Run's goroutine.
	current   *Session
	lastEvent time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the operational logger.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithIdleGap sets how long a session may sit idle before it closes.
func WithIdleGap(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.idleGap = d
		}
	}
}

// WithPollInterval sets the fallback poll cadence for filesystems where
// change notification is unreliable.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithMetrics attaches parse and session instrumentation.
func WithMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) {
		w.stats = m
	}
}

// FromStart makes the watcher parse the whole existing file before
// tailing, instead of starting at the current end.
func FromStart() WatcherOption {
	return func(w *Watcher) {
		w.fromStart = true
	}
}

// NewWatcher creates a watcher for the given log file.
func NewWatcher(path string, sink Sink, pub Publisher, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:    path,
		parser:  NewParser(),
		sink:    sink,
		pub:     pub,
		log:     logging.Nop(),
		idleGap: DefaultIdleGap,
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run tails the log file until the context is cancelled. An open session
// is closed on the way out.
func (w *Watcher) Run(ctx context.Context) error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("combatlog: open %s: %w", w.path, err)
	}
	defer func() { f.Close() }()

	if !w.fromStart {
		w.offset, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			return fmt.Errorf("combatlog: seek %s: %w", w.path, err)
		}
	}

	// Watch the directory, not the file: a directory watch still delivers
	// the Create event when the log is rotated and recreated, which is
	// the cue to reopen.
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("combatlog: watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("combatlog: watch %s: %w", filepath.Dir(w.path), err)
	}

	w.log.Info("watching combat log", "path", w.path, "from_start", w.fromStart)

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	if w.fromStart {
		w.drain(ctx, f)
	}

	for {
		select {
		case <-ctx.Done():
			w.closeSession(context.Background())
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				f = w.maybeReopen(f)
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				w.drain(ctx, f)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("combat log watch error", "error", err)

		case <-ticker.C:
			f = w.maybeReopen(f)
			w.drain(ctx, f)
			w.closeIfIdle(ctx)
		}
	}
}

// maybeReopen swaps to a recreated log file after rotation. The held
// descriptor keeps reading the old inode otherwise, losing every line
// written to the replacement. Tail state resets so the new file is read
// from the top.
func (w *Watcher) maybeReopen(f *os.File) *os.File {
	pathInfo, err := os.Stat(w.path)
	if err != nil {
		return f
	}
	if fdInfo, err := f.Stat(); err == nil && os.SameFile(pathInfo, fdInfo) {
		return f
	}

	nf, err := os.Open(w.path)
	if err != nil {
		w.log.Warn("combat log reopen failed", "path", w.path, "error", err)
		return f
	}
	f.Close()
	w.offset = 0
	w.partial = nil
	w.log.Info("combat log rotated, following new file", "path", w.path)
	return nf
}

// drain reads and processes everything appended since the last read. A
// shrunken file means in-place truncation; reading restarts from the
// top.
func (w *Watcher) drain(ctx context.Context, f *os.File) {
	info, err := f.Stat()
	if err != nil {
		w.log.Warn("combat log stat failed", "error", err)
		return
	}
	if info.Size() < w.offset {
		w.log.Info("combat log truncated, restarting", "path", w.path)
		w.offset = 0
		w.partial = nil
	}
	if info.Size() == w.offset {
		return
	}

	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		w.log.Warn("combat log seek failed", "error", err)
		return
	}

	r := bufio.NewReader(f)
	for {
		chunk, err := r.ReadBytes('\n')
		w.offset += int64(len(chunk))
		if err != nil {
			// Keep a partial trailing line for the next round.
			w.partial = append(w.partial, chunk...)
			return
		}
		line := string(append(w.partial, chunk...))
		w.partial = nil
		w.handleLine(ctx, line)
	}
}

// handleLine parses one line and records the resulting event, opening or
// extending a session as needed.
func (w *Watcher) handleLine(ctx context.Context, line string) {
	ev, ok := w.parser.ParseLine(line)
	if !ok {
		if combatVerbPattern.MatchString(line) {
			w.log.Warn("garbled combat line", "line", line)
			if w.stats != nil {
				w.stats.ParseErrors.Inc()
			}
		}
		return
	}

	now := time.Now()
	if w.current != nil && now.Sub(w.lastEvent) > w.idleGap {
		w.closeSession(ctx)
	}
	if w.current == nil {
		w.openSession(ctx, now)
	}
	w.lastEvent = now

	ev.ID = id.New()
	ev.SessionID = w.current.ID
	if err := w.sink.InsertEvent(ctx, ev); err != nil {
		w.log.Error("record event failed", "error", err, "type", ev.Type)
		return
	}

	w.current.EventCount++
	switch ev.Type {
	case EventDamage:
		w.current.TotalDamage += ev.Amount
	case EventHeal:
		w.current.TotalHealing += ev.Amount
	case EventDeath:
		w.current.Deaths++
	}

	if w.stats != nil {
		w.stats.EventsParsed.WithLabelValues(ev.Type).Inc()
	}
	w.publish(ev.Type, ev)
	w.publish(event.TypeSessionUpdated, w.current)
}

// openSession starts a new session at the given time.
func (w *Watcher) openSession(ctx context.Context, now time.Time) {
	s := Session{ID: id.New(), StartedAt: now}
	if err := w.sink.CreateSession(ctx, s); err != nil {
		w.log.Error("create session failed", "error", err)
	}
	w.current = &s
	if w.stats != nil {
		w.stats.SessionsTotal.Inc()
	}
	w.log.Info("combat session started", "session_id", s.ID)
	w.publish(event.TypeSessionStarted, s)
}

// closeSession ends the open session, if any.
func (w *Watcher) closeSession(ctx context.Context) {
	if w.current == nil {
		return
	}
	endedAt := w.lastEvent
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	if err := w.sink.CloseSession(ctx, w.current.ID, endedAt); err != nil {
		w.log.Error("close session failed", "error", err, "session_id", w.current.ID)
	}
	w.current.EndedAt = &endedAt
	w.log.Info("combat session ended",
		"session_id", w.current.ID, "events", w.current.EventCount)
	w.publish(event.TypeSessionEnded, w.current)
	w.current = nil
}

// closeIfIdle closes the open session once the idle gap has elapsed.
func (w *Watcher) closeIfIdle(ctx context.Context) {
	if w.current != nil && time.Since(w.lastEvent) > w.idleGap {
		w.closeSession(ctx)
	}
}

func (w *Watcher) publish(eventType string, payload any) {
	if w.pub == nil {
		return
	}
	if err := w.pub.Publish(eventType, payload); err != nil {
		w.log.Warn("publish failed", "event", eventType, "error", err)
	}
}
