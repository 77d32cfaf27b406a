package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/activity"
	"github.com/deepgram/wsh/src/input"
	"github.com/deepgram/wsh/src/overlay"
	"github.com/deepgram/wsh/src/panel"
	"github.com/deepgram/wsh/src/parser"
)

// inputChanSize bounds the session input channel. A full channel surfaces
// back-pressure to the transport as channel_full.
const inputChanSize = 256

// ErrChannelFull is returned when the input channel cannot take more data.
var ErrChannelFull = errors.New("session input channel is full")

// ErrSessionClosed is returned when writing to a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Session is one PTY plus everything observing and steering it.
type Session struct {
	Name    string
	Command string

	pty      *PTY
	broker   *Broker
	parser   *parser.Handle
	overlays *overlay.Store
	panels   *panel.Store
	mode     *input.InputMode
	inputBus *input.Broadcaster
	activity *activity.Tracker
	focus    *input.FocusTracker

	ctx    context.Context
	cancel context.CancelFunc

	inputCh chan []byte

	mu          sync.RWMutex
	cols        uint16
	rows        uint16
	screenMode  overlay.ScreenMode
	tags        []string
	childExited bool

	detachMu   sync.Mutex
	detachSubs map[chan struct{}]struct{}

	clients sync.Map // client id -> struct{}; connected transport clients

	// onExit is invoked exactly once, from the exit watcher, after the
	// child process terminates. Set by the registry before the watcher can
	// fire.
	onExit func(exitCode int)

	closeOnce sync.Once
}

// Spec configures a new session.
type Spec struct {
	Command         string
	Cwd             string
	Env             map[string]string
	Cols            uint16
	Rows            uint16
	Tags            []string
	ScrollbackLimit int
}

// New spawns the PTY and starts the reader, writer and exit-watcher
// goroutines. The session lives until Close, registry removal, or child
// exit.
func New(parent context.Context, name string, spec Spec) (*Session, error) {
	if spec.Cols == 0 {
		spec.Cols = 80
	}
	if spec.Rows == 0 {
		spec.Rows = 24
	}

	p, err := NewPTY(SpawnSpec{
		Command: spec.Command,
		Cwd:     spec.Cwd,
		Env:     spec.Env,
		Cols:    spec.Cols,
		Rows:    spec.Rows,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		Name:       name,
		Command:    spec.Command,
		pty:        p,
		broker:     NewBroker(),
		parser:     parser.New(ctx, parser.Config{Cols: int(spec.Cols), Rows: int(spec.Rows), ScrollbackLimit: spec.ScrollbackLimit}),
		overlays:   overlay.NewStore(),
		panels:     panel.NewStore(),
		mode:       input.NewInputMode(),
		inputBus:   input.NewBroadcaster(),
		activity:   activity.NewTracker(),
		focus:      input.NewFocusTracker(),
		ctx:        ctx,
		cancel:     cancel,
		inputCh:    make(chan []byte, inputChanSize),
		cols:       spec.Cols,
		rows:       spec.Rows,
		screenMode: overlay.ScreenModeNormal,
		tags:       spec.Tags,
		detachSubs: make(map[chan struct{}]struct{}),
	}

	go s.readLoop()
	go s.writeLoop()
	go s.watchExit()
	return s, nil
}

// readLoop drives the blocking PTY reads, publishing each chunk to the
// broker and feeding the parser. Exits on read error (EIO when the child
// is gone).
func (s *Session) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("session %s: readLoop panic: %v", s.Name, r)
		}
	}()
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.activity.Touch()
			s.parser.Feed(chunk)
			s.broker.Publish(chunk)
		}
		if err != nil {
			return
		}
	}
}

// writeLoop drains the bounded input channel into the PTY.
func (s *Session) writeLoop() {
	for {
		select {
		case data, ok := <-s.inputCh:
			if !ok {
				return
			}
			if _, err := s.pty.Write(data); err != nil {
				logrus.Debugf("session %s: pty write failed: %v", s.Name, err)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// watchExit reaps the child and reports the exit upstream.
func (s *Session) watchExit() {
	code := s.pty.Wait()
	s.mu.Lock()
	s.childExited = true
	onExit := s.onExit
	s.mu.Unlock()
	logrus.Infof("session %s: child exited with code %d", s.Name, code)
	if onExit != nil {
		onExit(code)
	}
}

// SetOnExit installs the child-exit callback. Must be called before the
// child can exit; the registry does this while inserting.
func (s *Session) SetOnExit(fn func(exitCode int)) {
	s.mu.Lock()
	s.onExit = fn
	s.mu.Unlock()
}

// SendInput routes input per the current mode: it always touches the
// activity tracker and broadcasts to input subscribers; in passthrough the
// bytes also go to the PTY via the bounded channel.
func (s *Session) SendInput(data []byte) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	s.activity.Touch()
	mode := s.mode.Get()
	s.inputBus.BroadcastInput(data, mode, "")
	if mode == input.ModeCapture {
		return nil
	}
	select {
	case s.inputCh <- data:
		return nil
	default:
		return ErrChannelFull
	}
}

// Resize changes the PTY and parser dimensions.
func (s *Session) Resize(cols, rows uint16) error {
	if err := s.pty.Resize(cols, rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cols = cols
	s.rows = rows
	s.mu.Unlock()
	return s.parser.Resize(s.ctx, int(cols), int(rows))
}

// Size returns the current terminal dimensions.
func (s *Session) Size() (cols, rows uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols, s.rows
}

// ScreenMode returns the session's current screen mode.
func (s *Session) ScreenMode() overlay.ScreenMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screenMode
}

// ErrAlreadyInMode is returned when entering/exiting alt screen while
// already in the requested mode.
var ErrAlreadyInMode = errors.New("screen mode unchanged")

// EnterAlt switches the session to alt screen mode. Normal-mode overlays
// and panels become hidden (scoped out) until exit.
func (s *Session) EnterAlt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenMode == overlay.ScreenModeAlt {
		return ErrAlreadyInMode
	}
	s.screenMode = overlay.ScreenModeAlt
	return nil
}

// ExitAlt switches back to normal mode and destroys alt-tagged overlays
// and panels, clearing focus held by any of them.
func (s *Session) ExitAlt() error {
	s.mu.Lock()
	if s.screenMode != overlay.ScreenModeAlt {
		s.mu.Unlock()
		return ErrAlreadyInMode
	}
	s.screenMode = overlay.ScreenModeNormal
	s.mu.Unlock()

	for _, id := range s.overlays.DestroyMode(overlay.ScreenModeAlt) {
		s.focus.ClearIfFocused(id)
	}
	for _, id := range s.panels.DestroyMode(overlay.ScreenModeAlt) {
		s.focus.ClearIfFocused(id)
	}
	return nil
}

// Tags returns the session's tags.
func (s *Session) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags...)
}

// SetTags replaces the session's tags.
func (s *Session) SetTags(tags []string) {
	s.mu.Lock()
	s.tags = tags
	s.mu.Unlock()
}

// ChildExited reports whether the child process has terminated.
func (s *Session) ChildExited() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childExited
}

// Pid returns the child pid.
func (s *Session) Pid() int { return s.pty.Pid() }

// Context returns the session's cancellation context.
func (s *Session) Context() context.Context { return s.ctx }

// Parser returns the parser handle.
func (s *Session) Parser() *parser.Handle { return s.parser }

// Broker returns the raw output broker.
func (s *Session) Broker() *Broker { return s.broker }

// Overlays returns the overlay store.
func (s *Session) Overlays() *overlay.Store { return s.overlays }

// Panels returns the panel store.
func (s *Session) Panels() *panel.Store { return s.panels }

// InputMode returns the input mode state.
func (s *Session) InputMode() *input.InputMode { return s.mode }

// InputEvents returns the input event broadcaster.
func (s *Session) InputEvents() *input.Broadcaster { return s.inputBus }

// Activity returns the activity tracker.
func (s *Session) Activity() *activity.Tracker { return s.activity }

// Focus returns the focus tracker.
func (s *Session) Focus() *input.FocusTracker { return s.focus }

// AddClient records a connected transport client.
func (s *Session) AddClient(id string) { s.clients.Store(id, struct{}{}) }

// RemoveClient removes a transport client and auto-releases any capture it
// held.
func (s *Session) RemoveClient(id string) {
	s.clients.Delete(id)
	s.mode.ReleaseIfOwner(id)
}

// ClientCount returns the number of connected transport clients.
func (s *Session) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

// SubscribeDetach returns a channel closed when a detach is signalled.
func (s *Session) SubscribeDetach() chan struct{} {
	ch := make(chan struct{})
	s.detachMu.Lock()
	s.detachSubs[ch] = struct{}{}
	s.detachMu.Unlock()
	return ch
}

// UnsubscribeDetach removes a detach subscriber.
func (s *Session) UnsubscribeDetach(ch chan struct{}) {
	s.detachMu.Lock()
	delete(s.detachSubs, ch)
	s.detachMu.Unlock()
}

// SignalDetach tells every attached client to detach, leaving the session
// alive.
func (s *Session) SignalDetach() {
	s.detachMu.Lock()
	for ch := range s.detachSubs {
		close(ch)
		delete(s.detachSubs, ch)
	}
	s.detachMu.Unlock()
}

// Close tears the session down: cancels the context, kills the PTY, closes
// the broker and trackers. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.pty.Close()
		s.broker.Close()
		s.activity.Close()
		s.parser.Close()
	})
}
