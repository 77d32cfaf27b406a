package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deepgram/wsh/src/parser"
	"github.com/deepgram/wsh/src/session"
)

// subscribeParams is the payload of the subscribe method.
type subscribeParams struct {
	Events     []string `json:"events"`
	IntervalMs uint64   `json:"interval_ms,omitempty"`
	QuiesceMs  uint64   `json:"quiesce_ms,omitempty"`
	Format     string   `json:"format,omitempty"`

	format parser.Format
}

const defaultDiffIntervalMs = 100

// subscription streams parser, input and activity events to one ws/json
// client. At most one active subscription per connection; re-subscribing
// replaces the previous one.
type subscription struct {
	handler *WSHandler
	sess    *session.Session
	conn    *wsConn
	ctx     context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *subscription) start(params subscribeParams) error {
	if len(params.Events) == 0 {
		return errors.New("events list must not be empty")
	}
	wants := make(map[string]bool, len(params.Events))
	for _, e := range params.Events {
		switch e {
		case "lines", "chars", "cursor", "mode", "diffs", "input", "activity":
			wants[e] = true
		default:
			return errors.New("unknown event type " + e)
		}
	}

	s.stop()

	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	// The initial sync is authoritative: cursor events only fire on
	// change, so clients reconstruct baseline state from this snapshot.
	if screen, err := s.sess.Parser().Screen(ctx, params.format); err == nil {
		_ = s.conn.sendJSON(parser.Event{
			Event:           "sync",
			Screen:          screen,
			ScrollbackLines: intPtr(screen.TotalLines),
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pumpParserEvents(ctx, wants, params)
	}()

	if wants["input"] {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pumpInputEvents(ctx)
		}()
	}
	if params.QuiesceMs > 0 || wants["activity"] {
		quiet := time.Duration(params.QuiesceMs) * time.Millisecond
		if quiet == 0 {
			quiet = 2 * time.Second
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pumpQuiesce(ctx, quiet, params.format, wants["activity"])
		}()
	}
	return nil
}

func (s *subscription) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func intPtr(v int) *int { return &v }

// pumpParserEvents forwards parser events matching the subscription, and
// always forwards resets so clients know to resync. With diffs enabled,
// changed line indices coalesce into periodic diff events instead of (or
// alongside) individual line events.
func (s *subscription) pumpParserEvents(ctx context.Context, wants map[string]bool, params subscribeParams) {
	events := s.sess.Parser().Events().Subscribe()
	defer s.sess.Parser().Events().Unsubscribe(events)

	interval := params.IntervalMs
	if interval == 0 {
		interval = defaultDiffIntervalMs
	}
	var ticker *time.Ticker
	var tick <-chan time.Time
	if wants["diffs"] {
		ticker = time.NewTicker(time.Duration(interval) * time.Millisecond)
		defer ticker.Stop()
		tick = ticker.C
	}
	var pendingLines []int

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Event {
			case "line":
				if wants["diffs"] && ev.Index != nil {
					pendingLines = append(pendingLines, *ev.Index)
				}
				if wants["lines"] || wants["chars"] {
					_ = s.conn.sendJSON(ev)
				}
			case "cursor":
				if wants["cursor"] {
					_ = s.conn.sendJSON(ev)
				}
			case "mode":
				if wants["mode"] {
					_ = s.conn.sendJSON(ev)
				}
			case "reset":
				_ = s.conn.sendJSON(ev)
			}

		case <-tick:
			if len(pendingLines) == 0 {
				continue
			}
			changed := pendingLines
			pendingLines = nil
			screen, err := s.sess.Parser().Screen(ctx, params.format)
			if err != nil {
				continue
			}
			_ = s.conn.sendJSON(parser.Event{
				Event:        "diff",
				ChangedLines: dedupInts(changed),
				Screen:       screen,
			})

		case <-ctx.Done():
			return
		}
	}
}

func dedupInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// pumpInputEvents forwards input broadcasts.
func (s *subscription) pumpInputEvents(ctx context.Context) {
	events := s.sess.InputEvents().Subscribe()
	defer s.sess.InputEvents().Unsubscribe(events)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = s.conn.sendJSON(ev)
		case <-ctx.Done():
			return
		}
	}
}

// pumpQuiesce emits a sync event each time the terminal has been quiet
// for the configured window. With activity events subscribed, it also
// emits idle on quiescence and running when activity resumes.
func (s *subscription) pumpQuiesce(ctx context.Context, quiet time.Duration, format parser.Format, wantsActivity bool) {
	tracker := s.sess.Activity()
	var lastSeen *uint64
	for ctx.Err() == nil {
		gen := tracker.WaitForIdle(ctx, quiet, lastSeen)
		if ctx.Err() != nil {
			return
		}
		if screen, err := s.sess.Parser().Screen(ctx, format); err == nil {
			_ = s.conn.sendJSON(parser.Event{
				Event:           "sync",
				Screen:          screen,
				ScrollbackLines: intPtr(screen.TotalLines),
			})
			if wantsActivity {
				_ = s.conn.sendJSON(parser.Event{
					Event:           "idle",
					Generation:      &gen,
					Screen:          screen,
					ScrollbackLines: intPtr(screen.TotalLines),
				})
			}
		}
		seen := gen
		lastSeen = &seen

		// Block until the next activity burst, then report running.
		next := tracker.WaitForIdle(ctx, time.Millisecond, lastSeen)
		if ctx.Err() != nil {
			return
		}
		if wantsActivity {
			running := next
			_ = s.conn.sendJSON(parser.Event{Event: "running", Generation: &running})
		}
	}
}
