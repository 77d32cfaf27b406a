package parser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when the parser actor cannot take a query:
// the query channel stayed full past the deadline or the actor is gone.
var ErrUnavailable = errors.New("parser is unavailable")

// queryTimeout bounds how long a caller waits for the actor to accept and
// answer a query.
const queryTimeout = 5 * time.Second

// Query is a request handled inside the actor.
type Query struct {
	Kind   QueryKind
	Format Format
	Offset int
	Limit  int
	Cols   int
	Rows   int
}

type QueryKind int

const (
	QueryScreen QueryKind = iota
	QueryScrollback
	QueryCursor
	QueryResize
)

// QueryResponse carries the answer for one query; exactly one field is set.
type QueryResponse struct {
	Screen     *ScreenResponse
	Scrollback *ScrollbackResponse
	Cursor     *CursorResponse
}

type queryRequest struct {
	query Query
	reply chan QueryResponse
}

// Config sizes a parser instance.
type Config struct {
	Cols            int
	Rows            int
	ScrollbackLimit int
}

// DefaultScrollbackLimit bounds history when the caller does not specify.
const DefaultScrollbackLimit = 10000

// Handle is the owner-facing side of a parser actor. Feed and Query are
// safe from any goroutine; the VT itself lives inside the actor.
type Handle struct {
	cfg     Config
	bus     *EventBus
	queries chan queryRequest
	ctx     context.Context
	cancel  context.CancelFunc

	// Unbounded feed queue: delivery from the PTY reader to the parser is
	// guaranteed, unlike the lossy event subscribers.
	feedMu     sync.Mutex
	feedBuf    [][]byte
	feedSignal chan struct{}

	// seq survives restarts so ordering stays monotonic per Handle.
	seq   uint64
	epoch uint64
}

// New starts a parser actor and its supervisor.
func New(ctx context.Context, cfg Config) *Handle {
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	if cfg.ScrollbackLimit <= 0 {
		cfg.ScrollbackLimit = DefaultScrollbackLimit
	}
	actorCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cfg:        cfg,
		bus:        NewEventBus(),
		queries:    make(chan queryRequest, 32),
		ctx:        actorCtx,
		cancel:     cancel,
		feedSignal: make(chan struct{}, 1),
	}
	go h.supervise()
	return h
}

// Events returns the parser event bus.
func (h *Handle) Events() *EventBus { return h.bus }

// Close stops the actor. Pending queries fail with ErrUnavailable.
func (h *Handle) Close() { h.cancel() }

// Feed enqueues raw PTY bytes. Never blocks and never drops.
func (h *Handle) Feed(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	h.feedMu.Lock()
	h.feedBuf = append(h.feedBuf, buf)
	h.feedMu.Unlock()
	select {
	case h.feedSignal <- struct{}{}:
	default:
	}
}

func (h *Handle) drainFeed() [][]byte {
	h.feedMu.Lock()
	chunks := h.feedBuf
	h.feedBuf = nil
	h.feedMu.Unlock()
	return chunks
}

// Query sends a query to the actor and waits for the reply.
func (h *Handle) Query(ctx context.Context, q Query) (QueryResponse, error) {
	req := queryRequest{query: q, reply: make(chan QueryResponse, 1)}
	timer := time.NewTimer(queryTimeout)
	defer timer.Stop()

	select {
	case h.queries <- req:
	case <-h.ctx.Done():
		return QueryResponse{}, ErrUnavailable
	case <-ctx.Done():
		return QueryResponse{}, ctx.Err()
	case <-timer.C:
		return QueryResponse{}, ErrUnavailable
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-h.ctx.Done():
		return QueryResponse{}, ErrUnavailable
	case <-ctx.Done():
		return QueryResponse{}, ctx.Err()
	case <-timer.C:
		return QueryResponse{}, ErrUnavailable
	}
}

// Screen is a convenience wrapper for a screen snapshot query.
func (h *Handle) Screen(ctx context.Context, format Format) (*ScreenResponse, error) {
	resp, err := h.Query(ctx, Query{Kind: QueryScreen, Format: format})
	if err != nil {
		return nil, err
	}
	return resp.Screen, nil
}

// Scrollback is a convenience wrapper for a scrollback query.
func (h *Handle) Scrollback(ctx context.Context, format Format, offset, limit int) (*ScrollbackResponse, error) {
	resp, err := h.Query(ctx, Query{Kind: QueryScrollback, Format: format, Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Scrollback, nil
}

// Resize resizes the VT and notifies subscribers with a reset event.
func (h *Handle) Resize(ctx context.Context, cols, rows int) error {
	_, err := h.Query(ctx, Query{Kind: QueryResize, Cols: cols, Rows: rows})
	return err
}

// supervise runs the actor, restarting it after internal panics. Each start
// (including the first) leads with a reset event so subscribers resync.
func (h *Handle) supervise() {
	for {
		h.runActor()
		if h.ctx.Err() != nil {
			return
		}
		h.epoch++
		logrus.Warnf("parser actor panicked, restarting (epoch %d)", h.epoch)
	}
}

func (h *Handle) nextSeq() uint64 {
	h.seq++
	return h.seq
}

func (h *Handle) runActor() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("parser actor panic: %v", r)
		}
	}()

	t := newTerm(h.cfg.Cols, h.cfg.Rows, h.cfg.ScrollbackLimit)
	defer t.close()
	detector := newAltScreenDetector()
	alternate := false
	lastCursor := t.cursor()

	h.bus.Publish(Event{Event: "reset", Seq: h.nextSeq(), Reason: ResetParserRestart})

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-h.feedSignal:
			for _, chunk := range h.drainFeed() {
				h.processChunk(t, detector, &alternate, &lastCursor, chunk)
			}

		case req := <-h.queries:
			req.reply <- h.handleQuery(t, alternate, req.query)
		}
	}
}

func (h *Handle) processChunk(t *term, detector *altScreenDetector, alternate *bool, lastCursor *Cursor, chunk []byte) {
	// Detect alternate screen transitions before feeding the emulator so
	// the mode event precedes the line events it explains.
	newAlternate := detector.feed(chunk, *alternate)

	changed := t.feed(chunk)

	if newAlternate != *alternate {
		*alternate = newAlternate
		on := newAlternate
		h.bus.Publish(Event{Event: "mode", Seq: h.nextSeq(), AlternateActive: &on})
		reason := ResetAltScreenExit
		if newAlternate {
			reason = ResetAltScreenEnter
		}
		h.bus.Publish(Event{Event: "reset", Seq: h.nextSeq(), Reason: reason})
	}

	total := t.totalLines()
	base := total - t.rows
	rows := t.screenRows()
	for _, row := range changed {
		if row < 0 || row >= len(rows) {
			continue
		}
		index := base + row
		line := FormatRendered(rows[row], FormatStyled)
		h.bus.Publish(Event{
			Event:      "line",
			Seq:        h.nextSeq(),
			Index:      &index,
			TotalLines: &total,
			Line:       &line,
		})
	}

	cursor := t.cursor()
	if cursor != *lastCursor {
		*lastCursor = cursor
		visible := cursor.Visible
		h.bus.Publish(Event{
			Event:   "cursor",
			Seq:     h.nextSeq(),
			Row:     &cursor.Row,
			Col:     &cursor.Col,
			Visible: &visible,
		})
	}
}

func (h *Handle) handleQuery(t *term, alternate bool, q Query) QueryResponse {
	switch q.Kind {
	case QueryScreen:
		return QueryResponse{Screen: h.screenResponse(t, alternate, q.Format)}

	case QueryScrollback:
		all := t.allLines()
		total := len(all)
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		if offset > total {
			offset = total
		}
		end := total
		if q.Limit >= 0 && offset+q.Limit < total {
			end = offset + q.Limit
		}
		lines := make([]Line, 0, end-offset)
		for _, raw := range all[offset:end] {
			lines = append(lines, FormatRendered(raw, q.Format))
		}
		return QueryResponse{Scrollback: &ScrollbackResponse{
			Epoch:      h.epoch,
			Lines:      lines,
			TotalLines: total,
			Offset:     offset,
		}}

	case QueryCursor:
		return QueryResponse{Cursor: &CursorResponse{Epoch: h.epoch, Cursor: t.cursor()}}

	case QueryResize:
		t.resize(q.Cols, q.Rows)
		h.bus.Publish(Event{Event: "reset", Seq: h.nextSeq(), Reason: ResetResize})
		return QueryResponse{}
	}
	return QueryResponse{}
}

func (h *Handle) screenResponse(t *term, alternate bool, format Format) *ScreenResponse {
	rows := t.screenRows()
	lines := make([]Line, 0, len(rows))
	for _, raw := range rows {
		lines = append(lines, FormatRendered(raw, format))
	}
	total := t.totalLines()
	first := total - t.rows
	if first < 0 {
		first = 0
	}
	return &ScreenResponse{
		Epoch:           h.epoch,
		FirstLineIndex:  first,
		TotalLines:      total,
		Lines:           lines,
		Cursor:          t.cursor(),
		Cols:            t.cols,
		Rows:            t.rows,
		AlternateActive: alternate,
	}
}
