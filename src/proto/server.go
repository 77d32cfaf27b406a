package proto

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/input"
	"github.com/deepgram/wsh/src/parser"
	"github.com/deepgram/wsh/src/session"
)

// initialFrameTimeout bounds how long a fresh connection may stay silent
// before the server closes it. This keeps idle port scans from pinning
// resources.
const initialFrameTimeout = 5 * time.Second

// Server accepts framed connections on the per-instance unix socket.
type Server struct {
	registry *session.Registry
	ctx      context.Context
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a unix-socket protocol server over the registry.
func NewServer(ctx context.Context, registry *session.Registry) *Server {
	return &Server{registry: registry, ctx: ctx}
}

// Serve listens on the given socket path until the context is cancelled.
func (s *Server) Serve(socketPath string) error {
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	s.listener = l
	go func() {
		<-s.ctx.Done()
		l.Close()
	}()

	logrus.Infof("unix socket listening on %s", socketPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				break
			}
			logrus.Warnf("unix socket accept failed: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// The first frame must arrive promptly.
	_ = conn.SetReadDeadline(time.Now().Add(initialFrameTimeout))
	frame, err := ReadFrame(conn)
	if err != nil {
		logrus.Debugf("unix socket: no initial frame: %v", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	for {
		switch frame.Type {
		case FrameCreateSession:
			s.handleCreate(conn, frame.Payload)
		case FrameAttachSession:
			// Attach takes over the connection until detach or drop.
			s.handleAttach(conn, frame.Payload)
			return
		case FrameListSessions:
			s.handleList(conn)
		case FrameKillSession:
			s.handleKill(conn, frame.Payload)
		case FrameDetach:
			return
		default:
			logrus.Debugf("unix socket: unexpected frame type %d", frame.Type)
			return
		}

		frame, err = ReadFrame(conn)
		if err != nil {
			return
		}
	}
}

func (s *Server) handleCreate(conn net.Conn, payload []byte) {
	var req CreateSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeJSON(conn, FrameCreateSessionResponse, CreateSessionResponse{Error: "invalid request payload"})
		return
	}
	sess, err := s.registry.Create(s.ctx, req.Name, session.Spec{
		Command: req.Command,
		Cwd:     req.Cwd,
		Env:     req.Env,
		Cols:    req.Cols,
		Rows:    req.Rows,
		Tags:    req.Tags,
	})
	if err != nil {
		s.writeJSON(conn, FrameCreateSessionResponse, CreateSessionResponse{Error: err.Error()})
		return
	}
	s.writeJSON(conn, FrameCreateSessionResponse, CreateSessionResponse{Name: sess.Name})
}

func (s *Server) handleList(conn net.Conn) {
	sessions := s.registry.List()
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		cols, rows := sess.Size()
		summaries = append(summaries, SessionSummary{
			Name:           sess.Name,
			Pid:            sess.Pid(),
			Command:        sess.Command,
			Rows:           rows,
			Cols:           cols,
			Clients:        sess.ClientCount(),
			Tags:           sess.Tags(),
			LastActivityMs: sess.Activity().LastActivityMs(),
		})
	}
	s.writeJSON(conn, FrameListSessionsResponse, summaries)
}

func (s *Server) handleKill(conn net.Conn, payload []byte) {
	var req KillSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	s.registry.Remove(req.Name)
}

// handleAttach streams PTY output to the client and routes stdin frames
// into the session until the client detaches or the connection drops.
// Dropping the socket implicitly detaches but leaves the session alive.
func (s *Server) handleAttach(conn net.Conn, payload []byte) {
	var req AttachSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeJSON(conn, FrameAttachSessionResponse, AttachSessionResponse{Error: "invalid request payload"})
		return
	}
	sess, ok := s.registry.Get(req.Name)
	if !ok {
		s.writeJSON(conn, FrameAttachSessionResponse, AttachSessionResponse{Error: "session not found: " + req.Name})
		return
	}

	cols, rows := sess.Size()
	resp := AttachSessionResponse{Name: sess.Name, Rows: rows, Cols: cols}
	if replay := s.screenReplay(sess); replay != nil {
		resp.Replay = replay
	}
	s.writeJSON(conn, FrameAttachSessionResponse, resp)

	clientID := "unix-" + conn.RemoteAddr().String()
	sess.AddClient(clientID)
	defer sess.RemoveClient(clientID)

	output := sess.Broker().Subscribe()
	defer sess.Broker().Unsubscribe(output)
	detach := sess.SubscribeDetach()
	defer sess.UnsubscribeDetach(detach)

	writeDone := make(chan struct{})
	var writeMu sync.Mutex
	go func() {
		defer close(writeDone)
		for {
			select {
			case chunk, ok := <-output:
				if !ok {
					return
				}
				writeMu.Lock()
				err := WriteFrame(conn, FramePtyOutput, chunk)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-detach:
				writeMu.Lock()
				_ = WriteFrame(conn, FrameDetach, nil)
				writeMu.Unlock()
				conn.Close()
				return
			case <-sess.Context().Done():
				conn.Close()
				return
			case <-s.ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			break
		}
		switch frame.Type {
		case FrameStdinInput:
			if input.IsCtrlBackslash(frame.Payload) {
				// The local escape hatch toggles capture mode instead of
				// reaching the PTY.
				mode := sess.InputMode().Toggle()
				sess.InputEvents().BroadcastMode(mode)
				continue
			}
			if err := sess.SendInput(frame.Payload); err != nil {
				logrus.Debugf("unix socket: input dropped: %v", err)
			}
		case FrameResize:
			var resize ResizeRequest
			if err := json.Unmarshal(frame.Payload, &resize); err == nil {
				if err := sess.Resize(resize.Cols, resize.Rows); err != nil {
					logrus.Debugf("unix socket: resize failed: %v", err)
				}
			}
		case FrameDetach:
			conn.Close()
			<-writeDone
			return
		}
	}
	<-writeDone
}

// screenReplay renders the current screen as ANSI bytes so the attaching
// client starts with accurate content.
func (s *Server) screenReplay(sess *session.Session) []byte {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	screen, err := sess.Parser().Screen(ctx, parser.FormatStyled)
	if err != nil {
		return nil
	}
	var out []byte
	out = append(out, "\x1b[0m\x1b[2J\x1b[H"...)
	for i, line := range screen.Lines {
		if i > 0 {
			out = append(out, '\r', '\n')
		}
		out = append(out, parser.LineToANSI(line)...)
	}
	return out
}

func (s *Server) writeJSON(conn net.Conn, frameType FrameType, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.Errorf("unix socket: marshal failed: %v", err)
		return
	}
	if err := WriteFrame(conn, frameType, payload); err != nil {
		logrus.Debugf("unix socket: write failed: %v", err)
	}
}
