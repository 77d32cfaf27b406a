package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
	pingInterval   = 30 * time.Second
	infoTimeout    = 10 * time.Second
)

// ServerInfo is the payload of GET /server/info on a backend.
type ServerInfo struct {
	Hostname string `json:"hostname"`
	ServerID string `json:"server_id"`
}

// Connection supervises one persistent WebSocket to a backend. It
// reconnects with exponential backoff until shut down, keeping the
// registry's health for its backend current.
type Connection struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial starts the supervisor task for the given backend address.
func Dial(parent context.Context, address, token string, registry *Registry, localServerID string) *Connection {
	ctx, cancel := context.WithCancel(parent)
	c := &Connection{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.loop(ctx, address, token, registry, localServerID)
	}()
	return c
}

// Shutdown signals the supervisor to stop.
func (c *Connection) Shutdown() { c.cancel() }

// Join waits for the supervisor task to finish.
func (c *Connection) Join() { <-c.done }

func (c *Connection) loop(ctx context.Context, address, token string, registry *Registry, localServerID string) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := dialWS(ctx, address, token)
		if err != nil {
			logrus.Debugf("federation: connection to %s failed: %v", address, err)
			registry.SetHealth(address, HealthUnavailable)
		} else {
			backoff = initialBackoff

			info, infoErr := fetchServerInfo(ctx, address, token)
			if infoErr == nil && info.ServerID != "" && info.ServerID == localServerID {
				// Self-loop: this backend is us. Permanent rejection, no
				// retry.
				logrus.Warnf("federation: self-loop detected for %s (server_id %s), rejecting",
					address, info.ServerID)
				registry.SetServerID(address, info.ServerID)
				registry.SetHealth(address, HealthRejected)
				conn.Close()
				return
			}

			registry.SetHealth(address, HealthHealthy)
			logrus.Infof("federation: backend %s connected", address)
			if infoErr == nil {
				if info.Hostname != "" {
					if err := registry.SetHostname(address, info.Hostname); err != nil {
						logrus.Warnf("federation: hostname for %s not recorded: %v", address, err)
					}
				}
				if info.ServerID != "" {
					registry.SetServerID(address, info.ServerID)
				}
			}

			runConnection(ctx, conn)
			conn.Close()

			if ctx.Err() != nil {
				return
			}
			registry.SetHealth(address, HealthUnavailable)
			logrus.Warnf("federation: backend %s disconnected", address)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// WSBaseURL converts an http(s) backend address to its ws(s) form.
func WSBaseURL(address string) string {
	if strings.HasPrefix(address, "https://") {
		return "wss://" + strings.TrimPrefix(address, "https://")
	}
	return "ws://" + strings.TrimPrefix(address, "http://")
}

func dialWS(ctx context.Context, address, token string) (*websocket.Conn, error) {
	wsURL := strings.TrimRight(WSBaseURL(address), "/") + "/ws/json"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// runConnection pumps the established socket: a ping every 30 s, pong
// replies to pings (gorilla's default ping handler), and exit on close,
// error, or shutdown.
func runConnection(ctx context.Context, conn *websocket.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// fetchServerInfo queries the backend's /server/info endpoint.
func fetchServerInfo(ctx context.Context, address, token string) (ServerInfo, error) {
	infoCtx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	url := strings.TrimRight(address, "/") + "/server/info"
	req, err := http.NewRequestWithContext(infoCtx, http.MethodGet, url, nil)
	if err != nil {
		return ServerInfo{}, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ServerInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ServerInfo{}, fmt.Errorf("server info returned %d", resp.StatusCode)
	}
	var info ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ServerInfo{}, err
	}
	return info, nil
}
