package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/api"
	"github.com/deepgram/wsh/src/config"
	"github.com/deepgram/wsh/src/federation"
	"github.com/deepgram/wsh/src/handler"
	"github.com/deepgram/wsh/src/mcp"
	"github.com/deepgram/wsh/src/proto"
	"github.com/deepgram/wsh/src/session"
)

// @title           wsh terminal server API
// @version         0.1.0
// @description     Multiplexing terminal server: PTY sessions observable and steerable over HTTP, WebSocket, MCP and a unix socket, with optional federation.

// @BasePath  /
func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found")
	}

	serverName := flag.String("server-name", "default", "Instance name for the runtime socket and lock")
	socketPath := flag.String("socket", "", "Unix socket path override")
	bind := flag.String("bind", "127.0.0.1:8080", "HTTP listen address")
	ephemeral := flag.Bool("ephemeral", false, "Exit when the last session is gone")
	token := flag.String("token", os.Getenv("WSH_TOKEN"), "Shared bearer token (empty disables auth)")
	hostname := flag.String("hostname", "", "Hostname override for federation identity")
	tlsCert := flag.String("tls-cert", "", "TLS certificate chain (PEM)")
	tlsKey := flag.String("tls-key", "", "TLS private key (PEM)")
	fedConfig := flag.String("federation-config", "", "Federation config file (YAML)")
	maxSessions := flag.Int("max-sessions", 0, "Maximum concurrent sessions (0 = unlimited)")
	allowedOrigins := flag.String("allowed-origins", "", "Comma-separated WebSocket Origin allow-list")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instance := config.NewInstance(*serverName, *socketPath)
	if err := instance.Acquire(); err != nil {
		logrus.Fatalf("Failed to acquire instance lock: %v", err)
	}
	defer instance.Release()

	fedCfg, err := config.LoadFederation(*fedConfig)
	if err != nil {
		logrus.Fatalf("Failed to load federation config: %v", err)
	}

	resolvedHostname := *hostname
	if resolvedHostname == "" {
		var identity *config.ServerIdentity
		if fedCfg != nil {
			identity = fedCfg.Server
		}
		resolvedHostname = config.ResolveHostname(identity)
	}

	serverID := newServerID()
	registry := session.NewRegistry(*maxSessions)
	fedManager := federation.NewManager(ctx, fedCfg, serverID, *token)

	state := &handler.State{
		Ctx:        ctx,
		Registry:   registry,
		Federation: fedManager,
		Hostname:   resolvedHostname,
		ServerID:   serverID,
		ConfigPath: *fedConfig,
	}

	// Reload backends when the federation config changes on disk.
	if *fedConfig != "" {
		stopWatch, err := config.WatchFederation(*fedConfig, func(cfg *config.Federation) {
			if cfg == nil {
				return
			}
			known := make(map[string]bool)
			for _, b := range fedManager.Registry().List() {
				known[b.Address] = true
			}
			for _, server := range cfg.Servers {
				if !known[server.Address] {
					if err := fedManager.AddBackend(server.Address, server.Token); err != nil {
						logrus.Warnf("Reloaded backend %s not added: %v", server.Address, err)
					}
				}
			}
		})
		if err != nil {
			logrus.Warnf("Federation config watch not started: %v", err)
		} else {
			defer stopWatch()
		}
	}

	var origins []string
	if *allowedOrigins != "" {
		origins = strings.Split(*allowedOrigins, ",")
	}
	router, tickets := api.SetupRouter(state, api.Options{
		Token:          *token,
		AllowedOrigins: origins,
	})

	if _, err := mcp.NewServer(state, router, api.RequireAuth(*token, tickets)); err != nil {
		logrus.Fatalf("Failed to create MCP server: %v", err)
	}

	// Unix socket protocol server.
	unixServer := proto.NewServer(ctx, registry)
	go func() {
		if err := unixServer.Serve(instance.SocketPath); err != nil {
			logrus.Errorf("Unix socket server failed: %v", err)
		}
	}()

	// Ephemeral mode: remove exited sessions and shut down with the last
	// one.
	if *ephemeral {
		go superviseEphemeral(ctx, registry, cancel)
	}

	httpServer := &http.Server{
		Addr:              *bind,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", *bind)
	if err != nil {
		logrus.Fatalf("Failed to listen on %s: %v", *bind, err)
	}
	if *tlsCert != "" || *tlsKey != "" {
		tlsConfig, err := config.LoadTLS(*tlsCert, *tlsKey)
		if err != nil {
			logrus.Fatalf("Failed to load TLS: %v", err)
		}
		listener = tlsListener(listener, tlsConfig)
		logrus.Infof("TLS enabled")
	}

	go func() {
		logrus.Infof("Server %s (%s) listening on %s", resolvedHostname, serverID, *bind)
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("HTTP server failed: %v", err)
			cancel()
		}
	}()

	// Shut down on SIGINT/SIGTERM or ephemeral completion.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logrus.Infof("Received %v, shutting down", s)
	case <-ctx.Done():
		logrus.Info("Shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	fedManager.ShutdownAll()
	registry.Drain()
}

// superviseEphemeral removes sessions whose child exited and cancels the
// process context once the registry is empty (after at least one session
// existed).
func superviseEphemeral(ctx context.Context, registry *session.Registry, shutdown context.CancelFunc) {
	events := registry.SubscribeEvents()
	defer registry.UnsubscribeEvents(events)

	sawSession := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case session.EventCreated:
				sawSession = true
			case session.EventExited:
				registry.Remove(ev.Name)
			}
			if sawSession && registry.Len() == 0 {
				logrus.Info("Last session gone, exiting (ephemeral mode)")
				shutdown()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func tlsListener(l net.Listener, cfg *tls.Config) net.Listener {
	return tls.NewListener(l, cfg)
}

func newServerID() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Sprintf("srv-%d", os.Getpid())
	}
	return hex.EncodeToString(raw)
}
