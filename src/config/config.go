// Package config loads the federation configuration and resolves the
// server's identity and per-instance filesystem paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Federation is the top-level federation config, loaded from YAML.
type Federation struct {
	// Server holds local identity overrides.
	Server *ServerIdentity `yaml:"server,omitempty"`
	// DefaultToken is used for backends without their own token.
	DefaultToken string `yaml:"default_token,omitempty"`
	// Servers lists the backends to connect to.
	Servers []BackendServer `yaml:"servers,omitempty"`
	// IPAccess is the optional CIDR access control for backend addresses.
	IPAccess IPAccess `yaml:"ip_access,omitempty"`
}

// ServerIdentity overrides the local server identity.
type ServerIdentity struct {
	Hostname string `yaml:"hostname,omitempty"`
}

// BackendServer is a single backend entry.
type BackendServer struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token,omitempty"`
}

// IPAccess holds CIDR lists; the blocklist denies first, and a non-empty
// allowlist implies deny-by-default.
type IPAccess struct {
	Blocklist []string `yaml:"blocklist,omitempty"`
	Allowlist []string `yaml:"allowlist,omitempty"`
}

// LoadFederation reads the config file. A missing file yields (nil, nil).
func LoadFederation(path string) (*Federation, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Federation
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveFederation writes the config file, creating parent directories.
func SaveFederation(path string, cfg *Federation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// WatchFederation watches the config file and invokes onChange with the
// freshly loaded config whenever it is written. Returns a stop function.
// Errors reloading are logged and skipped.
func WatchFederation(path string, onChange func(*Federation)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadFederation(path)
				if err != nil {
					logrus.Warnf("config: reload of %s failed: %v", path, err)
					continue
				}
				logrus.Infof("config: reloaded %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Warnf("config: watcher error: %v", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}

// ResolveHostname returns the configured hostname override or the system
// hostname, falling back to "unknown".
func ResolveHostname(identity *ServerIdentity) string {
	if identity != nil && identity.Hostname != "" {
		return identity.Hostname
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
