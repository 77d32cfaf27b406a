package config

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Instance describes one server instance's runtime files: the unix socket
// and the exclusive lock that prevents duplicate instances.
type Instance struct {
	Name       string
	SocketPath string
	LockPath   string

	lockFile *os.File
}

// RuntimeDir returns the directory holding per-instance sockets and locks.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wsh")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("wsh-%d", os.Getuid()))
}

// NewInstance computes the paths for an instance name. An explicit socket
// path overrides the default location.
func NewInstance(name, socketOverride string) *Instance {
	dir := RuntimeDir()
	socket := filepath.Join(dir, name+".sock")
	if socketOverride != "" {
		socket = socketOverride
	}
	return &Instance{
		Name:       name,
		SocketPath: socket,
		LockPath:   filepath.Join(dir, name+".lock"),
	}
}

// Acquire takes the exclusive instance lock (flock, released automatically
// on crash) and removes any stale socket file.
func (i *Instance) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(i.LockPath), 0o700); err != nil {
		return fmt.Errorf("failed to create runtime dir: %w", err)
	}
	f, err := os.OpenFile(i.LockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("instance %q is already running (lock %s held)", i.Name, i.LockPath)
	}
	i.lockFile = f

	// The lock proves no live instance owns the socket; any leftover file
	// is stale.
	if err := os.Remove(i.SocketPath); err != nil && !os.IsNotExist(err) {
		i.Release()
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(i.SocketPath), 0o700); err != nil {
		i.Release()
		return fmt.Errorf("failed to create socket dir: %w", err)
	}
	return nil
}

// Release drops the lock and removes the runtime files.
func (i *Instance) Release() {
	if i.lockFile != nil {
		_ = unix.Flock(int(i.lockFile.Fd()), unix.LOCK_UN)
		i.lockFile.Close()
		i.lockFile = nil
	}
	_ = os.Remove(i.SocketPath)
	_ = os.Remove(i.LockPath)
}
