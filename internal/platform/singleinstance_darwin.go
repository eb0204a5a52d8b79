package platform

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meridian-pim/meridian/internal/logging"
)

// darwinSingleInstanceLock uses a Unix socket for single-instance detection.
// The socket lives at ~/Library/Application Support/Meridian/instance.sock.
type darwinSingleInstanceLock struct {
	listener   net.Listener
	socketPath string
	onShow     func()
	mu         sync.Mutex
	done       chan struct{}
}

// NewSingleInstanceLock creates a new single-instance lock.
func NewSingleInstanceLock() SingleInstanceLock {
	return &darwinSingleInstanceLock{
		done: make(chan struct{}),
	}
}

// TryLock attempts to acquire the single-instance lock.
func (l *darwinSingleInstanceLock) TryLock() (bool, error) {
	log := logging.WithComponent("singleinstance")

	socketPath, err := l.buildSocketPath()
	if err != nil {
		return true, fmt.Errorf("failed to build socket path: %w", err)
	}
	l.socketPath = socketPath

	// Try to listen on the socket (atomic — only one process succeeds)
	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		// We are the first instance
		l.listener = listener
		go l.acceptLoop()
		log.Info().Str("socket", socketPath).Msg("Single-instance lock acquired")
		return true, nil
	}

	// Listen failed — try to activate the existing instance
	conn, dialErr := net.DialTimeout("unix", socketPath, 2*time.Second)
	if dialErr == nil {
		// Existing instance is alive — send show command
		_, _ = conn.Write([]byte("show\n"))
		conn.Close()
		log.Info().Msg("Activated existing instance")
		return false, nil
	}

	// Socket exists but no one is listening — stale socket, remove and retry
	log.Warn().Msg("Stale instance socket found, removing")
	os.Remove(socketPath)

	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return true, fmt.Errorf("failed to acquire lock after cleanup: %w", err)
	}

	l.listener = listener
	go l.acceptLoop()
	log.Info().Str("socket", socketPath).Msg("Single-instance lock acquired after cleanup")
	return true, nil
}

// SetOnShow sets the callback invoked when a second instance requests window show.
func (l *darwinSingleInstanceLock) SetOnShow(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onShow = fn
}

// Unlock releases the lock and cleans up resources.
func (l *darwinSingleInstanceLock) Unlock() {
	close(l.done)
	if l.listener != nil {
		l.listener.Close()
	}
	if l.socketPath != "" {
		os.Remove(l.socketPath)
	}
}

// acceptLoop handles incoming connections from second instances.
func (l *darwinSingleInstanceLock) acceptLoop() {
	log := logging.WithComponent("singleinstance")

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				log.Debug().Err(err).Msg("Accept error")
				return
			}
		}
		go l.handleConnection(conn)
	}
}

// handleConnection reads the command from a second instance.
func (l *darwinSingleInstanceLock) handleConnection(conn net.Conn) {
	defer conn.Close()
	log := logging.WithComponent("singleinstance")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	cmd := scanner.Text()
	if cmd != "show" {
		return
	}

	l.mu.Lock()
	fn := l.onShow
	l.mu.Unlock()

	if fn == nil {
		return
	}

	log.Info().Msg("Show requested by second instance")
	fn()
}

// buildSocketPath returns the path for the instance lock socket.
// Uses ~/Library/Application Support/Meridian/ which is the standard macOS app data location.
func (l *darwinSingleInstanceLock) buildSocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	socketDir := filepath.Join(home, "Library", "Application Support", "Meridian")
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create socket directory: %w", err)
	}

	return filepath.Join(socketDir, "instance.sock"), nil
}
