// Package lock keeps a single screening process running per machine by
// holding a loopback TCP port for the lifetime of the command.
package lock

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

// DefaultPort is the loopback port held while a process runs.
const DefaultPort = 52525

// ErrAlreadyRunning is returned when another process holds the port.
var ErrAlreadyRunning = errors.New("another video-screen process is already running")

// Lock is a held instance lock.
type Lock struct {
	mu       sync.Mutex
	listener net.Listener
}

// Acquire binds 127.0.0.1:port. Port 0 picks a free port, which is only
// useful in tests.
func Acquire(port int) (*Lock, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w (port %d in use)", ErrAlreadyRunning, port)
		}
		return nil, fmt.Errorf("acquire instance lock on %s: %w", addr, err)
	}
	log.Debug().Str("addr", ln.Addr().String()).Msg("Instance lock acquired")
	return &Lock{listener: ln}, nil
}

// Port returns the bound port.
func (l *Lock) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return 0
	}
	return l.listener.Addr().(*net.TCPAddr).Port
}

// Release frees the port. It is safe to call more than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	log.Debug().Msg("Instance lock released")
	return err
}
