package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/types"
)

// Command types understood by the daemon.
const (
	CommandExec   = "exec"
	CommandStatus = "status"
	CommandReload = "reload"
)

// SocketName is the control socket file inside the data directory.
const SocketName = "vos.sock"

// Command represents a control command sent to the daemon
type Command struct {
	Type      string    `json:"type"`          // "exec", "status", "reload"
	Line      string    `json:"line,omitempty"` // Shell line (for exec)
	Cwd       string    `json:"cwd,omitempty"`  // Working directory (for exec); empty uses the daemon shell's
	Timestamp time.Time `json:"timestamp"`      // When command was sent
}

// Payload is the command-specific part of a response.
type Payload struct {
	Result   *types.ShellResult    `json:"result,omitempty"`
	Tasks    []types.ScheduledTask `json:"tasks,omitempty"`
	Revision uint64                `json:"revision"`
	Running  bool                  `json:"scheduler_running"`
}

// Response represents a response to a control command
type Response struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    Payload `json:"data"`
	Error   string  `json:"error,omitempty"`
}

// HandlerFunc answers one command.
type HandlerFunc func(ctx context.Context, cmd Command) (Payload, error)

// Server manages the control socket of a running daemon
type Server struct {
	socketPath string
	listener   *net.UnixListener
	mu         sync.RWMutex
	running    bool
	stopped    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	conns      sync.WaitGroup
	log        *zap.Logger

	onCommand HandlerFunc
}

// NewServer creates a new control server.
// socketPath is normally <data-dir>/vos.sock.
func NewServer(socketPath string, onCommand HandlerFunc) (*Server, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a stale socket left by a crashed daemon
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		onCommand:  onCommand,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		log:        logging.Named("control"),
	}, nil
}

// Start begins listening for control commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid socket path: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("control server listening", zap.String("socket", s.socketPath))

	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept timeout lets the loop notice ctx and stopCh
		if err := s.listener.SetDeadline(time.Now().Add(time.Second)); err != nil {
			s.log.Warn("failed to set accept deadline", zap.Error(err))
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", zap.Error(err))
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection processes a single control connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Bad clients must not hang the handler
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.log.Warn("failed to set read deadline", zap.Error(err))
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		metrics.RecordControlRequest("invalid", false)
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	var resp Response
	if s.onCommand != nil {
		data, err := s.onCommand(ctx, cmd)
		if err != nil {
			resp = Response{
				Success: false,
				Message: fmt.Sprintf("Command failed: %v", err),
				Error:   err.Error(),
			}
		} else {
			resp = Response{
				Success: true,
				Message: fmt.Sprintf("Command '%s' completed successfully", cmd.Type),
				Data:    data,
			}
		}
	} else {
		resp = Response{
			Success: false,
			Message: "No command handler registered",
			Error:   "server misconfiguration",
		}
	}
	metrics.RecordControlRequest(cmd.Type, resp.Success)
	if !resp.Success {
		s.log.Warn("control command failed",
			zap.String("type", cmd.Type),
			zap.String("error", resp.Error))
	}

	// Exec can outlive the read deadline
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.sendResponse(conn, resp); err != nil {
		s.log.Warn("failed to send response", zap.Error(err))
	}
}

// sendError sends an error response to the client
func (s *Server) sendError(conn net.Conn, message string) {
	resp := Response{
		Success: false,
		Message: message,
		Error:   message,
	}
	_ = s.sendResponse(conn, resp) // Ignore errors on error path
}

// sendResponse sends a response to the client
func (s *Server) sendResponse(conn net.Conn, resp Response) error {
	return json.NewEncoder(conn).Encode(resp)
}

// Stop stops the control server and waits for in-flight commands.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)

	// Closing the listener unblocks Accept
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("error closing listener", zap.Error(err))
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.log.Warn("timeout waiting for server shutdown")
	}
	s.conns.Wait()

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.log.Warn("failed to remove socket file", zap.Error(err))
	}

	s.log.Info("control server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
