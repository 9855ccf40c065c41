package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/steveyegge/vos/internal/types"
)

// Client sends control commands to a running daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command to the daemon and waits for response
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Exec runs line in the daemon's shell and returns its result.
func (c *Client) Exec(cwd, line string) (types.ShellResult, error) {
	resp, err := c.SendCommand(Command{
		Type:      CommandExec,
		Line:      line,
		Cwd:       cwd,
		Timestamp: time.Now(),
	})
	if err != nil {
		return types.ShellResult{}, err
	}
	if !resp.Success {
		return types.ShellResult{}, errors.New(resp.Error)
	}
	if resp.Data.Result == nil {
		return types.ShellResult{}, errors.New("daemon returned no result")
	}
	return *resp.Data.Result, nil
}

// Status requests the scheduler's task list
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: CommandStatus, Timestamp: time.Now()})
}

// Reload asks the daemon to re-read state from storage
func (c *Client) Reload() (*Response, error) {
	return c.SendCommand(Command{Type: CommandReload, Timestamp: time.Now()})
}
