package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/vos/internal/types"
)

// Backend is the daemon state the control socket exposes.
type Backend interface {
	// Exec runs a shell line; an empty cwd uses the daemon shell's.
	Exec(ctx context.Context, cwd, line string) types.ShellResult
	Tasks() []types.ScheduledTask
	SchedulerRunning() bool
	// Reload re-reads the filesystem and task list from storage.
	Reload(ctx context.Context) error
	Revision() uint64
}

// NewHandler dispatches exec, status, and reload commands to b.
func NewHandler(b Backend) HandlerFunc {
	return func(ctx context.Context, cmd Command) (Payload, error) {
		switch cmd.Type {
		case CommandExec:
			if strings.TrimSpace(cmd.Line) == "" {
				return Payload{}, fmt.Errorf("exec requires a command line")
			}
			res := b.Exec(ctx, cmd.Cwd, cmd.Line)
			return Payload{Result: &res, Revision: b.Revision()}, nil
		case CommandStatus:
			return Payload{
				Tasks:    b.Tasks(),
				Revision: b.Revision(),
				Running:  b.SchedulerRunning(),
			}, nil
		case CommandReload:
			if err := b.Reload(ctx); err != nil {
				return Payload{}, err
			}
			return Payload{Revision: b.Revision()}, nil
		default:
			return Payload{}, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}
