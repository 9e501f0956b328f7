package trojan

import (
	"context"
	"path/filepath"

	"github.com/prometheus/procfs"
)

// SystemLister reads the process table from /proc.
type SystemLister struct{}

func (SystemLister) List(ctx context.Context) ([]Process, error) {
	all, err := procfs.AllProcs()
	if err != nil {
		return nil, err
	}

	procs := make([]Process, 0, len(all))
	for _, p := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Processes may exit while we walk /proc.
		args, err := p.CmdLine()
		if err != nil {
			continue
		}
		name, err := p.Comm()
		if err != nil || name == "" {
			if len(args) == 0 {
				continue
			}
			name = filepath.Base(args[0])
		}
		procs = append(procs, Process{PID: p.PID, Name: name, Args: args})
	}
	return procs, nil
}
