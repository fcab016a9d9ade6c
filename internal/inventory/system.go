package inventory

import (
	"context"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// systemSource reads the live process and socket tables via gopsutil.
type systemSource struct{}

// SystemSource returns a Source backed by the operating system.
func SystemSource() Source {
	return systemSource{}
}

func (systemSource) Pids(ctx context.Context) ([]int32, error) {
	return process.PidsWithContext(ctx)
}

func (systemSource) Describe(ctx context.Context, pid int32) (Record, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Record{}, err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Record{}, err
	}

	rec := Record{PID: pid, Name: name}

	// Everything past the name is enrichment: permission races leave the
	// field empty rather than failing the record.
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		rec.Command = cmdline
	}
	if cwd, err := p.CwdWithContext(ctx); err == nil {
		rec.WorkingDir = cwd
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		rec.MemoryBytes = mem.RSS
	}
	return rec, nil
}

func (systemSource) ListenPorts(ctx context.Context) (map[int32][]int, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	owned := make(map[int32][]int)
	for _, conn := range conns {
		if conn.Status != "LISTEN" || conn.Pid <= 0 {
			continue
		}
		port := int(conn.Laddr.Port)
		if containsPort(owned[conn.Pid], port) {
			continue
		}
		owned[conn.Pid] = append(owned[conn.Pid], port)
	}
	return owned, nil
}

func (systemSource) Parent(ctx context.Context, pid int32) (int32, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0, err
	}
	return p.PpidWithContext(ctx)
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}
