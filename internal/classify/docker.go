package classify

import (
	"context"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

// ContainerPIDs returns the init pid of every running Docker container so the
// rule set can shield them behind the protected tier. Discovery is
// best-effort: a missing or unreachable daemon yields an empty set, never an
// error, since most machines this tool runs on have no container runtime at
// all.
func ContainerPIDs(ctx context.Context) map[int32]struct{} {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil
	}

	pids := make(map[int32]struct{}, len(containers))
	for _, c := range containers {
		info, err := cli.ContainerInspect(ctx, c.ID)
		if err != nil || info.State == nil {
			continue
		}
		if info.State.Pid > 0 {
			pids[int32(info.State.Pid)] = struct{}{}
		}
	}
	return pids
}
