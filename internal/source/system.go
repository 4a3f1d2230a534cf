package source

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/godlewis/process-list/internal/record"
)

// System enumerates the host's processes and correlates them with their
// listening inet sockets. A process that vanishes mid-enumeration is
// skipped; username and command line are best-effort and empty when
// unreadable.
type System struct{}

func NewSystem() *System { return &System{} }

func (s *System) FetchAll(ctx context.Context) ([]record.Record, error) {
	ports, err := listeningPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate listening sockets: %w", err)
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	records := make([]record.Record, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // gone between listing and inspection
		}
		owner, _ := p.UsernameWithContext(ctx)
		detail, _ := p.CmdlineWithContext(ctx)
		records = append(records, record.Record{
			ID:     strconv.FormatInt(int64(p.Pid), 10),
			Name:   name,
			Owner:  owner,
			Ports:  ports[p.Pid],
			Detail: detail,
		})
	}
	return records, nil
}

// listeningPorts maps PIDs to the local ports of their LISTEN-state inet
// sockets, deduplicated and numerically sorted.
func listeningPorts(ctx context.Context) (map[int32][]string, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	sets := make(map[int32]map[uint32]struct{})
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Pid == 0 || c.Laddr.Port == 0 {
			continue
		}
		set := sets[c.Pid]
		if set == nil {
			set = make(map[uint32]struct{})
			sets[c.Pid] = set
		}
		set[c.Laddr.Port] = struct{}{}
	}
	out := make(map[int32][]string, len(sets))
	for pid, set := range sets {
		out[pid] = portStrings(set)
	}
	return out, nil
}

func portStrings(set map[uint32]struct{}) []string {
	nums := make([]uint32, 0, len(set))
	for p := range set {
		nums = append(nums, p)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	out := make([]string, len(nums))
	for i, p := range nums {
		out[i] = strconv.FormatUint(uint64(p), 10)
	}
	return out
}
