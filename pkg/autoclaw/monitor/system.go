package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// SystemInfo is a static description of the host.
type SystemInfo struct {
	Hostname      string        `json:"hostname"`
	OS            string        `json:"os"`
	Platform      string        `json:"platform"`
	KernelVersion string        `json:"kernel_version"`
	Uptime        time.Duration `json:"uptime"`
	BootTime      time.Time     `json:"boot_time"`
	ProcessCount  uint64        `json:"process_count"`
}

// GetSystemInfo collects host details.
func GetSystemInfo(ctx context.Context) (SystemInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return SystemInfo{}, fmt.Errorf("read host info: %w", err)
	}
	return SystemInfo{
		Hostname:      info.Hostname,
		OS:            info.OS,
		Platform:      fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion),
		KernelVersion: info.KernelVersion,
		Uptime:        time.Duration(info.Uptime) * time.Second,
		BootTime:      time.Unix(int64(info.BootTime), 0),
		ProcessCount:  info.Procs,
	}, nil
}

// ProcessInfo describes one running process.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	Status     string  `json:"status"`
}

// TopProcesses returns the heaviest processes by CPU, up to limit.
func TopProcesses(ctx context.Context, limit int) ([]ProcessInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []ProcessInfo
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // process may have exited mid-walk
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = cpu
		}
		if mem, err := p.MemoryPercentWithContext(ctx); err == nil {
			info.MemPercent = mem
		}
		if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
			info.Status = status[0]
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindProcesses returns processes whose name contains the given
// substring, case-insensitively.
func FindProcesses(ctx context.Context, name string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	needle := strings.ToLower(name)
	var out []ProcessInfo
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(pname), needle) {
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: pname}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = cpu
		}
		if mem, err := p.MemoryPercentWithContext(ctx); err == nil {
			info.MemPercent = mem
		}
		out = append(out, info)
	}
	return out, nil
}

// KillProcess terminates a process by PID, escalating to SIGKILL when
// the graceful stop does not finish within the grace period.
func KillProcess(ctx context.Context, pid int32, grace time.Duration) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}

	if grace <= 0 {
		grace = 3 * time.Second
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}
