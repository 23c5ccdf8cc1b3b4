package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// systemSampler reads live system metrics via gopsutil.
type systemSampler struct {
	diskPath string
}

func (s *systemSampler) Sample(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Taken: time.Now()}

	cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return snap, err
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.MemoryPercent = vm.UsedPercent
	snap.MemoryUsed = vm.Used
	snap.MemoryTotal = vm.Total

	path := s.diskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return snap, err
	}
	snap.DiskPercent = du.UsedPercent
	snap.DiskUsed = du.Used
	snap.DiskTotal = du.Total

	// Not every machine exposes thermal sensors; absence is not an error.
	if temps, err := sensors.TemperaturesWithContext(ctx); err == nil {
		var max float64
		for _, t := range temps {
			if t.Temperature > max {
				max = t.Temperature
			}
		}
		if max > 0 {
			snap.Temperature = max
			snap.HasTemp = true
		}
	}

	return snap, nil
}
